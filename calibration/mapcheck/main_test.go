package main

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"navreel/geom"
	"navreel/mapping"
)

func newMapper(t *testing.T, w, h int) *mapping.Mapper {
	t.Helper()
	bounds := geom.Bounds{Min: mgl64.Vec3{-5, 0, -5}, Max: mgl64.Vec3{5, 1, 5}}
	m, err := mapping.New(bounds, mapping.Transform{Padding: mapping.Padding{Left: 10, Top: 10, Right: 10, Bottom: 10}, Width: w, Height: h})
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestCheckFineMapPasses(t *testing.T) {
	r, all := Check(newMapper(t, 400, 400), 11, 0.1)
	if r.Samples != 121 || len(all) != 121 {
		t.Fatalf("samples=%d", r.Samples)
	}
	if r.Failures != 0 || r.Worst.Error > 0.1 || r.MeanError > r.Worst.Error {
		t.Fatalf("report %+v", r)
	}
}

func TestCheckCoarseMapFails(t *testing.T) {
	r, _ := Check(newMapper(t, 8, 8), 11, 0.1)
	if r.Failures == 0 || r.Worst.Error <= 0.1 {
		t.Fatalf("coarse map passed: %+v", r)
	}
}

func TestHeatColor(t *testing.T) {
	if c := heatColor(0, 0.1); c.R != 0 || c.G != 255 {
		t.Fatalf("zero error %v", c)
	}
	if c := heatColor(1, 0.1); c.R != 255 || c.G != 0 {
		t.Fatalf("large error %v", c)
	}
}
