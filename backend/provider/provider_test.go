package provider

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"gocv.io/x/gocv"

	"navreel/config"
)

func writeMask(t *testing.T) string {
	t.Helper()
	mask := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 16, 16, gocv.MatTypeCV8UC1)
	defer mask.Close()
	gocv.Rectangle(&mask, image.Rect(0, 0, 16, 2), color.RGBA{0, 0, 0, 255}, -1)
	path := filepath.Join(t.TempDir(), "room.png")
	if !gocv.IMWrite(path, mask) {
		t.Fatal("write mask")
	}
	return path
}

func gridConfig(t *testing.T) (config.BackendConfig, config.RenderConfig) {
	cfg := config.Default()
	cfg.Backend.Grid.Mask = writeMask(t)
	cfg.Backend.Grid.MaxX, cfg.Backend.Grid.MaxZ = 4, 4
	cfg.Render.PaneWidth, cfg.Render.PaneHeight = 64, 48
	return cfg.Backend, cfg.Render
}

func TestOpenGridWorld(t *testing.T) {
	bc, rc := gridConfig(t)
	bc.Kind = "gridworld"
	b, err := Open(context.Background(), bc, rc)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Info().Kind != "gridworld" {
		t.Fatalf("info %+v", b.Info())
	}
	bounds, err := b.SceneBounds(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if bounds.Width() != 4 || bounds.Depth() != 4 {
		t.Fatalf("bounds %+v", bounds)
	}
}

func TestAutoFallsBackToGridWorld(t *testing.T) {
	bc, rc := gridConfig(t)
	bc.Kind = "auto"
	bc.URL = "ws://127.0.0.1:1/bridge"
	var logged []string
	SetDebugFunction(func(_, msg string) { logged = append(logged, msg) })
	defer SetDebugFunction(nil)

	b, err := Open(context.Background(), bc, rc)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()
	if b.Info().Kind != "gridworld" {
		t.Fatalf("fallback picked %+v", b.Info())
	}
	if len(logged) < 3 {
		t.Fatalf("expected provider log lines, got %q", logged)
	}
}

func TestOpenErrors(t *testing.T) {
	bc, rc := gridConfig(t)
	bc.Kind = "carrier-pigeon"
	if _, err := Open(context.Background(), bc, rc); err == nil {
		t.Fatal("unknown kind accepted")
	}
	bc.Kind = "gridworld"
	bc.Grid.Mask = filepath.Join(t.TempDir(), "missing.png")
	if _, err := Open(context.Background(), bc, rc); err == nil {
		t.Fatal("missing mask accepted")
	}
}
