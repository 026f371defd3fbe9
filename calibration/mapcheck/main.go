// Command mapcheck measures the world->map->world round-trip error of the
// configured scene and map transform, and writes a report plus an error
// heat overlay of the decorated base map.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"navreel/backend/provider"
	"navreel/config"
	"navreel/mapping"
	"navreel/overlay"
)

var (
	configPath = flag.String("config", "", "YAML config file")
	samples    = flag.Int("n", 21, "Samples per axis")
	outDir     = flag.String("out", "", "Report directory (default /tmp/mapcheck_<timestamp>)")
)

// Report summarizes a sweep.
type Report struct {
	Scene     string            `json:"scene"`
	Transform mapping.Transform `json:"transform"`
	Epsilon   float64           `json:"epsilon"`
	Samples   int               `json:"samples"`
	Failures  int               `json:"failures"`
	Worst     mapping.RoundTrip `json:"worst"`
	MeanError float64           `json:"mean_error"`
	CreatedAt time.Time         `json:"created_at"`
}

// Check sweeps mapper with n samples per axis.
func Check(mapper *mapping.Mapper, n int, eps float64) (Report, []mapping.RoundTrip) {
	all, worst := mapper.Sweep(n)
	r := Report{
		Transform: mapper.Transform(),
		Epsilon:   eps,
		Samples:   len(all),
		Worst:     worst,
		CreatedAt: time.Now(),
	}
	sum := 0.0
	for _, rt := range all {
		sum += rt.Error
		if !rt.Acceptable(eps) {
			r.Failures++
		}
	}
	if len(all) > 0 {
		r.MeanError = sum / float64(len(all))
	}
	return r, all
}

// heatColor runs green (no error) to red (error at or above eps).
func heatColor(err, eps float64) color.RGBA {
	t := err / eps
	if t > 1 {
		t = 1
	}
	return color.RGBA{uint8(255 * t), uint8(255 * (1 - t)), 0, 255}
}

func drawSamples(img *gocv.Mat, all []mapping.RoundTrip, eps float64) {
	for _, rt := range all {
		gocv.Circle(img, rt.Pixel, 3, heatColor(rt.Error, eps), -1)
	}
}

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "mapcheck: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	ctx := context.Background()

	b, err := provider.Open(ctx, cfg.Backend, cfg.Render)
	if err != nil {
		return err
	}
	defer b.Close()

	bounds, err := b.SceneBounds(ctx)
	if err != nil {
		return err
	}
	raw, err := b.BaseTopDownMap(ctx)
	if err != nil {
		return err
	}
	defer raw.Close()

	base, tf, err := overlay.BuildBaseMap(raw, bounds, overlay.BaseMapOptions{
		Padding:       cfg.Map.Padding,
		MaxResolution: cfg.Map.MaxResolution,
		Decorate:      cfg.Map.Decorate,
	})
	if err != nil {
		return err
	}
	defer base.Close()
	mapper, err := mapping.New(bounds, tf)
	if err != nil {
		return err
	}

	report, all := Check(mapper, *samples, cfg.Map.RoundTripEpsilon)
	report.Scene = b.Info().Scene

	dir := *outDir
	if dir == "" {
		dir = fmt.Sprintf("/tmp/mapcheck_%s", time.Now().Format("2006-01-02_15-04-05"))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "report.json"), data, 0o644); err != nil {
		return err
	}
	drawSamples(&base, all, cfg.Map.RoundTripEpsilon)
	heat := filepath.Join(dir, "roundtrip.png")
	if !gocv.IMWrite(heat, base) {
		return fmt.Errorf("write %s", heat)
	}

	fmt.Printf("Bounds:     x [%.2f, %.2f]  z [%.2f, %.2f]\n", bounds.Min.X(), bounds.Max.X(), bounds.Min.Z(), bounds.Max.Z())
	fmt.Printf("Map:        %dx%d + padding %+v\n", tf.Width, tf.Height, tf.Padding)
	fmt.Printf("Samples:    %d (%d over %.3f)\n", report.Samples, report.Failures, report.Epsilon)
	fmt.Printf("Mean error: %.4f\n", report.MeanError)
	fmt.Printf("Worst:      %.4f at (%.2f, %.2f) -> pixel %v -> (%.3f, %.3f)\n",
		report.Worst.Error, report.Worst.X, report.Worst.Z, report.Worst.Pixel, report.Worst.BackX, report.Worst.BackZ)
	fmt.Printf("Report:     %s\n", dir)

	if report.Failures > 0 {
		return fmt.Errorf("%d samples exceed the round-trip tolerance", report.Failures)
	}
	return nil
}
