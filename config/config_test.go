package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
	if cfg.Motion.AngularStepDeg != 1.0 || cfg.Motion.LinearStepM != 0.05 {
		t.Fatalf("motion defaults %+v", cfg.Motion)
	}
	if cfg.Output.FPS != 30 || cfg.Render.PaneWidth != 512 {
		t.Fatalf("output defaults %+v %+v", cfg.Output, cfg.Render)
	}
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "navreel.yaml")
	yml := `
backend:
  kind: gridworld
  io_timeout: 3s
  grid:
    mask: room.png
    max_x: 8
    max_z: 6
motion:
  angular_step_deg: 2.5
  facing_steps: 4
map:
  padding: {left: 10, top: 10, right: 10, bottom: 10}
output:
  encoder: jpeg
`
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("NAVREEL_MOTION_FACING_STEPS", "6")
	t.Setenv("NAVREEL_FPS", "24")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Backend.Kind != "gridworld" || cfg.Backend.Grid.Mask != "room.png" {
		t.Fatalf("backend %+v", cfg.Backend)
	}
	if cfg.Backend.IOTimeout != 3*time.Second {
		t.Fatalf("io timeout %v", cfg.Backend.IOTimeout)
	}
	if cfg.Motion.AngularStepDeg != 2.5 {
		t.Fatalf("yaml not applied: %v", cfg.Motion.AngularStepDeg)
	}
	if cfg.Motion.FacingSteps != 6 {
		t.Fatalf("env should win over yaml: %v", cfg.Motion.FacingSteps)
	}
	if cfg.Motion.LinearStepM != 0.05 {
		t.Fatalf("untouched default lost: %v", cfg.Motion.LinearStepM)
	}
	if cfg.Output.FPS != 24 || cfg.Output.Encoder != "jpeg" {
		t.Fatalf("output %+v", cfg.Output)
	}
	if cfg.Map.Padding.Left != 10 || cfg.Map.MarkerRadius != 8 {
		t.Fatalf("map %+v", cfg.Map)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	yml := "motion:\n  linear_step_m: 0\n  abort_policy: never\noutput:\n  encoder: gif\n"
	if err := os.WriteFile(path, []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"linear_step_m", "abort_policy", "output.encoder"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAutoBackendNeedsBoth(t *testing.T) {
	cfg := Default()
	cfg.Backend.Kind = "auto"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "backend.grid.mask") {
		t.Fatalf("auto without mask: %v", err)
	}
	cfg.Backend.Grid.Mask = "room.png"
	cfg.Backend.Grid.MaxX, cfg.Backend.Grid.MaxZ = 4, 4
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
