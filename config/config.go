// Package config loads navreel settings: defaults, then an optional YAML
// file, then NAVREEL_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"navreel/mapping"
)

type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Motion  MotionConfig  `yaml:"motion"`
	Map     MapConfig     `yaml:"map"`
	Render  RenderConfig  `yaml:"render"`
	Output  OutputConfig  `yaml:"output"`
	Journal JournalConfig `yaml:"journal"`
	Log     LogConfig     `yaml:"log"`
}

type BackendConfig struct {
	Kind      string        `yaml:"kind" env:"NAVREEL_BACKEND"` // "simbridge", "gridworld" or "auto"
	URL       string        `yaml:"url" env:"NAVREEL_SIMBRIDGE_URL"`
	IOTimeout time.Duration `yaml:"io_timeout" env:"NAVREEL_SIMBRIDGE_IO_TIMEOUT"`
	Grid      GridConfig    `yaml:"grid"`
}

type GridConfig struct {
	Mask            string  `yaml:"mask" env:"NAVREEL_GRID_MASK"`
	Scene           string  `yaml:"scene"`
	MinX            float64 `yaml:"min_x"`
	MinZ            float64 `yaml:"min_z"`
	MaxX            float64 `yaml:"max_x"`
	MaxZ            float64 `yaml:"max_z"`
	FloorY          float64 `yaml:"floor_y"`
	SnapRadius      float64 `yaml:"snap_radius" env:"NAVREEL_GRID_SNAP_RADIUS"`
	HFOV            float64 `yaml:"hfov"`
	MaxViewDistance float64 `yaml:"max_view_distance"`
}

type MotionConfig struct {
	AngularStepDeg     float64 `yaml:"angular_step_deg" env:"NAVREEL_MOTION_ANGULAR_STEP_DEG"`
	LinearStepM        float64 `yaml:"linear_step_m" env:"NAVREEL_MOTION_LINEAR_STEP_M"`
	FacingSteps        int     `yaml:"facing_steps" env:"NAVREEL_MOTION_FACING_STEPS"`
	FacingToleranceDeg float64 `yaml:"facing_tolerance_deg" env:"NAVREEL_MOTION_FACING_TOLERANCE_DEG"`
	AbortPolicy        string  `yaml:"abort_policy" env:"NAVREEL_MOTION_ABORT_POLICY"` // "queue" or "command"
}

type MapConfig struct {
	Padding          mapping.Padding `yaml:"padding"`
	MaxResolution    int             `yaml:"max_resolution"`
	Decorate         bool            `yaml:"decorate" env:"NAVREEL_MAP_DECORATE"`
	MarkerRadius     int             `yaml:"marker_radius"`
	ArrowLength      int             `yaml:"arrow_length"`
	RoundTripEpsilon float64         `yaml:"roundtrip_epsilon"`
}

type RenderConfig struct {
	PaneWidth  int  `yaml:"pane_width" env:"NAVREEL_PANE_WIDTH"`
	PaneHeight int  `yaml:"pane_height" env:"NAVREEL_PANE_HEIGHT"`
	HUD        bool `yaml:"hud" env:"NAVREEL_HUD"`
	StartFrame bool `yaml:"start_frame" env:"NAVREEL_START_FRAME"`
}

type OutputConfig struct {
	Dir         string  `yaml:"dir" env:"NAVREEL_OUTPUT_DIR"`
	Encoder     string  `yaml:"encoder" env:"NAVREEL_ENCODER"` // "gocv", "ffmpeg" or "jpeg"
	FPS         float64 `yaml:"fps" env:"NAVREEL_FPS"`
	Codec       string  `yaml:"codec" env:"NAVREEL_CODEC"`
	FFmpegPath  string  `yaml:"ffmpeg_path" env:"NAVREEL_FFMPEG"`
	JPEGQuality int     `yaml:"jpeg_quality"`
}

type JournalConfig struct {
	Enabled  bool   `yaml:"enabled" env:"NAVREEL_JOURNAL"`
	DBPath   string `yaml:"db_path" env:"NAVREEL_JOURNAL_DB"`
	TraceDir string `yaml:"trace_dir" env:"NAVREEL_TRACE_DIR"`
}

type LogConfig struct {
	Debug   bool   `yaml:"debug" env:"NAVREEL_DEBUG"`
	Verbose bool   `yaml:"verbose" env:"NAVREEL_DEBUG_VERBOSE"`
	Dir     string `yaml:"dir" env:"NAVREEL_LOG_DIR"`
}

// Default returns the built-in settings: 1° turns, 5cm moves, 30fps output,
// two 512x512 panes.
func Default() Config {
	return Config{
		Backend: BackendConfig{
			Kind: "simbridge",
			URL:  "ws://127.0.0.1:8765/bridge",
			Grid: GridConfig{
				SnapRadius:      1.0,
				HFOV:            90,
				MaxViewDistance: 20,
			},
		},
		Motion: MotionConfig{
			AngularStepDeg:     1.0,
			LinearStepM:        0.05,
			FacingSteps:        10,
			FacingToleranceDeg: 0.5,
			AbortPolicy:        "queue",
		},
		Map: MapConfig{
			Padding:          mapping.Padding{Left: 80, Top: 40, Right: 40, Bottom: 60},
			MaxResolution:    1024,
			Decorate:         true,
			MarkerRadius:     8,
			ArrowLength:      20,
			RoundTripEpsilon: mapping.DefaultRoundTripEpsilon,
		},
		Render: RenderConfig{
			PaneWidth:  512,
			PaneHeight: 512,
		},
		Output: OutputConfig{
			Dir:         "outputs",
			Encoder:     "gocv",
			FPS:         30,
			Codec:       "mp4v",
			FFmpegPath:  "ffmpeg",
			JPEGQuality: 95,
		},
		Journal: JournalConfig{
			DBPath:   "outputs/navreel.db",
			TraceDir: "outputs/traces",
		},
		Log: LogConfig{
			Dir: "logs",
		},
	}
}

// Load applies path (if non-empty) and the environment on top of Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	var problems []string
	check := func(ok bool, format string, args ...any) {
		if !ok {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	kind := c.Backend.Kind
	check(kind == "simbridge" || kind == "gridworld" || kind == "auto",
		"backend.kind must be simbridge, gridworld or auto, got %q", kind)
	if kind == "simbridge" || kind == "auto" {
		check(c.Backend.URL != "", "backend.url is required for %s", kind)
	}
	if kind == "gridworld" || kind == "auto" {
		check(c.Backend.Grid.Mask != "", "backend.grid.mask is required for gridworld")
		check(c.Backend.Grid.MaxX > c.Backend.Grid.MinX && c.Backend.Grid.MaxZ > c.Backend.Grid.MinZ,
			"backend.grid bounds must have positive extent")
	}

	m := c.Motion
	check(m.AngularStepDeg > 0 && m.AngularStepDeg <= 360, "motion.angular_step_deg must be in (0, 360]")
	check(m.LinearStepM > 0, "motion.linear_step_m must be positive")
	check(m.FacingSteps >= 1, "motion.facing_steps must be at least 1")
	check(m.FacingToleranceDeg >= 0, "motion.facing_tolerance_deg must not be negative")
	check(m.AbortPolicy == "queue" || m.AbortPolicy == "command",
		"motion.abort_policy must be queue or command, got %q", m.AbortPolicy)

	p := c.Map.Padding
	check(p.Left >= 0 && p.Top >= 0 && p.Right >= 0 && p.Bottom >= 0, "map.padding must not be negative")
	check(c.Map.MaxResolution > 0, "map.max_resolution must be positive")
	check(c.Map.MarkerRadius > 0, "map.marker_radius must be positive")
	check(c.Map.RoundTripEpsilon > 0, "map.roundtrip_epsilon must be positive")

	check(c.Render.PaneWidth > 0 && c.Render.PaneHeight > 0, "render pane size must be positive")

	check(c.Output.FPS > 0, "output.fps must be positive")
	switch c.Output.Encoder {
	case "gocv":
		check(len(c.Output.Codec) == 4, "output.codec must be a fourcc, got %q", c.Output.Codec)
	case "ffmpeg":
		check(c.Output.FFmpegPath != "", "output.ffmpeg_path is required for the ffmpeg encoder")
	case "jpeg":
		check(c.Output.JPEGQuality > 0 && c.Output.JPEGQuality <= 100, "output.jpeg_quality must be in (0, 100]")
	default:
		problems = append(problems, fmt.Sprintf("output.encoder must be gocv, ffmpeg or jpeg, got %q", c.Output.Encoder))
	}

	if c.Journal.Enabled {
		check(c.Journal.DBPath != "", "journal.db_path is required when the journal is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}
