// Package assembler buffers composite frames for one invocation and writes
// them out as a single artifact.
package assembler

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"time"

	"gocv.io/x/gocv"

	"navreel/failure"
)

// ErrNoArtifact is returned by Flush when no frame was buffered.
var ErrNoArtifact = &failure.Error{Kind: failure.KindNoArtifact, CommandIndex: -1, Message: "no artifact produced"}

// Sink receives the frames of one artifact in order.
type Sink interface {
	Write(frame gocv.Mat) error
	Close() error
}

// Encoder creates artifacts of one format.
type Encoder interface {
	Name() string
	// Extension is appended to the artifact name; "" means the artifact is a directory.
	Extension() string
	Begin(ctx context.Context, path string, fps float64, size image.Point) (Sink, error)
}

// Artifact describes a written output.
type Artifact struct {
	Path     string        `json:"path"`
	Encoder  string        `json:"encoder"`
	Frames   int           `json:"frames"`
	FPS      float64       `json:"fps"`
	Duration time.Duration `json:"duration"`
}

// Assembler owns every Mat handed to Append until Flush or Discard.
type Assembler struct {
	enc    Encoder
	dir    string
	fps    float64
	size   image.Point
	frames []gocv.Mat

	debugMsg func(component, message string)
}

// New returns an empty assembler writing into dir at fps, expecting frames of size.
func New(enc Encoder, dir string, fps float64, size image.Point) (*Assembler, error) {
	if enc == nil {
		return nil, fmt.Errorf("assembler needs an encoder")
	}
	if !(fps > 0) {
		return nil, fmt.Errorf("fps must be positive, got %v", fps)
	}
	if size.X <= 0 || size.Y <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %v", size)
	}
	return &Assembler{enc: enc, dir: dir, fps: fps, size: size}, nil
}

// SetDebugFunction installs a component-tagged debug sink.
func (a *Assembler) SetDebugFunction(fn func(component, message string)) {
	a.debugMsg = fn
}

func (a *Assembler) debug(message string) {
	if a.debugMsg != nil {
		a.debugMsg("ASSEMBLER", message)
	}
}

// Len is the number of buffered frames.
func (a *Assembler) Len() int { return len(a.frames) }

// FrameSize is the resolution every frame must have.
func (a *Assembler) FrameSize() image.Point { return a.size }

// Append takes ownership of frame. Frames of the wrong size are closed and rejected.
func (a *Assembler) Append(frame gocv.Mat) error {
	if frame.Cols() != a.size.X || frame.Rows() != a.size.Y {
		got := image.Pt(frame.Cols(), frame.Rows())
		frame.Close()
		return fmt.Errorf("frame is %v, assembler expects %v", got, a.size)
	}
	a.frames = append(a.frames, frame)
	return nil
}

// Discard drops every buffered frame.
func (a *Assembler) Discard() {
	for i := range a.frames {
		a.frames[i].Close()
	}
	a.frames = nil
}

// Flush writes the buffered frames to dir/name+extension and empties the buffer.
// With nothing buffered it returns ErrNoArtifact and writes nothing. A failed
// write removes the partial output.
func (a *Assembler) Flush(ctx context.Context, name string) (Artifact, error) {
	defer a.Discard()
	if len(a.frames) == 0 {
		return Artifact{}, ErrNoArtifact
	}
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return Artifact{}, fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(a.dir, name+a.enc.Extension())

	start := time.Now()
	sink, err := a.enc.Begin(ctx, path, a.fps, a.size)
	if err != nil {
		_ = os.RemoveAll(path)
		return Artifact{}, fmt.Errorf("%s: open %s: %w", a.enc.Name(), path, err)
	}
	for i, f := range a.frames {
		if err := sink.Write(f); err != nil {
			_ = sink.Close()
			_ = os.RemoveAll(path)
			return Artifact{}, fmt.Errorf("%s: write frame %d: %w", a.enc.Name(), i, err)
		}
	}
	if err := sink.Close(); err != nil {
		_ = os.RemoveAll(path)
		return Artifact{}, fmt.Errorf("%s: finish %s: %w", a.enc.Name(), path, err)
	}

	art := Artifact{
		Path:     path,
		Encoder:  a.enc.Name(),
		Frames:   len(a.frames),
		FPS:      a.fps,
		Duration: time.Duration(float64(len(a.frames)) / a.fps * float64(time.Second)),
	}
	a.debug(fmt.Sprintf("wrote %d frames to %s in %v", art.Frames, path, time.Since(start)))
	return art, nil
}

// ArtifactName is output_YYYYMMDD_HHMMSS plus a short run id suffix.
func ArtifactName(now time.Time, runID string) string {
	name := "output_" + now.Format("20060102_150405")
	if len(runID) > 8 {
		runID = runID[:8]
	}
	if runID != "" {
		name += "_" + runID
	}
	return name
}
