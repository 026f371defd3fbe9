package assembler

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"navreel/failure"
)

type fakeEncoder struct {
	begun   []string
	written int
	failAt  int // -1 never
}

func (f *fakeEncoder) Name() string      { return "fake" }
func (f *fakeEncoder) Extension() string { return ".bin" }

func (f *fakeEncoder) Begin(ctx context.Context, path string, fps float64, size image.Point) (Sink, error) {
	f.begun = append(f.begun, path)
	if err := os.WriteFile(path, []byte("partial"), 0o644); err != nil {
		return nil, err
	}
	return &fakeSink{enc: f}, nil
}

type fakeSink struct{ enc *fakeEncoder }

func (s *fakeSink) Write(frame gocv.Mat) error {
	if s.enc.failAt >= 0 && s.enc.written == s.enc.failAt {
		return errors.New("disk full")
	}
	s.enc.written++
	return nil
}

func (s *fakeSink) Close() error { return nil }

func frame(w, h int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 128, 255, 0), h, w, gocv.MatTypeCV8UC3)
}

func TestFlushEmptyProducesNoArtifact(t *testing.T) {
	enc := &fakeEncoder{failAt: -1}
	a, err := New(enc, t.TempDir(), 30, image.Pt(8, 4))
	if err != nil {
		t.Fatal(err)
	}
	_, err = a.Flush(context.Background(), "empty")
	if !errors.Is(err, ErrNoArtifact) || !errors.Is(err, failure.NoArtifact) {
		t.Fatalf("err=%v", err)
	}
	if len(enc.begun) != 0 {
		t.Fatal("encoder should not be opened for an empty buffer")
	}
}

func TestFlushWritesInOrderAndResets(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{failAt: -1}
	a, err := New(enc, dir, 30, image.Pt(8, 4))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 45; i++ {
		if err := a.Append(frame(8, 4)); err != nil {
			t.Fatal(err)
		}
	}
	art, err := a.Flush(context.Background(), "run")
	if err != nil {
		t.Fatal(err)
	}
	if art.Frames != 45 || enc.written != 45 {
		t.Fatalf("artifact %+v written %d", art, enc.written)
	}
	if art.Path != filepath.Join(dir, "run.bin") {
		t.Fatalf("path %s", art.Path)
	}
	if art.Duration != 1500*time.Millisecond {
		t.Fatalf("duration %v", art.Duration)
	}
	if a.Len() != 0 {
		t.Fatalf("buffer not reset: %d", a.Len())
	}
}

func TestAppendRejectsWrongSize(t *testing.T) {
	a, err := New(&fakeEncoder{failAt: -1}, t.TempDir(), 30, image.Pt(8, 4))
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Append(frame(4, 4)); err == nil {
		t.Fatal("expected size error")
	}
	if a.Len() != 0 {
		t.Fatal("rejected frame was buffered")
	}
}

func TestFailedWriteRemovesPartialOutput(t *testing.T) {
	dir := t.TempDir()
	enc := &fakeEncoder{failAt: 2}
	a, err := New(enc, dir, 30, image.Pt(8, 4))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		_ = a.Append(frame(8, 4))
	}
	if _, err := a.Flush(context.Background(), "broken"); err == nil {
		t.Fatal("expected write failure")
	}
	if _, err := os.Stat(filepath.Join(dir, "broken.bin")); !os.IsNotExist(err) {
		t.Fatalf("partial output left behind: %v", err)
	}
	if a.Len() != 0 {
		t.Fatal("buffer not reset after failure")
	}
}

func TestJPEGEncoderWritesSequence(t *testing.T) {
	dir := t.TempDir()
	a, err := New(JPEGEncoder{Quality: 90}, dir, 30, image.Pt(16, 8))
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := a.Append(frame(16, 8)); err != nil {
			t.Fatal(err)
		}
	}
	art, err := a.Flush(context.Background(), "seq")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		img := gocv.IMRead(filepath.Join(art.Path, FrameFile(i)), gocv.IMReadColor)
		if img.Empty() {
			t.Fatalf("frame %d unreadable", i)
		}
		if img.Cols() != 16 || img.Rows() != 8 {
			t.Fatalf("frame %d is %dx%d", i, img.Cols(), img.Rows())
		}
		img.Close()
	}
}

func TestArtifactName(t *testing.T) {
	ts := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	if got := ArtifactName(ts, "0123456789abcdef"); got != "output_20260304_050607_01234567" {
		t.Fatalf("got %s", got)
	}
	if got := ArtifactName(ts, ""); got != "output_20260304_050607" {
		t.Fatalf("got %s", got)
	}
}

func TestEncoderFor(t *testing.T) {
	for _, name := range []string{"gocv", "ffmpeg", "jpeg"} {
		enc, err := EncoderFor(name, "mp4v", "ffmpeg", 90)
		if err != nil || enc.Name() != name {
			t.Fatalf("%s: %v %v", name, enc, err)
		}
	}
	if _, err := EncoderFor("gif", "", "", 0); err == nil {
		t.Fatal("unknown encoder accepted")
	}
}
