package assembler

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"

	"navreel/pkg/ffmpeg"
)

// VideoEncoder writes through OpenCV's VideoWriter.
type VideoEncoder struct {
	Codec string // fourcc, default mp4v
	Ext   string // default .mp4
}

func (e VideoEncoder) Name() string { return "gocv" }

func (e VideoEncoder) Extension() string {
	if e.Ext == "" {
		return ".mp4"
	}
	return e.Ext
}

func (e VideoEncoder) Begin(ctx context.Context, path string, fps float64, size image.Point) (Sink, error) {
	codec := e.Codec
	if codec == "" {
		codec = "mp4v"
	}
	vw, err := gocv.VideoWriterFile(path, codec, fps, size.X, size.Y, true)
	if err != nil {
		return nil, err
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("video writer for codec %s did not open", codec)
	}
	return &videoSink{vw: vw}, nil
}

type videoSink struct {
	vw *gocv.VideoWriter
}

func (s *videoSink) Write(frame gocv.Mat) error { return s.vw.Write(frame) }

func (s *videoSink) Close() error { return s.vw.Close() }

// FFmpegEncoder pipes raw bgr24 frames into an ffmpeg child.
type FFmpegEncoder struct {
	Binary string
	Codec  string // default libx264
	Preset string
	CRF    int
}

func (e FFmpegEncoder) Name() string { return "ffmpeg" }

func (e FFmpegEncoder) Extension() string { return ".mp4" }

func (e FFmpegEncoder) Begin(ctx context.Context, path string, fps float64, size image.Point) (Sink, error) {
	p, err := ffmpeg.Start(ctx, ffmpeg.EncodeArgs{
		Binary: e.Binary,
		Width:  size.X,
		Height: size.Y,
		FPS:    fps,
		Codec:  e.Codec,
		Preset: e.Preset,
		CRF:    e.CRF,
		Output: path,
	})
	if err != nil {
		return nil, err
	}
	return &ffmpegSink{pipe: p}, nil
}

type ffmpegSink struct {
	pipe *ffmpeg.Pipe
}

func (s *ffmpegSink) Write(frame gocv.Mat) error {
	raw, err := frame.DataPtrUint8()
	if err != nil {
		return err
	}
	return s.pipe.WriteFrame(raw)
}

func (s *ffmpegSink) Close() error { return s.pipe.Close() }

// JPEGEncoder writes a directory of numbered JPEG files.
type JPEGEncoder struct {
	Quality int
}

func (e JPEGEncoder) Name() string { return "jpeg" }

func (e JPEGEncoder) Extension() string { return "" }

func (e JPEGEncoder) Begin(ctx context.Context, path string, fps float64, size image.Point) (Sink, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	q := e.Quality
	if q <= 0 || q > 100 {
		q = 95
	}
	return &jpegSink{dir: path, quality: q}, nil
}

type jpegSink struct {
	dir     string
	quality int
	n       int
}

// FrameFile is the name of the i-th frame in a JPEG sequence.
func FrameFile(i int) string {
	return fmt.Sprintf("frame_%05d.jpg", i)
}

func (s *jpegSink) Write(frame gocv.Mat) error {
	path := filepath.Join(s.dir, FrameFile(s.n))
	if !gocv.IMWriteWithParams(path, frame, []int{int(gocv.IMWriteJpegQuality), s.quality}) {
		return fmt.Errorf("failed to write %s", path)
	}
	s.n++
	return nil
}

func (s *jpegSink) Close() error { return nil }

// EncoderFor maps a configured encoder name onto an Encoder.
func EncoderFor(name, codec, ffmpegPath string, jpegQuality int) (Encoder, error) {
	switch name {
	case "gocv", "":
		return VideoEncoder{Codec: codec}, nil
	case "ffmpeg":
		return FFmpegEncoder{Binary: ffmpegPath, Preset: "medium", CRF: 20}, nil
	case "jpeg":
		return JPEGEncoder{Quality: jpegQuality}, nil
	}
	return nil, fmt.Errorf("unknown encoder %q", name)
}
