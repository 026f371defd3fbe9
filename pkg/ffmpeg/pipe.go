// Package ffmpeg runs an ffmpeg child process fed with raw frames on stdin.
package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Global debug function for the ffmpeg package
var debugMsgFunc func(string, string)

// SetDebugFunction allows main package to provide debug function
func SetDebugFunction(fn func(string, string)) {
	debugMsgFunc = fn
}

func debugMsg(component, message string) {
	if debugMsgFunc != nil {
		debugMsgFunc(component, message)
	}
}

// EncodeArgs configures an encode of raw bgr24 frames into a file.
type EncodeArgs struct {
	Binary string  // ffmpeg executable
	Width  int     // frame width in pixels
	Height int     // frame height in pixels
	FPS    float64 // output frame rate
	Codec  string  // e.g. libx264
	Preset string
	CRF    int
	Output string
}

// Args builds the ffmpeg argument list (without the binary).
func (e EncodeArgs) Args() []string {
	codec := e.Codec
	if codec == "" {
		codec = "libx264"
	}
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",

		// raw frames from stdin
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", fmt.Sprintf("%dx%d", e.Width, e.Height),
		"-r", fmt.Sprintf("%g", e.FPS),
		"-i", "-",

		"-c:v", codec,
		"-pix_fmt", "yuv420p",
	}
	if e.Preset != "" {
		args = append(args, "-preset", e.Preset)
	}
	if e.CRF > 0 {
		args = append(args, "-crf", fmt.Sprintf("%d", e.CRF))
	}
	return append(args, e.Output)
}

// Pipe is a running ffmpeg encode.
type Pipe struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	writer *bufio.Writer
	stderr *OutputBuffer
	done   sync.WaitGroup
	frames int
}

// Start launches ffmpeg for e.
func Start(ctx context.Context, e EncodeArgs) (*Pipe, error) {
	binary := e.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	cmd := exec.CommandContext(ctx, binary, e.Args()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("could not get FFmpeg stdin: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("could not get FFmpeg stderr: %w", err)
	}

	debugMsg("FFMPEG", fmt.Sprintf("Executing: %s %s", binary, strings.Join(cmd.Args[1:], " ")))
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("could not start FFmpeg: %w", err)
	}

	p := &Pipe{
		cmd:    cmd,
		stdin:  stdin,
		writer: bufio.NewWriterSize(stdin, 4*1024*1024),
		stderr: NewOutputBuffer(50),
	}
	p.done.Add(1)
	go func() {
		defer p.done.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			p.stderr.Add(line)
			debugMsg("FFMPEG_STDERR", line)
		}
	}()
	return p, nil
}

// WriteFrame sends one raw frame.
func (p *Pipe) WriteFrame(raw []byte) error {
	if _, err := p.writer.Write(raw); err != nil {
		return fmt.Errorf("write frame %d to FFmpeg: %w (%s)", p.frames, err, p.stderr.Tail(5))
	}
	p.frames++
	return nil
}

// Close flushes stdin and waits for ffmpeg to finish the file.
func (p *Pipe) Close() error {
	flushErr := p.writer.Flush()
	closeErr := p.stdin.Close()
	p.done.Wait()
	waitErr := p.cmd.Wait()

	switch {
	case waitErr != nil:
		return fmt.Errorf("FFmpeg exited: %w (%s)", waitErr, p.stderr.Tail(5))
	case flushErr != nil:
		return fmt.Errorf("flush FFmpeg stdin: %w", flushErr)
	case closeErr != nil:
		return fmt.Errorf("close FFmpeg stdin: %w", closeErr)
	}
	debugMsg("FFMPEG", fmt.Sprintf("encoded %d frames", p.frames))
	return nil
}
