package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// TraceEntry is one committed pose.
type TraceEntry struct {
	RunID        string     `json:"run_id"`
	Seq          int        `json:"seq"`
	CommandIndex int        `json:"command_index"`
	Phase        string     `json:"phase"`
	Position     [3]float64 `json:"position"`
	Rotation     [4]float64 `json:"rotation"` // x, y, z, w
}

// TraceWriter appends JSON lines to a zstd-compressed file.
type TraceWriter struct {
	path string
	f    *os.File
	enc  *zstd.Encoder
	w    *bufio.Writer
}

// CreateTrace opens dir/<runID>.jsonl.zst for writing.
func CreateTrace(dir, runID string) (*TraceWriter, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, runID+".jsonl.zst")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &TraceWriter{
		path: path,
		f:    f,
		enc:  enc,
		w:    bufio.NewWriterSize(enc, 64*1024),
	}, nil
}

func (t *TraceWriter) Path() string { return t.path }

func (t *TraceWriter) Write(e TraceEntry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := t.w.Write(b); err != nil {
		return err
	}
	return t.w.WriteByte('\n')
}

func (t *TraceWriter) Close() error {
	var firstErr error
	if err := t.w.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := t.enc.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := t.f.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ReadTrace decodes every entry of a trace file.
func ReadTrace(path string) ([]TraceEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer dec.Close()

	var out []TraceEntry
	jd := json.NewDecoder(dec)
	for {
		var e TraceEntry
		if err := jd.Decode(&e); err == io.EOF {
			break
		} else if err != nil {
			return out, fmt.Errorf("%s entry %d: %w", path, len(out), err)
		}
		out = append(out, e)
	}
	return out, nil
}
