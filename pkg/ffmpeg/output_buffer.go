package ffmpeg

import (
	"strings"
	"sync"
)

// OutputBuffer keeps the most recent lines a child process printed, for error reports.
type OutputBuffer struct {
	lines    []string
	maxLines int
	index    int
	full     bool
	mutex    sync.RWMutex
}

// NewOutputBuffer creates a circular buffer holding up to maxLines lines
func NewOutputBuffer(maxLines int) *OutputBuffer {
	if maxLines < 1 {
		maxLines = 1
	}
	return &OutputBuffer{
		lines:    make([]string, maxLines),
		maxLines: maxLines,
	}
}

// Add stores a line, evicting the oldest once full
func (ob *OutputBuffer) Add(line string) {
	ob.mutex.Lock()
	defer ob.mutex.Unlock()

	ob.lines[ob.index] = line
	ob.index = (ob.index + 1) % ob.maxLines
	if ob.index == 0 {
		ob.full = true
	}
}

// GetRecent returns the stored lines, oldest first
func (ob *OutputBuffer) GetRecent() []string {
	ob.mutex.RLock()
	defer ob.mutex.RUnlock()

	if !ob.full {
		return append([]string(nil), ob.lines[:ob.index]...)
	}
	out := make([]string, 0, ob.maxLines)
	out = append(out, ob.lines[ob.index:]...)
	return append(out, ob.lines[:ob.index]...)
}

// Tail joins the last n stored lines.
func (ob *OutputBuffer) Tail(n int) string {
	recent := ob.GetRecent()
	if n > 0 && len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	return strings.Join(recent, "\n")
}
