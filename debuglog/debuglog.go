// Package debuglog is the process-wide debug logger. Every package exposes
// a SetDebugFunction hook; main wires them all to Logger.Msg.
package debuglog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const timeFormat = "15:04:05.000"

type Message struct {
	Timestamp time.Time
	Component string
	Text      string
	RunID     string
}

func (m Message) String() string {
	return fmt.Sprintf("[%s][%s] %s", m.Timestamp.Format(timeFormat), m.Component, m.Text)
}

type writeTask struct {
	file    *os.File
	content string
	close   bool // sync and close file after earlier writes land
}

// Options configures a Logger.
type Options struct {
	Enabled    bool      // console output and run files
	Verbose    bool      // also emit Verbose messages
	Dir        string    // run log directory, "" disables files
	Console    io.Writer // defaults to os.Stderr
	MaxHistory int       // recent messages kept in memory
}

// Logger writes timestamped component messages to the console, keeps a short
// in-memory history, and mirrors messages tagged with a run id into
// <dir>/<run id>.txt through a background writer.
type Logger struct {
	opts Options

	mu       sync.Mutex
	history  []Message
	runFiles map[string]*os.File
	runID    string

	writeQueue    chan writeTask
	stopWorker    chan struct{}
	workerStopped sync.WaitGroup
	closed        bool
}

func New(opts Options) *Logger {
	if opts.Console == nil {
		opts.Console = os.Stderr
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 50
	}
	if opts.Enabled && opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			fmt.Fprintf(opts.Console, "[DEBUG_LOGGER] Failed to create log directory: %v\n", err)
			opts.Dir = ""
		}
	}

	l := &Logger{
		opts:       opts,
		runFiles:   make(map[string]*os.File),
		writeQueue: make(chan writeTask, 256),
		stopWorker: make(chan struct{}),
	}
	if opts.Enabled && opts.Dir != "" {
		l.workerStopped.Add(1)
		go l.fileWriteWorker()
	}
	return l
}

// SetRun tags subsequent messages with runID; "" clears the tag. The previous
// run's file is closed once its pending writes are done.
func (l *Logger) SetRun(runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.runID != "" && l.runID != runID {
		l.releaseRunFile(l.runID)
	}
	l.runID = runID
}

// Msg records a message. The signature matches the SetDebugFunction hooks.
func (l *Logger) Msg(component, message string) {
	msg := Message{Timestamp: time.Now(), Component: component, Text: message}

	l.mu.Lock()
	defer l.mu.Unlock()
	msg.RunID = l.runID

	l.history = append(l.history, msg)
	if len(l.history) > l.opts.MaxHistory {
		l.history = l.history[1:]
	}

	if !l.opts.Enabled {
		return
	}
	fmt.Fprintln(l.opts.Console, msg.String())

	if msg.RunID == "" || l.opts.Dir == "" || l.closed {
		return
	}
	file := l.runFile(msg.RunID)
	if file == nil {
		return
	}
	select {
	case l.writeQueue <- writeTask{file: file, content: msg.String() + "\n"}:
	default:
		// queue full, drop
	}
}

// Verbose records a message only when verbose output is on.
func (l *Logger) Verbose(component, message string) {
	if !l.opts.Verbose {
		return
	}
	l.Msg(component, message)
}

// History returns the recent messages, oldest first.
func (l *Logger) History() []Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Message, len(l.history))
	copy(out, l.history)
	return out
}

// RunLogPath is where messages for runID are mirrored, "" when files are off.
func (l *Logger) RunLogPath(runID string) string {
	if !l.opts.Enabled || l.opts.Dir == "" {
		return ""
	}
	return filepath.Join(l.opts.Dir, runID+".txt")
}

// runFile requires l.mu.
func (l *Logger) runFile(runID string) *os.File {
	if f, ok := l.runFiles[runID]; ok {
		return f
	}
	path := l.RunLogPath(runID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(l.opts.Console, "[DEBUG_LOGGER] Failed to open run log %s: %v\n", path, err)
		return nil
	}
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		fmt.Fprintf(f, "=== RUN LOG: %s ===\nStarted: %s\n\n", runID, time.Now().Format("2006-01-02 15:04:05"))
	}
	l.runFiles[runID] = f
	return f
}

// releaseRunFile requires l.mu. After Close the files are closed by Close itself.
func (l *Logger) releaseRunFile(runID string) {
	f, ok := l.runFiles[runID]
	if !ok || l.closed {
		return
	}
	delete(l.runFiles, runID)
	l.writeQueue <- writeTask{file: f, close: true}
}

func (l *Logger) fileWriteWorker() {
	defer l.workerStopped.Done()
	for {
		select {
		case task := <-l.writeQueue:
			task.apply()
		case <-l.stopWorker:
			for {
				select {
				case task := <-l.writeQueue:
					task.apply()
				default:
					return
				}
			}
		}
	}
}

func (t writeTask) apply() {
	if t.close {
		_ = t.file.Sync()
		_ = t.file.Close()
		return
	}
	_, _ = t.file.WriteString(t.content)
}

// Close drains pending file writes and closes run files.
func (l *Logger) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	if l.opts.Enabled && l.opts.Dir != "" {
		close(l.stopWorker)
		l.workerStopped.Wait()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for id, f := range l.runFiles {
		_ = f.Sync()
		_ = f.Close()
		delete(l.runFiles, id)
	}
}
