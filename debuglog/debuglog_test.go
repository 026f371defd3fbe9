package debuglog

import (
	"bytes"
	"os"
	"strings"
	"testing"
)

func TestDisabledKeepsHistoryOnly(t *testing.T) {
	var console bytes.Buffer
	l := New(Options{Console: &console, MaxHistory: 3})
	defer l.Close()

	for _, m := range []string{"a", "b", "c", "d"} {
		l.Msg("TEST", m)
	}
	if console.Len() != 0 {
		t.Fatalf("disabled logger wrote %q", console.String())
	}
	h := l.History()
	if len(h) != 3 || h[0].Text != "b" || h[2].Text != "d" {
		t.Fatalf("history=%+v", h)
	}
}

func TestConsoleFormatAndVerboseGate(t *testing.T) {
	var console bytes.Buffer
	l := New(Options{Enabled: true, Console: &console})
	defer l.Close()

	l.Msg("MOTION", "rotate right 90.0°")
	l.Verbose("MOTION", "step 1")

	out := console.String()
	if !strings.Contains(out, "][MOTION] rotate right 90.0°") || !strings.HasPrefix(out, "[") {
		t.Fatalf("console=%q", out)
	}
	if strings.Contains(out, "step 1") {
		t.Fatalf("verbose message leaked: %q", out)
	}
}

func TestRunFileMirrorsTaggedMessages(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer
	l := New(Options{Enabled: true, Verbose: true, Dir: dir, Console: &console})

	l.Msg("SESSION", "before run")
	l.SetRun("run-abc")
	l.Msg("SESSION", "inside run")
	l.Verbose("MOTION", "detail")
	l.SetRun("")
	l.Msg("SESSION", "after run")
	l.Close()

	b, err := os.ReadFile(l.RunLogPath("run-abc"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	if !strings.Contains(got, "=== RUN LOG: run-abc ===") ||
		!strings.Contains(got, "[SESSION] inside run") ||
		!strings.Contains(got, "[MOTION] detail") {
		t.Fatalf("run file=%q", got)
	}
	if strings.Contains(got, "before run") || strings.Contains(got, "after run") {
		t.Fatalf("untagged message in run file: %q", got)
	}
}

func TestRunFileReleasedWhenRunEnds(t *testing.T) {
	dir := t.TempDir()
	l := New(Options{Enabled: true, Dir: dir, Console: &bytes.Buffer{}})

	for _, id := range []string{"run-1", "run-2", "run-1"} {
		l.SetRun(id)
		l.Msg("SESSION", "working on "+id)
		l.SetRun("")

		l.mu.Lock()
		open := len(l.runFiles)
		l.mu.Unlock()
		if open != 0 {
			t.Fatalf("after %s: %d run files still open", id, open)
		}
	}
	l.Close()

	b, err := os.ReadFile(l.RunLogPath("run-1"))
	if err != nil {
		t.Fatal(err)
	}
	got := string(b)
	if strings.Count(got, "=== RUN LOG: run-1 ===") != 1 || strings.Count(got, "working on run-1") != 2 {
		t.Fatalf("run-1 file=%q", got)
	}
}
