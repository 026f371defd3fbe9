package journal

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestIndexRecordAndQuery(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx", "navreel.db")
	ix, err := OpenIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	run := Run{
		ID: "run-1", StartedAt: start, FinishedAt: start.Add(2 * time.Second),
		Backend: "gridworld", Commands: 3, Frames: 48,
		OutcomeKind: "COLLISION", FailedIndex: 1, Message: "blocked at step 8 of 40",
		ArtifactPath: "outputs/output_x.mp4",
	}
	rows := []CommandRow{
		{Index: 0, Description: "rotate right 30.0°", Committed: true, Reason: "completed", FramesAppended: 30},
		{Index: 1, Description: "move to (2.00, 0.00)", Committed: false, Reason: "collision", FramesAppended: 18},
		{Index: 2, Description: "rotate left 10.0°", Committed: false, Reason: "not_run"},
	}
	if err := ix.Record(ctx, run, rows); err != nil {
		t.Fatal(err)
	}
	if err := ix.Record(ctx, Run{ID: "run-2", StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute), FailedIndex: -1}, nil); err != nil {
		t.Fatal(err)
	}

	recent, err := ix.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "run-2" || recent[1].ID != "run-1" {
		t.Fatalf("recent=%+v", recent)
	}
	if !recent[1].StartedAt.Equal(start) || recent[1].Frames != 48 || recent[1].FailedIndex != 1 {
		t.Fatalf("run-1 row %+v", recent[1])
	}

	got, err := ix.Commands(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[1].Reason != "collision" || got[1].Committed || got[1].FramesAppended != 18 {
		t.Fatalf("commands=%+v", got)
	}
	if err := ix.Close(); err != nil {
		t.Fatal(err)
	}

	// the file is a plain sqlite database other tools can read
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM command_results WHERE run_id = 'run-1'`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("command rows=%d", n)
	}
}

func TestRecordDuplicateRunFails(t *testing.T) {
	ix, err := OpenIndex(filepath.Join(t.TempDir(), "navreel.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()
	run := Run{ID: "dup", FailedIndex: -1}
	if err := ix.Record(context.Background(), run, nil); err != nil {
		t.Fatal(err)
	}
	if err := ix.Record(context.Background(), run, nil); err == nil {
		t.Fatal("duplicate run id accepted")
	}
}

func TestTraceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	tw, err := CreateTrace(dir, "run-9")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 100; i++ {
		e := TraceEntry{
			RunID: "run-9", Seq: i, CommandIndex: i / 50, Phase: "translate",
			Position: [3]float64{float64(i) * 0.05, 0.1, 0},
			Rotation: [4]float64{0, 0, 0, 1},
		}
		if err := tw.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if filepath.Base(tw.Path()) != "run-9.jsonl.zst" {
		t.Fatalf("path %s", tw.Path())
	}

	entries, err := ReadTrace(tw.Path())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 100 {
		t.Fatalf("entries=%d", len(entries))
	}
	if entries[99].Seq != 99 || entries[99].CommandIndex != 1 || entries[60].Position[0] != 3 {
		t.Fatalf("entry mismatch %+v %+v", entries[99], entries[60])
	}
}
