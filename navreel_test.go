package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"navreel/failure"
	"navreel/session"
)

func TestReportShape(t *testing.T) {
	res := session.Result{
		RunID: "r1",
		Commands: []session.CommandResult{
			{Index: 0, Command: "rotate right 90.0°", Committed: true, Reason: session.ReasonCompleted, FramesAppended: 90},
			{Index: 1, Command: "move to (2.00, 0.00)", Reason: session.ReasonCollision, FramesAppended: 12},
		},
		Frames: 102,
		Err:    failure.New(failure.KindCollision, 1, "blocked at step 13 of 40"),
	}
	var buf bytes.Buffer
	printReport(&buf, newReport(res))

	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("%v: %s", err, buf.String())
	}
	e, ok := got["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object: %s", buf.String())
	}
	if e["kind"] != "COLLISION" || e["command_index"] != float64(1) || e["message"] != "blocked at step 13 of 40" {
		t.Fatalf("error %v", e)
	}
	if got["run_id"] != "r1" || got["frames"] != float64(102) {
		t.Fatalf("report %s", buf.String())
	}
	if _, ok := got["artifact"]; ok {
		t.Fatal("artifact should be omitted")
	}
}

func TestReplStopsAtExit(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("\n  \nexit\n[[\"left\", 10]]\n")
	if code := repl(context.Background(), nil, in, &out); code != 0 {
		t.Fatalf("code=%d", code)
	}
	if out.Len() != 0 {
		t.Fatalf("unexpected output %q", out.String())
	}
}
