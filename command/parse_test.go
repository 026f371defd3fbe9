package command

import (
	"errors"
	"testing"

	"navreel/failure"
)

func TestParseJSONMixedForms(t *testing.T) {
	cmds, err := ParseJSON([]byte(`[
		["left", 90],
		[1.5, -2],
		{"type": "rotate", "direction": "right", "degrees": 45.5},
		{"type": "move", "x": 0, "z": 3}
	]`))
	if err != nil {
		t.Fatal(err)
	}
	want := []Command{
		Rotate(Left, 90),
		MoveTo(1.5, -2),
		Rotate(Right, 45.5),
		MoveTo(0, 3),
	}
	if len(cmds) != len(want) {
		t.Fatalf("got %d commands", len(cmds))
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Fatalf("command %d: got %+v want %+v", i, cmds[i], want[i])
		}
	}
}

func TestParseGoValues(t *testing.T) {
	cmds, err := Parse([]any{[]any{"right", 360}, []float64{2, 4}})
	if err != nil {
		t.Fatal(err)
	}
	if cmds[0] != Rotate(Right, 360) || cmds[1] != MoveTo(2, 4) {
		t.Fatalf("got %+v", cmds)
	}
}

func TestParseRejectsWithIndex(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		index  int
		reason string
	}{
		{"bad direction", `[["left", 10], ["up", 90]]`, 1, "Invalid direction 'up', must be 'left' or 'right'"},
		{"upper case direction", `[["LEFT", 90]]`, 0, "Invalid direction 'LEFT', must be 'left' or 'right'"},
		{"padded direction", `[[1, 2], [" right ", 90]]`, 1, "Invalid direction ' right ', must be 'left' or 'right'"},
		{"object mixed case direction", `[{"type": "rotate", "direction": "Left", "degrees": 30}]`, 0, "Invalid direction 'Left', must be 'left' or 'right'"},
		{"zero angle", `[["left", 0]]`, 0, "Angle must be between 0 and 360 degrees"},
		{"angle too big", `[[1, 2], [3, 4], ["right", 361]]`, 2, "Angle must be between 0 and 360 degrees"},
		{"string angle", `[["left", "90"]]`, 0, "Angle must be a number"},
		{"string coordinate", `[[1, "a"]]`, 0, "Both coordinates must be numbers"},
		{"three elements", `[[1, 2], [1, 2, 3]]`, 1, "Must have exactly 2 elements"},
		{"bool element", `[[true, 2]]`, 0, "Elements must be a direction string or numbers"},
		{"object missing z", `[{"type": "move", "x": 1}]`, 0, "Both coordinates must be numbers"},
		{"object unknown type", `[{"type": "jump"}]`, 0, "Object command type must be 'rotate' or 'move'"},
		{"scalar", `[["left", 5], 7]`, 1, "Command must be a 2-element list or an object"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseJSON([]byte(tc.input))
			if !errors.Is(err, failure.Validation) {
				t.Fatalf("expected validation failure, got %v", err)
			}
			fe := failure.As(err)
			if fe.CommandIndex != tc.index {
				t.Fatalf("index=%d want %d", fe.CommandIndex, tc.index)
			}
			if fe.Message != tc.reason {
				t.Fatalf("reason=%q want %q", fe.Message, tc.reason)
			}
		})
	}
}

func TestParseJSONDocumentErrors(t *testing.T) {
	for _, in := range []string{`{"type":"move"}`, `not json`, `[]`} {
		_, err := ParseJSON([]byte(in))
		fe := failure.As(err)
		if fe == nil || fe.Kind != failure.KindValidation || fe.CommandIndex != -1 {
			t.Fatalf("%s: got %v", in, err)
		}
	}
}
