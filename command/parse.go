package command

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"navreel/failure"
)

// entrySchema checks the shape of one descriptor; value ranges are checked in code
// so the rejection reason stays readable.
const entrySchema = `{
	"oneOf": [
		{
			"type": "array",
			"minItems": 2,
			"maxItems": 2,
			"items": {"type": ["string", "number"]}
		},
		{
			"type": "object",
			"required": ["type", "direction", "degrees"],
			"properties": {
				"type": {"const": "rotate"},
				"direction": {"type": "string"},
				"degrees": {"type": "number"}
			}
		},
		{
			"type": "object",
			"required": ["type", "x", "z"],
			"properties": {
				"type": {"const": "move"},
				"x": {"type": "number"},
				"z": {"type": "number"}
			}
		}
	]
}`

var entry = jsonschema.MustCompileString("command-entry.json", entrySchema)

// ParseJSON decodes a JSON array of descriptors and parses it.
func ParseJSON(data []byte) ([]Command, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, failure.Wrap(failure.KindValidation, -1, "command sequence is not valid JSON", err)
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, failure.New(failure.KindValidation, -1, "command sequence must be a JSON array")
	}
	return Parse(list)
}

// Parse validates every descriptor and returns the typed sequence, or a
// validation failure carrying the index of the first bad entry.
// Descriptors are ["left"|"right", degrees], [x, z],
// {"type":"rotate","direction":..,"degrees":..} or {"type":"move","x":..,"z":..}.
func Parse(descriptors []any) ([]Command, error) {
	if len(descriptors) == 0 {
		return nil, failure.New(failure.KindValidation, -1, "command sequence is empty")
	}
	cmds := make([]Command, 0, len(descriptors))
	for i, d := range descriptors {
		c, reason := parseOne(d)
		if reason != "" {
			return nil, failure.New(failure.KindValidation, i, "%s", reason)
		}
		cmds = append(cmds, c)
	}
	return cmds, nil
}

func parseOne(d any) (Command, string) {
	v, err := normalize(d)
	if err != nil {
		return Command{}, "Command is not JSON-representable"
	}
	if err := entry.Validate(v); err != nil {
		return Command{}, shapeReason(v)
	}
	switch x := v.(type) {
	case []any:
		if s, ok := x[0].(string); ok {
			deg, ok := x[1].(float64)
			if !ok {
				return Command{}, "Angle must be a number"
			}
			return rotation(s, deg)
		}
		return movement(x[0], x[1])
	case map[string]any:
		if x["type"] == "rotate" {
			return rotation(x["direction"].(string), x["degrees"].(float64))
		}
		return movement(x["x"], x["z"])
	}
	return Command{}, shapeReason(v)
}

func rotation(dir string, deg float64) (Command, string) {
	d := Direction(dir)
	if d != Left && d != Right {
		return Command{}, fmt.Sprintf("Invalid direction '%s', must be 'left' or 'right'", dir)
	}
	if math.IsNaN(deg) || deg <= 0 || deg > 360 {
		return Command{}, "Angle must be between 0 and 360 degrees"
	}
	return Rotate(d, deg), ""
}

func movement(a, b any) (Command, string) {
	x, okX := a.(float64)
	z, okZ := b.(float64)
	if !okX || !okZ || math.IsNaN(x) || math.IsNaN(z) || math.IsInf(x, 0) || math.IsInf(z, 0) {
		return Command{}, "Both coordinates must be numbers"
	}
	return MoveTo(x, z), ""
}

func shapeReason(v any) string {
	switch x := v.(type) {
	case []any:
		if len(x) != 2 {
			return "Must have exactly 2 elements"
		}
		return "Elements must be a direction string or numbers"
	case map[string]any:
		switch x["type"] {
		case "rotate":
			return "Rotate needs a string direction and numeric degrees"
		case "move":
			return "Both coordinates must be numbers"
		}
		return "Object command type must be 'rotate' or 'move'"
	}
	return "Command must be a 2-element list or an object"
}

// normalize maps arbitrary Go values onto the generic JSON model so
// callers may hand in []any{"left", 90} as well as decoded JSON.
func normalize(d any) (any, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}
