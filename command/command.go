// Package command turns raw command descriptors into typed navigation commands.
package command

import "fmt"

// Kind tags a Command variant.
type Kind int

const (
	KindRotate Kind = iota + 1
	KindMove
)

func (k Kind) String() string {
	switch k {
	case KindRotate:
		return "rotate"
	case KindMove:
		return "move"
	default:
		return "unknown"
	}
}

// MarshalText writes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Direction of an in-place turn.
type Direction string

const (
	Left  Direction = "left"
	Right Direction = "right"
)

// Sign is +1 for a left (counter-clockwise seen from above) turn and -1 for right.
func (d Direction) Sign() float64 {
	if d == Right {
		return -1
	}
	return 1
}

// Command is either a rotation by Degrees in Direction, or a move to world (X, Z).
type Command struct {
	Kind      Kind      `json:"type"`
	Direction Direction `json:"direction,omitempty"`
	Degrees   float64   `json:"degrees,omitempty"`
	X         float64   `json:"x,omitempty"`
	Z         float64   `json:"z,omitempty"`
}

// Rotate builds a rotation command.
func Rotate(dir Direction, degrees float64) Command {
	return Command{Kind: KindRotate, Direction: dir, Degrees: degrees}
}

// MoveTo builds a movement command.
func MoveTo(x, z float64) Command {
	return Command{Kind: KindMove, X: x, Z: z}
}

func (c Command) String() string {
	switch c.Kind {
	case KindRotate:
		return fmt.Sprintf("rotate %s %.1f°", c.Direction, c.Degrees)
	case KindMove:
		return fmt.Sprintf("move to (%.2f, %.2f)", c.X, c.Z)
	default:
		return "invalid command"
	}
}
