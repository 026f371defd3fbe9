package motion

import "fmt"

// State of the synthesizer.
type State int

const (
	Idle State = iota
	Rotating
	FacingTarget
	Translating
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "IDLE"
	case Rotating:
		return "ROTATING"
	case FacingTarget:
		return "FACING_TARGET"
	case Translating:
		return "TRANSLATING"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Phase labels the kind of sub-step a committed pose came from.
type Phase string

const (
	PhaseRotate    Phase = "rotate"
	PhaseFacing    Phase = "facing"
	PhaseTranslate Phase = "translate"
	PhaseSnap      Phase = "snap"
)

// SetOnStateChanged registers a callback invoked synchronously on every transition.
func (s *Synthesizer) SetOnStateChanged(callback func(oldState, newState State, commandIndex int)) {
	s.onStateChanged = callback
}

// State returns the current state.
func (s *Synthesizer) State() State {
	return s.state
}

func (s *Synthesizer) changeState(newState State, commandIndex int) {
	oldState := s.state
	if oldState == newState {
		return
	}
	s.state = newState
	s.debug(fmt.Sprintf("command %d: state change: %s -> %s", commandIndex, oldState, newState))
	if s.onStateChanged != nil {
		s.onStateChanged(oldState, newState, commandIndex)
	}
}
