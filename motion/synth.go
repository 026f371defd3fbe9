// Package motion expands navigation commands into sequences of committed
// poses: fixed angular steps for turns, and face-then-walk straight lines for
// moves, with a navigability check on every translation step.
package motion

import (
	"context"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"navreel/backend"
	"navreel/command"
	"navreel/failure"
	"navreel/geom"
)

const (
	// remainders smaller than this are float noise, not a corrective step
	remainderEpsilonDeg = 1e-9
	countEpsilon        = 1e-9
)

// Config holds the step sizes.
type Config struct {
	AngularStepDeg     float64 // degrees per rotation increment (default 1.0)
	LinearStepM        float64 // metres per translation increment (default 0.05)
	FacingSteps        int     // slerp steps when turning toward a move target (default 10)
	FacingToleranceDeg float64 // skip the facing phase below this misalignment (default 0.5)
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		AngularStepDeg:     1.0,
		LinearStepM:        0.05,
		FacingSteps:        10,
		FacingToleranceDeg: 0.5,
	}
}

func (c Config) validate() error {
	if !(c.AngularStepDeg > 0) || !(c.LinearStepM > 0) || c.FacingSteps < 1 || c.FacingToleranceDeg < 0 {
		return fmt.Errorf("invalid motion config %+v", c)
	}
	return nil
}

// Step is one committed pose.
type Step struct {
	CommandIndex int
	Index        int // position of this step within its command, from 0
	Phase        Phase
	Pose         geom.Pose
}

// Synthesizer plans motions against a navigability oracle. It keeps no pose
// of its own; the caller owns the pose and passes it to Plan.
type Synthesizer struct {
	cfg            Config
	oracle         backend.Oracle
	state          State
	onStateChanged func(oldState, newState State, commandIndex int)
	debugMsg       func(component, message string)
}

// New validates cfg and returns an idle synthesizer.
func New(cfg Config, oracle backend.Oracle) (*Synthesizer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if oracle == nil {
		return nil, fmt.Errorf("motion synthesizer needs a navigability oracle")
	}
	return &Synthesizer{cfg: cfg, oracle: oracle, state: Idle}, nil
}

// SetDebugFunction installs a component-tagged debug sink.
func (s *Synthesizer) SetDebugFunction(fn func(component, message string)) {
	s.debugMsg = fn
}

func (s *Synthesizer) debug(message string) {
	if s.debugMsg != nil {
		s.debugMsg("MOTION", message)
	}
}

// Plan prepares cmd starting from pose. Move targets are resolved here, so an
// unresolvable target fails before any step is produced.
func (s *Synthesizer) Plan(ctx context.Context, index int, from geom.Pose, cmd command.Command) (*Motion, error) {
	m := &Motion{syn: s, index: index, cmd: cmd, start: from}
	switch cmd.Kind {
	case command.KindRotate:
		m.increments = s.rotationIncrements(cmd.Direction, cmd.Degrees)
		m.initial = Rotating
	case command.KindMove:
		if err := s.planMove(ctx, m); err != nil {
			s.changeState(Failed, index)
			return nil, err
		}
		m.initial = FacingTarget
		if m.facingSteps == 0 {
			m.initial = Translating
		}
	default:
		return nil, failure.New(failure.KindValidation, index, "unknown command kind %d", cmd.Kind)
	}
	m.Reset()
	return m, nil
}

// rotationIncrements splits a turn into whole angular steps plus one
// corrective remainder step. Left turns are positive yaw.
func (s *Synthesizer) rotationIncrements(dir command.Direction, degrees float64) []float64 {
	step := s.cfg.AngularStepDeg
	n := int(math.Floor(degrees/step + countEpsilon))
	incs := make([]float64, 0, n+1)
	for i := 0; i < n; i++ {
		incs = append(incs, dir.Sign()*step)
	}
	if rem := degrees - float64(n)*step; rem > remainderEpsilonDeg {
		incs = append(incs, dir.Sign()*rem)
	}
	return incs
}

func (s *Synthesizer) planMove(ctx context.Context, m *Motion) error {
	x, z := m.cmd.X, m.cmd.Z
	target, ok, err := s.oracle.NearestNavigable(ctx, x, z)
	if err != nil {
		return failure.Wrap(failure.KindBackend, m.index, "nearest navigable query", err)
	}
	if !ok {
		return failure.New(failure.KindResolution, m.index,
			"no navigable point near (%.2f, %.2f)", x, z)
	}
	m.target = target

	delta := target.Sub(m.start.Position)
	facing, ok := geom.FacingQuat(delta.X(), delta.Z())
	if !ok {
		facing = m.start.Orientation
	}
	m.facing = facing
	if geom.AngleBetween(m.start.Orientation, facing) > s.cfg.FacingToleranceDeg {
		m.facingSteps = s.cfg.FacingSteps
	}
	m.distance = delta.Len()
	m.translateSteps = int(math.Floor(m.distance/s.cfg.LinearStepM + countEpsilon))
	s.debug(fmt.Sprintf("command %d: (%.2f, %.2f) resolved to (%.3f, %.3f, %.3f), %.3fm, %d facing + %d translate steps",
		m.index, x, z, target.X(), target.Y(), target.Z(), m.distance, m.facingSteps, m.translateSteps))
	return nil
}

// Motion is a finite, restartable generator of committed steps for one command.
type Motion struct {
	syn   *Synthesizer
	index int
	cmd   command.Command
	start geom.Pose

	initial State

	// rotation
	increments []float64

	// move
	target         mgl64.Vec3
	facing         mgl64.Quat
	facingSteps    int
	translateSteps int
	distance       float64

	// cursor
	pose    geom.Pose
	emitted int
	done    bool
	err     error
}

// Reset rewinds the motion to its start pose.
func (m *Motion) Reset() {
	m.pose = m.start
	m.emitted = 0
	m.done = false
	m.err = nil
	m.syn.changeState(m.initial, m.index)
}

// Command returns the command being executed.
func (m *Motion) Command() command.Command { return m.cmd }

// Pose is the last committed pose, or the start pose before the first step.
func (m *Motion) Pose() geom.Pose { return m.pose }

// Target is the resolved move target; zero for rotations.
func (m *Motion) Target() mgl64.Vec3 { return m.target }

// Planned is the number of steps the motion yields if nothing blocks it.
func (m *Motion) Planned() int {
	if m.cmd.Kind == command.KindRotate {
		return len(m.increments)
	}
	return m.facingSteps + m.translateSteps + 1
}

// Next produces the next committed step. It returns ok=false once the motion
// is finished; a collision or backend failure is returned as err and repeats
// on further calls.
func (m *Motion) Next(ctx context.Context) (step Step, ok bool, err error) {
	if m.err != nil {
		return Step{}, false, m.err
	}
	if m.done {
		return Step{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return Step{}, false, m.fail(failure.Wrap(failure.KindBackend, m.index, "cancelled", err))
	}

	var phase Phase
	if m.cmd.Kind == command.KindRotate {
		phase, ok = m.nextRotation()
	} else {
		phase, ok, err = m.nextMove(ctx)
		if err != nil {
			return Step{}, false, m.fail(err)
		}
	}
	if !ok {
		m.done = true
		m.syn.changeState(Idle, m.index)
		return Step{}, false, nil
	}

	step = Step{CommandIndex: m.index, Index: m.emitted, Phase: phase, Pose: m.pose}
	m.emitted++
	return step, true, nil
}

func (m *Motion) fail(err error) error {
	m.err = err
	m.syn.changeState(Failed, m.index)
	return err
}

func (m *Motion) nextRotation() (Phase, bool) {
	if m.emitted >= len(m.increments) {
		return "", false
	}
	rot := geom.YawQuat(m.increments[m.emitted])
	m.pose.Orientation = geom.Compose(rot, m.pose.Orientation)
	return PhaseRotate, true
}

func (m *Motion) nextMove(ctx context.Context) (Phase, bool, error) {
	i := m.emitted
	switch {
	case i < m.facingSteps:
		t := float64(i+1) / float64(m.facingSteps)
		m.pose.Orientation = geom.Slerp(m.start.Orientation, m.facing, t)
		return PhaseFacing, true, nil

	case i < m.facingSteps+m.translateSteps:
		if i == m.facingSteps {
			m.syn.changeState(Translating, m.index)
		}
		k := i - m.facingSteps + 1
		delta := m.target.Sub(m.start.Position)
		candidate := m.start.Position.Add(delta.Mul(float64(k) / float64(m.translateSteps)))
		free, err := m.syn.oracle.IsNavigable(ctx, candidate)
		if err != nil {
			return "", false, failure.Wrap(failure.KindBackend, m.index, "navigability query", err)
		}
		if !free {
			return "", false, failure.New(failure.KindCollision, m.index,
				"blocked at step %d of %d at (%.3f, %.3f, %.3f)",
				k, m.translateSteps, candidate.X(), candidate.Y(), candidate.Z())
		}
		m.pose = geom.Pose{Position: candidate, Orientation: m.facing}
		return PhaseTranslate, true, nil

	case i == m.facingSteps+m.translateSteps:
		if m.translateSteps == 0 {
			m.syn.changeState(Translating, m.index)
		}
		m.pose = geom.Pose{Position: m.target, Orientation: m.facing}
		return PhaseSnap, true, nil
	}
	return "", false, nil
}

// Run drains m, calling commit for every step in order. It stops at the first
// error from the motion or from commit.
func Run(ctx context.Context, m *Motion, commit func(Step) error) (int, error) {
	n := 0
	for {
		step, ok, err := m.Next(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		if err := commit(step); err != nil {
			return n, err
		}
		n++
	}
}
