// Package session runs command sequences end to end against one backend:
// validate, synthesize motion, render and composite every committed pose,
// and assemble the frames into a single artifact per invocation.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"navreel/assembler"
	"navreel/backend"
	"navreel/command"
	"navreel/config"
	"navreel/failure"
	"navreel/geom"
	"navreel/journal"
	"navreel/mapping"
	"navreel/motion"
	"navreel/overlay"
)

// Abort policies for resolution and collision failures.
const (
	AbortQueue   = "queue"   // cancel every remaining command
	AbortCommand = "command" // skip only the failing command
)

// Reason is why a command ended.
type Reason string

const (
	ReasonCompleted        Reason = "completed"
	ReasonResolutionFailed Reason = "resolution_failed"
	ReasonCollision        Reason = "collision"
	ReasonBackendFailed    Reason = "backend_failed"
	ReasonNotRun           Reason = "not_run"
)

func reasonFor(err error) Reason {
	switch k, _ := failure.KindOf(err); k {
	case failure.KindResolution:
		return ReasonResolutionFailed
	case failure.KindCollision:
		return ReasonCollision
	default:
		return ReasonBackendFailed
	}
}

// Options wires a session. Encoder is required; Journal is optional.
type Options struct {
	Motion           motion.Config
	AbortPolicy      string
	BaseMap          overlay.BaseMapOptions
	Overlay          overlay.Options
	RoundTripEpsilon float64
	StartFrame       bool // emit one frame of the pose before the first command

	Encoder   assembler.Encoder
	OutputDir string
	FPS       float64

	Journal  *journal.Index
	TraceDir string // "" disables pose traces
}

// OptionsFromConfig maps configuration onto session options, building the
// configured encoder.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	enc, err := assembler.EncoderFor(cfg.Output.Encoder, cfg.Output.Codec, cfg.Output.FFmpegPath, cfg.Output.JPEGQuality)
	if err != nil {
		return Options{}, failure.Wrap(failure.KindConfig, -1, "output encoder", err)
	}
	opts := Options{
		Motion: motion.Config{
			AngularStepDeg:     cfg.Motion.AngularStepDeg,
			LinearStepM:        cfg.Motion.LinearStepM,
			FacingSteps:        cfg.Motion.FacingSteps,
			FacingToleranceDeg: cfg.Motion.FacingToleranceDeg,
		},
		AbortPolicy: cfg.Motion.AbortPolicy,
		BaseMap: overlay.BaseMapOptions{
			Padding:       cfg.Map.Padding,
			MaxResolution: cfg.Map.MaxResolution,
			Decorate:      cfg.Map.Decorate,
		},
		Overlay: overlay.Options{
			PaneWidth:    cfg.Render.PaneWidth,
			PaneHeight:   cfg.Render.PaneHeight,
			MarkerRadius: cfg.Map.MarkerRadius,
			ArrowLength:  cfg.Map.ArrowLength,
			HUD:          cfg.Render.HUD,
		},
		RoundTripEpsilon: cfg.Map.RoundTripEpsilon,
		StartFrame:       cfg.Render.StartFrame,
		Encoder:          enc,
		OutputDir:        cfg.Output.Dir,
		FPS:              cfg.Output.FPS,
	}
	if cfg.Journal.Enabled {
		opts.TraceDir = cfg.Journal.TraceDir
	}
	return opts, nil
}

// CommandResult reports how one command of an invocation ended.
type CommandResult struct {
	Index          int    `json:"index"`
	Command        string `json:"command"`
	Committed      bool   `json:"committed"`
	Reason         Reason `json:"reason"`
	FramesAppended int    `json:"frames_appended"`
}

// Result is the outcome of one invocation. Err is nil only when every command
// completed and the artifact was written.
type Result struct {
	RunID     string              `json:"run_id"`
	Commands  []CommandResult     `json:"commands"`
	Frames    int                 `json:"frames"`
	Artifact  *assembler.Artifact `json:"artifact,omitempty"`
	TracePath string              `json:"trace_path,omitempty"`
	Pose      geom.Pose           `json:"-"`
	Err       error               `json:"-"`
}

// Session owns the agent pose, the scene bounds and map transform computed at
// start, and the frame buffer. It is reused across invocations; the pose
// carries over.
type Session struct {
	opts    Options
	backend backend.Backend
	bounds  geom.Bounds
	mapper  *mapping.Mapper
	comp    *overlay.Compositor
	synth   *motion.Synthesizer
	asm     *assembler.Assembler
	pose    geom.Pose

	// per run
	runID string
	trace *journal.TraceWriter
	seq   int

	now          func() time.Time
	newRunID     func() string
	debugMsg     func(component, message string)
	onRunChanged func(runID string)
}

// New queries the scene once (bounds, top-down map, start pose) and prepares
// the map transform and compositor. b stays owned by the caller.
func New(ctx context.Context, b backend.Backend, opts Options) (*Session, error) {
	if opts.AbortPolicy == "" {
		opts.AbortPolicy = AbortQueue
	}
	if opts.AbortPolicy != AbortQueue && opts.AbortPolicy != AbortCommand {
		return nil, failure.New(failure.KindConfig, -1, "unknown abort policy %q", opts.AbortPolicy)
	}
	if opts.RoundTripEpsilon <= 0 {
		opts.RoundTripEpsilon = mapping.DefaultRoundTripEpsilon
	}

	bounds, err := b.SceneBounds(ctx)
	if err != nil {
		return nil, failure.Wrap(failure.KindBackend, -1, "scene bounds", err)
	}
	raw, err := b.BaseTopDownMap(ctx)
	if err != nil {
		return nil, failure.Wrap(failure.KindBackend, -1, "top-down map", err)
	}
	defer raw.Close()

	base, tf, err := overlay.BuildBaseMap(raw, bounds, opts.BaseMap)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfig, -1, "base map", err)
	}
	defer base.Close()

	mapper, err := mapping.New(bounds, tf)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfig, -1, "map transform", err)
	}
	if _, worst := mapper.Sweep(11); !worst.Acceptable(opts.RoundTripEpsilon) {
		return nil, failure.New(failure.KindConfig, -1,
			"map round trip error %.3f at (%.2f, %.2f) exceeds %.3f; raise map.max_resolution",
			worst.Error, worst.X, worst.Z, opts.RoundTripEpsilon)
	}

	comp, err := overlay.NewCompositor(base, mapper, opts.Overlay)
	if err != nil {
		return nil, failure.Wrap(failure.KindConfig, -1, "compositor", err)
	}
	synth, err := motion.New(opts.Motion, b)
	if err != nil {
		comp.Close()
		return nil, failure.Wrap(failure.KindConfig, -1, "motion", err)
	}
	asm, err := assembler.New(opts.Encoder, opts.OutputDir, opts.FPS, comp.FrameSize())
	if err != nil {
		comp.Close()
		return nil, failure.Wrap(failure.KindConfig, -1, "assembler", err)
	}
	start, err := b.StartPose(ctx)
	if err != nil {
		comp.Close()
		return nil, failure.Wrap(failure.KindBackend, -1, "start pose", err)
	}

	s := &Session{
		opts:     opts,
		backend:  b,
		bounds:   bounds,
		mapper:   mapper,
		comp:     comp,
		synth:    synth,
		asm:      asm,
		pose:     start,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
	synth.SetOnStateChanged(func(oldState, newState motion.State, commandIndex int) {
		s.debug("MOTION", fmt.Sprintf("command %d: %s -> %s", commandIndex, oldState, newState))
	})
	return s, nil
}

// SetDebugFunction installs a component-tagged debug sink for the session and
// its synthesizer and assembler.
func (s *Session) SetDebugFunction(fn func(component, message string)) {
	s.debugMsg = fn
	s.synth.SetDebugFunction(fn)
	s.asm.SetDebugFunction(fn)
}

// SetOnRunChanged is called with the run id when an invocation starts and
// with "" when it ends.
func (s *Session) SetOnRunChanged(callback func(runID string)) {
	s.onRunChanged = callback
}

func (s *Session) debug(component, message string) {
	if s.debugMsg != nil {
		s.debugMsg(component, message)
	}
}

func (s *Session) Pose() geom.Pose         { return s.pose }
func (s *Session) Bounds() geom.Bounds     { return s.bounds }
func (s *Session) Mapper() *mapping.Mapper { return s.mapper }
func (s *Session) FrameSize() image.Point  { return s.comp.FrameSize() }

// Close releases the compositor and any buffered frames.
func (s *Session) Close() error {
	s.asm.Discard()
	return s.comp.Close()
}

// ExecuteJSON validates a raw JSON command document and executes it.
func (s *Session) ExecuteJSON(ctx context.Context, data []byte) Result {
	cmds, err := command.ParseJSON(data)
	if err != nil {
		return s.rejected(ctx, err)
	}
	return s.Execute(ctx, cmds)
}

// ExecuteDescriptors validates decoded descriptors and executes them.
func (s *Session) ExecuteDescriptors(ctx context.Context, descriptors []any) Result {
	cmds, err := command.Parse(descriptors)
	if err != nil {
		return s.rejected(ctx, err)
	}
	return s.Execute(ctx, cmds)
}

// rejected reports a validation failure: nothing runs and no frame is produced.
func (s *Session) rejected(ctx context.Context, err error) Result {
	started := s.now()
	res := Result{RunID: s.newRunID(), Pose: s.pose, Err: err}
	s.debug("SESSION", fmt.Sprintf("run %s rejected: %v", res.RunID, err))
	s.record(ctx, started, res)
	return res
}

// Execute runs cmds in order. Resolution and collision failures stop the
// queue (or only the failing command under the "command" abort policy);
// backend failures always stop it. Frames produced before any failure are
// flushed into the artifact either way.
func (s *Session) Execute(ctx context.Context, cmds []command.Command) Result {
	if len(cmds) == 0 {
		return s.rejected(ctx, failure.New(failure.KindValidation, -1, "command sequence is empty"))
	}

	started := s.now()
	res := Result{RunID: s.newRunID(), Commands: make([]CommandResult, len(cmds))}
	for i, cmd := range cmds {
		res.Commands[i] = CommandResult{Index: i, Command: cmd.String(), Reason: ReasonNotRun}
	}
	s.beginRun(res.RunID)
	defer s.endRun()
	s.debug("SESSION", fmt.Sprintf("run %s: %d commands from %s", res.RunID, len(cmds), s.pose))

	var failures []error
	stop := false
	if s.opts.StartFrame {
		if err := s.commit(ctx, motion.Step{CommandIndex: -1, Phase: "start", Pose: s.pose}); err != nil {
			failures = append(failures, err)
			stop = true
		}
	}

	for i, cmd := range cmds {
		if stop {
			break
		}
		s.debug("SESSION", fmt.Sprintf("command %d: %s", i, cmd))
		n, err := s.runCommand(ctx, i, cmd)
		cr := &res.Commands[i]
		cr.FramesAppended = n
		if err == nil {
			cr.Committed = true
			cr.Reason = ReasonCompleted
			continue
		}
		cr.Reason = reasonFor(err)
		failures = append(failures, err)
		s.debug("SESSION", fmt.Sprintf("command %d failed after %d frames: %v", i, n, err))

		kind, _ := failure.KindOf(err)
		if !kind.AbortsQueue() || s.opts.AbortPolicy == AbortQueue {
			stop = true
		}
	}
	switch len(failures) {
	case 0:
	case 1:
		res.Err = failures[0]
	default:
		res.Err = errors.Join(failures...)
	}

	res.Frames = s.asm.Len()
	res.Pose = s.pose
	if s.trace != nil {
		res.TracePath = s.trace.Path()
	}

	flushCtx := context.WithoutCancel(ctx)
	art, err := s.asm.Flush(flushCtx, assembler.ArtifactName(started, res.RunID))
	switch {
	case err == nil:
		res.Artifact = &art
		s.debug("SESSION", fmt.Sprintf("run %s: %d frames -> %s", res.RunID, art.Frames, art.Path))
	case errors.Is(err, assembler.ErrNoArtifact):
		if res.Err == nil {
			res.Err = err
		}
	default:
		res.Err = errors.Join(res.Err, failure.Wrap(failure.KindNoArtifact, -1, "write artifact", err))
	}

	s.closeTrace()
	s.record(flushCtx, started, res)
	return res
}

// runCommand plans and drains one command, committing every step.
func (s *Session) runCommand(ctx context.Context, index int, cmd command.Command) (int, error) {
	m, err := s.synth.Plan(ctx, index, s.pose, cmd)
	if err != nil {
		return 0, err
	}
	if m.Command().Kind == command.KindMove {
		t := m.Target()
		s.debug("SESSION", fmt.Sprintf("command %d: %s resolved to (%.2f, %.2f), %d steps planned",
			index, m.Command(), t.X(), t.Z(), m.Planned()))
	} else {
		s.debug("SESSION", fmt.Sprintf("command %d: %s, %d steps planned", index, m.Command(), m.Planned()))
	}
	return motion.Run(ctx, m, func(step motion.Step) error {
		return s.commit(ctx, step)
	})
}

// commit renders and composites step's pose and appends the frame. The
// session pose advances only once the frame is buffered.
func (s *Session) commit(ctx context.Context, step motion.Step) error {
	fp, err := s.backend.RenderFirstPerson(ctx, step.Pose)
	if err != nil {
		return failure.Wrap(failure.KindBackend, step.CommandIndex, "render first-person view", err)
	}
	defer fp.Close()

	frame, err := s.comp.Compose(fp, step.Pose, s.caption(step))
	if err != nil {
		frame.Close()
		return failure.Wrap(failure.KindBackend, step.CommandIndex, "compose frame", err)
	}
	if err := s.asm.Append(frame); err != nil {
		return failure.Wrap(failure.KindBackend, step.CommandIndex, "buffer frame", err)
	}
	s.pose = step.Pose

	if s.trace != nil {
		err := s.trace.Write(journal.TraceEntry{
			RunID:        s.runID,
			Seq:          s.seq,
			CommandIndex: step.CommandIndex,
			Phase:        string(step.Phase),
			Position:     [3]float64(step.Pose.Position),
			Rotation:     geom.QuatArray(step.Pose.Orientation),
		})
		if err != nil {
			s.debug("JOURNAL", fmt.Sprintf("trace write failed, disabling trace: %v", err))
			s.closeTrace()
		}
	}
	s.seq++
	return nil
}

func (s *Session) caption(step motion.Step) string {
	p := step.Pose
	label := fmt.Sprintf("#%d %s", step.CommandIndex, step.Phase)
	if step.CommandIndex < 0 {
		label = "start"
	}
	return fmt.Sprintf("%s  x=%.2f z=%.2f yaw=%.1f", label, p.Position.X(), p.Position.Z(), p.Yaw())
}

func (s *Session) beginRun(runID string) {
	s.runID = runID
	s.seq = 0
	if s.onRunChanged != nil {
		s.onRunChanged(runID)
	}
	if s.opts.TraceDir == "" {
		return
	}
	tw, err := journal.CreateTrace(s.opts.TraceDir, runID)
	if err != nil {
		s.debug("JOURNAL", fmt.Sprintf("pose trace unavailable: %v", err))
		return
	}
	s.trace = tw
}

func (s *Session) endRun() {
	s.closeTrace()
	s.runID = ""
	if s.onRunChanged != nil {
		s.onRunChanged("")
	}
}

func (s *Session) closeTrace() {
	if s.trace == nil {
		return
	}
	if err := s.trace.Close(); err != nil {
		s.debug("JOURNAL", fmt.Sprintf("close trace %s: %v", s.trace.Path(), err))
	}
	s.trace = nil
}

// record stores the run in the journal index. Journal failures are logged,
// never reported as run failures.
func (s *Session) record(ctx context.Context, started time.Time, res Result) {
	if s.opts.Journal == nil {
		return
	}
	run := journal.Run{
		ID:          res.RunID,
		StartedAt:   started,
		FinishedAt:  s.now(),
		Backend:     s.backend.Info().Kind,
		Commands:    len(res.Commands),
		Frames:      res.Frames,
		FailedIndex: -1,
		TracePath:   res.TracePath,
	}
	if res.Artifact != nil {
		run.ArtifactPath = res.Artifact.Path
	}
	if fe := failure.As(res.Err); fe != nil {
		run.OutcomeKind = string(fe.Kind)
		run.FailedIndex = fe.CommandIndex
		run.Message = res.Err.Error()
	}
	rows := make([]journal.CommandRow, len(res.Commands))
	for i, c := range res.Commands {
		rows[i] = journal.CommandRow{
			RunID:          res.RunID,
			Index:          c.Index,
			Description:    c.Command,
			Committed:      c.Committed,
			Reason:         string(c.Reason),
			FramesAppended: c.FramesAppended,
		}
	}
	if err := s.opts.Journal.Record(ctx, run, rows); err != nil {
		s.debug("JOURNAL", fmt.Sprintf("record run %s: %v", res.RunID, err))
	}
}
