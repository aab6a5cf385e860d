// Package scheduler drives the turn-taking of a collaboration run and decides
// when it is over.
package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/roundtable/internal/agent"
	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/chunker"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/events"
	"github.com/comigor/roundtable/internal/llm"
	"github.com/comigor/roundtable/internal/logger"
	"github.com/comigor/roundtable/internal/termination"
)

// FSM triggers
type Trigger string

const (
	TriggerGoalReceived     Trigger = "GoalReceived"
	TriggerConverged        Trigger = "Converged"
	TriggerTurnLimitReached Trigger = "TurnLimitReached"
	TriggerGenerationFailed Trigger = "GenerationFailed"
	TriggerCancelled        Trigger = "Cancelled"
	TriggerSuperseded       Trigger = "Superseded"
)

// Reasons reported in done events besides the termination.Reason values.
const (
	ReasonTurnLimit        = "turn_limit"
	ReasonGenerationFailed = "generation_failed"
	ReasonCancelled        = "cancelled"
	ReasonSuperseded       = "superseded"
)

const DefaultFallbackMessage = "Sorry, I encountered an error processing your request."

var ErrSuperseded = errors.New("scheduler: run superseded")

// StopCondition decides after each reviewer message whether the run is over.
type StopCondition interface {
	ShouldStop(transcript []conversation.Message, turnCount int) termination.Decision
}

type Options struct {
	MaxTurns                    int
	ExemptReviewerFromMinLength bool
	FallbackMessage             string
}

// Scheduler owns one conversation and is its only writer.
type Scheduler struct {
	gen     llm.Generator
	roster  *agent.Roster
	stop    StopCondition
	chunker *chunker.Chunker
	opts    Options
	state   *conversation.State
	bus     *events.Bus[events.Event]

	inFlight atomic.Bool
	startMu  sync.Mutex
	mu       sync.Mutex
	run      *run
}

type run struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	machine *stateless.StateMachine
	steps   sync.WaitGroup
}

func New(gen llm.Generator, roster *agent.Roster, stop StopCondition, ch *chunker.Chunker, opts Options) *Scheduler {
	if opts.FallbackMessage == "" {
		opts.FallbackMessage = DefaultFallbackMessage
	}
	return &Scheduler{
		gen:     gen,
		roster:  roster,
		stop:    stop,
		chunker: ch,
		opts:    opts,
		state:   conversation.NewState(),
		bus:     events.NewBus[events.Event](0),
	}
}

// FromConfig wires a scheduler from the application config.
func FromConfig(cfg *config.Config, gen llm.Generator) (*Scheduler, error) {
	roster, err := agent.FromConfig(cfg)
	if err != nil {
		return nil, err
	}
	return New(gen, roster, termination.FromConfig(cfg, roster), chunker.New(chunker.OptionsFromConfig(cfg)), Options{
		MaxTurns:                    cfg.Limits.MaxTurns,
		ExemptReviewerFromMinLength: cfg.Limits.ExemptReviewerFromMinLength,
	}), nil
}

func (s *Scheduler) Roster() *agent.Roster { return s.roster }

func (s *Scheduler) Snapshot() conversation.Snapshot { return s.state.Snapshot() }

// Subscribe streams events of this and later runs until cancel is called.
func (s *Scheduler) Subscribe() (<-chan events.Event, func()) { return s.bus.Subscribe() }

// SubscribeSink is Subscribe for archiving and export sinks, which must not
// lose messages to a short buffer.
func (s *Scheduler) SubscribeSink() (<-chan events.Event, func()) {
	return s.bus.SubscribeBuffered(events.SinkBufferSize)
}

func (s *Scheduler) newMachine(r *run) *stateless.StateMachine {
	m := stateless.NewStateMachine(conversation.StageAwaitingGoal)

	m.Configure(conversation.StageAwaitingGoal).
		Permit(TriggerGoalReceived, conversation.StageRunning)

	m.Configure(conversation.StageRunning).
		OnEntryFrom(TriggerGoalReceived, func(ctx context.Context, args ...any) error {
			if err := s.state.StartRun(args[0].(string)); err != nil {
				return err
			}
			r.id = s.state.RunID()
			s.bus.Publish(events.StageEvent(r.id, conversation.StageRunning))
			return nil
		}).
		Permit(TriggerConverged, conversation.StageComplete).
		Permit(TriggerTurnLimitReached, conversation.StageComplete).
		Permit(TriggerGenerationFailed, conversation.StageComplete).
		Permit(TriggerCancelled, conversation.StageComplete).
		Permit(TriggerSuperseded, conversation.StageComplete)

	// Complete is terminal for the run; a new goal gets a new machine.
	m.Configure(conversation.StageComplete).
		OnEntry(func(ctx context.Context, args ...any) error {
			reason, _ := args[0].(string)
			s.state.Complete()
			logger.L.InfoContext(ctx, "run complete", "reason", reason, "messages", s.state.Len(), "turns", s.state.TurnCount())
			s.bus.Publish(events.DoneEvent(r.id, reason))
			return nil
		})

	return m
}

// Start supersedes any current run and begins a new one for goal. The goal is
// recorded as the first message of the transcript, sent by the human.
func (s *Scheduler) Start(ctx context.Context, goal string) (conversation.Snapshot, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return conversation.Snapshot{}, apperr.Validationf("scheduler.Start", "goal is empty")
	}

	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	prev := s.run
	s.run = nil
	s.mu.Unlock()
	if prev != nil {
		s.halt(ctx, prev, TriggerSuperseded, ReasonSuperseded)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r := &run{ctx: runCtx, cancel: cancel}
	r.machine = s.newMachine(r)
	if err := r.machine.FireCtx(ctx, TriggerGoalReceived, goal); err != nil {
		cancel()
		return conversation.Snapshot{}, err
	}
	ctx = logger.WithFields(ctx, logger.Fields{RunID: r.id, Component: "scheduler"})
	logger.L.InfoContext(ctx, "run started", "goal", goal, "roster", s.roster.Roles())

	if err := s.append(r, conversation.NewMessage(goal, conversation.Human)); err != nil {
		cancel()
		return conversation.Snapshot{}, err
	}

	s.mu.Lock()
	s.run = r
	s.mu.Unlock()
	return s.state.Snapshot(), nil
}

// Cancel stops the current run, waiting for an in-flight turn to let go of
// its stream. It reports whether a running run was cancelled.
func (s *Scheduler) Cancel(ctx context.Context) bool {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.mu.Lock()
	r := s.run
	s.mu.Unlock()
	if r == nil {
		return false
	}
	return s.halt(ctx, r, TriggerCancelled, ReasonCancelled)
}

func (s *Scheduler) halt(ctx context.Context, r *run, trigger Trigger, reason string) bool {
	r.cancel()
	r.steps.Wait()
	if s.state.Stage() != conversation.StageRunning || s.state.RunID() != r.id {
		return false
	}
	return s.complete(ctx, r, trigger, reason)
}

// Close cancels the current run and closes every subscription.
func (s *Scheduler) Close() {
	s.Cancel(context.Background())
	s.bus.Close()
}

// Step runs the next agent's turn. While a turn is in flight, further calls
// return immediately without touching the generator or the transcript.
// Cancelling ctx mid-turn completes the run with ReasonCancelled.
func (s *Scheduler) Step(ctx context.Context) error {
	_, err := s.step(ctx)
	return err
}

func (s *Scheduler) step(ctx context.Context) (bool, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		logger.L.DebugContext(ctx, "turn already in flight; ignoring step")
		return false, nil
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	r := s.run
	if r != nil {
		r.steps.Add(1)
	}
	s.mu.Unlock()
	if r == nil {
		return false, nil
	}
	defer r.steps.Done()

	if r.ctx.Err() != nil || s.state.Stage() != conversation.StageRunning {
		return false, nil
	}

	stepCtx, cancel := context.WithCancel(r.ctx)
	defer cancel()
	stopAfter := context.AfterFunc(ctx, cancel)
	defer stopAfter()

	a := s.roster.At(s.state.Index())
	stepCtx = logger.WithFields(stepCtx, logger.Fields{RunID: r.id, Role: string(a.Role), Component: "scheduler"})
	isReviewer := a.Role == s.roster.Reviewer()

	ch := s.chunker
	if isReviewer && s.opts.ExemptReviewerFromMinLength {
		ch = ch.WithMinLength(0)
	}

	logger.L.DebugContext(stepCtx, "turn started", "index", s.state.Index(), "turn", s.state.TurnCount())
	produced := 0
	for msg, err := range GenerateTurn(stepCtx, s.gen, ch, a, s.state.Goal(), s.state.Transcript()) {
		if err != nil {
			if stepCtx.Err() != nil {
				logger.L.InfoContext(stepCtx, "turn abandoned", "error", err)
				if r.ctx.Err() != nil {
					return true, ErrSuperseded
				}
				// a half-spoken turn cannot be resumed, so the run ends here
				r.cancel()
				s.complete(context.WithoutCancel(stepCtx), r, TriggerCancelled, ReasonCancelled)
				return true, ctx.Err()
			}
			s.fail(stepCtx, r, err)
			return true, err
		}
		if err := s.append(r, msg); err != nil {
			logger.L.WarnContext(stepCtx, "dropping message for finished run", "error", err)
			return true, nil
		}
		produced++

		if isReviewer {
			d := s.stop.ShouldStop(s.state.Transcript(), s.state.TurnCount())
			logger.L.DebugContext(stepCtx, "termination check", "stop", d.Stop, "reason", d.Reason)
			if d.Stop {
				s.complete(stepCtx, r, TriggerConverged, string(d.Reason))
				return true, nil
			}
		}
	}

	if produced == 0 {
		err := apperr.Generation("scheduler.Step", errors.New("generator produced no output"))
		s.fail(stepCtx, r, err)
		return true, err
	}

	if s.state.Advance(s.roster.Len()) {
		turns := s.state.TurnCount()
		logger.L.DebugContext(stepCtx, "roster cycle complete", "turns", turns)
		if turns >= s.opts.MaxTurns {
			s.complete(stepCtx, r, TriggerTurnLimitReached, ReasonTurnLimit)
		}
	}
	return true, nil
}

// Run steps the current run until it completes, is superseded or ctx ends.
// A run that ends through the fail-stop path is still a completed run, so
// generation errors are not returned.
func (s *Scheduler) Run(ctx context.Context) error {
	runID := s.state.RunID()
	if runID == "" {
		return apperr.Validationf("scheduler.Run", "no run has been started")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.state.RunID() != runID {
			return ErrSuperseded
		}
		if s.state.Stage() != conversation.StageRunning {
			return nil
		}

		ran, err := s.step(ctx)
		switch {
		case errors.Is(err, ErrSuperseded):
			return err
		case apperr.IsGeneration(err):
			return nil
		case err != nil:
			return err
		}
		if !ran {
			// another caller holds the turn; give it room
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond):
			}
		}
	}
}

func (s *Scheduler) append(r *run, msg conversation.Message) error {
	if err := s.state.Append(msg); err != nil {
		return err
	}
	s.bus.Publish(events.MessageEvent(r.id, msg))
	return nil
}

// fail is the fail-stop path: one synthetic reviewer message, then Complete.
func (s *Scheduler) fail(ctx context.Context, r *run, cause error) {
	logger.L.ErrorContext(ctx, "generation failed; ending run", "error", cause)
	if err := s.append(r, conversation.NewMessage(s.opts.FallbackMessage, s.roster.Reviewer())); err != nil {
		logger.L.WarnContext(ctx, "could not record fallback message", "error", err)
	}
	s.complete(ctx, r, TriggerGenerationFailed, ReasonGenerationFailed)
}

func (s *Scheduler) complete(ctx context.Context, r *run, trigger Trigger, reason string) bool {
	if err := r.machine.FireCtx(ctx, trigger, reason); err != nil {
		logger.L.WarnContext(ctx, "stage transition rejected", "trigger", trigger, "error", err)
		return false
	}
	return true
}
