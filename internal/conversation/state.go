// Package conversation holds the mutable record of a collaboration run.
//
// A State has exactly one writer, the scheduler that owns it. Everyone else
// reads through Snapshot. The mutex only makes those snapshots safe to take
// from other goroutines; it does not arbitrate between writers.
package conversation

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/comigor/roundtable/internal/apperr"
)

// Stage of a run. Transitions only move forward within a run.
type Stage string

const (
	StageAwaitingGoal Stage = "awaiting_goal"
	StageRunning      Stage = "running"
	StageComplete     Stage = "complete"
)

var (
	ErrRunComplete = errors.New("conversation: run is complete")
	ErrNoRun       = errors.New("conversation: no run in progress")
)

// State is the transcript, goal, stage and counters of the current run.
type State struct {
	mu         sync.RWMutex
	runID      string
	goal       string
	transcript []Message
	stage      Stage
	turnCount  int
	index      int
}

// Snapshot is a read-only copy of a State.
type Snapshot struct {
	RunID      string    `json:"runId"`
	Goal       string    `json:"goal"`
	Stage      Stage     `json:"stage"`
	TurnCount  int       `json:"turnCount"`
	Index      int       `json:"index"`
	Transcript []Message `json:"transcript"`
}

func NewState() *State {
	return &State{stage: StageAwaitingGoal}
}

// StartRun discards the previous run and begins a new one for goal.
func (s *State) StartRun(goal string) error {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return apperr.Validationf("conversation.StartRun", "goal is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = uuid.NewString()
	s.goal = goal
	s.transcript = nil
	s.turnCount = 0
	s.index = 0
	s.stage = StageRunning
	return nil
}

// Append adds msg to the end of the transcript.
func (s *State) Append(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.stage {
	case StageComplete:
		return ErrRunComplete
	case StageAwaitingGoal:
		return ErrNoRun
	}
	s.transcript = append(s.transcript, msg)
	return nil
}

// Complete ends the current run. It reports false if the run was not running.
func (s *State) Complete() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stage != StageRunning {
		return false
	}
	s.stage = StageComplete
	return true
}

// Advance moves to the next roster slot and reports whether it wrapped to zero,
// in which case the turn counter has been incremented.
func (s *State) Advance(rosterLen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rosterLen <= 0 {
		return false
	}
	s.index = (s.index + 1) % rosterLen
	if s.index == 0 {
		s.turnCount++
		return true
	}
	return false
}

func (s *State) RunID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runID
}

func (s *State) Goal() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.goal
}

func (s *State) Stage() Stage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stage
}

func (s *State) TurnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.turnCount
}

func (s *State) Index() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index
}

func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transcript)
}

// Transcript returns a copy of the messages appended so far.
func (s *State) Transcript() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transcript)
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		RunID:      s.runID,
		Goal:       s.goal,
		Stage:      s.stage,
		TurnCount:  s.turnCount,
		Index:      s.index,
		Transcript: slices.Clone(s.transcript),
	}
}

// ValidateTranscript checks a transcript received from outside, typically over
// the transport boundary. known reports whether a sender is acceptable.
func ValidateTranscript(msgs []Message, known func(Role) bool) error {
	for i, m := range msgs {
		if m.Sender == "" {
			return apperr.Validationf("conversation.ValidateTranscript", "message %d has no sender", i)
		}
		if !known(m.Sender) {
			return apperr.Validationf("conversation.ValidateTranscript", "message %d has unknown sender %q", i, m.Sender)
		}
		if strings.TrimSpace(m.Content) == "" {
			return apperr.Validationf("conversation.ValidateTranscript", "message %d is empty", i)
		}
	}
	return nil
}
