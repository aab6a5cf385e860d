// Package termination decides, from the words alone, when a collaboration has
// converged. It is a lexical heuristic: it will sometimes stop a conversation
// that was not finished and sometimes let one run past real agreement.
package termination

import (
	"github.com/comigor/roundtable/internal/agent"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/conversation"
)

// Reason explains a stop decision, or the first unmet criterion when the run continues.
type Reason string

const (
	ReasonMessageCap         Reason = "message_cap"
	ReasonConverged          Reason = "converged"
	ReasonTooFewMessages     Reason = "too_few_messages"
	ReasonTooFewTurns        Reason = "too_few_turns"
	ReasonOpenFeedback       Reason = "open_feedback"
	ReasonNoClosingQuestion  Reason = "no_closing_question"
	ReasonMissingAgreement   Reason = "missing_agreement"
	ReasonNoClosingStatement Reason = "no_closing_statement"
	ReasonEmptyTranscript    Reason = "empty_transcript"
)

type Decision struct {
	Stop   bool
	Reason Reason
}

// Limits are the numeric thresholds of the detector.
type Limits struct {
	MaxMessages int
	MinMessages int
	MinTurns    int
	Window      int
}

// Detector evaluates the rule table against a transcript. It holds only
// configuration; ShouldStop has no side effects.
type Detector struct {
	limits   Limits
	reviewer conversation.Role
	others   []conversation.Role
	sets     map[string]PhraseSet
}

func New(limits Limits, reviewer conversation.Role, others []conversation.Role, sets map[string]PhraseSet) *Detector {
	return &Detector{limits: limits, reviewer: reviewer, others: others, sets: sets}
}

// FromConfig builds a detector for roster with the configured limits and rule table.
func FromConfig(cfg *config.Config, roster *agent.Roster) *Detector {
	return New(Limits{
		MaxMessages: cfg.Limits.MaxMessages,
		MinMessages: cfg.Termination.MinMessages,
		MinTurns:    cfg.Termination.MinTurns,
		Window:      cfg.Termination.Window,
	}, roster.Reviewer(), roster.Others(), PhraseSetsFromConfig(cfg.Termination.PhraseSets))
}

// ShouldStop is consulted after every reviewer message. The message cap is
// checked first and wins regardless of content.
func (d *Detector) ShouldStop(transcript []conversation.Message, turnCount int) Decision {
	if d.limits.MaxMessages > 0 && len(transcript) >= d.limits.MaxMessages {
		return Decision{Stop: true, Reason: ReasonMessageCap}
	}
	if len(transcript) == 0 {
		return Decision{Reason: ReasonEmptyTranscript}
	}
	if len(transcript) < d.limits.MinMessages {
		return Decision{Reason: ReasonTooFewMessages}
	}
	if turnCount < d.limits.MinTurns {
		return Decision{Reason: ReasonTooFewTurns}
	}

	newest := transcript[len(transcript)-1].Content
	if d.set(config.PhraseSetFeedback).Match(newest) {
		return Decision{Reason: ReasonOpenFeedback}
	}

	window := transcript
	if d.limits.Window > 0 && len(window) > d.limits.Window {
		window = window[len(window)-d.limits.Window:]
	}
	if !d.saidInWindow(window, d.reviewer, config.PhraseSetClosingQuestion) {
		return Decision{Reason: ReasonNoClosingQuestion}
	}
	for _, role := range d.others {
		if !d.saidInWindow(window, role, config.PhraseSetAgreement) {
			return Decision{Reason: ReasonMissingAgreement}
		}
	}

	if !d.set(config.PhraseSetClosingStatement).Match(newest) {
		return Decision{Reason: ReasonNoClosingStatement}
	}
	return Decision{Stop: true, Reason: ReasonConverged}
}

func (d *Detector) saidInWindow(window []conversation.Message, role conversation.Role, setName string) bool {
	set := d.set(setName)
	for _, m := range window {
		if m.Sender == role && set.Match(m.Content) {
			return true
		}
	}
	return false
}

func (d *Detector) set(name string) PhraseSet {
	return d.sets[name]
}
