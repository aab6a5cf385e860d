package events

import "github.com/comigor/roundtable/internal/conversation"

type Type string

const (
	TypeMessage Type = "message"
	TypeStage   Type = "stage"
	TypeDone    Type = "done"
)

// Event is what observers of a run receive. Message is set for TypeMessage,
// Stage for TypeStage and TypeDone.
type Event struct {
	Type    Type                  `json:"type"`
	RunID   string                `json:"runId"`
	Message *conversation.Message `json:"message,omitempty"`
	Stage   conversation.Stage    `json:"stage,omitempty"`
	Reason  string                `json:"reason,omitempty"`
}

func MessageEvent(runID string, m conversation.Message) Event {
	return Event{Type: TypeMessage, RunID: runID, Message: &m}
}

func StageEvent(runID string, stage conversation.Stage) Event {
	return Event{Type: TypeStage, RunID: runID, Stage: stage}
}

func DoneEvent(runID, reason string) Event {
	return Event{Type: TypeDone, RunID: runID, Stage: conversation.StageComplete, Reason: reason}
}
