package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/comigor/roundtable/internal/agent"
	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/logger"
	"github.com/comigor/roundtable/internal/scheduler"
)

type agentTurnRequest struct {
	Goal             string                 `json:"goal"`
	CurrentAgent     string                 `json:"currentAgent"`
	PreviousMessages []conversation.Message `json:"previousMessages"`
}

type agentTurnResponse struct {
	Messages []conversation.Message `json:"messages"`
}

type doneEvent struct {
	Messages int `json:"messages"`
}

// agentTurn runs a single turn for the requested agent against a
// caller-supplied transcript. Nothing is recorded server side.
func (s *Server) agentTurn(c *gin.Context) {
	var req agentTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("server.agentTurn", err))
		return
	}

	a, err := s.resolveTurn(&req)
	if err != nil {
		writeError(c, err)
		return
	}

	ctx := logger.WithFields(c.Request.Context(), logger.Fields{Role: string(a.Role), Component: "server"})
	turn := scheduler.GenerateTurn(ctx, s.gen, s.chunker, a, req.Goal, req.PreviousMessages)

	if !wantsStream(c.Request) {
		var msgs []conversation.Message
		for m, err := range turn {
			if err != nil {
				writeError(c, err)
				return
			}
			msgs = append(msgs, m)
		}
		if len(msgs) == 0 {
			writeError(c, errEmptyOutput)
			return
		}
		c.JSON(http.StatusOK, agentTurnResponse{Messages: msgs})
		return
	}

	// Headers are committed with the first message so that failures before
	// any output still get a proper status code.
	sent := 0
	for m, err := range turn {
		if err != nil {
			if sent == 0 {
				writeError(c, err)
				return
			}
			logger.L.ErrorContext(ctx, "turn failed mid-stream", "error", err)
			sseWrite(c.Writer, eventError, gin.H{"error": err.Error()})
			c.Writer.Flush()
			return
		}
		if sent == 0 {
			setSSEHeaders(c.Writer)
			c.Status(http.StatusOK)
		}
		sseWrite(c.Writer, eventMessage, m)
		c.Writer.Flush()
		sent++
	}
	if sent == 0 {
		writeError(c, errEmptyOutput)
		return
	}
	sseWrite(c.Writer, eventDone, doneEvent{Messages: sent})
	c.Writer.Flush()
}

func (s *Server) resolveTurn(req *agentTurnRequest) (agent.Agent, error) {
	const op = "server.agentTurn"
	req.Goal = strings.TrimSpace(req.Goal)
	if req.Goal == "" {
		return agent.Agent{}, apperr.Validationf(op, "goal is required")
	}

	if req.CurrentAgent == "" {
		return agent.Agent{}, apperr.Validationf(op, "currentAgent is required")
	}
	// an empty array is a valid transcript; an absent one is not
	if req.PreviousMessages == nil {
		return agent.Agent{}, apperr.Validationf(op, "previousMessages is required")
	}

	roster := s.sched.Roster()
	a, ok := roster.Lookup(conversation.Role(req.CurrentAgent))
	if !ok {
		return agent.Agent{}, apperr.Validationf(op, "unknown agent %q", req.CurrentAgent)
	}

	if err := conversation.ValidateTranscript(req.PreviousMessages, roster.Knows); err != nil {
		return agent.Agent{}, err
	}
	return a, nil
}
