package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/logger"
	"github.com/comigor/roundtable/internal/scheduler"
)

type startRunRequest struct {
	Goal string `json:"goal"`
}

func (s *Server) startRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, apperr.Validation("server.startRun", err))
		return
	}

	snap, err := s.sched.Start(c.Request.Context(), req.Goal)
	if err != nil {
		writeError(c, err)
		return
	}

	go s.drive(snap.RunID)
	c.JSON(http.StatusAccepted, snap)
}

func (s *Server) drive(runID string) {
	ctx := logger.WithFields(s.runCtx, logger.Fields{RunID: runID, Component: "server"})
	err := s.sched.Run(ctx)
	switch {
	case err == nil, errors.Is(err, scheduler.ErrSuperseded):
	case ctx.Err() != nil:
		logger.L.InfoContext(ctx, "run interrupted by shutdown")
	default:
		logger.L.ErrorContext(ctx, "run ended with error", "error", err)
	}
}

func (s *Server) currentRun(c *gin.Context) {
	snap := s.sched.Snapshot()
	if snap.Stage == conversation.StageAwaitingGoal {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run has been started"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) cancelRun(c *gin.Context) {
	if !s.sched.Cancel(c.Request.Context()) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no run in progress"})
		return
	}
	c.JSON(http.StatusOK, s.sched.Snapshot())
}

// runEvents streams the current snapshot followed by live run events.
func (s *Server) runEvents(c *gin.Context) {
	events, cancel := s.sched.Subscribe()
	defer cancel()

	setSSEHeaders(c.Writer)
	c.Status(http.StatusOK)
	sseWrite(c.Writer, eventState, s.sched.Snapshot())
	c.Writer.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			sseComment(c.Writer, "ping")
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			sseWrite(c.Writer, string(ev.Type), ev)
			c.Writer.Flush()
		}
	}
}
