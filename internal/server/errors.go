package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/logger"
)

var errEmptyOutput = apperr.Generation("server.agentTurn", errors.New("generator produced no output"))

// statusFor maps the error taxonomy onto HTTP: caller mistakes are 400,
// everything else is a server-side failure.
func statusFor(err error) int {
	if apperr.IsValidation(err) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.L.ErrorContext(c.Request.Context(), "request failed", "error", err, "kind", apperr.KindOf(err))
	} else {
		logger.L.WarnContext(c.Request.Context(), "rejected request", "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
