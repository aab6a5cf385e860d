// Package server exposes the collaboration over HTTP: a stateless one-turn
// endpoint and a small API around the scheduler's current run.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/comigor/roundtable/internal/chunker"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/llm"
	"github.com/comigor/roundtable/internal/logger"
	"github.com/comigor/roundtable/internal/scheduler"
)

const defaultHeartbeat = 15 * time.Second

type Server struct {
	cfg       *config.Config
	sched     *scheduler.Scheduler
	gen       llm.Generator
	chunker   *chunker.Chunker
	heartbeat time.Duration

	// runCtx bounds the goroutines driving runs started over HTTP.
	runCtx context.Context
	stop   context.CancelFunc
}

func New(cfg *config.Config, sched *scheduler.Scheduler, gen llm.Generator) *Server {
	ctx, stop := context.WithCancel(context.Background())
	return &Server{
		cfg:       cfg,
		sched:     sched,
		gen:       gen,
		chunker:   chunker.New(chunker.OptionsFromConfig(cfg)),
		heartbeat: defaultHeartbeat,
		runCtx:    ctx,
		stop:      stop,
	}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/agents", s.agentTurn)

		runs := api.Group("/runs")
		runs.POST("", s.startRun)
		runs.GET("/current", s.currentRun)
		runs.GET("/current/events", s.runEvents)
		runs.DELETE("/current", s.cancelRun)
	}
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: s.Router(), ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.L.Info("starting server", "address", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.stop()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.L.Info("shutting down server")
	s.stop()
	s.sched.Cancel(context.Background())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.L.InfoContext(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
