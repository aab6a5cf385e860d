package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comigor/roundtable/internal/scheduler"
	"github.com/comigor/roundtable/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Serve the HTTP API.

Endpoints:
  POST   /api/agents              one turn for a given agent (JSON or SSE)
  POST   /api/runs                start a run for a goal
  GET    /api/runs/current        snapshot of the current run
  GET    /api/runs/current/events live run events (SSE)
  DELETE /api/runs/current        cancel the current run
  GET    /healthz`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("port", "", "Port to listen on (overrides server.port)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Server.Port = port
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gen := newGenerator()
	sched, err := scheduler.FromConfig(cfg, gen)
	if err != nil {
		return fmt.Errorf("build scheduler: %w", err)
	}
	defer sched.Close()

	detach, err := attachSinks(ctx, sched)
	if err != nil {
		return fmt.Errorf("attach event sinks: %w", err)
	}
	defer detach()

	return server.New(cfg, sched, gen).ListenAndServe(ctx)
}
