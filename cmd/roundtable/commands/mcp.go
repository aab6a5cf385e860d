package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/comigor/roundtable/internal/mcptool"
	"github.com/comigor/roundtable/internal/scheduler"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the collaborate tool over MCP stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		sched, err := scheduler.FromConfig(cfg, newGenerator())
		if err != nil {
			return fmt.Errorf("build scheduler: %w", err)
		}
		defer sched.Close()

		detach, err := attachSinks(cmd.Context(), sched)
		if err != nil {
			return fmt.Errorf("attach event sinks: %w", err)
		}
		defer detach()

		return mcptool.New(sched).ServeStdio(version)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
