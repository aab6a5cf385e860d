package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/comigor/roundtable/internal/client"
	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/printer"
)

var (
	turnServer     string
	turnAgent      string
	turnTranscript string
)

var turnCmd = &cobra.Command{
	Use:   "turn <goal>",
	Short: "Ask a running server for a single agent turn",
	Long: `Ask a running server for one agent turn and print the messages as they stream in.

The previous conversation is read from a JSON file holding an array of
{"content","sender"} objects.

Examples:
  roundtable turn --agent critic --transcript chat.json "review the plan"`,
	Args: cobra.ExactArgs(1),
	RunE: runTurn,
}

func init() {
	turnCmd.Flags().StringVar(&turnServer, "server", "", "Server base URL (defaults to http://<server.host>:<server.port>)")
	turnCmd.Flags().StringVarP(&turnAgent, "agent", "a", "", "Role to speak (defaults to the first in the roster)")
	turnCmd.Flags().StringVarP(&turnTranscript, "transcript", "t", "", "JSON file with the previous messages")
	rootCmd.AddCommand(turnCmd)
}

func runTurn(cmd *cobra.Command, args []string) error {
	base := turnServer
	if base == "" {
		host := cfg.Server.Host
		if host == "" || host == "0.0.0.0" {
			host = "localhost"
		}
		base = fmt.Sprintf("http://%s:%s", host, cfg.Server.Port)
	}

	var previous []conversation.Message
	if turnTranscript != "" {
		raw, err := os.ReadFile(turnTranscript)
		if err != nil {
			return fmt.Errorf("read transcript: %w", err)
		}
		if err := json.Unmarshal(raw, &previous); err != nil {
			return printer.Error("invalid transcript", err.Error(), "expected a JSON array of {\"content\",\"sender\"} objects")
		}
	}

	roles := configuredRoles()
	agent := turnAgent
	if agent == "" && len(roles) > 0 {
		agent = string(roles[0])
	}

	out := printer.NewTranscript(cmd.OutOrStdout(), roles)
	req := client.TurnRequest{Goal: args[0], CurrentAgent: agent, PreviousMessages: previous}
	for m, err := range client.New(base).Turn(cmd.Context(), req) {
		if err != nil {
			return printer.Error("turn failed", err.Error())
		}
		out.Message(m)
	}
	return nil
}
