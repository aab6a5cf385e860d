package commands

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/comigor/roundtable/internal/history"
	"github.com/comigor/roundtable/internal/printer"
)

var historyJSON bool

var historyCmd = &cobra.Command{
	Use:   "history <run-id>",
	Short: "Print an archived run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		archive := history.New(cfg.History.Path)
		defer archive.Close()

		records := archive.List(args[0])
		if len(records) == 0 {
			return printer.Error("run not found", "no archived messages for run "+args[0]+" in "+cfg.History.Path)
		}

		if historyJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(records)
		}
		out := printer.NewTranscript(cmd.OutOrStdout(), configuredRoles())
		for _, r := range records {
			out.Message(r.Message())
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Print records as JSON")
	rootCmd.AddCommand(historyCmd)
}
