package commands

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/logger"
	"github.com/comigor/roundtable/internal/printer"
)

var (
	version    = "dev"
	configPath string
	logLevel   string

	// cfg is loaded before any subcommand runs.
	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "roundtable",
	Short: "Roundtable - a small team of LLM agents working a goal together",
	Long: `Roundtable runs a fixed roster of LLM agents in turns on a user goal.
Each agent's streamed output is split into chat-sized messages, and the run
ends when the reviewer and the rest of the roster agree or the turn limit is hit.`,
	PersistentPreRunE: loadConfig,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config.yaml (defaults to $CONFIG_PATH or ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
}

// Execute runs the root command.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	// stdout carries the MCP protocol and the chat transcript
	logger.SetOutput(os.Stderr)

	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) {
			return printer.Error("invalid configuration", err.Error(), "check config.yaml and ROUNDTABLE_* environment variables")
		}
		return err
	}

	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger.SetLevel(cfg.LogLevel)
	return nil
}
