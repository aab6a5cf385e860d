package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/comigor/roundtable/internal/events"
	"github.com/comigor/roundtable/internal/llm"
	"github.com/comigor/roundtable/internal/printer"
	"github.com/comigor/roundtable/internal/scheduler"
)

var chatDryRun bool

var chatCmd = &cobra.Command{
	Use:   "chat <goal>",
	Short: "Run a collaboration locally and print it as it happens",
	Long: `Run a collaboration locally and print each message as it is produced.

Examples:
  roundtable chat "explain goroutine leaks with an example"

  # Exercise the pipeline without calling the model
  roundtable chat --dry-run "anything"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	chatCmd.Flags().BoolVar(&chatDryRun, "dry-run", false, "Use canned responses instead of the model")
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var gen llm.Generator
	if chatDryRun {
		gen = dryRunGenerator()
	} else {
		g, err := llm.NewOpenAIGenerator(cfg.LLM)
		if err != nil {
			return printer.Error("no model credentials", err.Error(), "set OPENAI_API_KEY or llm.api_key", "or pass --dry-run")
		}
		gen = g
	}

	sched, err := scheduler.FromConfig(cfg, gen)
	if err != nil {
		return err
	}
	defer sched.Close()

	detach, err := attachSinks(ctx, sched)
	if err != nil {
		return fmt.Errorf("attach event sinks: %w", err)
	}
	defer detach()

	out := printer.NewTranscript(cmd.OutOrStdout(), sched.Roster().Roles())
	evs, cancel := sched.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range evs {
			switch ev.Type {
			case events.TypeMessage:
				out.Message(*ev.Message)
			case events.TypeDone:
				out.Done(ev.Reason)
				return
			}
		}
	}()

	if _, err := sched.Start(ctx, strings.Join(args, " ")); err != nil {
		cancel()
		return err
	}
	err = sched.Run(ctx)
	if ctx.Err() != nil {
		sched.Cancel(context.Background())
	}
	// buffered events stay readable after the subscription closes
	cancel()
	<-printed
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// dryRunGenerator cycles through canned turns that converge on the default
// phrase sets once enough messages have accumulated.
func dryRunGenerator() llm.Generator {
	return llm.NewScriptedGenerator(
		llm.Turn{Fragments: []string{"I dug into the goal and pulled together the key points. ", "The main constraint is keeping it simple."}},
		llm.Turn{Fragments: []string{"Here is a draft that puts those points in order. ", "I kept it short and concrete."}},
		llm.Turn{Fragments: []string{"This reads well and covers the goal. ", "Anything else we should add?"}},
		llm.Turn{Fragments: []string{"Nothing missing from my side, ", "I agree with the draft."}},
		llm.Turn{Fragments: []string{"Looks good to me as well."}},
		llm.Turn{Fragments: []string{"Great work everyone, ", "we're done here."}},
	)
}
