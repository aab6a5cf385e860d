package scheduler

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/comigor/roundtable/internal/agent"
	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/chunker"
	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/llm"
)

// BuildContext renders the goal and transcript into the text handed to the generator.
func BuildContext(goal string, transcript []conversation.Message) string {
	var b strings.Builder
	b.WriteString("Goal: ")
	b.WriteString(goal)
	b.WriteString("\n\nPrevious conversation:\n")
	for i, m := range transcript {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(m.Sender))
		b.WriteString(": ")
		b.WriteString(m.Content)
	}
	return b.String()
}

// GenerateTurn runs one generator invocation for a and yields its messages as
// the chunker completes them. Generator failures are yielded once as
// generation errors; the sequence then ends.
func GenerateTurn(ctx context.Context, gen llm.Generator, ch *chunker.Chunker, a agent.Agent, goal string, transcript []conversation.Message) iter.Seq2[conversation.Message, error] {
	return func(yield func(conversation.Message, error) bool) {
		stream, err := gen.Generate(ctx, a.Persona, BuildContext(goal, transcript))
		if err != nil {
			yield(conversation.Message{}, asGeneration(err))
			return
		}
		for text, err := range ch.Messages(ctx, stream) {
			if err != nil {
				yield(conversation.Message{}, asGeneration(err))
				return
			}
			if !yield(conversation.NewMessage(text, a.Role), nil) {
				return
			}
		}
	}
}

func asGeneration(err error) error {
	if apperr.KindOf(err) != "" || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperr.Generation("scheduler.GenerateTurn", err)
}
