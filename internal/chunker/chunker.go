// Package chunker turns the fragment stream of one generator invocation into
// whole chat messages.
package chunker

import (
	"context"
	"errors"
	"io"
	"iter"
	"math/rand/v2"
	"time"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/llm"
	"github.com/comigor/roundtable/internal/logger"
)

const (
	DefaultFenceMarker = "```"
	DefaultBoundaries  = "\n.?"
)

// Pacer runs before each message is handed to the consumer.
type Pacer func(ctx context.Context) error

// RandomPacer waits a uniformly random duration in [lo, hi]. It returns nil,
// meaning no delay, when hi is not positive.
func RandomPacer(lo, hi time.Duration) Pacer {
	if hi <= 0 {
		return nil
	}
	return func(ctx context.Context) error {
		d := lo
		if hi > lo {
			d += rand.N(hi - lo + 1)
		}
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			return nil
		}
	}
}

type Options struct {
	MinLength   int
	FenceMarker string
	Boundaries  string
	Pacer       Pacer
}

// OptionsFromConfig builds chunker options from the application config.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		MinLength:   cfg.Limits.MinMessageLength,
		FenceMarker: cfg.Chunking.FenceMarker,
		Boundaries:  cfg.Chunking.Boundaries,
		Pacer:       RandomPacer(cfg.Pacing.Min, cfg.Pacing.Max),
	}
}

type Chunker struct {
	opts Options
}

func New(opts Options) *Chunker {
	if opts.FenceMarker == "" {
		opts.FenceMarker = DefaultFenceMarker
	}
	if opts.Boundaries == "" {
		opts.Boundaries = DefaultBoundaries
	}
	return &Chunker{opts: opts}
}

// WithMinLength returns a copy of c using a different length floor.
func (c *Chunker) WithMinLength(n int) *Chunker {
	opts := c.opts
	opts.MinLength = n
	return &Chunker{opts: opts}
}

// Messages yields complete messages from s in arrival order. s is closed on
// every exit path, including when the consumer stops early or ctx ends.
// Malformed fragments are logged and skipped; any other stream error is
// yielded once and ends the sequence.
func (c *Chunker) Messages(ctx context.Context, s llm.Stream) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		defer s.Close()

		sp := newSplitter(c.opts.FenceMarker, c.opts.Boundaries, c.opts.MinLength)
		emit := func(msgs []string) bool {
			for _, m := range msgs {
				if c.opts.Pacer != nil {
					if err := c.opts.Pacer(ctx); err != nil {
						yield("", err)
						return false
					}
				}
				if !yield(m, nil) {
					return false
				}
			}
			return true
		}

		for {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			fragment, err := s.Recv()
			if errors.Is(err, io.EOF) {
				emit(sp.Flush())
				return
			}
			if err != nil {
				if apperr.IsParse(err) {
					logger.L.WarnContext(ctx, "skipping malformed fragment", "error", err)
					continue
				}
				yield("", err)
				return
			}
			if !emit(sp.Feed(fragment)) {
				return
			}
		}
	}
}

// Collect drains Messages into a slice, stopping at the first error.
func (c *Chunker) Collect(ctx context.Context, s llm.Stream) ([]string, error) {
	var out []string
	for m, err := range c.Messages(ctx, s) {
		if err != nil {
			return out, err
		}
		out = append(out, m)
	}
	return out, nil
}
