package llm

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// Turn scripts the outcome of one Generate call.
type Turn struct {
	Fragments []string
	// Err is returned by Generate itself when set.
	Err error
	// RecvErr is returned by Recv once Fragments are exhausted instead of io.EOF.
	RecvErr error
	// Gate, when non-nil, blocks the first Recv until it is closed or the context ends.
	Gate <-chan struct{}
}

// ScriptedGenerator replays Turns in order, one per Generate call. Once the
// script is exhausted it starts again from the first turn. It backs tests and
// the dry-run mode of the CLI.
type ScriptedGenerator struct {
	mu    sync.Mutex
	turns []Turn
	next  int
	calls atomic.Int64
	open  atomic.Int64
	last  []string
}

func NewScriptedGenerator(turns ...Turn) *ScriptedGenerator {
	return &ScriptedGenerator{turns: turns}
}

// Calls is the number of Generate invocations so far.
func (g *ScriptedGenerator) Calls() int { return int(g.calls.Load()) }

// Open is the number of streams handed out and not yet closed.
func (g *ScriptedGenerator) Open() int { return int(g.open.Load()) }

// LastPrompt returns the persona and context of the most recent call.
func (g *ScriptedGenerator) LastPrompt() (persona, contextText string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.last) != 2 {
		return "", ""
	}
	return g.last[0], g.last[1]
}

func (g *ScriptedGenerator) Generate(ctx context.Context, persona, contextText string) (Stream, error) {
	g.calls.Add(1)

	g.mu.Lock()
	g.last = []string{persona, contextText}
	var turn Turn
	if len(g.turns) > 0 {
		turn = g.turns[g.next%len(g.turns)]
		g.next++
	}
	g.mu.Unlock()

	if turn.Err != nil {
		return nil, turn.Err
	}
	g.open.Add(1)
	return &sliceStream{ctx: ctx, turn: turn, gen: g}, nil
}

type sliceStream struct {
	ctx    context.Context
	turn   Turn
	pos    int
	gated  bool
	gen    *ScriptedGenerator
	closed sync.Once
}

func (s *sliceStream) Recv() (string, error) {
	if !s.gated && s.turn.Gate != nil {
		s.gated = true
		select {
		case <-s.turn.Gate:
		case <-s.ctx.Done():
			return "", s.ctx.Err()
		}
	}
	if err := s.ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.turn.Fragments) {
		if s.turn.RecvErr != nil {
			return "", s.turn.RecvErr
		}
		return "", io.EOF
	}
	f := s.turn.Fragments[s.pos]
	s.pos++
	return f, nil
}

func (s *sliceStream) Close() error {
	s.closed.Do(func() {
		s.gen.open.Add(-1)
	})
	return nil
}
