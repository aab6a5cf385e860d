package llm

import (
	"context"

	"github.com/sashabaranov/go-openai"
)

// Stream is the fragment sequence of one generator invocation. Recv returns
// io.EOF once the stream has ended; any other error is either a ParseError
// (skip the fragment and keep reading) or terminal. Close releases the
// underlying connection and must be safe to call more than once.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Generator produces the fragments for one agent turn.
type Generator interface {
	Generate(ctx context.Context, persona, contextText string) (Stream, error)
}

// ChatStreamer is the subset of openai.Client used by OpenAIGenerator.
type ChatStreamer interface {
	CreateChatCompletionStream(ctx context.Context, req openai.ChatCompletionRequest) (*openai.ChatCompletionStream, error)
}

type unavailable struct{ err error }

// Unavailable returns a Generator whose every call fails with err. It stands
// in for the OpenAI generator when no credentials are configured, so the
// failure surfaces per request instead of at startup.
func Unavailable(err error) Generator { return unavailable{err: err} }

func (u unavailable) Generate(context.Context, string, string) (Stream, error) { return nil, u.err }
