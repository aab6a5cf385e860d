package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/logger"
)

// NewClient creates a new OpenAI client
func NewClient(cfg config.LLMConfig) *openai.Client {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return openai.NewClientWithConfig(config)
}

// OpenAIGenerator streams chat completions: the persona is the system message
// and the conversation context is the user message.
type OpenAIGenerator struct {
	client ChatStreamer
	cfg    config.LLMConfig
}

// NewOpenAIGenerator fails with a configuration error when no API key is set.
func NewOpenAIGenerator(cfg config.LLMConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, apperr.Configuration("llm.NewOpenAIGenerator", errors.New("OpenAI API key is not configured"))
	}
	return &OpenAIGenerator{client: NewClient(cfg), cfg: cfg}, nil
}

func (g *OpenAIGenerator) Generate(ctx context.Context, persona, contextText string) (Stream, error) {
	req := openai.ChatCompletionRequest{
		Model: g.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: persona},
			{Role: openai.ChatMessageRoleUser, Content: contextText},
		},
		Temperature: g.cfg.Temperature,
		MaxTokens:   g.cfg.MaxTokens,
		Stream:      true,
	}
	logger.L.DebugContext(ctx, "opening completion stream", "model", g.cfg.Model, "context_len", len(contextText))

	s, err := g.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, apperr.Generation("llm.Generate", err)
	}
	return &openAIStream{stream: s}, nil
}

type openAIStream struct {
	stream    *openai.ChatCompletionStream
	closeOnce sync.Once
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				return "", apperr.Parse("llm.Recv", err)
			}
			return "", apperr.Generation("llm.Recv", fmt.Errorf("completion stream: %w", err))
		}
		// role-only and finish chunks carry no text
		if len(resp.Choices) == 0 || resp.Choices[0].Delta.Content == "" {
			continue
		}
		return resp.Choices[0].Delta.Content, nil
	}
}

func (s *openAIStream) Close() error {
	s.closeOnce.Do(func() {
		s.stream.Close()
	})
	return nil
}
