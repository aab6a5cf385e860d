package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comigor/roundtable/internal/apperr"
	"github.com/comigor/roundtable/internal/config"
)

func sseServer(t *testing.T, status int, lines ...string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if status != http.StatusOK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			fmt.Fprint(w, `{"error":{"message":"upstream exploded","type":"server_error"}}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestGenerator(t *testing.T, srv *httptest.Server) *OpenAIGenerator {
	t.Helper()
	g, err := NewOpenAIGenerator(config.LLMConfig{APIKey: "sk-test", BaseURL: srv.URL, Model: "gpt-4o-mini"})
	require.NoError(t, err)
	return g
}

func drain(t *testing.T, s Stream) (fragments []string, parseErrs int) {
	t.Helper()
	defer s.Close()
	for {
		f, err := s.Recv()
		if errors.Is(err, io.EOF) {
			return fragments, parseErrs
		}
		if apperr.IsParse(err) {
			parseErrs++
			continue
		}
		require.NoError(t, err)
		fragments = append(fragments, f)
	}
}

func TestOpenAIGenerator_StreamsFragments(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"Hello"}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":" world."}}]}`,
		`{"id":"c1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{},"finish_reason":"stop"}]}`,
		`[DONE]`,
	)

	s, err := newTestGenerator(t, srv).Generate(context.Background(), "persona", "Goal: x")
	require.NoError(t, err)

	fragments, parseErrs := drain(t, s)
	require.Equal(t, []string{"Hello", " world."}, fragments)
	require.Zero(t, parseErrs)
}

func TestOpenAIGenerator_MalformedChunkIsParseError(t *testing.T) {
	srv := sseServer(t, http.StatusOK,
		`{"choices":[{"index":0,"delta":{"content":"one"}}]}`,
		`{not json`,
		`{"choices":[{"index":0,"delta":{"content":" two"}}]}`,
		`[DONE]`,
	)

	s, err := newTestGenerator(t, srv).Generate(context.Background(), "persona", "ctx")
	require.NoError(t, err)

	fragments, parseErrs := drain(t, s)
	require.Equal(t, []string{"one", " two"}, fragments)
	require.Equal(t, 1, parseErrs)
}

func TestOpenAIGenerator_UpstreamFailure(t *testing.T) {
	srv := sseServer(t, http.StatusInternalServerError)

	_, err := newTestGenerator(t, srv).Generate(context.Background(), "persona", "ctx")
	require.Error(t, err)
	require.True(t, apperr.IsGeneration(err))
	require.True(t, strings.Contains(err.Error(), "upstream exploded"))
}

func TestNewOpenAIGenerator_MissingKey(t *testing.T) {
	_, err := NewOpenAIGenerator(config.LLMConfig{Model: "gpt-4o-mini"})
	require.True(t, apperr.IsConfiguration(err))
}

func TestScriptedGenerator(t *testing.T) {
	boom := errors.New("boom")
	g := NewScriptedGenerator(
		Turn{Fragments: []string{"a", "b"}},
		Turn{Err: boom},
	)

	s, err := g.Generate(context.Background(), "p", "c")
	require.NoError(t, err)
	require.Equal(t, 1, g.Open())
	fragments, _ := drain(t, s)
	require.Equal(t, []string{"a", "b"}, fragments)
	require.Zero(t, g.Open())

	_, err = g.Generate(context.Background(), "p2", "c2")
	require.ErrorIs(t, err, boom)
	require.Equal(t, 2, g.Calls())

	persona, ctxText := g.LastPrompt()
	require.Equal(t, "p2", persona)
	require.Equal(t, "c2", ctxText)
}

func TestScriptedGenerator_GateHonoursCancel(t *testing.T) {
	gate := make(chan struct{})
	g := NewScriptedGenerator(Turn{Fragments: []string{"x"}, Gate: gate})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := g.Generate(ctx, "p", "c")
	require.NoError(t, err)
	cancel()

	_, err = s.Recv()
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnavailable(t *testing.T) {
	cause := apperr.Configuration("test", errors.New("no key"))
	_, err := Unavailable(cause).Generate(context.Background(), "p", "c")
	require.ErrorIs(t, err, cause)
	require.True(t, apperr.IsConfiguration(err))
}
