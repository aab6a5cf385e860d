package mcptool

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/comigor/roundtable/internal/config"
	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/llm"
	"github.com/comigor/roundtable/internal/scheduler"
)

func newTools(t *testing.T, turns ...llm.Turn) *Tools {
	t.Helper()
	cfg := config.Default()
	cfg.Limits.MinMessageLength = 1
	cfg.Limits.MaxTurns = 2
	cfg.Pacing.Min, cfg.Pacing.Max = 0, 0

	sched, err := scheduler.FromConfig(cfg, llm.NewScriptedGenerator(turns...))
	require.NoError(t, err)
	t.Cleanup(sched.Close)
	return New(sched)
}

func call(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func text(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, res.Content)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestCollaborate(t *testing.T) {
	tools := newTools(t, llm.Turn{Fragments: []string{"My contribution."}})

	res, err := tools.collaborate(context.Background(), call(ToolCollaborate, map[string]any{"goal": "name the project"}))
	require.NoError(t, err)
	require.False(t, res.IsError)

	out := text(t, res)
	require.Contains(t, out, "Goal: name the project")
	require.Contains(t, out, "Stage: complete, turns: 2")
	require.Contains(t, out, "critic: My contribution.")
}

func TestCollaborate_MissingGoal(t *testing.T) {
	tools := newTools(t)
	res, err := tools.collaborate(context.Background(), call(ToolCollaborate, nil))
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Contains(t, text(t, res), "goal is empty")
}

func TestTranscript(t *testing.T) {
	tools := newTools(t, llm.Turn{Fragments: []string{"Hi."}})

	res, err := tools.transcript(context.Background(), call(ToolTranscript, nil))
	require.NoError(t, err)
	require.True(t, res.IsError)

	_, err = tools.collaborate(context.Background(), call(ToolCollaborate, map[string]any{"goal": "g"}))
	require.NoError(t, err)
	res, err = tools.transcript(context.Background(), call(ToolTranscript, nil))
	require.NoError(t, err)
	require.Contains(t, text(t, res), "researcher: Hi.")
}

func TestServerRegistersTools(t *testing.T) {
	require.NotNil(t, newTools(t).Server("test"))
}

func TestRender(t *testing.T) {
	out := Render(conversation.Snapshot{
		Goal:       "g",
		Stage:      conversation.StageRunning,
		Transcript: []conversation.Message{conversation.NewMessage("hello", conversation.Human)},
	})
	require.Equal(t, "Goal: g\nStage: running, turns: 0\n\nuser: hello\n", out)
}
