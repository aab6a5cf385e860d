// Package mcptool exposes collaboration runs as MCP tools over stdio.
package mcptool

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/comigor/roundtable/internal/conversation"
	"github.com/comigor/roundtable/internal/logger"
	"github.com/comigor/roundtable/internal/scheduler"
)

const (
	ToolCollaborate = "collaborate"
	ToolTranscript  = "current_transcript"
)

type Tools struct {
	sched *scheduler.Scheduler
}

func New(sched *scheduler.Scheduler) *Tools {
	return &Tools{sched: sched}
}

// Server registers the tools on a new MCP server.
func (t *Tools) Server(version string) *server.MCPServer {
	s := server.NewMCPServer("roundtable", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool(ToolCollaborate,
		mcp.WithDescription("Have the agent roster collaborate on a goal until they converge or hit the turn limit, then return the transcript."),
		mcp.WithString("goal", mcp.Required(), mcp.Description("What the agents should work on.")),
	), t.collaborate)

	s.AddTool(mcp.NewTool(ToolTranscript,
		mcp.WithDescription("Return the transcript of the current or most recent run."),
	), t.transcript)

	return s
}

// ServeStdio blocks serving MCP over stdin/stdout.
func (t *Tools) ServeStdio(version string) error {
	return server.ServeStdio(t.Server(version))
}

func (t *Tools) collaborate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	goal, _ := req.GetArguments()["goal"].(string)
	snap, err := t.sched.Start(ctx, goal)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	ctx = logger.WithFields(ctx, logger.Fields{RunID: snap.RunID, Component: "mcp"})
	logger.L.InfoContext(ctx, "collaboration requested", "goal", snap.Goal)
	if err := t.sched.Run(ctx); err != nil {
		logger.L.WarnContext(ctx, "collaboration did not finish", "error", err)
		return mcp.NewToolResultError(fmt.Sprintf("collaboration did not finish: %v", err)), nil
	}
	return mcp.NewToolResultText(Render(t.sched.Snapshot())), nil
}

func (t *Tools) transcript(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	snap := t.sched.Snapshot()
	if snap.Stage == conversation.StageAwaitingGoal {
		return mcp.NewToolResultError("no run has been started"), nil
	}
	return mcp.NewToolResultText(Render(snap)), nil
}

// Render formats a snapshot as plain text, one message per paragraph.
func Render(snap conversation.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Goal: %s\nStage: %s, turns: %d\n", snap.Goal, snap.Stage, snap.TurnCount)
	for _, m := range snap.Transcript {
		fmt.Fprintf(&b, "\n%s: %s\n", m.Sender, m.Content)
	}
	return b.String()
}
