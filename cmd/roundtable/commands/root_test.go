package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
limits:
  max_turns: 2
  min_message_length: 1
pacing:
  min: 0s
  max: 0s
history:
  path: ` + filepath.Join(dir, "history.db") + "\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		configPath, logLevel, chatDryRun = "", "", false
	})
	err := Execute()
	return buf.String(), err
}

func TestRoot_ShowsHelp(t *testing.T) {
	out, err := execute(t, "--config", writeTestConfig(t, ""))
	assert.NoError(t, err)
	assert.Contains(t, out, "Usage:")
	assert.Contains(t, out, "chat")
	assert.Contains(t, out, "serve")
}

func TestRoot_RejectsUnknownFlags(t *testing.T) {
	_, err := execute(t, "--goal", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestRoot_InvalidConfig(t *testing.T) {
	_, err := execute(t, "--config", writeTestConfig(t, "reviewer_role: poet\n"), "chat", "--dry-run", "goal")
	require.EqualError(t, err, "invalid configuration")
}

func TestChat_DryRun(t *testing.T) {
	out, err := execute(t, "--config", writeTestConfig(t, ""), "--log-level", "error", "chat", "--dry-run", "plan", "a", "picnic")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out, "user: plan a picnic\n"))
	assert.Contains(t, out, "researcher: ")
	assert.Contains(t, out, "critic: ")
	assert.Contains(t, out, "-- run complete (turn_limit) --")
	assert.Equal(t, "error", cfg.LogLevel)
}

func TestHistory_UnknownRun(t *testing.T) {
	_, err := execute(t, "--config", writeTestConfig(t, ""), "history", "nope")
	require.EqualError(t, err, "run not found")
}
