package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "resellerd", cmd.Use)
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := [][]string{{"serve"}, {"sync"}, {"enqueue"}, {"queue", "list"}, {"queue", "clear"}, {"status"}}

	for _, path := range commands {
		t.Run(path[len(path)-1], func(t *testing.T) {
			subCmd, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	for _, name := range []string{"config", "data-dir", "remote"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
}

func run(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func decodeResponse(t *testing.T, out string) map[string]interface{} {
	t.Helper()
	var resp struct {
		Status string                 `json:"status"`
		Data   map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), "output: %s", out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data
}

func TestInvalidFormat(t *testing.T) {
	code, _, stderr := run(t, "status", "--remote", "memory", "--data-dir", t.TempDir(), "--format", "yaml")
	assert.Equal(t, ExitFailure, code)
	assert.Contains(t, stderr, "invalid format")
}

func TestInvalidConfig(t *testing.T) {
	code, _, stderr := run(t, "status", "--remote", "mongo", "--data-dir", t.TempDir())
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "CONFIG_INVALID")
}

func TestEnqueueSyncRoundTrip(t *testing.T) {
	dir := t.TempDir()
	global := []string{"--remote", "memory", "--data-dir", dir, "--format", "json"}
	with := func(args ...string) []string { return append(args, global...) }

	code, out, stderr := run(t, with("enqueue", "--table", "clients", "--op", "insert",
		"--payload", `{"name":"Maria","credits":12}`)...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.NotEmpty(t, decodeResponse(t, out)["id"])

	code, out, stderr = run(t, with("queue", "list")...)
	require.Equal(t, ExitSuccess, code, stderr)
	data := decodeResponse(t, out)
	assert.EqualValues(t, 1, data["total"])

	code, out, stderr = run(t, with("sync")...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.EqualValues(t, 1, decodeResponse(t, out)["succeeded"])

	code, out, stderr = run(t, with("status")...)
	require.Equal(t, ExitSuccess, code, stderr)
	data = decodeResponse(t, out)
	assert.EqualValues(t, 0, data["pending_count"])
	assert.NotEmpty(t, data["last_sync_at"])
}

func TestEnqueue_invalid(t *testing.T) {
	dir := t.TempDir()

	code, _, stderr := run(t, "enqueue", "--table", "customers", "--op", "insert", "--remote", "memory", "--data-dir", dir)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "INVALID_TABLE")

	code, _, stderr = run(t, "enqueue", "--table", "clients", "--op", "insert", "--payload", "[1]", "--remote", "memory", "--data-dir", dir)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "invalid --payload")
}

func TestQueueList_text(t *testing.T) {
	code, out, stderr := run(t, "queue", "list", "--remote", "memory", "--data-dir", t.TempDir())
	require.Equal(t, ExitSuccess, code, stderr)
	assert.Contains(t, out, "Queue is empty")
}

func TestQueueClear(t *testing.T) {
	dir := t.TempDir()
	global := []string{"--remote", "memory", "--data-dir", dir, "--format", "json"}
	with := func(args ...string) []string { return append(args, global...) }

	code, _, stderr := run(t, with("enqueue", "--table", "plans", "--op", "insert", "--payload", `{"name":"Basic"}`)...)
	require.Equal(t, ExitSuccess, code, stderr)

	code, _, stderr = run(t, with("queue", "clear")...)
	assert.Equal(t, ExitCommandError, code)
	assert.Contains(t, stderr, "--yes")

	code, out, stderr := run(t, with("queue", "clear", "--yes")...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.EqualValues(t, 1, decodeResponse(t, out)["cleared"])

	code, out, stderr = run(t, with("queue", "list")...)
	require.Equal(t, ExitSuccess, code, stderr)
	assert.EqualValues(t, 0, decodeResponse(t, out)["total"])
}
