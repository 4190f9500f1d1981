package tools

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeServerScript speaks just enough line-delimited JSON-RPC for the
// manager: one handshake response, then one canned reply per request.
const fakeServerScript = `#!/bin/sh
read line
echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}'
while read line; do
  case "$line" in
    *fail_tool*)
      echo '{"jsonrpc":"2.0","id":2,"error":{"code":-32000,"message":"tool blew up"}}'
      ;;
    *)
      echo '{"jsonrpc":"2.0","id":2,"result":{"content":[{"type":"text","text":"pong"}]}}'
      ;;
  esac
done
`

func startFakeServer(t *testing.T, name string) *Manager {
	t.Helper()
	script := filepath.Join(t.TempDir(), "server.sh")
	require.NoError(t, os.WriteFile(script, []byte(fakeServerScript), 0o755))

	m := NewManager(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, m.Start(context.Background(), ServerConfig{
		Name:    name,
		Command: "/bin/sh",
		Args:    []string{script},
	}))
	t.Cleanup(func() { _ = m.StopAll() })
	return m
}

func TestCallRoundTrip(t *testing.T) {
	m := startFakeServer(t, "echo")

	result, err := m.Call(context.Background(), "echo", "ping", map[string]any{"value": 1})
	require.NoError(t, err)

	rm, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Contains(t, rm, "content")
}

func TestCallRemoteError(t *testing.T) {
	m := startFakeServer(t, "echo")

	_, err := m.Call(context.Background(), "echo", "fail_tool", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool blew up")
}

func TestCallUnknownServer(t *testing.T) {
	m := NewManager(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	_, err := m.Call(context.Background(), "ghost", "ping", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestStartTwiceFails(t *testing.T) {
	m := startFakeServer(t, "echo")

	err := m.Start(context.Background(), ServerConfig{Name: "echo", Command: "/bin/sh"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

// slowServerScript echoes the request id back so replies can be matched.
// slow_tool answers a second late, from a background subshell.
const slowServerScript = `#!/bin/sh
read line
echo '{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2024-11-05"}}'
while read line; do
  id=$(printf '%s' "$line" | sed 's/.*"id":\([0-9]*\).*/\1/')
  case "$line" in
    *slow_tool*)
      ( sleep 1; echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"text\":\"late\"}}" ) &
      ;;
    *)
      echo "{\"jsonrpc\":\"2.0\",\"id\":$id,\"result\":{\"text\":\"fresh\"}}"
      ;;
  esac
done
`

func TestCallAfterTimeoutSkipsStaleReply(t *testing.T) {
	script := filepath.Join(t.TempDir(), "server.sh")
	require.NoError(t, os.WriteFile(script, []byte(slowServerScript), 0o755))

	m := NewManager(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, m.Start(context.Background(), ServerConfig{
		Name:    "slow",
		Command: "/bin/sh",
		Args:    []string{script},
	}))
	t.Cleanup(func() { _ = m.StopAll() })

	shortCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := m.Call(shortCtx, "slow", "slow_tool", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")

	// Let the late reply to the timed-out request land first. The next
	// call must get its own answer, not the stale frame.
	time.Sleep(1200 * time.Millisecond)

	result, err := m.Call(context.Background(), "slow", "fast_tool", nil)
	require.NoError(t, err)
	rm, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "fresh", rm["text"])
}

func TestStopRemovesServer(t *testing.T) {
	m := startFakeServer(t, "echo")

	require.NoError(t, m.Stop("echo"))
	assert.Empty(t, m.Names())

	err := m.Stop("echo")
	require.Error(t, err)
}
