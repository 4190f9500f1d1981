// Package tools manages external tool server subprocesses speaking JSON-RPC
// over stdio, one request per line. The manager is the dispatcher's
// ToolCaller: workflow mcp_tool actions resolve to tools/call requests here.
package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"
)

const (
	protocolVersion  = "2024-11-05"
	handshakeTimeout = 10 * time.Second
	callTimeout      = 30 * time.Second
)

// ServerConfig describes how to launch and identify a tool server subprocess.
type ServerConfig struct {
	Name    string   `json:"name"`
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
	Env     []string `json:"env,omitempty"`
}

// Manager owns the tool server subprocesses, keyed by configured name.
type Manager struct {
	mu      sync.RWMutex
	servers map[string]*toolServer
	logger  *slog.Logger
	nextID  atomic.Int64
}

type toolServer struct {
	config ServerConfig
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Scanner
	cancel context.CancelFunc

	// frames carries raw response lines from the single reader goroutine.
	// Closed when the server's stdout closes.
	frames chan []byte
	done   chan struct{}

	// Serializes request/response pairs on the stdio pipe.
	callMu sync.Mutex
}

// readLoop is the only reader of the stdout scanner. It runs for the
// lifetime of the subprocess and hands every line to the current caller.
func (ts *toolServer) readLoop() {
	for ts.reader.Scan() {
		line := append([]byte(nil), ts.reader.Bytes()...)
		select {
		case ts.frames <- line:
		case <-ts.done:
			return
		}
	}
	close(ts.frames)
}

// NewManager creates an empty manager.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		servers: make(map[string]*toolServer),
		logger:  logger,
	}
}

// Start launches a tool server subprocess and performs the initialize
// handshake. The context bounds the subprocess lifetime, not the handshake.
func (m *Manager) Start(ctx context.Context, config ServerConfig) error {
	m.mu.Lock()
	if _, exists := m.servers[config.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("tool server %q already started", config.Name)
	}
	m.mu.Unlock()

	serverCtx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(serverCtx, config.Command, config.Args...)
	if len(config.Env) > 0 {
		cmd.Env = config.Env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	ts := &toolServer{
		config: config,
		cmd:    cmd,
		stdin:  stdin,
		reader: bufio.NewScanner(stdout),
		cancel: cancel,
		frames: make(chan []byte, 4),
		done:   make(chan struct{}),
	}
	ts.reader.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start tool server %q: %w", config.Name, err)
	}
	go ts.readLoop()

	if err := m.handshake(ts); err != nil {
		cancel()
		_ = cmd.Process.Kill()
		return fmt.Errorf("handshake with tool server %q: %w", config.Name, err)
	}

	m.mu.Lock()
	m.servers[config.Name] = ts
	m.mu.Unlock()

	m.logger.Info("tool server started", slog.String("name", config.Name), slog.String("command", config.Command))
	return nil
}

func (m *Manager) handshake(ts *toolServer) error {
	_, err := m.roundTrip(ts, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "automat",
			"version": "1.0.0",
		},
	}, handshakeTimeout)
	return err
}

// Call invokes tool on the named server. A remote {error} payload comes
// back as an error carrying the remote message.
func (m *Manager) Call(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	m.mu.RLock()
	ts, ok := m.servers[server]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool server %q not configured", server)
	}

	timeout := callTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	if args == nil {
		args = map[string]any{}
	}
	return m.roundTrip(ts, "tools/call", map[string]any{
		"name":      tool,
		"arguments": args,
	}, timeout)
}

// roundTrip writes one request line and waits for the response carrying the
// same id. The per-server mutex keeps concurrent callers from interleaving
// frames; id matching drops notifications and late replies to requests that
// already timed out.
func (m *Manager) roundTrip(ts *toolServer, method string, params map[string]any, timeout time.Duration) (any, error) {
	ts.callMu.Lock()
	defer ts.callMu.Unlock()

	id := m.nextID.Add(1)
	req := map[string]any{
		"jsonrpc": "2.0",
		"id":      id,
		"method":  method,
		"params":  params,
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", method, err)
	}
	data = append(data, '\n')
	if _, err := ts.stdin.Write(data); err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case line, open := <-ts.frames:
			if !open {
				return nil, fmt.Errorf("tool server closed stream during %s", method)
			}
			var resp map[string]any
			if err := json.Unmarshal(line, &resp); err != nil {
				continue
			}
			if got, ok := resp["id"].(float64); !ok || int64(got) != id {
				continue
			}
			if errField, exists := resp["error"]; exists {
				if em, ok := errField.(map[string]any); ok {
					if msg, ok := em["message"].(string); ok && msg != "" {
						return nil, fmt.Errorf("tool server error: %s", msg)
					}
				}
				errJSON, _ := json.Marshal(errField)
				return nil, fmt.Errorf("tool server error: %s", string(errJSON))
			}
			return resp["result"], nil
		case <-deadline.C:
			return nil, fmt.Errorf("%s timeout after %s", method, timeout)
		}
	}
}

// Stop shuts one server down, closing stdin first so it can exit cleanly.
func (m *Manager) Stop(name string) error {
	m.mu.Lock()
	ts, ok := m.servers[name]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("tool server %q not found", name)
	}
	delete(m.servers, name)
	m.mu.Unlock()

	_ = ts.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- ts.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		_ = ts.cmd.Process.Kill()
		<-done
	}
	close(ts.done)
	ts.cancel()

	m.logger.Info("tool server stopped", slog.String("name", name))
	return nil
}

// StopAll stops every managed server, returning the last error seen.
func (m *Manager) StopAll() error {
	m.mu.RLock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	m.mu.RUnlock()

	var lastErr error
	for _, name := range names {
		if err := m.Stop(name); err != nil {
			lastErr = err
			m.logger.Error("failed to stop tool server",
				slog.String("name", name), slog.String("error", err.Error()))
		}
	}
	return lastErr
}

// Names lists the started servers.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.servers))
	for name := range m.servers {
		names = append(names, name)
	}
	return names
}
