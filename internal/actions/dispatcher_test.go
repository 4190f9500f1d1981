package actions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automat-dev/automat/pkg/schema"
)

type fakeToolCaller struct {
	server string
	tool   string
	args   map[string]any
	result any
	err    error
}

func (f *fakeToolCaller) Call(ctx context.Context, server, tool string, args map[string]any) (any, error) {
	f.server, f.tool, f.args = server, tool, args
	return f.result, f.err
}

type fakeGenerator struct {
	prompt   string
	model    string
	response string
	err      error
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt, model string) (string, error) {
	f.prompt, f.model = prompt, model
	return f.response, f.err
}

func newTestDispatcher(tools ToolCaller, genai TextGenerator) *Dispatcher {
	return NewDispatcher(tools, genai, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func TestDispatchUnknownActionType(t *testing.T) {
	d := newTestDispatcher(nil, nil)

	_, err := d.Dispatch(context.Background(), schema.Action{Type: "teleport"}, nil)
	var autoErr *schema.AutomatError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, schema.ErrCodeUnknownAction, autoErr.Code)
}

func TestDispatchToolSubstitutesParameters(t *testing.T) {
	tools := &fakeToolCaller{result: map[string]any{"ok": true}}
	d := newTestDispatcher(tools, nil)

	result, err := d.Dispatch(context.Background(), schema.Action{
		Type:       schema.ActionMCPTool,
		Server:     "files",
		Tool:       "read",
		Parameters: map[string]any{"path": "/tmp/{{name}}.txt", "depth": 2},
	}, map[string]any{"name": "report"})
	require.NoError(t, err)

	assert.Equal(t, "files", tools.server)
	assert.Equal(t, "read", tools.tool)
	assert.Equal(t, "/tmp/report.txt", tools.args["path"])
	assert.Equal(t, 2, tools.args["depth"])
	assert.Equal(t, map[string]any{"ok": true}, result)
}

func TestDispatchToolMissingFields(t *testing.T) {
	d := newTestDispatcher(&fakeToolCaller{}, nil)

	_, err := d.Dispatch(context.Background(), schema.Action{Type: schema.ActionMCPTool, Server: "files"}, nil)
	var autoErr *schema.AutomatError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, schema.ErrCodeValidation, autoErr.Code)
}

func TestDispatchToolRemoteError(t *testing.T) {
	tools := &fakeToolCaller{err: errors.New("tool exploded")}
	d := newTestDispatcher(tools, nil)

	_, err := d.Dispatch(context.Background(), schema.Action{
		Type: schema.ActionMCPTool, Server: "files", Tool: "read",
	}, nil)
	var autoErr *schema.AutomatError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, schema.ErrCodeExecution, autoErr.Code)
	assert.Contains(t, autoErr.Message, "tool exploded")
}

func TestDispatchPrompt(t *testing.T) {
	gen := &fakeGenerator{response: "All clear."}
	d := newTestDispatcher(nil, gen)

	result, err := d.Dispatch(context.Background(), schema.Action{
		Type:   schema.ActionAIPrompt,
		Prompt: "Summarize: {{message}}",
		Model:  "fast",
	}, map[string]any{"message": "long text"})
	require.NoError(t, err)

	assert.Equal(t, "Summarize: long text", gen.prompt)
	assert.Equal(t, "fast", gen.model)
	m, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "All clear.", m["response"])
	assert.Equal(t, "Summarize: long text", m["prompt"])
}

func TestDispatchPromptRequiresPrompt(t *testing.T) {
	d := newTestDispatcher(nil, &fakeGenerator{})

	_, err := d.Dispatch(context.Background(), schema.Action{Type: schema.ActionAIPrompt}, nil)
	var autoErr *schema.AutomatError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, schema.ErrCodeValidation, autoErr.Code)
}

func TestDispatchNotification(t *testing.T) {
	d := newTestDispatcher(nil, nil)

	result, err := d.Dispatch(context.Background(), schema.Action{
		Type:    schema.ActionNotification,
		Title:   "Build {{status}}",
		Message: "Pipeline {{pipeline}} finished",
	}, map[string]any{"status": "passed", "pipeline": "main"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"title":   "Build passed",
		"message": "Pipeline main finished",
	}, result)
}

func TestDispatchClipboard(t *testing.T) {
	d := newTestDispatcher(nil, nil)

	result, err := d.Dispatch(context.Background(), schema.Action{
		Type:      schema.ActionClipboard,
		Operation: "copy",
		Content:   "{{lastResult}}",
	}, map[string]any{"lastResult": "42"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"copied": "42"}, result)

	result, err = d.Dispatch(context.Background(), schema.Action{
		Type:      schema.ActionClipboard,
		Operation: "paste",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, result)
}

func TestDispatchHTTPRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "token-abc", r.Header.Get("X-Auth"))
		body, _ := io.ReadAll(r.Body)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))
		assert.Equal(t, "hello world", payload["text"])

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"received": true})
	}))
	defer srv.Close()

	d := newTestDispatcher(nil, nil)
	result, err := d.Dispatch(context.Background(), schema.Action{
		Type:    schema.ActionHTTPRequest,
		Method:  "POST",
		URL:     srv.URL + "/ingest",
		Headers: map[string]string{"X-Auth": "token-{{token}}"},
		Body:    map[string]any{"text": "hello {{planet}}"},
	}, map[string]any{"token": "abc", "planet": "world"})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"received": true}, result)
}

func TestDispatchHTTPRequestInvalidURL(t *testing.T) {
	d := newTestDispatcher(nil, nil)

	_, err := d.Dispatch(context.Background(), schema.Action{
		Type: schema.ActionHTTPRequest,
		URL:  "ftp://example.com",
	}, nil)
	var autoErr *schema.AutomatError
	require.ErrorAs(t, err, &autoErr)
	assert.Equal(t, schema.ErrCodeValidation, autoErr.Code)
}

func TestDispatchHTTPRequestNonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, "plain response")
	}))
	defer srv.Close()

	d := newTestDispatcher(nil, nil)
	result, err := d.Dispatch(context.Background(), schema.Action{
		Type: schema.ActionHTTPRequest,
		URL:  srv.URL,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "plain response", result)
}
