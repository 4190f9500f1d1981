// Package actions executes individual workflow steps. The dispatcher owns
// no workflow state; everything it needs arrives with the action and the
// run context, and side effects happen only through the collaborators.
package actions

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/automat-dev/automat/internal/expressions"
	"github.com/automat-dev/automat/pkg/schema"
)

// ToolCaller invokes a named tool on an external tool server.
type ToolCaller interface {
	Call(ctx context.Context, server, tool string, args map[string]any) (any, error)
}

// TextGenerator produces a completion for a prompt. An empty model selects
// the generator's default.
type TextGenerator interface {
	Generate(ctx context.Context, prompt, model string) (string, error)
}

// Dispatcher routes a single action to its handler.
type Dispatcher struct {
	tools  ToolCaller
	genai  TextGenerator
	client *http.Client
	logger *slog.Logger

	maxResponseBody int64
}

// NewDispatcher creates a dispatcher. Either collaborator may be nil, in
// which case the corresponding action type fails with an execution error.
func NewDispatcher(tools ToolCaller, genai TextGenerator, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tools:           tools,
		genai:           genai,
		client:          &http.Client{},
		logger:          logger,
		maxResponseBody: defaultMaxResponseBody,
	}
}

// Dispatch executes one action with every string-bearing field resolved
// against runCtx. The returned value becomes lastResult for the next step.
func (d *Dispatcher) Dispatch(ctx context.Context, action schema.Action, runCtx map[string]any) (any, error) {
	switch action.Type {
	case schema.ActionMCPTool:
		return d.dispatchTool(ctx, action, runCtx)
	case schema.ActionAIPrompt:
		return d.dispatchPrompt(ctx, action, runCtx)
	case schema.ActionNotification:
		return d.dispatchNotification(action, runCtx)
	case schema.ActionClipboard:
		return d.dispatchClipboard(action, runCtx)
	case schema.ActionHTTPRequest:
		return d.dispatchHTTP(ctx, action, runCtx)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeUnknownAction, "unknown action type %q", action.Type)
	}
}

func (d *Dispatcher) dispatchTool(ctx context.Context, action schema.Action, runCtx map[string]any) (any, error) {
	if action.Server == "" || action.Tool == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "mcp_tool action requires server and tool")
	}
	if d.tools == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "no tool servers configured")
	}
	args := expressions.SubstituteMap(action.Parameters, runCtx)
	d.logger.Debug("calling tool", "server", action.Server, "tool", action.Tool)
	result, err := d.tools.Call(ctx, action.Server, action.Tool, args)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution,
			"tool %s/%s failed: %v", action.Server, action.Tool, err).WithCause(err)
	}
	return result, nil
}

func (d *Dispatcher) dispatchPrompt(ctx context.Context, action schema.Action, runCtx map[string]any) (any, error) {
	if action.Prompt == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "ai_prompt action requires a prompt")
	}
	if d.genai == nil {
		return nil, schema.NewError(schema.ErrCodeExecution, "no text generator configured")
	}
	prompt := expressions.SubstituteString(action.Prompt, runCtx)
	response, err := d.genai.Generate(ctx, prompt, action.Model)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeExecution, "prompt failed: %v", err).WithCause(err)
	}
	return map[string]any{
		"prompt":   prompt,
		"response": response,
		"model":    action.Model,
	}, nil
}

// dispatchNotification resolves the notification text. Rendering is the
// host's job; the resolved pair is the result.
func (d *Dispatcher) dispatchNotification(action schema.Action, runCtx map[string]any) (any, error) {
	title := expressions.SubstituteString(action.Title, runCtx)
	message := expressions.SubstituteString(action.Message, runCtx)
	d.logger.Info("notification", "title", title, "message", message)
	return map[string]any{
		"title":   title,
		"message": message,
	}, nil
}

func (d *Dispatcher) dispatchClipboard(action schema.Action, runCtx map[string]any) (any, error) {
	if action.Operation != "copy" {
		return map[string]any{}, nil
	}
	content := expressions.SubstituteString(action.Content, runCtx)
	return map[string]any{"copied": content}, nil
}
