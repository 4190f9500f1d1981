package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/automat-dev/automat/internal/store"
	"github.com/automat-dev/automat/pkg/schema"
)

// handleCreate validates and stores a new workflow.
func (s *AutomatServer) handleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	wf, err := workflowFromArgs(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid workflow: %v", err)), nil
	}
	if wf.Trigger.Type == "" {
		wf.Trigger.Type = schema.TriggerManual
	}
	if err := s.validator.ValidateWorkflow(wf); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	created, err := s.store.Create(ctx, wf)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create workflow: %v", err)), nil
	}
	s.logger.Info("workflow created", "id", created.ID, "name", created.Name)
	return marshalResult(created)
}

// handleUpdate merges the provided fields onto an existing workflow. The
// merged result is validated before anything is stored.
func (s *AutomatServer) handleUpdate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	args := req.GetArguments()

	patch := store.WorkflowPatch{}
	if v, ok := args["name"].(string); ok {
		patch.Name = &v
	}
	if v, ok := args["description"].(string); ok {
		patch.Description = &v
	}
	if v, ok := args["enabled"].(bool); ok {
		patch.Enabled = &v
	}
	if raw, ok := args["trigger"]; ok {
		var trig schema.Trigger
		if err := reparse(raw, &trig); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid trigger: %v", err)), nil
		}
		patch.Trigger = &trig
	}
	if raw, ok := args["actions"]; ok {
		var acts []schema.Action
		if err := reparse(raw, &acts); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid actions: %v", err)), nil
		}
		patch.Actions = &acts
	}

	existing, err := s.store.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	merged := previewMerge(existing, patch)
	if err := s.validator.ValidateWorkflow(merged); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("workflow updated", "id", id)
	return marshalResult(updated)
}

func (s *AutomatServer) handleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	s.logger.Info("workflow deleted", "id", id)
	return marshalResult(map[string]any{"deleted": id})
}

func (s *AutomatServer) handleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	wf, err := s.store.Get(id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(wf)
}

func (s *AutomatServer) handleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return marshalResult(map[string]any{"workflows": s.store.GetAll()})
}

// handleExecute runs one workflow directly, bypassing trigger matching.
// The execution record is returned even when the run failed; the record
// itself carries the error detail.
func (s *AutomatServer) handleExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError("id is required"), nil
	}
	runCtx := mcp.ParseStringMap(req, "context", nil)

	exec, _ := s.engine.Execute(ctx, id, runCtx)
	return marshalResult(exec)
}

// handleEvent feeds an event through trigger matching.
func (s *AutomatServer) handleEvent(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	event := mcp.ParseStringMap(req, "context", nil)
	if event == nil {
		return mcp.NewToolResultError("context is required"), nil
	}

	records := s.runner.HandleEvent(ctx, event)
	return marshalResult(map[string]any{
		"matched":    len(records),
		"executions": records,
	})
}

func (s *AutomatServer) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 0)
	return marshalResult(map[string]any{
		"executions": s.engine.History().List(limit),
	})
}

func (s *AutomatServer) handleClearHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.engine.History().Clear()
	return marshalResult(map[string]any{"cleared": true})
}

// --- Internal helpers ---

// workflowFromArgs decodes tool arguments into a workflow, applying the
// decode-time enabled default.
func workflowFromArgs(args map[string]any) (*schema.Workflow, error) {
	var wf schema.Workflow
	if err := reparse(args, &wf); err != nil {
		return nil, err
	}
	return &wf, nil
}

// reparse round-trips an arguments value through JSON into a typed struct.
func reparse(raw any, out any) error {
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// previewMerge applies a patch to a copy so validation can see the result
// the store would produce.
func previewMerge(wf *schema.Workflow, patch store.WorkflowPatch) *schema.Workflow {
	merged := wf.Clone()
	if patch.Name != nil {
		merged.Name = *patch.Name
	}
	if patch.Description != nil {
		merged.Description = *patch.Description
	}
	if patch.Enabled != nil {
		merged.Enabled = *patch.Enabled
	}
	if patch.Trigger != nil {
		merged.Trigger = *patch.Trigger
	}
	if patch.Actions != nil {
		merged.Actions = *patch.Actions
	}
	return merged
}

// marshalResult converts a value to a JSON text tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
