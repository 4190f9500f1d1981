// Package engine runs workflows: it resolves the workflow, dispatches its
// actions in order and records the outcome in the execution history.
package engine

import (
	"context"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/automat-dev/automat/internal/actions"
	"github.com/automat-dev/automat/internal/history"
	"github.com/automat-dev/automat/internal/logging"
	"github.com/automat-dev/automat/internal/store"
	"github.com/automat-dev/automat/pkg/schema"
)

// DefaultActionTimeout bounds a single action dispatch.
const DefaultActionTimeout = 60 * time.Second

// Engine executes workflows sequentially and fail-fast.
type Engine struct {
	store         *store.Store
	dispatcher    *actions.Dispatcher
	history       *history.History
	logger        *slog.Logger
	actionTimeout time.Duration
}

// New creates an engine. A non-positive actionTimeout falls back to
// DefaultActionTimeout.
func New(s *store.Store, d *actions.Dispatcher, h *history.History, logger *slog.Logger, actionTimeout time.Duration) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if actionTimeout <= 0 {
		actionTimeout = DefaultActionTimeout
	}
	return &Engine{
		store:         s,
		dispatcher:    d,
		history:       h,
		logger:        logger,
		actionTimeout: actionTimeout,
	}
}

// History exposes the engine's execution log.
func (e *Engine) History() *history.History { return e.history }

// Execute runs the workflow with the given id. The run context seeds
// placeholder substitution; each successful action overwrites
// runCtx["lastResult"] for the steps after it. Every run, including a
// failed lookup, leaves a record in the history. The record is returned
// together with the error that stopped the run, if any.
func (e *Engine) Execute(ctx context.Context, workflowID string, runCtx map[string]any) (*schema.Execution, error) {
	exec := &schema.Execution{
		ID:         uuid.NewString(),
		WorkflowID: workflowID,
		StartTime:  time.Now().UTC(),
		Results:    []schema.ActionResult{},
		Errors:     []schema.ActionError{},
	}
	ctx = logging.WithExecutionID(logging.WithWorkflowID(ctx, workflowID), exec.ID)

	wf, err := e.store.Get(workflowID)
	if err != nil {
		exec.Errors = append(exec.Errors, schema.ActionError{
			ActionIndex: -1,
			Error:       err.Error(),
		})
		e.finish(ctx, exec)
		return exec, err
	}
	exec.WorkflowName = wf.Name

	// Work on a copy so the caller's map never sees lastResult.
	local := make(map[string]any, len(runCtx)+1)
	maps.Copy(local, runCtx)
	exec.Context = local

	e.logger.InfoContext(ctx, "workflow execution started",
		slog.String("name", wf.Name), slog.Int("actions", len(wf.Actions)))

	var failure error
	for i, action := range wf.Actions {
		result, err := e.dispatchOne(ctx, action, local)
		if err != nil {
			exec.Errors = append(exec.Errors, schema.ActionError{
				ActionIndex: i,
				Action:      action.Type,
				Error:       err.Error(),
			})
			e.logger.WarnContext(ctx, "action failed, stopping run",
				slog.Int("action_index", i), slog.String("type", string(action.Type)),
				slog.String("error", err.Error()))
			failure = err
			break
		}
		exec.Results = append(exec.Results, schema.ActionResult{
			ActionIndex: i,
			Action:      action.Type,
			Result:      result,
			Success:     true,
		})
		local["lastResult"] = result
	}

	exec.Success = failure == nil && len(exec.Errors) == 0
	e.finish(ctx, exec)
	return exec, failure
}

// dispatchOne bounds a single action with the engine's timeout. A timeout
// is an ordinary action failure on the fail-fast path.
func (e *Engine) dispatchOne(ctx context.Context, action schema.Action, runCtx map[string]any) (any, error) {
	actionCtx, cancel := context.WithTimeout(ctx, e.actionTimeout)
	defer cancel()
	result, err := e.dispatcher.Dispatch(actionCtx, action, runCtx)
	if err != nil && actionCtx.Err() == context.DeadlineExceeded {
		return nil, schema.NewErrorf(schema.ErrCodeTimeout,
			"action timed out after %s", e.actionTimeout).WithCause(err)
	}
	return result, err
}

func (e *Engine) finish(ctx context.Context, exec *schema.Execution) {
	exec.EndTime = time.Now().UTC()
	exec.Duration = exec.EndTime.Sub(exec.StartTime)
	e.history.Add(exec)
	e.logger.InfoContext(ctx, "workflow execution finished",
		slog.Bool("success", exec.Success),
		slog.Int("results", len(exec.Results)),
		slog.Int("errors", len(exec.Errors)),
		slog.Duration("duration", exec.Duration))
}
