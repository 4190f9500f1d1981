package engine

import (
	"context"
	"log/slog"
	"maps"
	"sync"

	"github.com/sourcegraph/conc"

	"github.com/automat-dev/automat/internal/trigger"
	"github.com/automat-dev/automat/pkg/schema"
)

// Runner turns incoming events into workflow executions. Every enabled
// workflow whose trigger matches the event runs, each on its own copy of
// the event context so runs never observe each other's lastResult.
type Runner struct {
	engine *Engine
	logger *slog.Logger
}

// NewRunner creates a runner over the engine.
func NewRunner(engine *Engine, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: engine, logger: logger}
}

// HandleEvent matches the event against the stored workflows and executes
// every match concurrently, waiting for all of them. The records come back
// in the matching order regardless of completion order.
func (r *Runner) HandleEvent(ctx context.Context, event map[string]any) []*schema.Execution {
	matched := trigger.FindMatching(r.engine.store.GetAll(), event)
	if len(matched) == 0 {
		return nil
	}
	r.logger.Info("event matched workflows", slog.Int("count", len(matched)))

	records := make([]*schema.Execution, len(matched))
	var mu sync.Mutex
	wg := conc.NewWaitGroup()
	for i, wf := range matched {
		i, wf := i, wf
		runCtx := make(map[string]any, len(event))
		maps.Copy(runCtx, event)
		wg.Go(func() {
			exec, _ := r.engine.Execute(ctx, wf.ID, runCtx)
			mu.Lock()
			records[i] = exec
			mu.Unlock()
		})
	}
	wg.Wait()
	return records
}
