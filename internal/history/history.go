// Package history keeps a bounded in-memory log of workflow executions,
// newest first. Records are not persisted; the log belongs to the running
// process.
package history

import (
	"sync"

	"github.com/automat-dev/automat/pkg/schema"
)

// DefaultLimit is the number of records kept when no limit is configured.
const DefaultLimit = 100

// History is a fixed-capacity execution log. Safe for concurrent use.
type History struct {
	mu      sync.Mutex
	limit   int
	records []*schema.Execution
}

// New creates a history bounded at limit records. Non-positive limits fall
// back to DefaultLimit.
func New(limit int) *History {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &History{limit: limit}
}

// Add prepends a record, evicting the oldest beyond the capacity.
func (h *History) Add(exec *schema.Execution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append([]*schema.Execution{exec}, h.records...)
	if len(h.records) > h.limit {
		h.records = h.records[:h.limit]
	}
}

// List returns up to limit records, newest first. A non-positive limit
// returns everything.
func (h *History) List(limit int) []*schema.Execution {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]*schema.Execution, n)
	copy(out, h.records[:n])
	return out
}

// Len returns the number of stored records.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Clear drops every record.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = nil
}
