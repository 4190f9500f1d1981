// Package store holds the workflow collection: an in-memory map guarded by
// a RW mutex, persisted as a whole through an injectable Backend on every
// mutation.
package store

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/automat-dev/automat/pkg/schema"
)

// Backend persists the full workflow collection.
type Backend interface {
	// LoadAll returns every persisted workflow. A missing underlying
	// resource is not an error; implementations return an empty slice.
	LoadAll(ctx context.Context) ([]*schema.Workflow, error)
	// SaveAll replaces the persisted collection with the given one.
	SaveAll(ctx context.Context, workflows []*schema.Workflow) error
	Close() error
}

// Store is the workflow repository. All reads and writes go through the
// in-memory map; the backend only sees whole-collection loads and saves.
type Store struct {
	mu        sync.RWMutex
	backend   Backend
	logger    *slog.Logger
	workflows map[string]*schema.Workflow

	// Serializes backend writes in snapshot order. Acquired while s.mu is
	// still held, so a later snapshot can never reach the backend first.
	persistMu sync.Mutex
}

// NewStore creates an empty store over the given backend. Call Load to
// hydrate it from persistence.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		backend:   backend,
		logger:    logger,
		workflows: make(map[string]*schema.Workflow),
	}
}

// Load hydrates the in-memory map from the backend. Load failures are
// absorbed: the store starts empty and the error is logged, so a corrupt
// or missing persistence layer never blocks startup.
func (s *Store) Load(ctx context.Context) {
	workflows, err := s.backend.LoadAll(ctx)
	if err != nil {
		s.logger.Warn("workflow load failed, starting empty", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workflows = make(map[string]*schema.Workflow, len(workflows))
	for _, wf := range workflows {
		s.workflows[wf.ID] = wf
	}
	s.logger.Info("workflows loaded", "count", len(workflows))
}

// Save persists the current collection. Exposed for callers that need an
// explicit flush; mutations persist on their own.
func (s *Store) Save(ctx context.Context) error {
	s.mu.Lock()
	return s.persistLocked(ctx)
}

// Create adds a workflow. Missing fields are defaulted: a fresh UUID id,
// name "Unnamed Workflow", a manual trigger and an empty action list. Both
// timestamps are stamped with the same instant. Enabled is taken as given:
// the enabled-by-default rule is applied when user input is decoded
// (schema.Workflow.UnmarshalJSON), so programmatic callers passing the
// zero value store a disabled workflow.
func (s *Store) Create(ctx context.Context, wf *schema.Workflow) (*schema.Workflow, error) {
	created := applyDefaults(wf)

	s.mu.Lock()
	s.workflows[created.ID] = created
	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// Update merges the patch onto the stored workflow. The id and creation
// timestamp never change; UpdatedAt is bumped to a strictly later instant.
func (s *Store) Update(ctx context.Context, id string, patch WorkflowPatch) (*schema.Workflow, error) {
	s.mu.Lock()
	existing, ok := s.workflows[id]
	if !ok {
		s.mu.Unlock()
		return nil, notFound(id)
	}
	updated := existing.Clone()
	patch.apply(updated)
	updated.ID = existing.ID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = bumpedAfter(existing.UpdatedAt)
	s.workflows[id] = updated
	if err := s.persistLocked(ctx); err != nil {
		return nil, err
	}
	return updated.Clone(), nil
}

// Delete removes a workflow by id.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	if _, ok := s.workflows[id]; !ok {
		s.mu.Unlock()
		return notFound(id)
	}
	delete(s.workflows, id)
	return s.persistLocked(ctx)
}

// Get returns a copy of the workflow with the given id.
func (s *Store) Get(id string) (*schema.Workflow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wf, ok := s.workflows[id]
	if !ok {
		return nil, notFound(id)
	}
	return wf.Clone(), nil
}

// GetAll returns copies of every workflow, ordered by creation time with
// the id as tie-breaker so listings are stable.
func (s *Store) GetAll() []*schema.Workflow {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Count returns the number of stored workflows.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.workflows)
}

// Close closes the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// snapshotLocked copies the map into a sorted slice. Callers hold s.mu.
func (s *Store) snapshotLocked() []*schema.Workflow {
	all := make([]*schema.Workflow, 0, len(s.workflows))
	for _, wf := range s.workflows {
		all = append(all, wf.Clone())
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	return all
}

// persistLocked snapshots the collection and writes it through the backend.
// Called with s.mu held; persistMu is taken before s.mu is released, which
// pins backend writes to snapshot order even when the backend is slow. The
// in-memory change is kept when the write fails; the caller gets the error
// and a later mutation will retry the full write.
func (s *Store) persistLocked(ctx context.Context) error {
	all := s.snapshotLocked()
	s.persistMu.Lock()
	s.mu.Unlock()
	defer s.persistMu.Unlock()

	if err := s.backend.SaveAll(ctx, all); err != nil {
		s.logger.Error("workflow save failed", "error", err)
		return schema.NewError(schema.ErrCodeStore, "failed to persist workflows").WithCause(err)
	}
	return nil
}

// WorkflowPatch is a partial workflow update. Nil fields are left as-is.
type WorkflowPatch struct {
	Name        *string           `json:"name,omitempty"`
	Description *string           `json:"description,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Trigger     *schema.Trigger   `json:"trigger,omitempty"`
	Actions     *[]schema.Action  `json:"actions,omitempty"`
}

func (p WorkflowPatch) apply(wf *schema.Workflow) {
	if p.Name != nil {
		wf.Name = *p.Name
	}
	if p.Description != nil {
		wf.Description = *p.Description
	}
	if p.Enabled != nil {
		wf.Enabled = *p.Enabled
	}
	if p.Trigger != nil {
		wf.Trigger = *p.Trigger
	}
	if p.Actions != nil {
		wf.Actions = *p.Actions
	}
}

func applyDefaults(wf *schema.Workflow) *schema.Workflow {
	created := wf.Clone()
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.Name == "" {
		created.Name = "Unnamed Workflow"
	}
	if created.Trigger.Type == "" {
		created.Trigger.Type = schema.TriggerManual
	}
	if created.Actions == nil {
		created.Actions = []schema.Action{}
	}
	now := time.Now().UTC()
	created.CreatedAt = now
	created.UpdatedAt = now
	return created
}

// bumpedAfter returns the current instant, nudged forward when the clock
// has not advanced past the previous update. UpdatedAt must be strictly
// greater after every update.
func bumpedAfter(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

func notFound(id string) *schema.AutomatError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "workflow %q not found", id)
}
