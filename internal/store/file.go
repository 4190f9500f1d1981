package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/automat-dev/automat/pkg/schema"
)

// FileBackend persists the workflow collection as a single JSON array.
// Writes go through a temp file and rename so a crash mid-write never
// leaves a truncated document behind.
type FileBackend struct {
	path string
}

// NewFileBackend creates a backend writing to the given path. Parent
// directories are created on the first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) LoadAll(ctx context.Context) ([]*schema.Workflow, error) {
	data, err := os.ReadFile(b.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", b.path, err)
	}
	var workflows []*schema.Workflow
	if err := json.Unmarshal(data, &workflows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", b.path, err)
	}
	return workflows, nil
}

func (b *FileBackend) SaveAll(ctx context.Context, workflows []*schema.Workflow) error {
	if workflows == nil {
		workflows = []*schema.Workflow{}
	}
	data, err := json.MarshalIndent(workflows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal workflows: %w", err)
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".workflows-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), b.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename to %s: %w", b.path, err)
	}
	return nil
}

func (b *FileBackend) Close() error { return nil }
