package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/automat-dev/automat/pkg/schema"
)

//go:embed migrations/001_initial_schema.sql
var workflowsDDL string

// schemaVersion is bumped together with new DDL in migrations/.
const schemaVersion = 1

// LibSQLBackend persists workflows in a libSQL (embedded SQLite fork)
// database. SaveAll replaces the whole table inside one transaction,
// matching the whole-collection contract of Backend.
type LibSQLBackend struct {
	db *sql.DB
}

// NewLibSQLBackend opens a libSQL database at the given path and applies
// pending migrations. The path should be a file URI, e.g. "file:/path/db.db".
func NewLibSQLBackend(ctx context.Context, dbPath string) (*LibSQLBackend, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Connection-level PRAGMAs. Some return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	if err := ensureSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &LibSQLBackend{db: db}, nil
}

// ensureSchema applies the embedded DDL when the recorded version is behind.
// The script is split on semicolons; statements here never embed one.
func ensureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	defer tx.Rollback()
	for _, stmt := range strings.Split(workflowsDDL, ";") {
		if stmt = strings.TrimSpace(stmt); stmt == "" || isSQLComment(stmt) {
			continue
		}
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema v%d: %w", schemaVersion, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		return fmt.Errorf("record schema v%d: %w", schemaVersion, err)
	}
	return tx.Commit()
}

// isSQLComment reports whether every line of the fragment is a -- comment.
func isSQLComment(fragment string) bool {
	for _, line := range strings.Split(fragment, "\n") {
		if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}

func (b *LibSQLBackend) LoadAll(ctx context.Context) ([]*schema.Workflow, error) {
	rows, err := b.db.QueryContext(ctx,
		`SELECT id, name, description, enabled, "trigger", actions, created_at, updated_at
		 FROM workflows ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("query workflows: %w", err)
	}
	defer rows.Close()

	var workflows []*schema.Workflow
	for rows.Next() {
		wf := &schema.Workflow{}
		var description sql.NullString
		var trigger, actions string
		if err := rows.Scan(&wf.ID, &wf.Name, &description, &wf.Enabled,
			&trigger, &actions, &wf.CreatedAt, &wf.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workflow: %w", err)
		}
		wf.Description = description.String
		if err := json.Unmarshal([]byte(trigger), &wf.Trigger); err != nil {
			return nil, fmt.Errorf("parse trigger for %s: %w", wf.ID, err)
		}
		if err := json.Unmarshal([]byte(actions), &wf.Actions); err != nil {
			return nil, fmt.Errorf("parse actions for %s: %w", wf.ID, err)
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

func (b *LibSQLBackend) SaveAll(ctx context.Context, workflows []*schema.Workflow) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workflows`); err != nil {
		return fmt.Errorf("clear workflows: %w", err)
	}
	for _, wf := range workflows {
		trigger, err := json.Marshal(wf.Trigger)
		if err != nil {
			return fmt.Errorf("marshal trigger for %s: %w", wf.ID, err)
		}
		actions, err := json.Marshal(wf.Actions)
		if err != nil {
			return fmt.Errorf("marshal actions for %s: %w", wf.ID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO workflows (id, name, description, enabled, "trigger", actions, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			wf.ID, wf.Name, nullStr(wf.Description), wf.Enabled,
			string(trigger), string(actions), wf.CreatedAt, wf.UpdatedAt,
		); err != nil {
			return fmt.Errorf("insert workflow %s: %w", wf.ID, err)
		}
	}
	return tx.Commit()
}

func (b *LibSQLBackend) Close() error { return b.db.Close() }

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
