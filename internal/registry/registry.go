// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package registry persists provisioned stack records in a local
// SQLite database. The registry is advisory: provisioning always
// reconciles against the live account, but the registry lets status,
// ingest, query, and teardown find a stack without scanning AWS.
// See docs/ARCHITECTURE § Resource Registry.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/kb-engine/pkg/types"
)

const dbFile = "registry.db"

// ErrNotFound is returned when no stack record matches a lookup.
var ErrNotFound = fmt.Errorf("stack not found in registry")

// Registry manages the local stack database.
type Registry struct {
	db *sql.DB
}

// Open opens or creates the registry database under workspaceDir,
// creating the schema if it does not exist.
func Open(workspaceDir string) (*Registry, error) {
	if err := os.MkdirAll(workspaceDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace directory: %w", err)
	}

	dbPath := filepath.Join(workspaceDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening registry database: %w", err)
	}

	r := &Registry{db: db}
	if err := r.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating registry schema: %w", err)
	}
	return r, nil
}

// Close releases the database connection.
func (r *Registry) Close() error {
	return r.db.Close()
}

func (r *Registry) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stacks (
			kb_name TEXT PRIMARY KEY,
			suffix TEXT NOT NULL,
			region TEXT,
			account_id TEXT,
			kb_id TEXT,
			kb_arn TEXT,
			role_name TEXT,
			role_arn TEXT,
			collection_name TEXT,
			collection_id TEXT,
			collection_arn TEXT,
			collection_endpoint TEXT,
			vector_index_name TEXT,
			buckets TEXT,
			data_sources TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stacks_updated_at ON stacks(updated_at)`,
	}
	for _, stmt := range statements {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// Save upserts a stack record. CreatedAt is preserved for existing
// records; UpdatedAt is always refreshed.
func (r *Registry) Save(ctx context.Context, rec *types.StackRecord) error {
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	bucketsJSON, err := json.Marshal(rec.Buckets)
	if err != nil {
		return fmt.Errorf("encoding buckets: %w", err)
	}
	dsJSON, err := json.Marshal(rec.DataSources)
	if err != nil {
		return fmt.Errorf("encoding data sources: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO stacks (kb_name, suffix, region, account_id, kb_id, kb_arn,
			role_name, role_arn, collection_name, collection_id, collection_arn,
			collection_endpoint, vector_index_name, buckets, data_sources,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kb_name) DO UPDATE SET
			suffix=excluded.suffix, region=excluded.region,
			account_id=excluded.account_id, kb_id=excluded.kb_id,
			kb_arn=excluded.kb_arn, role_name=excluded.role_name,
			role_arn=excluded.role_arn, collection_name=excluded.collection_name,
			collection_id=excluded.collection_id, collection_arn=excluded.collection_arn,
			collection_endpoint=excluded.collection_endpoint,
			vector_index_name=excluded.vector_index_name,
			buckets=excluded.buckets, data_sources=excluded.data_sources,
			updated_at=excluded.updated_at`,
		rec.KnowledgeBaseName, rec.Suffix, rec.Region, rec.AccountID,
		rec.KnowledgeBaseID, rec.KnowledgeBaseARN,
		rec.RoleName, rec.RoleARN,
		rec.CollectionName, rec.CollectionID, rec.CollectionARN, rec.CollectionEndpoint,
		rec.VectorIndexName, string(bucketsJSON), string(dsJSON),
		rec.CreatedAt.Format(time.RFC3339Nano), rec.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving stack %s: %w", rec.KnowledgeBaseName, err)
	}
	return nil
}

const stackColumns = `kb_name, suffix, region, account_id, kb_id, kb_arn,
	role_name, role_arn, collection_name, collection_id, collection_arn,
	collection_endpoint, vector_index_name, buckets, data_sources,
	created_at, updated_at`

// Get returns the stack record for a knowledge base name, or
// ErrNotFound when no such record exists.
func (r *Registry) Get(ctx context.Context, kbName string) (*types.StackRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stackColumns+` FROM stacks WHERE kb_name = ?`, kbName)
	rec, err := scanStack(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading stack %s: %w", kbName, err)
	}
	return rec, nil
}

// Latest returns the most recently updated stack record, or
// ErrNotFound when the registry is empty.
func (r *Registry) Latest(ctx context.Context) (*types.StackRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+stackColumns+` FROM stacks ORDER BY updated_at DESC LIMIT 1`)
	rec, err := scanStack(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading latest stack: %w", err)
	}
	return rec, nil
}

// List returns all stack records ordered by most recent first.
func (r *Registry) List(ctx context.Context) ([]*types.StackRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+stackColumns+` FROM stacks ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing stacks: %w", err)
	}
	defer rows.Close()

	var recs []*types.StackRecord
	for rows.Next() {
		rec, err := scanStack(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning stack row: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Delete removes a stack record. Deleting a missing record is not an
// error.
func (r *Registry) Delete(ctx context.Context, kbName string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM stacks WHERE kb_name = ?`, kbName); err != nil {
		return fmt.Errorf("deleting stack %s: %w", kbName, err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanStack(row scanner) (*types.StackRecord, error) {
	var (
		rec         types.StackRecord
		bucketsJSON sql.NullString
		dsJSON      sql.NullString
		createdAt   string
		updatedAt   string
	)

	err := row.Scan(
		&rec.KnowledgeBaseName, &rec.Suffix, &rec.Region, &rec.AccountID,
		&rec.KnowledgeBaseID, &rec.KnowledgeBaseARN,
		&rec.RoleName, &rec.RoleARN,
		&rec.CollectionName, &rec.CollectionID, &rec.CollectionARN, &rec.CollectionEndpoint,
		&rec.VectorIndexName, &bucketsJSON, &dsJSON,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if bucketsJSON.Valid {
		if err := json.Unmarshal([]byte(bucketsJSON.String), &rec.Buckets); err != nil {
			return nil, fmt.Errorf("decoding buckets for stack %s: %w", rec.KnowledgeBaseName, err)
		}
	}
	if dsJSON.Valid {
		if err := json.Unmarshal([]byte(dsJSON.String), &rec.DataSources); err != nil {
			return nil, fmt.Errorf("decoding data sources for stack %s: %w", rec.KnowledgeBaseName, err)
		}
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		rec.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, updatedAt); err == nil {
		rec.UpdatedAt = t
	}
	return &rec, nil
}
