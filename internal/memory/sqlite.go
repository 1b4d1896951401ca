package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend stores snapshots for any number of agents in one SQLite
// database, one row per agent key.
type SQLiteBackend struct {
	db   *sql.DB
	path string
	key  string
}

// NewSQLiteBackend opens (and migrates) the database at path.
func NewSQLiteBackend(ctx context.Context, path, key string) (*SQLiteBackend, error) {
	if key == "" {
		return nil, errors.New("sqlite memory backend requires a key")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db, path: path, key: key}
	if err := b.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *SQLiteBackend) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL`,
		`CREATE TABLE IF NOT EXISTS agent_memory (
			agent_key  TEXT PRIMARY KEY,
			snapshot   TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate sqlite memory: %w", err)
		}
	}
	return nil
}

func (b *SQLiteBackend) Read(ctx context.Context) ([]byte, error) {
	var snapshot string
	err := b.db.QueryRowContext(ctx,
		`SELECT snapshot FROM agent_memory WHERE agent_key = ?`, b.key).Scan(&snapshot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, err
	}
	return []byte(snapshot), nil
}

func (b *SQLiteBackend) Write(ctx context.Context, data []byte) error {
	_, err := b.db.ExecContext(ctx,
		`INSERT INTO agent_memory (agent_key, snapshot, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(agent_key) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
		b.key, string(data), time.Now().UTC().Format(time.RFC3339Nano))
	return err
}

func (b *SQLiteBackend) Close() error { return b.db.Close() }

func (b *SQLiteBackend) String() string { return "sqlite:" + b.path + "#" + b.key }
