package queue

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"tagflow/internal/config"
	"tagflow/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

// Bump when schema.sql changes. There are no migrations; an old jobs.db has
// to be deleted.
const schemaVersion = 1

// ErrSchemaMismatch is returned by Open when jobs.db was created by an
// incompatible build.
var ErrSchemaMismatch = errors.New("schema version mismatch")

// Store is the SQLite-backed job queue shared by the daemon and the CLI.
type Store struct {
	db   *sql.DB
	path string
}

// Open creates the data directory if needed and opens cfg's jobs.db.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.QueuePath())
}

// OpenPath opens the queue database at dbPath, creating the schema on first
// use.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sqlitedb.Open(dbPath)
	if err != nil {
		return nil, err
	}
	version, err := sqlitedb.EnsureSchema(context.Background(), db, schemaSQL, schemaVersion)
	if err == nil && version != schemaVersion {
		err = fmt.Errorf("%w: %s has version %d, want %d (delete it to reset the queue)",
			ErrSchemaMismatch, dbPath, version, schemaVersion)
	}
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: dbPath}, nil
}

// Path returns the database file backing the store.
func (s *Store) Path() string { return s.path }

// Close releases the database. It is safe on a nil store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// execWithRetry runs a single statement, retrying while SQLite reports busy.
func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) (res sql.Result, err error) {
	ctx = ensureContext(ctx)
	err = sqlitedb.RetryOnBusy(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	return sqlitedb.WithTx(ensureContext(ctx), s.db, fn)
}
