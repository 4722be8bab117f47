package session

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"tagflow/internal/config"
	"tagflow/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrSchemaMismatch indicates sessions.db was written by an incompatible build.
var ErrSchemaMismatch = errors.New("session schema version mismatch")

// Record is the persisted form of a State.
type Record struct {
	ID             string
	FolderHash     string
	FolderPath     string
	FolderRevision int
	Tasks          []byte
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Store persists session records in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the sessions database configured for cfg.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.SessionsPath())
}

// OpenPath opens a sessions database at an explicit location.
func OpenPath(path string) (*Store, error) {
	db, err := sqlitedb.Open(path)
	if err != nil {
		return nil, err
	}
	version, err := sqlitedb.EnsureSchema(context.Background(), db, schemaSQL, schemaVersion)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if version != schemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("%w: database has version %d, expected %d (delete %s to reset sessions)",
			ErrSchemaMismatch, version, schemaVersion, path)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file backing the store.
func (s *Store) Path() string { return s.path }

// Close releases the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// NewScope starts a unit of work. Scopes are not safe for concurrent use;
// each job invocation takes its own.
func (s *Store) NewScope() *Scope {
	return &Scope{store: s, tracked: make(map[string]*Record)}
}

const recordColumns = "id, folder_hash, folder_path, folder_revision, tasks_json, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec       Record
		tasks     string
		createdAt string
		updatedAt string
	)
	if err := row.Scan(&rec.ID, &rec.FolderHash, &rec.FolderPath, &rec.FolderRevision, &tasks, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.Tasks = []byte(tasks)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &rec, nil
}

// GetByIdentity returns the highest revision stored for (hash, path), or nil
// when the folder has never been previewed.
func (s *Store) GetByIdentity(ctx context.Context, hash, path string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM session_states
		 WHERE folder_hash = ? AND folder_path = ?
		 ORDER BY folder_revision DESC LIMIT 1`, hash, path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", hash, err)
	}
	return rec, nil
}

// Exists reports whether any record is stored for (hash, path).
func (s *Store) Exists(ctx context.Context, hash, path string) (bool, error) {
	var count int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM session_states WHERE folder_hash = ? AND folder_path = ?`, hash, path,
	).Scan(&count); err != nil {
		return false, fmt.Errorf("probe session %s: %w", hash, err)
	}
	return count > 0, nil
}

// MaxRevision returns the highest revision for hash. ok is false when no
// record exists.
func (s *Store) MaxRevision(ctx context.Context, hash string) (rev int, ok bool, err error) {
	return maxRevision(ctx, s.db, hash)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func maxRevision(ctx context.Context, q queryRower, hash string) (int, bool, error) {
	var rev sql.NullInt64
	if err := q.QueryRowContext(ctx,
		`SELECT MAX(folder_revision) FROM session_states WHERE folder_hash = ?`, hash,
	).Scan(&rev); err != nil {
		return 0, false, fmt.Errorf("max revision for %s: %w", hash, err)
	}
	if !rev.Valid {
		return 0, false, nil
	}
	return int(rev.Int64), true, nil
}

// ListRevisions returns every record for hash, oldest revision first.
func (s *Store) ListRevisions(ctx context.Context, hash string) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM session_states WHERE folder_hash = ? ORDER BY folder_revision`, hash)
	if err != nil {
		return nil, fmt.Errorf("list revisions for %s: %w", hash, err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan revision: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
