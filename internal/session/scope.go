package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tagflow/internal/sqlitedb"
)

// ErrIdentityConflict is returned when a record is merged while a different
// instance with the same id is still tracked by the scope.
var ErrIdentityConflict = errors.New("session identity conflict")

const revisionAttempts = 5

// Scope is a unit of work over the session store. It tracks every record it
// loaded by id so a second instance of the same row cannot be merged behind
// its back.
type Scope struct {
	store   *Store
	tracked map[string]*Record
}

// Load reads the latest record for (hash, path) and tracks it.
func (sc *Scope) Load(ctx context.Context, hash, path string) (*Record, error) {
	rec, err := sc.store.GetByIdentity(ctx, hash, path)
	if err != nil || rec == nil {
		return rec, err
	}
	if existing, ok := sc.tracked[rec.ID]; ok {
		return existing, nil
	}
	sc.tracked[rec.ID] = rec
	return rec, nil
}

// Tracked reports whether a record with id is attached to the scope.
func (sc *Scope) Tracked(id string) bool {
	_, ok := sc.tracked[id]
	return ok
}

// Expunge detaches the record with id.
func (sc *Scope) Expunge(id string) {
	delete(sc.tracked, id)
}

// ExpungeAll detaches every tracked record.
func (sc *Scope) ExpungeAll() {
	clear(sc.tracked)
}

// MergeAndCommit upserts rec by id and commits. The stored revision and
// creation time are kept when the row already exists.
func (sc *Scope) MergeAndCommit(ctx context.Context, rec *Record) error {
	if existing, ok := sc.tracked[rec.ID]; ok && existing != rec {
		return fmt.Errorf("%w: record %s already attached", ErrIdentityConflict, rec.ID)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	err := sqlitedb.WithTx(ctx, sc.store.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_states (`+recordColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET
			   folder_path = excluded.folder_path,
			   tasks_json = excluded.tasks_json,
			   updated_at = excluded.updated_at`,
			rec.ID, rec.FolderHash, rec.FolderPath, rec.FolderRevision, string(tasksOrEmpty(rec.Tasks)),
			timestamp(rec.CreatedAt), timestamp(rec.UpdatedAt))
		return err
	})
	if err != nil {
		return fmt.Errorf("merge session %s: %w", rec.ID, err)
	}
	sc.tracked[rec.ID] = rec
	return nil
}

// CommitNewRevision stores rec as the next revision of its folder hash. The
// maximum is read and the row inserted in one transaction; a unique conflict
// from another process re-runs the pair.
func (sc *Scope) CommitNewRevision(ctx context.Context, rec *Record) error {
	if existing, ok := sc.tracked[rec.ID]; ok && existing != rec {
		return fmt.Errorf("%w: record %s already attached", ErrIdentityConflict, rec.ID)
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now

	var lastErr error
	for attempt := 0; attempt < revisionAttempts; attempt++ {
		var revision int
		lastErr = sqlitedb.WithTx(ctx, sc.store.db, func(tx *sql.Tx) error {
			current, ok, err := maxRevision(ctx, tx, rec.FolderHash)
			if err != nil {
				return err
			}
			revision = 0
			if ok {
				revision = current + 1
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO session_states (`+recordColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
				rec.ID, rec.FolderHash, rec.FolderPath, revision, string(tasksOrEmpty(rec.Tasks)),
				timestamp(rec.CreatedAt), timestamp(rec.UpdatedAt))
			return err
		})
		if lastErr == nil {
			rec.FolderRevision = revision
			sc.tracked[rec.ID] = rec
			return nil
		}
		if !sqlitedb.IsUniqueViolation(lastErr) {
			break
		}
	}
	return fmt.Errorf("commit new revision for %s: %w", rec.FolderHash, lastErr)
}

func tasksOrEmpty(data []byte) []byte {
	if len(data) == 0 {
		return []byte("[]")
	}
	return data
}
