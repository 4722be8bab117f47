package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ResetStuck returns jobs left started by a previous daemon run to their lane.
func (s *Store) ResetStuck(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, started_at = NULL, last_heartbeat = NULL WHERE status = ?`,
		StatusQueued, StatusStarted,
	)
	if err != nil {
		return 0, fmt.Errorf("reset stuck jobs: %w", err)
	}
	return res.RowsAffected()
}

// UpdateHeartbeat updates the last heartbeat timestamp for a running job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id string) error {
	if _, err := s.execWithRetry(ctx,
		`UPDATE jobs SET last_heartbeat = ? WHERE id = ? AND status = ?`,
		nowString(), id, StatusStarted,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStale requeues running jobs whose heartbeat is older than cutoff.
func (s *Store) ReclaimStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE jobs SET status = ?, started_at = NULL, last_heartbeat = NULL
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusQueued, StatusStarted, cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed jobs back to their lane and re-defers the
// dependents that were canceled because of them. With no ids every failed job
// is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	var retried int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		targets := ids
		if len(targets) == 0 {
			var err error
			targets, err = idsWithStatus(ctx, tx, StatusFailed)
			if err != nil {
				return err
			}
		}
		for _, id := range targets {
			res, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, result_json = NULL, error_message = NULL, started_at = NULL,
                 ended_at = NULL, last_heartbeat = NULL, hook_fired = 0
                 WHERE id = ? AND status = ?`,
				StatusQueued, id, StatusFailed,
			)
			if err != nil {
				return fmt.Errorf("retry job: %w", err)
			}
			n, _ := res.RowsAffected()
			if n == 0 {
				continue
			}
			retried += n
			if err := reviveDependents(ctx, tx, id); err != nil {
				return err
			}
		}
		return nil
	})
	return retried, err
}

func reviveDependents(ctx context.Context, tx *sql.Tx, root string) error {
	frontier := []string{root}
	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]
		children, err := dependentIDs(ctx, tx, parent, StatusCanceled)
		if err != nil {
			return err
		}
		for _, child := range children {
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, error_message = NULL, ended_at = NULL, hook_fired = 0 WHERE id = ?`,
				StatusDeferred, child,
			); err != nil {
				return fmt.Errorf("revive dependent: %w", err)
			}
			frontier = append(frontier, child)
		}
	}
	return nil
}

func idsWithStatus(ctx context.Context, tx *sql.Tx, status Status) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM jobs WHERE status = ? ORDER BY position`, status)
	if err != nil {
		return nil, fmt.Errorf("list %s jobs: %w", status, err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
