package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Enqueue inserts a job into its lane. A job with a predecessor starts
// deferred while the predecessor is still pending, queued once it has
// finished, and canceled when it already failed or was canceled.
func (s *Store) Enqueue(ctx context.Context, req EnqueueRequest) (*Job, error) {
	if !req.Lane.Valid() {
		return nil, fmt.Errorf("enqueue: unknown lane %q", req.Lane)
	}
	if strings.TrimSpace(req.Func) == "" {
		return nil, errors.New("enqueue: func is required")
	}
	argsJSON, err := encodeJSON(req.Args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	metaJSON, err := encodeJSON(req.Meta)
	if err != nil {
		return nil, fmt.Errorf("encode meta: %w", err)
	}

	id := uuid.NewString()
	var job *Job
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		status := StatusQueued
		var reason any
		if req.DependsOn != "" {
			var predecessor string
			err := tx.QueryRowContext(ctx, `SELECT status FROM jobs WHERE id = ?`, req.DependsOn).Scan(&predecessor)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%w: %s", ErrUnknownDependency, req.DependsOn)
			}
			if err != nil {
				return fmt.Errorf("load dependency: %w", err)
			}
			switch Status(predecessor) {
			case StatusFinished:
				status = StatusQueued
			case StatusFailed, StatusCanceled:
				status = StatusCanceled
				reason = dependencyFailedMessage(req.DependsOn)
			default:
				status = StatusDeferred
			}
		}

		bound := "MAX(position) + 1"
		if req.AtFront {
			bound = "MIN(position) - 1"
		}
		var position int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(`+bound+`, 0) FROM jobs WHERE lane = ?`, req.Lane,
		).Scan(&position); err != nil {
			return fmt.Errorf("compute position: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, lane, func, args_json, meta_json, status, depends_on, position, error_message, created_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, req.Lane, req.Func, argsJSON, metaJSON, status, nullableString(req.DependsOn), position, reason, nowString(),
		); err != nil {
			return fmt.Errorf("insert job: %w", err)
		}
		job, err = getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Claim atomically moves the next queued job of a lane to the started state.
// It returns nil when the lane has nothing runnable.
func (s *Store) Claim(ctx context.Context, lane Lane) (*Job, error) {
	var job *Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowString()
		var id string
		err := tx.QueryRowContext(ctx,
			`UPDATE jobs
             SET status = ?, started_at = ?, last_heartbeat = ?, attempts = attempts + 1
             WHERE id = (
                 SELECT id FROM jobs WHERE lane = ? AND status = ?
                 ORDER BY position, created_at LIMIT 1
             )
             RETURNING id`,
			StatusStarted, now, now, lane, StatusQueued,
		).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim job: %w", err)
		}
		job, err = getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Complete records the outcome of a started job. Success releases deferred
// dependents into their lane; failure cancels every transitive dependent.
func (s *Store) Complete(ctx context.Context, id string, completion Completion) (*Job, error) {
	resultJSON, err := encodeJSON(completion.Result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	var job *Job
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		status := StatusFinished
		if completion.Failed {
			status = StatusFailed
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ?, result_json = ?, error_message = ?, ended_at = ?, last_heartbeat = NULL
             WHERE id = ? AND status = ?`,
			status, resultJSON, nullableString(completion.ErrorMessage), nowString(), id, StatusStarted,
		)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			existing, err := getJob(ctx, tx, id)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("%w: %s", ErrJobNotFound, id)
			}
			return fmt.Errorf("%w: %s is %s", ErrNotStarted, id, existing.Status)
		}

		if completion.Failed {
			if err := cancelDependents(ctx, tx, id); err != nil {
				return err
			}
		} else if _, err := tx.ExecContext(ctx,
			`UPDATE jobs SET status = ? WHERE depends_on = ? AND status = ?`,
			StatusQueued, id, StatusDeferred,
		); err != nil {
			return fmt.Errorf("release dependents: %w", err)
		}
		job, err = getJob(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// MarkHookFired flips the completion hook marker. It returns true only for the
// caller that performed the flip, so the hook runs once per job.
func (s *Store) MarkHookFired(ctx context.Context, id string) (bool, error) {
	res, err := s.execWithRetry(ctx, `UPDATE jobs SET hook_fired = 1 WHERE id = ? AND hook_fired = 0`, id)
	if err != nil {
		return false, fmt.Errorf("mark hook fired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// cancelDependents walks the dependency chain below root and cancels every
// job that has not started yet.
func cancelDependents(ctx context.Context, tx *sql.Tx, root string) error {
	frontier := []string{root}
	for len(frontier) > 0 {
		parent := frontier[0]
		frontier = frontier[1:]
		children, err := dependentIDs(ctx, tx, parent, StatusDeferred, StatusQueued)
		if err != nil {
			return err
		}
		for _, child := range children {
			if _, err := tx.ExecContext(ctx,
				`UPDATE jobs SET status = ?, error_message = ?, ended_at = ? WHERE id = ?`,
				StatusCanceled, dependencyFailedMessage(parent), nowString(), child,
			); err != nil {
				return fmt.Errorf("cancel dependent: %w", err)
			}
			frontier = append(frontier, child)
		}
	}
	return nil
}

func dependentIDs(ctx context.Context, tx *sql.Tx, parent string, statuses ...Status) ([]string, error) {
	args := append([]any{parent}, stringArgs(statuses)...)
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM jobs WHERE depends_on = ? AND status IN (`+makePlaceholders(len(statuses))+`) ORDER BY position`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
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

func dependencyFailedMessage(id string) string {
	return "dependency " + id + " failed"
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getJob(ctx context.Context, q queryRower, id string) (*Job, error) {
	job, err := scanJob(q.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}
