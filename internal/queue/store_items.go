package queue

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// GetByID fetches a job by identifier. It returns nil when the job is unknown.
func (s *Store) GetByID(ctx context.Context, id string) (*Job, error) {
	return getJob(ensureContext(ctx), s.db, id)
}

// List returns jobs matching the filter ordered by lane, then claim order.
func (s *Store) List(ctx context.Context, filter ListFilter) ([]*Job, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Lanes) > 0 {
		clauses = append(clauses, "lane IN ("+makePlaceholders(len(filter.Lanes))+")")
		args = append(args, stringArgs(filter.Lanes)...)
	}
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		args = append(args, stringArgs(filter.Statuses)...)
	}
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY lane, position, created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Dependents returns the jobs that name id as their predecessor.
func (s *Store) Dependents(ctx context.Context, id string) ([]*Job, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT `+jobColumns+` FROM jobs WHERE depends_on = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	defer rows.Close()
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Remove deletes the given jobs. Jobs still waiting on a removed job are
// canceled first so they never sit deferred forever.
func (s *Store) Remove(ctx context.Context, ids ...string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if err := cancelDependents(ctx, tx, id); err != nil {
				return err
			}
		}
		args := make([]any, 0, len(ids))
		for _, id := range ids {
			args = append(args, id)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id IN (`+makePlaceholders(len(ids))+`) AND status != ?`,
			append(args, StatusStarted)...)
		if err != nil {
			return fmt.Errorf("remove jobs: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

// Clear removes every job that is not currently running.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM jobs WHERE status != ?`, StatusStarted)
	if err != nil {
		return 0, fmt.Errorf("clear queue: %w", err)
	}
	return res.RowsAffected()
}

// ClearFinished removes finished and canceled jobs.
func (s *Store) ClearFinished(ctx context.Context) (int64, error) {
	return s.clearStatuses(ctx, StatusFinished, StatusCanceled)
}

// ClearFailed removes failed jobs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	return s.clearStatuses(ctx, StatusFailed)
}

func (s *Store) clearStatuses(ctx context.Context, statuses ...Status) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`DELETE FROM jobs WHERE status IN (`+makePlaceholders(len(statuses))+`)
         AND id NOT IN (SELECT depends_on FROM jobs WHERE depends_on IS NOT NULL AND status = ?)`,
		append(stringArgs(statuses), StatusDeferred)...,
	)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}
