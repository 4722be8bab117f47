package queue

import (
	"context"
	"fmt"
)

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// LaneDepth reports how many jobs are waiting (queued or deferred) per lane.
func (s *Store) LaneDepth(ctx context.Context) (map[Lane]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT lane, COUNT(1) FROM jobs WHERE status IN (?, ?) GROUP BY lane`,
		StatusQueued, StatusDeferred,
	)
	if err != nil {
		return nil, fmt.Errorf("lane depth: %w", err)
	}
	defer rows.Close()

	depth := make(map[Lane]int, len(Lanes))
	for _, lane := range Lanes {
		depth[lane] = 0
	}
	for rows.Next() {
		var lane Lane
		var count int
		if err := rows.Scan(&lane, &count); err != nil {
			return nil, err
		}
		depth[lane] = count
	}
	return depth, rows.Err()
}
