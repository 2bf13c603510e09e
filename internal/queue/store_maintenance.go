package queue

import (
	"context"
	"fmt"
	"time"
)

// Stats returns a count of items grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
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

// Health aggregates queue state for diagnostic output.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return HealthSummary{}, err
	}
	health := HealthSummary{}
	for status, count := range stats {
		health.Total += count
		switch status {
		case StatusQueued:
			health.Queued += count
		case StatusDownloading:
			health.Downloading += count
		case StatusPaused:
			health.Paused += count
		case StatusRetrying:
			health.Retrying += count
		case StatusCompleted:
			health.Completed += count
		case StatusFailed:
			health.Failed += count
		}
	}
	return health, nil
}

// CountActiveDownloads returns the number of items currently occupying a
// download slot. Queried immediately before dispatch selection; the small
// race window against concurrent dispatchers is an accepted soft bound.
func (s *Store) CountActiveDownloads(ctx context.Context) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM queue_items WHERE status = ?`,
		StatusDownloading,
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count active downloads: %w", err)
	}
	return count, nil
}

// CompletedSince counts completions after the given instant, feeding the
// throughput figure in QueueService.Statistics.
func (s *Store) CompletedSince(ctx context.Context, since time.Time) (int, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM queue_items WHERE status = ? AND updated_at >= ?`,
		StatusCompleted,
		since.UTC().Format(time.RFC3339Nano),
	)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count recent completions: %w", err)
	}
	return count, nil
}

// PurgeTerminal deletes Completed and Removed rows older than the cutoff.
// Invoked by the processor's cleanup step once items age out of the retention
// window.
func (s *Store) PurgeTerminal(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM queue_items WHERE status IN (?, ?) AND updated_at < ?`,
		StatusCompleted,
		StatusRemoved,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("purge terminal items: %w", err)
	}
	return res.RowsAffected()
}

// ResetOrphanedDispatch returns Downloading items that never received a
// client handle back to Queued. Run once at daemon startup to recover from a
// crash between the add call and the status write.
func (s *Store) ResetOrphanedDispatch(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE queue_items
         SET status = ?, error_message = 'Reset after interrupted dispatch', updated_at = ?
         WHERE status = ? AND (client_id IS NULL OR client_id = '')`,
		StatusQueued,
		time.Now().UTC().Format(time.RFC3339Nano),
		StatusDownloading,
	)
	if err != nil {
		return 0, fmt.Errorf("reset orphaned dispatch: %w", err)
	}
	return res.RowsAffected()
}

// RetryFailed moves failed items back to Retrying with a fresh attempt
// budget. With no ids every failed item is retried.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)
	if len(ids) == 0 {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE queue_items
            SET status = ?, attempt_count = 0, not_before = NULL,
                error_message = NULL, updated_at = ?
            WHERE status = ?`,
			StatusRetrying,
			timestamp,
			StatusFailed,
		)
		if err != nil {
			return 0, fmt.Errorf("retry failed items: %w", err)
		}
		return res.RowsAffected()
	}

	placeholders := makePlaceholders(len(ids))
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusRetrying, timestamp)
	for _, id := range ids {
		args = append(args, id)
	}
	query := `UPDATE queue_items
        SET status = ?, attempt_count = 0, not_before = NULL,
            error_message = NULL, updated_at = ?
        WHERE id IN (` + placeholders + `) AND status = '` + string(StatusFailed) + `'`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry selected items: %w", err)
	}
	return res.RowsAffected()
}
