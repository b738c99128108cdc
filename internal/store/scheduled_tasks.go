package store

import (
	"context"
	"fmt"
	"time"
)

// SaveScheduledTask implements scheduler.Persister: upserts the fire time
// for a delayed-task key so a crash-restart can re-arm it.
func (s *Store) SaveScheduledTask(ctx context.Context, key string, when time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scheduled_tasks (key, fire_at, created_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET fire_at = EXCLUDED.fire_at
	`, key, when)
	if err != nil {
		return fmt.Errorf("store: save scheduled task: %w", err)
	}
	return nil
}

// DeleteScheduledTask removes a task once it has fired.
func (s *Store) DeleteScheduledTask(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("store: delete scheduled task: %w", err)
	}
	return nil
}

// ListScheduledTasks returns every pending task for Scheduler.Restore to
// re-arm at process start.
func (s *Store) ListScheduledTasks(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, fire_at FROM scheduled_tasks`)
	if err != nil {
		return nil, fmt.Errorf("store: list scheduled tasks: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var at time.Time
		if err := rows.Scan(&key, &at); err != nil {
			return nil, fmt.Errorf("store: scan scheduled task: %w", err)
		}
		out[key] = at
	}
	return out, rows.Err()
}
