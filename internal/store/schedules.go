package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetLastRun returns when the named scheduled task last ran, used by the
// ticker to make "start the game" and "advance a round" idempotent across
// restarts. The bool is false if the task has never run.
func (s *Store) GetLastRun(ctx context.Context, name string) (time.Time, bool, error) {
	var lastRun time.Time
	err := s.db.QueryRowContext(ctx, `SELECT last_run FROM schedulehistory WHERE id = $1`, name).Scan(&lastRun)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get last run: %w", err)
	}
	return lastRun, true, nil
}

// SaveLastRun records a scheduled task's execution time via upsert.
func (s *Store) SaveLastRun(ctx context.Context, name string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO schedulehistory (id, last_run) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET last_run = EXCLUDED.last_run`,
		name, at,
	)
	if err != nil {
		return fmt.Errorf("save last run: %w", err)
	}
	return nil
}
