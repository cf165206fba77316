package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adarena/backend/internal/domain"
)

// GetTasks returns every active task.
func (s *Store) GetTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// GetAllTasks returns every task, active or not — used by admin listing.
func (s *Store) GetAllTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelectColumns+` FROM tasks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get all tasks: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

const taskSelectColumns = `SELECT id, name, checker, env_path, gets, puts, places, checker_timeout, checker_type, default_score, active`

func scanTasks(rows *sql.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Name, &t.Checker, &t.EnvPath, &t.Gets, &t.Puts, &t.Places, &t.CheckerTimeout, &t.CheckerType, &t.DefaultScore, &t.Active); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// GetTaskByID loads one task by primary key.
func (s *Store) GetTaskByID(ctx context.Context, taskID int) (domain.Task, error) {
	var t domain.Task
	err := s.db.QueryRowContext(ctx, taskSelectColumns+` FROM tasks WHERE id = $1`, taskID).
		Scan(&t.ID, &t.Name, &t.Checker, &t.EnvPath, &t.Gets, &t.Puts, &t.Places, &t.CheckerTimeout, &t.CheckerType, &t.DefaultScore, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Task{}, fmt.Errorf("get task by id: %w", err)
	}
	return t, nil
}

// CreateTask inserts a task and seeds a TeamTask row for every active team.
func (s *Store) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO tasks (name, checker, env_path, gets, puts, places, checker_timeout, checker_type, default_score, active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		t.Name, t.Checker, t.EnvPath, t.Gets, t.Puts, t.Places, t.CheckerTimeout, t.CheckerType, t.DefaultScore, t.Active,
	).Scan(&t.ID)
	if err != nil {
		return domain.Task{}, fmt.Errorf("insert task: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id FROM teams WHERE active`)
	if err != nil {
		return domain.Task{}, fmt.Errorf("load active teams: %w", err)
	}
	var teamIDs []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return domain.Task{}, err
		}
		teamIDs = append(teamIDs, id)
	}
	rows.Close()

	for _, teamID := range teamIDs {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO teamtasks (team_id, task_id, score, status, check_status, put_status, get_status)
			 VALUES ($1, $2, $3, $4, $4, $4, $4)`,
			teamID, t.ID, float64(t.DefaultScore), int(domain.StatusNotChecked),
		)
		if err != nil {
			return domain.Task{}, fmt.Errorf("seed teamtask: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	if s.cache != nil {
		if err := s.cache.FlushTasks(ctx); err != nil {
			return t, fmt.Errorf("flush tasks cache: %w", err)
		}
	}
	return t, nil
}

// UpdateTask applies a full update to a task's fields.
func (s *Store) UpdateTask(ctx context.Context, t domain.Task) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET name = $1, checker = $2, env_path = $3, gets = $4, puts = $5, places = $6,
		 checker_timeout = $7, checker_type = $8, default_score = $9, active = $10 WHERE id = $11`,
		t.Name, t.Checker, t.EnvPath, t.Gets, t.Puts, t.Places, t.CheckerTimeout, t.CheckerType, t.DefaultScore, t.Active, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if s.cache != nil {
		return s.cache.FlushTasks(ctx)
	}
	return nil
}

// DeleteTask soft-deletes a task by clearing its active flag.
func (s *Store) DeleteTask(ctx context.Context, taskID int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET active = false WHERE id = $1`, taskID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if s.cache != nil {
		return s.cache.FlushTasks(ctx)
	}
	return nil
}
