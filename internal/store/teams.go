package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/adarena/backend/internal/domain"
)

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = errors.New("store: not found")

// GetTeams returns every active team.
func (s *Store) GetTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, ip, token, active FROM teams WHERE active ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get teams: %w", err)
	}
	defer rows.Close()
	return scanTeams(rows)
}

// GetAllTeams returns every team, active or not — used by admin listing.
func (s *Store) GetAllTeams(ctx context.Context) ([]domain.Team, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, ip, token, active FROM teams ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("get all teams: %w", err)
	}
	defer rows.Close()
	return scanTeams(rows)
}

func scanTeams(rows *sql.Rows) ([]domain.Team, error) {
	var teams []domain.Team
	for rows.Next() {
		var t domain.Team
		if err := rows.Scan(&t.ID, &t.Name, &t.IP, &t.Token, &t.Active); err != nil {
			return nil, fmt.Errorf("scan team: %w", err)
		}
		teams = append(teams, t)
	}
	return teams, rows.Err()
}

// GetTeamByID loads one team by primary key.
func (s *Store) GetTeamByID(ctx context.Context, teamID int) (domain.Team, error) {
	var t domain.Team
	err := s.db.QueryRowContext(ctx, `SELECT id, name, ip, token, active FROM teams WHERE id = $1`, teamID).
		Scan(&t.ID, &t.Name, &t.IP, &t.Token, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Team{}, ErrNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team by id: %w", err)
	}
	return t, nil
}

// GetTeamByToken loads the team owning an opaque bearer token, used by
// team-facing auth middleware.
func (s *Store) GetTeamByToken(ctx context.Context, token string) (domain.Team, error) {
	var t domain.Team
	err := s.db.QueryRowContext(ctx, `SELECT id, name, ip, token, active FROM teams WHERE token = $1`, token).
		Scan(&t.ID, &t.Name, &t.IP, &t.Token, &t.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Team{}, ErrNotFound
	}
	if err != nil {
		return domain.Team{}, fmt.Errorf("get team by token: %w", err)
	}
	return t, nil
}

// GenerateToken returns a fresh 16-character hex bearer token, mirroring
// Team.generate_token's secrets.token_hex(8).
func GenerateToken() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// CreateTeam inserts a team and a TeamTask row (status=NOT_CHECKED, scored
// at the task's default) for every active task, then flushes the teams
// cache so the next read rebuilds it.
func (s *Store) CreateTeam(ctx context.Context, t domain.Team) (domain.Team, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Team{}, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx,
		`INSERT INTO teams (name, ip, token, active) VALUES ($1, $2, $3, $4) RETURNING id`,
		t.Name, t.IP, t.Token, t.Active,
	).Scan(&t.ID)
	if err != nil {
		return domain.Team{}, fmt.Errorf("insert team: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `SELECT id, default_score FROM tasks WHERE active`)
	if err != nil {
		return domain.Team{}, fmt.Errorf("load active tasks: %w", err)
	}
	type taskScore struct {
		id    int
		score int
	}
	var tasks []taskScore
	for rows.Next() {
		var ts taskScore
		if err := rows.Scan(&ts.id, &ts.score); err != nil {
			rows.Close()
			return domain.Team{}, err
		}
		tasks = append(tasks, ts)
	}
	rows.Close()

	for _, ts := range tasks {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO teamtasks (team_id, task_id, score, status, check_status, put_status, get_status)
			 VALUES ($1, $2, $3, $4, $4, $4, $4)`,
			t.ID, ts.id, float64(ts.score), int(domain.StatusNotChecked),
		)
		if err != nil {
			return domain.Team{}, fmt.Errorf("seed teamtask: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Team{}, err
	}

	if s.cache != nil {
		if err := s.cache.FlushTeams(ctx); err != nil {
			return t, fmt.Errorf("flush teams cache: %w", err)
		}
	}
	return t, nil
}

// UpdateTeam applies a partial update to name/ip/token/active.
func (s *Store) UpdateTeam(ctx context.Context, t domain.Team) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE teams SET name = $1, ip = $2, token = $3, active = $4 WHERE id = $5`,
		t.Name, t.IP, t.Token, t.Active, t.ID,
	)
	if err != nil {
		return fmt.Errorf("update team: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if s.cache != nil {
		return s.cache.FlushTeams(ctx)
	}
	return nil
}

// DeleteTeam soft-deletes a team by clearing its active flag, matching the
// original (teams are never hard-deleted, to preserve historical scoring).
func (s *Store) DeleteTeam(ctx context.Context, teamID int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE teams SET active = false WHERE id = $1`, teamID)
	if err != nil {
		return fmt.Errorf("delete team: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if s.cache != nil {
		return s.cache.FlushTeams(ctx)
	}
	return nil
}
