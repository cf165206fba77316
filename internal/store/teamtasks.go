package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/domain"
)

// statusCaseSQL and messageCaseSQL are the SQL expressions deriving
// TeamTask.status and its public_message from the three per-action statuses just written by the
// same UPDATE. Mirrors domain.AggregateStatus exactly, evaluated inline so
// the derivation never needs a separate read-modify-write.
const statusCaseSQL = `
	CASE
		WHEN check_status = 110 THEN 110
		WHEN check_status = 104 THEN 104
		WHEN check_status = -1  THEN -1
		WHEN put_status = 110   THEN 102
		WHEN put_status = 104   THEN 102
		WHEN get_status = 110   THEN 103
		WHEN get_status = 104   THEN 103
		ELSE 101
	END`

const messageCaseSQL = `
	CASE
		WHEN check_status = 110 THEN 'Service check failed'
		WHEN check_status = 104 THEN 'Service is down'
		WHEN check_status = -1  THEN 'Not checked yet'
		WHEN put_status = 110   THEN 'Service corrupted (PUT failed)'
		WHEN put_status = 104   THEN 'Service corrupted (PUT unreachable)'
		WHEN get_status = 110   THEN 'Service mumble (GET failed)'
		WHEN get_status = 104   THEN 'Service mumble (GET unreachable)'
		ELSE 'Service operational'
	END`

// LoadTeamAndTask loads the team and task a worker job operates on.
func (s *Store) LoadTeamAndTask(ctx context.Context, teamID, taskID int) (domain.Team, domain.Task, error) {
	team, err := s.GetTeamByID(ctx, teamID)
	if err != nil {
		return domain.Team{}, domain.Task{}, fmt.Errorf("load team: %w", err)
	}
	task, err := s.GetTaskByID(ctx, taskID)
	if err != nil {
		return domain.Team{}, domain.Task{}, fmt.Errorf("load task: %w", err)
	}
	return team, task, nil
}

// UpdateCheckResult records a CHECK verdict, re-derives the aggregate
// status in the same statement, and is the only action that advances the
// checks/checks_passed SLA counters and the shared private_message (which
// it only overwrites on failure, matching the original's behavior of
// surfacing the CHECK failure reason rather than a later PUT/GET one).
func (s *Store) UpdateCheckResult(ctx context.Context, teamID, taskID int, verdict domain.CheckerVerdict) error {
	query := fmt.Sprintf(`
		UPDATE teamtasks SET
			check_status = $1,
			check_message = left($2, 500),
			check_private = left($3, 2000),
			check_attempts = check_attempts + 1,
			checks = checks + 1,
			checks_passed = checks_passed + CASE WHEN $1 = 101 THEN 1 ELSE 0 END,
			status = %[1]s,
			public_message = %[2]s,
			private_message = CASE WHEN $1 != 101 THEN left($3, 1000) ELSE private_message END
		WHERE team_id = $4 AND task_id = $5`, statusCaseSQL, messageCaseSQL)

	_, err := s.db.ExecContext(ctx, query, int(verdict.Status), verdict.PublicMessage, verdict.PrivateMessage, teamID, taskID)
	if err != nil {
		return fmt.Errorf("update check result: %w", err)
	}
	return nil
}

func (s *Store) updatePutOrGetResult(ctx context.Context, teamID, taskID int, column string, verdict domain.CheckerVerdict) error {
	query := fmt.Sprintf(`
		UPDATE teamtasks SET
			%[1]s_status = $1,
			%[1]s_message = left($2, 500),
			%[1]s_private = left($3, 2000),
			%[1]s_attempts = %[1]s_attempts + 1,
			status = %[2]s,
			public_message = %[3]s
		WHERE team_id = $4 AND task_id = $5`, column, statusCaseSQL, messageCaseSQL)

	_, err := s.db.ExecContext(ctx, query, int(verdict.Status), verdict.PublicMessage, verdict.PrivateMessage, teamID, taskID)
	if err != nil {
		return fmt.Errorf("update %s result: %w", column, err)
	}
	return nil
}

// UpdatePutResult records a PUT verdict. PUT never touches the SLA
// counters or shared private_message — those belong to CHECK alone.
func (s *Store) UpdatePutResult(ctx context.Context, teamID, taskID int, verdict domain.CheckerVerdict) error {
	return s.updatePutOrGetResult(ctx, teamID, taskID, "put", verdict)
}

// UpdateGetResult records a GET verdict, same shape as UpdatePutResult.
func (s *Store) UpdateGetResult(ctx context.Context, teamID, taskID int, verdict domain.CheckerVerdict) error {
	return s.updatePutOrGetResult(ctx, teamID, taskID, "get", verdict)
}

// UpdateSkipped records an action that was never attempted because an
// earlier action in the same round barrier already failed (e.g. PUT/GET
// skipped after a failed CHECK), without counting it toward checks_passed.
func (s *Store) UpdateSkipped(ctx context.Context, teamID, taskID int, action domain.Action, statusCode domain.TaskStatus, message string) error {
	column := actionColumn(action)
	query := fmt.Sprintf(`
		UPDATE teamtasks SET
			%[1]s_status = $1,
			%[1]s_message = $2,
			status = %[2]s,
			public_message = %[3]s
		WHERE team_id = $3 AND task_id = $4`, column, statusCaseSQL, messageCaseSQL)

	_, err := s.db.ExecContext(ctx, query, int(statusCode), message, teamID, taskID)
	if err != nil {
		return fmt.Errorf("update skipped %s: %w", column, err)
	}
	return nil
}

// UpdateActionError records an action that errored (checker crash, timeout
// spawning the subprocess) as StatusCheckFailed with the error text as the
// private message, mirroring the original's exception-to-CHECK_FAILED path.
func (s *Store) UpdateActionError(ctx context.Context, teamID, taskID int, action domain.Action, err error) error {
	verdict := domain.CheckerVerdict{
		Status:         domain.StatusCheckFailed,
		Action:         action,
		PublicMessage:  fmt.Sprintf("%s action failed", action),
		PrivateMessage: err.Error(),
	}
	switch action {
	case domain.ActionCheck:
		return s.UpdateCheckResult(ctx, teamID, taskID, verdict)
	default:
		return s.updatePutOrGetResult(ctx, teamID, taskID, actionColumn(action), verdict)
	}
}

func actionColumn(a domain.Action) string {
	switch a {
	case domain.ActionPut:
		return "put"
	case domain.ActionGet:
		return "get"
	default:
		return "check"
	}
}

// CheckPutStatus loads the current CHECK and PUT statuses, used by the
// worker to decide whether GET should even attempt to run.
func (s *Store) CheckPutStatus(ctx context.Context, teamID, taskID int) (checkStatus, putStatus domain.TaskStatus, err error) {
	var check, put int
	err = s.db.QueryRowContext(ctx,
		`SELECT check_status, put_status FROM teamtasks WHERE team_id = $1 AND task_id = $2`,
		teamID, taskID,
	).Scan(&check, &put)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("check put status: %w", err)
	}
	return domain.TaskStatus(check), domain.TaskStatus(put), nil
}

// CheckStatus is the DB-fallback lookup the coordinator polls when a
// worker times out waiting on the Pub/Sub CHECK-complete signal.
func (s *Store) CheckStatus(ctx context.Context, teamID, taskID int) (domain.TaskStatus, error) {
	var check int
	err := s.db.QueryRowContext(ctx,
		`SELECT check_status FROM teamtasks WHERE team_id = $1 AND task_id = $2`, teamID, taskID,
	).Scan(&check)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("check status: %w", err)
	}
	return domain.TaskStatus(check), nil
}

// TeamTaskStatus loads the aggregate status, used by flag submission to
// enforce the Volga "cannot submit while service is down" rule.
func (s *Store) TeamTaskStatus(ctx context.Context, teamID, taskID int) (domain.TaskStatus, error) {
	var status int
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM teamtasks WHERE team_id = $1 AND task_id = $2`, teamID, taskID,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("team task status: %w", err)
	}
	return domain.TaskStatus(status), nil
}

// LogTeamTaskToHistory appends the current TeamTask row to teamtaskslog,
// called once per (team, task) at each round boundary.
func (s *Store) LogTeamTaskToHistory(ctx context.Context, teamID, taskID, round int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO teamtaskslog (round, task_id, team_id, status, stolen, lost, score, checks, checks_passed, public_message, private_message, command)
		SELECT $1, task_id, team_id, status, stolen, lost, score, checks, checks_passed, public_message, private_message, command
		FROM teamtasks WHERE team_id = $2 AND task_id = $3`,
		round, teamID, taskID,
	)
	if err != nil {
		return fmt.Errorf("log teamtask to history: %w", err)
	}
	return nil
}

// UpdateGameState rebuilds the game_state cache blob (round, round start,
// and every TeamTask's public projection) for the round just closed. The
// round start comes from the cached round:{N} start instant; without one it
// is the game's configured start_time.
func (s *Store) UpdateGameState(ctx context.Context, round int) (cache.GameStateSnapshot, error) {
	var roundStart sql.NullTime
	_ = s.db.QueryRowContext(ctx, `SELECT start_time FROM gameconfig WHERE id = $1`, gameConfigID).Scan(&roundStart)

	rows, err := s.db.QueryContext(ctx, `
		SELECT team_id, task_id, status, public_message, stolen, lost, score, checks, checks_passed
		FROM teamtasks ORDER BY team_id, task_id`)
	if err != nil {
		return cache.GameStateSnapshot{}, fmt.Errorf("update game state: %w", err)
	}
	defer rows.Close()

	snap := cache.GameStateSnapshot{Round: round}
	if roundStart.Valid {
		snap.RoundStart = roundStart.Time
	}
	if s.cache != nil {
		if at, err := s.cache.GetRoundStart(ctx, round); err == nil {
			snap.RoundStart = at
		}
	}
	for rows.Next() {
		var v cache.TeamTaskStateView
		var checks, checksPassed int
		if err := rows.Scan(&v.TeamID, &v.TaskID, &v.Status, &v.PublicMessage, &v.Stolen, &v.Lost, &v.Score, &checks, &checksPassed); err != nil {
			return cache.GameStateSnapshot{}, fmt.Errorf("scan teamtask state: %w", err)
		}
		if checks > 0 {
			v.SLA = float64(checksPassed) / float64(checks) * 100
		}
		snap.TeamTasks = append(snap.TeamTasks, v)
	}
	if err := rows.Err(); err != nil {
		return cache.GameStateSnapshot{}, err
	}

	if s.cache != nil {
		if err := s.cache.SetGameState(ctx, snap); err != nil {
			return snap, fmt.Errorf("cache game state: %w", err)
		}
	}
	return snap, nil
}
