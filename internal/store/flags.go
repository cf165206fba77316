package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/domain"
)

// InsertFlag persists a freshly planted flag and caches it for fast
// lookup by flag string during submission, matching the original's
// put_action (insert then cache_flag against the game's flag_lifetime).
func (s *Store) InsertFlag(ctx context.Context, flag domain.Flag) (domain.Flag, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO flags (flag, team_id, task_id, round, public_flag_data, private_flag_data, vuln_number)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		flag.Flag, flag.TeamID, flag.TaskID, flag.Round, flag.PublicFlagData, flag.PrivateFlagData, flag.VulnNumber,
	).Scan(&flag.ID)
	if err != nil {
		return domain.Flag{}, fmt.Errorf("insert flag: %w", err)
	}

	if s.cache != nil {
		cfg, err := s.CurrentGameConfig(ctx)
		if err != nil {
			return flag, fmt.Errorf("load game config for flag cache ttl: %w", err)
		}
		if err := s.cache.CacheFlag(ctx, flag, cfg.FlagLifetime, cfg.RoundTime); err != nil {
			return flag, fmt.Errorf("cache flag: %w", err)
		}
	}
	return flag, nil
}

// LoadFlagWithTeamTask loads a flag by id together with the owning team
// and task, used by GET to re-run the checker against the planted flag.
func (s *Store) LoadFlagWithTeamTask(ctx context.Context, flagID int) (domain.Flag, domain.Team, domain.Task, error) {
	var f domain.Flag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, flag, team_id, task_id, round, public_flag_data, private_flag_data, vuln_number
		FROM flags WHERE id = $1`, flagID,
	).Scan(&f.ID, &f.Flag, &f.TeamID, &f.TaskID, &f.Round, &f.PublicFlagData, &f.PrivateFlagData, &f.VulnNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Flag{}, domain.Team{}, domain.Task{}, ErrNotFound
	}
	if err != nil {
		return domain.Flag{}, domain.Team{}, domain.Task{}, fmt.Errorf("load flag: %w", err)
	}

	team, task, err := s.LoadTeamAndTask(ctx, f.TeamID, f.TaskID)
	if err != nil {
		return domain.Flag{}, domain.Team{}, domain.Task{}, err
	}
	return f, team, task, nil
}

// RandomRoundFlag picks one random flag planted by (teamID, taskID) within
// [fromRound, currentRound], the pool GET actions attack. Matches
// get_random_round_flag's range-query form with ORDER BY random() LIMIT 1.
func (s *Store) RandomRoundFlag(ctx context.Context, teamID, taskID, fromRound, currentRound int) (*domain.Flag, error) {
	var f domain.Flag
	err := s.db.QueryRowContext(ctx, `
		SELECT id, flag, team_id, task_id, round, public_flag_data, private_flag_data, vuln_number
		FROM flags
		WHERE team_id = $1 AND task_id = $2 AND round >= $3 AND round <= $4
		ORDER BY random() LIMIT 1`,
		teamID, taskID, fromRound, currentRound,
	).Scan(&f.ID, &f.Flag, &f.TeamID, &f.TaskID, &f.Round, &f.PublicFlagData, &f.PrivateFlagData, &f.VulnNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("random round flag: %w", err)
	}
	return &f, nil
}

// CountStolen reports how many times attackerID has already submitted
// flagID, used by submission to reject a repeat steal.
func (s *Store) CountStolen(ctx context.Context, flagID, attackerID int) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT count(*) FROM stolenflags WHERE flag_id = $1 AND attacker_id = $2`, flagID, attackerID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count stolen: %w", err)
	}
	return count, nil
}

// RecalculateRating invokes the recalculate_rating stored procedure, which
// atomically updates both teams' teamtasks scores, records the steal, and
// inserts the stolenflags row — all inside one database-side transaction.
func (s *Store) RecalculateRating(ctx context.Context, attackerID, victimID, taskID, flagID int) (attackerDelta, victimDelta float64, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT attacker_delta, victim_delta FROM recalculate_rating($1, $2, $3, $4)`,
		attackerID, victimID, taskID, flagID,
	).Scan(&attackerDelta, &victimDelta)
	if err != nil {
		return 0, 0, fmt.Errorf("recalculate rating: %w", err)
	}
	return attackerDelta, victimDelta, nil
}

// UpdateAttackData rebuilds the attack-data cache blob: task name -> team
// IP -> public flag data strings planted within the last flag_lifetime
// rounds, matching get_attack_data exactly (including its "every active
// task gets an entry, even if empty" shape).
func (s *Store) UpdateAttackData(ctx context.Context, round int) (cache.AttackData, error) {
	cfg, err := s.CurrentGameConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load game config for attack data: %w", err)
	}
	minRound := round - cfg.FlagLifetime

	tasks, err := s.GetTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tasks for attack data: %w", err)
	}

	data := make(cache.AttackData, len(tasks))
	if len(tasks) == 0 {
		if s.cache != nil {
			if err := s.cache.SetAttackData(ctx, data); err != nil {
				return data, fmt.Errorf("cache attack data: %w", err)
			}
		}
		return data, nil
	}

	taskIDs := make([]int, len(tasks))
	taskNames := make(map[int]string, len(tasks))
	for i, t := range tasks {
		taskIDs[i] = t.ID
		taskNames[t.ID] = t.Name
		data[t.Name] = map[string][]string{}
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT teams.ip, flags.task_id, flags.public_flag_data
		FROM flags
		JOIN teams ON teams.id = flags.team_id
		WHERE flags.round >= $1 AND flags.task_id = ANY($2)`,
		minRound, pq.Array(taskIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("load attack flags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ip string
		var taskID int
		var publicFlagData string
		if err := rows.Scan(&ip, &taskID, &publicFlagData); err != nil {
			return nil, fmt.Errorf("scan attack flag: %w", err)
		}
		if publicFlagData == "" {
			continue
		}
		name := taskNames[taskID]
		data[name][ip] = append(data[name][ip], publicFlagData)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetAttackData(ctx, data); err != nil {
			return data, fmt.Errorf("cache attack data: %w", err)
		}
	}
	return data, nil
}
