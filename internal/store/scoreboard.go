package store

import (
	"context"
	"fmt"
	"sort"
)

type teamScore struct {
	TeamID  int     `json:"team_id"`
	TeamName string `json:"team_name"`
	Score   float64 `json:"score"`
	SLA     float64 `json:"sla"`
	Attack  int     `json:"attack"`
	Defense int     `json:"defense"`
	Rank    int     `json:"rank"`
}

type idName struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// ConstructScoreboard ranks every active team by total score across every
// active task's TeamTask row, alongside per-team average SLA, attack
// count (flags stolen), and defense losses (flags lost). Returns the
// envelope {"state": [...ranked teams], "teams": [...], "tasks": [...],
// "config": <current game config>}.
func (s *Store) ConstructScoreboard(ctx context.Context) (map[string]interface{}, error) {
	cfg, err := s.CurrentGameConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct scoreboard: load game config: %w", err)
	}
	teams, err := s.GetTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct scoreboard: load teams: %w", err)
	}
	tasks, err := s.GetTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct scoreboard: load tasks: %w", err)
	}

	taskIDs := make(map[int]bool, len(tasks))
	for _, t := range tasks {
		taskIDs[t.ID] = true
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT team_id, task_id, score, stolen, lost, checks, checks_passed
		FROM teamtasks`)
	if err != nil {
		return nil, fmt.Errorf("construct scoreboard: load teamtasks: %w", err)
	}
	defer rows.Close()

	type agg struct {
		totalScore   float64
		slaSum       float64
		slaCount     int
		totalAttack  int
		totalDefense int
	}
	byTeam := make(map[int]*agg, len(teams))

	for rows.Next() {
		var teamID, taskID, stolen, lost, checks, checksPassed int
		var score float64
		if err := rows.Scan(&teamID, &taskID, &score, &stolen, &lost, &checks, &checksPassed); err != nil {
			return nil, fmt.Errorf("construct scoreboard: scan teamtask: %w", err)
		}
		if !taskIDs[taskID] {
			continue
		}
		a, ok := byTeam[teamID]
		if !ok {
			a = &agg{}
			byTeam[teamID] = a
		}
		a.totalScore += score
		if checks > 0 {
			a.slaSum += float64(checksPassed) / float64(checks)
			a.slaCount++
		}
		a.totalAttack += stolen
		a.totalDefense += lost
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scores := make([]teamScore, 0, len(teams))
	for _, team := range teams {
		a := byTeam[team.ID]
		if a == nil {
			a = &agg{}
		}
		var avgSLA float64
		if a.slaCount > 0 {
			avgSLA = a.slaSum / float64(a.slaCount)
		}
		scores = append(scores, teamScore{
			TeamID:   team.ID,
			TeamName: team.Name,
			Score:    roundTo(a.totalScore, 2),
			SLA:      roundTo(avgSLA, 3),
			Attack:   a.totalAttack,
			Defense:  a.totalDefense,
		})
	}

	sort.SliceStable(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	for i := range scores {
		scores[i].Rank = i + 1
	}

	teamList := make([]idName, len(teams))
	for i, t := range teams {
		teamList[i] = idName{ID: t.ID, Name: t.Name}
	}
	taskList := make([]idName, len(tasks))
	for i, t := range tasks {
		taskList[i] = idName{ID: t.ID, Name: t.Name}
	}

	return map[string]interface{}{
		"state":  scores,
		"teams":  teamList,
		"tasks":  taskList,
		"config": cfg,
	}, nil
}

func roundTo(v float64, places int) float64 {
	mult := 1.0
	for i := 0; i < places; i++ {
		mult *= 10
	}
	return float64(int64(v*mult+0.5)) / mult
}
