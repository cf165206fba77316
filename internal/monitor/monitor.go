// Package monitor tracks round progress and overall tournament health —
// completion percentage per round, per (team, task) status, and the
// HEALTHY/DEGRADED/CRITICAL/WAITING health ladder, all derived from
// internal/coordinator's recorded action stream.
package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/adarena/backend/internal/coordinator"
	"github.com/adarena/backend/internal/domain"
)

// Store is the subset of internal/store the monitor needs.
type Store interface {
	GetTeams(ctx context.Context) ([]domain.Team, error)
	GetTasks(ctx context.Context) ([]domain.Task, error)
	GetRealRound(ctx context.Context) (int, error)
	GameRunning(ctx context.Context) (bool, error)
}

// Metrics is the subset of internal/monitoring.Metrics the monitor needs to
// publish round/game gauges once per poll tick.
type Metrics interface {
	SetRoundState(round int, progress float64, activeTeams, activeTasks int, running bool)
}

const (
	pollInterval     = 5 * time.Second
	completeFraction = 0.95
)

// Monitor polls round status every 5 seconds and answers completion/health
// queries for the API's /api/admin/monitor endpoints.
type Monitor struct {
	store   Store
	coord   *coordinator.Coordinator
	metrics Metrics

	currentRound int
}

// New builds a Monitor. metrics may be nil, in which case round/game
// gauges simply go unpublished.
func New(store Store, coord *coordinator.Coordinator, metrics Metrics) *Monitor {
	return &Monitor{store: store, coord: coord, metrics: metrics}
}

// Run polls round progress until ctx is cancelled, logging errors and slow
// or failing (team, task) pairs.
func (m *Monitor) Run(ctx context.Context) {
	slog.Info("monitor: started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("monitor: stopped")
			return
		default:
		}

		round, err := m.store.GetRealRound(ctx)
		if err != nil {
			slog.Error("monitor: get real round failed", "error", err)
			sleepOrDone(ctx, pollInterval)
			continue
		}
		m.currentRound = round

		if round > 0 {
			m.logRoundProgress(ctx, round)
		}
		m.publishMetrics(ctx, round)

		sleepOrDone(ctx, pollInterval)
	}
}

func (m *Monitor) publishMetrics(ctx context.Context, round int) {
	if m.metrics == nil {
		return
	}

	running, err := m.store.GameRunning(ctx)
	if err != nil {
		slog.Error("monitor: game running lookup failed", "error", err)
		return
	}

	teams, err := m.store.GetTeams(ctx)
	if err != nil {
		slog.Error("monitor: get teams failed", "error", err)
		return
	}
	tasks, err := m.store.GetTasks(ctx)
	if err != nil {
		slog.Error("monitor: get tasks failed", "error", err)
		return
	}

	progress := 0.0
	if round > 0 {
		if status, err := m.GetRoundCompletionStatus(ctx, round); err == nil {
			progress = status.Progress
		}
	}

	m.metrics.SetRoundState(round, progress, len(teams), len(tasks), running)
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func (m *Monitor) logRoundProgress(ctx context.Context, round int) {
	summary, err := m.coord.GetRoundSummary(ctx, round)
	if err != nil {
		slog.Error("monitor: round summary failed", "round", round, "error", err)
		return
	}

	if len(summary.Errors) > 0 {
		slog.Warn("monitor: round has errors", "round", round, "error_count", len(summary.Errors), "by_status", summary.ByStatus)
		limit := 5
		if len(summary.Errors) < limit {
			limit = len(summary.Errors)
		}
		for _, e := range summary.Errors[:limit] {
			slog.Warn("monitor: action error", "team_id", e.TeamID, "task_id", e.TaskID, "action", e.Action, "status", e.Status, "message", e.Message)
		}
	}

	if summary.TotalActions > 0 {
		slog.Debug("monitor: round progress", "round", round, "total", summary.TotalActions, "check", summary.ByAction["CHECK"], "put", summary.ByAction["PUT"], "get", summary.ByAction["GET"])
	}
}

// RoundCompletionStatus is the expected-vs-actual completion breakdown for
// one round, returned by the monitor reads API.
type RoundCompletionStatus struct {
	Round               int            `json:"round"`
	Completed           bool           `json:"completed"`
	Progress            float64        `json:"progress"`
	ExpectedActions     int            `json:"expected_actions"`
	CompletedActions    int            `json:"completed_actions"`
	ExpectedBreakdown   map[string]int `json:"expected_breakdown"`
	CompletedBreakdown  map[string]int `json:"completed_breakdown"`
	ByStatus            map[string]int `json:"by_status"`
	Errors              []coordinator.RoundError `json:"errors"`
}

// GetRoundCompletionStatus computes expected totals (teams*tasks for
// CHECK, plus sum(puts)*teams and sum(gets)*teams) against the round's
// recorded action stream, marking the round complete at >=95% progress.
func (m *Monitor) GetRoundCompletionStatus(ctx context.Context, round int) (RoundCompletionStatus, error) {
	teams, err := m.store.GetTeams(ctx)
	if err != nil {
		return RoundCompletionStatus{}, err
	}
	tasks, err := m.store.GetTasks(ctx)
	if err != nil {
		return RoundCompletionStatus{}, err
	}

	expectedChecks := len(teams) * len(tasks)
	expectedPuts := 0
	expectedGets := 0
	for _, t := range tasks {
		expectedPuts += t.Puts
		expectedGets += t.Gets
	}
	expectedPuts *= len(teams)
	expectedGets *= len(teams)
	expectedTotal := expectedChecks + expectedPuts + expectedGets

	summary, err := m.coord.GetRoundSummary(ctx, round)
	if err != nil {
		return RoundCompletionStatus{}, err
	}

	progress := 0.0
	if expectedTotal > 0 {
		progress = float64(summary.TotalActions) / float64(expectedTotal)
	}

	return RoundCompletionStatus{
		Round: round, Completed: progress >= completeFraction, Progress: progress,
		ExpectedActions: expectedTotal, CompletedActions: summary.TotalActions,
		ExpectedBreakdown:  map[string]int{"check": expectedChecks, "put": expectedPuts, "get": expectedGets},
		CompletedBreakdown: summary.ByAction,
		ByStatus:           summary.ByStatus,
		Errors:             summary.Errors,
	}, nil
}

// TeamTaskStatus is the per-(team,task) round detail returned by the
// spectator and admin "drill into a cell" views.
type TeamTaskStatus struct {
	TeamID        int                    `json:"team_id"`
	TaskID        int                    `json:"task_id"`
	Round         int                    `json:"round"`
	Check         *coordinator.ActionResult  `json:"check,omitempty"`
	Puts          []coordinator.ActionResult `json:"puts"`
	Gets          []coordinator.ActionResult `json:"gets"`
	OverallStatus string                 `json:"overall_status"`
}

// GetTeamTaskStatus returns every recorded action for a (team, task,
// round), with CHECK's status standing in for "overall" until PUT/GET
// results arrive.
func (m *Monitor) GetTeamTaskStatus(ctx context.Context, teamID, taskID, round int) (TeamTaskStatus, error) {
	results, err := m.coord.GetRoundResults(ctx, teamID, taskID, round)
	if err != nil {
		return TeamTaskStatus{}, err
	}

	status := TeamTaskStatus{TeamID: teamID, TaskID: taskID, Round: round, OverallStatus: "PENDING", Puts: []coordinator.ActionResult{}, Gets: []coordinator.ActionResult{}}

	if check, ok := results["CHECK"]; ok {
		status.Check = &check
		status.OverallStatus = check.Status
	}
	if put, ok := results["PUT"]; ok {
		status.Puts = append(status.Puts, put)
	}
	if get, ok := results["GET"]; ok {
		status.Gets = append(status.Gets, get)
	}

	return status, nil
}

// GlobalHealth is the overall tournament health summary.
type GlobalHealth struct {
	GameRunning      bool           `json:"game_running"`
	CurrentRound     int            `json:"current_round"`
	Health           string         `json:"health"`
	Message          string         `json:"message,omitempty"`
	Progress         float64        `json:"progress,omitempty"`
	CompletedActions int            `json:"completed_actions,omitempty"`
	ExpectedActions  int            `json:"expected_actions,omitempty"`
	ErrorCount       int            `json:"error_count,omitempty"`
	ErrorRate        float64        `json:"error_rate,omitempty"`
	StatusBreakdown  map[string]int `json:"status_breakdown,omitempty"`
}

// GetGlobalHealth classifies HEALTHY (<5% error rate), DEGRADED (<15%), or
// CRITICAL (>=15%); WAITING before round 1 starts.
func (m *Monitor) GetGlobalHealth(ctx context.Context) (GlobalHealth, error) {
	round, err := m.store.GetRealRound(ctx)
	if err != nil {
		return GlobalHealth{}, err
	}
	running, err := m.store.GameRunning(ctx)
	if err != nil {
		return GlobalHealth{}, err
	}

	if round == 0 {
		return GlobalHealth{GameRunning: running, CurrentRound: 0, Health: "WAITING", Message: "Game not started yet"}, nil
	}

	status, err := m.GetRoundCompletionStatus(ctx, round)
	if err != nil {
		return GlobalHealth{}, err
	}

	denominator := status.CompletedActions
	if denominator < 1 {
		denominator = 1
	}
	errorRate := float64(len(status.Errors)) / float64(denominator)

	health := "HEALTHY"
	switch {
	case errorRate >= 0.15:
		health = "CRITICAL"
	case errorRate >= 0.05:
		health = "DEGRADED"
	}

	return GlobalHealth{
		GameRunning: running, CurrentRound: round, Health: health,
		Progress: status.Progress, CompletedActions: status.CompletedActions,
		ExpectedActions: status.ExpectedActions, ErrorCount: len(status.Errors),
		ErrorRate: errorRate, StatusBreakdown: status.ByStatus,
	}, nil
}
