// Package ticker implements the crash-safe game clock: it starts the
// tournament at the configured start time and advances rounds at
// round_time intervals, using persisted ScheduleHistory rows so a
// restart never re-fires a start or round transition that already ran.
package ticker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/domain"
	"github.com/adarena/backend/internal/queue"
)

const tickInterval = 100 * time.Millisecond

// Store is the subset of internal/store the ticker needs.
type Store interface {
	GameRunning(ctx context.Context) (bool, error)
	SetGameRunning(ctx context.Context, running bool) error
	CurrentGameConfig(ctx context.Context) (domain.GameConfig, error)
	SetRoundStart(ctx context.Context, round int) error
	UpdateGameState(ctx context.Context, round int) (cache.GameStateSnapshot, error)
	UpdateRound(ctx context.Context, round int) error
	UpdateAttackData(ctx context.Context, round int) (cache.AttackData, error)
	GetTeams(ctx context.Context) ([]domain.Team, error)
	GetTasks(ctx context.Context) ([]domain.Task, error)
	LogTeamTaskToHistory(ctx context.Context, teamID, taskID, round int) error
	GetRealRound(ctx context.Context) (int, error)
	GetLastRun(ctx context.Context, name string) (time.Time, bool, error)
	SaveLastRun(ctx context.Context, name string, at time.Time) error
	ConstructScoreboard(ctx context.Context) (map[string]interface{}, error)
}

// Service is the game clock. One instance runs per deployment — multiple
// instances would double-submit round jobs since there is no leader
// election, matching the original's single-ticker-process deployment.
type Service struct {
	store Store
	cache *cache.Client
	queue *queue.Queue
	flags queue.FlagLookup

	gameStarted    bool
	halted         bool
	startTime      time.Time
	roundInterval  time.Duration
	lastStartCheck time.Time
	lastRoundCheck time.Time
}

// New builds a ticker Service.
func New(store Store, c *cache.Client, q *queue.Queue, flags queue.FlagLookup) *Service {
	return &Service{store: store, cache: c, queue: q, flags: flags}
}

// Initialize loads game config and schedule history so a restarted ticker
// resumes exactly where it left off.
func (s *Service) Initialize(ctx context.Context) error {
	running, err := s.store.GameRunning(ctx)
	if err != nil {
		return fmt.Errorf("ticker: game running: %w", err)
	}
	s.gameStarted = running

	cfg, err := s.store.CurrentGameConfig(ctx)
	if err != nil {
		return fmt.Errorf("ticker: game config: %w", err)
	}
	s.startTime = cfg.StartTime
	s.roundInterval = cfg.RoundInterval()

	if at, ok, err := s.store.GetLastRun(ctx, "start_game"); err == nil && ok {
		s.lastStartCheck = at
	}
	if at, ok, err := s.store.GetLastRun(ctx, "rounds"); err == nil && ok {
		s.lastRoundCheck = at
	}

	slog.Info("ticker: initialized", "game_started", s.gameStarted, "start_time", s.startTime, "round_interval", s.roundInterval)
	return nil
}

// Run loops at tickInterval checking for a start or round transition until
// ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	slog.Info("ticker: service started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("ticker: service stopping")
			return
		default:
		}

		now := time.Now().UTC()
		if err := s.checkStartGame(ctx, now); err != nil {
			slog.Error("ticker: check start game failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if err := s.checkRoundTick(ctx, now); err != nil {
			slog.Error("ticker: check round tick failed", "error", err)
			time.Sleep(time.Second)
			continue
		}

		time.Sleep(tickInterval)
	}
}

func (s *Service) checkStartGame(ctx context.Context, now time.Time) error {
	if s.gameStarted {
		return nil
	}
	if now.Before(s.startTime) {
		return nil
	}
	if !s.lastStartCheck.IsZero() && !s.lastStartCheck.Before(s.startTime) {
		slog.Info("ticker: start game already executed")
		s.gameStarted = true
		return nil
	}

	slog.Info("ticker: starting game")
	if err := s.startGame(ctx); err != nil {
		return err
	}

	s.lastStartCheck = now
	if err := s.store.SaveLastRun(ctx, "start_game", now); err != nil {
		return fmt.Errorf("save last run: %w", err)
	}
	s.gameStarted = true
	return nil
}

func (s *Service) startGame(ctx context.Context) error {
	already, err := s.store.GameRunning(ctx)
	if err != nil {
		return err
	}
	if already {
		slog.Warn("ticker: game already started")
		return nil
	}

	if err := s.store.SetRoundStart(ctx, 0); err != nil {
		return fmt.Errorf("set round start: %w", err)
	}
	if err := s.store.SetGameRunning(ctx, true); err != nil {
		return fmt.Errorf("set game running: %w", err)
	}

	slog.Info("ticker: caching teams and tasks")
	teams, err := s.store.GetTeams(ctx)
	if err != nil {
		return err
	}
	tasks, err := s.store.GetTasks(ctx)
	if err != nil {
		return err
	}
	if err := s.cache.CacheTeams(ctx, teams); err != nil {
		return fmt.Errorf("cache teams: %w", err)
	}
	if err := s.cache.CacheTasks(ctx, tasks); err != nil {
		return fmt.Errorf("cache tasks: %w", err)
	}
	cfg, err := s.store.CurrentGameConfig(ctx)
	if err != nil {
		return err
	}
	if err := s.cache.CacheGameConfig(ctx, cfg); err != nil {
		return fmt.Errorf("cache game config: %w", err)
	}

	slog.Info("ticker: initializing game state for round 0")
	snap, err := s.store.UpdateGameState(ctx, 0)
	if err != nil {
		return err
	}
	if err := s.cache.SetGameState(ctx, snap); err != nil {
		slog.Error("ticker: cache game state failed", "error", err)
	}

	slog.Info("ticker: submitting initial checker jobs")
	stats := queue.SubmitInitialChecks(ctx, s.queue, teams, tasks)
	slog.Info("ticker: game started", "check_jobs", stats.CheckJobs, "errors", stats.Errors)
	return nil
}

func (s *Service) checkRoundTick(ctx context.Context, now time.Time) error {
	if !s.gameStarted || s.halted {
		return nil
	}

	var nextRoundTime time.Time
	if !s.lastRoundCheck.IsZero() {
		nextRoundTime = s.lastRoundCheck.Add(s.roundInterval)
	} else {
		nextRoundTime = s.startTime.Add(s.roundInterval)
	}
	if now.Before(nextRoundTime) {
		return nil
	}

	slog.Info("ticker: processing round tick", "at", now)
	if err := s.processRound(ctx); err != nil {
		return err
	}

	s.lastRoundCheck = now
	return s.store.SaveLastRun(ctx, "rounds", now)
}

func (s *Service) processRound(ctx context.Context) error {
	currentRound, err := s.store.GetRealRound(ctx)
	if err != nil {
		return err
	}
	cfg, err := s.store.CurrentGameConfig(ctx)
	if err != nil {
		return err
	}

	if cfg.MaxRound > 0 && currentRound > cfg.MaxRound {
		slog.Info("ticker: reached max round, game finished", "round", currentRound, "max_round", cfg.MaxRound)
		if err := s.store.UpdateRound(ctx, currentRound); err != nil {
			return err
		}
		finalRound := currentRound + 1
		if _, err := s.store.UpdateGameState(ctx, finalRound); err != nil {
			return err
		}
		s.halted = true
		return nil
	}

	slog.Info("ticker: processing round", "round", currentRound)
	if err := s.store.UpdateRound(ctx, currentRound); err != nil {
		return err
	}
	newRound := currentRound + 1

	snap, err := s.store.UpdateGameState(ctx, newRound)
	if err != nil {
		return err
	}
	if err := s.cache.SetGameState(ctx, snap); err != nil {
		slog.Error("ticker: cache game state failed", "error", err)
	}

	attackData, err := s.store.UpdateAttackData(ctx, newRound)
	if err != nil {
		return err
	}
	if err := s.cache.SetAttackData(ctx, attackData); err != nil {
		slog.Error("ticker: cache attack data failed", "error", err)
	}

	if err := s.broadcastScoreboardUpdate(ctx); err != nil {
		slog.Error("ticker: broadcast scoreboard update failed", "error", err)
	}

	teams, err := s.store.GetTeams(ctx)
	if err != nil {
		return err
	}
	tasks, err := s.store.GetTasks(ctx)
	if err != nil {
		return err
	}
	for _, team := range teams {
		for _, task := range tasks {
			if err := s.store.LogTeamTaskToHistory(ctx, team.ID, task.ID, currentRound); err != nil {
				slog.Error("ticker: log teamtask history failed", "team_id", team.ID, "task_id", task.ID, "error", err)
			}
		}
	}

	stats := queue.SubmitRoundJobs(ctx, s.queue, s.flags, teams, tasks, newRound, cfg.FlagLifetime)
	slog.Info("ticker: round ready", "round", newRound, "check", stats.CheckJobs, "put", stats.PutJobs, "get", stats.GetJobs)
	return nil
}

func (s *Service) broadcastScoreboardUpdate(ctx context.Context) error {
	board, err := s.store.ConstructScoreboard(ctx)
	if err != nil {
		return fmt.Errorf("construct scoreboard: %w", err)
	}
	payload, err := json.Marshal(map[string]interface{}{
		"event_type": "scoreboard_update",
		"event":      "update_scoreboard",
		"data":       board["state"],
	})
	if err != nil {
		return err
	}
	return s.cache.Publish(ctx, cache.EventsChannel, payload)
}
