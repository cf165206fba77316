// Package worker implements the CHECK/PUT/GET job handlers consumed off
// internal/queue. Each handler is idempotent — safe to redeliver — and
// performs a single atomic SQL update per action, mirroring the
// at-least-once / atomic-CASE-update contract in spec §4.2.
package worker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/checker"
	"github.com/adarena/backend/internal/coordinator"
	"github.com/adarena/backend/internal/domain"
)

// Metrics is the subset of internal/monitoring.Metrics the worker needs.
type Metrics interface {
	RecordAction(action, status string, durationSeconds float64)
}

// Store is the subset of internal/store the worker handlers need.
type Store interface {
	LoadTeamAndTask(ctx context.Context, teamID, taskID int) (domain.Team, domain.Task, error)
	UpdateCheckResult(ctx context.Context, teamID, taskID int, verdict domain.CheckerVerdict) error
	UpdatePutResult(ctx context.Context, teamID, taskID int, verdict domain.CheckerVerdict) error
	UpdateGetResult(ctx context.Context, teamID, taskID int, verdict domain.CheckerVerdict) error
	UpdateSkipped(ctx context.Context, teamID, taskID int, action domain.Action, statusCode domain.TaskStatus, message string) error
	UpdateActionError(ctx context.Context, teamID, taskID int, action domain.Action, err error) error
	CheckPutStatus(ctx context.Context, teamID, taskID int) (checkStatus, putStatus domain.TaskStatus, err error)
	InsertFlag(ctx context.Context, flag domain.Flag) (domain.Flag, error)
	LoadFlagWithTeamTask(ctx context.Context, flagID int) (domain.Flag, domain.Team, domain.Task, error)
	CurrentGameConfig(ctx context.Context) (domain.GameConfig, error)
}

// Runner is the checker-invocation surface the handlers need; satisfied by
// *checker.Pool, and narrowed here so tests can substitute a fake.
type Runner interface {
	Run(ctx context.Context, action domain.Action, team checker.Team, task checker.TaskSpec, flag *checker.FlagArgs) (domain.CheckerVerdict, error)
}

// Handlers wires the checker pool, coordinator barrier, cache, and store
// into the three job handlers.
type Handlers struct {
	Store       Store
	Cache       *cache.Client
	Coord       *coordinator.Coordinator
	Checkers    Runner
	CheckWait   time.Duration
	MaxRetries  int
	InitBackoff time.Duration
	Metrics     Metrics
}

func toCheckerTask(t domain.Task) checker.TaskSpec {
	return checker.TaskSpec{ID: t.ID, Checker: t.Checker, EnvPath: t.EnvPath, CheckerTimeout: time.Duration(t.CheckerTimeout) * time.Second}
}

func toCheckerTeam(t domain.Team) checker.Team {
	return checker.Team{ID: t.ID, IP: t.IP}
}

// HandleCheck runs CHECK for (team, task, round), persists the atomic
// update, then signals PUT/GET waiters and records the action for
// monitoring — in that order, exactly as the original notes: the commit
// must land before anyone is told it has.
func (h *Handlers) HandleCheck(ctx context.Context, teamID, taskID, round int) error {
	slog.Info("worker: running CHECK", "team_id", teamID, "task_id", taskID, "round", round)

	team, task, err := h.Store.LoadTeamAndTask(ctx, teamID, taskID)
	if err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionCheck, err)
	}

	started := time.Now()
	verdict, _ := h.Checkers.Run(ctx, domain.ActionCheck, toCheckerTeam(team), toCheckerTask(task), nil)
	elapsed := time.Since(started)

	if err := h.Store.UpdateCheckResult(ctx, teamID, taskID, verdict); err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionCheck, err)
	}

	if h.Coord != nil {
		if err := h.Coord.SignalCheckComplete(ctx, teamID, taskID, round, verdict.Status); err != nil {
			slog.Error("worker: signal check complete failed", "error", err)
		}
	}
	h.recordTimed(ctx, domain.ActionCheck, teamID, taskID, round, verdict, "", elapsed)
	return nil
}

// HandlePut waits for CHECK, skips if it failed, otherwise plants a fresh
// flag, caches it, runs the checker, and records the atomic update.
func (h *Handlers) HandlePut(ctx context.Context, teamID, taskID, round int) error {
	slog.Info("worker: running PUT", "team_id", teamID, "task_id", taskID, "round", round)

	checkStatus, ok := h.Coord.WaitForCheckWithFallback(ctx, teamID, taskID, round, h.CheckWait, h.MaxRetries, h.InitBackoff)
	if !ok {
		slog.Error("worker: CHECK wholly unresolved for PUT", "team_id", teamID, "task_id", taskID)
	}

	if checkStatus == domain.StatusCheckFailed || checkStatus == domain.StatusDown {
		return h.skip(ctx, teamID, taskID, round, domain.ActionPut, checkStatus, "Skipped: CHECK failed")
	}

	team, task, err := h.Store.LoadTeamAndTask(ctx, teamID, taskID)
	if err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionPut, err)
	}

	place, err := randInt(task.Places)
	if err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionPut, err)
	}
	flagStr, err := randomFlag()
	if err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionPut, err)
	}
	privateData, err := randomHex(32)
	if err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionPut, err)
	}

	flag := domain.Flag{
		Flag: flagStr, TeamID: teamID, TaskID: taskID, Round: round,
		PublicFlagData: fmt.Sprintf("%d", place), PrivateFlagData: privateData, VulnNumber: 1,
	}
	flag, err = h.Store.InsertFlag(ctx, flag)
	if err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionPut, err)
	}

	if cfg, err := h.Store.CurrentGameConfig(ctx); err == nil {
		if err := h.Cache.CacheFlag(ctx, flag, cfg.FlagLifetime, cfg.RoundTime); err != nil {
			slog.Error("worker: cache flag failed", "error", err)
		}
	}

	started := time.Now()
	verdict, _ := h.Checkers.Run(ctx, domain.ActionPut, toCheckerTeam(team), toCheckerTask(task), &checker.FlagArgs{
		PrivateFlagData: flag.PrivateFlagData, Flag: flag.Flag, VulnNumber: flag.VulnNumber,
	})
	elapsed := time.Since(started)

	if err := h.Store.UpdatePutResult(ctx, teamID, taskID, verdict); err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionPut, err)
	}
	h.recordTimed(ctx, domain.ActionPut, teamID, taskID, round, verdict, flagStr, elapsed)
	return nil
}

// HandleGet waits for CHECK, polls PUT status with retry/backoff (PUT has
// no Pub/Sub signal since a round can have several), skips on either
// failing, then loads and attacks the named flag.
func (h *Handlers) HandleGet(ctx context.Context, teamID, taskID, round, flagID int) error {
	slog.Info("worker: running GET", "team_id", teamID, "task_id", taskID, "round", round, "flag_id", flagID)

	checkStatus, _ := h.Coord.WaitForCheckWithFallback(ctx, teamID, taskID, round, h.CheckWait, h.MaxRetries, h.InitBackoff)

	var putStatus domain.TaskStatus
	backoff := h.InitBackoff
	for attempt := 1; attempt <= h.MaxRetries; attempt++ {
		cs, ps, err := h.Store.CheckPutStatus(ctx, teamID, taskID)
		if err == nil && cs != domain.StatusNotChecked {
			if checkStatus == 0 {
				checkStatus = cs
			}
			putStatus = ps
			break
		}
		if attempt < h.MaxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}

	if isFailing(checkStatus) || isFailing(putStatus) {
		failedAction := "CHECK"
		skipStatus := checkStatus
		if !isFailing(checkStatus) {
			failedAction = "PUT"
			skipStatus = putStatus
		}
		return h.skip(ctx, teamID, taskID, round, domain.ActionGet, skipStatus, fmt.Sprintf("Skipped: %s failed", failedAction))
	}

	flag, team, task, err := h.Store.LoadFlagWithTeamTask(ctx, flagID)
	if err != nil {
		verdict := domain.CheckerVerdict{Status: domain.StatusMumble, Action: domain.ActionGet, PublicMessage: "Flag not found"}
		if updErr := h.Store.UpdateGetResult(ctx, teamID, taskID, verdict); updErr != nil {
			slog.Error("worker: update get result (flag missing) failed", "error", updErr)
		}
		h.record(ctx, domain.ActionGet, teamID, taskID, round, verdict, "")
		return nil
	}

	started := time.Now()
	verdict, _ := h.Checkers.Run(ctx, domain.ActionGet, toCheckerTeam(team), toCheckerTask(task), &checker.FlagArgs{
		PrivateFlagData: flag.PrivateFlagData, Flag: flag.Flag, VulnNumber: flag.VulnNumber,
	})
	elapsed := time.Since(started)

	if err := h.Store.UpdateGetResult(ctx, teamID, taskID, verdict); err != nil {
		return h.fail(ctx, teamID, taskID, round, domain.ActionGet, err)
	}
	h.recordTimed(ctx, domain.ActionGet, teamID, taskID, round, verdict, "", elapsed)
	return nil
}

func isFailing(s domain.TaskStatus) bool {
	return s == domain.StatusCheckFailed || s == domain.StatusDown
}

func (h *Handlers) skip(ctx context.Context, teamID, taskID, round int, action domain.Action, statusCode domain.TaskStatus, message string) error {
	if err := h.Store.UpdateSkipped(ctx, teamID, taskID, action, statusCode, message); err != nil {
		return fmt.Errorf("worker: update skipped: %w", err)
	}
	h.record(ctx, action, teamID, taskID, round, domain.CheckerVerdict{Status: statusCode, Action: action, PublicMessage: message}, "")
	return nil
}

func (h *Handlers) fail(ctx context.Context, teamID, taskID, round int, action domain.Action, cause error) error {
	slog.Error("worker: action failed", "action", action, "team_id", teamID, "task_id", taskID, "error", cause)
	if err := h.Store.UpdateActionError(ctx, teamID, taskID, action, cause); err != nil {
		slog.Error("worker: update action error failed", "error", err)
	}
	h.record(ctx, action, teamID, taskID, round, domain.CheckerVerdict{
		Status: domain.StatusCheckFailed, Action: action, PublicMessage: fmt.Sprintf("%s action failed", action), PrivateMessage: cause.Error(),
	}, "")
	return cause
}

func (h *Handlers) record(ctx context.Context, action domain.Action, teamID, taskID, round int, verdict domain.CheckerVerdict, flag string) {
	h.recordTimed(ctx, action, teamID, taskID, round, verdict, flag, 0)
}

func (h *Handlers) recordTimed(ctx context.Context, action domain.Action, teamID, taskID, round int, verdict domain.CheckerVerdict, flag string, elapsed time.Duration) {
	if h.Metrics != nil {
		h.Metrics.RecordAction(action.String(), verdict.Status.String(), elapsed.Seconds())
	}

	if h.Coord == nil {
		return
	}
	err := h.Coord.RecordActionResult(ctx, coordinator.ActionResult{
		Action: action, TeamID: teamID, TaskID: taskID, Round: round,
		Status: verdict.Status.String(), StatusCode: int(verdict.Status),
		PublicMessage: verdict.PublicMessage, PrivateMessage: verdict.PrivateMessage,
		Timestamp: time.Now(), Flag: flag,
	})
	if err != nil {
		slog.Error("worker: record action result failed", "error", err)
	}
}

func randInt(maxInclusive int) (int, error) {
	if maxInclusive <= 0 {
		return 1, nil
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxInclusive)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()) + 1, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func randomFlag() (string, error) {
	suffix, err := randomHex(16)
	if err != nil {
		return "", err
	}
	return "FLAG" + suffix, nil
}
