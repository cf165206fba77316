// Package submission implements the flag-validation pipeline: the ordered,
// short-circuiting set of checks a submitted flag string must pass before
// the scoring procedure runs, per spec §4.4.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/domain"
)

// Reason is the exact, stable message surfaced to the submitting team —
// mirrors FlagExceptionEnum so the wire contract with existing clients
// doesn't drift.
type Reason string

const (
	ReasonGameNotAvailable Reason = "Game is not available."
	ReasonGameFinished     Reason = "Game has finished. No more flags accepted."
	ReasonFlagInvalid      Reason = "Flag is invalid or too old."
	ReasonFlagTooOld       Reason = "Flag is too old"
	ReasonFlagYourOwn      Reason = "Flag is your own"
	ReasonAlreadyStolen    Reason = "Flag already stolen"
	ReasonServiceDown      Reason = "Cannot submit flags while service is down"
)

// RejectError is a validation failure carrying the exact client-facing Reason.
type RejectError struct {
	Reason Reason
}

func (e *RejectError) Error() string { return string(e.Reason) }

func reject(r Reason) error { return &RejectError{Reason: r} }

// Store is the subset of internal/store the submission handler needs.
type Store interface {
	CurrentGameConfig(ctx context.Context) (domain.GameConfig, error)
	TeamTaskStatus(ctx context.Context, teamID, taskID int) (domain.TaskStatus, error)
	CountStolen(ctx context.Context, flagID, attackerID int) (int, error)
	RecalculateRating(ctx context.Context, attackerID, victimID, taskID, flagID int) (attackerDelta, victimDelta float64, err error)
}

// Result is the outcome returned to the submitting team's HTTP client.
type Result struct {
	SubmitOK      bool    `json:"submit_ok"`
	Message       string  `json:"message"`
	AttackerID    int     `json:"attacker_id"`
	VictimID      int     `json:"victim_id,omitempty"`
	TaskID        int     `json:"task_id,omitempty"`
	AttackerDelta float64 `json:"attacker_delta"`
	VictimDelta   float64 `json:"victim_delta"`
}

// Handler runs the flag-validation pipeline and invokes the scoring
// procedure on success.
type Handler struct {
	Store Store
	Cache *cache.Client
}

// Submit validates flagStr from attackerID at currentRound and, if every
// check passes, calls the scoring procedure. Each failure short-circuits
// with the exact original message text.
func (h *Handler) Submit(ctx context.Context, attackerID int, flagStr string, currentRound int) Result {
	result := Result{AttackerID: attackerID}

	victimID, taskID, attackerDelta, victimDelta, err := h.validate(ctx, attackerID, flagStr, currentRound)
	if err != nil {
		var rej *RejectError
		if errors.As(err, &rej) {
			result.Message = string(rej.Reason)
		} else {
			slog.Error("submission: internal error", "attacker_id", attackerID, "error", err)
			result.Message = fmt.Sprintf("Internal error: %s", err.Error())
		}
		return result
	}

	result.SubmitOK = true
	result.VictimID = victimID
	result.TaskID = taskID
	result.AttackerDelta = attackerDelta
	result.VictimDelta = victimDelta
	result.Message = fmt.Sprintf("Flag accepted! Earned %.2f flag points!", attackerDelta)
	return result
}

func (h *Handler) validate(ctx context.Context, attackerID int, flagStr string, currentRound int) (victimID, taskID int, attackerDelta, victimDelta float64, err error) {
	if currentRound == -1 {
		return 0, 0, 0, 0, reject(ReasonGameNotAvailable)
	}

	cfg, err := h.Store.CurrentGameConfig(ctx)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("game config: %w", err)
	}

	if cfg.MaxRound > 0 && currentRound > cfg.MaxRound {
		return 0, 0, 0, 0, reject(ReasonGameFinished)
	}

	flag, err := h.Cache.GetFlagByStr(ctx, flagStr)
	if err != nil {
		if errors.Is(err, cache.ErrKeyNotFound) {
			return 0, 0, 0, 0, reject(ReasonFlagInvalid)
		}
		return 0, 0, 0, 0, fmt.Errorf("flag lookup: %w", err)
	}

	if flag.TeamID == attackerID {
		return 0, 0, 0, 0, reject(ReasonFlagYourOwn)
	}

	if currentRound-flag.Round > cfg.FlagLifetime {
		return 0, 0, 0, 0, reject(ReasonFlagTooOld)
	}

	if cfg.VolgaAttacksMode {
		status, err := h.Store.TeamTaskStatus(ctx, attackerID, flag.TaskID)
		if err != nil || status != domain.StatusUp {
			return 0, 0, 0, 0, reject(ReasonServiceDown)
		}
	}

	stolenCount, err := h.Store.CountStolen(ctx, flag.ID, attackerID)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("count stolen: %w", err)
	}
	if stolenCount > 0 {
		return 0, 0, 0, 0, reject(ReasonAlreadyStolen)
	}

	attackerDelta, victimDelta, err = h.Store.RecalculateRating(ctx, attackerID, flag.TeamID, flag.TaskID, flag.ID)
	if err != nil {
		return 0, 0, 0, 0, fmt.Errorf("recalculate rating: %w", err)
	}

	return flag.TeamID, flag.TaskID, attackerDelta, victimDelta, nil
}
