// Package coordinator implements the CHECK→PUT/GET barrier: PUT and GET
// jobs for a (team, task, round) must not run until CHECK has completed,
// because the aggregate status (internal/domain.AggregateStatus) treats a
// CHECK failure as an outright service failure regardless of PUT/GET.
//
// Two-tier strategy, which the worker's PUT/GET handlers depend on:
//  1. Redis Pub/Sub for real-time notification (fast path).
//  2. Database polling with exponential backoff if Pub/Sub never fires —
//     covers the case where the CHECK worker crashed after writing the
//     DB row but before publishing, or the subscribe raced the publish.
package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/adarena/backend/internal/domain"
)

// RedisClient is the subset of internal/cache.Client the coordinator needs.
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Publish(ctx context.Context, channel string, message []byte) error
	Subscribe(ctx context.Context, channel string, handler func([]byte)) (func(), error)
}

// StatusPoller is the DB-fallback lookup, implemented by internal/store.
type StatusPoller interface {
	CheckStatus(ctx context.Context, teamID, taskID int) (domain.TaskStatus, error)
}

const (
	checkResultTTL  = 300 * time.Second
	actionResultTTL = 600 * time.Second
	roundHashTTL    = 600 * time.Second
	streamMaxLen    = 10000
)

// ActionResult is one CHECK/PUT/GET outcome, recorded for round monitoring.
type ActionResult struct {
	Action         domain.Action `json:"action"`
	TeamID         int           `json:"team_id"`
	TaskID         int           `json:"task_id"`
	Round          int           `json:"round"`
	Status         string        `json:"status"`
	StatusCode     int           `json:"status_code"`
	PublicMessage  string        `json:"public_message"`
	PrivateMessage string        `json:"private_message"`
	Timestamp      time.Time     `json:"timestamp"`
	Flag           string        `json:"flag,omitempty"`
}

// Coordinator wraps the Redis primitives the barrier and the round
// monitor both need.
type Coordinator struct {
	redis  RedisClient
	db     StatusPoller
	keys   keyBuilder
	stream streamClient
}

// streamClient is the subset of go-redis's stream API the coordinator uses
// directly (go-redis v9 has no generic hash/stream wrapper in internal/cache).
type streamClient interface {
	HSet(ctx context.Context, key string, values map[string]string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	XAdd(ctx context.Context, stream string, maxLen int64, values map[string]string) error
	XRange(ctx context.Context, stream string) ([]map[string]string, error)
}

type keyBuilder struct{}

func (keyBuilder) checkKey(round, teamID, taskID int) string {
	return fmt.Sprintf("check_complete:%d:%d:%d", round, teamID, taskID)
}
func (keyBuilder) checkChannel(round, teamID, taskID int) string {
	return fmt.Sprintf("check_done:%d:%d:%d", round, teamID, taskID)
}
func (keyBuilder) resultKey(round, teamID, taskID int, action domain.Action) string {
	return fmt.Sprintf("action_result:%d:%d:%d:%s", round, teamID, taskID, action)
}
func (keyBuilder) roundKey(round, teamID, taskID int) string {
	return fmt.Sprintf("round_tracking:%d:%d:%d", round, teamID, taskID)
}
func (keyBuilder) streamKey(round int) string {
	return fmt.Sprintf("action_stream:%d", round)
}

// New builds a Coordinator. streamClient is satisfied by an adapter over
// the raw go-redis client (internal/cache.Client.Raw()).
func New(redis RedisClient, stream streamClient, db StatusPoller) *Coordinator {
	return &Coordinator{redis: redis, db: db, stream: stream}
}

// SignalCheckComplete stores the CHECK result with a 5-minute TTL and
// publishes it to the round's Pub/Sub channel, called right after the
// CHECK worker commits its DB update.
func (c *Coordinator) SignalCheckComplete(ctx context.Context, teamID, taskID, round int, status domain.TaskStatus) error {
	key := c.keys.checkKey(round, teamID, taskID)
	payload := fmt.Sprintf("%d", int(status))

	if err := c.redis.Set(ctx, key, []byte(payload), checkResultTTL); err != nil {
		return fmt.Errorf("signal check complete: set: %w", err)
	}
	if err := c.redis.Publish(ctx, c.keys.checkChannel(round, teamID, taskID), []byte(payload)); err != nil {
		return fmt.Errorf("signal check complete: publish: %w", err)
	}
	slog.Debug("coordinator: signaled check complete", "team_id", teamID, "task_id", taskID, "round", round, "status", status)
	return nil
}

// WaitForCheck blocks until CHECK completes for (team, task, round), or
// timeout elapses. Checks the fast-path key first, then subscribes.
// Returns (status, true) on success, (0, false) on timeout.
func (c *Coordinator) WaitForCheck(ctx context.Context, teamID, taskID, round int, timeout time.Duration) (domain.TaskStatus, bool) {
	key := c.keys.checkKey(round, teamID, taskID)

	if buf, err := c.redis.Get(ctx, key); err == nil {
		var code int
		if _, scanErr := fmt.Sscanf(string(buf), "%d", &code); scanErr == nil {
			return domain.TaskStatus(code), true
		}
	}

	resultCh := make(chan domain.TaskStatus, 1)
	unsub, err := c.redis.Subscribe(ctx, c.keys.checkChannel(round, teamID, taskID), func(payload []byte) {
		var code int
		if _, err := fmt.Sscanf(string(payload), "%d", &code); err == nil {
			select {
			case resultCh <- domain.TaskStatus(code):
			default:
			}
		}
	})
	if err != nil {
		slog.Error("coordinator: subscribe failed", "error", err)
		return 0, false
	}
	defer unsub()

	select {
	case status := <-resultCh:
		return status, true
	case <-time.After(timeout):
		slog.Warn("coordinator: check wait timeout", "team_id", teamID, "task_id", taskID, "round", round, "timeout", timeout)
		return 0, false
	case <-ctx.Done():
		return 0, false
	}
}

// DefaultCheckWaitTimeout is the Pub/Sub wait before falling back to DB
// polling: 60% of round_time, per spec §4.3.
func DefaultCheckWaitTimeout(roundTime time.Duration) time.Duration {
	return time.Duration(float64(roundTime) * 0.6)
}

// DefaultRetrySchedule derives the DB-polling fallback's attempt count and
// initial backoff from round_time, per spec §4.3: N in {2,3,5,7} for
// round_time <= 60/120/300/>300 seconds, d0 = clamp(0.015*round_time,
// 0.5s, 5.0s), doubling on each subsequent attempt.
func DefaultRetrySchedule(roundTime time.Duration) (maxRetries int, initialBackoff time.Duration) {
	sec := roundTime.Seconds()
	switch {
	case sec <= 60:
		maxRetries = 2
	case sec <= 120:
		maxRetries = 3
	case sec <= 300:
		maxRetries = 5
	default:
		maxRetries = 7
	}

	d0 := sec * 0.015
	if d0 < 0.5 {
		d0 = 0.5
	}
	if d0 > 5.0 {
		d0 = 5.0
	}
	return maxRetries, time.Duration(math.Round(d0 * float64(time.Second)))
}

// WaitForCheckWithFallback runs the Pub/Sub wait and, on timeout, falls
// back to DB polling with exponential backoff — the retry schedule
// DefaultRetrySchedule scales by round_time (spec §4.3): N attempts, initial delay
// d0, each subsequent delay doubling.
func (c *Coordinator) WaitForCheckWithFallback(ctx context.Context, teamID, taskID, round int, timeout time.Duration, maxRetries int, initialBackoff time.Duration) (domain.TaskStatus, bool) {
	if status, ok := c.WaitForCheck(ctx, teamID, taskID, round, timeout); ok {
		return status, true
	}

	slog.Warn("coordinator: check pub/sub timeout, falling back to db polling", "team_id", teamID, "task_id", taskID, "round", round)

	backoff := initialBackoff
	for attempt := 1; attempt <= maxRetries; attempt++ {
		status, err := c.db.CheckStatus(ctx, teamID, taskID)
		if err == nil && status != domain.StatusNotChecked {
			return status, true
		}
		if attempt < maxRetries {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return 0, false
			}
			backoff *= 2
		}
	}
	return 0, false
}

// RecordActionResult stores a completed action in three places: the
// direct lookup key, the per-round-task hash, and the round's event
// stream (capped at 10000 entries) for the monitor's aggregate queries.
func (c *Coordinator) RecordActionResult(ctx context.Context, result ActionResult) error {
	if len(result.PublicMessage) > 500 {
		result.PublicMessage = result.PublicMessage[:500]
	}
	if len(result.PrivateMessage) > 2000 {
		result.PrivateMessage = result.PrivateMessage[:2000]
	}

	buf, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("record action result: marshal: %w", err)
	}

	resultKey := c.keys.resultKey(result.Round, result.TeamID, result.TaskID, result.Action)
	if err := c.redis.Set(ctx, resultKey, buf, actionResultTTL); err != nil {
		return fmt.Errorf("record action result: set: %w", err)
	}

	roundKey := c.keys.roundKey(result.Round, result.TeamID, result.TaskID)
	if err := c.stream.HSet(ctx, roundKey, map[string]string{result.Action.String(): string(buf)}); err != nil {
		return fmt.Errorf("record action result: hset: %w", err)
	}
	if err := c.stream.Expire(ctx, roundKey, roundHashTTL); err != nil {
		return fmt.Errorf("record action result: expire: %w", err)
	}

	fields := map[string]string{
		"action":          result.Action.String(),
		"team_id":         fmt.Sprintf("%d", result.TeamID),
		"task_id":         fmt.Sprintf("%d", result.TaskID),
		"round":           fmt.Sprintf("%d", result.Round),
		"status":          result.Status,
		"status_code":     fmt.Sprintf("%d", result.StatusCode),
		"public_message":  result.PublicMessage,
	}
	if err := c.stream.XAdd(ctx, c.keys.streamKey(result.Round), streamMaxLen, fields); err != nil {
		return fmt.Errorf("record action result: xadd: %w", err)
	}

	slog.Info("coordinator: recorded action result", "action", result.Action, "team_id", result.TeamID, "task_id", result.TaskID, "round", result.Round, "status", result.Status)
	return nil
}

// GetRoundResults returns every recorded action for a (team, task, round).
func (c *Coordinator) GetRoundResults(ctx context.Context, teamID, taskID, round int) (map[string]ActionResult, error) {
	raw, err := c.stream.HGetAll(ctx, c.keys.roundKey(round, teamID, taskID))
	if err != nil {
		return nil, err
	}
	out := make(map[string]ActionResult, len(raw))
	for action, data := range raw {
		var result ActionResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			continue
		}
		out[action] = result
	}
	return out, nil
}

// RoundSummary aggregates a round's event stream for the monitor.
type RoundSummary struct {
	Round        int            `json:"round"`
	TotalActions int            `json:"total_actions"`
	ByStatus     map[string]int `json:"by_status"`
	ByAction     map[string]int `json:"by_action"`
	Errors       []RoundError   `json:"errors"`
}

// RoundError is one failing action surfaced in a round summary.
type RoundError struct {
	TeamID  int    `json:"team_id"`
	TaskID  int    `json:"task_id"`
	Action  string `json:"action"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

var failingStatuses = map[string]bool{
	"DOWN": true, "CHECK_FAILED": true, "MUMBLE": true, "CORRUPT": true,
}

// GetRoundSummary scans the round's action stream and tallies results by
// action type and status, surfacing every failing event.
func (c *Coordinator) GetRoundSummary(ctx context.Context, round int) (RoundSummary, error) {
	events, err := c.stream.XRange(ctx, c.keys.streamKey(round))
	if err != nil {
		return RoundSummary{}, err
	}

	summary := RoundSummary{
		Round:        round,
		TotalActions: len(events),
		ByStatus:     map[string]int{},
		ByAction:     map[string]int{"CHECK": 0, "PUT": 0, "GET": 0},
		Errors:       []RoundError{},
	}

	for _, ev := range events {
		action := ev["action"]
		status := ev["status"]
		if status == "" {
			status = "UNKNOWN"
		}

		if _, ok := summary.ByAction[action]; ok {
			summary.ByAction[action]++
		}
		summary.ByStatus[status]++

		if failingStatuses[status] {
			var teamID, taskID int
			fmt.Sscanf(ev["team_id"], "%d", &teamID)
			fmt.Sscanf(ev["task_id"], "%d", &taskID)
			summary.Errors = append(summary.Errors, RoundError{
				TeamID: teamID, TaskID: taskID, Action: action, Status: status, Message: ev["public_message"],
			})
		}
	}

	return summary, nil
}

// IsRoundComplete reports whether CHECK has at least recorded a result for
// this (team, task, round) — the simplified rule kept verbatim per
// SPEC_FULL.md's Open Question decision; internal/monitor implements the
// fuller expected-vs-actual count comparison across the whole round.
func (c *Coordinator) IsRoundComplete(ctx context.Context, teamID, taskID, round int) (bool, error) {
	results, err := c.GetRoundResults(ctx, teamID, taskID, round)
	if err != nil {
		return false, err
	}
	_, ok := results["CHECK"]
	return ok, nil
}
