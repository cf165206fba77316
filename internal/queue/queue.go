// Package queue is the Redis-list-backed job queue that stands in for the
// checker dispatch queue: CHECK/PUT/GET jobs pushed by the round ticker
// and consumed by the worker pool. Dequeue removes a job from the list
// before it runs, so a job whose worker crashes mid-run is not redelivered.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/adarena/backend/internal/domain"
)

// Job is one unit of checker work. FlagID is only set for GET jobs.
type Job struct {
	ID         string        `json:"id"`
	Action     domain.Action `json:"action"`
	TeamID     int           `json:"team_id"`
	TaskID     int           `json:"task_id"`
	Round      int           `json:"round"`
	FlagID     int           `json:"flag_id,omitempty"`
	EnqueuedAt time.Time     `json:"enqueued_at"`
}

// Queue pushes and pops Job records on a single Redis list, giving FIFO
// ordering. Delivery is at most once: BLPOP removes the job, and nothing
// puts it back if its worker crashes. internal/worker's handlers are
// idempotent, so a job that is enqueued twice is safe to run twice.
type Queue struct {
	rdb *redis.Client
	key string
}

// New wraps a redis client around the named list.
func New(rdb *redis.Client, key string) *Queue {
	return &Queue{rdb: rdb, key: key}
}

// Enqueue pushes a job onto the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}
	buf, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	return q.rdb.RPush(ctx, q.key, buf).Err()
}

// Dequeue blocks up to timeout waiting for the next job. Returns
// (nil, nil) on timeout with no job available.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	res, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	// BLPOP returns [key, value]
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected BLPOP reply: %v", res)
	}
	var job Job
	if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &job, nil
}

// Len reports the current queue depth.
func (q *Queue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// FlagLookup resolves a flag a team can be probed against with a GET,
// matching the original's "random flag planted within flag_lifetime
// rounds" rule. Implemented by internal/store.
type FlagLookup interface {
	RandomRoundFlag(ctx context.Context, teamID, taskID, fromRound, currentRound int) (*domain.Flag, error)
}

// RoundStats tallies what SubmitRoundJobs enqueued, mirroring the
// original's per-round submission log line.
type RoundStats struct {
	Round       int `json:"round"`
	TeamsCount  int `json:"teams_count"`
	TasksCount  int `json:"tasks_count"`
	CheckJobs   int `json:"check_jobs"`
	PutJobs     int `json:"put_jobs"`
	GetJobs     int `json:"get_jobs"`
	Errors      int `json:"errors"`
}

// SubmitRoundJobs enqueues one CHECK job plus task.Puts PUT jobs plus (when
// a plantable flag exists) task.Gets GET jobs, for every active team/task
// pair. GET jobs silently skip a (team, task) pair with no flag planted in
// the flag_lifetime window — there is nothing yet to attack.
func SubmitRoundJobs(ctx context.Context, q *Queue, flags FlagLookup, teams []domain.Team, tasks []domain.Task, round, flagLifetime int) RoundStats {
	stats := RoundStats{Round: round, TeamsCount: len(teams), TasksCount: len(tasks)}

	fromRound := round - flagLifetime
	if fromRound < 1 {
		fromRound = 1
	}

	for _, team := range teams {
		for _, task := range tasks {
			if err := q.Enqueue(ctx, Job{Action: domain.ActionCheck, TeamID: team.ID, TaskID: task.ID, Round: round}); err != nil {
				slog.Error("queue: enqueue CHECK failed", "team_id", team.ID, "task_id", task.ID, "error", err)
				stats.Errors++
				continue
			}
			stats.CheckJobs++

			for i := 0; i < task.Puts; i++ {
				if err := q.Enqueue(ctx, Job{Action: domain.ActionPut, TeamID: team.ID, TaskID: task.ID, Round: round}); err != nil {
					slog.Error("queue: enqueue PUT failed", "team_id", team.ID, "task_id", task.ID, "error", err)
					stats.Errors++
					continue
				}
				stats.PutJobs++
			}

			for i := 0; i < task.Gets; i++ {
				flag, err := flags.RandomRoundFlag(ctx, team.ID, task.ID, fromRound, round)
				if err != nil {
					slog.Error("queue: flag lookup failed", "team_id", team.ID, "task_id", task.ID, "error", err)
					stats.Errors++
					continue
				}
				if flag == nil {
					slog.Debug("queue: no flag to GET yet", "team_id", team.ID, "task_id", task.ID)
					continue
				}
				if err := q.Enqueue(ctx, Job{Action: domain.ActionGet, TeamID: team.ID, TaskID: task.ID, Round: round, FlagID: flag.ID}); err != nil {
					slog.Error("queue: enqueue GET failed", "team_id", team.ID, "task_id", task.ID, "error", err)
					stats.Errors++
					continue
				}
				stats.GetJobs++
			}
		}
	}

	slog.Info("queue: round jobs submitted", "round", round, "check", stats.CheckJobs, "put", stats.PutJobs, "get", stats.GetJobs, "errors", stats.Errors)
	return stats
}

// SubmitInitialChecks enqueues a single CHECK job (round 0) per active
// team/task pair, run once at game start before the first scored round.
func SubmitInitialChecks(ctx context.Context, q *Queue, teams []domain.Team, tasks []domain.Task) RoundStats {
	stats := RoundStats{Round: 0, TeamsCount: len(teams), TasksCount: len(tasks)}
	for _, team := range teams {
		for _, task := range tasks {
			if err := q.Enqueue(ctx, Job{Action: domain.ActionCheck, TeamID: team.ID, TaskID: task.ID, Round: 0}); err != nil {
				slog.Error("queue: enqueue initial CHECK failed", "team_id", team.ID, "task_id", task.ID, "error", err)
				stats.Errors++
				continue
			}
			stats.CheckJobs++
		}
	}
	slog.Info("queue: initial checks submitted", "check", stats.CheckJobs, "errors", stats.Errors)
	return stats
}
