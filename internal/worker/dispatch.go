package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/adarena/backend/internal/domain"
	"github.com/adarena/backend/internal/queue"
)

// Dispatcher pulls jobs off the queue and routes them to the matching
// handler. Each job runs in its own goroutine so a slow checker on one
// (team, task) pair never blocks the rest of the pool — concurrency is
// bounded instead by Handlers.Checkers' own worker pool.
type Dispatcher struct {
	Queue    *queue.Queue
	Handlers *Handlers
	PollWait time.Duration
}

// Run consumes jobs until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	pollWait := d.PollWait
	if pollWait == 0 {
		pollWait = 5 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := d.Queue.Dequeue(ctx, pollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("worker: dequeue failed", "error", err)
			continue
		}
		if job == nil {
			continue
		}

		go d.dispatch(ctx, *job)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, job queue.Job) {
	var err error
	switch job.Action {
	case domain.ActionCheck:
		err = d.Handlers.HandleCheck(ctx, job.TeamID, job.TaskID, job.Round)
	case domain.ActionPut:
		err = d.Handlers.HandlePut(ctx, job.TeamID, job.TaskID, job.Round)
	case domain.ActionGet:
		err = d.Handlers.HandleGet(ctx, job.TeamID, job.TaskID, job.Round, job.FlagID)
	default:
		slog.Error("worker: unknown job action", "action", job.Action, "job_id", job.ID)
		return
	}
	if err != nil {
		slog.Error("worker: job failed", "job_id", job.ID, "action", job.Action, "error", err)
	}
}
