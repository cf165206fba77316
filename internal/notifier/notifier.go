// Package notifier decouples scoring from live-event delivery: a stolen
// flag queues a notification instead of blocking the submission handler on
// whatever is slow downstream (websocket fan-out, durable event export).
package notifier

import (
	"context"
	"log/slog"
	"time"

	"github.com/adarena/backend/internal/events"
)

const queueCapacity = 1000

// Notification is one flag-theft event queued for broadcast.
type Notification struct {
	AttackerID   int       `json:"attacker_id"`
	AttackerName string    `json:"attacker_name"`
	VictimID     int       `json:"victim_id"`
	VictimName   string    `json:"victim_name"`
	TaskID       int       `json:"task_id"`
	TaskName     string    `json:"task_name"`
	Points       float64   `json:"points"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier buffers stolen-flag notifications on a bounded channel and
// drains them onto an event bus from a single background goroutine — a
// burst of simultaneous steals never blocks the scoring path, and a stuck
// subscriber never blocks new notifications either (the channel drops
// instead of growing unbounded).
type Notifier struct {
	bus   events.Emitter
	queue chan Notification
	done  chan struct{}
}

// New builds a Notifier publishing onto bus. Call Run to start draining.
func New(bus events.Emitter) *Notifier {
	return &Notifier{
		bus:   bus,
		queue: make(chan Notification, queueCapacity),
		done:  make(chan struct{}),
	}
}

// Notify enqueues a stolen-flag notification, rounding points to two
// decimals. Drops and logs a warning if the queue is full rather than
// blocking the caller.
func (n *Notifier) Notify(notif Notification) {
	notif.Points = roundTo2(notif.Points)
	if notif.Timestamp.IsZero() {
		notif.Timestamp = time.Now().UTC()
	}

	select {
	case n.queue <- notif:
		slog.Debug("notifier: queued notification", "attacker", notif.AttackerName, "victim", notif.VictimName, "points", notif.Points)
	default:
		slog.Warn("notifier: queue full, dropping notification", "attacker", notif.AttackerName, "victim", notif.VictimName)
	}
}

// Run drains the queue and broadcasts each notification until ctx is
// cancelled.
func (n *Notifier) Run(ctx context.Context) {
	slog.Info("notifier: started")
	defer close(n.done)

	for {
		select {
		case <-ctx.Done():
			slog.Info("notifier: stopped")
			return
		case notif := <-n.queue:
			n.broadcast(notif)
		}
	}
}

// Stop waits for Run to return after its context is cancelled.
func (n *Notifier) Stop() {
	<-n.done
}

func (n *Notifier) broadcast(notif Notification) {
	n.bus.Emit(events.TypeFlagStolen, "adarena/notifier", notif.TaskName, map[string]interface{}{
		"attacker_id":   notif.AttackerID,
		"attacker_name": notif.AttackerName,
		"victim_id":     notif.VictimID,
		"victim_name":   notif.VictimName,
		"task_id":       notif.TaskID,
		"task_name":     notif.TaskName,
		"points":        notif.Points,
		"timestamp":     notif.Timestamp,
	})
	slog.Debug("notifier: broadcast", "attacker", notif.AttackerName, "victim", notif.VictimName, "points", notif.Points)
}

func roundTo2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
