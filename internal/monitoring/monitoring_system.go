// Package monitoring exposes the tournament's Prometheus metrics: action
// throughput and latency, submission outcomes, and round/game gauges,
// scraped from /metrics by an operator's Prometheus instance.
package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every Prometheus collector the backend exposes, registered
// against its own registry rather than the global default — each Metrics
// instance (one per process, many per test binary) stays independent.
type Metrics struct {
	registry *prometheus.Registry

	ActionTotal    *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec

	SubmissionTotal *prometheus.CounterVec

	FlagStolenTotal prometheus.Counter

	RoundProgress prometheus.Gauge
	CurrentRound  prometheus.Gauge
	ActiveTeams   prometheus.Gauge
	ActiveTasks   prometheus.Gauge
	GameRunning   prometheus.Gauge
}

// NewMetrics builds and registers the collectors against a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ActionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adarena_action_total",
				Help: "Total checker actions processed, by action and result status",
			},
			[]string{"action", "status"}, // action: check/put/get, status: up/corrupt/mumble/down/check_failed
		),
		ActionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adarena_action_duration_seconds",
				Help:    "Checker subprocess wall-clock duration",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		SubmissionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adarena_submission_total",
				Help: "Total flag submissions, by outcome",
			},
			[]string{"outcome"}, // outcome: accepted, or the rejection Reason
		),
		FlagStolenTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adarena_flag_stolen_total",
				Help: "Total successfully stolen flags across the tournament",
			},
		),
		RoundProgress: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adarena_round_progress",
				Help: "Fraction of the current round's expected actions completed",
			},
		),
		CurrentRound: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adarena_current_round",
				Help: "Current real_round number",
			},
		),
		ActiveTeams: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adarena_active_teams",
				Help: "Number of active teams",
			},
		),
		ActiveTasks: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adarena_active_tasks",
				Help: "Number of active tasks",
			},
		),
		GameRunning: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adarena_game_running",
				Help: "1 if the game is running, 0 if paused",
			},
		),
	}
}

// RecordAction records one completed checker action.
func (m *Metrics) RecordAction(action, status string, durationSeconds float64) {
	m.ActionTotal.WithLabelValues(action, status).Inc()
	m.ActionDuration.WithLabelValues(action).Observe(durationSeconds)
}

// RecordSubmission records one flag submission outcome.
func (m *Metrics) RecordSubmission(outcome string) {
	m.SubmissionTotal.WithLabelValues(outcome).Inc()
	if outcome == "accepted" {
		m.FlagStolenTotal.Inc()
	}
}

// SetRoundState updates the round/game gauges, called once per monitor tick.
func (m *Metrics) SetRoundState(round int, progress float64, activeTeams, activeTasks int, running bool) {
	m.CurrentRound.Set(float64(round))
	m.RoundProgress.Set(progress)
	m.ActiveTeams.Set(float64(activeTeams))
	m.ActiveTasks.Set(float64(activeTasks))
	if running {
		m.GameRunning.Set(1)
	} else {
		m.GameRunning.Set(0)
	}
}

// Handler returns the /metrics HTTP handler for this Metrics instance's
// registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
