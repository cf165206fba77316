// Command worker drains CHECK/PUT/GET jobs from the queue cmd/ticker fills
// and runs them through a bounded checker subprocess pool, recording each
// result for the round monitor and reporting action throughput/latency to
// Prometheus.
package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/checker"
	"github.com/adarena/backend/internal/config"
	"github.com/adarena/backend/internal/coordinator"
	"github.com/adarena/backend/internal/monitoring"
	"github.com/adarena/backend/internal/queue"
	"github.com/adarena/backend/internal/store"
	"github.com/adarena/backend/internal/worker"
)

// metricsAddr is the worker's own scrape endpoint — a separate process
// from cmd/server, so its action-throughput collectors need their own
// listener rather than riding on the API's /metrics.
func metricsAddr() string {
	if addr := os.Getenv("WORKER_METRICS_ADDR"); addr != "" {
		return addr
	}
	return ":9091"
}

func main() {
	cfg := config.Get()

	db, err := store.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
	if err != nil {
		log.Fatalf("worker: open database: %v", err)
	}

	c, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("worker: connect redis: %v", err)
	}
	defer c.Close()

	st := store.New(db, c)
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("worker: ensure schema: %v", err)
	}
	coord := coordinator.New(c, cache.NewStream(c), st)
	q := queue.New(c.Raw(), cache.Keys.JobQueue())
	pool := checker.NewPool(cfg.Worker.Checkers)
	metrics := monitoring.NewMetrics()

	gameCfg, err := st.CurrentGameConfig(context.Background())
	if err != nil {
		log.Fatalf("worker: load game config: %v", err)
	}
	roundTime := gameCfg.RoundInterval()

	checkWait := time.Duration(cfg.Worker.CheckWaitSec * float64(time.Second))
	if checkWait <= 0 {
		checkWait = coordinator.DefaultCheckWaitTimeout(roundTime)
	}
	maxRetries := cfg.Worker.MaxRetries
	initBackoff := time.Duration(cfg.Worker.InitialBackoffMs) * time.Millisecond
	if maxRetries <= 0 || initBackoff <= 0 {
		defaultRetries, defaultBackoff := coordinator.DefaultRetrySchedule(roundTime)
		if maxRetries <= 0 {
			maxRetries = defaultRetries
		}
		if initBackoff <= 0 {
			initBackoff = defaultBackoff
		}
	}

	handlers := &worker.Handlers{
		Store:       st,
		Cache:       c,
		Coord:       coord,
		Checkers:    pool,
		CheckWait:   checkWait,
		MaxRetries:  maxRetries,
		InitBackoff: initBackoff,
		Metrics:     metrics,
	}
	dispatcher := &worker.Dispatcher{Queue: q, Handlers: handlers}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metricsServer := &http.Server{Addr: metricsAddr(), Handler: metrics.Handler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker: metrics server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("worker: shutdown signal received")
		cancel()
	}()

	slog.Info("worker: starting", "checkers", cfg.Worker.Checkers)
	dispatcher.Run(ctx)
	slog.Info("worker: stopped")
}
