// Command ticker is the tournament's crash-safe game clock: it starts the
// game at the configured start time and advances rounds at round_time
// intervals, enqueueing CHECK/PUT/GET jobs for cmd/worker to consume.
// Exactly one instance should run per deployment — there is no leader
// election, matching the original's single-process ticker.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/config"
	"github.com/adarena/backend/internal/queue"
	"github.com/adarena/backend/internal/store"
	"github.com/adarena/backend/internal/ticker"
)

func main() {
	cfg := config.Get()

	db, err := store.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
	if err != nil {
		log.Fatalf("ticker: open database: %v", err)
	}

	c, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("ticker: connect redis: %v", err)
	}
	defer c.Close()

	st := store.New(db, c)
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("ticker: ensure schema: %v", err)
	}
	q := queue.New(c.Raw(), cache.Keys.JobQueue())
	svc := ticker.New(st, c, q, st)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := svc.Initialize(ctx); err != nil {
		log.Fatalf("ticker: initialize: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("ticker: shutdown signal received")
		cancel()
	}()

	svc.Run(ctx)
	slog.Info("ticker: stopped")
}
