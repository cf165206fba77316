// Command server is the ADArena API process: it serves the team flag
// submission endpoint, the admin CRUD/monitor surface, the public
// spectator reads, and the game/live WebSocket feeds over a single HTTP
// listener. Round advancement and checker dispatch run in cmd/ticker and
// cmd/worker — this process only answers requests.
package main

import (
	"context"
	"encoding/json"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adarena/backend/internal/api"
	"github.com/adarena/backend/internal/auth"
	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/config"
	"github.com/adarena/backend/internal/coordinator"
	"github.com/adarena/backend/internal/events"
	"github.com/adarena/backend/internal/middleware"
	"github.com/adarena/backend/internal/monitor"
	"github.com/adarena/backend/internal/monitoring"
	"github.com/adarena/backend/internal/notifier"
	"github.com/adarena/backend/internal/store"
	"github.com/adarena/backend/internal/submission"
	"github.com/adarena/backend/internal/wshub"
)

func main() {
	cfg := config.Get()
	port := cfg.GetPort()

	db, err := store.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
	if err != nil {
		log.Fatalf("server: open database: %v", err)
	}

	c, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("server: connect redis: %v", err)
	}
	defer c.Close()

	st := store.New(db, c)
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("server: ensure schema: %v", err)
	}
	coord := coordinator.New(c, cache.NewStream(c), st)
	metrics := monitoring.NewMetrics()
	mon := monitor.New(st, coord, metrics)

	bus := events.NewBus()
	notif := notifier.New(bus)
	gameHub := wshub.New("game")
	liveHub := wshub.New("live")

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()
	go gameHub.Run(shutdownCtx.Done())
	go liveHub.Run(shutdownCtx.Done())
	gameHub.Pump(bus, shutdownCtx.Done(), events.TypeScoreboardUpdate, events.TypeRoundAdvanced)
	liveHub.Pump(bus, shutdownCtx.Done(), events.TypeFlagStolen)
	go mon.Run(shutdownCtx)
	go notif.Run(shutdownCtx)
	go bridgeScoreboardEvents(shutdownCtx, c, bus)

	authSvc := auth.New(c, auth.Credentials{Username: cfg.Admin.Username, PasswordHash: cfg.Admin.PasswordHash})
	rateLimit := middleware.NewRateLimiter(middleware.RateLimitConfig{})
	sub := &submission.Handler{Store: st, Cache: c}

	corsOrigin := "*"
	if len(cfg.Server.CORSAllowOrigins) > 0 {
		corsOrigin = strings.Join(cfg.Server.CORSAllowOrigins, ",")
	}

	srv := api.New(st, c, sub, mon, authSvc, bus, notif, gameHub, liveHub, rateLimit, corsOrigin, metrics)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("server: shutdown signal received")
		shutdownCancel()
	}()

	slog.Info("server: starting", "port", port, "env", cfg.Server.Env)
	if err := srv.Start(shutdownCtx, cfg.Server.Interface+":"+port); err != nil {
		log.Fatalf("server: listen failed: %v", err)
	}
	notif.Stop()
	slog.Info("server: stopped")
}

// bridgeScoreboardEvents relays cmd/ticker's Redis-published scoreboard
// updates (cmd/server and cmd/ticker are separate processes, so they don't
// share an in-process events.Bus) onto the local bus that feeds gameHub.
func bridgeScoreboardEvents(ctx context.Context, c *cache.Client, bus *events.Bus) {
	unsubscribe, err := c.Subscribe(ctx, cache.EventsChannel, func(payload []byte) {
		var msg struct {
			EventType string          `json:"event_type"`
			Data      json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(payload, &msg); err != nil {
			slog.Error("server: decode scoreboard event failed", "error", err)
			return
		}
		var state interface{}
		if err := json.Unmarshal(msg.Data, &state); err != nil {
			slog.Error("server: decode scoreboard event data failed", "error", err)
			return
		}
		bus.Emit(events.TypeScoreboardUpdate, "ticker", "scoreboard", map[string]interface{}{"state": state})
	})
	if err != nil {
		slog.Error("server: subscribe to scoreboard events failed", "error", err)
		return
	}
	<-ctx.Done()
	unsubscribe()
}
