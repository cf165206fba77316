package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/adarena/backend/internal/domain"
)

const gameConfigID = 1

// GameRunning reports whether the tournament has started.
func (s *Store) GameRunning(ctx context.Context) (bool, error) {
	var running bool
	err := s.db.QueryRowContext(ctx, `SELECT game_running FROM gameconfig WHERE id = $1`, gameConfigID).Scan(&running)
	if err != nil {
		return false, fmt.Errorf("get game running: %w", err)
	}
	return running, nil
}

// SetGameRunning flips the game_running flag.
func (s *Store) SetGameRunning(ctx context.Context, running bool) error {
	_, err := s.db.ExecContext(ctx, `UPDATE gameconfig SET game_running = $1 WHERE id = $2`, running, gameConfigID)
	if err != nil {
		return fmt.Errorf("set game running: %w", err)
	}
	return nil
}

func (s *Store) dbGameConfig(ctx context.Context) (domain.GameConfig, error) {
	var c domain.GameConfig
	err := s.db.QueryRowContext(ctx, `
		SELECT id, game_running, game_hardness, max_round, round_time, real_round,
		       flag_prefix, flag_lifetime, inflation, volga_attacks_mode, timezone, start_time
		FROM gameconfig WHERE id = $1`, gameConfigID,
	).Scan(&c.ID, &c.GameRunning, &c.GameHardness, &c.MaxRound, &c.RoundTime, &c.RealRound,
		&c.FlagPrefix, &c.FlagLifetime, &c.Inflation, &c.VolgaAttacksMode, &c.Timezone, &c.StartTime)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameConfig{}, ErrNotFound
	}
	if err != nil {
		return domain.GameConfig{}, fmt.Errorf("get db game config: %w", err)
	}
	return c, nil
}

// CurrentGameConfig returns the cached config when present (60s TTL,
// matching the original), falling back to the database and repopulating
// the cache on a miss.
func (s *Store) CurrentGameConfig(ctx context.Context) (domain.GameConfig, error) {
	if s.cache != nil {
		if cfg, err := s.cache.GetGameConfig(ctx); err == nil {
			return *cfg, nil
		}
	}

	cfg, err := s.dbGameConfig(ctx)
	if err != nil {
		return domain.GameConfig{}, err
	}

	if s.cache != nil {
		if err := s.cache.CacheGameConfig(ctx, cfg); err != nil {
			slog.Error("store: cache game config failed", "error", err)
		}
	}
	return cfg, nil
}

// UpsertGameConfig writes the bootstrap configuration (used by the YAML
// reset path), then flushes the cache so readers see it immediately.
func (s *Store) UpsertGameConfig(ctx context.Context, c domain.GameConfig) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gameconfig (id, game_running, game_hardness, max_round, round_time, real_round,
		                         flag_prefix, flag_lifetime, inflation, volga_attacks_mode, timezone, start_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			game_running = EXCLUDED.game_running, game_hardness = EXCLUDED.game_hardness,
			max_round = EXCLUDED.max_round, round_time = EXCLUDED.round_time,
			real_round = EXCLUDED.real_round, flag_prefix = EXCLUDED.flag_prefix,
			flag_lifetime = EXCLUDED.flag_lifetime, inflation = EXCLUDED.inflation,
			volga_attacks_mode = EXCLUDED.volga_attacks_mode, timezone = EXCLUDED.timezone,
			start_time = EXCLUDED.start_time`,
		gameConfigID, c.GameRunning, c.GameHardness, c.MaxRound, c.RoundTime, c.RealRound,
		c.FlagPrefix, c.FlagLifetime, c.Inflation, c.VolgaAttacksMode, c.Timezone, c.StartTime,
	)
	if err != nil {
		return fmt.Errorf("upsert game config: %w", err)
	}
	if s.cache != nil {
		return s.cache.FlushGameConfig(ctx)
	}
	return nil
}

// GetRealRound returns the current round from the fast Redis path,
// falling back to the database source of truth on a cache miss. Used by
// the ticker and monitor, which need the authoritative round regardless
// of whether the cache happens to be warm.
func (s *Store) GetRealRound(ctx context.Context) (int, error) {
	if s.cache != nil {
		if round := s.cache.GetRealRound(ctx); round != -1 {
			return round, nil
		}
	}
	var round int
	err := s.db.QueryRowContext(ctx, `SELECT real_round FROM gameconfig WHERE id = $1`, gameConfigID).Scan(&round)
	if err != nil {
		return -1, fmt.Errorf("get real round from db: %w", err)
	}
	return round, nil
}

// AvailableRound reads real_round from the cache only, never the
// database, so the -1 "game not available" sentinel is preserved — a
// gameconfig row exists (real_round=0) from the moment adarena-cli reset
// runs, long before the ticker ever publishes a round into the cache, and
// a DB fallback here would hide that window instead of reporting it.
// Mirrors the original's cache-only get_real_round().
func (s *Store) AvailableRound(ctx context.Context) int {
	if s.cache == nil {
		return -1
	}
	return s.cache.GetRealRound(ctx)
}

// SetRoundStart caches the wall-clock start instant of a round.
func (s *Store) SetRoundStart(ctx context.Context, round int) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.SetRoundStart(ctx, round, time.Now().UTC())
}

// UpdateRound advances real_round to finishedRound+1 in both the database
// (source of truth) and the cache (fast path), and invalidates the cached
// game config so its next read reflects the new round.
func (s *Store) UpdateRound(ctx context.Context, finishedRound int) error {
	newRound := finishedRound + 1

	if err := s.SetRoundStart(ctx, newRound); err != nil {
		slog.Error("store: set round start failed", "error", err)
	}

	_, err := s.db.ExecContext(ctx, `UPDATE gameconfig SET real_round = $1 WHERE id = $2`, newRound, gameConfigID)
	if err != nil {
		return fmt.Errorf("update real round: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetRealRound(ctx, newRound); err != nil {
			slog.Error("store: cache real round failed", "error", err)
		}
		if err := s.cache.FlushGameConfig(ctx); err != nil {
			slog.Error("store: flush game config cache failed", "error", err)
		}
	}
	return nil
}
