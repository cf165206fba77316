// Package store is the Postgres persistence layer: teams, tasks, the
// per-(team,task) TeamTask scoring row, flags, stolen-flag records,
// schedule history, and the single-row game configuration. Every write
// that participates in the CHECK/PUT/GET status derivation runs as one
// atomic UPDATE with an inline CASE expression — never a read, compute in
// Go, write back.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/adarena/backend/internal/cache"
)

// Store wraps the Postgres connection pool and the Redis cache used for
// the cache-aside reads (game config, current round) the original
// performs against Redis before falling back to the database.
type Store struct {
	db    *sql.DB
	cache *cache.Client
}

// Open connects to Postgres with the given DSN and pool limits.
func Open(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return db, nil
}

// New builds a Store over an already-open database handle and cache client.
func New(db *sql.DB, c *cache.Client) *Store {
	return &Store{db: db, cache: c}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS gameconfig (
	id                 INTEGER PRIMARY KEY,
	game_running       BOOLEAN NOT NULL DEFAULT false,
	game_hardness      DOUBLE PRECISION NOT NULL CHECK (game_hardness >= 1),
	max_round          INTEGER NOT NULL CHECK (max_round > 0),
	round_time         INTEGER NOT NULL CHECK (round_time > 0),
	real_round         INTEGER NOT NULL DEFAULT 0,
	flag_prefix        VARCHAR(10) NOT NULL DEFAULT 'FLAG',
	flag_lifetime      INTEGER NOT NULL CHECK (flag_lifetime > 0),
	inflation          BOOLEAN NOT NULL,
	volga_attacks_mode BOOLEAN NOT NULL,
	timezone           VARCHAR(32) NOT NULL DEFAULT 'UTC',
	start_time         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS teams (
	id     SERIAL PRIMARY KEY,
	name   VARCHAR(255) NOT NULL DEFAULT '',
	ip     VARCHAR(32) NOT NULL,
	token  VARCHAR(16) NOT NULL DEFAULT '',
	active BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS tasks (
	id              SERIAL PRIMARY KEY,
	name            VARCHAR(255) NOT NULL,
	checker         VARCHAR(1024) NOT NULL,
	env_path        VARCHAR(1024) NOT NULL,
	gets            INTEGER NOT NULL CHECK (gets >= 0),
	puts            INTEGER NOT NULL CHECK (puts >= 0),
	places          INTEGER NOT NULL CHECK (places > 0),
	checker_timeout INTEGER NOT NULL CHECK (checker_timeout > 0),
	checker_type    VARCHAR(32) NOT NULL DEFAULT 'hackerdom',
	default_score   INTEGER NOT NULL CHECK (default_score >= 0),
	active          BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS teamtasks (
	team_id         INTEGER NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
	task_id         INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
	status          INTEGER NOT NULL DEFAULT -1,
	check_status    INTEGER NOT NULL DEFAULT -1,
	check_message   TEXT NOT NULL DEFAULT '',
	check_private   TEXT NOT NULL DEFAULT '',
	check_attempts  INTEGER NOT NULL DEFAULT 0,
	put_status      INTEGER NOT NULL DEFAULT -1,
	put_message     TEXT NOT NULL DEFAULT '',
	put_private     TEXT NOT NULL DEFAULT '',
	put_attempts    INTEGER NOT NULL DEFAULT 0,
	get_status      INTEGER NOT NULL DEFAULT -1,
	get_message     TEXT NOT NULL DEFAULT '',
	get_private     TEXT NOT NULL DEFAULT '',
	get_attempts    INTEGER NOT NULL DEFAULT 0,
	stolen          INTEGER NOT NULL DEFAULT 0 CHECK (stolen >= 0),
	lost            INTEGER NOT NULL DEFAULT 0 CHECK (lost >= 0),
	score           DOUBLE PRECISION NOT NULL DEFAULT 0 CHECK (score >= 0),
	checks          INTEGER NOT NULL DEFAULT 0,
	checks_passed   INTEGER NOT NULL DEFAULT 0,
	public_message  TEXT NOT NULL DEFAULT '',
	private_message TEXT NOT NULL DEFAULT '',
	command         TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (team_id, task_id)
);

CREATE TABLE IF NOT EXISTS flags (
	id                SERIAL PRIMARY KEY,
	flag              VARCHAR(64) NOT NULL UNIQUE DEFAULT '',
	team_id           INTEGER NOT NULL REFERENCES teams(id) ON DELETE RESTRICT,
	task_id           INTEGER NOT NULL REFERENCES tasks(id) ON DELETE RESTRICT,
	round             INTEGER NOT NULL CHECK (round >= 0),
	public_flag_data  TEXT NOT NULL,
	private_flag_data TEXT NOT NULL,
	vuln_number       INTEGER
);

CREATE TABLE IF NOT EXISTS stolenflags (
	flag_id     INTEGER NOT NULL REFERENCES flags(id) ON DELETE RESTRICT,
	attacker_id INTEGER NOT NULL REFERENCES teams(id) ON DELETE RESTRICT,
	submit_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (flag_id, attacker_id)
);

CREATE TABLE IF NOT EXISTS teamtaskslog (
	id              SERIAL PRIMARY KEY,
	round           INTEGER NOT NULL,
	task_id         INTEGER NOT NULL,
	team_id         INTEGER NOT NULL,
	status          INTEGER NOT NULL,
	stolen          INTEGER NOT NULL DEFAULT 0,
	lost            INTEGER NOT NULL DEFAULT 0,
	score           DOUBLE PRECISION NOT NULL DEFAULT 0,
	checks          INTEGER NOT NULL DEFAULT 0,
	checks_passed   INTEGER NOT NULL DEFAULT 0,
	public_message  TEXT NOT NULL DEFAULT '',
	private_message TEXT NOT NULL DEFAULT '',
	command         TEXT NOT NULL DEFAULT '',
	ts              TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schedulehistory (
	id       VARCHAR(32) PRIMARY KEY,
	last_run TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE OR REPLACE FUNCTION recalculate_rating(
	p_attacker_id INTEGER,
	p_victim_id INTEGER,
	p_task_id INTEGER,
	p_flag_id INTEGER
) RETURNS TABLE(attacker_delta DOUBLE PRECISION, victim_delta DOUBLE PRECISION) AS $$
DECLARE
	v_default_score   INTEGER;
	v_active_teams    INTEGER;
	v_game_hardness   DOUBLE PRECISION;
	v_inflation       BOOLEAN;
	v_real_round      INTEGER;
	v_max_round       INTEGER;
	v_delta           DOUBLE PRECISION;
BEGIN
	SELECT default_score INTO v_default_score FROM tasks WHERE id = p_task_id;
	SELECT count(*) INTO v_active_teams FROM teams WHERE active;
	SELECT game_hardness, inflation, real_round, max_round
		INTO v_game_hardness, v_inflation, v_real_round, v_max_round
		FROM gameconfig WHERE id = 1;

	IF v_active_teams <= 0 THEN
		v_active_teams := 1;
	END IF;

	v_delta := v_default_score::DOUBLE PRECISION / v_active_teams * v_game_hardness;
	IF v_inflation AND v_max_round > 0 THEN
		v_delta := v_delta * (1 + v_real_round::DOUBLE PRECISION / v_max_round);
	END IF;
	v_delta := round(v_delta::numeric, 2)::DOUBLE PRECISION;

	UPDATE teamtasks SET score = score + v_delta, stolen = stolen + 1
		WHERE team_id = p_attacker_id AND task_id = p_task_id;
	UPDATE teamtasks SET score = greatest(score - v_delta, 0), lost = lost + 1
		WHERE team_id = p_victim_id AND task_id = p_task_id;

	INSERT INTO stolenflags (flag_id, attacker_id) VALUES (p_flag_id, p_attacker_id);

	attacker_delta := v_delta;
	victim_delta := -v_delta;
	RETURN NEXT;
END;
$$ LANGUAGE plpgsql;
`

// EnsureSchema creates every table and the recalculate_rating stored
// procedure if they don't already exist. Called once at startup by each
// binary (cmd/server, cmd/ticker, cmd/worker) — idempotent, so it is safe
// for all three to race on it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// WipeTournamentData truncates every table the game clock writes to,
// restarting identity sequences so a fresh bootstrap gets teams/tasks
// numbered from 1 again. Used by cmd/adarena-cli reset in place of the
// original's drop-and-recreate-schema step, since the schema itself is
// already idempotently managed by EnsureSchema.
func (s *Store) WipeTournamentData(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`TRUNCATE teamtaskslog, stolenflags, flags, teamtasks, tasks, teams, schedulehistory, gameconfig RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("store: wipe tournament data: %w", err)
	}
	return nil
}
