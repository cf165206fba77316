// Command adarena-cli is the tournament operator's admin tool: wipe and
// reseed the database from the bootstrap YAML, pause/resume the game
// clock, and print team bearer tokens. Unlike the gateway-fronted admin
// CLI it's descended from, every subcommand here talks to Postgres and
// Redis directly — reset in particular has no HTTP surface to call
// through, since it runs before cmd/server has anything to serve.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/adarena/backend/internal/cache"
	"github.com/adarena/backend/internal/config"
	"github.com/adarena/backend/internal/domain"
	"github.com/adarena/backend/internal/store"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "reset":
		cmdReset()
	case "pause":
		cmdPause()
	case "resume":
		cmdResume()
	case "tokens":
		cmdTokens()
	case "version":
		fmt.Printf("adarena-cli v%s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`ADArena Admin CLI v` + version + `

Usage: adarena-cli <command>

Commands:
  reset     Wipe the database and reseed teams/tasks/gameconfig from CONFIG_PATH
  pause     Stop the game clock (game_running = false)
  resume    Start the game clock (game_running = true)
  tokens    Print every team's bearer token
  version   Print the CLI version
  help      Show this message

Environment:
  CONFIG_PATH   bootstrap YAML (default config.yaml)
  see internal/config for the full database/redis override list`)
}

// openStore loads config and connects to Postgres and Redis the same way
// every other binary does, so reset/pause/resume/tokens see exactly what
// cmd/server and cmd/ticker will see.
func openStore() (*store.Store, *cache.Client) {
	cfg := config.Get()

	db, err := store.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns,
		time.Duration(cfg.Database.ConnMaxLifetime)*time.Second)
	if err != nil {
		log.Fatalf("adarena-cli: open database: %v", err)
	}

	c, err := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("adarena-cli: connect redis: %v", err)
	}

	st := store.New(db, c)
	if err := st.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("adarena-cli: ensure schema: %v", err)
	}
	return st, c
}

// cmdReset wipes every tournament table and reseeds it from the bootstrap
// YAML already loaded into cfg.Game/cfg.Tasks/cfg.Teams. Mirrors the
// original reset script's load-config -> drop-schema -> reseed sequence,
// except schema creation stays idempotent (EnsureSchema) rather than a
// literal drop-and-recreate, and the TeamTask matrix is never built by
// hand: CreateTask/CreateTeam already seed it row by row as each task and
// team is inserted, provided tasks are created before teams.
func cmdReset() {
	cfg := config.Get()
	st, c := openStore()
	ctx := context.Background()

	fmt.Println("Wiping existing tournament data...")
	if err := st.WipeTournamentData(ctx); err != nil {
		log.Fatalf("adarena-cli: wipe tournament data: %v", err)
	}

	fmt.Println("Writing game config...")
	gameCfg := domain.GameConfig{
		GameRunning:      false,
		GameHardness:     cfg.Game.GameHardness,
		MaxRound:         cfg.Game.MaxRound,
		RoundTime:        cfg.Game.RoundTime,
		RealRound:        0,
		FlagPrefix:       cfg.Game.FlagPrefix,
		FlagLifetime:     cfg.Game.FlagLifetime,
		Inflation:        cfg.Game.Inflation,
		VolgaAttacksMode: cfg.Game.VolgaAttacksMode,
		Timezone:         cfg.Game.Timezone,
		StartTime:        cfg.Game.StartTime,
	}
	if err := st.UpsertGameConfig(ctx, gameCfg); err != nil {
		log.Fatalf("adarena-cli: upsert game config: %v", err)
	}

	fmt.Printf("Creating %d tasks...\n", len(cfg.Tasks))
	for _, t := range cfg.Tasks {
		task := domain.Task{
			Name: t.Name, Checker: t.Checker, EnvPath: t.EnvPath,
			Gets: t.Gets, Puts: t.Puts, Places: t.Places,
			CheckerTimeout: t.CheckerTimeout, CheckerType: t.CheckerType,
			DefaultScore: t.DefaultScore, Active: true,
		}
		if _, err := st.CreateTask(ctx, task); err != nil {
			log.Fatalf("adarena-cli: create task %q: %v", t.Name, err)
		}
	}

	fmt.Printf("Creating %d teams...\n", len(cfg.Teams))
	tokens := make(map[string]string, len(cfg.Teams))
	for _, tm := range cfg.Teams {
		token, err := store.GenerateToken()
		if err != nil {
			log.Fatalf("adarena-cli: generate token for %q: %v", tm.Name, err)
		}
		team := domain.Team{Name: tm.Name, IP: tm.IP, Token: token, Active: true}
		if _, err := st.CreateTeam(ctx, team); err != nil {
			log.Fatalf("adarena-cli: create team %q: %v", tm.Name, err)
		}
		tokens[tm.Name] = token
	}

	fmt.Println("Flushing cache...")
	if err := c.Raw().FlushDB(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "adarena-cli: flush redis: %v (continuing)\n", err)
	}

	fmt.Println("\nTeam tokens:")
	for _, tm := range cfg.Teams {
		fmt.Printf("  %s: %s\n", tm.Name, tokens[tm.Name])
	}
	fmt.Println("\nReset complete.")
}

func cmdPause() {
	st, _ := openStore()
	if err := st.SetGameRunning(context.Background(), false); err != nil {
		log.Fatalf("adarena-cli: pause: %v", err)
	}
	fmt.Println("Game paused.")
}

func cmdResume() {
	st, _ := openStore()
	if err := st.SetGameRunning(context.Background(), true); err != nil {
		log.Fatalf("adarena-cli: resume: %v", err)
	}
	fmt.Println("Game resumed.")
}

func cmdTokens() {
	st, _ := openStore()
	teams, err := st.GetAllTeams(context.Background())
	if err != nil {
		log.Fatalf("adarena-cli: list teams: %v", err)
	}
	for _, t := range teams {
		fmt.Printf("%s: %s\n", t.Name, t.Token)
	}
}
