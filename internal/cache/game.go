package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/adarena/backend/internal/domain"
)

// GameConfigTTL matches the original's 60s config cache.
const GameConfigTTL = 60 * time.Second

// TeamsTasksTTL matches the original's 1h team/task cache.
const TeamsTasksTTL = time.Hour

type gameConfigDTO struct {
	ID               int     `json:"id"`
	GameRunning      bool    `json:"game_running"`
	GameHardness     float64 `json:"game_hardness"`
	MaxRound         int     `json:"max_round"`
	RoundTime        int     `json:"round_time"`
	RealRound        int     `json:"real_round"`
	FlagPrefix       string  `json:"flag_prefix"`
	FlagLifetime     int     `json:"flag_lifetime"`
	Inflation        bool    `json:"inflation"`
	VolgaAttacksMode bool    `json:"volga_attacks_mode"`
	Timezone         string  `json:"timezone"`
	StartTime        string  `json:"start_time"`
}

// CacheGameConfig writes the 60s game-config snapshot.
func (c *Client) CacheGameConfig(ctx context.Context, cfg domain.GameConfig) error {
	dto := gameConfigDTO{
		ID: cfg.ID, GameRunning: cfg.GameRunning, GameHardness: cfg.GameHardness,
		MaxRound: cfg.MaxRound, RoundTime: cfg.RoundTime, RealRound: cfg.RealRound,
		FlagPrefix: cfg.FlagPrefix, FlagLifetime: cfg.FlagLifetime, Inflation: cfg.Inflation,
		VolgaAttacksMode: cfg.VolgaAttacksMode, Timezone: cfg.Timezone,
		StartTime: cfg.StartTime.Format(time.RFC3339),
	}
	buf, err := json.Marshal(dto)
	if err != nil {
		return err
	}
	return c.Set(ctx, Keys.GameConfig(), buf, GameConfigTTL)
}

// GetGameConfig reads the cached game config, if present.
func (c *Client) GetGameConfig(ctx context.Context) (*domain.GameConfig, error) {
	buf, err := c.Get(ctx, Keys.GameConfig())
	if err != nil {
		return nil, err
	}
	var dto gameConfigDTO
	if err := json.Unmarshal(buf, &dto); err != nil {
		return nil, err
	}
	start, _ := time.Parse(time.RFC3339, dto.StartTime)
	return &domain.GameConfig{
		ID: dto.ID, GameRunning: dto.GameRunning, GameHardness: dto.GameHardness,
		MaxRound: dto.MaxRound, RoundTime: dto.RoundTime, RealRound: dto.RealRound,
		FlagPrefix: dto.FlagPrefix, FlagLifetime: dto.FlagLifetime, Inflation: dto.Inflation,
		VolgaAttacksMode: dto.VolgaAttacksMode, Timezone: dto.Timezone, StartTime: start,
	}, nil
}

// FlushGameConfig invalidates the config cache; the ticker does this on
// every round advance since real_round is one of its fields.
func (c *Client) FlushGameConfig(ctx context.Context) error {
	return c.Del(ctx, Keys.GameConfig())
}

// GetRealRound returns the cached round, or -1 if the game hasn't started.
func (c *Client) GetRealRound(ctx context.Context) int {
	buf, err := c.Get(ctx, Keys.CurrentRound())
	if err != nil {
		return -1
	}
	n, err := strconv.Atoi(string(buf))
	if err != nil {
		return -1
	}
	return n
}

// SetRealRound publishes the new round into the cache.
func (c *Client) SetRealRound(ctx context.Context, round int) error {
	return c.Set(ctx, Keys.CurrentRound(), []byte(strconv.Itoa(round)), 0)
}

// GetRoundStart / SetRoundStart cache the wall-clock instant a round began.
func (c *Client) SetRoundStart(ctx context.Context, round int, at time.Time) error {
	return c.Set(ctx, Keys.RoundStart(round), []byte(at.Format(time.RFC3339Nano)), 0)
}

func (c *Client) GetRoundStart(ctx context.Context, round int) (time.Time, error) {
	buf, err := c.Get(ctx, Keys.RoundStart(round))
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, string(buf))
}

type teamDTO struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	IP     string `json:"ip"`
	Token  string `json:"token"`
	Active bool   `json:"active"`
}

// CacheTeams rebuilds the `teams` set and the per-token lookup keys used by
// the submission handler's token validation fast path.
func (c *Client) CacheTeams(ctx context.Context, teams []domain.Team) error {
	if err := c.Del(ctx, Keys.Teams()); err != nil {
		return err
	}
	members := make([]string, 0, len(teams))
	for _, t := range teams {
		buf, err := json.Marshal(teamDTO{ID: t.ID, Name: t.Name, IP: t.IP, Token: t.Token, Active: t.Active})
		if err != nil {
			return err
		}
		members = append(members, string(buf))
		if err := c.Set(ctx, Keys.TeamByToken(t.Token), []byte(strconv.Itoa(t.ID)), TeamsTasksTTL); err != nil {
			return err
		}
	}
	if len(members) == 0 {
		return nil
	}
	return c.SAdd(ctx, Keys.Teams(), members...)
}

// FlushTeams invalidates the team set and every per-token key.
func (c *Client) FlushTeams(ctx context.Context) error {
	if err := c.Del(ctx, Keys.Teams()); err != nil {
		return err
	}
	return c.ScanDel(ctx, "team:token:*")
}

type taskDTO struct {
	ID             int    `json:"id"`
	Name           string `json:"name"`
	Checker        string `json:"checker"`
	EnvPath        string `json:"env_path"`
	Gets           int    `json:"gets"`
	Puts           int    `json:"puts"`
	Places         int    `json:"places"`
	CheckerTimeout int    `json:"checker_timeout"`
	CheckerType    string `json:"checker_type"`
	DefaultScore   int    `json:"default_score"`
	Active         bool   `json:"active"`
}

// CacheTasks rebuilds the `tasks` set.
func (c *Client) CacheTasks(ctx context.Context, tasks []domain.Task) error {
	if err := c.Del(ctx, Keys.Tasks()); err != nil {
		return err
	}
	members := make([]string, 0, len(tasks))
	for _, t := range tasks {
		buf, err := json.Marshal(taskDTO{
			ID: t.ID, Name: t.Name, Checker: t.Checker, EnvPath: t.EnvPath,
			Gets: t.Gets, Puts: t.Puts, Places: t.Places, CheckerTimeout: t.CheckerTimeout,
			CheckerType: t.CheckerType, DefaultScore: t.DefaultScore, Active: t.Active,
		})
		if err != nil {
			return err
		}
		members = append(members, string(buf))
	}
	if len(members) == 0 {
		return nil
	}
	return c.SAdd(ctx, Keys.Tasks(), members...)
}

func (c *Client) FlushTasks(ctx context.Context) error {
	return c.Del(ctx, Keys.Tasks())
}

type flagDTO struct {
	ID             int    `json:"id"`
	TeamID         int    `json:"team_id"`
	TaskID         int    `json:"task_id"`
	Flag           string `json:"flag"`
	Round          int    `json:"round"`
	PublicFlagData string `json:"public_flag_data"`
}

// CacheFlag stores a newly-planted flag's lookup metadata with
// TTL = 2 * flag_lifetime * round_time seconds, per spec §3.
func (c *Client) CacheFlag(ctx context.Context, f domain.Flag, flagLifetime, roundTime int) error {
	dto := flagDTO{ID: f.ID, TeamID: f.TeamID, TaskID: f.TaskID, Flag: f.Flag, Round: f.Round, PublicFlagData: f.PublicFlagData}
	buf, err := json.Marshal(dto)
	if err != nil {
		return err
	}
	ttl := time.Duration(2*flagLifetime*roundTime) * time.Second
	return c.Set(ctx, Keys.FlagByStr(f.Flag), buf, ttl)
}

// GetFlagByStr looks up a flag's cached metadata by its flag string — the
// fast path the submission handler relies on; a miss means "invalid or
// too old" regardless of whether the flag ever existed.
func (c *Client) GetFlagByStr(ctx context.Context, flagStr string) (*domain.Flag, error) {
	buf, err := c.Get(ctx, Keys.FlagByStr(flagStr))
	if err != nil {
		return nil, err
	}
	var dto flagDTO
	if err := json.Unmarshal(buf, &dto); err != nil {
		return nil, err
	}
	return &domain.Flag{ID: dto.ID, TeamID: dto.TeamID, TaskID: dto.TaskID, Flag: dto.Flag, Round: dto.Round, PublicFlagData: dto.PublicFlagData}, nil
}

// AttackData is the per-round map task_name -> team_ip -> public_flag_data,
// distributed to teams so they know what to attack.
type AttackData map[string]map[string][]string

// SetAttackData caches the attack-data snapshot. No TTL is set, exactly as
// the original — see SPEC_FULL.md's Open Question decision #4.
func (c *Client) SetAttackData(ctx context.Context, data AttackData) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return c.Set(ctx, Keys.AttackData(), buf, 0)
}

func (c *Client) GetAttackData(ctx context.Context) (AttackData, error) {
	buf, err := c.Get(ctx, Keys.AttackData())
	if err != nil {
		return nil, err
	}
	var data AttackData
	if err := json.Unmarshal(buf, &data); err != nil {
		return nil, err
	}
	return data, nil
}

// GameStateSnapshot is the full per-round state blob served to the
// game_events WebSocket stream and the /api/client/* reads.
type GameStateSnapshot struct {
	Round      int                   `json:"round"`
	RoundStart time.Time             `json:"round_start"`
	TeamTasks  []TeamTaskStateView   `json:"team_tasks"`
}

// TeamTaskStateView is the public projection of a TeamTask row.
type TeamTaskStateView struct {
	TeamID        int     `json:"team_id"`
	TaskID        int     `json:"task_id"`
	Status        int     `json:"status"`
	PublicMessage string  `json:"public_message"`
	Stolen        int     `json:"stolen"`
	Lost          int      `json:"lost"`
	Score         float64  `json:"score"`
	SLA           float64  `json:"sla"`
}

// SetGameState caches the full game_state snapshot. No TTL, matching the
// original (the ticker overwrites it every round).
func (c *Client) SetGameState(ctx context.Context, snap GameStateSnapshot) error {
	buf, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.Set(ctx, Keys.GameState(), buf, 0)
}

func (c *Client) GetGameState(ctx context.Context) (*GameStateSnapshot, error) {
	buf, err := c.Get(ctx, Keys.GameState())
	if err != nil {
		return nil, err
	}
	var snap GameStateSnapshot
	if err := json.Unmarshal(buf, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}
