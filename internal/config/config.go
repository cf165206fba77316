package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// ADArena Backend - Configuration with Environment Overrides
// =============================================================================

type Config struct {
	Server  ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis   RedisConfig    `yaml:"redis"`
	Game    GameYAML       `yaml:"game"`
	Tasks   []TaskYAML     `yaml:"tasks"`
	Teams   []TeamYAML     `yaml:"teams"`
	Worker  WorkerConfig   `yaml:"worker"`
	Admin   AdminConfig    `yaml:"admin"`
}

type ServerConfig struct {
	Port             string   `yaml:"port"`
	Env              string   `yaml:"env"`
	Interface        string   `yaml:"interface"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeout  int      `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// DatabaseConfig holds the authoritative Postgres connection.
type DatabaseConfig struct {
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_sec"`
}

// RedisConfig holds the cache / pub-sub / job-queue connection.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// GameYAML is the bootstrap game timing/scoring configuration, loaded once
// at reset time into the GameConfig row.
type GameYAML struct {
	RoundTime        int       `yaml:"round_time"`
	MaxRound         int       `yaml:"max_round"`
	FlagLifetime     int       `yaml:"flag_lifetime"`
	FlagPrefix       string    `yaml:"flag_prefix"`
	GameHardness     float64   `yaml:"game_hardness"`
	Inflation        bool      `yaml:"inflation"`
	VolgaAttacksMode bool      `yaml:"volga_attacks_mode"`
	Timezone         string    `yaml:"timezone"`
	StartTime        time.Time `yaml:"start_time"`
}

// TaskYAML is one checker spec in the bootstrap config's tasks list.
type TaskYAML struct {
	Name           string `yaml:"name"`
	Checker        string `yaml:"checker"`
	EnvPath        string `yaml:"env_path"`
	Gets           int    `yaml:"gets"`
	Puts           int    `yaml:"puts"`
	Places         int    `yaml:"places"`
	CheckerTimeout int    `yaml:"checker_timeout"`
	CheckerType    string `yaml:"checker_type"`
	DefaultScore   int    `yaml:"default_score"`
}

// TeamYAML is one team entry in the bootstrap config's teams list; tokens
// are generated at reset time, not read from the file.
type TeamYAML struct {
	Name string `yaml:"name"`
	IP   string `yaml:"ip"`
}

// WorkerConfig tunes the checker subprocess pool and the coordinator's
// wait/backoff behavior (§4.2/§4.3). A zero Checkers falls back to a pool
// of 1 (internal/checker.NewPool); zero CheckWaitSec/MaxRetries/
// InitialBackoffMs fall back to the round_time-derived defaults computed
// in internal/coordinator (DefaultCheckWaitTimeout/DefaultRetrySchedule).
type WorkerConfig struct {
	Checkers         int     `yaml:"checkers"`
	MaxRetries       int     `yaml:"max_retries"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms"`
	CheckWaitSec     float64 `yaml:"check_wait_timeout_sec"`
}

// AdminConfig is the shared admin secret (§1 Non-goals: "authentication
// beyond a shared admin secret and per-team opaque tokens").
type AdminConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// =============================================================================
// Singleton Pattern with Environment Overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loading CONFIG_PATH (default
// config.yaml) on first call.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads config from a YAML file.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides, mirroring the
// worker's original getenv-based tuning (CHECKERS, MAX_RETRIES,
// INITIAL_BACKOFF, CHECK_WAIT_TIMEOUT).
func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.Env = getEnv("ADARENA_ENV", c.Server.Env)
	c.Server.Interface = getEnv("ADARENA_INTERFACE", c.Server.Interface)

	if v := getEnvInt("SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeout = v
	}
	if origins := getEnv("CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	c.Database.DSN = getEnv("DATABASE_DSN", c.Database.DSN)
	if v := getEnvInt("DATABASE_MAX_OPEN_CONNS", 0); v > 0 {
		c.Database.MaxOpenConns = v
	}
	if v := getEnvInt("DATABASE_MAX_IDLE_CONNS", 0); v > 0 {
		c.Database.MaxIdleConns = v
	}

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if v := getEnvInt("REDIS_DB", -1); v >= 0 {
		c.Redis.DB = v
	}

	if v := getEnvInt("CHECKERS", 0); v > 0 {
		c.Worker.Checkers = v
	}
	if v := getEnvInt("MAX_RETRIES", 0); v > 0 {
		c.Worker.MaxRetries = v
	}
	if v := getEnvInt("INITIAL_BACKOFF_MS", 0); v > 0 {
		c.Worker.InitialBackoffMs = v
	}
	if v := getEnvFloat("CHECK_WAIT_TIMEOUT", 0); v > 0 {
		c.Worker.CheckWaitSec = v
	}

	c.Admin.Username = getEnv("ADMIN_USERNAME", c.Admin.Username)
	c.Admin.PasswordHash = getEnv("ADMIN_PASSWORD_HASH", c.Admin.PasswordHash)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Redis.Addr == "" {
		c.Redis.Addr = "localhost:6379"
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience Methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func (c *Config) GetPort() string {
	if c.Server.Port == "" {
		return "8080"
	}
	return c.Server.Port
}
