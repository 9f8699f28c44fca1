// Package config provides configuration management for the arena server.
// Configuration is loaded from environment variables with sensible defaults,
// optionally seeded from a .env file in the working directory.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	// Default values
	DefaultPort      = 8181
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
	DefaultDataDir   = ".arena"
	DefaultDBDriver  = "sqlite"

	// Engine defaults
	DefaultCountdownSeconds       = 5
	DefaultRemainingTickSeconds   = 10
	DefaultFrameTolerance         = 10
	DefaultScoreFloor             = 50
	DefaultWrongPenalty           = 10
	DefaultToleranceSeconds       = 30
	DefaultRangeGapSeconds        = 60
	DefaultJudgeDelayMinMillis    = 1500
	DefaultJudgeDelayMaxMillis    = 4000
	DefaultCompactGraceSeconds    = 30
	DefaultCompactIntervalSeconds = 300

	// Environment variable names
	EnvPort      = "ARENA_PORT"
	EnvLogLevel  = "ARENA_LOG_LEVEL"
	EnvLogFormat = "ARENA_LOG_FORMAT"
	EnvDataDir   = "ARENA_DATA_DIR"
	EnvDBDriver  = "ARENA_DB_DRIVER"
	EnvDBDSN     = "ARENA_DB_DSN"

	EnvCountdownSeconds       = "ARENA_COUNTDOWN_SECONDS"
	EnvRemainingTickSeconds   = "ARENA_REMAINING_TICK_SECONDS"
	EnvFrameTolerance         = "ARENA_FRAME_TOLERANCE"
	EnvScoreFloor             = "ARENA_SCORE_FLOOR"
	EnvWrongPenalty           = "ARENA_WRONG_PENALTY"
	EnvToleranceSeconds       = "ARENA_TOLERANCE_SECONDS"
	EnvRangeGapSeconds        = "ARENA_RANGE_GAP_SECONDS"
	EnvJudgeDelayMinMillis    = "ARENA_JUDGE_DELAY_MIN_MS"
	EnvJudgeDelayMaxMillis    = "ARENA_JUDGE_DELAY_MAX_MS"
	EnvCompactGraceSeconds    = "ARENA_COMPACT_GRACE_SECONDS"
	EnvCompactIntervalSeconds = "ARENA_COMPACT_INTERVAL_SECONDS"

	// Database filename
	DBFilename = "arena.db"
)

// Config holds the full server configuration.
type Config struct {
	Port      int
	LogLevel  string
	LogFormat string
	DataDir   string

	// DBDriver selects the sql driver: "sqlite" or "postgres".
	// DBDSN is required for postgres and ignored for sqlite.
	DBDriver string
	DBDSN    string

	// Task clock
	CountdownSeconds     int
	RemainingTickSeconds int
	ToleranceSeconds     int

	// Positional judging
	FrameTolerance int
	ScoreFloor     int
	WrongPenalty   int

	// Live judging
	RangeGapSeconds     int
	JudgeDelayMinMillis int
	JudgeDelayMaxMillis int

	// Storage maintenance
	CompactGraceSeconds    int
	CompactIntervalSeconds int
}

// Load reads the .env file from the current working directory, if present,
// and sets environment variables. Callers can ignore the error and rely on
// system env or defaults.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	return godotenv.Load(paths...)
}

// New creates a new Config with defaults and environment variable overrides.
func New() (*Config, error) {
	cfg := &Config{
		Port:      getEnvInt(EnvPort, DefaultPort),
		LogLevel:  getEnv(EnvLogLevel, DefaultLogLevel),
		LogFormat: getEnv(EnvLogFormat, DefaultLogFormat),
		DataDir:   getEnv(EnvDataDir, defaultDataDir()),
		DBDriver:  getEnv(EnvDBDriver, DefaultDBDriver),
		DBDSN:     os.Getenv(EnvDBDSN),

		CountdownSeconds:     getEnvInt(EnvCountdownSeconds, DefaultCountdownSeconds),
		RemainingTickSeconds: getEnvInt(EnvRemainingTickSeconds, DefaultRemainingTickSeconds),
		ToleranceSeconds:     getEnvInt(EnvToleranceSeconds, DefaultToleranceSeconds),

		FrameTolerance: getEnvInt(EnvFrameTolerance, DefaultFrameTolerance),
		ScoreFloor:     getEnvInt(EnvScoreFloor, DefaultScoreFloor),
		WrongPenalty:   getEnvInt(EnvWrongPenalty, DefaultWrongPenalty),

		RangeGapSeconds:     getEnvInt(EnvRangeGapSeconds, DefaultRangeGapSeconds),
		JudgeDelayMinMillis: getEnvInt(EnvJudgeDelayMinMillis, DefaultJudgeDelayMinMillis),
		JudgeDelayMaxMillis: getEnvInt(EnvJudgeDelayMaxMillis, DefaultJudgeDelayMaxMillis),

		CompactGraceSeconds:    getEnvInt(EnvCompactGraceSeconds, DefaultCompactGraceSeconds),
		CompactIntervalSeconds: getEnvInt(EnvCompactIntervalSeconds, DefaultCompactIntervalSeconds),
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid %s: port must be between 1 and 65535", EnvPort)
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "postgres" {
		return nil, fmt.Errorf("invalid %s: unsupported driver %q", EnvDBDriver, cfg.DBDriver)
	}
	if cfg.DBDriver == "postgres" && cfg.DBDSN == "" {
		return nil, fmt.Errorf("%s is required when %s=postgres", EnvDBDSN, EnvDBDriver)
	}
	if cfg.CountdownSeconds < 0 {
		return nil, fmt.Errorf("invalid %s: must not be negative", EnvCountdownSeconds)
	}
	if cfg.RemainingTickSeconds < 1 {
		return nil, fmt.Errorf("invalid %s: must be at least 1", EnvRemainingTickSeconds)
	}
	if cfg.ScoreFloor < 0 || cfg.ScoreFloor > 100 {
		return nil, fmt.Errorf("invalid %s: must be between 0 and 100", EnvScoreFloor)
	}
	if cfg.JudgeDelayMaxMillis < cfg.JudgeDelayMinMillis {
		return nil, fmt.Errorf("invalid %s: must not be below %s", EnvJudgeDelayMaxMillis, EnvJudgeDelayMinMillis)
	}

	return cfg, nil
}

// DBPath returns the full path to the SQLite database file.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFilename)
}

func getEnv(key, fallback string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if s := os.Getenv(key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home is not available
		return DefaultDataDir
	}
	return filepath.Join(home, DefaultDataDir)
}

// Version information (set at build time via ldflags)
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
