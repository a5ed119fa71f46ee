package api

import (
	"os"
	"strconv"
	"time"
)

// Config holds the server configuration, loaded from environment variables.
type Config struct {
	ListenAddr      string
	DBPath          string
	ShutdownTimeout time.Duration

	LogFormat    string // "json" (default) or "text"
	LogLevel     string // "debug", "info" (default), "warn", "error"
	LogFile      string // rotate-logged file; empty = stderr
	LogMaxSizeMB int    // rotation threshold for LogFile
}

// LoadConfig reads configuration from environment variables with sensible
// defaults.
func LoadConfig() Config {
	cfg := Config{
		ListenAddr:      ":8080",
		DBPath:          "./data/board.db",
		ShutdownTimeout: 30 * time.Second,
		LogFormat:       "json",
		LogLevel:        "info",
		LogMaxSizeMB:    50,
	}

	if v := os.Getenv("BOARD_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("BOARD_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("BOARD_SHUTDOWN_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv("BOARD_LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("BOARD_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BOARD_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("BOARD_LOG_MAX_SIZE_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LogMaxSizeMB = n
		}
	}

	return cfg
}
