package app

import (
	"fmt"
	"strings"
	"time"

	"fsubbot/internal/config"
	"fsubbot/internal/observability/health"
	"fsubbot/internal/storage"
	"fsubbot/pkg/logx"
)

const defaultSQLitePath = "./data/fsubbot.db"

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	switch driver {
	case "", "file":
		return storage.Config{Driver: "file", Path: strings.TrimSpace(sc.Path)}, nil
	case "sqlite", "sqlite3":
		path := strings.TrimSpace(sc.Path)
		if path == "" || path == config.DefaultStoragePath {
			path = defaultSQLitePath
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, nil
	case "postgres", "postgresql", "pgx":
		return storage.Config{Driver: "postgres", DSN: strings.TrimSpace(sc.DSN)}, nil
	}
	return storage.Config{}, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled:    lc.File.Enabled,
			Path:       lc.File.Path,
			MaxSizeMB:  lc.File.MaxSizeMB,
			MaxBackups: lc.File.MaxBackups,
			MaxAgeDays: lc.File.MaxAgeDays,
			Compress:   lc.File.Compress,
		},
		Telegram: logx.TelegramConfig{
			// The sink needs a target chat.
			Enabled:    lc.Telegram.Enabled && cfg.Telegram.GroupLog != 0,
			ChatID:     cfg.Telegram.GroupLog,
			ThreadID:   lc.Telegram.ThreadID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapHealthConfig(cfg *config.Config, version string) health.Config {
	return health.Config{
		Enabled:      cfg.Health.Enabled,
		Addr:         cfg.Health.Addr,
		Version:      version,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
