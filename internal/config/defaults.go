package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DefaultHealthAddr   = ":8000"
	DefaultStoragePath  = "./data/fsubbot.json"
	DefaultPendingSweep = "@every 5m"
	DefaultSessionPrune = "@every 30m"
)

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Console: true},
		Storage: StorageConfig{Driver: "file", Path: DefaultStoragePath},
		Health:  HealthConfig{Enabled: true, Addr: DefaultHealthAddr},
	}
}

// Normalize fills empty fields with defaults.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Driver == "file" && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if strings.TrimSpace(c.Health.Addr) == "" {
		c.Health.Addr = DefaultHealthAddr
	}
	if strings.TrimSpace(c.Scheduler.PendingSweep) == "" {
		c.Scheduler.PendingSweep = DefaultPendingSweep
	}
	if strings.TrimSpace(c.Scheduler.SessionPrune) == "" {
		c.Scheduler.SessionPrune = DefaultSessionPrune
	}
	c.Telegram.SupportChannel = strings.TrimPrefix(strings.TrimSpace(c.Telegram.SupportChannel), "@")
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required (or BOT_TOKEN)"))
	}
	if c.Telegram.Workers < 0 {
		errs = append(errs, errors.New("telegram.workers must be >= 0"))
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("telegram.handler_timeout", c.Telegram.HandlerTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "sqlite", "sqlite3":
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres (or DATABASE_URL)"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.driver %q", c.Storage.Driver))
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}
	return errors.Join(errs...)
}

// IsOwner reports whether id is one of the configured owners.
func (c *Config) IsOwner(id int64) bool {
	for _, o := range c.Telegram.OwnerUserIDs {
		if o == id {
			return true
		}
	}
	return false
}
