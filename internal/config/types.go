package config

// Config is the on-disk configuration (JSON or YAML). Environment variables
// from ApplyEnv win over file values.
type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Health    HealthConfig    `json:"health"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// SupportChannel is a public handle shown on /start and /help.
	SupportChannel string `json:"support_channel,omitempty"`
	// GroupLog is the chat id receiving mirrored warnings (logging.telegram).
	GroupLog int64 `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s").
	PollTimeout string `json:"poll_timeout,omitempty"`
	// Workers is the number of sequential per-chat dispatch shards.
	Workers int `json:"workers,omitempty"`
	// HandlerTimeout bounds one handler invocation (Go duration string).
	HandlerTimeout string `json:"handler_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the persistence driver.
//
//	"storage": { "driver": "sqlite", "path": "./data/fsubbot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`          // postgres; never logged
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite, Go duration string
}

// HealthConfig controls the liveness HTTP endpoint.
type HealthConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

type SchedulerConfig struct {
	// Timezone for cron expressions (IANA name). Empty means local time.
	Timezone string `json:"timezone,omitempty"`
	// PendingSweep is the cron spec of the overdue pending-unmute sweep.
	PendingSweep string `json:"pending_sweep,omitempty"`
	// SessionPrune is the cron spec of the idle chat-session cleanup.
	SessionPrune string `json:"session_prune,omitempty"`
}
