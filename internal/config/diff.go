package config

import (
	"reflect"
	"strings"

	"fsubbot/pkg/logx"
)

// SummarizeConfigChange lists the changed sections and returns log fields
// that never include secrets (token, dsn). restart reports sections that only
// take effect after a restart.
func SummarizeConfigChange(oldCfg, newCfg *Config) (changed []string, attrs []logx.Field, restart []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	ot, nt := oldCfg.Telegram, newCfg.Telegram
	if !reflect.DeepEqual(ot.OwnerUserIDs, nt.OwnerUserIDs) || ot.SupportChannel != nt.SupportChannel || ot.GroupLog != nt.GroupLog {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int("telegram.owner_count", len(nt.OwnerUserIDs)),
			logx.String("telegram.support_channel", nt.SupportChannel),
			logx.Bool("telegram.group_log_set", nt.GroupLog != 0),
		)
	}
	if ot.Token != nt.Token || ot.PollTimeout != nt.PollTimeout || ot.Workers != nt.Workers {
		restart = append(restart, "telegram")
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		restart = append(restart, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", strings.TrimSpace(newCfg.Storage.DSN) != ""),
		)
	}
	if oldCfg.Health != newCfg.Health {
		changed = append(changed, "health")
		attrs = append(attrs,
			logx.Bool("health.enabled", newCfg.Health.Enabled),
			logx.String("health.addr", newCfg.Health.Addr),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		restart = append(restart, "scheduler")
	}
	return changed, attrs, restart
}
