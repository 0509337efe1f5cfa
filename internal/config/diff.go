package config

import (
	"reflect"
	"strings"

	logx "gmwatch/pkg/logx"
)

// SummarizeChange returns a compact list of changed sections plus safe
// structured attrs for logging (never includes secrets like tokens).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 5)
	attrs := make([]logx.Field, 0, 16)

	// Telegram (never log the token)
	if strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.String("telegram.poll_timeout", strings.TrimSpace(newCfg.Telegram.PollTimeout)),
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	// Watch (poll cycle)
	if oldCfg.Watch != newCfg.Watch {
		changed = append(changed, "watch")
		attrs = append(attrs,
			logx.String("watch.interval", strings.TrimSpace(newCfg.Watch.Interval)),
			logx.String("watch.first_delay", strings.TrimSpace(newCfg.Watch.FirstDelay)),
			logx.String("watch.base_url", strings.TrimSpace(newCfg.Watch.BaseURL)),
			logx.String("watch.state_file", strings.TrimSpace(newCfg.Watch.StateFile)),
		)
	}

	// Health
	if oldCfg.Health != newCfg.Health {
		changed = append(changed, "health")
		attrs = append(attrs,
			logx.Bool("health.enabled", newCfg.Health.Enabled),
			logx.String("health.addr", strings.TrimSpace(newCfg.Health.Addr)),
		)
	}

	// Storage (pointer section; nil means disabled)
	oldStorage := StorageConfig{}
	if oldCfg.Storage != nil {
		oldStorage = *oldCfg.Storage
	}
	newStorage := StorageConfig{}
	if newCfg.Storage != nil {
		newStorage = *newCfg.Storage
	}
	if oldStorage != newStorage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", strings.TrimSpace(newStorage.Driver)),
			logx.String("storage.path", strings.TrimSpace(newStorage.Path)),
		)
	}

	return changed, attrs
}
