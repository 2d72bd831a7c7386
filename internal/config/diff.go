package config

import (
	"reflect"

	logx "fintrack/pkg/logx"
)

// SummarizeChange lists the sections that differ between two configs and
// returns safe log fields describing the new values. Secrets are reported
// only as "set" flags.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 16)

	if oldCfg.Timezone != newCfg.Timezone {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", newCfg.Timezone))
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.String("logging.format", newCfg.Logging.Format),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		// Storage is bound at startup; the change takes effect on restart.
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
			logx.Bool("storage.restart_required", true),
		)
	}

	if oldCfg.Push != newCfg.Push {
		changed = append(changed, "push")
		attrs = append(attrs,
			logx.String("push.driver", newCfg.Push.Driver),
			logx.Bool("push.token_set", newCfg.Push.Telegram.Token != ""),
			logx.Int("push.rate_per_sec", newCfg.Push.Telegram.RatePerSec),
			logx.Bool("push.restart_required", true),
		)
	}

	if !reflect.DeepEqual(oldCfg.Jobs, newCfg.Jobs) {
		changed = append(changed, "jobs")
		attrs = append(attrs,
			logx.Int("jobs.concurrency", newCfg.Jobs.Concurrency),
			logx.Int("jobs.weekly_tolerance", newCfg.Jobs.WeeklyReminder.ToleranceMinutes),
			logx.Bool("jobs.recovery_respect_frequency", newCfg.Jobs.Recovery.RespectFrequency),
		)
	}

	if oldCfg.Admin != newCfg.Admin {
		changed = append(changed, "admin")
		attrs = append(attrs,
			logx.Bool("admin.enabled", newCfg.Admin.Enabled),
			logx.String("admin.addr", newCfg.Admin.Addr),
			logx.Bool("admin.token_set", newCfg.Admin.Token != ""),
			logx.Bool("admin.restart_required", true),
		)
	}

	return changed, attrs
}
