package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"fintrack/internal/task/scheduler"
	logx "fintrack/pkg/logx"
)

// minGapSamples is how many recovery firings are inspected for the
// shortest gap. A week of hourly firings covers every crontab shape in use.
const minGapSamples = 24 * 7

// Validate checks a defaulted Config. All problems are reported together.
func Validate(c *Config) error {
	if c == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(format string, args ...any) { errs = append(errs, fmt.Errorf(format, args...)) }

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		add("timezone: %w", err)
		loc = time.UTC
	}

	if _, err := logx.ParseLevel(c.Logging.Level); err != nil {
		add("logging.level: %w", err)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "console", "json":
	default:
		add("logging.format: want console or json, got %q", c.Logging.Format)
	}

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			add("storage.path: required for sqlite")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add("storage.dsn: required for postgres (or set %s)", EnvStorageDSN)
		}
	default:
		add("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.MaxOpenConns < 0 {
		add("storage.max_open_conns: must be >= 0")
	}

	switch c.Push.Driver {
	case "log":
	case "telegram":
		if strings.TrimSpace(c.Push.Telegram.Token) == "" {
			add("push.telegram.token: required (or set %s)", EnvTelegramToken)
		}
	default:
		add("push.driver: unknown driver %q", c.Push.Driver)
	}
	if c.Push.Telegram.RatePerSec < 0 {
		add("push.telegram.rate_per_sec: must be >= 0")
	}
	if _, err := ParseDurationField("push.telegram.timeout", c.Push.Telegram.Timeout); err != nil {
		errs = append(errs, err)
	}

	j := c.Jobs
	if j.Concurrency < 1 || j.Concurrency > 256 {
		add("jobs.concurrency: must be within 1..256, got %d", j.Concurrency)
	}
	for _, jc := range []struct {
		key string
		cfg JobConfig
	}{
		{"jobs.recurring", j.Recurring},
		{"jobs.recovery", j.Recovery.JobConfig},
		{"jobs.daily_reminder", j.DailyReminder},
		{"jobs.weekly_reminder", j.WeeklyReminder.JobConfig},
		{"jobs.monthly_income", j.MonthlyIncome},
	} {
		if _, err := scheduler.ParseSchedule(jc.cfg.Schedule); err != nil {
			add("%s.schedule: %w", jc.key, err)
		}
		if _, err := ParseDurationField(jc.key+".timeout", jc.cfg.Timeout); err != nil {
			errs = append(errs, err)
		}
	}
	if t := j.WeeklyReminder.ToleranceMinutes; t < -1 || t > 30 {
		add("jobs.weekly_reminder.tolerance_minutes: must be within -1..30, got %d", t)
	}

	minInterval, err := ParseDurationField("jobs.recovery.min_interval", j.Recovery.MinInterval)
	if err != nil {
		errs = append(errs, err)
	}
	if err == nil && minInterval > 0 && j.Recovery.IsEnabled() {
		gap, gerr := scheduler.MinGap(j.Recovery.Schedule, loc, minGapSamples)
		if gerr == nil && gap > 0 && gap < minInterval {
			add("jobs.recovery.schedule: fires every %s, below min_interval %s", gap, minInterval)
		}
	}

	if c.Admin.Enabled && strings.TrimSpace(c.Admin.Addr) == "" {
		add("admin.addr: required when enabled")
	}

	return errors.Join(errs...)
}
