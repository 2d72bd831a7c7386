package app

import (
	"fmt"
	"strings"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/jobs"
	"fintrack/internal/observability/admin"
	"fintrack/internal/recurrence"
	"fintrack/internal/reminder"
	"fintrack/internal/storage"
	"fintrack/internal/task/scheduler"
	"fintrack/internal/transport/push"
	"fintrack/internal/transport/push/logsink"
	"fintrack/internal/transport/push/telegram"
	logx "fintrack/pkg/logx"
)

func mapLogging(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Format:  cfg.Logging.Format,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStorage(cfg *config.Config) storage.Config {
	sc := cfg.Storage
	return storage.Config{
		Driver:       sc.Driver,
		Path:         sc.Path,
		DSN:          sc.DSN,
		BusyTimeout:  config.MustDuration(sc.BusyTimeout, 0),
		MaxOpenConns: sc.MaxOpenConns,
	}
}

func newGateway(cfg *config.Config, log logx.Logger) (push.Gateway, error) {
	switch strings.ToLower(cfg.Push.Driver) {
	case "telegram":
		tc := cfg.Push.Telegram
		gw, err := telegram.New(telegram.Config{
			Token:      tc.Token,
			RatePerSec: tc.RatePerSec,
			Timeout:    config.MustDuration(tc.Timeout, 10*time.Second),
		}, log)
		if err != nil {
			return nil, err
		}
		return gw, nil
	case "log", "":
		return logsink.New(log), nil
	default:
		return nil, fmt.Errorf("unknown push driver %q", cfg.Push.Driver)
	}
}

func loadLocation(tz string) *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(tz))
	if err != nil {
		return time.UTC
	}
	return loc
}

func mapScheduler(cfg *config.Config) scheduler.Config {
	return scheduler.Config{Timezone: cfg.Timezone}
}

func mapRecurrence(cfg *config.Config) recurrence.Config {
	return recurrence.Config{
		Concurrency:      cfg.Jobs.Concurrency,
		RespectFrequency: cfg.Jobs.Recovery.RespectFrequency,
	}
}

func mapReminder(cfg *config.Config) reminder.Config {
	return reminder.Config{
		Concurrency: cfg.Jobs.Concurrency,
		Tolerance:   cfg.Jobs.WeeklyReminder.ToleranceMinutes,
	}
}

func mapSchedules(cfg *config.Config) map[string]jobs.Schedule {
	one := func(j config.JobConfig) jobs.Schedule {
		return jobs.Schedule{
			Enabled: j.IsEnabled(),
			Spec:    j.Schedule,
			Timeout: config.MustDuration(j.Timeout, 0),
		}
	}
	j := cfg.Jobs
	return map[string]jobs.Schedule{
		jobs.Recurring:     one(j.Recurring),
		jobs.Recovery:      one(j.Recovery.JobConfig),
		jobs.DailyReminder: one(j.DailyReminder),
		jobs.Weekly:        one(j.WeeklyReminder.JobConfig),
		jobs.MonthlyIncome: one(j.MonthlyIncome),
	}
}

func mapAdmin(cfg *config.Config) admin.Config {
	a := cfg.Admin
	return admin.Config{
		Enabled:       a.Enabled,
		Addr:          a.Addr,
		Token:         a.Token,
		AllowInsecure: a.AllowInsecure,
		Pprof:         a.Pprof,
	}
}
