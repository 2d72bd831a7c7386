package config

import "strings"

const (
	DefaultTimezone    = "UTC"
	DefaultConcurrency = 8
	DefaultSQLitePath  = "./fintrack.db"
	DefaultAdminAddr   = "127.0.0.1:9464"
	DefaultMinInterval = "1h"
	DefaultTolerance   = 2
)

// applyDefaults fills omitted fields in place.
func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Timezone) == "" {
		c.Timezone = DefaultTimezone
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.Path == "" {
		c.Storage.Path = DefaultSQLitePath
	}

	c.Push.Driver = strings.ToLower(strings.TrimSpace(c.Push.Driver))
	if c.Push.Driver == "" {
		c.Push.Driver = "log"
	}

	j := &c.Jobs
	if j.Concurrency <= 0 {
		j.Concurrency = DefaultConcurrency
	}
	fill(&j.Recurring, "5 0 * * *", "10m")
	fill(&j.Recovery.JobConfig, "0 */6 * * *", "10m")
	fill(&j.DailyReminder, "0 20 * * *", "5m")
	fill(&j.WeeklyReminder.JobConfig, "*/2 * * * *", "90s")
	fill(&j.MonthlyIncome, "0 9 * * *", "5m")
	if j.Recovery.MinInterval == "" {
		j.Recovery.MinInterval = DefaultMinInterval
	}
	if j.WeeklyReminder.ToleranceMinutes == 0 {
		j.WeeklyReminder.ToleranceMinutes = DefaultTolerance
	}

	if c.Admin.Addr == "" {
		c.Admin.Addr = DefaultAdminAddr
	}
}

func fill(j *JobConfig, schedule, timeout string) {
	if strings.TrimSpace(j.Schedule) == "" {
		j.Schedule = schedule
	}
	if strings.TrimSpace(j.Timeout) == "" {
		j.Timeout = timeout
	}
}

// Default returns the configuration used when every field is omitted.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}
