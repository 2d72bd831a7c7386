package config

// Config is the service configuration. Durations are Go duration strings
// ("30s", "10m").
type Config struct {
	// Timezone is the single IANA zone all schedules and reminders use.
	Timezone string        `json:"timezone"`
	Logging  LoggingConfig `json:"logging"`
	Storage  StorageConfig `json:"storage"`
	Push     PushConfig    `json:"push"`
	Jobs     JobsConfig    `json:"jobs"`
	Admin    AdminConfig   `json:"admin"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Format  string            `json:"format,omitempty"` // "console" | "json"
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig selects the tenant store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./fintrack.db" }
type StorageConfig struct {
	Driver       string `json:"driver"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty"` // postgres; do not log
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

type PushConfig struct {
	// Driver is "telegram" or "log".
	Driver   string         `json:"driver"`
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Token      string `json:"token,omitempty"` // do not log
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// JobsConfig configures the five jobs. Each job can be disabled; a disabled
// job is still runnable by hand.
type JobsConfig struct {
	Concurrency    int               `json:"concurrency,omitempty"`
	Recurring      JobConfig         `json:"recurring"`
	Recovery       RecoveryJobConfig `json:"recovery"`
	DailyReminder  JobConfig         `json:"daily_reminder"`
	WeeklyReminder WeeklyJobConfig   `json:"weekly_reminder"`
	MonthlyIncome  JobConfig         `json:"monthly_income"`
}

type JobConfig struct {
	// Enabled is a pointer so an omitted field defaults to true.
	Enabled  *bool  `json:"enabled,omitempty"`
	Schedule string `json:"schedule,omitempty"`
	Timeout  string `json:"timeout,omitempty"`
}

func (j JobConfig) IsEnabled() bool { return j.Enabled == nil || *j.Enabled }

type RecoveryJobConfig struct {
	JobConfig
	// MinInterval is the shortest allowed gap between two sweeps.
	MinInterval      string `json:"min_interval,omitempty"`
	RespectFrequency bool   `json:"respect_frequency,omitempty"`
}

type WeeklyJobConfig struct {
	JobConfig
	ToleranceMinutes int `json:"tolerance_minutes,omitempty"`
}

type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`
}
