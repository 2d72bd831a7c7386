package config

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"
)

func noEnv(string) (string, bool) { return "", false }

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestDecodeDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := decode("c.json", []byte(`{}`), noEnv)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Timezone != DefaultTimezone {
		t.Fatalf("Timezone = %q, want %q", cfg.Timezone, DefaultTimezone)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != DefaultSQLitePath {
		t.Fatalf("Storage = %+v, want sqlite at %s", cfg.Storage, DefaultSQLitePath)
	}
	if cfg.Push.Driver != "log" {
		t.Fatalf("Push.Driver = %q, want log", cfg.Push.Driver)
	}
	if cfg.Jobs.Concurrency != DefaultConcurrency {
		t.Fatalf("Concurrency = %d, want %d", cfg.Jobs.Concurrency, DefaultConcurrency)
	}
	if got := cfg.Jobs.Recurring.Schedule; got != "5 0 * * *" {
		t.Fatalf("Recurring.Schedule = %q", got)
	}
	if got := cfg.Jobs.WeeklyReminder.Schedule; got != "*/2 * * * *" {
		t.Fatalf("WeeklyReminder.Schedule = %q", got)
	}
	if !cfg.Jobs.MonthlyIncome.IsEnabled() {
		t.Fatalf("omitted enabled should default to true")
	}
	if cfg.Admin.Addr != DefaultAdminAddr {
		t.Fatalf("Admin.Addr = %q", cfg.Admin.Addr)
	}
}

func TestDecodeYAML(t *testing.T) {
	t.Parallel()

	src := `
timezone: Asia/Jakarta
storage:
  driver: memory
jobs:
  concurrency: 4
  recovery:
    schedule: "0 */2 * * *"
    respect_frequency: true
  weekly_reminder:
    enabled: false
    tolerance_minutes: 5
`
	cfg, err := decode("c.yaml", []byte(src), noEnv)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Timezone != "Asia/Jakarta" || cfg.Storage.Driver != "memory" || cfg.Jobs.Concurrency != 4 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if !cfg.Jobs.Recovery.RespectFrequency {
		t.Fatalf("RespectFrequency = false, want true")
	}
	if cfg.Jobs.WeeklyReminder.IsEnabled() {
		t.Fatalf("weekly reminder should be disabled")
	}
	if cfg.Jobs.WeeklyReminder.ToleranceMinutes != 5 {
		t.Fatalf("ToleranceMinutes = %d, want 5", cfg.Jobs.WeeklyReminder.ToleranceMinutes)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown field", `{"nope": 1}`, "unknown field"},
		{"trailing data", `{} {}`, "trailing data"},
		{"bad timezone", `{"timezone": "Mars/Olympus"}`, "timezone"},
		{"bad level", `{"logging": {"level": "loud"}}`, "logging.level"},
		{"postgres without dsn", `{"storage": {"driver": "postgres"}}`, "storage.dsn"},
		{"telegram without token", `{"push": {"driver": "telegram"}}`, "push.telegram.token"},
		{"bad schedule", `{"jobs": {"daily_reminder": {"schedule": "whenever"}}}`, "jobs.daily_reminder.schedule"},
		{"bad timeout", `{"jobs": {"recurring": {"timeout": "soon"}}}`, "jobs.recurring.timeout"},
		{"recovery too frequent", `{"jobs": {"recovery": {"schedule": "*/5 * * * *"}}}`, "min_interval"},
		{"concurrency too high", `{"jobs": {"concurrency": 1000}}`, "jobs.concurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := decode("c.json", []byte(tt.src), noEnv)
			if err == nil {
				t.Fatalf("decode(%s) = nil error", tt.src)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestRecoveryMinIntervalIgnoredWhenDisabled(t *testing.T) {
	t.Parallel()

	src := `{"jobs": {"recovery": {"enabled": false, "schedule": "*/5 * * * *"}}}`
	if _, err := decode("c.json", []byte(src), noEnv); err != nil {
		t.Fatalf("decode: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		EnvTelegramToken: "123:abc",
		EnvTimezone:      "Europe/Berlin",
		EnvAdminToken:    "secret",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg, err := decode("c.json", []byte(`{"push": {"driver": "telegram"}, "timezone": "UTC"}`), lookup)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Push.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q, want env value", cfg.Push.Telegram.Token)
	}
	if cfg.Timezone != "Europe/Berlin" {
		t.Fatalf("Timezone = %q, want env value", cfg.Timezone)
	}
	if cfg.Admin.Token != "secret" {
		t.Fatalf("Admin.Token = %q, want env value", cfg.Admin.Token)
	}
}

func TestManagerLoadAndSubscribe(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "fintrack.json", `{"storage": {"driver": "memory"}}`)
	m := NewManager(p)
	m.lookup = noEnv

	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Fatalf("Get did not return the committed config")
	}

	ch := m.Subscribe(1)
	m.publish(cfg)
	m.publish(Default())
	select {
	case got := <-ch:
		if got == cfg {
			t.Fatalf("full subscriber should keep the newest config")
		}
	default:
		t.Fatalf("no config delivered")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel still open after Unsubscribe")
	}
}

func TestManagerWatchReloads(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "fintrack.json", `{"storage": {"driver": "memory"}}`)
	m := NewManager(p)
	m.lookup = noEnv
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	deadline := time.After(5 * time.Second)
	// Writes are spaced wider than the debounce so each one can settle
	// into a reload; repeats of the same content hash equal and are ignored.
	tick := time.NewTicker(reloadDebounce + 150*time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case got := <-ch:
			if got.Jobs.Concurrency != 3 {
				t.Fatalf("Concurrency = %d, want 3", got.Jobs.Concurrency)
			}
			cancel()
			<-done
			return
		case <-tick.C:
			// The watcher starts asynchronously; rewrite until it sees a write.
			writeFile(t, dir, "fintrack.json", `{"storage": {"driver": "memory"}, "jobs": {"concurrency": 3}}`)
		case <-deadline:
			t.Fatalf("no reload within deadline")
		}
	}
}

func TestManagerWatchKeepsConfigOnInvalidReload(t *testing.T) {
	t.Parallel()

	p := writeFile(t, t.TempDir(), "fintrack.json", `{"storage": {"driver": "memory"}}`)
	m := NewManager(p)
	m.lookup = noEnv
	before, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	writeFile(t, filepath.Dir(p), "fintrack.json", `{"storage": {"driver": "floppy"}}`)
	m.reload(context.Background())
	if m.Get() != before {
		t.Fatalf("invalid reload replaced the committed config")
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	a := Default()
	b := Default()
	b.Timezone = "Asia/Tokyo"
	b.Push.Telegram.Token = "new-token"
	b.Jobs.Concurrency = 2

	changed, attrs := SummarizeChange(a, b)
	want := []string{"timezone", "push", "jobs"}
	if !slices.Equal(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if len(attrs) == 0 {
		t.Fatalf("no attrs")
	}

	if changed, _ := SummarizeChange(a, Default()); len(changed) != 0 {
		t.Fatalf("identical configs reported %v", changed)
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	tests := []struct {
		raw     string
		want    time.Duration
		wantErr bool
	}{
		{"", 0, false},
		{"90s", 90 * time.Second, false},
		{" 2m ", 2 * time.Minute, false},
		{"-1s", 0, true},
		{"soon", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseDurationField("x", tt.raw)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseDurationField(%q) err = %v, wantErr %v", tt.raw, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseDurationField(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
	if got := MustDuration("", time.Minute); got != time.Minute {
		t.Fatalf("MustDuration default = %v", got)
	}
}
