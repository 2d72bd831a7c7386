package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		raw   string
		kind  SpecKind
		cron  string
		every time.Duration
	}{
		{name: "cron", raw: "5 0 * * *", kind: SpecCron, cron: "5 0 * * *"},
		{name: "descriptor", raw: "@daily", kind: SpecCron, cron: "@daily"},
		{name: "prefixed cron", raw: "cron:0 */6 * * *", kind: SpecCron, cron: "0 */6 * * *"},
		{name: "duration", raw: "55m", kind: SpecInterval, every: 55 * time.Minute},
		{name: "prefixed interval", raw: "interval:45s", kind: SpecInterval, every: 45 * time.Second},
		{name: "every prefix hhmm", raw: "every: 00:50", kind: SpecInterval, every: 50 * time.Minute},
		{name: "hhmm", raw: "02:30", kind: SpecInterval, every: 150 * time.Minute},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if got.Cron != tt.cron {
				t.Fatalf("Cron = %q, want %q", got.Cron, tt.cron)
			}
			if got.Every != tt.every {
				t.Fatalf("Every = %v, want %v", got.Every, tt.every)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{"", "not-a-schedule", "0s", "01:75", "cron:", "interval:abc"} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestMinGap(t *testing.T) {
	t.Parallel()
	tests := []struct {
		spec string
		want time.Duration
	}{
		{"0 */6 * * *", 6 * time.Hour},
		{"*/15 * * * *", 15 * time.Minute},
		{"0 9,10 * * *", time.Hour},
		{"2h", 2 * time.Hour},
		{"@every 30m", 30 * time.Minute},
	}
	for _, tt := range tests {
		got, err := MinGap(tt.spec, time.UTC, 48)
		if err != nil {
			t.Fatalf("MinGap(%q) error: %v", tt.spec, err)
		}
		if got != tt.want {
			t.Fatalf("MinGap(%q) = %v, want %v", tt.spec, got, tt.want)
		}
	}
}
