package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestFrequencyOccursIn(t *testing.T) {
	t.Parallel()

	tests := []struct {
		f      Frequency
		months []time.Month
	}{
		{Monthly, []time.Month{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}},
		{Quarterly, []time.Month{1, 4, 7, 10}},
		{Semiannual, []time.Month{1, 7}},
		{Annual, []time.Month{1}},
	}
	for _, tt := range tests {
		want := map[time.Month]bool{}
		for _, m := range tt.months {
			want[m] = true
		}
		for m := time.January; m <= time.December; m++ {
			if got := tt.f.OccursIn(m); got != want[m] {
				t.Fatalf("%s.OccursIn(%s) = %v, want %v", tt.f, m, got, want[m])
			}
		}
	}
	if Frequency("weekly").OccursIn(time.January) {
		t.Fatalf("unknown frequency should never occur")
	}
}

func TestParseFrequency(t *testing.T) {
	t.Parallel()

	if f, err := ParseFrequency(" Quarterly "); err != nil || f != Quarterly {
		t.Fatalf("ParseFrequency = %q, %v", f, err)
	}
	if _, err := ParseFrequency("biweekly"); err == nil {
		t.Fatalf("expected error for biweekly")
	}
}

func TestClampAmount(t *testing.T) {
	t.Parallel()

	if got := ClampAmount(decimal.NewFromInt(-5)); !got.IsZero() {
		t.Fatalf("ClampAmount(-5) = %s, want 0", got)
	}
	if got := ClampAmount(decimal.RequireFromString("12.50")); !got.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("ClampAmount(12.50) = %s", got)
	}
}

func TestRecurringEventIDDeterministic(t *testing.T) {
	t.Parallel()

	a := RecurringEventID("rec-1", "2024-05")
	if a != RecurringEventID("rec-1", "2024-05") {
		t.Fatalf("same inputs produced different IDs")
	}
	if a == RecurringEventID("rec-1", "2024-06") {
		t.Fatalf("different periods produced the same ID")
	}
	if a == RecurringEventID("rec-2", "2024-05") {
		t.Fatalf("different definitions produced the same ID")
	}
}

func TestDefinitionExpiredAndAnchor(t *testing.T) {
	t.Parallel()

	end := NewDate(2024, time.March, 31)
	def := RecurringDefinition{AnchorDay: 31, EndDate: &end}
	if def.Expired(end) {
		t.Fatalf("definition should not be expired on its end date")
	}
	if !def.Expired(end.AddDays(1)) {
		t.Fatalf("definition should be expired the day after its end date")
	}
	if got := def.EffectiveAnchor(NewDate(2024, time.April, 2)); got != 30 {
		t.Fatalf("EffectiveAnchor in April = %d, want 30", got)
	}
}

func TestSentMarkerKeyRoundTrip(t *testing.T) {
	t.Parallel()

	m := SentMarker{Date: NewDate(2024, time.May, 6), Hour: 9, Minute: 5}
	if m.Key() != "2024-05-06T09:05" {
		t.Fatalf("Key = %q", m.Key())
	}
	got, err := ParseSentMarker(m.Key())
	if err != nil || got != m {
		t.Fatalf("ParseSentMarker = %+v, %v", got, err)
	}
	if _, err := ParseSentMarker("2024-05-06 09:05"); err == nil {
		t.Fatalf("expected error for missing T separator")
	}
}
