package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDateStringSortsChronologically(t *testing.T) {
	t.Parallel()

	a := NewDate(2024, time.September, 30)
	b := NewDate(2024, time.October, 1)
	if !(a.String() < b.String()) {
		t.Fatalf("%s should sort before %s", a, b)
	}
	if !a.Before(b) || b.Before(a) {
		t.Fatalf("Before mismatch for %s / %s", a, b)
	}
}

func TestDateMonthRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in        Date
		wantFirst string
		wantLast  string
	}{
		{NewDate(2024, time.February, 14), "2024-02-01", "2024-02-29"},
		{NewDate(2023, time.February, 1), "2023-02-01", "2023-02-28"},
		{NewDate(2024, time.December, 31), "2024-12-01", "2024-12-31"},
		{NewDate(2024, time.April, 30), "2024-04-01", "2024-04-30"},
	}
	for _, tt := range tests {
		first, last := tt.in.MonthRange()
		if first.String() != tt.wantFirst || last.String() != tt.wantLast {
			t.Fatalf("MonthRange(%s) = %s..%s, want %s..%s", tt.in, first, last, tt.wantFirst, tt.wantLast)
		}
	}
}

func TestDateClampDay(t *testing.T) {
	t.Parallel()

	feb := NewDate(2023, time.February, 10)
	if got := feb.ClampDay(31); got != 28 {
		t.Fatalf("ClampDay(31) in Feb 2023 = %d, want 28", got)
	}
	if got := feb.ClampDay(15); got != 15 {
		t.Fatalf("ClampDay(15) = %d, want 15", got)
	}
	if !NewDate(2023, time.February, 28).IsLastDayOfMonth() {
		t.Fatalf("2023-02-28 should be the last day of month")
	}
}

func TestDatePeriodKeyAndParse(t *testing.T) {
	t.Parallel()

	d, err := ParseDate("2024-07-05")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if d.PeriodKey() != "2024-07" {
		t.Fatalf("PeriodKey = %q, want 2024-07", d.PeriodKey())
	}
	if _, err := ParseDate("2024-13-01"); err == nil {
		t.Fatalf("expected error for month 13")
	}
}

func TestDateJSON(t *testing.T) {
	t.Parallel()

	type wrap struct {
		D Date `json:"d"`
	}
	b, err := json.Marshal(wrap{D: NewDate(2024, time.March, 9)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(b) != `{"d":"2024-03-09"}` {
		t.Fatalf("Marshal = %s", b)
	}
	var w wrap
	if err := json.Unmarshal(b, &w); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if w.D != NewDate(2024, time.March, 9) {
		t.Fatalf("round trip = %v", w.D)
	}
}

func TestDateOfUsesLocation(t *testing.T) {
	t.Parallel()

	jakarta := time.FixedZone("WIB", 7*3600)
	utc := time.Date(2024, time.May, 31, 20, 0, 0, 0, time.UTC)
	if got := DateOf(utc.In(jakarta)).String(); got != "2024-06-01" {
		t.Fatalf("DateOf in +07 = %s, want 2024-06-01", got)
	}
}
