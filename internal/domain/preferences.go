package domain

import (
	"fmt"
	"strconv"
	"time"
)

// Preferences configures the reminder kinds of one user.
type Preferences struct {
	Daily         DailyReminder         `json:"daily"`
	Weekly        WeeklyReminder        `json:"weekly"`
	MonthlyIncome MonthlyIncomeReminder `json:"monthly_income"`
}

type DailyReminder struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message,omitempty"`
}

type WeeklyReminder struct {
	Enabled  bool         `json:"enabled"`
	Weekday  time.Weekday `json:"weekday"`
	Hour     int          `json:"hour"`
	Minute   int          `json:"minute"`
	Message  string       `json:"message,omitempty"`
	LastSent *SentMarker  `json:"last_sent,omitempty"`
}

type MonthlyIncomeReminder struct {
	Enabled        bool   `json:"enabled"`
	Day            int    `json:"day"`
	Message        string `json:"message,omitempty"`
	LastSentPeriod string `json:"last_sent_period,omitempty"`
}

// SentMarker records the civil date and time of the last weekly send.
type SentMarker struct {
	Date   Date `json:"date"`
	Hour   int  `json:"hour"`
	Minute int  `json:"minute"`
}

// Key renders the marker as a sortable string ("2024-05-06T09:30").
func (m SentMarker) Key() string {
	return fmt.Sprintf("%sT%02d:%02d", m.Date.String(), m.Hour, m.Minute)
}

// ParseSentMarker is the inverse of SentMarker.Key.
func ParseSentMarker(s string) (SentMarker, error) {
	var m SentMarker
	if len(s) != len("2006-01-02T15:04") || s[10] != 'T' {
		return m, fmt.Errorf("invalid sent marker %q", s)
	}
	d, err := ParseDate(s[:10])
	if err != nil {
		return m, err
	}
	h, err := strconv.Atoi(s[11:13])
	if err != nil || s[13] != ':' {
		return m, fmt.Errorf("invalid sent marker %q", s)
	}
	mi, err := strconv.Atoi(s[14:16])
	if err != nil {
		return m, fmt.Errorf("invalid sent marker %q", s)
	}
	return SentMarker{Date: d, Hour: h, Minute: mi}, nil
}

// Validate checks the schedule fields of the reminder kinds.
func (p Preferences) Validate() error {
	w := p.Weekly
	if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
		return fmt.Errorf("weekly.weekday %d out of range", w.Weekday)
	}
	if w.Hour < 0 || w.Hour > 23 {
		return fmt.Errorf("weekly.hour %d out of range", w.Hour)
	}
	if w.Minute < 0 || w.Minute > 59 {
		return fmt.Errorf("weekly.minute %d out of range", w.Minute)
	}
	if p.MonthlyIncome.Enabled && (p.MonthlyIncome.Day < 1 || p.MonthlyIncome.Day > 31) {
		return fmt.Errorf("monthly_income.day %d out of range", p.MonthlyIncome.Day)
	}
	return nil
}
