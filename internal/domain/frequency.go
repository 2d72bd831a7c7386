package domain

import (
	"fmt"
	"strings"
	"time"
)

// Frequency is the cadence of a recurring definition.
type Frequency string

const (
	Monthly    Frequency = "monthly"
	Quarterly  Frequency = "quarterly"
	Semiannual Frequency = "semiannual"
	Annual     Frequency = "annual"
)

func ParseFrequency(s string) (Frequency, error) {
	f := Frequency(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown frequency %q", s)
	}
	return f, nil
}

func (f Frequency) Valid() bool {
	switch f {
	case Monthly, Quarterly, Semiannual, Annual:
		return true
	}
	return false
}

// OccursIn reports whether month is an occurrence month for f.
// Quarterly runs in Jan/Apr/Jul/Oct, semiannual in Jan/Jul, annual in Jan.
func (f Frequency) OccursIn(month time.Month) bool {
	switch f {
	case Monthly:
		return true
	case Quarterly:
		return month == time.January || month == time.April || month == time.July || month == time.October
	case Semiannual:
		return month == time.January || month == time.July
	case Annual:
		return month == time.January
	}
	return false
}
