package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
)

// MinGap returns the shortest distance between consecutive fire times of
// schedule over the next samples firings, evaluated in loc. Config
// validation uses it to bound how often a job may run.
func MinGap(schedule string, loc *time.Location, samples int) (time.Duration, error) {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return 0, err
	}
	if ps.Kind == SpecInterval {
		return ps.Every, nil
	}
	p := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	sched, err := p.Parse(ps.Cron)
	if err != nil {
		return 0, err
	}
	if loc == nil {
		loc = time.Local
	}
	if samples < 2 {
		samples = 2
	}
	// A fixed origin keeps the result independent of when validation runs.
	t := time.Date(2024, time.January, 1, 0, 0, 0, 0, loc)
	prev := sched.Next(t)
	var gap time.Duration
	for i := 1; i < samples && !prev.IsZero(); i++ {
		next := sched.Next(prev)
		if next.IsZero() {
			break
		}
		if d := next.Sub(prev); gap == 0 || d < gap {
			gap = d
		}
		prev = next
	}
	return gap, nil
}
