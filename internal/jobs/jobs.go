// Package jobs binds the recurrence passes and reminder runs to the
// scheduler under stable names, and records every run in the audit trail.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fintrack/internal/recurrence"
	"fintrack/internal/reminder"
	"fintrack/internal/task/scheduler"
)

const (
	Recurring     = "recurring.daily"
	Recovery      = "recurring.recover"
	DailyReminder = "reminder.daily"
	Weekly        = "reminder.weekly"
	MonthlyIncome = "reminder.monthly_income"
)

// Names lists every job in registration order.
func Names() []string {
	return []string{Recurring, Recovery, DailyReminder, Weekly, MonthlyIncome}
}

// Registrar is the scheduler subset Bind needs.
type Registrar interface {
	Register(name, schedule string, timeout time.Duration, job scheduler.Job) error
}

// Schedule is the trigger of one job. A disabled job is registered without
// a trigger so it still runs on demand.
type Schedule struct {
	Enabled bool
	Spec    string
	Timeout time.Duration
}

// Set holds the run functions behind the job names.
type Set struct {
	Recurring     func(ctx context.Context) (recurrence.Result, error)
	Recovery      func(ctx context.Context) (recurrence.Result, error)
	DailyReminder func(ctx context.Context) (reminder.Result, error)
	Weekly        func(ctx context.Context) (reminder.Result, error)
	MonthlyIncome func(ctx context.Context) (reminder.Result, error)
}

// NewSet wires the standard runners.
func NewSet(engine *recurrence.Engine, sweep *recurrence.Sweep, rem *reminder.Service) Set {
	return Set{
		Recurring:     engine.Run,
		Recovery:      sweep.Run,
		DailyReminder: rem.RunDaily,
		Weekly:        rem.RunWeekly,
		MonthlyIncome: rem.RunMonthlyIncome,
	}
}

func (s Set) jobs() map[string]scheduler.Job {
	return map[string]scheduler.Job{
		Recurring:     counted(s.Recurring),
		Recovery:      counted(s.Recovery),
		DailyReminder: counted(s.DailyReminder),
		Weekly:        counted(s.Weekly),
		MonthlyIncome: counted(s.MonthlyIncome),
	}
}

type counter interface{ Counts() map[string]int }

func counted[R counter](fn func(ctx context.Context) (R, error)) scheduler.Job {
	if fn == nil {
		return nil
	}
	return func(ctx context.Context) (map[string]int, error) {
		r, err := fn(ctx)
		return r.Counts(), err
	}
}

// Bind registers every job of set with r. It is also used on config reload:
// registering an existing name replaces its trigger.
func Bind(r Registrar, set Set, schedules map[string]Schedule) error {
	jobs := set.jobs()
	var errs []error
	for _, name := range Names() {
		job := jobs[name]
		if job == nil {
			errs = append(errs, fmt.Errorf("%s: no runner", name))
			continue
		}
		sc := schedules[name]
		spec := sc.Spec
		if !sc.Enabled {
			spec = ""
		}
		if err := r.Register(name, spec, sc.Timeout, job); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
