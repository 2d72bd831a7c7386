package app

import (
	"context"
	"slices"
	"strings"
	"time"

	"fintrack/internal/config"
	"fintrack/internal/jobs"
	logx "fintrack/pkg/logx"
)

// zoned is implemented by clocks whose zone can follow the config.
type zoned interface {
	SetLocation(loc *time.Location)
}

// reloadLoop applies published configs until ctx ends. Bursts collapse to
// the newest config.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			notifySystemd(a.log, sdReloading)
			a.applyConfig(last, next)
			notifySystemd(a.log, sdReady)
			last = next
		}
	}
}

// applyConfig pushes the hot-reloadable parts of next into the running
// components. Storage, push and admin changes need a restart.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogging(next))

	if z, ok := a.clock.(zoned); ok {
		z.SetLocation(loadLocation(next.Timezone))
	}
	a.sched.Apply(mapScheduler(next))

	a.engine.Apply(mapRecurrence(next))
	a.sweep.Apply(mapRecurrence(next))
	a.reminders.Apply(mapReminder(next))

	if slices.Contains(sections, "jobs") {
		if err := jobs.Bind(a.sched, a.set, mapSchedules(next)); err != nil {
			a.log.Error("job schedules not fully applied", logx.Err(err))
		}
	}

	for _, s := range sections {
		switch s {
		case "storage", "push", "admin":
			a.log.Warn("config section changed; restart required", logx.String("section", s))
		}
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
