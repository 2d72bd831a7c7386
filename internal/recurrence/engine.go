package recurrence

import (
	"context"

	"fintrack/internal/clock"
	"fintrack/internal/domain"
	"fintrack/internal/storage"
	logx "fintrack/pkg/logx"
)

// Engine creates today's events for definitions anchored on today.
type Engine struct {
	*pass
}

func NewEngine(store Store, clk clock.Clock, log logx.Logger, cfg Config) *Engine {
	return &Engine{pass: newPass(store, clk, log, "recurrence.engine", cfg)}
}

// Run processes every user. Per-user and per-definition failures are
// counted in Result.Errors; only a failure to list users or a canceled
// context is returned.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	return e.run(ctx, e.user)
}

func (e *Engine) user(ctx context.Context, userID string, today domain.Date, _ Config) Result {
	var r Result
	f := storage.RecurringFilter{UserID: userID, ActiveOnly: true, MinAnchor: today.Day, MaxAnchor: today.Day}
	if today.IsLastDayOfMonth() {
		// Anchors beyond a short month's end are due on its last day.
		f.MaxAnchor = 0
	}
	defs, err := e.store.ListRecurring(ctx, f)
	if err != nil {
		e.log.Warn("list recurring failed", logx.String("user", userID), logx.Err(err))
		r.Errors++
		return r
	}

	for _, def := range defs {
		if ctx.Err() != nil {
			break
		}
		if !def.Active || def.EffectiveAnchor(today) != today.Day {
			continue
		}
		r.Scanned++
		if !def.Expired(today) && !def.Frequency.OccursIn(today.Month) {
			r.Skipped++
			continue
		}
		r.add(e.materialize(ctx, def, today, today, domain.SourceEngine))
	}
	return r
}
