package recurrence

import (
	"context"

	"fintrack/internal/clock"
	"fintrack/internal/domain"
	"fintrack/internal/storage"
	logx "fintrack/pkg/logx"
)

// Sweep back-fills events for definitions whose anchor already passed this
// month. It skips the frequency gate unless Config.RespectFrequency is set.
type Sweep struct {
	*pass
}

func NewSweep(store Store, clk clock.Clock, log logx.Logger, cfg Config) *Sweep {
	return &Sweep{pass: newPass(store, clk, log, "recurrence.sweep", cfg)}
}

func (s *Sweep) Run(ctx context.Context) (Result, error) {
	return s.run(ctx, s.user)
}

func (s *Sweep) user(ctx context.Context, userID string, today domain.Date, cfg Config) Result {
	var r Result
	f := storage.RecurringFilter{UserID: userID, ActiveOnly: true, MaxAnchor: today.Day}
	if today.IsLastDayOfMonth() {
		f.MaxAnchor = 0
	}
	defs, err := s.store.ListRecurring(ctx, f)
	if err != nil {
		s.log.Warn("list recurring failed", logx.String("user", userID), logx.Err(err))
		r.Errors++
		return r
	}

	for _, def := range defs {
		if ctx.Err() != nil {
			break
		}
		anchor := def.EffectiveAnchor(today)
		if !def.Active || anchor > today.Day || anchor < 1 {
			continue
		}
		r.Scanned++
		if cfg.RespectFrequency && !def.Expired(today) && !def.Frequency.OccursIn(today.Month) {
			r.Skipped++
			continue
		}
		date := domain.NewDate(today.Year, today.Month, anchor)
		r.add(s.materialize(ctx, def, today, date, domain.SourceRecovery))
	}
	return r
}
