package recurrence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fintrack/internal/clock"
	"fintrack/internal/domain"
	"fintrack/internal/runtime/fanout"
	"fintrack/internal/storage"
	logx "fintrack/pkg/logx"
)

// Store is the storage subset both passes use.
type Store interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	ListRecurring(ctx context.Context, f storage.RecurringFilter) ([]domain.RecurringDefinition, error)
	SetRecurringActive(ctx context.Context, userID, id string, active bool) error
	HasRecurringEvent(ctx context.Context, userID, recurringID string, from, to domain.Date) (bool, error)
	CreateEvent(ctx context.Context, e domain.LedgerEvent) error
}

type Config struct {
	// Concurrency bounds how many users are processed in parallel.
	Concurrency int
	// RespectFrequency applies the frequency month gate in the sweep too.
	RespectFrequency bool
}

// Result aggregates one pass.
type Result struct {
	Users       int
	Scanned     int
	Created     int
	Skipped     int
	Deactivated int
	Errors      int
}

func (r *Result) add(o Result) {
	r.Users += o.Users
	r.Scanned += o.Scanned
	r.Created += o.Created
	r.Skipped += o.Skipped
	r.Deactivated += o.Deactivated
	r.Errors += o.Errors
}

// Counts flattens r for logs, metrics and the audit trail.
func (r Result) Counts() map[string]int {
	return map[string]int{
		"users":       r.Users,
		"scanned":     r.Scanned,
		"created":     r.Created,
		"skipped":     r.Skipped,
		"deactivated": r.Deactivated,
		"errors":      r.Errors,
	}
}

// pass holds what Engine and Sweep share: the store, the clock and the
// per-user fan-out.
type pass struct {
	store Store
	clock clock.Clock
	log   logx.Logger

	mu  sync.RWMutex
	cfg Config
}

func newPass(store Store, clk clock.Clock, log logx.Logger, comp string, cfg Config) *pass {
	if log.IsZero() {
		log = logx.Nop()
	}
	p := &pass{store: store, clock: clk, log: log.With(logx.String("comp", comp))}
	p.Apply(cfg)
	return p
}

func (p *pass) Apply(cfg Config) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = fanout.DefaultLimit
	}
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *pass) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// userFunc processes one user's definitions and returns its counts.
type userFunc func(ctx context.Context, userID string, today domain.Date, cfg Config) Result

func (p *pass) run(ctx context.Context, fn userFunc) (Result, error) {
	var res Result
	cfg := p.config()
	today := clock.Today(p.clock)

	users, err := p.store.ListUserIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}

	var mu sync.Mutex
	err = fanout.Each(ctx, cfg.Concurrency, users, func(ctx context.Context, userID string) {
		r := fn(ctx, userID, today, cfg)
		r.Users = 1
		mu.Lock()
		res.add(r)
		mu.Unlock()
	})
	if err != nil {
		return res, fmt.Errorf("fan-out: %w", err)
	}
	return res, nil
}

// materialize runs the expiry and existence steps for def and creates its
// event on date. It returns the counts for this one definition.
func (p *pass) materialize(ctx context.Context, def domain.RecurringDefinition, today, date domain.Date, src domain.Source) Result {
	var r Result
	log := p.log.With(logx.String("user", def.UserID), logx.String("recurring", def.ID))

	if def.Expired(today) {
		if err := p.store.SetRecurringActive(ctx, def.UserID, def.ID, false); err != nil {
			log.Warn("deactivate failed", logx.Err(err))
			r.Errors++
			return r
		}
		log.Info("recurring expired", logx.String("end_date", def.EndDate.String()))
		r.Deactivated++
		return r
	}

	from, to := date.MonthRange()
	exists, err := p.store.HasRecurringEvent(ctx, def.UserID, def.ID, from, to)
	if err != nil {
		log.Warn("existence check failed", logx.Err(err))
		r.Errors++
		return r
	}
	if exists {
		r.Skipped++
		return r
	}

	ev := domain.EventFromDefinition(def, date, src, time.Now().UTC())
	switch err := p.store.CreateEvent(ctx, ev); {
	case errors.Is(err, storage.ErrDuplicate):
		r.Skipped++
	case err != nil:
		log.Warn("create event failed", logx.Err(err))
		r.Errors++
	default:
		log.Debug("event created", logx.String("date", date.String()), logx.String("source", string(src)))
		r.Created++
	}
	return r
}
