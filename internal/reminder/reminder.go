// Package reminder decides which users are due for a daily, weekly or
// monthly-income reminder and hands the payloads to the dispatcher.
//
// All decisions use the single service zone of the clock. Weekly and
// monthly-income reminders keep a per-user last-sent marker that is
// advanced only after at least one successful push.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"fintrack/internal/clock"
	"fintrack/internal/domain"
	"fintrack/internal/notifier"
	"fintrack/internal/runtime/fanout"
	"fintrack/internal/storage"
	logx "fintrack/pkg/logx"
)

// DefaultTolerance is the weekly trigger window, in minutes, on each side
// of the configured minute.
const DefaultTolerance = 2

type Store interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	MarkWeeklySent(ctx context.Context, userID string, m domain.SentMarker) error
	MarkMonthlyIncomeSent(ctx context.Context, userID, period string) error
}

// Deliverer sends one payload to a user's endpoints.
type Deliverer interface {
	Deliver(ctx context.Context, userID string, p notifier.Payload) (notifier.Result, error)
}

type Config struct {
	Concurrency int
	// Tolerance is in minutes; 0 means DefaultTolerance, negative means exact.
	Tolerance int
}

type Result struct {
	Users    int
	Eligible int
	Sent     int
	Skipped  int
	Failed   int
	Errors   int
}

func (r *Result) add(o Result) {
	r.Users += o.Users
	r.Eligible += o.Eligible
	r.Sent += o.Sent
	r.Skipped += o.Skipped
	r.Failed += o.Failed
	r.Errors += o.Errors
}

func (r Result) Counts() map[string]int {
	return map[string]int{
		"users":    r.Users,
		"eligible": r.Eligible,
		"sent":     r.Sent,
		"skipped":  r.Skipped,
		"failed":   r.Failed,
		"errors":   r.Errors,
	}
}

type Service struct {
	store Store
	out   Deliverer
	clock clock.Clock
	log   logx.Logger

	mu  sync.RWMutex
	cfg Config
}

func New(store Store, out Deliverer, clk clock.Clock, log logx.Logger, cfg Config) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{store: store, out: out, clock: clk, log: log.With(logx.String("comp", "reminder"))}
	s.Apply(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = fanout.DefaultLimit
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = DefaultTolerance
	} else if cfg.Tolerance < 0 {
		cfg.Tolerance = 0
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// decideFunc inspects one user and reports whether a payload is due.
// onSent runs after a delivery with at least one successful push.
type decideFunc func(u domain.User) (due bool, kind notifier.Kind, onSent func(ctx context.Context) error)

func (s *Service) run(ctx context.Context, name string, decide decideFunc) (Result, error) {
	var res Result
	cfg := s.config()
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list users: %w", err)
	}

	var mu sync.Mutex
	err = fanout.Each(ctx, cfg.Concurrency, ids, func(ctx context.Context, id string) {
		r := s.one(ctx, name, id, decide)
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

func (s *Service) one(ctx context.Context, name, id string, decide decideFunc) Result {
	var r Result
	log := s.log.With(logx.String("job", name), logx.String("user", id))

	u, err := s.store.GetUser(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return r
	}
	if err != nil {
		log.Warn("load user failed", logx.Err(err))
		r.Errors++
		return r
	}

	due, kind, onSent := decide(u)
	if !due {
		return r
	}
	r.Eligible++

	d, err := s.out.Deliver(ctx, id, notifier.Render(kind, u))
	r.Sent += d.Sent
	r.Failed += d.Failed
	if err != nil {
		log.Warn("deliver failed", logx.Err(err))
		r.Errors++
		return r
	}
	if d.Sent == 0 {
		if d.Failed == 0 {
			// No endpoints.
			r.Skipped++
		}
		return r
	}
	if onSent != nil {
		if err := onSent(ctx); err != nil {
			log.Warn("marker update failed", logx.Err(err))
			r.Errors++
		}
	}
	return r
}

// RunDaily sends the daily reminder to every user who enabled it.
func (s *Service) RunDaily(ctx context.Context) (Result, error) {
	return s.run(ctx, "daily", func(u domain.User) (bool, notifier.Kind, func(context.Context) error) {
		return u.Preferences.Daily.Enabled, notifier.KindDaily, nil
	})
}

// RunWeekly sends the weekly reminder to users whose configured weekday and
// hour match now and whose minute is within the tolerance window. A marker
// inside the same window today suppresses a repeat.
func (s *Service) RunWeekly(ctx context.Context) (Result, error) {
	now := s.clock.Now()
	today := domain.DateOf(now)
	tol := s.config().Tolerance

	return s.run(ctx, "weekly", func(u domain.User) (bool, notifier.Kind, func(context.Context) error) {
		w := u.Preferences.Weekly
		if !w.Enabled || now.Weekday() != w.Weekday || now.Hour() != w.Hour || absInt(now.Minute()-w.Minute) > tol {
			return false, "", nil
		}
		if m := w.LastSent; m != nil && m.Date == today && m.Hour == w.Hour && absInt(m.Minute-w.Minute) <= tol {
			return false, "", nil
		}
		marker := domain.SentMarker{Date: today, Hour: now.Hour(), Minute: now.Minute()}
		return true, notifier.KindWeekly, func(ctx context.Context) error {
			return s.store.MarkWeeklySent(ctx, u.ID, marker)
		}
	})
}

// RunMonthlyIncome nudges users without a recorded income on their
// configured day of the month, at most once per period.
func (s *Service) RunMonthlyIncome(ctx context.Context) (Result, error) {
	today := clock.Today(s.clock)
	period := today.PeriodKey()

	return s.run(ctx, "monthly_income", func(u domain.User) (bool, notifier.Kind, func(context.Context) error) {
		m := u.Preferences.MonthlyIncome
		if !m.Enabled || m.Day < 1 || today.Day != today.ClampDay(m.Day) || u.HasIncome() {
			return false, "", nil
		}
		if m.LastSentPeriod == period {
			return false, "", nil
		}
		return true, notifier.KindMonthlyIncome, func(ctx context.Context) error {
			return s.store.MarkMonthlyIncomeSent(ctx, u.ID, period)
		}
	})
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
