// Package clock provides the service's notion of "now" in its single civil
// time zone. Recurrence and reminder logic read time only through Clock so
// tests can pin it.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/domain"
)

type Clock interface {
	Now() time.Time
}

// System reads the wall clock and converts it to the service zone. The zone
// can be swapped at runtime when the configuration changes.
type System struct {
	loc atomic.Pointer[time.Location]
}

func New(loc *time.Location) *System {
	s := &System{}
	s.SetLocation(loc)
	return s
}

func (s *System) SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	s.loc.Store(loc)
}

func (s *System) Location() *time.Location { return s.loc.Load() }

func (s *System) Now() time.Time {
	return time.Now().In(s.loc.Load())
}

// Fixed is a settable clock for tests and one-shot replays.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// Today returns the civil date of c.Now().
func Today(c Clock) domain.Date { return domain.DateOf(c.Now()) }
