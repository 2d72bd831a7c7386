package recurrence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/clock"
	"fintrack/internal/domain"
	"fintrack/internal/storage"
	logx "fintrack/pkg/logx"
)

func at(y int, m time.Month, d int) *clock.Fixed {
	return clock.NewFixed(time.Date(y, m, d, 0, 5, 0, 0, time.UTC))
}

type fixture struct {
	t  *testing.T
	st *storage.Memory
}

func newFixture(t *testing.T, users ...string) fixture {
	t.Helper()
	st := storage.NewMemory()
	for _, u := range users {
		if err := st.PutUser(context.Background(), domain.User{ID: u}); err != nil {
			t.Fatalf("PutUser: %v", err)
		}
	}
	return fixture{t: t, st: st}
}

func (f fixture) def(id, user string, anchor int, freq domain.Frequency, amount string) domain.RecurringDefinition {
	f.t.Helper()
	d := domain.RecurringDefinition{
		ID:        id,
		UserID:    user,
		Name:      "def " + id,
		Amount:    decimal.RequireFromString(amount),
		Category:  "bills",
		AnchorDay: anchor,
		Frequency: freq,
		Active:    true,
	}
	if err := f.st.PutRecurring(context.Background(), d); err != nil {
		f.t.Fatalf("PutRecurring: %v", err)
	}
	return d
}

func (f fixture) events(recurringID string) []domain.LedgerEvent {
	f.t.Helper()
	evs, err := f.st.ListEvents(context.Background(), storage.EventFilter{RecurringID: recurringID})
	if err != nil {
		f.t.Fatalf("ListEvents: %v", err)
	}
	return evs
}

func TestEngineCreatesOnAnchorDay(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1", "u2")
	f.def("rent", "u1", 15, domain.Monthly, "1200.50")
	f.def("gym", "u2", 15, domain.Monthly, "-30")
	f.def("other-day", "u1", 16, domain.Monthly, "10")

	e := NewEngine(f.st, at(2024, time.March, 15), logx.Nop(), Config{Concurrency: 2})
	res, err := e.Run(context.Background())
	if err != nil {
		t.Fatalf("Run err = %v", err)
	}
	want := Result{Users: 2, Scanned: 2, Created: 2}
	if res != want {
		t.Fatalf("Run = %+v, want %+v", res, want)
	}

	rent := f.events("rent")
	if len(rent) != 1 {
		t.Fatalf("rent events = %d, want 1", len(rent))
	}
	ev := rent[0]
	if ev.Date.String() != "2024-03-15" || ev.Source != domain.SourceEngine || !ev.IsRecurring || ev.RecurringID != "rent" {
		t.Fatalf("event = %+v", ev)
	}
	if !ev.Amount.Equal(decimal.RequireFromString("1200.50")) {
		t.Fatalf("amount = %s", ev.Amount)
	}
	if ev.ID != domain.RecurringEventID("rent", "2024-03") {
		t.Fatalf("id = %s, want deterministic", ev.ID)
	}
	if gym := f.events("gym"); len(gym) != 1 || !gym[0].Amount.IsZero() {
		t.Fatalf("gym events = %+v, want one zero-amount event", gym)
	}
	if n := len(f.events("other-day")); n != 0 {
		t.Fatalf("other-day events = %d, want 0", n)
	}

	res, err = e.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run err = %v", err)
	}
	if res.Created != 0 || res.Skipped != 2 {
		t.Fatalf("second Run = %+v, want all skipped", res)
	}
}

func TestEngineFrequencyGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		freq  domain.Frequency
		month time.Month
		want  int
	}{
		{domain.Monthly, time.February, 1},
		{domain.Quarterly, time.January, 1},
		{domain.Quarterly, time.February, 0},
		{domain.Quarterly, time.October, 1},
		{domain.Semiannual, time.July, 1},
		{domain.Semiannual, time.April, 0},
		{domain.Annual, time.January, 1},
		{domain.Annual, time.December, 0},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.freq)+"/"+tt.month.String(), func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, "u1")
			f.def("d", "u1", 3, tt.freq, "5")
			res, err := NewEngine(f.st, at(2024, tt.month, 3), logx.Nop(), Config{}).Run(context.Background())
			if err != nil {
				t.Fatalf("Run err = %v", err)
			}
			if res.Created != tt.want || res.Scanned != 1 {
				t.Fatalf("Run = %+v, want Created=%d", res, tt.want)
			}
		})
	}
}

func TestEngineDeactivatesExpired(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1")
	d := f.def("old", "u1", 10, domain.Monthly, "5")
	end := domain.NewDate(2024, time.February, 28)
	d.EndDate = &end
	if err := f.st.PutRecurring(context.Background(), d); err != nil {
		t.Fatalf("PutRecurring: %v", err)
	}

	res, err := NewEngine(f.st, at(2024, time.March, 10), logx.Nop(), Config{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run err = %v", err)
	}
	if res.Deactivated != 1 || res.Created != 0 {
		t.Fatalf("Run = %+v, want Deactivated=1", res)
	}
	defs, _ := f.st.ListRecurring(context.Background(), storage.RecurringFilter{UserID: "u1"})
	if len(defs) != 1 || defs[0].Active {
		t.Fatalf("definition = %+v, want kept and inactive", defs)
	}
}

func TestEngineShortMonthClamp(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1")
	f.def("d31", "u1", 31, domain.Monthly, "1")
	f.def("d30", "u1", 30, domain.Monthly, "1")

	res, err := NewEngine(f.st, at(2024, time.February, 28), logx.Nop(), Config{}).Run(context.Background())
	if err != nil || res.Created != 0 {
		t.Fatalf("Feb 28 (leap year) Run = %+v, %v; want nothing", res, err)
	}

	res, err = NewEngine(f.st, at(2024, time.February, 29), logx.Nop(), Config{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run err = %v", err)
	}
	if res.Created != 2 {
		t.Fatalf("Feb 29 Run = %+v, want Created=2", res)
	}
	if evs := f.events("d31"); len(evs) != 1 || evs[0].Date.String() != "2024-02-29" {
		t.Fatalf("d31 events = %+v", evs)
	}
}

func TestSweepBackfills(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1")
	f.def("a5", "u1", 5, domain.Monthly, "1")
	f.def("a10", "u1", 10, domain.Quarterly, "1")
	f.def("a20", "u1", 20, domain.Monthly, "1")

	clk := at(2024, time.February, 15)
	res, err := NewSweep(f.st, clk, logx.Nop(), Config{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run err = %v", err)
	}
	if res != (Result{Users: 1, Scanned: 2, Created: 2}) {
		t.Fatalf("Run = %+v", res)
	}
	evs := f.events("a5")
	if len(evs) != 1 || evs[0].Date.String() != "2024-02-05" || evs[0].Source != domain.SourceRecovery {
		t.Fatalf("a5 events = %+v", evs)
	}
	if n := len(f.events("a20")); n != 0 {
		t.Fatalf("a20 events = %d, want 0", n)
	}

	res, err = NewSweep(f.st, clk, logx.Nop(), Config{}).Run(context.Background())
	if err != nil || res.Created != 0 || res.Skipped != 2 {
		t.Fatalf("second Run = %+v, %v; want all skipped", res, err)
	}
}

func TestSweepRespectFrequency(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1")
	f.def("q", "u1", 1, domain.Quarterly, "1")

	res, err := NewSweep(f.st, at(2024, time.February, 15), logx.Nop(), Config{RespectFrequency: true}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run err = %v", err)
	}
	if res.Created != 0 || res.Skipped != 1 {
		t.Fatalf("Run = %+v, want gated", res)
	}
}

func TestSweepSkipsWhatEngineCreated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1")
	f.def("rent", "u1", 1, domain.Monthly, "900")
	clk := at(2024, time.May, 1)

	if res, err := NewEngine(f.st, clk, logx.Nop(), Config{}).Run(context.Background()); err != nil || res.Created != 1 {
		t.Fatalf("engine Run = %+v, %v", res, err)
	}
	clk.Set(time.Date(2024, time.May, 20, 6, 0, 0, 0, time.UTC))
	res, err := NewSweep(f.st, clk, logx.Nop(), Config{}).Run(context.Background())
	if err != nil || res.Created != 0 || res.Skipped != 1 {
		t.Fatalf("sweep Run = %+v, %v; want skipped", res, err)
	}
}

func TestEngineSkipsWhatSweepCreated(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1")
	f.def("rent", "u1", 12, domain.Monthly, "900")
	clk := at(2024, time.June, 12)

	if res, err := NewSweep(f.st, clk, logx.Nop(), Config{}).Run(context.Background()); err != nil || res.Created != 1 {
		t.Fatalf("sweep Run = %+v, %v", res, err)
	}
	res, err := NewEngine(f.st, clk, logx.Nop(), Config{}).Run(context.Background())
	if err != nil {
		t.Fatalf("engine Run err = %v", err)
	}
	if res != (Result{Users: 1, Scanned: 1, Skipped: 1}) {
		t.Fatalf("engine Run = %+v, want the sweep's event to stand", res)
	}
	evs := f.events("rent")
	if len(evs) != 1 || evs[0].Source != domain.SourceRecovery {
		t.Fatalf("events = %+v, want one recovery event", evs)
	}
}

// racyStore reports "no event yet" so both passes reach CreateEvent.
type racyStore struct {
	*storage.Memory
}

func (racyStore) HasRecurringEvent(context.Context, string, string, domain.Date, domain.Date) (bool, error) {
	return false, nil
}

func TestConcurrentPassesCreateOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1")
	f.def("rent", "u1", 7, domain.Monthly, "900")
	st := racyStore{f.st}
	clk := at(2024, time.June, 7)

	var wg sync.WaitGroup
	results := make([]Result, 6)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			if i%2 == 0 {
				results[i], err = NewEngine(st, clk, logx.Nop(), Config{}).Run(context.Background())
			} else {
				results[i], err = NewSweep(st, clk, logx.Nop(), Config{}).Run(context.Background())
			}
			if err != nil {
				t.Errorf("Run err = %v", err)
			}
		}(i)
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		created += r.Created
		if r.Errors != 0 {
			t.Fatalf("result = %+v, want no errors", r)
		}
	}
	if created != 1 {
		t.Fatalf("created = %d, want 1", created)
	}
	if n := len(f.events("rent")); n != 1 {
		t.Fatalf("events = %d, want 1", n)
	}
}

type failingStore struct {
	*storage.Memory
	listUsersErr error
	listDefsFor  string
}

func (s failingStore) ListUserIDs(ctx context.Context) ([]string, error) {
	if s.listUsersErr != nil {
		return nil, s.listUsersErr
	}
	return s.Memory.ListUserIDs(ctx)
}

func (s failingStore) ListRecurring(ctx context.Context, f storage.RecurringFilter) ([]domain.RecurringDefinition, error) {
	if f.UserID == s.listDefsFor {
		return nil, errors.New("read failed")
	}
	return s.Memory.ListRecurring(ctx, f)
}

func TestRunErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "bad", "good")
	f.def("g", "good", 2, domain.Monthly, "1")
	clk := at(2024, time.July, 2)

	boom := errors.New("users unavailable")
	_, err := NewEngine(failingStore{Memory: f.st, listUsersErr: boom}, clk, logx.Nop(), Config{}).Run(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("Run err = %v, want %v", err, boom)
	}

	res, err := NewEngine(failingStore{Memory: f.st, listDefsFor: "bad"}, clk, logx.Nop(), Config{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run err = %v, want nil", err)
	}
	if res.Users != 2 || res.Errors != 1 || res.Created != 1 {
		t.Fatalf("Run = %+v, want one error and one created", res)
	}
}

func TestRunCanceled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, "u1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSweep(f.st, at(2024, time.July, 2), logx.Nop(), Config{}).Run(ctx); err == nil {
		t.Fatalf("Run on canceled context: want error")
	}
}
