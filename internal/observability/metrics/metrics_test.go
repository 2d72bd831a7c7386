package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"fintrack/internal/eventbus"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	body, _ := io.ReadAll(w.Result().Body)
	return string(body)
}

func TestObserveJobEvents(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := NewCollector(reg, func() uint64 { return 4 })

	c.Observe(eventbus.Event{Type: eventbus.TypeJobFinished, Data: eventbus.JobFinished{
		Name: "recurring.daily", Started: time.Unix(1700000000, 0), Duration: 2 * time.Second,
		Counts: map[string]int{"created": 5, "errors": 0},
	}})
	c.Observe(eventbus.Event{Type: eventbus.TypeJobFinished, Data: eventbus.JobFinished{
		Name: "recurring.daily", Err: "list users: boom",
	}})
	c.Observe(eventbus.Event{Type: eventbus.TypeJobSkipped, Data: eventbus.JobSkipped{Name: "reminder.weekly"}})
	c.Observe(eventbus.Event{Type: eventbus.TypeDelivery, Data: eventbus.Delivery{Kind: "daily", Sent: 1, Pruned: 1, Failed: 1}})

	body := scrape(t, reg)
	for _, want := range []string{
		`fintrack_job_runs_total{job="recurring.daily",status="ok"} 1`,
		`fintrack_job_runs_total{job="recurring.daily",status="failed"} 1`,
		`fintrack_job_items_total{counter="created",job="recurring.daily"} 5`,
		`fintrack_job_last_success_timestamp_seconds{job="recurring.daily"}`,
		`fintrack_job_overlap_skips_total{job="reminder.weekly"} 1`,
		`fintrack_push_deliveries_total{kind="daily",outcome="pruned"} 1`,
		`fintrack_eventbus_dropped_total 4`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("scrape missing %q", want)
		}
	}
	if strings.Contains(body, `counter="errors"`) {
		t.Errorf("zero counters should not create series")
	}
}
