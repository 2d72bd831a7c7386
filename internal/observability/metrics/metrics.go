// Package metrics exposes Prometheus collectors fed from the event bus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fintrack/internal/eventbus"
)

// Collector turns engine events into Prometheus series.
type Collector struct {
	jobRuns     *prometheus.CounterVec
	jobSkipped  *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobItems    *prometheus.CounterVec
	jobLastOK   *prometheus.GaugeVec
	push        *prometheus.CounterVec
}

// NewCollector registers the collectors on reg. dropped, when non-nil,
// reports events lost to slow bus subscribers.
func NewCollector(reg prometheus.Registerer, dropped func() uint64) *Collector {
	c := &Collector{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrack_job_runs_total",
			Help: "Finished job runs by job and status.",
		}, []string{"job", "status"}),
		jobSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrack_job_overlap_skips_total",
			Help: "Triggers skipped because the previous run was still in flight.",
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fintrack_job_duration_seconds",
			Help:    "Wall-clock duration of job runs.",
			Buckets: []float64{.01, .05, .1, .5, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		jobItems: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrack_job_items_total",
			Help: "Per-run result counters summed across runs.",
		}, []string{"job", "counter"}),
		jobLastOK: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fintrack_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}, []string{"job"}),
		push: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fintrack_push_deliveries_total",
			Help: "Push outcomes by reminder kind.",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(c.jobRuns, c.jobSkipped, c.jobDuration, c.jobItems, c.jobLastOK, c.push)
	if dropped != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fintrack_eventbus_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		}, func() float64 { return float64(dropped()) }))
	}
	return c
}

// Observe records one event. Unknown event types are ignored.
func (c *Collector) Observe(e eventbus.Event) {
	switch d := e.Data.(type) {
	case eventbus.JobFinished:
		status := "ok"
		if d.Err != "" {
			status = "failed"
		} else {
			c.jobLastOK.WithLabelValues(d.Name).Set(float64(d.Started.Add(d.Duration).Unix()))
		}
		c.jobRuns.WithLabelValues(d.Name, status).Inc()
		c.jobDuration.WithLabelValues(d.Name).Observe(d.Duration.Seconds())
		for k, v := range d.Counts {
			if v > 0 {
				c.jobItems.WithLabelValues(d.Name, k).Add(float64(v))
			}
		}
	case eventbus.JobSkipped:
		c.jobSkipped.WithLabelValues(d.Name).Inc()
	case eventbus.Delivery:
		c.push.WithLabelValues(d.Kind, "sent").Add(float64(d.Sent))
		c.push.WithLabelValues(d.Kind, "failed").Add(float64(d.Failed))
		c.push.WithLabelValues(d.Kind, "pruned").Add(float64(d.Pruned))
	}
}

// Consume observes events from bus until ctx ends.
func (c *Collector) Consume(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
