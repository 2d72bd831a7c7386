package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"fintrack/internal/clock"
	"fintrack/internal/config"
	"fintrack/internal/eventbus"
	"fintrack/internal/jobs"
	"fintrack/internal/notifier"
	"fintrack/internal/observability/admin"
	"fintrack/internal/observability/metrics"
	"fintrack/internal/recurrence"
	"fintrack/internal/reminder"
	"fintrack/internal/runtime/supervisor"
	"fintrack/internal/storage"
	"fintrack/internal/task/scheduler"
	logx "fintrack/pkg/logx"
)

// Options controls how the app is built.
type Options struct {
	ConfigPath string
	// At pins the clock for one-shot replays of a past day.
	At time.Time
	// Store replaces the configured store.
	Store storage.Store
}

type App struct {
	cfgm *config.Manager

	log   logx.Logger
	logs  *logx.Service
	clock clock.Clock
	bus   *eventbus.MemBus
	store storage.Store

	engine    *recurrence.Engine
	sweep     *recurrence.Sweep
	reminders *reminder.Service
	sched     *scheduler.Service
	set       jobs.Set

	registry *prometheus.Registry
	metrics  *metrics.Collector
	audit    *jobs.AuditWriter

	sup *supervisor.Supervisor
}

// New loads the configuration and wires every component. Nothing runs
// until Start or RunOnce.
func New(ctx context.Context, opts Options) (*App, error) {
	cfgm := config.NewManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logSvc, log := logx.New(mapLogging(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	loc := loadLocation(cfg.Timezone)
	var clk clock.Clock = clock.New(loc)
	if !opts.At.IsZero() {
		clk = clock.NewFixed(opts.At.In(loc))
	}

	store := opts.Store
	if store == nil {
		sc := mapStorage(cfg)
		store, err = storage.Open(ctx, sc, log)
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		log.Info("storage ready", logx.String("driver", sc.Driver))
	}

	gw, err := newGateway(cfg, log)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("push gateway: %w", err)
	}

	bus := eventbus.New()
	dispatcher := notifier.NewDispatcher(store, gw, log, bus)
	engine := recurrence.NewEngine(store, clk, log, mapRecurrence(cfg))
	sweep := recurrence.NewSweep(store, clk, log, mapRecurrence(cfg))
	reminders := reminder.New(store, dispatcher, clk, log, mapReminder(cfg))
	sched := scheduler.New(mapScheduler(cfg), log, bus)

	set := jobs.NewSet(engine, sweep, reminders)
	if err := jobs.Bind(sched, set, mapSchedules(cfg)); err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("bind jobs: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &App{
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		clock:     clk,
		bus:       bus,
		store:     store,
		engine:    engine,
		sweep:     sweep,
		reminders: reminders,
		sched:     sched,
		set:       set,
		registry:  reg,
		metrics:   metrics.NewCollector(reg, bus.Dropped),
		audit:     jobs.NewAuditWriter(store, log),
	}, nil
}

// Done is closed when the supervisor context ends.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first error of a supervised goroutine.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start runs the triggers, event consumers, config watcher and the admin
// server until Stop.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return errors.New("app already started")
	}
	a.sup = supervisor.New(ctx, a.log)
	sctx := a.sup.Context()

	a.sup.GoRestart("metrics.consume", func(c context.Context) error {
		return a.metrics.Consume(c, a.bus)
	}, time.Second, 30*time.Second)
	a.sup.GoRestart("audit.consume", func(c context.Context) error {
		return a.audit.Consume(c, a.bus)
	}, time.Second, 30*time.Second)

	a.sched.Start(sctx)

	cfg := a.cfgm.Get()
	if ac := mapAdmin(cfg); ac.Enabled {
		handler := admin.NewRouter(ac, admin.Deps{
			Jobs:        a.sched,
			Audit:       a.store,
			Gatherer:    a.registry,
			Goroutines:  a.sup.Snapshot,
			BaseContext: sctx,
			Log:         a.log,
		})
		a.sup.GoRestart("admin.http", func(c context.Context) error {
			return admin.Serve(c, ac, handler, a.log.With(logx.String("comp", "admin")))
		}, time.Second, 30*time.Second)
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go("config.reload", func(c context.Context) error {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
		return nil
	})
	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)
	a.sup.Go("systemd.watchdog", a.watchdog)

	notifySystemd(a.log, sdReady)
	a.log.Info("app started",
		logx.String("tz", a.sched.Location().String()),
		logx.Int("jobs", len(a.sched.Names())),
		logx.String("push", cfg.Push.Driver),
	)
	return nil
}

// RunOnce runs the named jobs in order and returns the joined errors of the
// runs that failed. "all" runs every job.
func (a *App) RunOnce(ctx context.Context, names []string) error {
	if len(names) == 1 && strings.EqualFold(names[0], "all") {
		names = jobs.Names()
	}
	if len(names) == 0 {
		return errors.New("no job named")
	}

	// Job events are subscribed apart from deliveries: a reminder run can
	// publish one delivery per user, and those must not crowd out the
	// job.finished that becomes the audit row. Publish is synchronous, so a
	// run's job event is queued by the time RunNow returns.
	jobEvents, unsubJobs := a.bus.SubscribeTypes(8, eventbus.TypeJobFinished, eventbus.TypeJobSkipped)
	defer unsubJobs()

	deliveries, unsubDeliveries := a.bus.SubscribeTypes(256, eventbus.TypeDelivery)
	observed := make(chan struct{})
	go func() {
		defer close(observed)
		for e := range deliveries {
			a.metrics.Observe(e)
		}
	}()
	defer func() {
		unsubDeliveries()
		<-observed
	}()

	var errs []error
	for _, name := range names {
		name = strings.TrimSpace(name)
		item, err := a.sched.RunNow(ctx, name)
		a.drainJobEvents(ctx, jobEvents)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		a.log.Info("one-shot run finished", logx.String("job", name), logx.Duration("took", item.Duration))
	}
	return errors.Join(errs...)
}

func (a *App) drainJobEvents(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			a.metrics.Observe(e)
			if err := a.audit.Record(ctx, e); err != nil {
				a.log.Warn("audit write failed", logx.String("type", e.Type), logx.Err(err))
			}
		default:
			return
		}
	}
}

// Stop shuts components down in dependency order. Each step is bounded so
// one stuck component cannot stall the rest.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifySystemd(a.log, sdStopping)

	var errs []error
	if a.sup != nil {
		a.step(ctx, "scheduler", 5*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
		if err := a.step(ctx, "supervisor", 3*time.Second, a.sup.Stop); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() }); err != nil {
		errs = append(errs, err)
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// step runs fn with its own deadline and returns fn's error. A step that
// overruns is abandoned and reported as a timeout.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		limit = min(limit, time.Until(dl))
	}
	if limit <= 0 {
		a.log.Warn("stop step skipped; deadline reached", logx.String("name", name))
		return context.DeadlineExceeded
	}
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		return fmt.Errorf("stop step %s: %w", name, stepCtx.Err())
	}
}
