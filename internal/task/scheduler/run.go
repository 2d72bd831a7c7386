package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"fintrack/internal/eventbus"
	logx "fintrack/pkg/logx"
)

// fire is the cron callback.
func (s *Service) fire(d *jobDef) {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	s.runs.Add(1)
	defer s.runs.Done()
	_, _ = s.execute(ctx, d, TriggerCron)
}

// RunNow runs name synchronously on ctx, with the job's budget applied.
// It returns ErrOverlapSkip when a run is already in flight, and the job's
// own error otherwise.
func (s *Service) RunNow(ctx context.Context, name string) (HistoryItem, error) {
	s.mu.Lock()
	d, ok := s.defs[name]
	s.mu.Unlock()
	if !ok {
		return HistoryItem{}, fmt.Errorf("%w: %q", ErrUnknownJob, name)
	}
	return s.execute(ctx, d, TriggerManual)
}

// Names lists registered jobs.
func (s *Service) Names() []string {
	snap := s.Snapshot()
	out := make([]string, len(snap.Schedules))
	for i, it := range snap.Schedules {
		out[i] = it.Name
	}
	return out
}

func (s *Service) execute(ctx context.Context, d *jobDef, trigger string) (HistoryItem, error) {
	start := time.Now()
	item := HistoryItem{Name: d.name, Trigger: trigger, Started: start}

	if !d.state.tryAcquire() {
		item.Skipped = true
		s.log.Warn("run skipped; previous run still in flight", logx.String("job", d.name), logx.String("trigger", trigger))
		s.record(item)
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeJobSkipped, Time: start, Data: eventbus.JobSkipped{Name: d.name, At: start}})
		return item, ErrOverlapSkip
	}
	defer d.state.release()

	runCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	s.log.Debug("job started", logx.String("job", d.name), logx.String("trigger", trigger))
	counts, err := func() (counts map[string]int, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
				s.log.Error("job panicked", logx.String("job", d.name), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			}
		}()
		return d.job(runCtx)
	}()

	item.Duration = time.Since(start)
	item.Counts = counts
	fields := []logx.Field{logx.String("job", d.name), logx.String("trigger", trigger), logx.Duration("took", item.Duration)}
	for k, v := range counts {
		fields = append(fields, logx.Int(k, v))
	}
	if err != nil {
		item.Error = err.Error()
		s.log.Error("job failed", append(fields, logx.Err(err))...)
	} else {
		s.log.Info("job finished", fields...)
	}
	s.record(item)
	s.bus.Publish(eventbus.Event{
		Type: eventbus.TypeJobFinished,
		Time: start,
		Data: eventbus.JobFinished{
			Name:     d.name,
			Trigger:  trigger,
			Started:  start,
			Duration: item.Duration,
			Counts:   counts,
			Err:      item.Error,
		},
	})
	return item, err
}

func (s *Service) record(item HistoryItem) {
	s.mu.Lock()
	size := s.cfg.HistorySize
	s.mu.Unlock()
	if size <= 0 {
		size = defaultHistorySize
	}
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > size {
		s.history = s.history[len(s.history)-size:]
	}
	s.hmu.Unlock()
}
