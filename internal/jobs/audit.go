package jobs

import (
	"context"
	"encoding/json"

	"fintrack/internal/eventbus"
	"fintrack/internal/storage"
	logx "fintrack/pkg/logx"
)

type AuditStore interface {
	AppendAudit(ctx context.Context, e storage.AuditEntry) error
}

// AuditWriter turns job events into audit rows.
type AuditWriter struct {
	store AuditStore
	log   logx.Logger
}

func NewAuditWriter(store AuditStore, log logx.Logger) *AuditWriter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &AuditWriter{store: store, log: log.With(logx.String("comp", "audit"))}
}

// Record stores e if it is a job event. Other events are ignored.
func (a *AuditWriter) Record(ctx context.Context, e eventbus.Event) error {
	entry, ok := auditEntry(e)
	if !ok {
		return nil
	}
	return a.store.AppendAudit(ctx, entry)
}

func auditEntry(e eventbus.Event) (storage.AuditEntry, bool) {
	switch d := e.Data.(type) {
	case eventbus.JobFinished:
		entry := storage.AuditEntry{
			Job:       d.Name,
			StartedAt: d.Started,
			Duration:  d.Duration,
			Status:    storage.AuditOK,
			Error:     d.Err,
		}
		if d.Err != "" {
			entry.Status = storage.AuditFailed
		}
		if len(d.Counts) > 0 {
			if b, err := json.Marshal(d.Counts); err == nil {
				entry.Counts = string(b)
			}
		}
		return entry, true
	case eventbus.JobSkipped:
		return storage.AuditEntry{Job: d.Name, StartedAt: d.At, Status: storage.AuditSkipped}, true
	}
	return storage.AuditEntry{}, false
}

// Consume records job events from bus until ctx ends. Write failures are
// logged and do not stop the loop.
func (a *AuditWriter) Consume(ctx context.Context, bus eventbus.Bus) error {
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
			if err := a.Record(ctx, e); err != nil {
				a.log.Warn("audit write failed", logx.String("type", e.Type), logx.Err(err))
			}
		}
	}
}
