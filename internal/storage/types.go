package storage

import (
	"context"
	"errors"
	"time"

	"fintrack/internal/domain"
)

var (
	ErrNotFound  = errors.New("storage: not found")
	ErrDuplicate = errors.New("storage: duplicate id")
)

// Config configures storage.
type Config struct {
	Driver string
	// Path is the sqlite database file.
	Path string
	// DSN is the postgres connection string.
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only; 0 means default
	// SkipMigrations leaves the schema untouched on open.
	SkipMigrations bool
}

// Store is the full persistence API. Components depend on the narrow
// subsets they use.
type Store interface {
	ListUserIDs(ctx context.Context) ([]string, error)
	GetUser(ctx context.Context, id string) (domain.User, error)
	PutUser(ctx context.Context, u domain.User) error

	ListRecurring(ctx context.Context, f RecurringFilter) ([]domain.RecurringDefinition, error)
	PutRecurring(ctx context.Context, d domain.RecurringDefinition) error
	SetRecurringActive(ctx context.Context, userID, id string, active bool) error

	// HasRecurringEvent reports whether a ledger event referencing
	// recurringID exists with from <= date <= to.
	HasRecurringEvent(ctx context.Context, userID, recurringID string, from, to domain.Date) (bool, error)
	// CreateEvent inserts e. A second insert with the same ID fails with ErrDuplicate.
	CreateEvent(ctx context.Context, e domain.LedgerEvent) error
	ListEvents(ctx context.Context, f EventFilter) ([]domain.LedgerEvent, error)

	Endpoints(ctx context.Context, userID string) ([]string, error)
	AddEndpoint(ctx context.Context, userID, token string) error
	ReplaceEndpoints(ctx context.Context, userID string, tokens []string) error
	RemoveEndpoints(ctx context.Context, userID string, tokens []string) error

	Preferences(ctx context.Context, userID string) (domain.Preferences, error)
	// SavePreferences replaces the preferences, markers included.
	SavePreferences(ctx context.Context, userID string, p domain.Preferences) error
	// MarkWeeklySent advances the weekly marker. Older markers are ignored.
	MarkWeeklySent(ctx context.Context, userID string, m domain.SentMarker) error
	// MarkMonthlyIncomeSent advances the monthly-income period marker.
	MarkMonthlyIncomeSent(ctx context.Context, userID, period string) error

	AppendAudit(ctx context.Context, e AuditEntry) error
	ListAudit(ctx context.Context, limit int) ([]AuditEntry, error)

	Close() error
}

// RecurringFilter selects recurring definitions. Zero fields match everything.
type RecurringFilter struct {
	UserID     string
	ActiveOnly bool
	MinAnchor  int
	MaxAnchor  int
}

func (f RecurringFilter) match(d domain.RecurringDefinition) bool {
	if f.UserID != "" && d.UserID != f.UserID {
		return false
	}
	if f.ActiveOnly && !d.Active {
		return false
	}
	if f.MinAnchor > 0 && d.AnchorDay < f.MinAnchor {
		return false
	}
	if f.MaxAnchor > 0 && d.AnchorDay > f.MaxAnchor {
		return false
	}
	return true
}

// EventFilter selects ledger events. Zero dates leave the range open.
type EventFilter struct {
	UserID      string
	RecurringID string
	From        domain.Date
	To          domain.Date
}

func (f EventFilter) match(e domain.LedgerEvent) bool {
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.RecurringID != "" && e.RecurringID != f.RecurringID {
		return false
	}
	if !f.From.IsZero() && e.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Date.After(f.To) {
		return false
	}
	return true
}

// AuditEntry records one job run.
// Keep it compact and schema-stable.
type AuditEntry struct {
	ID        int64
	Job       string
	StartedAt time.Time
	Duration  time.Duration
	Status    string
	// Counts is the JSON-encoded result of the run.
	Counts string
	Error  string
}

const (
	AuditOK      = "ok"
	AuditFailed  = "failed"
	AuditSkipped = "skipped"
)
