package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"fintrack/internal/domain"
)

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu        sync.RWMutex
	users     map[string]*memUser
	recurring map[string]domain.RecurringDefinition
	events    map[string]domain.LedgerEvent
	audit     []AuditEntry
}

type memUser struct {
	user      domain.User
	endpoints []string
}

func NewMemory() *Memory {
	return &Memory{
		users:     map[string]*memUser{},
		recurring: map[string]domain.RecurringDefinition{},
		events:    map[string]domain.LedgerEvent{},
	}
}

func (m *Memory) ListUserIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) GetUser(ctx context.Context, id string) (domain.User, error) {
	if err := ctx.Err(); err != nil {
		return domain.User{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return domain.User{}, ErrNotFound
	}
	out := u.user
	out.Endpoints = append([]string(nil), u.endpoints...)
	out.Preferences = copyPrefs(u.user.Preferences)
	if u.user.Income != nil {
		inc := *u.user.Income
		out.Income = &inc
	}
	return out, nil
}

func (m *Memory) PutUser(ctx context.Context, u domain.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := u
	stored.Endpoints = nil
	stored.Preferences = copyPrefs(u.Preferences)
	m.users[u.ID] = &memUser{user: stored, endpoints: append([]string(nil), u.Endpoints...)}
	return nil
}

func (m *Memory) ListRecurring(ctx context.Context, f RecurringFilter) ([]domain.RecurringDefinition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RecurringDefinition, 0)
	for _, d := range m.recurring {
		if f.match(d) {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PutRecurring(ctx context.Context, d domain.RecurringDefinition) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.ID == "" {
		d.ID = domain.NewID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	m.mu.Lock()
	m.recurring[d.ID] = d
	m.mu.Unlock()
	return nil
}

func (m *Memory) SetRecurringActive(ctx context.Context, userID, id string, active bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.recurring[id]
	if !ok || d.UserID != userID {
		return ErrNotFound
	}
	d.Active = active
	m.recurring[id] = d
	return nil
}

func (m *Memory) HasRecurringEvent(ctx context.Context, userID, recurringID string, from, to domain.Date) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f := EventFilter{UserID: userID, RecurringID: recurringID, From: from, To: to}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.events {
		if f.match(e) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreateEvent(ctx context.Context, e domain.LedgerEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; ok {
		return ErrDuplicate
	}
	m.events[e.ID] = e
	return nil
}

func (m *Memory) ListEvents(ctx context.Context, f EventFilter) ([]domain.LedgerEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.LedgerEvent, 0)
	for _, e := range m.events {
		if f.match(e) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Date.Compare(out[j].Date); c != 0 {
			return c < 0
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Endpoints(ctx context.Context, userID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return nil, nil
	}
	return append([]string(nil), u.endpoints...), nil
}

func (m *Memory) AddEndpoint(ctx context.Context, userID, token string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.endpoints = append(u.endpoints, token)
	return nil
}

func (m *Memory) ReplaceEndpoints(ctx context.Context, userID string, tokens []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.endpoints = append([]string(nil), tokens...)
	return nil
}

func (m *Memory) RemoveEndpoints(ctx context.Context, userID string, tokens []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	drop := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		drop[t] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	kept := u.endpoints[:0]
	for _, t := range u.endpoints {
		if _, gone := drop[t]; !gone {
			kept = append(kept, t)
		}
	}
	u.endpoints = kept
	return nil
}

func (m *Memory) Preferences(ctx context.Context, userID string) (domain.Preferences, error) {
	u, err := m.GetUser(ctx, userID)
	if err != nil {
		return domain.Preferences{}, err
	}
	return u.Preferences, nil
}

func (m *Memory) SavePreferences(ctx context.Context, userID string, p domain.Preferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.user.Preferences = copyPrefs(p)
	return nil
}

func (m *Memory) MarkWeeklySent(ctx context.Context, userID string, mk domain.SentMarker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	cur := u.user.Preferences.Weekly.LastSent
	if cur != nil && cur.Key() >= mk.Key() {
		return nil
	}
	u.user.Preferences.Weekly.LastSent = &mk
	return nil
}

func (m *Memory) MarkMonthlyIncomeSent(ctx context.Context, userID, period string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	if u.user.Preferences.MonthlyIncome.LastSentPeriod >= period {
		return nil
	}
	u.user.Preferences.MonthlyIncome.LastSentPeriod = period
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, e AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	m.mu.Lock()
	e.ID = int64(len(m.audit) + 1)
	m.audit = append(m.audit, e)
	m.mu.Unlock()
	return nil
}

func (m *Memory) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.audit)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]AuditEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.audit[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }

func copyPrefs(p domain.Preferences) domain.Preferences {
	if p.Weekly.LastSent != nil {
		mk := *p.Weekly.LastSent
		p.Weekly.LastSent = &mk
	}
	return p
}
