package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fintrack/internal/domain"
	logx "fintrack/pkg/logx"
)

// dialect isolates the differences between the SQL drivers.
type dialect interface {
	// rebind rewrites '?' placeholders into the driver's syntax.
	rebind(q string) string
	isUniqueViolation(err error) bool
	timeArg(t time.Time) any
}

// sqlStore implements Store on database/sql for every SQL dialect.
type sqlStore struct {
	db  *sql.DB
	d   dialect
	log logx.Logger
}

func (s *sqlStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqlStore) exec(ctx context.Context, q string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.d.rebind(q), args...)
}

func (s *sqlStore) query(ctx context.Context, q string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.d.rebind(q), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, q string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.d.rebind(q), args...)
}

// ---- users ----

func (s *sqlStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT id FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list users: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *sqlStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := s.loadUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	eps, err := s.Endpoints(ctx, id)
	if err != nil {
		return domain.User{}, err
	}
	u.Endpoints = eps
	return u, nil
}

func (s *sqlStore) loadUser(ctx context.Context, id string) (domain.User, error) {
	var (
		u         domain.User
		income    decimal.NullDecimal
		prefsJSON string
		weekly    sql.NullString
		period    string
	)
	err := s.queryRow(ctx,
		`SELECT id, name, income, preferences, weekly_last_sent, monthly_income_last_period
		 FROM users WHERE id = ?`, id,
	).Scan(&u.ID, &u.Name, &income, &prefsJSON, &weekly, &period)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	if income.Valid {
		v := income.Decimal
		u.Income = &v
	}
	prefs, err := decodePrefs(prefsJSON, weekly, period)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %s: %w", id, err)
	}
	u.Preferences = prefs
	return u, nil
}

func (s *sqlStore) PutUser(ctx context.Context, u domain.User) error {
	prefsJSON, weekly, period, err := encodePrefs(u.Preferences)
	if err != nil {
		return err
	}
	var income decimal.NullDecimal
	if u.Income != nil {
		income = decimal.NewNullDecimal(*u.Income)
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.d.rebind(
			`INSERT INTO users(id, name, income, preferences, weekly_last_sent, monthly_income_last_period, created_at)
			 VALUES(?,?,?,?,?,?,?)
			 ON CONFLICT(id) DO UPDATE SET
			   name = excluded.name,
			   income = excluded.income,
			   preferences = excluded.preferences,
			   weekly_last_sent = excluded.weekly_last_sent,
			   monthly_income_last_period = excluded.monthly_income_last_period`),
			u.ID, u.Name, income, prefsJSON, weekly, period, s.d.timeArg(time.Now()),
		)
		if err != nil {
			return fmt.Errorf("put user %s: %w", u.ID, err)
		}
		return s.replaceEndpointsTx(ctx, tx, u.ID, u.Endpoints)
	})
}

// ---- recurring definitions ----

const recurringColumns = `id, user_id, name, amount, category, subcategory, payment_method,
	anchor_day, frequency, active, end_date, created_at`

func (s *sqlStore) ListRecurring(ctx context.Context, f RecurringFilter) ([]domain.RecurringDefinition, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.ActiveOnly {
		where = append(where, "active = ?")
		args = append(args, true)
	}
	if f.MinAnchor > 0 {
		where = append(where, "anchor_day >= ?")
		args = append(args, f.MinAnchor)
	}
	if f.MaxAnchor > 0 {
		where = append(where, "anchor_day <= ?")
		args = append(args, f.MaxAnchor)
	}
	q := `SELECT ` + recurringColumns + ` FROM recurring`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY id`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list recurring: %w", err)
	}
	defer rows.Close()

	var out []domain.RecurringDefinition
	for rows.Next() {
		var (
			d       domain.RecurringDefinition
			freq    string
			endDate sql.NullString
			created any
		)
		if err := rows.Scan(&d.ID, &d.UserID, &d.Name, &d.Amount, &d.Category, &d.Subcategory,
			&d.PaymentMethod, &d.AnchorDay, &freq, &d.Active, &endDate, &created); err != nil {
			return nil, fmt.Errorf("list recurring: %w", err)
		}
		d.Frequency = domain.Frequency(freq)
		if endDate.Valid && endDate.String != "" {
			ed, err := domain.ParseDate(endDate.String)
			if err != nil {
				return nil, fmt.Errorf("recurring %s: %w", d.ID, err)
			}
			d.EndDate = &ed
		}
		if d.CreatedAt, err = scanTime(created); err != nil {
			return nil, fmt.Errorf("recurring %s: %w", d.ID, err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *sqlStore) PutRecurring(ctx context.Context, d domain.RecurringDefinition) error {
	if d.ID == "" {
		d.ID = domain.NewID()
	}
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	var endDate any
	if d.EndDate != nil {
		endDate = d.EndDate.String()
	}
	_, err := s.exec(ctx,
		`INSERT INTO recurring(`+recurringColumns+`)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   name = excluded.name,
		   amount = excluded.amount,
		   category = excluded.category,
		   subcategory = excluded.subcategory,
		   payment_method = excluded.payment_method,
		   anchor_day = excluded.anchor_day,
		   frequency = excluded.frequency,
		   active = excluded.active,
		   end_date = excluded.end_date`,
		d.ID, d.UserID, d.Name, d.Amount, d.Category, d.Subcategory, d.PaymentMethod,
		d.AnchorDay, string(d.Frequency), d.Active, endDate, s.d.timeArg(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("put recurring %s: %w", d.ID, err)
	}
	return nil
}

func (s *sqlStore) SetRecurringActive(ctx context.Context, userID, id string, active bool) error {
	res, err := s.exec(ctx, `UPDATE recurring SET active = ? WHERE user_id = ? AND id = ?`, active, userID, id)
	if err != nil {
		return fmt.Errorf("set recurring %s active: %w", id, err)
	}
	return requireAffected(res)
}

// ---- ledger events ----

const eventColumns = `id, user_id, name, amount, category, subcategory, event_date, payment_method,
	is_recurring, recurring_id, source, created_at`

func (s *sqlStore) HasRecurringEvent(ctx context.Context, userID, recurringID string, from, to domain.Date) (bool, error) {
	var one int
	err := s.queryRow(ctx,
		`SELECT 1 FROM events
		 WHERE user_id = ? AND recurring_id = ? AND event_date >= ? AND event_date <= ?
		 LIMIT 1`,
		userID, recurringID, from.String(), to.String(),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check recurring event %s: %w", recurringID, err)
	}
	return true, nil
}

func (s *sqlStore) CreateEvent(ctx context.Context, e domain.LedgerEvent) error {
	if e.ID == "" {
		e.ID = domain.NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO events(`+eventColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.UserID, e.Name, e.Amount, e.Category, e.Subcategory, e.Date.String(),
		e.PaymentMethod, e.IsRecurring, e.RecurringID, string(e.Source), s.d.timeArg(e.CreatedAt),
	)
	if err != nil {
		if s.d.isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create event %s: %w", e.ID, err)
	}
	return nil
}

func (s *sqlStore) ListEvents(ctx context.Context, f EventFilter) ([]domain.LedgerEvent, error) {
	var (
		where []string
		args  []any
	)
	if f.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.RecurringID != "" {
		where = append(where, "recurring_id = ?")
		args = append(args, f.RecurringID)
	}
	if !f.From.IsZero() {
		where = append(where, "event_date >= ?")
		args = append(args, f.From.String())
	}
	if !f.To.IsZero() {
		where = append(where, "event_date <= ?")
		args = append(args, f.To.String())
	}
	q := `SELECT ` + eventColumns + ` FROM events`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY event_date, id`

	rows, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.LedgerEvent
	for rows.Next() {
		var (
			e       domain.LedgerEvent
			date    string
			source  string
			created any
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Name, &e.Amount, &e.Category, &e.Subcategory, &date,
			&e.PaymentMethod, &e.IsRecurring, &e.RecurringID, &source, &created); err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		if e.Date, err = domain.ParseDate(date); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		if e.CreatedAt, err = scanTime(created); err != nil {
			return nil, fmt.Errorf("event %s: %w", e.ID, err)
		}
		e.Source = domain.Source(source)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- endpoints ----

func (s *sqlStore) Endpoints(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.query(ctx, `SELECT token FROM endpoints WHERE user_id = ? ORDER BY seq`, userID)
	if err != nil {
		return nil, fmt.Errorf("endpoints of %s: %w", userID, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("endpoints of %s: %w", userID, err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqlStore) AddEndpoint(ctx context.Context, userID, token string) error {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return err
	}
	_, err := s.exec(ctx, `INSERT INTO endpoints(user_id, token, created_at) VALUES(?,?,?)`,
		userID, token, s.d.timeArg(time.Now()))
	if err != nil {
		return fmt.Errorf("add endpoint for %s: %w", userID, err)
	}
	return nil
}

func (s *sqlStore) ReplaceEndpoints(ctx context.Context, userID string, tokens []string) error {
	if _, err := s.loadUser(ctx, userID); err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.replaceEndpointsTx(ctx, tx, userID, tokens)
	})
}

func (s *sqlStore) replaceEndpointsTx(ctx context.Context, tx *sql.Tx, userID string, tokens []string) error {
	if _, err := tx.ExecContext(ctx, s.d.rebind(`DELETE FROM endpoints WHERE user_id = ?`), userID); err != nil {
		return fmt.Errorf("replace endpoints for %s: %w", userID, err)
	}
	now := s.d.timeArg(time.Now())
	for _, t := range tokens {
		if _, err := tx.ExecContext(ctx, s.d.rebind(`INSERT INTO endpoints(user_id, token, created_at) VALUES(?,?,?)`),
			userID, t, now); err != nil {
			return fmt.Errorf("replace endpoints for %s: %w", userID, err)
		}
	}
	return nil
}

func (s *sqlStore) RemoveEndpoints(ctx context.Context, userID string, tokens []string) error {
	if len(tokens) == 0 {
		return nil
	}
	args := make([]any, 0, len(tokens)+1)
	args = append(args, userID)
	for _, t := range tokens {
		args = append(args, t)
	}
	ph := strings.TrimSuffix(strings.Repeat("?,", len(tokens)), ",")
	if _, err := s.exec(ctx, `DELETE FROM endpoints WHERE user_id = ? AND token IN (`+ph+`)`, args...); err != nil {
		return fmt.Errorf("remove endpoints for %s: %w", userID, err)
	}
	return nil
}

// ---- preferences & markers ----

func (s *sqlStore) Preferences(ctx context.Context, userID string) (domain.Preferences, error) {
	u, err := s.loadUser(ctx, userID)
	if err != nil {
		return domain.Preferences{}, err
	}
	return u.Preferences, nil
}

func (s *sqlStore) SavePreferences(ctx context.Context, userID string, p domain.Preferences) error {
	prefsJSON, weekly, period, err := encodePrefs(p)
	if err != nil {
		return err
	}
	res, err := s.exec(ctx,
		`UPDATE users SET preferences = ?, weekly_last_sent = ?, monthly_income_last_period = ? WHERE id = ?`,
		prefsJSON, weekly, period, userID)
	if err != nil {
		return fmt.Errorf("save preferences for %s: %w", userID, err)
	}
	return requireAffected(res)
}

func (s *sqlStore) MarkWeeklySent(ctx context.Context, userID string, m domain.SentMarker) error {
	key := m.Key()
	res, err := s.exec(ctx,
		`UPDATE users SET weekly_last_sent = ?
		 WHERE id = ? AND (weekly_last_sent IS NULL OR weekly_last_sent < ?)`,
		key, userID, key)
	if err != nil {
		return fmt.Errorf("mark weekly sent for %s: %w", userID, err)
	}
	return s.forwardOnly(ctx, res, userID)
}

func (s *sqlStore) MarkMonthlyIncomeSent(ctx context.Context, userID, period string) error {
	res, err := s.exec(ctx,
		`UPDATE users SET monthly_income_last_period = ?
		 WHERE id = ? AND monthly_income_last_period < ?`,
		period, userID, period)
	if err != nil {
		return fmt.Errorf("mark monthly income sent for %s: %w", userID, err)
	}
	return s.forwardOnly(ctx, res, userID)
}

// forwardOnly treats an update that matched no row as a no-op when the user
// exists: the stored marker is already at or past the new value.
func (s *sqlStore) forwardOnly(ctx context.Context, res sql.Result, userID string) error {
	n, err := res.RowsAffected()
	if err != nil || n > 0 {
		return err
	}
	_, err = s.loadUser(ctx, userID)
	return err
}

// ---- audit ----

func (s *sqlStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	_, err := s.exec(ctx,
		`INSERT INTO job_audit(job, started_at, duration_ms, status, counts, error) VALUES(?,?,?,?,?,?)`,
		e.Job, s.d.timeArg(e.StartedAt), e.Duration.Milliseconds(), e.Status, e.Counts, nullStr(e.Error),
	)
	if err != nil {
		return fmt.Errorf("append audit: %w", err)
	}
	return nil
}

func (s *sqlStore) ListAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.query(ctx,
		`SELECT id, job, started_at, duration_ms, status, counts, error
		 FROM job_audit ORDER BY id DESC LIMIT `+strconv.Itoa(limit))
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	defer rows.Close()
	var out []AuditEntry
	for rows.Next() {
		var (
			e       AuditEntry
			started any
			ms      int64
			errStr  sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Job, &started, &ms, &e.Status, &e.Counts, &errStr); err != nil {
			return nil, fmt.Errorf("list audit: %w", err)
		}
		if e.StartedAt, err = scanTime(started); err != nil {
			return nil, fmt.Errorf("audit %d: %w", e.ID, err)
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		e.Error = errStr.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- helpers ----

func (s *sqlStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// encodePrefs splits the reminder markers out of the preferences document so
// they can be advanced with single conditional updates.
func encodePrefs(p domain.Preferences) (doc string, weekly any, period string, err error) {
	if p.Weekly.LastSent != nil {
		weekly = p.Weekly.LastSent.Key()
	}
	period = p.MonthlyIncome.LastSentPeriod
	p.Weekly.LastSent = nil
	p.MonthlyIncome.LastSentPeriod = ""
	b, err := json.Marshal(p)
	if err != nil {
		return "", nil, "", fmt.Errorf("encode preferences: %w", err)
	}
	return string(b), weekly, period, nil
}

func decodePrefs(doc string, weekly sql.NullString, period string) (domain.Preferences, error) {
	var p domain.Preferences
	if strings.TrimSpace(doc) != "" {
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return p, fmt.Errorf("decode preferences: %w", err)
		}
	}
	if weekly.Valid && weekly.String != "" {
		m, err := domain.ParseSentMarker(weekly.String)
		if err != nil {
			return p, err
		}
		p.Weekly.LastSent = &m
	}
	p.MonthlyIncome.LastSentPeriod = period
	return p, nil
}

// scanTime accepts the time representations of every dialect: native
// time.Time (postgres) or RFC 3339 text (sqlite).
func scanTime(v any) (time.Time, error) {
	switch x := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return x, nil
	case string:
		return parseTimeText(x)
	case []byte:
		return parseTimeText(string(x))
	default:
		return time.Time{}, fmt.Errorf("unsupported time value %T", v)
	}
}

func parseTimeText(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
