package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID     string
	Name   string
	Income *decimal.Decimal
	// Endpoints is ordered oldest to newest; the last entry is the most
	// recently registered delivery token.
	Endpoints   []string
	Preferences Preferences
}

// HasIncome reports whether the user recorded a non-zero income.
func (u User) HasIncome() bool {
	return u.Income != nil && !u.Income.IsZero()
}

// RecurringDefinition is a user-authored template for a periodic expense.
type RecurringDefinition struct {
	ID            string
	UserID        string
	Name          string
	Amount        decimal.Decimal
	Category      string
	Subcategory   string
	PaymentMethod string
	AnchorDay     int
	Frequency     Frequency
	Active        bool
	EndDate       *Date
	CreatedAt     time.Time
}

// Expired reports whether today is past the definition's end date.
func (d RecurringDefinition) Expired(today Date) bool {
	return d.EndDate != nil && today.After(*d.EndDate)
}

// EffectiveAnchor is the anchor day clamped to the length of today's month.
func (d RecurringDefinition) EffectiveAnchor(today Date) int {
	return today.ClampDay(d.AnchorDay)
}

// Source records which component created a ledger event.
type Source string

const (
	SourceEngine   Source = "engine"
	SourceRecovery Source = "recovery"
	SourceManual   Source = "manual"
)

// LedgerEvent is a materialized expense. It is never mutated after creation.
type LedgerEvent struct {
	ID            string
	UserID        string
	Name          string
	Amount        decimal.Decimal
	Category      string
	Subcategory   string
	Date          Date
	PaymentMethod string
	IsRecurring   bool
	RecurringID   string
	Source        Source
	CreatedAt     time.Time
}

// ClampAmount returns max(0, amount).
func ClampAmount(amount decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	return amount
}

// EventFromDefinition builds the ledger event a definition produces on date.
func EventFromDefinition(def RecurringDefinition, date Date, src Source, now time.Time) LedgerEvent {
	return LedgerEvent{
		ID:            RecurringEventID(def.ID, date.PeriodKey()),
		UserID:        def.UserID,
		Name:          def.Name,
		Amount:        ClampAmount(def.Amount),
		Category:      def.Category,
		Subcategory:   def.Subcategory,
		Date:          date,
		PaymentMethod: def.PaymentMethod,
		IsRecurring:   true,
		RecurringID:   def.ID,
		Source:        src,
		CreatedAt:     now,
	}
}
