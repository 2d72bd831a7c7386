// Package domain holds the ledger model shared by the recurrence engine,
// the reminder scheduler and the stores: users, recurring definitions,
// materialized ledger events and notification preferences.
package domain
