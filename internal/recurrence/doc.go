// Package recurrence materializes recurring definitions into ledger events.
//
// Engine is the primary daily pass: it creates the event for definitions
// whose anchor day is today, subject to the frequency month gate. Sweep is
// the catch-up pass: it back-fills the event of every definition whose
// anchor already passed this month and has no event yet.
//
// Both are idempotent. The existence check over the current month is the
// primary guard; deterministic event IDs make the store reject a second
// insert when two passes race.
package recurrence
