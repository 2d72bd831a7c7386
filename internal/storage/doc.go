// Package storage is the tenant store: one record per user plus the user's
// recurring definitions, ledger events, delivery endpoints and reminder
// markers, and an audit trail of job runs.
//
// Drivers:
//   - "memory": process-local maps, for tests and dry runs
//   - "sqlite": modernc.org/sqlite database file
//   - "postgres": PostgreSQL through pgx
//
// SQL drivers apply their schema with golang-migrate on open.
package storage
