// Package scheduler is the trigger source of the engine: it fires named
// jobs on cron or interval schedules in the service time zone and runs
// them with a per-job wall-clock budget.
//
// A trigger that fires while the previous run of the same job is still in
// flight is skipped rather than queued. Runs are never retried; the next
// trigger is the retry.
package scheduler
