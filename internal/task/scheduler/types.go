package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	// ErrOverlapSkip is returned by RunNow when the job is already running.
	ErrOverlapSkip = errors.New("scheduler: previous run still in flight")
	ErrUnknownJob  = errors.New("scheduler: unknown job")
)

// Job is one unit of scheduled work. Counts end up in history, events and
// the audit trail.
type Job func(ctx context.Context) (counts map[string]int, err error)

// Trigger names how a run was started.
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

type Config struct {
	// Timezone is an IANA name; empty means the host zone.
	Timezone    string
	HistorySize int
}

// runState tracks whether a job is in flight.
type runState struct {
	running atomic.Bool
}

func (s *runState) tryAcquire() bool { return s.running.CompareAndSwap(false, true) }
func (s *runState) release()         { s.running.Store(false) }

type jobDef struct {
	name    string
	spec    string // normalized cron spec; "" means manual only
	timeout time.Duration
	job     Job
	state   *runState
	entryID cron.EntryID // 0 when not on the cron
}

// HistoryItem records one finished or skipped run.
type HistoryItem struct {
	Name     string         `json:"name"`
	Trigger  string         `json:"trigger"`
	Started  time.Time      `json:"started"`
	Duration time.Duration  `json:"duration"`
	Skipped  bool           `json:"skipped,omitempty"`
	Counts   map[string]int `json:"counts,omitempty"`
	Error    string         `json:"error,omitempty"`
}

type ScheduleInfo struct {
	Name    string        `json:"name"`
	Spec    string        `json:"spec"`
	Timeout time.Duration `json:"timeout"`
	Running bool          `json:"running"`
	Next    time.Time     `json:"next,omitempty"`
	Prev    time.Time     `json:"prev,omitempty"`
}

type Snapshot struct {
	Timezone  string         `json:"timezone"`
	Started   bool           `json:"started"`
	Schedules []ScheduleInfo `json:"schedules"`
	History   []HistoryItem  `json:"history"`
}
