package eventbus

import "time"

// JobFinished is the Data of a TypeJobFinished event.
type JobFinished struct {
	Name     string
	Trigger  string // "cron" or "manual"
	Started  time.Time
	Duration time.Duration
	Counts   map[string]int
	Err      string
}

// JobSkipped is published when a trigger fires while the previous run of the
// same job is still in flight.
type JobSkipped struct {
	Name string
	At   time.Time
}

// Delivery is the Data of a TypeDelivery event, one per Deliver call that
// reached the gateway.
type Delivery struct {
	UserID string
	Kind   string
	Sent   int
	Failed int
	Pruned int
}
