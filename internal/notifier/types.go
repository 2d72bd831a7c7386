package notifier

import (
	"context"
)

// Kind names a reminder payload.
type Kind string

const (
	KindDaily         Kind = "daily"
	KindWeekly        Kind = "weekly"
	KindMonthlyIncome Kind = "monthly_income"
)

type Payload struct {
	Kind  Kind
	Title string
	Body  string
}

// Result counts the outcome of one Deliver call.
type Result struct {
	Sent   int
	Failed int
	Pruned int
}

// EndpointStore is the storage subset the dispatcher needs.
type EndpointStore interface {
	Endpoints(ctx context.Context, userID string) ([]string, error)
	ReplaceEndpoints(ctx context.Context, userID string, tokens []string) error
	RemoveEndpoints(ctx context.Context, userID string, tokens []string) error
}
