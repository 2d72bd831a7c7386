// Package push defines the push gateway contract: a batch of
// (endpoint token, payload) pairs in, one typed outcome per item out.
package push

import (
	"context"
	"time"
)

// Reason classifies a failed delivery.
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonInvalidEndpoint means the token is unregistered or unusable;
	// callers drop it from the user's endpoint set.
	ReasonInvalidEndpoint
	ReasonRateLimited
	ReasonTransient
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonInvalidEndpoint:
		return "invalid_endpoint"
	case ReasonRateLimited:
		return "rate_limited"
	case ReasonTransient:
		return "transient"
	default:
		return "unknown"
	}
}

type Message struct {
	Token string
	Title string
	Body  string
}

type Outcome struct {
	Token  string
	OK     bool
	Reason Reason
	Err    error
	// RetryAfter is the gateway's back-off hint for rate-limited items.
	RetryAfter time.Duration
}

// Gateway delivers messages. Outcomes are index-aligned with the input.
// A non-nil error means the batch as a whole could not be attempted.
type Gateway interface {
	Send(ctx context.Context, msgs []Message) ([]Outcome, error)
}

// GatewayFunc adapts a function to Gateway.
type GatewayFunc func(ctx context.Context, msgs []Message) ([]Outcome, error)

func (f GatewayFunc) Send(ctx context.Context, msgs []Message) ([]Outcome, error) {
	return f(ctx, msgs)
}
