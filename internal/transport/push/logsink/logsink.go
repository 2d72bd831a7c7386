// Package logsink is a dry-run push gateway: it logs each message and
// reports success.
package logsink

import (
	"context"

	"fintrack/internal/transport/push"
	logx "fintrack/pkg/logx"
)

type Gateway struct {
	log logx.Logger
}

func New(log logx.Logger) *Gateway {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Gateway{log: log.With(logx.String("comp", "push.log"))}
}

func (g *Gateway) Send(ctx context.Context, msgs []push.Message) ([]push.Outcome, error) {
	out := make([]push.Outcome, len(msgs))
	for i, m := range msgs {
		if err := ctx.Err(); err != nil {
			out[i] = push.Outcome{Token: m.Token, Reason: push.ReasonTransient, Err: err}
			continue
		}
		g.log.Info("push", logx.String("token", m.Token), logx.String("title", m.Title), logx.String("body", m.Body))
		out[i] = push.Outcome{Token: m.Token, OK: true}
	}
	return out, nil
}
