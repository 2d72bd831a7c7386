package notifier

import (
	"context"
	"fmt"

	"fintrack/internal/eventbus"
	"fintrack/internal/transport/push"
	logx "fintrack/pkg/logx"
)

// Dispatcher is safe for concurrent use.
type Dispatcher struct {
	store EndpointStore
	gw    push.Gateway
	log   logx.Logger
	bus   eventbus.Bus
	locks *keyedMutex
}

func NewDispatcher(store EndpointStore, gw push.Gateway, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	return &Dispatcher{
		store: store,
		gw:    gw,
		log:   log.With(logx.String("comp", "notifier")),
		bus:   bus,
		locks: newKeyedMutex(),
	}
}

// Deliver sends p to the endpoints of userID. Only store failures are
// returned as errors; gateway failures are counted in Result.Failed.
// A user without endpoints yields a zero Result.
func (d *Dispatcher) Deliver(ctx context.Context, userID string, p Payload) (Result, error) {
	unlock := d.locks.Lock(userID)
	defer unlock()

	var res Result
	tokens, err := d.store.Endpoints(ctx, userID)
	if err != nil {
		return res, fmt.Errorf("load endpoints: %w", err)
	}
	tokens = nonEmpty(tokens)
	if len(tokens) == 0 {
		return res, nil
	}

	if len(tokens) > 1 {
		latest := tokens[len(tokens)-1]
		if err := d.store.ReplaceEndpoints(ctx, userID, []string{latest}); err != nil {
			return res, fmt.Errorf("collapse endpoints: %w", err)
		}
		d.log.Debug("endpoints collapsed", logx.String("user", userID), logx.Int("dropped", len(tokens)-1))
		tokens = []string{latest}
	}

	msgs := make([]push.Message, len(tokens))
	for i, tok := range tokens {
		msgs[i] = push.Message{Token: tok, Title: p.Title, Body: p.Body}
	}

	outcomes, err := d.gw.Send(ctx, msgs)
	if err != nil {
		res.Failed = len(msgs)
		d.log.Warn("push batch failed", logx.String("user", userID), logx.String("kind", string(p.Kind)), logx.Err(err))
		d.publish(userID, p.Kind, res)
		return res, nil
	}

	var invalid []string
	for i := range msgs {
		if i >= len(outcomes) {
			// Missing outcomes count as failures; the token is kept.
			res.Failed++
			continue
		}
		o := outcomes[i]
		if o.OK {
			res.Sent++
			continue
		}
		res.Failed++
		if o.Reason == push.ReasonInvalidEndpoint {
			invalid = append(invalid, msgs[i].Token)
			continue
		}
		d.log.Debug("push failed", logx.String("user", userID), logx.String("reason", o.Reason.String()), logx.Err(o.Err))
	}

	if len(invalid) > 0 {
		if err := d.store.RemoveEndpoints(ctx, userID, invalid); err != nil {
			d.publish(userID, p.Kind, res)
			return res, fmt.Errorf("prune endpoints: %w", err)
		}
		res.Pruned = len(invalid)
		d.log.Info("endpoints pruned", logx.String("user", userID), logx.Int("count", len(invalid)))
	}

	d.publish(userID, p.Kind, res)
	return res, nil
}

func (d *Dispatcher) publish(userID string, kind Kind, res Result) {
	d.bus.Publish(eventbus.Event{
		Type: eventbus.TypeDelivery,
		Data: eventbus.Delivery{
			UserID: userID,
			Kind:   string(kind),
			Sent:   res.Sent,
			Failed: res.Failed,
			Pruned: res.Pruned,
		},
	})
}

func nonEmpty(tokens []string) []string {
	out := tokens[:0:0]
	for _, t := range tokens {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
