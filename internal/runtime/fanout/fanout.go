// Package fanout runs a per-item callback over a slice with bounded
// parallelism.
package fanout

import (
	"context"
	"fmt"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// DefaultLimit is used when limit <= 0.
const DefaultLimit = 8

// Each calls fn for every item with at most limit calls in flight. fn has
// no error return: per-item failures are the callback's to record, so one
// item never stops its siblings.
//
// Items not yet started when ctx ends are skipped and Each returns
// ctx.Err(). A panic in fn is recovered and returned as an error after the
// remaining items finish.
func Each[T any](ctx context.Context, limit int, items []T, fn func(ctx context.Context, item T)) error {
	if limit <= 0 {
		limit = DefaultLimit
	}
	var g errgroup.Group
	g.SetLimit(limit)

	for _, it := range items {
		if ctx.Err() != nil {
			break
		}
		it := it
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("fanout panic: %v\n%s", r, debug.Stack())
				}
			}()
			if ctx.Err() != nil {
				return nil
			}
			fn(ctx, it)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
