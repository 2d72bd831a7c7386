package fanout

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEachVisitsAll(t *testing.T) {
	t.Parallel()

	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	var sum atomic.Int64
	if err := Each(context.Background(), 3, items, func(_ context.Context, n int) {
		sum.Add(int64(n))
	}); err != nil {
		t.Fatalf("Each err = %v", err)
	}
	if got := sum.Load(); got != 55 {
		t.Fatalf("sum = %d, want 55", got)
	}
}

func TestEachBoundsParallelism(t *testing.T) {
	t.Parallel()

	var inflight, peak atomic.Int32
	items := make([]int, 20)
	_ = Each(context.Background(), 4, items, func(context.Context, int) {
		n := inflight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inflight.Add(-1)
	})
	if got := peak.Load(); got > 4 || got < 1 {
		t.Fatalf("peak = %d, want 1..4", got)
	}
}

func TestEachCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	var mu sync.Mutex
	seen := 0
	err := Each(ctx, 1, []int{1, 2, 3, 4}, func(context.Context, int) {
		mu.Lock()
		seen++
		mu.Unlock()
		cancel()
	})
	if err != context.Canceled {
		t.Fatalf("Each err = %v, want context.Canceled", err)
	}
	if seen != 1 {
		t.Fatalf("seen = %d, want 1", seen)
	}
}

func TestEachRecoversPanic(t *testing.T) {
	t.Parallel()

	var done atomic.Int32
	err := Each(context.Background(), 2, []int{1, 2, 3}, func(_ context.Context, n int) {
		if n == 2 {
			panic("bad item")
		}
		done.Add(1)
	})
	if err == nil || !strings.Contains(err.Error(), "bad item") {
		t.Fatalf("Each err = %v, want panic error", err)
	}
	if done.Load() != 2 {
		t.Fatalf("completed = %d, want 2", done.Load())
	}
}
