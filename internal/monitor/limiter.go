package monitor

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Limiter caps how many lookups run at once. One Limiter is created per
// process and handed to the scheduler and to any source that owns a shared
// handle (a browser, a session), so the handle never sees more than the
// limiter's capacity.
type Limiter struct {
	sem      *semaphore.Weighted
	size     int
	inflight atomic.Int64
}

type permitKey struct{ l *Limiter }

// NewLimiter returns a limiter with capacity n (at least 1).
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), size: n}
}

// Acquire blocks until a permit is free or ctx is done. If ctx already
// carries a permit of this limiter (see WithPermit) it returns immediately
// without taking a second one. The returned release func is idempotent.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if held, _ := ctx.Value(permitKey{l}).(bool); held {
		return func() {}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	l.inflight.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() {
			l.inflight.Add(-1)
			l.sem.Release(1)
		})
	}, nil
}

// WithPermit marks ctx as already holding a permit of l.
func (l *Limiter) WithPermit(ctx context.Context) context.Context {
	return context.WithValue(ctx, permitKey{l}, true)
}

// InFlight returns the number of permits currently held.
func (l *Limiter) InFlight() int { return int(l.inflight.Load()) }

// Size returns the limiter capacity.
func (l *Limiter) Size() int { return l.size }
