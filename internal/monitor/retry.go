package monitor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"cardwatch/internal/models"
	"cardwatch/internal/obs"

	"github.com/shopspring/decimal"
)

// LookupFunc fetches one price. It must honor ctx.
type LookupFunc func(ctx context.Context) (decimal.Decimal, error)

// Backoff computes the pause after a failed attempt: Unit * Base^k after
// attempt k, plus up to Jitter*delay of random extra time.
type Backoff struct {
	Base   float64
	Unit   time.Duration
	Jitter float64
}

// Delay returns the wait between attempt k and k+1 (k is 1-indexed).
func (b Backoff) Delay(k int) time.Duration {
	base := b.Base
	if base < 1 {
		base = 2
	}
	unit := b.Unit
	if unit <= 0 {
		unit = time.Second
	}
	d := float64(unit) * math.Pow(base, float64(k))
	if b.Jitter > 0 {
		d += d * b.Jitter * rand.Float64()
	}
	return time.Duration(d)
}

// Executor runs a lookup with bounded retries.
type Executor struct {
	MaxAttempts    int
	Backoff        Backoff
	AttemptTimeout time.Duration
	// Retryable decides whether a failure is worth another attempt. Nil
	// retries everything except errors marked Terminal.
	Retryable func(error) bool
}

// NewExecutor returns an executor with the given attempt budget, backoff
// base (in seconds) and per-attempt timeout.
func NewExecutor(maxAttempts int, base float64, attemptTimeout time.Duration) *Executor {
	return &Executor{
		MaxAttempts:    maxAttempts,
		Backoff:        Backoff{Base: base, Unit: time.Second},
		AttemptTimeout: attemptTimeout,
	}
}

// Execute runs fn until it succeeds or the attempt budget is spent. It never
// returns an error: exhausted lookups come back as OutcomeUnavailable with
// the last failure in Err.
//
// ctx is the stop signal. It interrupts backoff waits, but an attempt that
// already started runs to completion or to its own timeout.
func (e *Executor) Execute(ctx context.Context, key models.Key, fn LookupFunc) models.PriceQuote {
	attempts := e.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	q := models.PriceQuote{Key: key, Outcome: models.OutcomeUnavailable}
	for k := 1; k <= attempts; k++ {
		if k > 1 {
			if err := sleep(ctx, e.Backoff.Delay(k-1)); err != nil {
				q.Err = errors.Join(q.Err, err)
				break
			}
		}
		q.Attempts = k
		price, err := e.attempt(ctx, fn)
		if err == nil {
			q.Price = price.Round(2)
			q.FetchedAt = time.Now()
			q.Outcome = models.OutcomeSuccess
			q.Err = nil
			return q
		}
		q.Err = err
		obs.Logger.Debug("lookup attempt failed", "item", key.String(), "attempt", k, "max_attempts", attempts, "error", err)
		if !e.retryable(err) {
			break
		}
	}
	q.FetchedAt = time.Now()
	return q
}

func (e *Executor) attempt(ctx context.Context, fn LookupFunc) (decimal.Decimal, error) {
	actx := context.WithoutCancel(ctx)
	if e.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(actx, e.AttemptTimeout)
		defer cancel()
	}
	type result struct {
		price    decimal.Decimal
		err      error
		panicked any
	}
	// fn may ignore its context, so the timeout is enforced here. A stuck
	// call is abandoned, not killed; its result is discarded.
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{panicked: r}
			}
		}()
		price, err := fn(actx)
		done <- result{price: price, err: err}
	}()

	var r result
	select {
	case r = <-done:
	case <-actx.Done():
		return decimal.Zero, fmt.Errorf("attempt abandoned: %w", actx.Err())
	}
	if r.panicked != nil {
		panic(r.panicked)
	}
	price, err := r.price, r.err
	if err != nil {
		return decimal.Zero, err
	}
	switch {
	case price.IsZero():
		return decimal.Zero, ErrZeroPrice
	case price.IsNegative():
		return decimal.Zero, ErrNegativePrice
	}
	return price, nil
}

func (e *Executor) retryable(err error) bool {
	if e.Retryable != nil {
		return e.Retryable(err)
	}
	return !IsTerminal(err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
