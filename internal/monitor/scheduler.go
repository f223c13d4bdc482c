package monitor

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"cardwatch/internal/models"
	"cardwatch/internal/obs"

	"github.com/shopspring/decimal"
)

// PriceSource returns the current price of an item. A missing or ambiguous
// price is an error; the executor decides whether to try again.
type PriceSource interface {
	Quote(ctx context.Context, item models.WatchItem) (decimal.Decimal, error)
}

// Progress is reported after every finished lookup, whatever its outcome.
type Progress struct {
	Done    int            `json:"done"`
	Total   int            `json:"total"`
	Key     models.Key     `json:"key"`
	Outcome models.Outcome `json:"outcome"`
}

// Scheduler fans lookups out under the limiter and waits for all of them.
type Scheduler struct {
	Limiter    *Limiter
	Executor   *Executor
	Source     PriceSource
	OnProgress func(Progress) // called from lookup goroutines
}

// Run looks up every item and returns one quote per item, in item order.
// Cancelling ctx stops new lookups from starting; items that never started
// come back Unavailable with the context error. Run returns only after every
// started lookup has finished.
func (s *Scheduler) Run(ctx context.Context, items []models.WatchItem) []models.PriceQuote {
	quotes := make([]models.PriceQuote, len(items))
	var (
		wg   sync.WaitGroup
		done atomic.Int64
	)
	finish := func(i int, q models.PriceQuote) {
		quotes[i] = q
		n := done.Add(1)
		if s.OnProgress != nil {
			s.OnProgress(Progress{Done: int(n), Total: len(items), Key: q.Key, Outcome: q.Outcome})
		}
	}

	for i, item := range items {
		release, err := s.Limiter.Acquire(ctx)
		if err != nil {
			obs.Logger.Warn("dispatch stopped", "remaining", len(items)-i, "error", err)
			for j := i; j < len(items); j++ {
				finish(j, models.PriceQuote{
					Key:       items[j].Key(),
					Outcome:   models.OutcomeUnavailable,
					FetchedAt: time.Now(),
					Err:       err,
				})
			}
			break
		}
		wg.Add(1)
		go func(i int, item models.WatchItem) {
			defer wg.Done()
			defer release()
			finish(i, s.lookup(ctx, item))
		}(i, item)
	}
	wg.Wait()
	return quotes
}

func (s *Scheduler) lookup(ctx context.Context, item models.WatchItem) (q models.PriceQuote) {
	key := item.Key()
	defer func() {
		if r := recover(); r != nil {
			failure := &TaskFailure{Key: key, Value: r, Stack: debug.Stack()}
			obs.Logger.Error("lookup crashed", "item", key.String(), "panic", r)
			q = models.PriceQuote{Key: key, Outcome: models.OutcomeError, FetchedAt: time.Now(), Err: failure}
		}
	}()
	lctx := s.Limiter.WithPermit(ctx)
	return s.Executor.Execute(lctx, key, func(actx context.Context) (decimal.Decimal, error) {
		return s.Source.Quote(actx, item)
	})
}
