package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"cardwatch/internal/models"

	"github.com/shopspring/decimal"
)

// fakeSource answers from a price table and records concurrency.
type fakeSource struct {
	mu      sync.Mutex
	prices  map[string]decimal.Decimal
	fail    map[string]error
	panics  map[string]bool
	delay   time.Duration
	calls   map[string]int
	cur     atomic.Int64
	maxSeen atomic.Int64
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		prices: map[string]decimal.Decimal{},
		fail:   map[string]error{},
		panics: map[string]bool{},
		calls:  map[string]int{},
	}
}

func (f *fakeSource) Quote(ctx context.Context, item models.WatchItem) (decimal.Decimal, error) {
	n := f.cur.Add(1)
	defer f.cur.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	f.mu.Lock()
	f.calls[item.ItemName]++
	price, ok := f.prices[item.ItemName]
	err := f.fail[item.ItemName]
	crash := f.panics[item.ItemName]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if crash {
		panic("parser exploded")
	}
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, errors.New("not found")
	}
	return price, nil
}

func (f *fakeSource) set(name, price string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices[name] = decimal.RequireFromString(price)
}

func (f *fakeSource) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func items(n int) []models.WatchItem {
	out := make([]models.WatchItem, n)
	for i := range out {
		out[i] = models.WatchItem{
			ItemName:    fmt.Sprintf("Card %02d", i),
			GroupKey:    "Alpha",
			TargetPrice: decimal.NewFromInt(100),
		}
	}
	return out
}

func TestSchedulerRespectsLimit(t *testing.T) {
	src := newFakeSource()
	src.delay = 20 * time.Millisecond
	list := items(25)
	for _, it := range list {
		src.set(it.ItemName, "90")
	}
	var progress atomic.Int64
	s := &Scheduler{
		Limiter:    NewLimiter(10),
		Executor:   fastExecutor(3),
		Source:     src,
		OnProgress: func(Progress) { progress.Add(1) },
	}

	start := time.Now()
	quotes := s.Run(context.Background(), list)
	elapsed := time.Since(start)

	if got := src.maxSeen.Load(); got > 10 {
		t.Fatalf("saw %d concurrent lookups, limit 10", got)
	}
	if got := src.maxSeen.Load(); got < 2 {
		t.Fatalf("lookups did not run in parallel (max %d)", got)
	}
	if len(quotes) != 25 || progress.Load() != 25 {
		t.Fatalf("quotes=%d progress=%d", len(quotes), progress.Load())
	}
	for i, q := range quotes {
		if q.Key != list[i].Key() || !q.Available() {
			t.Fatalf("quote %d: %+v", i, q)
		}
	}
	// ceil(25/10) rounds of 20ms, with generous slack.
	if elapsed > 2*time.Second {
		t.Fatalf("took %v", elapsed)
	}
	if s.Limiter.InFlight() != 0 {
		t.Fatalf("permits leaked: %d", s.Limiter.InFlight())
	}
}

func TestSchedulerEmpty(t *testing.T) {
	s := &Scheduler{Limiter: NewLimiter(3), Executor: fastExecutor(1), Source: newFakeSource()}
	if q := s.Run(context.Background(), nil); len(q) != 0 {
		t.Fatalf("expected no quotes, got %d", len(q))
	}
}

func TestSchedulerContainsPanics(t *testing.T) {
	src := newFakeSource()
	list := items(3)
	src.set(list[0].ItemName, "50")
	src.panics[list[1].ItemName] = true
	src.set(list[2].ItemName, "60")
	s := &Scheduler{Limiter: NewLimiter(2), Executor: fastExecutor(2), Source: src}

	quotes := s.Run(context.Background(), list)
	if !quotes[0].Available() || !quotes[2].Available() {
		t.Fatalf("healthy items affected: %+v", quotes)
	}
	var tf *TaskFailure
	if quotes[1].Outcome != models.OutcomeError || !errors.As(quotes[1].Err, &tf) {
		t.Fatalf("panic not contained: %+v", quotes[1])
	}
	if tf.Key != list[1].Key() || len(tf.Stack) == 0 {
		t.Fatalf("task failure: %+v", tf)
	}
}

func TestSchedulerCancelledBeforeStart(t *testing.T) {
	src := newFakeSource()
	list := items(5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Scheduler{Limiter: NewLimiter(2), Executor: fastExecutor(1), Source: src}

	quotes := s.Run(ctx, list)
	for i, q := range quotes {
		if q.Outcome != models.OutcomeUnavailable || !errors.Is(q.Err, context.Canceled) {
			t.Fatalf("quote %d: %+v", i, q)
		}
		if q.Key != list[i].Key() {
			t.Fatalf("quote %d has key %v", i, q.Key)
		}
	}
}

func TestSchedulerSourceCanGateOnLimiter(t *testing.T) {
	l := NewLimiter(1)
	gated := gatedSource{l: l}
	s := &Scheduler{Limiter: l, Executor: fastExecutor(1), Source: gated}
	done := make(chan []models.PriceQuote)
	go func() { done <- s.Run(context.Background(), items(3)) }()
	select {
	case quotes := <-done:
		for _, q := range quotes {
			if !q.Available() {
				t.Fatalf("quote: %+v", q)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("source gating on the shared limiter deadlocked")
	}
}

type gatedSource struct{ l *Limiter }

func (g gatedSource) Quote(ctx context.Context, item models.WatchItem) (decimal.Decimal, error) {
	release, err := g.l.Acquire(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	defer release()
	return decimal.NewFromInt(1), nil
}
