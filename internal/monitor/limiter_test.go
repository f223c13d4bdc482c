package monitor

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterCapacity(t *testing.T) {
	l := NewLimiter(2)
	ctx := context.Background()
	r1, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	r2, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if l.InFlight() != 2 {
		t.Fatalf("in flight: %d", l.InFlight())
	}

	tctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(tctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}

	r1()
	r1() // idempotent
	if l.InFlight() != 1 {
		t.Fatalf("in flight after release: %d", l.InFlight())
	}
	r3, err := l.Acquire(ctx)
	if err != nil {
		t.Fatal(err)
	}
	r2()
	r3()
	if l.InFlight() != 0 {
		t.Fatalf("in flight at end: %d", l.InFlight())
	}
}

func TestLimiterReentrant(t *testing.T) {
	l := NewLimiter(1)
	release, err := l.Acquire(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(l.WithPermit(context.Background()), 20*time.Millisecond)
	defer cancel()
	inner, err := l.Acquire(ctx)
	if err != nil {
		t.Fatalf("holder should not block: %v", err)
	}
	inner()
	if l.InFlight() != 1 {
		t.Fatalf("nested release must not free the outer permit: %d", l.InFlight())
	}
}

func TestLimiterMinimumSize(t *testing.T) {
	if NewLimiter(0).Size() != 1 {
		t.Fatal("size should be clamped to 1")
	}
}
