package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cardwatch/internal/models"
	"cardwatch/internal/obs"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WatchStore is the durable watch-list the engine reads and updates.
type WatchStore interface {
	Load(ctx context.Context) ([]models.WatchItem, error)
	// UpdateTargets writes new target prices for the given keys in one
	// atomic step. Keys no longer present are ignored.
	UpdateTargets(ctx context.Context, targets map[models.Key]decimal.Decimal) error
}

// State is the phase of the check cycle.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateDispatching
	StateReconciling
	StateNotifying
	StatePersisting
)

var stateNames = [...]string{"idle", "loading", "dispatching", "reconciling", "notifying", "persisting"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ItemResult is the per-item line of a cycle report.
type ItemResult struct {
	Key       models.Key      `json:"key"`
	DisplayID string          `json:"collector_number,omitempty"`
	Outcome   models.Outcome  `json:"outcome"`
	Attempts  int             `json:"attempts"`
	Target    decimal.Decimal `json:"target"`
	Price     decimal.Decimal `json:"price"`
	NewTarget decimal.Decimal `json:"new_target"`
	Alerted   bool            `json:"alerted"`
	Error     string          `json:"error,omitempty"`
}

// CycleReport describes one finished (or aborted) cycle.
type CycleReport struct {
	ID          string                  `json:"id"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Items       int                     `json:"items"`
	Succeeded   int                     `json:"succeeded"`
	Unavailable int                     `json:"unavailable"`
	Failed      int                     `json:"failed"`
	Alerts      int                     `json:"alerts"`
	Updated     int                     `json:"updated"`
	Chunks      int                     `json:"chunks"`
	ChunksSent  int                     `json:"chunks_sent"`
	Dropped     int                     `json:"dropped"`
	NotifyError string                  `json:"notify_error,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Results     []ItemResult            `json:"results"`
	Durations   map[State]time.Duration `json:"-"` // time spent per phase
}

// Status is a snapshot of the engine for operators.
type Status struct {
	State    State        `json:"state"`
	CycleID  string       `json:"cycle_id,omitempty"`
	Done     int          `json:"done"`
	Total    int          `json:"total"`
	InFlight int          `json:"in_flight"`
	Last     *CycleReport `json:"last,omitempty"`
}

// Event is published to subscribers on every state change and every
// finished lookup.
type Event struct {
	CycleID  string    `json:"cycle_id"`
	State    State     `json:"state"`
	Progress *Progress `json:"progress,omitempty"`
}

// Options wires an Engine.
type Options struct {
	Store    WatchStore
	Source   PriceSource
	Notifier Notifier
	Limiter  *Limiter
	Executor *Executor
	Renderer *Renderer
	Batcher  *Batcher
}

// Engine runs check cycles: load the watch-list, look up every price, apply
// the update policy, send alerts and persist the new targets. At most one
// cycle runs at a time.
type Engine struct {
	store      WatchStore
	notifier   Notifier
	scheduler  *Scheduler
	reconciler *Reconciler
	batcher    *Batcher

	running sync.Mutex

	mu     sync.RWMutex
	status Status

	subsMu sync.Mutex
	subs   map[chan Event]struct{}
}

// New builds an engine. Limiter, Executor and Batcher get defaults when nil.
func New(opts Options) *Engine {
	if opts.Limiter == nil {
		opts.Limiter = NewLimiter(10)
	}
	if opts.Executor == nil {
		opts.Executor = NewExecutor(5, 2, 45*time.Second)
	}
	if opts.Batcher == nil {
		opts.Batcher = NewBatcher(DefaultMaxChunk)
	}
	if ps, ok := opts.Notifier.(PayloadSizer); ok && opts.Batcher.Size == nil {
		opts.Batcher.Size = ps.PayloadSize
	}
	e := &Engine{
		store:      opts.Store,
		notifier:   opts.Notifier,
		reconciler: &Reconciler{Renderer: opts.Renderer},
		batcher:    opts.Batcher,
		subs:       make(map[chan Event]struct{}),
	}
	e.scheduler = &Scheduler{
		Limiter:    opts.Limiter,
		Executor:   opts.Executor,
		Source:     opts.Source,
		OnProgress: e.progress,
	}
	return e
}

// RunCycle runs one full cycle. It returns ErrCycleInProgress when another
// cycle is running, and a *PersistenceError when the store could not be
// read or written. Per-item failures never make it fail. The report is
// non-nil whenever the cycle started.
//
// Cancelling ctx stops new lookups; alerts already decided are still sent
// and persisted.
func (e *Engine) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !e.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer e.running.Unlock()
	return e.cycle(ctx)
}

// Start runs a cycle in the background. It returns ErrCycleInProgress, and
// starts nothing, when a cycle or sync is already running.
func (e *Engine) Start(ctx context.Context) error {
	if !e.running.TryLock() {
		return ErrCycleInProgress
	}
	go func() {
		defer e.running.Unlock()
		if _, err := e.cycle(ctx); err != nil {
			obs.Logger.Warn("triggered cycle failed", "error", err)
		}
	}()
	return nil
}

func (e *Engine) cycle(ctx context.Context) (*CycleReport, error) {
	report := &CycleReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Durations: make(map[State]time.Duration),
	}
	log := obs.Logger.With("cycle_id", report.ID)
	cur, phase := StateIdle, time.Now()
	enter := func(s State) {
		if cur != StateIdle {
			report.Durations[cur] = time.Since(phase)
		}
		cur, phase = s, time.Now()
		e.setState(report.ID, s)
	}
	defer func() {
		enter(StateIdle)
		report.FinishedAt = time.Now()
		e.mu.Lock()
		e.status.Last = report
		e.status.CycleID = ""
		e.mu.Unlock()
	}()

	enter(StateLoading)
	items, err := e.store.Load(ctx)
	if err != nil {
		perr := &PersistenceError{Op: "load", Err: err}
		report.Error = perr.Error()
		log.Error("cycle aborted", "error", perr)
		return report, perr
	}
	report.Items = len(items)
	log.Info("cycle started", "items", len(items))

	enter(StateDispatching)
	e.mu.Lock()
	e.status.Done, e.status.Total = 0, len(items)
	e.mu.Unlock()
	quotes := e.scheduler.Run(ctx, items)

	enter(StateReconciling)
	updates := make(map[models.Key]decimal.Decimal)
	var frags []models.AlertFragment
	report.Results = make([]ItemResult, len(items))
	for i, item := range items {
		q := quotes[i]
		target, frag := e.reconciler.Reconcile(item, q)
		res := ItemResult{
			Key:       item.Key(),
			DisplayID: item.DisplayID,
			Outcome:   q.Outcome,
			Attempts:  q.Attempts,
			Target:    item.TargetPrice,
			Price:     q.Price,
			NewTarget: target,
		}
		switch q.Outcome {
		case models.OutcomeSuccess:
			report.Succeeded++
		case models.OutcomeUnavailable:
			report.Unavailable++
		default:
			report.Failed++
		}
		if q.Err != nil {
			res.Error = q.Err.Error()
			log.Warn("price unavailable", "item", res.Key.String(), "outcome", q.Outcome.String(), "attempts", q.Attempts, "error", q.Err)
		}
		if frag != nil {
			res.Alerted = true
			frags = append(frags, *frag)
			log.Info("price drop", "item", res.Key.String(), "old", frag.OldPrice.StringFixed(2), "new", frag.NewPrice.StringFixed(2))
		}
		if !target.Equal(item.TargetPrice) {
			updates[item.Key()] = target
		}
		report.Results[i] = res
	}
	report.Alerts = len(frags)
	report.Updated = len(updates)

	// Delivery and persistence run to completion even after cancellation.
	dctx := context.WithoutCancel(ctx)

	enter(StateNotifying)
	if len(frags) > 0 {
		d, nerr := e.batcher.Deliver(dctx, e.notifier, frags)
		report.Chunks, report.ChunksSent, report.Dropped = d.Chunks, d.Sent, d.Dropped
		if nerr != nil {
			report.NotifyError = nerr.Error()
			log.Error("alert delivery failed", "error", nerr)
		}
	}

	enter(StatePersisting)
	if len(updates) > 0 {
		if err := e.store.UpdateTargets(dctx, updates); err != nil {
			perr := &PersistenceError{Op: "save", Err: err}
			report.Error = perr.Error()
			log.Error("cycle aborted", "error", perr)
			return report, perr
		}
	}

	log.Info("cycle finished",
		"succeeded", report.Succeeded,
		"unavailable", report.Unavailable,
		"failed", report.Failed,
		"alerts", report.Alerts,
		"updated", report.Updated,
		"elapsed", time.Since(report.StartedAt).Round(time.Millisecond),
	)
	return report, nil
}

// Sync quotes every item and resets each target to the quoted price,
// whether higher or lower. Items whose quote is not a success keep their
// target. No alerts are sent. Sync shares the single-flight guard with
// RunCycle.
func (e *Engine) Sync(ctx context.Context) (*CycleReport, error) {
	if !e.running.TryLock() {
		return nil, ErrCycleInProgress
	}
	defer e.running.Unlock()

	report := &CycleReport{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		Durations: make(map[State]time.Duration),
	}
	log := obs.Logger.With("cycle_id", report.ID, "mode", "sync")
	defer func() {
		e.setState(report.ID, StateIdle)
		e.mu.Lock()
		e.status.CycleID = ""
		e.mu.Unlock()
		report.FinishedAt = time.Now()
	}()

	e.setState(report.ID, StateLoading)
	items, err := e.store.Load(ctx)
	if err != nil {
		perr := &PersistenceError{Op: "load", Err: err}
		report.Error = perr.Error()
		return report, perr
	}
	report.Items = len(items)

	e.setState(report.ID, StateDispatching)
	e.mu.Lock()
	e.status.Done, e.status.Total = 0, len(items)
	e.mu.Unlock()
	quotes := e.scheduler.Run(ctx, items)

	updates := make(map[models.Key]decimal.Decimal)
	report.Results = make([]ItemResult, len(items))
	for i, item := range items {
		q := quotes[i]
		res := ItemResult{
			Key:       item.Key(),
			DisplayID: item.DisplayID,
			Outcome:   q.Outcome,
			Attempts:  q.Attempts,
			Target:    item.TargetPrice,
			Price:     q.Price,
			NewTarget: item.TargetPrice,
		}
		switch q.Outcome {
		case models.OutcomeSuccess:
			report.Succeeded++
			res.NewTarget = q.Price
			if !q.Price.Equal(item.TargetPrice) {
				updates[item.Key()] = q.Price
			}
		case models.OutcomeUnavailable:
			report.Unavailable++
		default:
			report.Failed++
		}
		if q.Err != nil {
			res.Error = q.Err.Error()
		}
		report.Results[i] = res
	}
	report.Updated = len(updates)

	e.setState(report.ID, StatePersisting)
	if len(updates) > 0 {
		if err := e.store.UpdateTargets(context.WithoutCancel(ctx), updates); err != nil {
			perr := &PersistenceError{Op: "save", Err: err}
			report.Error = perr.Error()
			log.Error("sync aborted", "error", perr)
			return report, perr
		}
	}
	log.Info("targets synced", "items", report.Items, "updated", report.Updated, "unavailable", report.Unavailable+report.Failed)
	return report, nil
}

// Run runs a cycle immediately and then again interval after each cycle
// ends, until ctx is done. A failed cycle is logged and the loop carries on.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-timer.C:
		case <-ctx.Done():
			obs.Logger.Info("monitor loop stopped")
			return
		}
		e.runLogged(ctx)
		timer.Reset(interval)
	}
}

func (e *Engine) runLogged(ctx context.Context) {
	_, err := e.RunCycle(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrCycleInProgress):
		obs.Logger.Info("skipping tick, cycle still running")
	default:
		obs.Logger.Error("cycle failed, retrying next tick", "error", err)
	}
}

// Status returns a snapshot of the engine state.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := e.status
	s.InFlight = e.scheduler.Limiter.InFlight()
	return s
}

// Subscribe returns a channel of engine events and a func that unsubscribes.
// Slow subscribers miss events rather than block the cycle.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	e.subsMu.Lock()
	e.subs[ch] = struct{}{}
	e.subsMu.Unlock()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, ch)
			e.subsMu.Unlock()
			close(ch)
		})
	}
}

func (e *Engine) publish(ev Event) {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (e *Engine) setState(cycleID string, s State) {
	e.mu.Lock()
	e.status.State = s
	if s != StateIdle {
		e.status.CycleID = cycleID
	}
	e.mu.Unlock()
	e.publish(Event{CycleID: cycleID, State: s})
}

func (e *Engine) progress(p Progress) {
	e.mu.Lock()
	if p.Done > e.status.Done {
		e.status.Done = p.Done
	}
	id := e.status.CycleID
	e.mu.Unlock()
	obs.Logger.Debug("lookup finished", "cycle_id", id, "item", p.Key.String(), "outcome", p.Outcome.String(), "done", p.Done, "total", p.Total)
	e.publish(Event{CycleID: id, State: StateDispatching, Progress: &p})
}
