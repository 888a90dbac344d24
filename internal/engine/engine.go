// Package engine is the single point of truth for restriction semantics:
// validating new edges, resolving and cancelling them, and cascading the
// effects of task completion to dependents.
//
// The engine owns a copy-on-write snapshot of the restriction graph held in
// an atomic pointer. Readers always see a fully built snapshot; writers
// rebuild and swap. Change-feed events from the stores trigger the same
// rebuild, so externally written records converge too.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/taskgate/taskgate/internal/feed"
	"github.com/taskgate/taskgate/internal/graph"
	"github.com/taskgate/taskgate/internal/model"
	"github.com/taskgate/taskgate/internal/store"
)

// Cascade retry defaults. Completion cascades must eventually converge, so
// transient store failures are retried with exponential backoff.
const (
	defaultRetryAttempts    = 4
	defaultRetryBackoff     = 50 * time.Millisecond
	defaultDependencyWindow = 24 * time.Hour
)

// timePrecision matches what the store columns round-trip.
const timePrecision = time.Second

// Engine applies restriction transitions and serves graph-derived queries.
type Engine struct {
	store *store.Store
	sub   *feed.Subscription

	snapshot atomic.Pointer[graph.Snapshot]

	clock            func() time.Time
	dependencyWindow time.Duration
	retryAttempts    int
	retryBackoff     time.Duration

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock injects a time source. Tests pin it.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithDependencyWindow bounds how long completed dependencies keep producing
// notifications.
func WithDependencyWindow(window time.Duration) Option {
	return func(e *Engine) { e.dependencyWindow = window }
}

// WithRetry overrides the cascade retry policy.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(e *Engine) {
		e.retryAttempts = attempts
		e.retryBackoff = backoff
	}
}

// New builds the initial snapshot and, when events is non-nil, starts
// consuming change notifications. Callers must Close the engine.
func New(ctx context.Context, st *store.Store, events *feed.Feed, opts ...Option) (*Engine, error) {
	if st == nil {
		return nil, errors.New("new engine: store is nil")
	}

	e := &Engine{
		store:            st,
		clock:            time.Now,
		dependencyWindow: defaultDependencyWindow,
		retryAttempts:    defaultRetryAttempts,
		retryBackoff:     defaultRetryBackoff,
	}

	for _, opt := range opts {
		opt(e)
	}

	err := e.Refresh(ctx)
	if err != nil {
		return nil, fmt.Errorf("new engine: %w", err)
	}

	if events != nil {
		e.sub = events.Subscribe()

		e.wg.Add(1)

		go e.watch()
	}

	return e, nil
}

// Close stops the change-feed consumer. The snapshot stays readable.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		if e.sub != nil {
			e.sub.Cancel()
		}

		e.wg.Wait()
	})

	return nil
}

// Refresh rebuilds the snapshot from current store state and swaps it in.
func (e *Engine) Refresh(ctx context.Context) error {
	tasks, err := e.store.ListTasks(ctx, store.TaskQuery{})
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	restrictions, err := e.store.ListRestrictions(ctx, store.RestrictionQuery{})
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}

	e.snapshot.Store(graph.Build(tasks, restrictions, e.clock()))

	return nil
}

// Snapshot returns the current graph view. Never nil after New succeeds.
func (e *Engine) Snapshot() *graph.Snapshot {
	return e.snapshot.Load()
}

// watch rebuilds the snapshot on every change notification. The event is a
// cue, not a payload: pending events are drained so a burst costs one
// rebuild.
func (e *Engine) watch() {
	defer e.wg.Done()

	for range e.sub.C {
		for {
			select {
			case _, ok := <-e.sub.C:
				if !ok {
					return
				}

				continue
			default:
			}

			break
		}

		_ = e.Refresh(context.Background())
	}
}

// withRetry runs op, retrying on store unavailability with exponential
// backoff. Other errors surface immediately.
func (e *Engine) withRetry(ctx context.Context, op func() error) error {
	var err error

	backoff := e.retryBackoff

	for attempt := 0; attempt < e.retryAttempts; attempt++ {
		err = op()
		if err == nil || !errors.Is(err, model.ErrStoreUnavailable) {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
		}
	}

	return err
}
