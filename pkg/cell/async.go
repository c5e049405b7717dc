package cell

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// Async is a cell whose value is produced by an asynchronous fetch.
// The fetch runs on its own goroutine; cells read inside the fetch
// become dependencies, and any change to one of them triggers a reload.
//
// Each reload gets a monotonically increasing sequence number and the
// context of the previous in-flight fetch is cancelled. A fetch that
// finishes after a newer one started is discarded entirely, success or
// failure, so out-of-order completions can never clobber fresher data.
type Async[T any] struct {
	id uint64

	fetch func(ctx context.Context) (T, error)

	// value holds the last successfully fetched value.
	value *Source[T]

	// err holds the failure from the most recent completed fetch, nil on
	// success.
	err *Source[error]

	// pending is true while a fetch is in flight.
	pending *Source[bool]

	// seq identifies the latest fetch; completions with a stale sequence
	// number are discarded.
	seq atomic.Uint64

	// sources are the cells read during the most recent fetch.
	sources   []*cellBase
	sourcesMu sync.Mutex

	// cancel aborts the in-flight fetch, if any.
	cancel   context.CancelFunc
	cancelMu sync.Mutex

	disposed atomic.Bool
}

// AsyncOption configures an Async cell at construction.
type AsyncOption[T any] func(*Async[T])

// WithInitial sets the value reported while the first fetch is in
// flight. Without it, Get returns the zero value until the fetch lands.
func WithInitial[T any](initial T) AsyncOption[T] {
	return func(a *Async[T]) {
		a.value = NewSource(initial)
	}
}

// NewAsync creates an async cell and starts its first fetch immediately.
// The cell is owned by the ambient scope, if any; disposing the scope
// cancels the in-flight fetch and detaches all dependencies.
func NewAsync[T any](fetch func(ctx context.Context) (T, error), opts ...AsyncOption[T]) *Async[T] {
	a := &Async[T]{
		id:      nextID(),
		fetch:   fetch,
		err:     NewSource[error](nil),
		pending: NewSource(true),
	}

	for _, opt := range opts {
		opt(a)
	}
	if a.value == nil {
		var zero T
		a.value = NewSource(zero)
	}

	if scope := getCurrentScope(); scope != nil {
		scope.OnCleanup(a.Dispose)
	}

	a.reload()
	return a
}

// Get returns the most recent fetched value (or the initial value before
// the first fetch lands), subscribing the current listener.
func (a *Async[T]) Get() T {
	return a.value.Get()
}

// Peek returns the value without subscribing.
func (a *Async[T]) Peek() T {
	return a.value.Peek()
}

// Pending reports whether a fetch is in flight, subscribing the current
// listener.
func (a *Async[T]) Pending() bool {
	return a.pending.Get()
}

// Err returns the failure from the most recent completed fetch, or nil.
// It subscribes the current listener.
func (a *Async[T]) Err() error {
	return a.err.Get()
}

// Watch registers fn to run whenever a fetch lands a new value.
func (a *Async[T]) Watch(fn func(T)) (cancel func()) {
	return a.value.Watch(fn)
}

// Reload forces a new fetch, superseding any in-flight one.
func (a *Async[T]) Reload() {
	if a.disposed.Load() {
		return
	}
	a.reload()
}

// MarkDirty schedules a reload because a dependency changed.
// Implements the Listener interface.
func (a *Async[T]) MarkDirty() {
	if a.disposed.Load() {
		return
	}
	if wv := getEvalContext().wave; wv != nil {
		wv.enqueue(a)
		return
	}
	a.reload()
}

// ID returns the unique identifier for this cell.
// Implements the Listener interface.
func (a *Async[T]) ID() uint64 {
	return a.id
}

// addSource records a dependency edge.
// Implements the dependent interface.
func (a *Async[T]) addSource(src *cellBase) {
	a.sourcesMu.Lock()
	defer a.sourcesMu.Unlock()

	for _, s := range a.sources {
		if s == src {
			return
		}
	}
	a.sources = append(a.sources, src)
}

// run reloads if any dependency changed value this wave.
func (a *Async[T]) run(wv *wave) {
	if a.disposed.Load() {
		return
	}

	a.sourcesMu.Lock()
	changed := false
	for _, s := range a.sources {
		if wv.changed[s.id] {
			changed = true
			break
		}
	}
	a.sourcesMu.Unlock()

	if changed {
		a.reload()
	}
}

// reload starts a new fetch, cancelling the previous one and pruning the
// previous dependency set. Completion applies value, error, and pending
// in one batch so downstream observers see a single consistent wave.
func (a *Async[T]) reload() {
	seq := a.seq.Add(1)

	a.cancelMu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.cancelMu.Unlock()

	a.sourcesMu.Lock()
	for _, src := range a.sources {
		src.unsubscribe(a)
	}
	a.sources = a.sources[:0]
	a.sourcesMu.Unlock()

	a.pending.Set(true)

	go func() {
		// Registered first so it runs after the batch below completes.
		defer cleanupEvalContext()
		defer cancel()

		var (
			value T
			err   error
		)
		WithListener(a, func() {
			value, err = runFetch(ctx, a.fetch)
		})

		// A stale completion, resolved or rejected, is discarded.
		if a.seq.Load() != seq || a.disposed.Load() {
			return
		}

		Batch(func() {
			if err != nil {
				a.err.Set(err)
			} else {
				a.err.Set(nil)
				a.value.Set(value)
			}
			a.pending.Set(false)
		})
	}()
}

// Dispose cancels the in-flight fetch and detaches from all
// dependencies. Idempotent.
func (a *Async[T]) Dispose() {
	if a.disposed.Swap(true) {
		return
	}

	// Bump seq so any in-flight completion is discarded.
	a.seq.Add(1)

	a.cancelMu.Lock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.cancelMu.Unlock()

	a.sourcesMu.Lock()
	for _, src := range a.sources {
		src.unsubscribe(a)
	}
	a.sources = nil
	a.sourcesMu.Unlock()
}

// runFetch executes the fetch, converting a panic into an error.
func runFetch[T any](ctx context.Context, fetch func(context.Context) (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cell: fetch panic: %v", r)
		}
	}()
	return fetch(ctx)
}

var (
	_ dependent            = (*Async[int])(nil)
	_ PendingReadable[int] = (*Async[int])(nil)
)
