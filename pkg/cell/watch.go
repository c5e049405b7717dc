package cell

import (
	"sync"
	"sync/atomic"
)

// watch delivers value changes of a single cell to a callback.
// It is created via the Watch/WatchNow methods on cells.
type watch[T any] struct {
	id      uint64
	subject *cellBase
	peek    func() T
	fn      func(T)

	cancelled atomic.Bool
}

// newWatch subscribes a watcher to subject and returns its cancel func.
// The watch is registered with the ambient scope so that disposing the
// scope unregisters it.
func newWatch[T any](subject *cellBase, peek func() T, fn func(T)) (cancel func()) {
	w := &watch[T]{
		id:      nextID(),
		subject: subject,
		peek:    peek,
		fn:      fn,
	}
	subject.subscribe(w)

	cancel = w.cancel
	if scope := getCurrentScope(); scope != nil {
		scope.own(cancel)
	}
	return cancel
}

// MarkDirty queues the watch for delivery at the end of the current wave.
// Implements the Listener interface.
func (w *watch[T]) MarkDirty() {
	if w.cancelled.Load() {
		return
	}
	if wv := getEvalContext().wave; wv != nil {
		wv.enqueue(w)
		return
	}
	// Marked outside a wave: deliver directly.
	w.fn(w.peek())
}

// ID returns the unique identifier for this watch.
// Implements the Listener interface.
func (w *watch[T]) ID() uint64 {
	return w.id
}

// run delivers the change if the watched cell's value actually changed
// this wave. A derived subject that errored or settled unchanged does not
// notify.
func (w *watch[T]) run(wv *wave) {
	if w.cancelled.Load() {
		return
	}
	if !wv.changed[w.subject.id] {
		return
	}
	w.fn(w.peek())
}

// cancel stops delivery. Idempotent.
func (w *watch[T]) cancel() {
	if w.cancelled.Swap(true) {
		return
	}
	w.subject.unsubscribe(w)
}

// Effect is a reactive side effect that re-runs when any cell it read
// during its last execution changes. Unlike a watch, an effect tracks an
// arbitrary set of dependencies discovered dynamically while it runs.
//
// Effects run synchronously inside the propagation wave, after every
// invalidated derived cell has settled, so they always observe fully
// settled dependency values.
type Effect struct {
	id uint64

	// fn is the effect body. It may return a Cleanup invoked before the
	// next run and on disposal.
	fn func() Cleanup

	// cleanup is the cleanup from the last run.
	cleanup Cleanup

	// sources are the cells read during the last run.
	sources   []*cellBase
	sourcesMu sync.Mutex

	disposed atomic.Bool
}

// NewEffect creates an effect, runs it immediately, and registers it with
// the ambient scope for disposal.
func NewEffect(fn func() Cleanup) *Effect {
	e := &Effect{
		id: nextID(),
		fn: fn,
	}

	if scope := getCurrentScope(); scope != nil {
		scope.registerEffect(e)
	}

	e.rerun()
	return e
}

// MarkDirty queues the effect for this wave's delivery phase.
// Implements the Listener interface.
func (e *Effect) MarkDirty() {
	if e.disposed.Load() {
		return
	}
	if wv := getEvalContext().wave; wv != nil {
		wv.enqueue(e)
		return
	}
	e.rerun()
}

// ID returns the unique identifier for this effect.
// Implements the Listener interface.
func (e *Effect) ID() uint64 {
	return e.id
}

// addSource records a dependency edge.
// Implements the dependent interface.
func (e *Effect) addSource(src *cellBase) {
	e.sourcesMu.Lock()
	defer e.sourcesMu.Unlock()

	for _, s := range e.sources {
		if s == src {
			return
		}
	}
	e.sources = append(e.sources, src)
}

// run re-executes the effect if any of its dependencies changed value.
func (e *Effect) run(wv *wave) {
	if e.disposed.Load() {
		return
	}

	e.sourcesMu.Lock()
	changed := false
	for _, s := range e.sources {
		if wv.changed[s.id] {
			changed = true
			break
		}
	}
	e.sourcesMu.Unlock()

	if changed {
		e.rerun()
	}
}

// rerun executes the effect body with dependency tracking, pruning the
// previous run's edges first.
func (e *Effect) rerun() {
	if e.disposed.Load() {
		return
	}

	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}

	e.sourcesMu.Lock()
	for _, src := range e.sources {
		src.unsubscribe(e)
	}
	e.sources = e.sources[:0]
	e.sourcesMu.Unlock()

	old := setCurrentListener(e)
	e.cleanup = e.fn()
	setCurrentListener(old)
}

// Dispose runs the pending cleanup and unsubscribes from all sources.
// Idempotent.
func (e *Effect) Dispose() {
	if e.disposed.Swap(true) {
		return
	}

	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}

	e.sourcesMu.Lock()
	for _, src := range e.sources {
		src.unsubscribe(e)
	}
	e.sources = nil
	e.sourcesMu.Unlock()
}

var _ dependent = (*Effect)(nil)
