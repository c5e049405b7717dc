package cell

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Derived is a cached computation that automatically tracks its
// dependencies. The dependency set is rebuilt on every recomputation, so
// it always equals the set of cells actually read in the most recent
// evaluation.
//
// Derived cells recompute during the propagation wave that invalidated
// them; reads between writes return the cached value. Within one wave a
// derived cell recomputes at most once, however many of its dependencies
// changed. If a recomputation's inputs turn out unchanged, the cached
// value is kept and downstream cells are not disturbed.
//
// Derived cells can themselves be watched, so chains of derived values
// compose.
type Derived[T any] struct {
	base cellBase

	// compute produces the value. An error (or panic, which is recovered
	// and converted) leaves the previous value in place; the error is
	// returned to readers via Try/Err and watchers are not notified.
	compute func() (T, error)

	// value is the cached computed value.
	value T

	// err is the error from the most recent evaluation, nil on success.
	err error

	// valueMu protects value and err.
	valueMu sync.RWMutex

	// valid is false while the cell is invalidated mid-wave.
	valid atomic.Bool

	// sources are the cells read during the most recent evaluation.
	sources   []*cellBase
	sourcesMu sync.Mutex

	// equal is the equality function for change detection.
	equal func(T, T) bool

	// computing guards against recursion through circular dependencies.
	computing atomic.Bool
}

// NewDerived creates a derived cell and evaluates compute immediately to
// establish the initial value and dependency set.
func NewDerived[T any](compute func() (T, error)) *Derived[T] {
	d := &Derived[T]{
		base:    cellBase{id: nextID()},
		compute: compute,
	}
	d.base.owner = d
	d.recompute(nil)
	d.valid.Store(true)
	return d
}

// Map creates a derived cell from a computation that cannot fail.
func Map[T any](compute func() T) *Derived[T] {
	return NewDerived(func() (T, error) {
		return compute(), nil
	})
}

// Get returns the cell's value, subscribing the current listener.
// If the most recent evaluation failed, the last good value is returned;
// use Try or Err to observe the failure.
func (d *Derived[T]) Get() T {
	d.base.track()

	if !d.valid.Load() {
		d.settle(getEvalContext().wave)
	}

	d.valueMu.RLock()
	value := d.value
	d.valueMu.RUnlock()
	return value
}

// Try returns the cell's value together with the error from its most
// recent evaluation, subscribing the current listener.
func (d *Derived[T]) Try() (T, error) {
	d.base.track()

	if !d.valid.Load() {
		d.settle(getEvalContext().wave)
	}

	d.valueMu.RLock()
	defer d.valueMu.RUnlock()
	return d.value, d.err
}

// Err returns the error from the most recent evaluation, or nil.
func (d *Derived[T]) Err() error {
	if !d.valid.Load() {
		d.settle(getEvalContext().wave)
	}

	d.valueMu.RLock()
	defer d.valueMu.RUnlock()
	return d.err
}

// Peek returns the value without subscribing.
func (d *Derived[T]) Peek() T {
	if !d.valid.Load() {
		d.settle(getEvalContext().wave)
	}

	d.valueMu.RLock()
	defer d.valueMu.RUnlock()
	return d.value
}

// Watch registers fn to run whenever this cell's value changes.
// fn is not called for evaluations that fail or produce an equal value.
func (d *Derived[T]) Watch(fn func(T)) (cancel func()) {
	return newWatch[T](&d.base, d.Peek, fn)
}

// WatchNow runs fn once with the current value, then behaves like Watch.
func (d *Derived[T]) WatchNow(fn func(T)) (cancel func()) {
	fn(d.Peek())
	return d.Watch(fn)
}

// MarkDirty invalidates the cell and propagates invalidation downstream.
// Implements the Listener interface.
func (d *Derived[T]) MarkDirty() {
	if d.valid.CompareAndSwap(true, false) {
		if w := getEvalContext().wave; w != nil {
			w.markDirty(d)
		}
		d.base.notifySubscribers()
	}
}

// ID returns the unique identifier for this cell.
// Implements the Listener interface.
func (d *Derived[T]) ID() uint64 {
	return d.base.id
}

// WithEquals configures the cell with a custom equality function.
func (d *Derived[T]) WithEquals(fn func(T, T) bool) *Derived[T] {
	d.equal = fn
	return d
}

// addSource records a dependency edge.
// Implements the dependent interface.
func (d *Derived[T]) addSource(src *cellBase) {
	d.sourcesMu.Lock()
	defer d.sourcesMu.Unlock()

	for _, s := range d.sources {
		if s == src {
			return
		}
	}
	d.sources = append(d.sources, src)
}

// settle brings an invalidated cell up to date during a wave. Sources
// that are themselves unsettled derived cells settle first, so each cell
// in a diamond recomputes exactly once. If no source actually changed
// value this wave, the cached value revalidates without recomputing.
func (d *Derived[T]) settle(w *wave) {
	if d.valid.Load() {
		return
	}

	if w != nil {
		d.sourcesMu.Lock()
		sources := make([]*cellBase, len(d.sources))
		copy(sources, d.sources)
		d.sourcesMu.Unlock()

		changed := false
		for _, s := range sources {
			if s.owner != nil {
				s.owner.settle(w)
			}
			if w.changed[s.id] {
				changed = true
			}
		}
		if !changed {
			d.valid.Store(true)
			return
		}
	}

	d.recompute(w)
	d.valid.Store(true)
}

// recompute runs the computation, rebuilds the dependency set, and
// records a value change on the wave.
func (d *Derived[T]) recompute(w *wave) {
	if d.computing.Swap(true) {
		// Circular dependency; keep the cached value.
		return
	}
	defer d.computing.Store(false)

	// Prune stale edges from the previous evaluation.
	d.sourcesMu.Lock()
	for _, src := range d.sources {
		src.unsubscribe(d)
	}
	d.sources = d.sources[:0]
	d.sourcesMu.Unlock()

	old := setCurrentListener(d)
	newValue, err := runDerivation(d.compute)
	setCurrentListener(old)

	d.valueMu.Lock()
	defer d.valueMu.Unlock()

	if err != nil {
		// Value not updated; the error surfaces to readers.
		d.err = err
		return
	}

	changed := !d.equals(d.value, newValue)
	d.value = newValue
	d.err = nil

	if changed && w != nil {
		w.changed[d.base.id] = true
	}
}

// runDerivation executes compute, converting a panic into an error so a
// broken derivation cannot take down the propagation wave.
func runDerivation[T any](compute func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("cell: derivation panic: %v", r)
		}
	}()
	return compute()
}

func (d *Derived[T]) equals(a, b T) bool {
	if d.equal != nil {
		return d.equal(a, b)
	}
	return defaultEquals(a, b)
}

// Ensure Derived satisfies the internal interfaces.
var (
	_ dependent = (*Derived[int])(nil)
	_ settler   = (*Derived[int])(nil)
)
