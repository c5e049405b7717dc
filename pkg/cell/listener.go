package cell

// Listener is anything that can be notified when a dependency changes.
// This interface is implemented by derived cells, watches, and effects.
type Listener interface {
	// MarkDirty notifies the listener that one of its dependencies has changed.
	// For derived cells, this invalidates the cached value.
	// For watches and effects, this queues them for delivery in the current
	// propagation wave.
	MarkDirty()

	// ID returns a unique identifier for this listener.
	// Used for deduplication during wave delivery and batch processing.
	ID() uint64
}

// Cleanup is a function returned by effects to release resources.
// It is called before the effect re-runs and when the effect is disposed.
type Cleanup func()

// Readable is the read side shared by Source, Derived, and Async cells.
type Readable[T any] interface {
	// Get returns the current value and registers a dependency when called
	// during a tracked evaluation.
	Get() T

	// Peek returns the current value without registering a dependency.
	Peek() T
}

// Watchable is a Readable whose changes can be observed. All cell kinds
// implement it.
type Watchable[T any] interface {
	Readable[T]

	// Watch registers fn to run on every future change. The returned
	// cancel is idempotent.
	Watch(fn func(T)) (cancel func())
}

// PendingReadable is a Readable with an async pending state. Async cells
// implement it; branch reconcilers use it to keep pending discriminants
// unmounted.
type PendingReadable[T any] interface {
	Readable[T]

	// Pending reports whether a computation is outstanding and the current
	// value is stale or initial.
	Pending() bool
}

// settler is a cell that participates in the recompute phase of a wave.
// Derived cells implement it; source cells have nothing to settle.
type settler interface {
	settle(w *wave)
}

// runner is a listener delivered during the final phase of a wave, after
// every invalidated derived cell has settled.
type runner interface {
	Listener
	run(w *wave)
}
