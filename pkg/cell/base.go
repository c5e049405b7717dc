package cell

import "sync"

// cellBase provides type-erased subscriber management.
// It is embedded in Source[T], Derived[T], and the async value cells to
// share subscription logic.
type cellBase struct {
	id uint64

	// subs are the listeners subscribed to this cell, in registration
	// order. Delivery order is registration order.
	subs []Listener

	// subMu protects the subs slice.
	subMu sync.RWMutex

	// owner is non-nil when this base belongs to a derived cell; it is the
	// hook the wave uses to settle the cell before delivering watchers.
	owner settler
}

// subscribe adds a listener to this cell's subscribers.
// Deduplicates by listener ID; registration order is preserved.
func (b *cellBase) subscribe(l Listener) {
	if l == nil {
		return
	}

	b.subMu.Lock()
	defer b.subMu.Unlock()

	lid := l.ID()
	for _, existing := range b.subs {
		if existing.ID() == lid {
			return
		}
	}

	b.subs = append(b.subs, l)
}

// unsubscribe removes a listener from this cell's subscribers.
// Removal keeps the remaining registration order intact.
func (b *cellBase) unsubscribe(l Listener) {
	if l == nil {
		return
	}

	b.subMu.Lock()
	defer b.subMu.Unlock()

	lid := l.ID()
	for i, existing := range b.subs {
		if existing.ID() == lid {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// notifySubscribers marks every subscriber dirty, in registration order.
// Uses copy-before-notify to avoid holding the lock during notification.
func (b *cellBase) notifySubscribers() {
	b.subMu.RLock()
	subs := make([]Listener, len(b.subs))
	copy(subs, b.subs)
	b.subMu.RUnlock()

	for _, sub := range subs {
		sub.MarkDirty()
	}
}

// track registers the current listener (if any) as a subscriber of this
// cell and records the dependency edge on the listener side.
func (b *cellBase) track() {
	listener := getCurrentListener()
	if listener == nil {
		return
	}

	b.subscribe(listener)

	if dep, ok := listener.(dependent); ok {
		dep.addSource(b)
	}
}

// dependent is a listener that records its dependency edges so they can
// be pruned and rebuilt on every evaluation.
type dependent interface {
	Listener
	addSource(src *cellBase)
}
