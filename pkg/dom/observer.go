package dom

import (
	"sync"

	"github.com/loom-ui/loom/pkg/cell"
)

// Teardown releases whatever a connection callback set up.
type Teardown func()

// connWatch tracks one OnConnected registration through its lifecycle:
// waiting for the node, connected (callback invoked), then done once the
// teardown has run.
type connWatch struct {
	doc *Document
	ref *cell.Source[*Node]

	// invoke runs the callback; for async registrations it spawns the
	// callback on its own goroutine.
	invoke func(*connWatch, *Node)

	// node is the node the callback was invoked for.
	node *Node

	invoked   bool
	done      bool
	cancelled bool

	cancelRef func()

	// mu guards teardown state against the async callback goroutine.
	mu sync.Mutex
	// teardown is the callback's return, once available.
	teardown Teardown
	// wantTeardown is set when disconnection is observed before an async
	// callback has returned; the teardown runs on arrival.
	wantTeardown bool
}

// OnConnected invokes fn once when the node held by ref is part of this
// document's tree: immediately if it already is, otherwise when a later
// flush (or ref assignment) finds it connected. The ref may start nil
// and be assigned later.
//
// fn may return a teardown, invoked exactly once when the node or any
// ancestor leaves the tree, as observed at a flush. A subtree detached
// and reattached between flushes fires neither callback nor teardown.
//
// Multiple registrations on the same node are independent. The returned
// cancel is idempotent and is also registered with the ambient cell
// scope, so disposing the mounting scope cancels the watch.
func (d *Document) OnConnected(ref *cell.Source[*Node], fn func(*Node) Teardown) (cancel func()) {
	return d.addConnWatch(ref, func(cw *connWatch, n *Node) {
		cw.setTeardown(fn(n))
	})
}

// OnConnectedAsync is OnConnected with the callback run on its own
// goroutine. The teardown is whatever the callback eventually returns;
// if disconnection is observed first, the teardown runs on arrival.
func (d *Document) OnConnectedAsync(ref *cell.Source[*Node], fn func(*Node) Teardown) (cancel func()) {
	return d.addConnWatch(ref, func(cw *connWatch, n *Node) {
		go func() { cw.setTeardown(fn(n)) }()
	})
}

func (d *Document) addConnWatch(ref *cell.Source[*Node], invoke func(*connWatch, *Node)) (cancel func()) {
	cw := &connWatch{doc: d, ref: ref, invoke: invoke}
	d.connWatches = append(d.connWatches, cw)

	// Re-evaluate when the ref is assigned, so an already connected node
	// fires without waiting for a flush.
	cw.cancelRef = ref.Watch(func(*Node) { cw.evaluate() })

	cancel = cw.cancel
	cell.OnCleanup(cancel)

	cw.evaluate()
	return cancel
}

// evaluateConnWatches runs the connection state transitions at flush.
func (d *Document) evaluateConnWatches() {
	watches := make([]*connWatch, len(d.connWatches))
	copy(watches, d.connWatches)
	for _, cw := range watches {
		cw.evaluate()
	}

	live := d.connWatches[:0]
	for _, cw := range d.connWatches {
		if !cw.done && !cw.cancelled {
			live = append(live, cw)
		}
	}
	d.connWatches = live
}

// evaluate advances the watch's state against current tree state.
func (cw *connWatch) evaluate() {
	if cw.done || cw.cancelled {
		return
	}

	if !cw.invoked {
		n := cw.ref.Peek()
		if n == nil || n.Document() != cw.doc {
			return
		}
		cw.invoked = true
		cw.node = n
		cw.invoke(cw, n)
		return
	}

	if cw.node.Document() != cw.doc {
		cw.done = true
		cw.runTeardown()
	}
}

// setTeardown records the callback's teardown, running it immediately
// when disconnection was already observed.
func (cw *connWatch) setTeardown(td Teardown) {
	cw.mu.Lock()
	if cw.wantTeardown {
		cw.mu.Unlock()
		if td != nil {
			td()
		}
		return
	}
	cw.teardown = td
	cw.mu.Unlock()
}

func (cw *connWatch) runTeardown() {
	cw.mu.Lock()
	td := cw.teardown
	cw.teardown = nil
	if td == nil {
		cw.wantTeardown = true
	}
	cw.mu.Unlock()

	if td != nil {
		td()
	}

	if cw.cancelRef != nil {
		cw.cancelRef()
	}
}

// cancel stops the watch. A callback that already ran gets its teardown
// now, since the owner unmounting is a disconnect from its point of
// view. Idempotent.
func (cw *connWatch) cancel() {
	if cw.cancelled || cw.done {
		return
	}
	cw.cancelled = true
	if cw.invoked {
		cw.runTeardown()
		return
	}
	if cw.cancelRef != nil {
		cw.cancelRef()
	}
}
