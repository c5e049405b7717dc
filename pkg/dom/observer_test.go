package dom

import (
	"testing"
	"time"

	"github.com/loom-ui/loom/pkg/cell"
)

func TestOnConnectedImmediateWhenAlreadyConnected(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	n := NewElement("div")
	doc.Root().AppendChild(n)

	ref := cell.NewSource(n)

	var connected *Node
	doc.OnConnected(ref, func(n *Node) Teardown {
		connected = n
		return nil
	})

	if connected != n {
		t.Error("callback not invoked synchronously for connected node")
	}
}

func TestOnConnectedFiresOnFlushAfterInsert(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	n := NewElement("div")
	ref := cell.NewSource(n)

	calls := 0
	doc.OnConnected(ref, func(*Node) Teardown {
		calls++
		return nil
	})

	if calls != 0 {
		t.Fatal("callback fired before node was connected")
	}

	doc.Root().AppendChild(n)
	if calls != 0 {
		t.Fatal("callback fired before flush")
	}

	doc.Flush()
	if calls != 1 {
		t.Errorf("callback fired %d times after flush, want 1", calls)
	}

	// Later flushes must not re-fire.
	doc.Root().AppendChild(NewText("noise"))
	doc.Flush()
	if calls != 1 {
		t.Errorf("callback fired %d times total, want 1", calls)
	}
}

func TestOnConnectedRefAssignedLater(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	ref := cell.NewSource[*Node](nil)

	calls := 0
	doc.OnConnected(ref, func(*Node) Teardown {
		calls++
		return nil
	})

	n := NewElement("div")
	doc.Root().AppendChild(n)
	doc.Flush()
	if calls != 0 {
		t.Fatal("callback fired while ref was still nil")
	}

	ref.Set(n) // node already connected: fires on assignment
	if calls != 1 {
		t.Errorf("callback fired %d times after ref assignment, want 1", calls)
	}
}

func TestOnConnectedTeardownOnRemoval(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	n := NewElement("div")
	doc.Root().AppendChild(n)
	ref := cell.NewSource(n)

	teardowns := 0
	doc.OnConnected(ref, func(*Node) Teardown {
		return func() { teardowns++ }
	})

	doc.Root().RemoveChild(n)
	if teardowns != 0 {
		t.Fatal("teardown ran before flush")
	}

	doc.Flush()
	if teardowns != 1 {
		t.Errorf("teardown ran %d times, want 1", teardowns)
	}

	doc.Flush()
	if teardowns != 1 {
		t.Errorf("teardown ran %d times after extra flush, want 1", teardowns)
	}
}

func TestOnConnectedAncestorRemovalCounts(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	wrapper := NewElement("section")
	n := NewElement("div")
	wrapper.AppendChild(n)
	doc.Root().AppendChild(wrapper)
	ref := cell.NewSource(n)

	teardowns := 0
	doc.OnConnected(ref, func(*Node) Teardown {
		return func() { teardowns++ }
	})

	doc.Root().RemoveChild(wrapper)
	doc.Flush()

	if teardowns != 1 {
		t.Errorf("teardown ran %d times after ancestor removal, want 1", teardowns)
	}
}

func TestOnConnectedRelocationWithinOneFlushFiresNothing(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	left := NewElement("div")
	right := NewElement("div")
	doc.Root().AppendChild(left)
	doc.Root().AppendChild(right)

	n := NewElement("widget")
	left.AppendChild(n)
	doc.Flush()

	ref := cell.NewSource(n)
	connects := 0
	teardowns := 0
	doc.OnConnected(ref, func(*Node) Teardown {
		connects++
		return func() { teardowns++ }
	})
	if connects != 1 {
		t.Fatalf("initial connect count = %d, want 1", connects)
	}

	// Detach and reattach before the next flush: a relocation, not a
	// removal.
	n.Detach()
	right.AppendChild(n)
	doc.Flush()

	if connects != 1 || teardowns != 0 {
		t.Errorf("relocation fired connects=%d teardowns=%d, want 1/0", connects, teardowns)
	}
}

func TestOnConnectedMultipleRegistrations(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	n := NewElement("div")
	ref := cell.NewSource(n)

	var order []string
	doc.OnConnected(ref, func(*Node) Teardown {
		order = append(order, "first")
		return nil
	})
	doc.OnConnected(ref, func(*Node) Teardown {
		order = append(order, "second")
		return nil
	})

	doc.Root().AppendChild(n)
	doc.Flush()

	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("callbacks fired %v, want [first second]", order)
	}
}

func TestOnConnectedCancelRunsTeardownOnce(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	n := NewElement("div")
	doc.Root().AppendChild(n)
	ref := cell.NewSource(n)

	teardowns := 0
	cancel := doc.OnConnected(ref, func(*Node) Teardown {
		return func() { teardowns++ }
	})

	cancel()
	cancel()

	if teardowns != 1 {
		t.Fatalf("teardown ran %d times after cancel, want 1", teardowns)
	}

	// The node leaving the tree later must not re-run it.
	doc.Root().RemoveChild(n)
	doc.Flush()

	if teardowns != 1 {
		t.Errorf("teardown ran %d times total, want 1", teardowns)
	}
}

func TestOnConnectedAsyncTeardown(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	n := NewElement("div")
	doc.Root().AppendChild(n)
	ref := cell.NewSource(n)

	ready := make(chan struct{})
	torndown := make(chan struct{})
	doc.OnConnectedAsync(ref, func(*Node) Teardown {
		<-ready
		return func() { close(torndown) }
	})

	// Disconnect while the async callback is still running; the teardown
	// must run when the callback finally returns.
	doc.Root().RemoveChild(n)
	doc.Flush()
	close(ready)

	select {
	case <-torndown:
	case <-time.After(2 * time.Second):
		t.Fatal("async teardown never ran")
	}
}

func TestOnConnectedCancelledByScopeDisposal(t *testing.T) {
	doc := NewDocument(NewElement("main"))
	n := NewElement("div")
	ref := cell.NewSource(n)

	scope := cell.NewScope(nil)
	calls := 0
	cell.WithScope(scope, func() {
		doc.OnConnected(ref, func(*Node) Teardown {
			calls++
			return nil
		})
	})

	scope.Dispose()
	doc.Root().AppendChild(n)
	doc.Flush()

	if calls != 0 {
		t.Errorf("callback fired %d times after owning scope disposal, want 0", calls)
	}
}
