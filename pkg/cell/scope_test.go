package cell

import (
	"strings"
	"testing"
)

func TestScopeDisposeRunsCleanups(t *testing.T) {
	scope := NewScope(nil)

	var order []string
	scope.OnCleanup(func() { order = append(order, "first") })
	scope.OnCleanup(func() { order = append(order, "second") })

	scope.Dispose()

	// Cleanups run in reverse registration order.
	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("cleanup order = %v, want [second first]", order)
	}
}

func TestScopeDisposeIdempotent(t *testing.T) {
	scope := NewScope(nil)

	calls := 0
	scope.OnCleanup(func() { calls++ })

	scope.Dispose()
	scope.Dispose()

	if calls != 1 {
		t.Errorf("cleanup ran %d times, want 1", calls)
	}
}

func TestScopeOnCleanupAfterDisposeRunsImmediately(t *testing.T) {
	scope := NewScope(nil)
	scope.Dispose()

	ran := false
	scope.OnCleanup(func() { ran = true })

	if !ran {
		t.Error("cleanup registered after dispose did not run immediately")
	}
}

func TestScopeDisposeCascadesToChildren(t *testing.T) {
	parent := NewScope(nil)
	childA := NewScope(parent)
	childB := NewScope(parent)
	grandchild := NewScope(childA)

	var order []string
	childA.OnCleanup(func() { order = append(order, "childA") })
	childB.OnCleanup(func() { order = append(order, "childB") })
	grandchild.OnCleanup(func() { order = append(order, "grandchild") })

	parent.Dispose()

	// Children dispose in reverse creation order, depth first.
	want := []string{"childB", "grandchild", "childA"}
	if len(order) != len(want) {
		t.Fatalf("cleanup order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}

	if !childA.IsDisposed() || !childB.IsDisposed() || !grandchild.IsDisposed() {
		t.Error("disposal did not cascade to all descendants")
	}
}

func TestScopeChildDisposeDetachesFromParent(t *testing.T) {
	parent := NewScope(nil)
	child := NewScope(parent)

	calls := 0
	child.OnCleanup(func() { calls++ })

	child.Dispose()
	parent.Dispose() // must not dispose child again

	if calls != 1 {
		t.Errorf("child cleanup ran %d times, want 1", calls)
	}
}

func TestScopeDisposeCancelsOwnedWatches(t *testing.T) {
	s := NewSource(0)
	scope := NewScope(nil)

	calls := 0
	WithScope(scope, func() {
		s.Watch(func(int) { calls++ })
	})

	s.Set(1)
	scope.Dispose()
	s.Set(2)

	if calls != 1 {
		t.Errorf("watch delivered %d times, want 1 (scope disposal must cancel it)", calls)
	}
}

func TestScopeDisposesOwnedEffects(t *testing.T) {
	s := NewSource(0)
	scope := NewScope(nil)

	runs := 0
	cleanups := 0
	WithScope(scope, func() {
		NewEffect(func() Cleanup {
			runs++
			_ = s.Get()
			return func() { cleanups++ }
		})
	})

	scope.Dispose()
	s.Set(1)

	if runs != 1 {
		t.Errorf("effect ran %d times, want 1", runs)
	}
	if cleanups != 1 {
		t.Errorf("effect cleanup ran %d times, want 1", cleanups)
	}
}

func TestScopePanickingCleanupDoesNotStopCascade(t *testing.T) {
	scope := NewScope(nil)

	ran := false
	scope.OnCleanup(func() { ran = true })
	scope.OnCleanup(func() { panic("teardown failure") })

	scope.Dispose()

	if !ran {
		t.Error("cleanup after panicking sibling did not run")
	}
	err := scope.Err()
	if err == nil {
		t.Fatal("Err() = nil, want aggregated panic")
	}
	if !strings.Contains(err.Error(), "teardown failure") {
		t.Errorf("Err() = %v, want message containing panic value", err)
	}
}

func TestScopeChildErrorsAggregateIntoParent(t *testing.T) {
	parent := NewScope(nil)
	child := NewScope(parent)
	child.OnCleanup(func() { panic("child teardown failure") })

	parent.Dispose()

	err := parent.Err()
	if err == nil {
		t.Fatal("parent Err() = nil, want child's aggregated panic")
	}
	if !strings.Contains(err.Error(), "child teardown failure") {
		t.Errorf("parent Err() = %v, want child panic message", err)
	}
}

func TestWithScopeRestoresPrevious(t *testing.T) {
	outer := NewScope(nil)
	inner := NewScope(outer)

	WithScope(outer, func() {
		WithScope(inner, func() {
			if got := getCurrentScope(); got != inner {
				t.Error("inner scope not ambient inside nested WithScope")
			}
		})
		if got := getCurrentScope(); got != outer {
			t.Error("outer scope not restored after nested WithScope")
		}
	})

	if got := getCurrentScope(); got != nil {
		t.Error("ambient scope not cleared after WithScope")
	}
}
