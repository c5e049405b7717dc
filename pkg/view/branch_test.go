package view

import (
	"context"
	"testing"
	"time"

	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
)

func branchText(group *dom.Node) string {
	if group.ChildCount() == 0 {
		return ""
	}
	return group.ChildAt(0).Text()
}

func TestIfStatic(t *testing.T) {
	yes := If(true, func() *dom.Node { return Text("yes") }, func() *dom.Node { return Text("no") })
	if got := branchText(yes); got != "yes" {
		t.Errorf("If(true) mounted %q, want yes", got)
	}

	no := If(false, func() *dom.Node { return Text("yes") }, func() *dom.Node { return Text("no") })
	if got := branchText(no); got != "no" {
		t.Errorf("If(false) mounted %q, want no", got)
	}

	empty := If(false, func() *dom.Node { return Text("yes") }, nil)
	if empty.ChildCount() != 0 {
		t.Error("If(false) with nil falsy branch did not render empty")
	}
}

func TestIfCellSwapsBranches(t *testing.T) {
	cond := cell.NewSource(true)

	truthyMounts := 0
	group := IfCell(cond,
		func() *dom.Node { truthyMounts++; return Text("on") },
		func() *dom.Node { return Text("off") },
	)

	if got := branchText(group); got != "on" {
		t.Fatalf("initial mount = %q, want on", got)
	}

	cond.Set(false)
	if got := branchText(group); got != "off" {
		t.Errorf("after toggle, mounted %q, want off", got)
	}

	cond.Set(true)
	if truthyMounts != 2 {
		t.Errorf("truthy template invoked %d times, want 2 (remount after unmount)", truthyMounts)
	}

	// Exactly one branch at a time.
	if group.ChildCount() != 1 {
		t.Errorf("group holds %d children, want 1", group.ChildCount())
	}
}

func TestIfCellSameValueDoesNotRemount(t *testing.T) {
	cond := cell.NewSource(true).WithEquals(func(a, b bool) bool { return false })

	mounts := 0
	IfCell(cond, func() *dom.Node { mounts++; return Text("on") }, nil)

	// Equality is defeated so the watch fires, but the branch identity
	// is unchanged: no remount.
	cond.Set(true)
	if mounts != 1 {
		t.Errorf("truthy template invoked %d times, want 1", mounts)
	}
}

func TestBranchDisposalCascade(t *testing.T) {
	outer := cell.NewSource(true)
	inner := cell.NewSource(true)
	watched := cell.NewSource(0)

	watchCalls := 0
	IfCell(outer, func() *dom.Node {
		return IfCell(inner, func() *dom.Node {
			watched.Watch(func(int) { watchCalls++ })
			return Text("leaf")
		}, nil)
	}, nil)

	watched.Set(1)
	if watchCalls != 1 {
		t.Fatalf("leaf watch fired %d times while mounted, want 1", watchCalls)
	}

	// Unmounting the outer branch must cascade through the inner one and
	// unregister the leaf's listener.
	outer.Set(false)
	watched.Set(2)

	if watchCalls != 1 {
		t.Errorf("leaf watch fired %d times after ancestor disposal, want 1", watchCalls)
	}
}

func TestIfAsyncPendingRendersEmpty(t *testing.T) {
	release := make(chan struct{})
	cond := cell.NewAsync(func(ctx context.Context) (bool, error) {
		<-release
		return true, nil
	})
	defer cond.Dispose()

	mounted := make(chan struct{})
	group := IfAsync(cond, func() *dom.Node {
		close(mounted)
		return Text("ready")
	}, nil)

	if group.ChildCount() != 0 {
		t.Fatal("pending discriminant mounted a branch")
	}

	close(release)
	select {
	case <-mounted:
	case <-time.After(2 * time.Second):
		t.Fatal("branch never mounted after the discriminant resolved")
	}

	time.Sleep(20 * time.Millisecond)
	if got := branchText(group); got != "ready" {
		t.Errorf("mounted %q, want ready", got)
	}
}

func TestSwitchStatic(t *testing.T) {
	cases := map[string]Template{
		"a": func() *dom.Node { return Text("alpha") },
		"b": func() *dom.Node { return Text("beta") },
	}

	if got := branchText(Switch("b", cases, nil)); got != "beta" {
		t.Errorf("Switch(b) mounted %q, want beta", got)
	}
	if got := Switch("z", cases, nil); got.ChildCount() != 0 {
		t.Error("unmatched value with no default did not render empty")
	}
	def := func(v string) Template {
		return func() *dom.Node { return Text("default:" + v) }
	}
	if got := branchText(Switch("z", cases, def)); got != "default:z" {
		t.Errorf("Switch default mounted %q, want default:z", got)
	}
}

func TestSwitchCellSwapsCases(t *testing.T) {
	value := cell.NewSource("a")
	mounts := map[string]int{}
	cases := map[string]Template{
		"a": func() *dom.Node { mounts["a"]++; return Text("alpha") },
		"b": func() *dom.Node { mounts["b"]++; return Text("beta") },
	}

	group := SwitchCell[string](value, cases, nil)

	value.Set("b")
	if got := branchText(group); got != "beta" {
		t.Errorf("after switch, mounted %q, want beta", got)
	}

	value.Set("z")
	if group.ChildCount() != 0 {
		t.Error("unmatched value did not unmount the previous case")
	}

	value.Set("b")
	if mounts["b"] != 2 {
		t.Errorf("case b mounted %d times, want 2", mounts["b"])
	}
	if mounts["a"] != 1 {
		t.Errorf("case a mounted %d times, want 1", mounts["a"])
	}
}

func TestSwitchCellDisposesOldCase(t *testing.T) {
	value := cell.NewSource(1)
	watched := cell.NewSource("x")

	watchCalls := 0
	cases := map[int]Template{
		1: func() *dom.Node {
			watched.Watch(func(string) { watchCalls++ })
			return Text("one")
		},
		2: func() *dom.Node { return Text("two") },
	}

	SwitchCell[int](value, cases, nil)

	value.Set(2)
	watched.Set("y")

	if watchCalls != 0 {
		t.Errorf("disposed case's watch fired %d times, want 0", watchCalls)
	}
}
