package view

import (
	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
)

// Branches is the descriptor form of a binary selection. A nil Falsy
// renders empty when the discriminant is false.
type Branches struct {
	Truthy Template
	Falsy  Template
}

// If selects between two templates on a static discriminant. A nil
// falsy template renders empty.
func If(cond bool, truthy, falsy Template) *dom.Node {
	return IfBranches(cond, Branches{Truthy: truthy, Falsy: falsy})
}

// IfBranches is If with the descriptor form.
func IfBranches(cond bool, b Branches) *dom.Node {
	h := newBranchHost()
	h.mountBool(cond, b)
	return h.group
}

// IfCell selects between two templates on a reactive discriminant.
// Exactly one branch is mounted at a time; on change the outgoing
// branch's scope is disposed, cascading to everything inside it, before
// the incoming template runs.
func IfCell(cond cell.Watchable[bool], truthy, falsy Template) *dom.Node {
	return IfCellBranches(cond, Branches{Truthy: truthy, Falsy: falsy})
}

// IfCellBranches is IfCell with the descriptor form.
func IfCellBranches(cond cell.Watchable[bool], b Branches) *dom.Node {
	h := newBranchHost()
	h.mountBool(cond.Peek(), b)
	cond.Watch(func(v bool) { h.mountBool(v, b) })
	return h.group
}

// IfAsync selects on an asynchronously resolving discriminant. While a
// resolution is pending the output is empty; a superseded resolution
// never mounts its branch, because the async cell discards stale
// completions before any observer sees them.
func IfAsync(cond *cell.Async[bool], truthy, falsy Template) *dom.Node {
	return IfAsyncBranches(cond, Branches{Truthy: truthy, Falsy: falsy})
}

// IfAsyncBranches is IfAsync with the descriptor form.
func IfAsyncBranches(cond *cell.Async[bool], b Branches) *dom.Node {
	h := newBranchHost()
	cell.NewEffect(func() cell.Cleanup {
		if cond.Pending() {
			h.mount(branchPending, nil)
			return nil
		}
		h.mountBool(cond.Get(), b)
		return nil
	})
	return h.group
}

// branch identities for the binary host.
const (
	branchTruthy  = "truthy"
	branchFalsy   = "falsy"
	branchPending = "pending"
)

func (h *branchHost) mountBool(cond bool, b Branches) {
	if cond {
		h.mount(branchTruthy, b.Truthy)
	} else {
		h.mount(branchFalsy, b.Falsy)
	}
}
