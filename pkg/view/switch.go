package view

import (
	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
)

// Switch selects among case templates on a static discriminant. An
// unmatched value falls through to def, which receives it; with no def
// the output is empty.
func Switch[K comparable](value K, cases map[K]Template, def func(K) Template) *dom.Node {
	h := newBranchHost()
	mountCase(h, value, cases, def)
	return h.group
}

// SwitchCell selects among case templates on a reactive discriminant.
// Exactly one case subtree is mounted at a time; the outgoing case's
// scope is disposed before the incoming template runs. Re-selecting the
// currently mounted case is a no-op.
func SwitchCell[K comparable](value cell.Watchable[K], cases map[K]Template, def func(K) Template) *dom.Node {
	h := newBranchHost()
	mountCase(h, value.Peek(), cases, def)
	value.Watch(func(v K) { mountCase(h, v, cases, def) })
	return h.group
}

// caseID identifies a mounted case by the discriminant value that
// selected it.
type caseID[K comparable] struct {
	value K
}

// emptyCase marks the unmatched-with-no-default state, so consecutive
// unmatched values do not churn the (empty) mount.
type emptyCase struct{}

func mountCase[K comparable](h *branchHost, value K, cases map[K]Template, def func(K) Template) {
	if tpl, ok := cases[value]; ok {
		h.mount(caseID[K]{value: value}, tpl)
		return
	}
	if def != nil {
		h.mount(caseID[K]{value: value}, def(value))
		return
	}
	h.mount(emptyCase{}, nil)
}
