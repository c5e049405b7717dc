package view

import (
	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
)

// branchHost mounts exactly one branch subtree at a time inside a group
// node. Swapping branches disposes the outgoing branch's scope, which
// cascades through everything mounted inside it, before the incoming
// branch's template runs.
type branchHost struct {
	group *dom.Node

	// scope is the owner in effect at creation; branch scopes are its
	// children.
	scope *cell.Scope

	// current identifies the mounted branch; nil means nothing decided
	// yet. Compared with ==.
	current any

	currentScope *cell.Scope
	currentNode  *dom.Node
}

func newBranchHost() *branchHost {
	h := &branchHost{
		group: dom.NewGroup(),
		scope: cell.AmbientScope(),
	}
	h.group.AddBinding(&branchBinding{h: h})
	return h
}

// branchBinding lets hydration repoint the host at an adopted group so
// later branch swaps land on the live tree, not the discarded rendering.
type branchBinding struct {
	h *branchHost
}

func (b *branchBinding) Retarget(adopted *dom.Node) {
	h := b.h
	if h.currentNode != nil {
		kids := adopted.Children()
		if len(kids) != 1 {
			return
		}
		h.currentNode = kids[0]
	}
	h.group = adopted
	adopted.AddBinding(b)
}

// mount swaps to the branch identified by id. Equal ids are a no-op, so
// a discriminant changing within the same branch does not remount. A nil
// template mounts empty.
func (h *branchHost) mount(id any, tpl Template) {
	if h.current != nil && h.current == id {
		return
	}
	h.current = id

	if h.currentScope != nil {
		h.currentScope.Dispose()
		h.currentScope = nil
	}
	if h.currentNode != nil {
		h.group.RemoveChild(h.currentNode)
		h.currentNode = nil
	}

	if tpl == nil {
		return
	}

	scope := cell.NewScope(h.scope)
	var node *dom.Node
	cell.WithScope(scope, func() {
		node = tpl()
	})
	if node == nil {
		scope.Dispose()
		return
	}

	h.currentScope = scope
	h.currentNode = node
	h.group.AppendChild(node)
}
