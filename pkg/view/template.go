// Package view implements the structural reconcilers over the output
// tree: keyed list projection (For), branch selection (If/Switch), and
// the named-singleton relocation registry (Unique), plus the reactive
// template bindings they compose with.
package view

import (
	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
)

// Template produces an output subtree. Reconcilers invoke templates
// lazily: a template runs only when its branch mounts or its item
// appears, never for reused instances.
type Template func() *dom.Node

// Text creates a static text node. The reactive counterpart is
// BindText.
func Text(s string) *dom.Node {
	return dom.NewText(s)
}

// BindText creates a text node bound to src: the node's text follows the
// cell's value. The subscription is owned by the ambient scope and the
// binding is recorded on the node so hydration can retarget it.
func BindText(src cell.Watchable[string]) *dom.Node {
	n := dom.NewText(src.Peek())
	b := &textBinding{node: n, src: src}
	n.AddBinding(b)
	b.cancel = src.Watch(func(v string) { b.node.SetText(v) })
	return n
}

// BindAttr binds the named attribute of n to src.
func BindAttr(n *dom.Node, name string, src cell.Watchable[string]) *dom.Node {
	n.SetAttr(name, src.Peek())
	b := &attrBinding{node: n, name: name, src: src}
	n.AddBinding(b)
	b.cancel = src.Watch(func(v string) { b.node.SetAttr(b.name, v) })
	return n
}

// textBinding keeps a text node in sync with a cell. Retargeting points
// the live subscription at a different node, which is how hydration
// adopts pre-existing text nodes.
type textBinding struct {
	node   *dom.Node
	src    cell.Watchable[string]
	cancel func()
}

func (b *textBinding) Retarget(n *dom.Node) {
	b.node = n
	n.AddBinding(b)
	n.SetText(b.src.Peek())
}

// attrBinding keeps one attribute in sync with a cell.
type attrBinding struct {
	node   *dom.Node
	name   string
	src    cell.Watchable[string]
	cancel func()
}

func (b *attrBinding) Retarget(n *dom.Node) {
	b.node = n
	n.AddBinding(b)
	n.SetAttr(b.name, b.src.Peek())
}

var (
	_ dom.Binding = (*textBinding)(nil)
	_ dom.Binding = (*attrBinding)(nil)
)
