// Package dom provides the abstract output tree the reconcilers mutate.
//
// Nodes form an ordinary parent/child tree. A Document owns one root and
// records every structural and content mutation made inside its tree;
// records are delivered to observers on Flush, which is the async
// boundary for connection detection.
//
// A Document and the nodes inside it are confined to one goroutine at a
// time. The engine serializes access; tests run single-threaded.
package dom

import "sync/atomic"

// Kind discriminates the node variants.
type Kind uint8

const (
	// KindElement is a tagged node with attributes and children.
	KindElement Kind = iota

	// KindText is a leaf holding a text value.
	KindText

	// KindGroup is an unnamed container used by reconcilers to own a
	// contiguous run of children (a list, a branch, a relocatable
	// instance) without introducing a visible element.
	KindGroup
)

func (k Kind) String() string {
	switch k {
	case KindElement:
		return "element"
	case KindText:
		return "text"
	case KindGroup:
		return "group"
	default:
		return "unknown"
	}
}

var nodeIDCounter atomic.Uint64

// Node is one node of the output tree.
type Node struct {
	id   uint64
	kind Kind

	// tag is the element name; empty for text and group nodes.
	tag string

	// attrs are the element attributes; nil until the first SetAttr.
	attrs map[string]string

	// text is the value of a text node.
	text string

	parent   *Node
	children []*Node

	// doc is set on a document's root only; everything else finds its
	// document by walking up.
	doc *Document

	// bindings are the reactive bindings attached to this node. The
	// hydration matcher transplants them onto pre-existing nodes.
	bindings []Binding
}

// Binding is a reactive attachment (a text or attribute subscription, or
// a reconciler host's handle on its group) that can be retargeted to a
// different node during hydration.
type Binding interface {
	// Retarget repoints the binding at n so later updates apply there.
	Retarget(n *Node)
}

// NewElement creates an element node with the given children appended.
func NewElement(tag string, children ...*Node) *Node {
	n := &Node{
		id:   nodeIDCounter.Add(1),
		kind: KindElement,
		tag:  tag,
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

// NewText creates a text node.
func NewText(text string) *Node {
	return &Node{
		id:   nodeIDCounter.Add(1),
		kind: KindText,
		text: text,
	}
}

// NewGroup creates a group node with the given children appended.
func NewGroup(children ...*Node) *Node {
	n := &Node{
		id:   nodeIDCounter.Add(1),
		kind: KindGroup,
	}
	for _, c := range children {
		n.AppendChild(c)
	}
	return n
}

// ID returns the node's unique identifier.
func (n *Node) ID() uint64 { return n.id }

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// Tag returns the element name; empty for text and group nodes.
func (n *Node) Tag() string { return n.tag }

// Text returns the text value of a text node.
func (n *Node) Text() string { return n.text }

// SetText updates a text node's value and records the mutation.
func (n *Node) SetText(text string) {
	if n.text == text {
		return
	}
	n.text = text
	if d := n.Document(); d != nil {
		d.record(Mutation{Op: OpSetText, Node: n, Value: text})
	}
}

// Attr returns the named attribute and whether it is present.
func (n *Node) Attr(name string) (string, bool) {
	v, ok := n.attrs[name]
	return v, ok
}

// SetAttr sets an attribute and records the mutation.
func (n *Node) SetAttr(name, value string) *Node {
	if old, ok := n.attrs[name]; ok && old == value {
		return n
	}
	if n.attrs == nil {
		n.attrs = make(map[string]string)
	}
	n.attrs[name] = value
	if d := n.Document(); d != nil {
		d.record(Mutation{Op: OpSetAttr, Node: n, Attr: name, Value: value})
	}
	return n
}

// RemoveAttr removes an attribute and records the mutation.
func (n *Node) RemoveAttr(name string) {
	if _, ok := n.attrs[name]; !ok {
		return
	}
	delete(n.attrs, name)
	if d := n.Document(); d != nil {
		d.record(Mutation{Op: OpRemoveAttr, Node: n, Attr: name})
	}
}

// Attrs returns a copy of the attribute map.
func (n *Node) Attrs() map[string]string {
	if len(n.attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(n.attrs))
	for k, v := range n.attrs {
		out[k] = v
	}
	return out
}

// Parent returns the parent node, nil for a root or detached node.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child slice.
func (n *Node) Children() []*Node {
	if len(n.children) == 0 {
		return nil
	}
	out := make([]*Node, len(n.children))
	copy(out, n.children)
	return out
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int { return len(n.children) }

// ChildAt returns the i'th child, or nil when out of range.
func (n *Node) ChildAt(i int) *Node {
	if i < 0 || i >= len(n.children) {
		return nil
	}
	return n.children[i]
}

// Index returns this node's position among its parent's children, or -1
// when detached.
func (n *Node) Index() int {
	if n.parent == nil {
		return -1
	}
	for i, c := range n.parent.children {
		if c == n {
			return i
		}
	}
	return -1
}

// Root returns the topmost ancestor (the node itself when detached).
func (n *Node) Root() *Node {
	r := n
	for r.parent != nil {
		r = r.parent
	}
	return r
}

// Document returns the document this node is connected to, or nil.
func (n *Node) Document() *Document {
	return n.Root().doc
}

// Connected reports whether the node is part of a live document tree.
func (n *Node) Connected() bool {
	return n.Document() != nil
}

// AppendChild appends child to n's children, detaching it from its
// current parent first.
func (n *Node) AppendChild(child *Node) {
	n.InsertAt(len(n.children), child)
}

// InsertAt inserts child at index i of n's children. A child already in
// the tree is detached first; the recorded mutation is a move when the
// child was previously connected to the same document.
func (n *Node) InsertAt(i int, child *Node) {
	if child == nil || child == n {
		return
	}

	d := n.Document()
	moved := child.parent != nil && child.Document() == d && d != nil

	if child.parent != nil {
		// Removing from the current parent shifts i when both share it.
		if child.parent == n {
			if idx := child.Index(); idx >= 0 && idx < i {
				i--
			}
		}
		child.parent.unlink(child)
	}

	if i < 0 {
		i = 0
	}
	if i > len(n.children) {
		i = len(n.children)
	}
	n.children = append(n.children, nil)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
	child.parent = n

	if d != nil {
		op := OpInsert
		if moved {
			op = OpMove
		}
		d.record(Mutation{Op: op, Node: child, Parent: n, Index: i})
	}
}

// RemoveChild removes child from n, destroying its place in the tree.
// The child becomes a detached root.
func (n *Node) RemoveChild(child *Node) {
	if child == nil || child.parent != n {
		return
	}
	d := n.Document()
	n.unlink(child)
	if d != nil {
		d.record(Mutation{Op: OpRemove, Node: child, Parent: n})
	}
}

// Detach removes the node from its parent without destroy semantics.
// The subtree stays intact for reattachment elsewhere; relocation is
// detach plus insert. Detaching a detached node is a no-op.
func (n *Node) Detach() {
	if n.parent == nil {
		return
	}
	d := n.Document()
	p := n.parent
	p.unlink(n)
	if d != nil {
		d.record(Mutation{Op: OpDetach, Node: n, Parent: p})
	}
}

// ReplaceWith swaps this node for repl at the same position. The
// replaced node becomes a detached root.
func (n *Node) ReplaceWith(repl *Node) {
	if repl == nil || n.parent == nil || repl == n {
		return
	}
	p := n.parent
	i := n.Index()
	d := p.Document()

	p.unlink(n)
	if repl.parent != nil {
		repl.parent.unlink(repl)
	}
	p.children = append(p.children, nil)
	copy(p.children[i+1:], p.children[i:])
	p.children[i] = repl
	repl.parent = p

	if d != nil {
		d.record(Mutation{Op: OpReplace, Node: repl, Parent: p, Index: i, Replaced: n})
	}
}

func (n *Node) unlink(child *Node) {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return
		}
	}
}

// AddBinding attaches a reactive binding to this node.
func (n *Node) AddBinding(b Binding) {
	n.bindings = append(n.bindings, b)
}

// Bindings returns the bindings attached to this node.
func (n *Node) Bindings() []Binding { return n.bindings }

// Walk visits n and every descendant in depth-first order. Returning
// false from fn skips the node's children.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, c := range n.children {
		c.Walk(fn)
	}
}
