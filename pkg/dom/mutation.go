package dom

// MutOp identifies a mutation record type.
type MutOp uint8

const (
	// OpInsert is a node newly inserted under Parent at Index.
	OpInsert MutOp = iota

	// OpMove is a connected node repositioned under Parent at Index.
	OpMove

	// OpRemove is a node removed from Parent with destroy semantics.
	OpRemove

	// OpDetach is a node removed from Parent for relocation; the subtree
	// stays alive.
	OpDetach

	// OpReplace is Node taking Replaced's position under Parent.
	OpReplace

	// OpSetText is a text node value change.
	OpSetText

	// OpSetAttr is an attribute write (Attr, Value).
	OpSetAttr

	// OpRemoveAttr is an attribute removal (Attr).
	OpRemoveAttr
)

func (op MutOp) String() string {
	switch op {
	case OpInsert:
		return "insert"
	case OpMove:
		return "move"
	case OpRemove:
		return "remove"
	case OpDetach:
		return "detach"
	case OpReplace:
		return "replace"
	case OpSetText:
		return "set-text"
	case OpSetAttr:
		return "set-attr"
	case OpRemoveAttr:
		return "remove-attr"
	default:
		return "unknown"
	}
}

// Mutation is one recorded tree change. Which fields are set depends on
// Op; see the op constants.
type Mutation struct {
	Op       MutOp
	Node     *Node
	Parent   *Node
	Replaced *Node
	Index    int
	Attr     string
	Value    string
}

// Document owns one root node and accumulates mutation records for the
// tree under it. Records are delivered to observers on Flush.
type Document struct {
	root    *Node
	pending []Mutation

	observers   []*mutationObserver
	connWatches []*connWatch

	flushing bool
}

type mutationObserver struct {
	fn        func([]Mutation)
	cancelled bool
}

// NewDocument creates a document rooted at root. A nil root gets a
// fresh group node.
func NewDocument(root *Node) *Document {
	if root == nil {
		root = NewGroup()
	}
	if root.parent != nil {
		root.Detach()
	}
	d := &Document{root: root}
	root.doc = d
	return d
}

// Root returns the document's root node.
func (d *Document) Root() *Node { return d.root }

// record appends a mutation for delivery on the next Flush.
func (d *Document) record(m Mutation) {
	d.pending = append(d.pending, m)
}

// Observe registers fn to receive each flush's mutation batch. The
// returned cancel is idempotent.
func (d *Document) Observe(fn func([]Mutation)) (cancel func()) {
	obs := &mutationObserver{fn: fn}
	d.observers = append(d.observers, obs)
	return func() { obs.cancelled = true }
}

// Flush delivers all pending mutation records to observers and then
// evaluates connection transitions for registered connection watches.
// The engine flushes after each update pass; tests flush explicitly.
//
// Connectivity is evaluated against the tree state at flush time, so a
// subtree detached and reattached between two flushes (a relocation)
// produces no connection events.
func (d *Document) Flush() {
	if d.flushing {
		return
	}
	d.flushing = true
	defer func() { d.flushing = false }()

	for len(d.pending) > 0 {
		batch := d.pending
		d.pending = nil

		obs := make([]*mutationObserver, len(d.observers))
		copy(obs, d.observers)
		for _, o := range obs {
			if !o.cancelled {
				o.fn(batch)
			}
		}
	}

	d.evaluateConnWatches()
	d.compactObservers()
}

// HasPending reports whether unflushed mutation records exist.
func (d *Document) HasPending() bool {
	return len(d.pending) > 0
}

func (d *Document) compactObservers() {
	live := d.observers[:0]
	for _, o := range d.observers {
		if !o.cancelled {
			live = append(live, o)
		}
	}
	d.observers = live
}
