package view

import (
	"fmt"
	"reflect"

	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
)

// ForOption configures a list projection.
type ForOption[T any] func(*forConfig[T])

type forConfig[T any] struct {
	key func(T) string
}

// WithKey sets the key extractor. Items with equal keys across updates
// keep their subtree, scope, and index cell.
func WithKey[T any](fn func(T) string) ForOption[T] {
	return func(c *forConfig[T]) {
		c.key = fn
	}
}

// For renders a static ordered collection, one template invocation per
// item. A nil or empty collection renders an empty group.
//
// The index cell passed to the template is per item; for a static
// collection it never changes.
//
// Without WithKey, reference kinds key by address and value kinds by
// their formatted value, so two structurally equal value items collide.
// Pass WithKey for value types whose items can repeat or be reallocated.
func For[T any](items []T, tpl func(item T, index *cell.Source[int]) *dom.Node, opts ...ForOption[T]) *dom.Node {
	l := newListReconciler(tpl, opts)
	l.apply(items)
	return l.group
}

// ForCell renders a reactive ordered collection, reconciling the output
// on every change.
//
// Items are keyed: an item whose key survives an update keeps its node
// subtree and scope and is repositioned, not recreated; its template is
// not re-invoked and its index cell is updated in place. Keys that
// disappear dispose their item's scope and remove its nodes. Duplicate
// keys within one update keep the last occurrence. The default key
// follows the same identity rules as For; pass WithKey for value types.
func ForCell[T any](items cell.Watchable[[]T], tpl func(item T, index *cell.Source[int]) *dom.Node, opts ...ForOption[T]) *dom.Node {
	l := newListReconciler(tpl, opts)
	l.apply(items.Peek())
	items.Watch(l.apply)
	return l.group
}

// itemRecord is the live state of one keyed item: at most one exists
// per key at any time.
type itemRecord struct {
	key   string
	scope *cell.Scope
	node  *dom.Node
	index *cell.Source[int]
}

type listReconciler[T any] struct {
	group *dom.Node

	// scope is the owner in effect when the projection was created; item
	// scopes are its children.
	scope *cell.Scope

	tpl     func(T, *cell.Source[int]) *dom.Node
	key     func(T) string
	records map[string]*itemRecord
}

func newListReconciler[T any](tpl func(T, *cell.Source[int]) *dom.Node, opts []ForOption[T]) *listReconciler[T] {
	var cfg forConfig[T]
	for _, opt := range opts {
		opt(&cfg)
	}
	l := &listReconciler[T]{
		group:   dom.NewGroup(),
		scope:   cell.AmbientScope(),
		tpl:     tpl,
		key:     cfg.key,
		records: make(map[string]*itemRecord),
	}
	l.group.AddBinding(&listBinding[T]{l: l})
	return l
}

// listBinding lets hydration repoint the reconciler at an adopted group
// so later updates land on the live tree, not the discarded rendering.
type listBinding[T any] struct {
	l *listReconciler[T]
}

func (b *listBinding[T]) Retarget(adopted *dom.Node) {
	l := b.l
	old := l.group.Children()
	now := adopted.Children()
	if len(old) != len(now) {
		return
	}

	// Hydration walks both trees in lock-step, so the adopted group's
	// children correspond positionally to the mounted item nodes.
	byNode := make(map[*dom.Node]*itemRecord, len(l.records))
	for _, rec := range l.records {
		byNode[rec.node] = rec
	}
	for i, prev := range old {
		if rec := byNode[prev]; rec != nil {
			rec.node = now[i]
		}
	}
	l.group = adopted
	adopted.AddBinding(b)
}

// apply reconciles the rendered children against items.
func (l *listReconciler[T]) apply(items []T) {
	type entry struct {
		key  string
		item T
	}

	// Last occurrence wins for a duplicated key; earlier ones drop out
	// of this pass deterministically.
	lastIdx := make(map[string]int, len(items))
	keys := make([]string, len(items))
	for i, item := range items {
		k := l.keyOf(item)
		keys[i] = k
		lastIdx[k] = i
	}

	entries := make([]entry, 0, len(items))
	for i, item := range items {
		if lastIdx[keys[i]] == i {
			entries = append(entries, entry{key: keys[i], item: item})
		}
	}

	// Keys gone from the new sequence: dispose and remove.
	for key, rec := range l.records {
		if _, keep := lastIdx[key]; !keep {
			rec.scope.Dispose()
			l.group.RemoveChild(rec.node)
			delete(l.records, key)
		}
	}

	// Reuse or create, then reposition to the new order.
	for pos, e := range entries {
		rec := l.records[e.key]
		if rec == nil {
			rec = l.mountItem(e.key, e.item, pos)
			l.records[e.key] = rec
		} else if rec.index.Peek() != pos {
			rec.index.Set(pos)
		}

		if l.group.ChildAt(pos) != rec.node {
			l.group.InsertAt(pos, rec.node)
		}
	}
}

// mountItem invokes the template once for a newly appearing key.
func (l *listReconciler[T]) mountItem(key string, item T, pos int) *itemRecord {
	index := cell.NewSource(pos)
	scope := cell.NewScope(l.scope)

	var node *dom.Node
	cell.WithScope(scope, func() {
		node = l.tpl(item, index)
	})
	if node == nil {
		node = dom.NewGroup()
	}

	return &itemRecord{key: key, scope: scope, node: node, index: index}
}

func (l *listReconciler[T]) keyOf(item T) string {
	if l.key != nil {
		return l.key(item)
	}
	return identityKey(item)
}

// identityKey derives a default key. Reference kinds key by address, so
// a structurally equal but newly allocated item counts as new; value
// kinds fall back to their formatted value.
func identityKey(item any) string {
	v := reflect.ValueOf(item)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("0x%x", v.Pointer())
	case reflect.Slice:
		if v.IsNil() {
			return "nil"
		}
		return fmt.Sprintf("0x%x:%d", v.Pointer(), v.Len())
	default:
		return fmt.Sprintf("%v", item)
	}
}
