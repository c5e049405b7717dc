package view

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/loom-ui/loom/pkg/cell"
	"github.com/loom-ui/loom/pkg/dom"
)

// UniqueState is the lifecycle state of a named instance.
type UniqueState uint8

const (
	// UniqueAbsent: no live instance for the name.
	UniqueAbsent UniqueState = iota

	// UniqueNew: first claim mounted the instance and ran its template.
	UniqueNew

	// UniqueRestored: the instance was physically moved to a different
	// call site; scope preserved, template not re-run.
	UniqueRestored

	// UniqueMoved: the owning call site released the instance; the
	// subtree is detached, awaiting either a reclaim or teardown at the
	// next checkpoint.
	UniqueMoved
)

func (s UniqueState) String() string {
	switch s {
	case UniqueAbsent:
		return "absent"
	case UniqueNew:
		return "new"
	case UniqueRestored:
		return "restored"
	case UniqueMoved:
		return "moved"
	default:
		return "unknown"
	}
}

// UniqueOption configures one claim of a named instance.
type UniqueOption func(*uniqueOpts)

type uniqueOpts struct {
	onSave    func(*dom.Node) (any, error)
	onRestore func(*dom.Node, any)
}

// OnSave runs immediately before the instance's subtree is detached for
// relocation or release. Its return value is the payload handed to the
// restore hook. An error aborts a relocation, leaving the previous
// location intact.
func OnSave(fn func(*dom.Node) (any, error)) UniqueOption {
	return func(o *uniqueOpts) { o.onSave = fn }
}

// OnRestore runs immediately after the subtree is reattached at its new
// location, receiving the save hook's payload.
func OnRestore(fn func(*dom.Node, any)) UniqueOption {
	return func(o *uniqueOpts) { o.onRestore = fn }
}

// uniqueEntry is the live state per name: at most one physical subtree.
type uniqueEntry struct {
	name  string
	scope *cell.Scope
	node  *dom.Node
	state UniqueState

	// site is the placeholder group currently holding the node; nil
	// while detached.
	site *dom.Node

	// claimed is set by a claim and cleared on release; a detached,
	// unclaimed entry is torn down at the next checkpoint.
	claimed bool

	// claimSeq increments on every claim. Releases and retargets carry
	// the sequence of the claim they belong to, so a site superseded by
	// a later claim cannot release or repoint the instance.
	claimSeq uint64

	payload   any
	onSave    func(*dom.Node) (any, error)
	onRestore func(*dom.Node, any)
}

// Registry tracks named singleton instances for one document. Across
// any number of call sites claiming the same name, exactly one physical
// subtree exists; the most recently evaluated call site owns it.
type Registry struct {
	doc     *dom.Document
	entries map[string]*uniqueEntry
	log     *slog.Logger
	lastErr error
}

var registries sync.Map // *dom.Document -> *Registry

// RegistryFor returns the relocation registry for doc, creating it on
// first use.
func RegistryFor(doc *dom.Document) *Registry {
	if r, ok := registries.Load(doc); ok {
		return r.(*Registry)
	}
	r := &Registry{
		doc:     doc,
		entries: make(map[string]*uniqueEntry),
		log:     slog.Default(),
	}
	actual, _ := registries.LoadOrStore(doc, r)
	return actual.(*Registry)
}

// Mount claims the named instance for this call site and returns the
// placeholder node holding it. The template runs only on the first
// claim of the name; later claims relocate the existing subtree here,
// preserving its scope and reactive state. A call site superseded by a
// later claim is left holding an empty placeholder.
func (r *Registry) Mount(name string, tpl Template, opts ...UniqueOption) *dom.Node {
	var o uniqueOpts
	for _, opt := range opts {
		opt(&o)
	}

	site := dom.NewGroup()
	e := r.entries[name]

	switch {
	case e == nil:
		e = r.create(name, tpl)
		site.AppendChild(e.node)
		e.site = site

	case e.site != nil:
		// Relocation from a live call site.
		var payload any
		if o.onSave != nil {
			p, err := o.onSave(e.node)
			if err != nil {
				r.lastErr = fmt.Errorf("view: save hook for %q: %w", name, err)
				r.log.Warn("relocation aborted by save hook",
					"name", name, "error", err)
				return site
			}
			payload = p
		}
		e.node.Detach()
		site.AppendChild(e.node)
		e.site = site
		e.payload = payload
		if o.onRestore != nil {
			o.onRestore(e.node, payload)
		}
		e.state = UniqueRestored

	default:
		// Reclaim of a released (detached) instance before checkpoint.
		site.AppendChild(e.node)
		e.site = site
		if o.onRestore != nil {
			o.onRestore(e.node, e.payload)
		}
		e.state = UniqueRestored
	}

	e.claimed = true
	e.claimSeq++
	seq := e.claimSeq
	if o.onSave != nil {
		e.onSave = o.onSave
	}
	if o.onRestore != nil {
		e.onRestore = o.onRestore
	}

	site.AddBinding(&uniqueBinding{r: r, name: name, seq: seq})

	// Releasing follows the claiming call site's lifetime.
	cell.OnCleanup(func() { r.release(name, seq) })

	return site
}

// uniqueBinding lets hydration repoint a claim at an adopted placeholder
// so later relocations detach from the live tree, not the discarded
// rendering.
type uniqueBinding struct {
	r    *Registry
	name string
	seq  uint64
}

func (b *uniqueBinding) Retarget(adopted *dom.Node) {
	e := b.r.entries[b.name]
	if e == nil || e.claimSeq != b.seq || e.site == nil {
		return
	}
	kids := adopted.Children()
	if len(kids) != 1 {
		return
	}
	e.site = adopted
	e.node = kids[0]
	adopted.AddBinding(b)
}

// create runs the template exactly once inside the instance's own
// scope. The scope is deliberately parentless: the instance outlives
// any single call site and is torn down only by Checkpoint.
func (r *Registry) create(name string, tpl Template) *uniqueEntry {
	scope := cell.NewScope(nil)

	var node *dom.Node
	cell.WithScope(scope, func() {
		node = tpl()
	})
	if node == nil {
		node = dom.NewGroup()
	}

	e := &uniqueEntry{
		name:  name,
		scope: scope,
		node:  node,
		state: UniqueNew,
	}
	r.entries[name] = e
	return e
}

// release detaches the instance when its owning call site is disposed.
// A site that lost ownership to a later claim releases nothing.
func (r *Registry) release(name string, seq uint64) {
	e := r.entries[name]
	if e == nil || e.claimSeq != seq || e.site == nil {
		return
	}

	if e.onSave != nil {
		p, err := e.onSave(e.node)
		if err != nil {
			r.lastErr = fmt.Errorf("view: save hook for %q: %w", name, err)
			r.log.Warn("save hook failed during release",
				"name", name, "error", err)
		} else {
			e.payload = p
		}
	}

	e.node.Detach()
	e.site = nil
	e.claimed = false
	e.state = UniqueMoved
}

// Checkpoint tears down every instance that is detached and was not
// reclaimed since its release. The engine runs this after each update
// pass, so a relocation within one synchronous update never tears down
// and recreates.
func (r *Registry) Checkpoint() {
	for name, e := range r.entries {
		if e.site == nil && !e.claimed {
			e.scope.Dispose()
			if err := e.scope.Err(); err != nil {
				r.lastErr = err
				r.log.Warn("teardown errors for unique instance",
					"name", name, "error", err)
			}
			e.state = UniqueAbsent
			delete(r.entries, name)
		}
	}
}

// State reports the lifecycle state of a name; UniqueAbsent when no
// instance exists.
func (r *Registry) State(name string) UniqueState {
	if e := r.entries[name]; e != nil {
		return e.state
	}
	return UniqueAbsent
}

// Err returns the most recent save-hook or teardown failure, or nil.
func (r *Registry) Err() error {
	return r.lastErr
}

// Close tears down every remaining instance and drops the registry's
// document association, so a later RegistryFor on the same document
// starts fresh. Call it when the document's session ends.
func (r *Registry) Close() {
	for name, e := range r.entries {
		e.scope.Dispose()
		if err := e.scope.Err(); err != nil {
			r.lastErr = err
			r.log.Warn("teardown errors for unique instance",
				"name", name, "error", err)
		}
		delete(r.entries, name)
	}
	registries.Delete(r.doc)
}
