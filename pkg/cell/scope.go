package cell

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Scope is the lifetime boundary for one mounted template instance (a
// branch of a conditional, one list item, one relocatable instance, one
// component invocation). It owns the watches, effects, and cleanup
// callbacks created during the instance's setup.
//
// Scopes form a hierarchy mirroring the mounted tree. Disposing a scope
// transitively disposes every child scope created underneath it and
// unregisters every listener it owns, exactly once, even if disposal is
// triggered from multiple paths.
type Scope struct {
	id uint64

	// parent is the parent scope, nil for a root.
	parent *Scope

	// children are the child scopes, in creation order.
	children   []*Scope
	childrenMu sync.Mutex

	// effects owned by this scope.
	effects   []*Effect
	effectsMu sync.Mutex

	// watches holds cancel funcs for watches registered under this scope.
	watches   []func()
	watchesMu sync.Mutex

	// cleanups are teardown callbacks registered via OnCleanup.
	cleanups   []func()
	cleanupsMu sync.Mutex

	// disposed flips exactly once.
	disposed atomic.Bool

	// err aggregates teardown failures from the disposal cascade.
	err   error
	errMu sync.Mutex
}

// NewScope creates a scope with the given parent, registering it as a
// child. A nil parent creates a root scope.
func NewScope(parent *Scope) *Scope {
	s := &Scope{
		id:     nextID(),
		parent: parent,
	}

	if parent != nil {
		parent.addChild(s)
	}

	return s
}

// ID returns the unique identifier for this scope.
func (s *Scope) ID() uint64 {
	return s.id
}

// Parent returns the parent scope, or nil for a root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// IsDisposed reports whether this scope has been disposed.
func (s *Scope) IsDisposed() bool {
	return s.disposed.Load()
}

func (s *Scope) addChild(child *Scope) {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()
	s.children = append(s.children, child)
}

func (s *Scope) removeChild(child *Scope) {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}

// registerEffect adds an effect to this scope; it is disposed with it.
func (s *Scope) registerEffect(e *Effect) {
	if s.disposed.Load() {
		e.Dispose()
		return
	}

	s.effectsMu.Lock()
	defer s.effectsMu.Unlock()
	s.effects = append(s.effects, e)
}

// own records a watch cancel func to invoke on disposal.
func (s *Scope) own(cancel func()) {
	if s.disposed.Load() {
		cancel()
		return
	}

	s.watchesMu.Lock()
	defer s.watchesMu.Unlock()
	s.watches = append(s.watches, cancel)
}

// OnCleanup registers a teardown callback to run when this scope is
// disposed. If the scope is already disposed, fn runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed.Load() {
		fn()
		return
	}

	s.cleanupsMu.Lock()
	defer s.cleanupsMu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// OnCleanup registers fn with the ambient scope of the calling
// goroutine. Without an ambient scope it is a no-op; the caller keeps
// responsibility for the teardown.
func OnCleanup(fn func()) {
	if scope := getCurrentScope(); scope != nil {
		scope.OnCleanup(fn)
	}
}

// Dispose disposes this scope: children first (in reverse creation
// order), then effects, watches, and cleanups in reverse registration
// order. A panicking teardown callback does not stop the cascade; all
// callbacks are attempted and failures aggregate into Err.
func (s *Scope) Dispose() {
	if s.disposed.Swap(true) {
		return
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}

	s.childrenMu.Lock()
	children := make([]*Scope, len(s.children))
	copy(children, s.children)
	s.children = nil
	s.childrenMu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
		if cerr := children[i].Err(); cerr != nil {
			s.appendErr(cerr)
		}
	}

	s.effectsMu.Lock()
	effects := s.effects
	s.effects = nil
	s.effectsMu.Unlock()

	for _, e := range effects {
		s.attempt(e.Dispose)
	}

	s.watchesMu.Lock()
	watches := s.watches
	s.watches = nil
	s.watchesMu.Unlock()

	for i := len(watches) - 1; i >= 0; i-- {
		s.attempt(watches[i])
	}

	s.cleanupsMu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.cleanupsMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		s.attempt(cleanups[i])
	}
}

// Err returns the aggregated teardown failures from Dispose, or nil.
func (s *Scope) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// attempt runs a teardown callback, converting a panic into an
// aggregated error instead of aborting the remaining teardowns.
func (s *Scope) attempt(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.appendErr(fmt.Errorf("cell: teardown panic: %v", r))
		}
	}()
	fn()
}

func (s *Scope) appendErr(err error) {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	s.err = errors.Join(s.err, err)
}
