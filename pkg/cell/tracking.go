package cell

import (
	"runtime"
	"sync"
)

// evalContext holds the reactive state for a goroutine.
// Each goroutine has its own evaluation context so that concurrent
// evaluations cannot corrupt each other's dependency sets.
type evalContext struct {
	// currentScope is the Scope that will own newly created watches and
	// effects. Set while a template instance is being mounted.
	currentScope *Scope

	// currentListener is what is currently tracking dependencies.
	// When a cell is read, it subscribes this listener.
	// nil means no tracking (reads don't create subscriptions).
	currentListener Listener

	// wave is the propagation wave currently in flight on this goroutine,
	// or nil outside of a write.
	wave *wave

	// batchDepth tracks nested Batch() calls. When > 0, source writes
	// record their cell instead of propagating immediately.
	batchDepth int

	// pendingRoots are source cells written during a batch, in write order,
	// deduplicated by ID.
	pendingRoots []*cellBase
	pendingSeen  map[uint64]bool

	// deferredRoots are source cells written re-entrantly from inside a
	// wave. They propagate as a follow-up wave once the current one ends.
	deferredRoots []*cellBase
	deferredSeen  map[uint64]bool
}

// evalContexts stores per-goroutine evaluation contexts.
var evalContexts sync.Map

// goroutineID returns a unique identifier for the current goroutine,
// parsed from the runtime stack header ("goroutine <id> ...").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)

	var id uint64
	for i := 10; i < n; i++ { // Skip "goroutine "
		if buf[i] == ' ' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// getEvalContext returns the evaluation context for the current goroutine,
// creating one on first use.
func getEvalContext() *evalContext {
	gid := goroutineID()

	if ctx, ok := evalContexts.Load(gid); ok {
		return ctx.(*evalContext)
	}

	ctx := &evalContext{}
	evalContexts.Store(gid, ctx)
	return ctx
}

// cleanupEvalContext removes the current goroutine's evaluation context.
// A goroutine that created one must call this before exiting, or the
// entry leaks; goroutine IDs are never reused.
func cleanupEvalContext() {
	evalContexts.Delete(goroutineID())
}

// getCurrentListener returns the listener currently tracking dependencies,
// or nil if no tracking is active.
func getCurrentListener() Listener {
	return getEvalContext().currentListener
}

// setCurrentListener installs a listener for dependency tracking and
// returns the previous one so it can be restored.
func setCurrentListener(l Listener) Listener {
	ctx := getEvalContext()
	old := ctx.currentListener
	ctx.currentListener = l
	return old
}

// getCurrentScope returns the ambient owner scope for the goroutine,
// or nil if none is installed.
func getCurrentScope() *Scope {
	return getEvalContext().currentScope
}

// setCurrentScope installs the ambient owner scope and returns the
// previous one so it can be restored.
func setCurrentScope(s *Scope) *Scope {
	ctx := getEvalContext()
	old := ctx.currentScope
	ctx.currentScope = s
	return old
}

// AmbientScope returns the scope currently installed as the ambient
// owner for the calling goroutine, or nil.
func AmbientScope() *Scope {
	return getCurrentScope()
}

// WithScope runs fn with the given scope as the ambient owner.
// Watches and effects created inside fn are disposed with the scope.
func WithScope(s *Scope, fn func()) {
	old := setCurrentScope(s)
	defer setCurrentScope(old)
	fn()
}

// WithListener runs fn with the given listener installed for dependency
// tracking. Used internally and by the async worker goroutines.
func WithListener(l Listener, fn func()) {
	old := setCurrentListener(l)
	defer setCurrentListener(old)
	fn()
}

// Untracked runs fn without tracking cell reads as dependencies.
// For a single read, prefer Peek.
func Untracked(fn func()) {
	old := setCurrentListener(nil)
	defer setCurrentListener(old)
	fn()
}

// deferRoot records a source written re-entrantly during a wave, for a
// follow-up wave after the current one completes.
func (ctx *evalContext) deferRoot(b *cellBase) {
	if ctx.deferredSeen == nil {
		ctx.deferredSeen = make(map[uint64]bool)
	}
	if ctx.deferredSeen[b.id] {
		return
	}
	ctx.deferredSeen[b.id] = true
	ctx.deferredRoots = append(ctx.deferredRoots, b)
}

// takeDeferred drains the deferred roots queued during the last wave.
func (ctx *evalContext) takeDeferred() []*cellBase {
	roots := ctx.deferredRoots
	ctx.deferredRoots = nil
	ctx.deferredSeen = nil
	return roots
}

// queueRoot records a source written during a batch.
func (ctx *evalContext) queueRoot(b *cellBase) {
	if ctx.pendingSeen == nil {
		ctx.pendingSeen = make(map[uint64]bool)
	}
	if ctx.pendingSeen[b.id] {
		return
	}
	ctx.pendingSeen[b.id] = true
	ctx.pendingRoots = append(ctx.pendingRoots, b)
}

// takePending drains the roots accumulated during a batch.
func (ctx *evalContext) takePending() []*cellBase {
	roots := ctx.pendingRoots
	ctx.pendingRoots = nil
	ctx.pendingSeen = nil
	return roots
}
