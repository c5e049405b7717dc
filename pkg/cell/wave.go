package cell

// wave is the bookkeeping for one synchronous propagation pass triggered
// by a source write (or a drained batch). A wave has three phases:
//
//  1. invalidation: dirty marks flow downstream from the written sources;
//     each derived cell is marked at most once (its valid flag flips).
//  2. settle: every invalidated derived cell recomputes, pull-ordered so
//     a cell with two paths to a common dependency recomputes exactly
//     once. A recompute whose inputs turn out unchanged revalidates
//     without running, stopping propagation (short-circuit).
//  3. delivery: watches and effects queued during invalidation run, in
//     discovery order, and only if one of their dependencies actually
//     changed value this wave.
type wave struct {
	// changed records the IDs of cells whose value actually changed.
	changed map[uint64]bool

	// dirty holds the derived cells invalidated this wave, in discovery
	// order.
	dirty []settler

	// runners holds watches/effects to deliver, deduplicated by ID.
	runners []runner
	seen    map[uint64]bool
}

func newWave() *wave {
	return &wave{
		changed: make(map[uint64]bool),
		seen:    make(map[uint64]bool),
	}
}

// markDirty records an invalidated derived cell for the settle phase.
func (w *wave) markDirty(s settler) {
	w.dirty = append(w.dirty, s)
}

// enqueue records a runner for the delivery phase, once per wave.
func (w *wave) enqueue(r runner) {
	if w.seen[r.ID()] {
		return
	}
	w.seen[r.ID()] = true
	w.runners = append(w.runners, r)
}

// propagate runs waves until no re-entrant writes remain. The first wave
// starts from roots; writes performed inside the wave (by watchers or
// effects) queue follow-up waves rather than recursing.
func (ctx *evalContext) propagate(roots []*cellBase) {
	for len(roots) > 0 {
		w := newWave()
		ctx.wave = w

		for _, r := range roots {
			w.changed[r.id] = true
		}
		for _, r := range roots {
			r.notifySubscribers()
		}
		for _, d := range w.dirty {
			d.settle(w)
		}
		for _, r := range w.runners {
			r.run(w)
		}

		ctx.wave = nil
		roots = ctx.takeDeferred()
	}
}

// fire propagates a single written source, honoring batch mode and
// re-entrant writes from inside a running wave.
func fire(b *cellBase) {
	ctx := getEvalContext()

	switch {
	case ctx.batchDepth > 0:
		ctx.queueRoot(b)
	case ctx.wave != nil:
		// Re-entrant write: the value is already applied; notification
		// queues for a follow-up wave after the current one completes.
		ctx.deferRoot(b)
	default:
		ctx.propagate([]*cellBase{b})
	}
}
