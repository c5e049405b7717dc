package cell

// Batch groups multiple source writes into a single propagation wave.
// Values apply immediately; notification is deferred until the outermost
// batch completes, then all affected listeners and derived cells settle
// once. Batches nest.
//
// Example:
//
//	Batch(func() {
//	    firstName.Set("Ada")
//	    lastName.Set("Lovelace")
//	})
//	// Watchers of both cells deliver once, in one wave.
func Batch(fn func()) {
	ctx := getEvalContext()
	ctx.batchDepth++

	defer func() {
		ctx.batchDepth--
		if ctx.batchDepth == 0 {
			roots := ctx.takePending()
			if len(roots) > 0 {
				ctx.propagate(roots)
			}
		}
	}()

	fn()
}
