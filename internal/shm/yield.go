package shm

import "runtime"

// yieldOnly hands the processor to the scheduler without sleeping,
// used by the producer's backoff (spec.md §5: "the producer yields
// without sleeping").
func yieldOnly() {
	runtime.Gosched()
}
