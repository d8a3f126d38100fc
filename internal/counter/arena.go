package counter

import (
	"fmt"
)

// Arena holds one Counters per worker, indexed by worker id. The arena
// is created at session start and closed at session end; each worker
// goroutine must only touch the Counters for its own id.
type Arena struct {
	workers  []*Counters
	universe int
	closed   bool
}

// NewArena allocates counters for the given number of workers, each
// sized to universe blocks. A worker count below 1 is raised to 1.
func NewArena(workers, universe int) *Arena {
	if workers < 1 {
		workers = 1
	}
	a := &Arena{
		workers:  make([]*Counters, workers),
		universe: universe,
	}
	for i := range a.workers {
		a.workers[i] = New(universe)
	}
	return a
}

// Workers returns the number of per-worker counters in the arena.
func (a *Arena) Workers() int {
	return len(a.workers)
}

// Universe returns the block universe each counter is sized to.
func (a *Arena) Universe() int {
	return a.universe
}

// Worker returns the counters owned by worker id.
// It panics if id is out of range or the arena has been closed.
func (a *Arena) Worker(id int) *Counters {
	if a.closed {
		panic("counter: arena used after Close")
	}
	if id < 0 || id >= len(a.workers) {
		panic(fmt.Sprintf("counter: worker %d outside arena of %d workers", id, len(a.workers)))
	}
	return a.workers[id]
}

// FlushAll flushes every worker in id order and hands each snapshot
// to sink. It stops at the first error returned by sink; workers after
// the failing one keep their unflushed counts. It panics if the arena
// has been closed.
func (a *Arena) FlushAll(sink func(worker int, snapshot []uint64) error) error {
	if a.closed {
		panic("counter: arena used after Close")
	}
	for id := range a.workers {
		if err := sink(id, a.Worker(id).Flush()); err != nil {
			return fmt.Errorf("flushing worker %d: %w", id, err)
		}
	}
	return nil
}

// Close releases the per-worker storage. Further calls to Worker or
// FlushAll panic.
func (a *Arena) Close() {
	a.closed = true
	a.workers = nil
}
