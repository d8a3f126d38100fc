// Package counter implements per-worker buffered hit counters.
//
// Instrumented code calls Increment on every block execution. Each
// worker owns its own Counters, so the hot path takes no locks and
// performs no allocation; synchronization cost is paid once per Flush
// rather than once per hit.
package counter

import (
	"fmt"
	"math"

	"github.com/unbound-force/tally/internal/taxonomy"
)

// cacheLinePad separates the headers of counters allocated next to each
// other so that two workers never write the same cache line.
type cacheLinePad [64]byte

// Counters is a fixed-length hit table owned exclusively by one worker.
// It is not safe for concurrent use.
type Counters struct {
	_       cacheLinePad
	counts  []uint64
	flushes uint64
	_       cacheLinePad
}

// New returns counters sized to a universe of n blocks.
func New(n int) *Counters {
	if n < 0 {
		n = 0
	}
	return &Counters{counts: make([]uint64, n)}
}

// Len returns the size of the block universe.
func (c *Counters) Len() int {
	return len(c.counts)
}

// Increment records one hit for b. Counts saturate at math.MaxUint64.
// It panics if b lies outside the universe.
func (c *Counters) Increment(b taxonomy.BlockID) {
	i := c.index(b)
	if c.counts[i] != math.MaxUint64 {
		c.counts[i]++
	}
}

// Add records n hits for b, saturating at math.MaxUint64.
// It panics if b lies outside the universe.
func (c *Counters) Add(b taxonomy.BlockID, n uint64) {
	i := c.index(b)
	if c.counts[i] > math.MaxUint64-n {
		c.counts[i] = math.MaxUint64
		return
	}
	c.counts[i] += n
}

// Get returns the local, not yet flushed count for b.
// It panics if b lies outside the universe.
func (c *Counters) Get(b taxonomy.BlockID) uint64 {
	return c.counts[c.index(b)]
}

// Flush returns a snapshot of every slot (index = block ordinal) and
// resets all slots to zero.
func (c *Counters) Flush() []uint64 {
	snapshot := make([]uint64, len(c.counts))
	copy(snapshot, c.counts)
	clear(c.counts)
	c.flushes++
	return snapshot
}

// FlushCount reports how many times Flush has been called.
func (c *Counters) FlushCount() uint64 {
	return c.flushes
}

func (c *Counters) index(b taxonomy.BlockID) int {
	i := int(b)
	if i >= len(c.counts) {
		panic(fmt.Sprintf("counter: block %s outside universe of %d blocks", b, len(c.counts)))
	}
	return i
}
