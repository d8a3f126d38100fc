package executor

import (
	"github.com/unbound-force/tally/internal/superblock"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// Report aggregates one execution: exactly one Result per superblock,
// in superblock input order, and the derived block coverage.
type Report struct {
	// Results holds one entry per superblock.
	Results []Result `json:"results"`

	// BlockCoverage maps every block to whether its superblock
	// succeeded.
	BlockCoverage map[taxonomy.BlockID]bool `json:"block_coverage"`

	// Workers is the worker count the execution ran with.
	Workers int `json:"workers"`

	// Steals is the number of superblocks taken from another worker's
	// queue.
	Steals int `json:"steals"`
}

func newReport(sbs []superblock.Superblock, results []Result, workers, steals int) *Report {
	coverage := make(map[taxonomy.BlockID]bool, superblock.TotalBlocks(sbs))
	for i, sb := range sbs {
		ok := results[i].Success
		for _, b := range sb.Blocks {
			// A block listed in two superblocks is covered if either
			// succeeded.
			coverage[b] = coverage[b] || ok
		}
	}
	return &Report{
		Results:       results,
		BlockCoverage: coverage,
		Workers:       workers,
		Steals:        steals,
	}
}

// TotalBlocks returns the number of distinct blocks in the execution.
func (r *Report) TotalBlocks() int {
	return len(r.BlockCoverage)
}

// CoveredBlocks returns the number of blocks whose superblock
// succeeded.
func (r *Report) CoveredBlocks() int {
	n := 0
	for _, ok := range r.BlockCoverage {
		if ok {
			n++
		}
	}
	return n
}

// CoveragePercent returns covered blocks as a percentage (0-100).
// An execution with no blocks reports 0.
func (r *Report) CoveragePercent() float64 {
	total := r.TotalBlocks()
	if total == 0 {
		return 0
	}
	return 100 * float64(r.CoveredBlocks()) / float64(total)
}

// Succeeded returns the number of successful superblocks.
func (r *Report) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Success {
			n++
		}
	}
	return n
}

// Failed returns the failed results in superblock order.
func (r *Report) Failed() []Result {
	var out []Result
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}
