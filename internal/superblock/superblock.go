// Package superblock groups basic blocks into scheduling units
// (superblocks) for the parallel executor.
//
// Partitioning is greedy first fit in input order. It is pure: the
// same blocks and builder settings always produce the same
// superblocks, so the executor's nondeterministic worker assignment
// cannot leak into results.
package superblock

import (
	"fmt"
	"math"

	"github.com/unbound-force/tally/internal/taxonomy"
)

// Default builder sizes.
const (
	DefaultTargetSize = 64
	DefaultMaxSize    = 128
)

// Superblock is one scheduling unit: an ordered set of blocks owned by
// a single function.
type Superblock struct {
	// ID is unique within one partitioning run.
	ID taxonomy.SuperblockID `json:"id"`

	// Owner is the function the blocks belong to.
	Owner taxonomy.FunctionID `json:"owner"`

	// Blocks lists the member blocks in input order.
	Blocks []taxonomy.BlockID `json:"blocks"`

	// Cost is the summed weight of the member blocks. With the default
	// weighting it equals the block count.
	Cost float64 `json:"cost_estimate"`
}

// BlockCount returns the number of member blocks.
func (s Superblock) BlockCount() int {
	return len(s.Blocks)
}

// Contains reports whether b is a member of the superblock.
func (s Superblock) Contains(b taxonomy.BlockID) bool {
	for _, m := range s.Blocks {
		if m == b {
			return true
		}
	}
	return false
}

// FunctionBlocks is the block list of one function, used as input to
// BuildFromFunctions.
type FunctionBlocks struct {
	Function taxonomy.FunctionID
	Blocks   []taxonomy.BlockID
}

// Builder partitions block lists under a target and maximum size.
// The zero value is not usable; call NewBuilder or DefaultBuilder.
type Builder struct {
	targetSize int
	maxSize    int
	weight     func(taxonomy.BlockID) float64
}

// NewBuilder returns a builder that closes a superblock once it holds
// target blocks. Sizes are normalized so that 1 <= target <= max.
func NewBuilder(target, max int) Builder {
	if target < 1 {
		target = 1
	}
	if max < target {
		max = target
	}
	return Builder{targetSize: target, maxSize: max}
}

// DefaultBuilder returns a builder with DefaultTargetSize and
// DefaultMaxSize.
func DefaultBuilder() Builder {
	return NewBuilder(DefaultTargetSize, DefaultMaxSize)
}

// WithWeight returns a copy of the builder that estimates cost with fn
// instead of counting blocks. Negative weights count as zero.
func (b Builder) WithWeight(fn func(taxonomy.BlockID) float64) Builder {
	b.weight = fn
	return b
}

// TargetSize returns the size at which a superblock is closed.
func (b Builder) TargetSize() int { return b.targetSize }

// MaxSize returns the hard upper bound on superblock size.
func (b Builder) MaxSize() int { return b.maxSize }

// BuildFromBlocks partitions blocks owned by a single function. IDs
// start at zero. A block that appears more than once is kept only at
// its first position.
func (b Builder) BuildFromBlocks(blocks []taxonomy.BlockID, owner taxonomy.FunctionID) []Superblock {
	seen := make(map[taxonomy.BlockID]bool, len(blocks))
	return b.build(nil, blocks, owner, seen)
}

// BuildFromFunctions partitions each function separately, so no
// superblock spans two owners. IDs are numbered contiguously across
// functions in input order. A block listed under several functions is
// kept at its first owner.
func (b Builder) BuildFromFunctions(funcs []FunctionBlocks) []Superblock {
	seen := make(map[taxonomy.BlockID]bool)
	var out []Superblock
	for _, fb := range funcs {
		out = b.build(out, fb.Blocks, fb.Function, seen)
	}
	return out
}

func (b Builder) build(out []Superblock, blocks []taxonomy.BlockID, owner taxonomy.FunctionID, seen map[taxonomy.BlockID]bool) []Superblock {
	target := b.targetSize
	if target < 1 {
		target = 1
	}

	var cur *Superblock
	for _, blk := range blocks {
		if seen[blk] {
			continue
		}
		seen[blk] = true

		if cur == nil {
			out = append(out, Superblock{
				ID:     taxonomy.SuperblockID(len(out)),
				Owner:  owner,
				Blocks: make([]taxonomy.BlockID, 0, target),
			})
			cur = &out[len(out)-1]
		}
		cur.Blocks = append(cur.Blocks, blk)
		cur.Cost += b.weightOf(blk)

		if len(cur.Blocks) >= target {
			cur = nil
		}
	}
	return out
}

func (b Builder) weightOf(blk taxonomy.BlockID) float64 {
	if b.weight == nil {
		return 1
	}
	w := b.weight(blk)
	if w < 0 || math.IsNaN(w) {
		return 0
	}
	return w
}

// TotalBlocks returns the combined block count of sbs.
func TotalBlocks(sbs []Superblock) int {
	n := 0
	for _, s := range sbs {
		n += len(s.Blocks)
	}
	return n
}

// Validate checks that no superblock is empty or exceeds max blocks
// and that no block belongs to more than one superblock.
func Validate(sbs []Superblock, max int) error {
	owner := make(map[taxonomy.BlockID]taxonomy.SuperblockID)
	ids := make(map[taxonomy.SuperblockID]bool, len(sbs))
	for _, s := range sbs {
		if ids[s.ID] {
			return fmt.Errorf("duplicate superblock id %s", s.ID)
		}
		ids[s.ID] = true
		if len(s.Blocks) == 0 {
			return fmt.Errorf("superblock %s is empty", s.ID)
		}
		if max > 0 && len(s.Blocks) > max {
			return fmt.Errorf("superblock %s has %d blocks, exceeds max %d", s.ID, len(s.Blocks), max)
		}
		for _, blk := range s.Blocks {
			if prev, ok := owner[blk]; ok {
				return fmt.Errorf("block %s in both %s and %s", blk, prev, s.ID)
			}
			owner[blk] = s.ID
		}
	}
	return nil
}
