// Package taxonomy defines the identifier types and session
// configuration shared by every coverage component.
//
// Block, function and superblock identifiers are distinct named types
// so that a FunctionID can never be passed where a BlockID is
// expected. The instrumentation pass owns identifier assignment; the
// core only checks range membership.
package taxonomy

import (
	"fmt"
)

// BlockID identifies one basic block in the instrumented program.
type BlockID uint32

// String renders the block as "b<n>".
func (b BlockID) String() string {
	return fmt.Sprintf("b%d", uint32(b))
}

// FunctionID identifies the function that owns a set of blocks.
type FunctionID uint32

// String renders the function as "f<n>".
func (f FunctionID) String() string {
	return fmt.Sprintf("f%d", uint32(f))
}

// SuperblockID identifies one scheduling unit produced by a
// partitioning run.
type SuperblockID uint32

// String renders the superblock as "sb<n>".
func (s SuperblockID) String() string {
	return fmt.Sprintf("sb%d", uint32(s))
}

// EdgeID packs a (source, target) block pair into 64 bits: the source
// occupies the high half and the target the low half.
type EdgeID uint64

// NewEdgeID packs src and dst into an EdgeID.
func NewEdgeID(src, dst BlockID) EdgeID {
	return EdgeID(uint64(src)<<32 | uint64(dst))
}

// EdgeFromUint64 reinterprets a packed value as an EdgeID.
func EdgeFromUint64(v uint64) EdgeID {
	return EdgeID(v)
}

// Source returns the block the edge leaves.
func (e EdgeID) Source() BlockID {
	return BlockID(uint64(e) >> 32)
}

// Target returns the block the edge enters.
func (e EdgeID) Target() BlockID {
	return BlockID(uint64(e) & 0xFFFFFFFF)
}

// Uint64 returns the packed representation.
func (e EdgeID) Uint64() uint64 {
	return uint64(e)
}

// String renders the edge as "b<src>->b<dst>".
func (e EdgeID) String() string {
	return e.Source().String() + "->" + e.Target().String()
}

// Granularity selects the unit that coverage is reported in.
type Granularity string

// Granularity constants.
const (
	GranularityFunction   Granularity = "function"
	GranularityBasicBlock Granularity = "basic_block"
	GranularityEdge       Granularity = "edge"
)

// ParseGranularity converts a configuration string to a Granularity.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case GranularityFunction, GranularityBasicBlock, GranularityEdge:
		return g, nil
	case "":
		return GranularityBasicBlock, nil
	default:
		return "", fmt.Errorf("unknown granularity %q: must be 'function', 'basic_block', or 'edge'", s)
	}
}

// CoverageConfig holds the per-session collection settings. It is a
// value type; the collector keeps its own copy so a session's config
// cannot change after BeginSession.
type CoverageConfig struct {
	// Granularity is the reporting unit.
	Granularity Granularity `json:"granularity" yaml:"granularity"`

	// Parallel enables the work-stealing executor. When false the
	// executor runs with a single worker.
	Parallel bool `json:"parallel" yaml:"parallel"`

	// JidokaEnabled makes Stop-classified violations halt the session.
	// When false every violation is logged and collection continues.
	JidokaEnabled bool `json:"jidoka_enabled" yaml:"jidoka"`
}

// DefaultCoverageConfig returns basic-block granularity, parallel
// execution and jidoka enabled.
func DefaultCoverageConfig() CoverageConfig {
	return CoverageConfig{
		Granularity:   GranularityBasicBlock,
		Parallel:      true,
		JidokaEnabled: true,
	}
}
