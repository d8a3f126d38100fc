// Package scenario defines run plans: the block universe of an
// instrumented module together with the tests executed against it.
//
// A plan stands in for the instrumentation collaborator. It declares
// functions and their blocks, the reachable edges, and for each test the
// blocks and edges it hits and any violations the instrumentation
// reports. Plans are written in YAML.
package scenario

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/unbound-force/tally/internal/superblock"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// Plan is a parsed run plan.
type Plan struct {
	Name      string                  `yaml:"name"`
	Functions []Function              `yaml:"functions"`
	Edges     []Edge                  `yaml:"edges,omitempty"`
	Tests     []Test                  `yaml:"tests,omitempty"`
	Failures  []taxonomy.SuperblockID `yaml:"failures,omitempty"`
	Baseline  *float64                `yaml:"baseline,omitempty"`

	universe int
	owner    map[taxonomy.BlockID]int
}

// Function is one instrumented function. Either Blocks (a count,
// assigned contiguous ids after every earlier function) or BlockIDs is
// set.
type Function struct {
	Name     string                       `yaml:"name"`
	Blocks   int                          `yaml:"blocks,omitempty"`
	BlockIDs []taxonomy.BlockID           `yaml:"block_ids,omitempty"`
	Weights  map[taxonomy.BlockID]float64 `yaml:"weights,omitempty"`

	ids []taxonomy.BlockID
}

// IDs returns the function's resolved block ids.
func (f Function) IDs() []taxonomy.BlockID {
	return f.ids
}

// Edge is a control-flow edge.
type Edge struct {
	From taxonomy.BlockID `yaml:"from"`
	To   taxonomy.BlockID `yaml:"to"`
}

// ID returns the packed edge id.
func (e Edge) ID() taxonomy.EdgeID {
	return taxonomy.NewEdgeID(e.From, e.To)
}

// Test is one test case of the run.
type Test struct {
	Name       string                      `yaml:"name"`
	Hits       []taxonomy.BlockID          `yaml:"hits,omitempty"`
	Counts     map[taxonomy.BlockID]uint64 `yaml:"counts,omitempty"`
	Edges      []Edge                      `yaml:"edges,omitempty"`
	Fail       bool                        `yaml:"fail,omitempty"`
	Violations []ViolationSpec             `yaml:"violations,omitempty"`
}

// HitCounts merges Hits (one each) and Counts into a single table.
func (t Test) HitCounts() map[taxonomy.BlockID]uint64 {
	out := make(map[taxonomy.BlockID]uint64, len(t.Hits)+len(t.Counts))
	for _, b := range t.Hits {
		out[b]++
	}
	for b, n := range t.Counts {
		out[b] += n
	}
	return out
}

// Load reads and parses the plan at path.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan %s: %w", path, err)
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and validates a YAML plan and resolves block ids.
func Parse(data []byte) (*Plan, error) {
	var p Plan
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing plan: %w", err)
	}
	if err := p.Resolve(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Resolve assigns block ids and validates the plan. Plans built in
// code must be resolved before use.
func (p *Plan) Resolve() error {
	next := taxonomy.BlockID(0)
	owner := make(map[taxonomy.BlockID]int)
	for i := range p.Functions {
		f := &p.Functions[i]
		switch {
		case f.Name == "":
			return fmt.Errorf("functions[%d]: name is required", i)
		case f.Blocks > 0 && len(f.BlockIDs) > 0:
			return fmt.Errorf("function %s: set blocks or block_ids, not both", f.Name)
		case f.Blocks < 0:
			return fmt.Errorf("function %s: negative block count %d", f.Name, f.Blocks)
		case f.Blocks == 0 && len(f.BlockIDs) == 0:
			return fmt.Errorf("function %s: no blocks", f.Name)
		}

		if len(f.BlockIDs) > 0 {
			f.ids = append([]taxonomy.BlockID(nil), f.BlockIDs...)
		} else {
			f.ids = make([]taxonomy.BlockID, f.Blocks)
			for j := range f.ids {
				f.ids[j] = next + taxonomy.BlockID(j)
			}
		}
		for _, b := range f.ids {
			if prev, dup := owner[b]; dup {
				return fmt.Errorf("function %s: block %s already owned by %s", f.Name, b, p.Functions[prev].Name)
			}
			owner[b] = i
			if b >= next {
				next = b + 1
			}
		}
	}
	p.universe = int(next)
	p.owner = owner

	for i := range p.Functions {
		f := &p.Functions[i]
		for b, w := range f.Weights {
			if o, ok := owner[b]; !ok || o != i {
				return fmt.Errorf("function %s: weight for block %s it does not own", f.Name, b)
			}
			if w < 0 {
				return fmt.Errorf("function %s: negative weight %g for block %s", f.Name, w, b)
			}
		}
	}
	for i, e := range p.Edges {
		if int(e.From) >= p.universe || int(e.To) >= p.universe {
			return fmt.Errorf("edges[%d]: %s outside universe of %d blocks", i, e.ID(), p.universe)
		}
	}
	for i, t := range p.Tests {
		if t.Name == "" {
			return fmt.Errorf("tests[%d]: name is required", i)
		}
		for j, v := range t.Violations {
			if _, err := v.Violation(); err != nil {
				return fmt.Errorf("test %s: violations[%d]: %w", t.Name, j, err)
			}
		}
	}
	if p.Baseline != nil && (*p.Baseline < 0 || *p.Baseline > 1) {
		return fmt.Errorf("baseline must be in [0, 1], got %g", *p.Baseline)
	}
	return nil
}

// Universe returns the number of blocks: one past the highest id.
func (p *Plan) Universe() int {
	return p.universe
}

// FunctionBlocks returns each function's blocks for partitioning, with
// FunctionID equal to declaration order.
func (p *Plan) FunctionBlocks() []superblock.FunctionBlocks {
	out := make([]superblock.FunctionBlocks, len(p.Functions))
	for i, f := range p.Functions {
		out[i] = superblock.FunctionBlocks{
			Function: taxonomy.FunctionID(i),
			Blocks:   f.ids,
		}
	}
	return out
}

// Weight returns the declared cost weight of b, or 1.
func (p *Plan) Weight(b taxonomy.BlockID) float64 {
	if i, ok := p.functionOf(b); ok {
		if w, ok := p.Functions[i].Weights[b]; ok {
			return w
		}
	}
	return 1
}

// DeclaredEdges returns the plan's edges, or nil when none are
// declared so that every edge is accepted.
func (p *Plan) DeclaredEdges() []taxonomy.EdgeID {
	if len(p.Edges) == 0 {
		return nil
	}
	out := make([]taxonomy.EdgeID, len(p.Edges))
	for i, e := range p.Edges {
		out[i] = e.ID()
	}
	return out
}

// FailureSet returns the superblocks forced to fail.
func (p *Plan) FailureSet() map[taxonomy.SuperblockID]bool {
	out := make(map[taxonomy.SuperblockID]bool, len(p.Failures))
	for _, id := range p.Failures {
		out[id] = true
	}
	return out
}

// functionOf returns the index of the function owning b.
func (p *Plan) functionOf(b taxonomy.BlockID) (int, bool) {
	i, ok := p.owner[b]
	return i, ok
}

// Marshal encodes the plan as YAML with deterministic key order.
func (p *Plan) Marshal() ([]byte, error) {
	return yaml.Marshal(p)
}

// SortedBlocks returns the keys of m in ascending order.
func SortedBlocks(m map[taxonomy.BlockID]uint64) []taxonomy.BlockID {
	out := make([]taxonomy.BlockID, 0, len(m))
	for b := range m {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
