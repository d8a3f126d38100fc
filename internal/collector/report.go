package collector

import (
	"sort"

	"github.com/unbound-force/tally/internal/jidoka"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// TestRecord is the outcome of one test within a session.
type TestRecord struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	BlocksHit int    `json:"blocks_hit"`
}

// EdgeHit is the traversal count of one edge.
type EdgeHit struct {
	Edge  taxonomy.EdgeID `json:"edge"`
	Label string          `json:"label"`
	Count uint64          `json:"count"`
}

// Summary is the headline coverage figure of a report.
type Summary struct {
	TotalBlocks     int     `json:"total_blocks"`
	CoveredBlocks   int     `json:"covered_blocks"`
	CoveragePercent float64 `json:"coverage_percent"`
	TaintedBlocks   int     `json:"tainted_blocks"`
	CoveredEdges    int     `json:"covered_edges"`
	DeclaredEdges   int     `json:"declared_edges"`
}

// Report is the output of one completed session. Counts are exact.
type Report struct {
	SessionID     string                  `json:"session_id"`
	Name          string                  `json:"name"`
	Config        taxonomy.CoverageConfig `json:"config"`
	HitCounts     []uint64                `json:"hit_counts"`
	EdgeHits      []EdgeHit               `json:"edge_hits"`
	DeclaredEdges int                     `json:"declared_edges"`
	Violations    []jidoka.Entry          `json:"violations"`
	Tainted       []jidoka.TaintedEntry   `json:"tainted"`
	Tests         []TestRecord            `json:"tests"`
	StrayHits     uint64                  `json:"stray_hits"`
}

func (c *Collector) buildReport() *Report {
	s := c.s

	hits := make([]uint64, len(s.hits))
	copy(hits, s.hits)

	edges := make([]EdgeHit, 0, len(s.edgeHits))
	for e, n := range s.edgeHits {
		edges = append(edges, EdgeHit{Edge: e, Label: e.String(), Count: n})
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].Edge < edges[j].Edge })

	logged := s.tainted.Log()
	violations := make([]jidoka.Entry, len(logged))
	for i, v := range logged {
		violations[i] = jidoka.NewEntry(v)
	}

	tests := make([]TestRecord, len(s.tests))
	copy(tests, s.tests)

	return &Report{
		SessionID:     s.id,
		Name:          s.name,
		Config:        c.cfg,
		HitCounts:     hits,
		EdgeHits:      edges,
		DeclaredEdges: len(c.edges),
		Violations:    violations,
		Tainted:       s.tainted.Entries(),
		Tests:         tests,
		StrayHits:     s.stray,
	}
}

// Summary returns total, covered and percentage figures.
func (r *Report) Summary() Summary {
	total := len(r.HitCounts)
	covered := coveredCount(r.HitCounts)
	pct := 0.0
	if total > 0 {
		pct = 100 * float64(covered) / float64(total)
	}
	return Summary{
		TotalBlocks:     total,
		CoveredBlocks:   covered,
		CoveragePercent: pct,
		TaintedBlocks:   len(r.Tainted),
		CoveredEdges:    len(r.EdgeHits),
		DeclaredEdges:   r.DeclaredEdges,
	}
}

// HitCount returns the aggregate hits for b, or 0 outside the
// universe.
func (r *Report) HitCount(b taxonomy.BlockID) uint64 {
	if int(b) >= len(r.HitCounts) {
		return 0
	}
	return r.HitCounts[b]
}

// EdgeHitCount returns the traversal count for e.
func (r *Report) EdgeHitCount(e taxonomy.EdgeID) uint64 {
	for _, h := range r.EdgeHits {
		if h.Edge == e {
			return h.Count
		}
	}
	return 0
}

// ViolationCount returns the number of recorded violations.
func (r *Report) ViolationCount() int {
	return len(r.Violations)
}

// IsTainted reports whether b was tainted during the session.
func (r *Report) IsTainted(b taxonomy.BlockID) bool {
	for _, t := range r.Tainted {
		if t.Block == b {
			return true
		}
	}
	return false
}

// UncoveredBlocks returns the blocks with zero hits in ascending order.
func (r *Report) UncoveredBlocks() []taxonomy.BlockID {
	var out []taxonomy.BlockID
	for i, h := range r.HitCounts {
		if h == 0 {
			out = append(out, taxonomy.BlockID(i))
		}
	}
	return out
}

// FailedTests returns the number of tests that reported failure.
func (r *Report) FailedTests() int {
	n := 0
	for _, t := range r.Tests {
		if !t.Passed {
			n++
		}
	}
	return n
}
