// Package report provides output formatters for tally run outcomes in
// JSON and human-readable text formats.
package report

import (
	"encoding/json"
	"io"

	"github.com/unbound-force/tally/internal/collector"
	"github.com/unbound-force/tally/internal/executor"
	"github.com/unbound-force/tally/internal/falsify"
	"github.com/unbound-force/tally/internal/harness"
	"github.com/unbound-force/tally/internal/jidoka"
	"github.com/unbound-force/tally/internal/superblock"
)

// JSONReport is the top-level JSON output structure.
type JSONReport struct {
	Version     string                  `json:"version"`
	SessionID   string                  `json:"session_id"`
	Plan        string                  `json:"plan"`
	Passed      bool                    `json:"passed"`
	Workers     int                     `json:"workers"`
	Steals      int                     `json:"steals"`
	Summary     collector.Summary       `json:"summary"`
	Coverage    harness.Coverage        `json:"coverage"`
	Superblocks []superblock.Superblock `json:"superblocks"`
	Results     []executor.Result       `json:"results"`
	Tests       []collector.TestRecord  `json:"tests"`
	HitCounts   []uint64                `json:"hit_counts"`
	EdgeHits    []collector.EdgeHit     `json:"edge_hits"`
	Violations  []jidoka.Entry          `json:"violations"`
	Tainted     []jidoka.TaintedEntry   `json:"tainted"`
	StrayHits   uint64                  `json:"stray_hits"`
	Metrics     map[string]float64      `json:"metrics"`
	Hypotheses  []falsify.Hypothesis    `json:"hypotheses"`
	Gate        falsify.GateResult      `json:"gate"`
}

// NewJSONReport flattens an outcome. Nil slices become empty arrays.
func NewJSONReport(o *harness.Outcome, version string) JSONReport {
	r := o.Report
	metrics := make(map[string]float64, len(o.Metrics))
	for k, v := range o.Metrics {
		metrics[string(k)] = v
	}
	return JSONReport{
		Version:     version,
		SessionID:   r.SessionID,
		Plan:        o.Plan,
		Passed:      o.Passed(),
		Workers:     o.Workers,
		Steals:      o.Steals,
		Summary:     r.Summary(),
		Coverage:    o.Coverage,
		Superblocks: nonNil(o.Superblocks),
		Results:     nonNil(o.Results),
		Tests:       nonNil(r.Tests),
		HitCounts:   nonNil(r.HitCounts),
		EdgeHits:    nonNil(r.EdgeHits),
		Violations:  nonNil(r.Violations),
		Tainted:     nonNil(r.Tainted),
		StrayHits:   r.StrayHits,
		Metrics:     metrics,
		Hypotheses:  nonNil(o.Hypotheses),
		Gate:        o.Gate,
	}
}

// WriteJSON writes the outcome as formatted JSON to the writer.
func WriteJSON(w io.Writer, o *harness.Outcome, version string) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(NewJSONReport(o, version))
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
