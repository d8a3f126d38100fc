// Package harness runs a plan through the full pipeline: partition,
// parallel execution with per-worker counters, session collection,
// hypothesis evaluation and the falsifiability gate.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/unbound-force/tally/internal/collector"
	"github.com/unbound-force/tally/internal/config"
	"github.com/unbound-force/tally/internal/counter"
	"github.com/unbound-force/tally/internal/executor"
	"github.com/unbound-force/tally/internal/falsify"
	"github.com/unbound-force/tally/internal/jidoka"
	"github.com/unbound-force/tally/internal/metrics"
	"github.com/unbound-force/tally/internal/scenario"
	"github.com/unbound-force/tally/internal/superblock"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// ForcedFailure is the error message of a superblock the plan marks as
// failing.
const ForcedFailure = "forced failure"

// Options carries optional collaborators.
type Options struct {
	Logger   *log.Logger
	Recorder *metrics.Recorder
}

// TestRun is the execution record of one test.
type TestRun struct {
	Name      string           `json:"name"`
	Passed    bool             `json:"passed"`
	Execution *executor.Report `json:"-"`
}

// Outcome is the result of a completed run.
type Outcome struct {
	Plan        string                    `json:"plan"`
	Workers     int                       `json:"workers"`
	Steals      int                       `json:"steals"`
	Superblocks []superblock.Superblock   `json:"superblocks"`
	Results     []executor.Result         `json:"results"`
	Tests       []TestRun                 `json:"tests"`
	Report      *collector.Report         `json:"report"`
	Coverage    Coverage                  `json:"coverage"`
	Metrics     map[config.Metric]float64 `json:"metrics"`
	Hypotheses  []falsify.Hypothesis      `json:"hypotheses"`
	Gate        falsify.GateResult        `json:"gate"`
}

// Coverage is the headline proportion at the configured granularity.
type Coverage struct {
	Granularity taxonomy.Granularity       `json:"granularity"`
	Covered     int                        `json:"covered"`
	Total       int                        `json:"total"`
	Fraction    float64                    `json:"fraction"`
	Interval    falsify.ConfidenceInterval `json:"interval"`
}

// Falsified returns the hypotheses whose claim was refuted.
func (o *Outcome) Falsified() []falsify.Hypothesis {
	var out []falsify.Hypothesis
	for _, h := range o.Hypotheses {
		if h.Falsified {
			out = append(out, h)
		}
	}
	return out
}

// Passed reports whether the gate passed and no hypothesis was
// falsified.
func (o *Outcome) Passed() bool {
	return o.Gate.Passed() && len(o.Falsified()) == 0
}

// FailedSuperblocks returns the ids of superblocks that failed in at
// least one test.
func (o *Outcome) FailedSuperblocks() []taxonomy.SuperblockID {
	var out []taxonomy.SuperblockID
	for _, r := range o.Results {
		if !r.Success {
			out = append(out, r.ID)
		}
	}
	return out
}

type blockHits struct {
	block taxonomy.BlockID
	n     uint64
}

// Run executes plan under cfg. A Stop violation aborts the session and
// is returned as a *jidoka.StopError with no outcome. Two runs with the
// same plan and config produce identical reports.
func Run(ctx context.Context, plan *scenario.Plan, cfg *config.TallyConfig, opts Options) (*Outcome, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	hypotheses, err := cfg.BuildHypotheses()
	if err != nil {
		return nil, err
	}

	universe := plan.Universe()
	builder := cfg.Builder().WithWeight(plan.Weight)
	sbs := builder.BuildFromFunctions(plan.FunctionBlocks())
	if err := superblock.Validate(sbs, builder.MaxSize()); err != nil {
		return nil, fmt.Errorf("partitioning %s: %w", plan.Name, err)
	}
	owner := make(map[taxonomy.BlockID]taxonomy.SuperblockID, universe)
	for _, sb := range sbs {
		for _, b := range sb.Blocks {
			owner[b] = sb.ID
		}
	}
	failures := plan.FailureSet()

	workers := cfg.Workers()
	arena := counter.NewArena(workers, universe)
	defer arena.Close()

	exec := executor.New(sbs,
		executor.WithWorkers(workers),
		executor.WithWorkStealing(cfg.Executor.WorkStealing),
		executor.WithRecorder(opts.Recorder),
		executor.WithLogger(logger),
	)
	coll := collector.New(universe, cfg.CoverageConfig(),
		collector.WithEdges(plan.DeclaredEdges()),
		collector.WithLogger(logger),
		collector.WithRecorder(opts.Recorder),
	)

	logger.Info("running plan", "plan", plan.Name, "blocks", universe,
		"superblocks", len(sbs), "workers", workers, "tests", len(plan.Tests))

	if err := coll.BeginSession(plan.Name); err != nil {
		return nil, err
	}
	abort := func(err error) (*Outcome, error) {
		if _, endErr := coll.EndSession(); endErr != nil && errors.Is(endErr, jidoka.ErrStop) {
			return nil, endErr
		}
		return nil, err
	}

	out := &Outcome{
		Plan:        plan.Name,
		Workers:     workers,
		Superblocks: sbs,
		Results:     make([]executor.Result, len(sbs)),
	}
	for i, sb := range sbs {
		out.Results[i] = executor.Pass(sb.ID)
	}

	for _, test := range plan.Tests {
		if err := ctx.Err(); err != nil {
			return abort(err)
		}
		if err := coll.BeginTest(test.Name); err != nil {
			return abort(err)
		}

		routed := make(map[taxonomy.SuperblockID][]blockHits)
		var direct []blockHits
		counts := test.HitCounts()
		for _, b := range scenario.SortedBlocks(counts) {
			h := blockHits{block: b, n: counts[b]}
			if id, ok := owner[b]; ok {
				routed[id] = append(routed[id], h)
			} else {
				direct = append(direct, h)
			}
		}

		rep := exec.ExecuteWorker(func(worker int, sb superblock.Superblock) executor.Result {
			if err := ctx.Err(); err != nil {
				return executor.Fail(sb.ID, err.Error())
			}
			if failures[sb.ID] {
				return executor.Fail(sb.ID, ForcedFailure)
			}
			c := arena.Worker(worker)
			for _, h := range routed[sb.ID] {
				c.Add(h.block, h.n)
			}
			return executor.Pass(sb.ID)
		})
		out.Steals += rep.Steals
		for i, r := range rep.Results {
			if !r.Success && out.Results[i].Success {
				out.Results[i] = r
			}
		}

		if err := arena.FlushAll(func(_ int, snapshot []uint64) error {
			return coll.MergeFlush(snapshot)
		}); err != nil {
			return abort(err)
		}
		if err := recordDirect(coll, test, direct); err != nil {
			return abort(err)
		}
		if err := coll.EndTest(!test.Fail); err != nil {
			return abort(err)
		}
		out.Tests = append(out.Tests, TestRun{Name: test.Name, Passed: !test.Fail, Execution: rep})
	}

	if err := ctx.Err(); err != nil {
		return abort(err)
	}
	if plan.Baseline != nil {
		if err := coll.CheckRegression(*plan.Baseline); err != nil {
			return abort(err)
		}
	}
	rpt, err := coll.EndSession()
	if err != nil {
		return nil, err
	}
	out.Report = rpt

	out.Coverage = coverage(rpt, plan, cfg)
	out.Metrics = map[config.Metric]float64{
		config.MetricCoverage:   out.Coverage.Fraction,
		config.MetricFailures:   float64(len(out.FailedSuperblocks())),
		config.MetricViolations: float64(rpt.ViolationCount()),
		config.MetricTainted:    float64(len(rpt.Tainted)),
		config.MetricStrayHits:  float64(rpt.StrayHits),
		config.MetricTestFails:  float64(rpt.FailedTests()),
	}

	for i, h := range hypotheses {
		metric := cfg.Hypotheses[i].MetricName()
		if metric == config.MetricCoverage {
			h = h.EvaluateProportion(out.Coverage.Covered, out.Coverage.Total, cfg.Gate.Confidence)
		} else {
			h = h.Evaluate(out.Metrics[metric])
		}
		out.Hypotheses = append(out.Hypotheses, h)
	}
	out.Gate = cfg.FalsifyGate().EvaluateAll(out.Hypotheses)

	logger.Info("run complete", "plan", plan.Name,
		"coverage", fmt.Sprintf("%.1f%%", 100*out.Coverage.Fraction),
		"violations", rpt.ViolationCount(), "gate", out.Gate.Status)
	return out, nil
}

// recordDirect records the hits that no superblock owns, then the
// test's edges and declared violations.
func recordDirect(coll *collector.Collector, test scenario.Test, direct []blockHits) error {
	for _, h := range direct {
		if err := coll.RecordHits(h.block, h.n); err != nil {
			return err
		}
	}
	for _, e := range test.Edges {
		if err := coll.RecordEdge(e.ID()); err != nil {
			return err
		}
	}
	for _, vs := range test.Violations {
		v, err := vs.Violation()
		if err != nil {
			return fmt.Errorf("test %s: %w", test.Name, err)
		}
		if err := coll.RecordViolation(v); err != nil {
			return err
		}
	}
	return nil
}

// coverage computes the covered proportion at the configured
// granularity. Edge granularity without declared edges counts blocks.
func coverage(rpt *collector.Report, plan *scenario.Plan, cfg *config.TallyConfig) Coverage {
	g := cfg.CoverageConfig().Granularity
	var covered, total int
	switch {
	case g == taxonomy.GranularityFunction:
		for _, f := range plan.Functions {
			total++
			for _, b := range f.IDs() {
				if rpt.HitCount(b) > 0 {
					covered++
					break
				}
			}
		}
	case g == taxonomy.GranularityEdge && rpt.DeclaredEdges > 0:
		total = rpt.DeclaredEdges
		covered = len(rpt.EdgeHits)
	default:
		s := rpt.Summary()
		covered, total = s.CoveredBlocks, s.TotalBlocks
	}

	c := Coverage{
		Granularity: g,
		Covered:     covered,
		Total:       total,
		Interval:    falsify.WilsonScore(covered, total, cfg.Gate.Confidence),
	}
	if total > 0 {
		c.Fraction = float64(covered) / float64(total)
	}
	return c
}

// SortedMetrics returns the metric names in a stable order.
func SortedMetrics(m map[config.Metric]float64) []config.Metric {
	out := make([]config.Metric, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
