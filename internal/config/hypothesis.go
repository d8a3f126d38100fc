package config

import (
	"fmt"

	"github.com/unbound-force/tally/internal/falsify"
)

// HypothesisKind selects a hypothesis shape.
type HypothesisKind string

// HypothesisKind constants.
const (
	KindCoverageThreshold HypothesisKind = "coverage_threshold"
	KindMaxFailures       HypothesisKind = "max_failures"
	KindCustom            HypothesisKind = "custom"
)

// Metric names an observed session value a hypothesis is evaluated
// against.
type Metric string

// Metric constants.
const (
	MetricCoverage   Metric = "coverage"
	MetricFailures   Metric = "failures"
	MetricViolations Metric = "violations"
	MetricTainted    Metric = "tainted"
	MetricStrayHits  Metric = "stray_hits"
	MetricTestFails  Metric = "test_failures"
)

var knownMetrics = map[Metric]bool{
	MetricCoverage:   true,
	MetricFailures:   true,
	MetricViolations: true,
	MetricTainted:    true,
	MetricStrayHits:  true,
	MetricTestFails:  true,
}

// HypothesisConfig declares one hypothesis.
type HypothesisConfig struct {
	ID         string            `yaml:"id"`
	Kind       HypothesisKind    `yaml:"kind"`
	Threshold  float64           `yaml:"threshold"`
	Metric     Metric            `yaml:"metric"`
	Null       string            `yaml:"null_hypothesis"`
	Score      *float64          `yaml:"score"`
	Conditions []ConditionConfig `yaml:"conditions"`
}

// ConditionConfig declares one falsification condition.
type ConditionConfig struct {
	Description string  `yaml:"description"`
	Operator    string  `yaml:"operator"`
	Target      float64 `yaml:"target"`
}

// MetricName returns the metric the hypothesis is evaluated on.
func (h HypothesisConfig) MetricName() Metric {
	switch h.Kind {
	case KindCoverageThreshold:
		return MetricCoverage
	case KindMaxFailures:
		return MetricFailures
	}
	return h.Metric
}

// Build constructs the hypothesis. Builtin kinds use their default
// score unless Score is set; extra conditions are appended.
func (h HypothesisConfig) Build() (falsify.Hypothesis, error) {
	if h.ID == "" {
		return falsify.Hypothesis{}, fmt.Errorf("hypothesis id is required")
	}

	var hyp falsify.Hypothesis
	switch h.Kind {
	case KindCoverageThreshold:
		if h.Threshold < 0 || h.Threshold > 1 {
			return falsify.Hypothesis{}, fmt.Errorf("hypothesis %s: coverage threshold must be in [0, 1], got %g", h.ID, h.Threshold)
		}
		hyp = falsify.CoverageThreshold(h.ID, h.Threshold)
	case KindMaxFailures:
		if h.Threshold < 0 || h.Threshold != float64(int(h.Threshold)) {
			return falsify.Hypothesis{}, fmt.Errorf("hypothesis %s: max_failures threshold must be a non-negative integer, got %g", h.ID, h.Threshold)
		}
		hyp = falsify.MaxFailures(h.ID, int(h.Threshold))
	case KindCustom:
		if !knownMetrics[h.Metric] {
			return falsify.Hypothesis{}, fmt.Errorf("hypothesis %s: unknown metric %q", h.ID, h.Metric)
		}
		if h.Score == nil {
			return falsify.Hypothesis{}, fmt.Errorf("hypothesis %s: custom hypotheses need a score", h.ID)
		}
		hyp = falsify.New(h.ID, h.Null, h.Threshold, *h.Score)
	default:
		return falsify.Hypothesis{}, fmt.Errorf("hypothesis %s: unknown kind %q", h.ID, h.Kind)
	}

	if h.Score != nil && h.Kind != KindCustom {
		rebuilt := falsify.New(hyp.ID, hyp.NullHypothesis, hyp.Threshold, *h.Score)
		for _, c := range hyp.Conditions {
			rebuilt = rebuilt.WithCondition(c)
		}
		hyp = rebuilt
	}
	if h.Null != "" {
		hyp.NullHypothesis = h.Null
	}

	for i, cc := range h.Conditions {
		op, err := falsify.ParseOperator(cc.Operator)
		if err != nil {
			return falsify.Hypothesis{}, fmt.Errorf("hypothesis %s: conditions[%d]: %w", h.ID, i, err)
		}
		hyp = hyp.WithCondition(falsify.Condition{
			Description: cc.Description,
			Operator:    op,
			Target:      cc.Target,
		})
	}
	if h.Kind == KindCustom && len(hyp.Conditions) == 0 {
		return falsify.Hypothesis{}, fmt.Errorf("hypothesis %s: custom hypotheses need at least one condition", h.ID)
	}
	return hyp, nil
}
