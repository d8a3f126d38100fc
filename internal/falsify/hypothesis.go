package falsify

import (
	"fmt"
	"math"
)

// Default falsifiability scores for the built-in hypothesis shapes.
const (
	CoverageThresholdScore = 20
	MaxFailuresScore       = 18
)

// Verdict summarizes an evaluated hypothesis for display.
type Verdict string

// Verdict constants.
const (
	VerdictNotEvaluated Verdict = "not_evaluated"
	VerdictSupported    Verdict = "supported"
	VerdictFalsified    Verdict = "falsified"
	VerdictInconclusive Verdict = "inconclusive"
)

// Hypothesis is a claim about a run that can be empirically refuted.
// FalsifiabilityScore lies in [0, MaxFalsifiabilityScore]; higher is a
// sharper claim.
type Hypothesis struct {
	ID                  string              `json:"id"`
	NullHypothesis      string              `json:"null_hypothesis"`
	Threshold           float64             `json:"threshold"`
	Actual              *float64            `json:"actual,omitempty"`
	ConfidenceInterval  *ConfidenceInterval `json:"confidence_interval,omitempty"`
	Conditions          []Condition         `json:"conditions"`
	FalsifiabilityScore float64             `json:"falsifiability_score"`
	Falsified           bool                `json:"falsified"`
}

// New returns an unevaluated hypothesis with no conditions. score is
// clamped to [0, MaxFalsifiabilityScore].
func New(id, null string, threshold, score float64) Hypothesis {
	switch {
	case score < 0 || math.IsNaN(score):
		score = 0
	case score > MaxFalsifiabilityScore:
		score = MaxFalsifiabilityScore
	}
	return Hypothesis{
		ID:                  id,
		NullHypothesis:      null,
		Threshold:           threshold,
		Conditions:          []Condition{},
		FalsifiabilityScore: score,
	}
}

// CoverageThreshold claims coverage is at least threshold. It is
// falsified by any observed coverage below threshold.
func CoverageThreshold(id string, threshold float64) Hypothesis {
	return New(id, fmt.Sprintf("coverage >= %g", threshold), threshold, CoverageThresholdScore).
		WithCondition(Condition{
			Description: fmt.Sprintf("coverage < %g", threshold),
			Operator:    Less,
			Target:      threshold,
		})
}

// MaxFailures claims at most max superblocks fail.
func MaxFailures(id string, max int) Hypothesis {
	return New(id, fmt.Sprintf("failures <= %d", max), float64(max), MaxFailuresScore).
		WithCondition(Condition{
			Description: fmt.Sprintf("failures > %d", max),
			Operator:    Greater,
			Target:      float64(max),
		})
}

// WithCondition returns a copy of h with c appended.
func (h Hypothesis) WithCondition(c Condition) Hypothesis {
	out := h.clone()
	out.Conditions = append(out.Conditions, c)
	return out
}

// Evaluate returns a copy of h with Actual set and Falsified computed
// as the OR over its conditions. A hypothesis with no conditions is
// never falsified.
func (h Hypothesis) Evaluate(actual float64) Hypothesis {
	out := h.clone()
	out.Actual = &actual
	out.Falsified = false
	for _, c := range out.Conditions {
		if c.IsFalsified(actual) {
			out.Falsified = true
			break
		}
	}
	return out
}

// EvaluateProportion evaluates h against successes/total and attaches
// the Wilson score interval at confidence. total == 0 evaluates 0.
func (h Hypothesis) EvaluateProportion(successes, total int, confidence float64) Hypothesis {
	p := 0.0
	if total > 0 {
		s := successes
		if s > total {
			s = total
		}
		if s < 0 {
			s = 0
		}
		p = float64(s) / float64(total)
	}
	ci := WilsonScore(successes, total, confidence)
	out := h.Evaluate(p)
	out.ConfidenceInterval = &ci
	return out
}

// Evaluated reports whether Actual is set.
func (h Hypothesis) Evaluated() bool {
	return h.Actual != nil
}

// Inconclusive reports whether the confidence interval straddles the
// target of any condition, so the verdict could flip with more data.
func (h Hypothesis) Inconclusive() bool {
	if h.ConfidenceInterval == nil {
		return false
	}
	for _, c := range h.Conditions {
		if c.Target > h.ConfidenceInterval.Lower && c.Target < h.ConfidenceInterval.Upper {
			return true
		}
	}
	return false
}

// Verdict classifies h for display. Falsified wins over inconclusive.
func (h Hypothesis) Verdict() Verdict {
	switch {
	case !h.Evaluated():
		return VerdictNotEvaluated
	case h.Falsified:
		return VerdictFalsified
	case h.Inconclusive():
		return VerdictInconclusive
	}
	return VerdictSupported
}

func (h Hypothesis) clone() Hypothesis {
	out := h
	out.Conditions = append([]Condition{}, h.Conditions...)
	if h.Actual != nil {
		a := *h.Actual
		out.Actual = &a
	}
	if h.ConfidenceInterval != nil {
		ci := *h.ConfidenceInterval
		out.ConfidenceInterval = &ci
	}
	return out
}
