package falsify

import (
	"fmt"
	"math"
	"strconv"
)

// ConfidenceInterval is a bounded estimate of a proportion.
// 0 <= Lower <= Upper <= 1 always holds.
type ConfidenceInterval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Level float64 `json:"level"`
}

// WilsonScore returns the Wilson score interval for successes out of
// total at the given two-sided confidence level.
//
// Degenerate inputs return a valid interval rather than failing:
// total <= 0 or successes < 0 yields [0, 1], successes above total is
// clamped to total, confidence >= 1 yields [0, 1] and confidence <= 0
// collapses to the point estimate.
func WilsonScore(successes, total int, confidence float64) ConfidenceInterval {
	ci := ConfidenceInterval{Lower: 0, Upper: 1, Level: confidence}
	if total <= 0 || successes < 0 || math.IsNaN(confidence) {
		return ci
	}
	if successes > total {
		successes = total
	}
	n := float64(total)
	p := float64(successes) / n

	switch {
	case confidence >= 1:
		return ci
	case confidence <= 0:
		ci.Lower, ci.Upper = p, p
		return ci
	}

	z := math.Sqrt2 * math.Erfinv(confidence)
	z2 := z * z
	denom := 1 + z2/n
	center := (p + z2/(2*n)) / denom
	half := z * math.Sqrt(p*(1-p)/n+z2/(4*n*n)) / denom

	ci.Lower = clamp01(center - half)
	ci.Upper = clamp01(center + half)
	if ci.Lower > ci.Upper {
		ci.Lower, ci.Upper = ci.Upper, ci.Lower
	}
	return ci
}

// Width returns Upper - Lower.
func (ci ConfidenceInterval) Width() float64 {
	return ci.Upper - ci.Lower
}

// Contains reports whether p lies within the closed interval.
func (ci ConfidenceInterval) Contains(p float64) bool {
	return p >= ci.Lower && p <= ci.Upper
}

// String renders the interval as "Wilson 95% CI: [87.2%, 93.1%]".
func (ci ConfidenceInterval) String() string {
	level := strconv.FormatFloat(math.Round(ci.Level*1000)/10, 'f', -1, 64)
	return fmt.Sprintf("Wilson %s%% CI: [%.1f%%, %.1f%%]", level, ci.Lower*100, ci.Upper*100)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
