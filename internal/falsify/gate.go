package falsify

// Gate constants.
const (
	DefaultGatewayThreshold = 15
	MaxFalsifiabilityScore  = 25

	NotEvaluableReason = "INSUFFICIENT FALSIFIABILITY — NOT EVALUABLE AS SCIENCE"
)

// GateStatus is the outcome of a gate evaluation.
type GateStatus string

// GateStatus constants.
const (
	GatePassed GateStatus = "passed"
	GateFailed GateStatus = "failed"
)

// GateResult is the verdict of a Gate. A failed result always carries
// score 0 and NotEvaluableReason.
type GateResult struct {
	Status       GateStatus `json:"status"`
	Score        float64    `json:"score"`
	Reason       string     `json:"reason,omitempty"`
	HypothesisID string     `json:"hypothesis_id,omitempty"`
}

// Passed reports whether the gate passed.
func (r GateResult) Passed() bool {
	return r.Status == GatePassed
}

// Gate rejects hypotheses whose falsifiability score is below a
// threshold before any of them are trusted.
type Gate struct {
	threshold float64
}

// NewGate returns a gate with the given threshold.
func NewGate(threshold float64) Gate {
	return Gate{threshold: threshold}
}

// DefaultGate returns a gate at DefaultGatewayThreshold.
func DefaultGate() Gate {
	return NewGate(DefaultGatewayThreshold)
}

// Threshold returns the gate threshold.
func (g Gate) Threshold() float64 {
	return g.threshold
}

// Evaluate fails h when its score is strictly below the threshold.
func (g Gate) Evaluate(h Hypothesis) GateResult {
	if h.FalsifiabilityScore < g.threshold {
		return GateResult{
			Status:       GateFailed,
			Score:        0,
			Reason:       NotEvaluableReason,
			HypothesisID: h.ID,
		}
	}
	return GateResult{
		Status:       GatePassed,
		Score:        h.FalsifiabilityScore,
		HypothesisID: h.ID,
	}
}

// EvaluateAll returns the first failing result, or a pass carrying the
// mean score. An empty set passes with score 0.
func (g Gate) EvaluateAll(hs []Hypothesis) GateResult {
	if len(hs) == 0 {
		return GateResult{Status: GatePassed, Score: 0}
	}
	var sum float64
	for _, h := range hs {
		r := g.Evaluate(h)
		if !r.Passed() {
			return r
		}
		sum += r.Score
	}
	return GateResult{Status: GatePassed, Score: sum / float64(len(hs))}
}
