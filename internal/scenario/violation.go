package scenario

import (
	"fmt"

	"github.com/unbound-force/tally/internal/jidoka"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// ViolationSpec is a violation reported by instrumentation during a
// test. Which fields apply depends on Kind.
type ViolationSpec struct {
	Kind     jidoka.Kind       `yaml:"kind"`
	Block    *taxonomy.BlockID `yaml:"block,omitempty"`
	From     *taxonomy.BlockID `yaml:"from,omitempty"`
	To       *taxonomy.BlockID `yaml:"to,omitempty"`
	Expected float64           `yaml:"expected,omitempty"`
	Actual   float64           `yaml:"actual,omitempty"`
}

// Violation converts the spec to a jidoka variant.
func (v ViolationSpec) Violation() (jidoka.Violation, error) {
	switch v.Kind {
	case jidoka.KindUninstrumentedExecution:
		if v.Block == nil {
			return nil, fmt.Errorf("%s needs block", v.Kind)
		}
		return jidoka.UninstrumentedExecution{Block: *v.Block}, nil
	case jidoka.KindImpossibleEdge:
		if v.From == nil || v.To == nil {
			return nil, fmt.Errorf("%s needs from and to", v.Kind)
		}
		return jidoka.ImpossibleEdge{From: *v.From, To: *v.To}, nil
	case jidoka.KindCounterOverflow:
		if v.Block == nil {
			return nil, fmt.Errorf("%s needs block", v.Kind)
		}
		return jidoka.CounterOverflow{Block: *v.Block}, nil
	case jidoka.KindCoverageRegression:
		return jidoka.CoverageRegression{Expected: v.Expected, Actual: v.Actual}, nil
	}
	return nil, fmt.Errorf("unknown violation kind %q", v.Kind)
}
