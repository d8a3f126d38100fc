// Package jidoka classifies coverage anomalies.
//
// Every violation maps to exactly one Action. Stop means the run's
// instrumentation integrity is compromised and no report may be
// produced; LogAndContinue taints the implicated block and collection
// proceeds. The mapping is fixed per violation type.
package jidoka

import (
	"errors"
	"fmt"

	"github.com/unbound-force/tally/internal/taxonomy"
)

// Action is the response a violation demands.
type Action string

// Action constants.
const (
	Stop           Action = "stop"
	LogAndContinue Action = "log_and_continue"
)

// Kind names a violation variant.
type Kind string

// Kind constants.
const (
	KindUninstrumentedExecution Kind = "uninstrumented_execution"
	KindImpossibleEdge          Kind = "impossible_edge"
	KindCounterOverflow         Kind = "counter_overflow"
	KindCoverageRegression      Kind = "coverage_regression"
)

// Violation is one classified anomaly. The set of implementations is
// closed: only the types in this package satisfy it.
type Violation interface {
	Kind() Kind
	Action() Action
	String() string
	violation()
}

// UninstrumentedExecution reports a hit on a block the instrumentor
// never declared.
type UninstrumentedExecution struct {
	Block taxonomy.BlockID
}

// ImpossibleEdge reports a transition between blocks that cannot reach
// one another.
type ImpossibleEdge struct {
	From taxonomy.BlockID
	To   taxonomy.BlockID
}

// CounterOverflow reports a hit counter that saturated.
type CounterOverflow struct {
	Block taxonomy.BlockID
}

// CoverageRegression reports measured coverage below a baseline.
// Both values are fractions in [0, 1].
type CoverageRegression struct {
	Expected float64
	Actual   float64
}

func (UninstrumentedExecution) violation() {}
func (ImpossibleEdge) violation()          {}
func (CounterOverflow) violation()         {}
func (CoverageRegression) violation()      {}

// Kind implements Violation.
func (UninstrumentedExecution) Kind() Kind { return KindUninstrumentedExecution }

// Kind implements Violation.
func (ImpossibleEdge) Kind() Kind { return KindImpossibleEdge }

// Kind implements Violation.
func (CounterOverflow) Kind() Kind { return KindCounterOverflow }

// Kind implements Violation.
func (CoverageRegression) Kind() Kind { return KindCoverageRegression }

// Action implements Violation.
func (UninstrumentedExecution) Action() Action { return Stop }

// Action implements Violation.
func (ImpossibleEdge) Action() Action { return Stop }

// Action implements Violation.
func (CounterOverflow) Action() Action { return LogAndContinue }

// Action implements Violation.
func (CoverageRegression) Action() Action { return LogAndContinue }

func (v UninstrumentedExecution) String() string {
	return fmt.Sprintf("uninstrumented execution of block %s", v.Block)
}

func (v ImpossibleEdge) String() string {
	return fmt.Sprintf("impossible edge %s -> %s", v.From, v.To)
}

func (v CounterOverflow) String() string {
	return fmt.Sprintf("counter overflow on block %s", v.Block)
}

func (v CoverageRegression) String() string {
	return fmt.Sprintf("coverage regression: expected %.1f%%, got %.1f%%",
		v.Expected*100, v.Actual*100)
}

// ActionOf returns the action for v. A nil violation is treated as
// Stop, since its integrity cannot be judged.
func ActionOf(v Violation) Action {
	if v == nil {
		return Stop
	}
	return v.Action()
}

// AffectedBlock returns the block a violation implicates, if any.
// For an impossible edge this is the source block.
func AffectedBlock(v Violation) (taxonomy.BlockID, bool) {
	switch v := v.(type) {
	case UninstrumentedExecution:
		return v.Block, true
	case ImpossibleEdge:
		return v.From, true
	case CounterOverflow:
		return v.Block, true
	default:
		return 0, false
	}
}

// ErrStop is matched by every *StopError.
var ErrStop = errors.New("jidoka stop")

// StopError is returned when a Stop-classified violation halts a
// session. The session produces no report.
type StopError struct {
	Violation Violation
}

func (e *StopError) Error() string {
	return fmt.Sprintf("jidoka stop: %s: coverage data cannot be trusted", e.Violation)
}

// Is reports whether target is ErrStop.
func (e *StopError) Is(target error) bool {
	return target == ErrStop
}
