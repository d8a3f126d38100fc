// Package falsify models coverage claims as falsifiable hypotheses,
// attaches Wilson score confidence intervals to observed proportions and
// gates hypotheses on how sharply they can be refuted.
//
// Everything here is pure. Evaluating a hypothesis returns a new value;
// nothing is mutated in place.
package falsify

import (
	"fmt"
	"math"
)

// Operator is a comparison applied to an observed value.
type Operator string

// Operator constants.
const (
	Less         Operator = "<"
	LessEqual    Operator = "<="
	Greater      Operator = ">"
	GreaterEqual Operator = ">="
	Equal        Operator = "=="
	NotEqual     Operator = "!="
)

// equalTolerance is the absolute tolerance for == and !=.
const equalTolerance = 1e-9

// ParseOperator parses one of < <= > >= == !=.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case Less, LessEqual, Greater, GreaterEqual, Equal, NotEqual:
		return op, nil
	}
	return "", fmt.Errorf("unknown operator %q (want <, <=, >, >=, == or !=)", s)
}

// Condition is a falsification condition: the hypothesis is refuted
// when "actual Operator Target" holds.
type Condition struct {
	Description string   `json:"description" yaml:"description"`
	Operator    Operator `json:"operator" yaml:"operator"`
	Target      float64  `json:"target" yaml:"target"`
}

// IsFalsified reports whether actual satisfies the condition. NaN
// never satisfies an ordering; an unknown operator never falsifies.
func (c Condition) IsFalsified(actual float64) bool {
	switch c.Operator {
	case Less:
		return actual < c.Target
	case LessEqual:
		return actual <= c.Target
	case Greater:
		return actual > c.Target
	case GreaterEqual:
		return actual >= c.Target
	case Equal:
		return math.Abs(actual-c.Target) <= equalTolerance
	case NotEqual:
		return !(math.Abs(actual-c.Target) <= equalTolerance)
	}
	return false
}

func (c Condition) String() string {
	if c.Description != "" {
		return c.Description
	}
	return fmt.Sprintf("actual %s %g", c.Operator, c.Target)
}
