package jidoka

import (
	"sort"

	"github.com/unbound-force/tally/internal/taxonomy"
)

// Entry is the flat, serializable form of a violation.
type Entry struct {
	Kind     Kind              `json:"kind"`
	Action   Action            `json:"action"`
	Block    *taxonomy.BlockID `json:"block,omitempty"`
	From     *taxonomy.BlockID `json:"from,omitempty"`
	To       *taxonomy.BlockID `json:"to,omitempty"`
	Expected *float64          `json:"expected,omitempty"`
	Actual   *float64          `json:"actual,omitempty"`
	Message  string            `json:"message"`
}

// NewEntry flattens v.
func NewEntry(v Violation) Entry {
	e := Entry{
		Kind:    v.Kind(),
		Action:  v.Action(),
		Message: v.String(),
	}
	switch v := v.(type) {
	case UninstrumentedExecution:
		e.Block = &v.Block
	case ImpossibleEdge:
		e.From, e.To = &v.From, &v.To
	case CounterOverflow:
		e.Block = &v.Block
	case CoverageRegression:
		e.Expected, e.Actual = &v.Expected, &v.Actual
	}
	return e
}

// TaintedEntry pairs a tainted block with the violation that first
// tainted it.
type TaintedEntry struct {
	Block taxonomy.BlockID `json:"block"`
	Cause Kind             `json:"cause"`
}

// TaintedBlocks tracks blocks whose data is suspect, together with the
// log of every violation recorded. It only grows.
type TaintedBlocks struct {
	causes map[taxonomy.BlockID]Kind
	log    []Violation
}

// NewTaintedBlocks returns an empty set.
func NewTaintedBlocks() *TaintedBlocks {
	return &TaintedBlocks{causes: make(map[taxonomy.BlockID]Kind)}
}

// Record appends v to the log and taints its affected block.
func (t *TaintedBlocks) Record(v Violation) {
	t.log = append(t.log, v)
	if b, ok := AffectedBlock(v); ok {
		t.Taint(b, v.Kind())
	}
}

// Taint marks b as tainted by cause. The first cause is kept.
func (t *TaintedBlocks) Taint(b taxonomy.BlockID, cause Kind) {
	if _, ok := t.causes[b]; !ok {
		t.causes[b] = cause
	}
}

// Contains reports whether b is tainted.
func (t *TaintedBlocks) Contains(b taxonomy.BlockID) bool {
	_, ok := t.causes[b]
	return ok
}

// Cause returns the kind that first tainted b.
func (t *TaintedBlocks) Cause(b taxonomy.BlockID) (Kind, bool) {
	k, ok := t.causes[b]
	return k, ok
}

// Len returns the number of tainted blocks.
func (t *TaintedBlocks) Len() int {
	return len(t.causes)
}

// Blocks returns the tainted blocks in ascending order.
func (t *TaintedBlocks) Blocks() []taxonomy.BlockID {
	out := make([]taxonomy.BlockID, 0, len(t.causes))
	for b := range t.causes {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Entries returns the tainted blocks with their causes, in ascending
// block order.
func (t *TaintedBlocks) Entries() []TaintedEntry {
	blocks := t.Blocks()
	out := make([]TaintedEntry, len(blocks))
	for i, b := range blocks {
		out[i] = TaintedEntry{Block: b, Cause: t.causes[b]}
	}
	return out
}

// Log returns a copy of every recorded violation in order.
func (t *TaintedBlocks) Log() []Violation {
	out := make([]Violation, len(t.log))
	copy(out, t.log)
	return out
}
