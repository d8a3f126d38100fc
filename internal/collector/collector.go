// Package collector owns a coverage session: its state machine, the
// aggregate hit-count table and the violation log.
//
// A session moves Idle -> SessionActive -> TestActive -> SessionActive
// -> Idle. Hits are accepted only while a test is active. A
// Stop-classified violation halts the session; EndSession then returns
// the *jidoka.StopError instead of a report.
package collector

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/unbound-force/tally/internal/jidoka"
	"github.com/unbound-force/tally/internal/metrics"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// State is the collector's lifecycle state.
type State int

// State constants.
const (
	Idle State = iota
	SessionActive
	TestActive
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SessionActive:
		return "session_active"
	case TestActive:
		return "test_active"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var (
	// ErrInvalidTransition is matched by every *TransitionError.
	ErrInvalidTransition = errors.New("invalid collector transition")

	// ErrHitOutsideTest is returned when a hit arrives during a session
	// but outside any test. The hit is counted in Report.StrayHits and
	// not in the aggregate table.
	ErrHitOutsideTest = errors.New("hit recorded outside an active test")

	// ErrNilViolation is returned by RecordViolation(nil).
	ErrNilViolation = errors.New("nil violation")
)

// TransitionError reports an operation attempted in the wrong state.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("collector: %s not valid in state %s", e.Op, e.State)
}

// Unwrap returns ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Option configures a Collector.
type Option func(*Collector)

// WithEdges declares the reachable edges. When set, RecordEdge treats
// any undeclared edge as an ImpossibleEdge violation.
func WithEdges(edges []taxonomy.EdgeID) Option {
	return func(c *Collector) {
		c.edges = make(map[taxonomy.EdgeID]bool, len(edges))
		for _, e := range edges {
			c.edges[e] = true
		}
	}
}

// WithLogger sets the logger used for violations.
func WithLogger(l *log.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithRecorder attaches Prometheus instrumentation.
func WithRecorder(r *metrics.Recorder) Option {
	return func(c *Collector) {
		c.recorder = r
	}
}

// Collector is safe for concurrent use.
type Collector struct {
	mu       sync.Mutex
	universe int
	cfg      taxonomy.CoverageConfig
	edges    map[taxonomy.EdgeID]bool
	logger   *log.Logger
	recorder *metrics.Recorder

	state State
	s     *session
}

type session struct {
	id       string
	name     string
	hits     []uint64
	edgeHits map[taxonomy.EdgeID]uint64
	tainted  *jidoka.TaintedBlocks
	tests    []TestRecord
	current  *TestRecord
	testHits map[taxonomy.BlockID]struct{}
	stray    uint64
	halted   *jidoka.StopError
}

// New returns an idle collector for a universe of n blocks. cfg is
// copied and fixed for every session the collector runs.
func New(n int, cfg taxonomy.CoverageConfig, opts ...Option) *Collector {
	if n < 0 {
		n = 0
	}
	c := &Collector{
		universe: n,
		cfg:      cfg,
		logger:   log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Collector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Universe returns the number of declared blocks.
func (c *Collector) Universe() int {
	return c.universe
}

// Config returns the session configuration.
func (c *Collector) Config() taxonomy.CoverageConfig {
	return c.cfg
}

// Halted returns the *jidoka.StopError that halted the active
// session, or nil.
func (c *Collector) Halted() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.s == nil || c.s.halted == nil {
		return nil
	}
	return c.s.halted
}

// BeginSession starts a session named name.
func (c *Collector) BeginSession(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Idle {
		return &TransitionError{Op: "BeginSession", State: c.state}
	}
	c.s = &session{
		id:       uuid.NewString(),
		name:     name,
		hits:     make([]uint64, c.universe),
		edgeHits: make(map[taxonomy.EdgeID]uint64),
		tainted:  jidoka.NewTaintedBlocks(),
	}
	c.state = SessionActive
	c.logger.Debug("session started", "session", name, "id", c.s.id, "blocks", c.universe)
	return nil
}

// BeginTest starts a test within the active session.
func (c *Collector) BeginTest(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != SessionActive {
		return &TransitionError{Op: "BeginTest", State: c.state}
	}
	if c.s.halted != nil {
		return c.s.halted
	}
	c.s.current = &TestRecord{Name: name}
	c.s.testHits = make(map[taxonomy.BlockID]struct{})
	c.state = TestActive
	return nil
}

// EndTest closes the active test. passed records the test's own
// verdict; a failing test does not invalidate the coverage data.
func (c *Collector) EndTest(passed bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != TestActive {
		return &TransitionError{Op: "EndTest", State: c.state}
	}
	rec := *c.s.current
	rec.Passed = passed
	rec.BlocksHit = len(c.s.testHits)
	c.s.tests = append(c.s.tests, rec)
	c.s.current = nil
	c.s.testHits = nil
	c.state = SessionActive
	if c.s.halted != nil {
		return c.s.halted
	}
	return nil
}

// EndSession closes the session and returns its report. If a Stop
// violation halted the session, no report is produced and the
// *jidoka.StopError is returned. Either way the collector returns to
// Idle.
func (c *Collector) EndSession() (*Report, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return nil, &TransitionError{Op: "EndSession", State: c.state}
	}
	if c.s.halted != nil {
		halted := c.s.halted
		c.reset()
		return nil, halted
	}
	if c.state != SessionActive {
		return nil, &TransitionError{Op: "EndSession", State: c.state}
	}
	rpt := c.buildReport()
	c.reset()
	return rpt, nil
}

func (c *Collector) reset() {
	c.s = nil
	c.state = Idle
}

// RecordHit records one execution of b.
func (c *Collector) RecordHit(b taxonomy.BlockID) error {
	return c.recordHits("RecordHit", b, 1)
}

// RecordHits records n executions of b. An uninstrumented b is
// classified once for the whole batch. A zero n only checks state.
func (c *Collector) RecordHits(b taxonomy.BlockID, n uint64) error {
	return c.recordHits("RecordHits", b, n)
}

func (c *Collector) recordHits(op string, b taxonomy.BlockID, n uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.acceptHits(op, n); err != nil {
		return fmt.Errorf("recording hit on %s: %w", b, err)
	}
	if n == 0 {
		return nil
	}
	if int(b) >= c.universe {
		return c.violate(jidoka.UninstrumentedExecution{Block: b})
	}
	return c.addHits(b, n)
}

// RecordEdge records one traversal of e.
func (c *Collector) RecordEdge(e taxonomy.EdgeID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.acceptHits("RecordEdge", 1); err != nil {
		return fmt.Errorf("recording edge %s: %w", e, err)
	}
	for _, b := range []taxonomy.BlockID{e.Source(), e.Target()} {
		if int(b) >= c.universe {
			return c.violate(jidoka.UninstrumentedExecution{Block: b})
		}
	}
	if c.edges != nil && !c.edges[e] {
		return c.violate(jidoka.ImpossibleEdge{From: e.Source(), To: e.Target()})
	}
	if c.s.edgeHits[e] != math.MaxUint64 {
		c.s.edgeHits[e]++
	}
	return nil
}

// MergeFlush adds one counter flush snapshot (index = block ordinal)
// to the aggregate table.
func (c *Collector) MergeFlush(snapshot []uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total uint64
	for _, n := range snapshot {
		total = satAdd(total, n)
	}
	if err := c.acceptHits("MergeFlush", total); err != nil {
		return fmt.Errorf("merging flush: %w", err)
	}
	c.recorder.ObserveFlush()

	for i, n := range snapshot {
		if n == 0 {
			continue
		}
		b := taxonomy.BlockID(i)
		if i >= c.universe {
			if err := c.violate(jidoka.UninstrumentedExecution{Block: b}); err != nil {
				return err
			}
			continue
		}
		if err := c.addHits(b, n); err != nil {
			return err
		}
	}
	return nil
}

// RecordViolation classifies v. A Stop violation halts the session
// when jidoka is enabled and the returned error is a
// *jidoka.StopError. LogAndContinue violations, and every violation
// when jidoka is disabled, taint the affected block and return nil.
func (c *Collector) RecordViolation(v jidoka.Violation) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return &TransitionError{Op: "RecordViolation", State: c.state}
	}
	if v == nil {
		return ErrNilViolation
	}
	if c.s.halted != nil {
		return c.s.halted
	}
	return c.violate(v)
}

// CheckRegression compares the current coverage fraction against the
// expected baseline and records a CoverageRegression when it is lower.
func (c *Collector) CheckRegression(expected float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		return &TransitionError{Op: "CheckRegression", State: c.state}
	}
	if c.s.halted != nil {
		return c.s.halted
	}
	actual := 0.0
	if c.universe > 0 {
		actual = float64(coveredCount(c.s.hits)) / float64(c.universe)
	}
	if actual < expected {
		return c.violate(jidoka.CoverageRegression{Expected: expected, Actual: actual})
	}
	return nil
}

// acceptHits checks that hits may be recorded. Callers hold c.mu.
func (c *Collector) acceptHits(op string, n uint64) error {
	switch {
	case c.state == Idle:
		return &TransitionError{Op: op, State: c.state}
	case c.s.halted != nil:
		return c.s.halted
	case c.state == SessionActive:
		if n == 0 {
			return nil
		}
		c.s.stray = satAdd(c.s.stray, n)
		c.logger.Warn("hit outside test", "session", c.s.name, "op", op, "hits", n)
		return ErrHitOutsideTest
	}
	return nil
}

// addHits adds n hits to b, saturating. A saturated input slot counts
// as an overflow since the worker counter already lost hits. Callers
// hold c.mu.
func (c *Collector) addHits(b taxonomy.BlockID, n uint64) error {
	if c.s.testHits != nil {
		c.s.testHits[b] = struct{}{}
	}
	sum, overflow := addOverflow(c.s.hits[b], n)
	overflow = overflow || n == math.MaxUint64
	c.s.hits[b] = sum
	if overflow {
		return c.violate(jidoka.CounterOverflow{Block: b})
	}
	return nil
}

// violate records v in the session. Callers hold c.mu.
func (c *Collector) violate(v jidoka.Violation) error {
	action := v.Action()
	c.recorder.ObserveViolation(string(v.Kind()), string(action))
	c.s.tainted.Record(v)

	if action == jidoka.Stop && c.cfg.JidokaEnabled {
		c.s.halted = &jidoka.StopError{Violation: v}
		c.logger.Error("jidoka stop", "session", c.s.name, "violation", v.String())
		return c.s.halted
	}
	c.logger.Warn("coverage violation", "session", c.s.name, "violation", v.String(), "action", action)
	return nil
}

func addOverflow(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return math.MaxUint64, true
	}
	return a + b, false
}

func satAdd(a, b uint64) uint64 {
	sum, _ := addOverflow(a, b)
	return sum
}

func coveredCount(hits []uint64) int {
	n := 0
	for _, h := range hits {
		if h > 0 {
			n++
		}
	}
	return n
}
