// Package executor runs per-superblock work across a pool of workers
// with work stealing.
//
// Superblocks are dealt round-robin into one deque per worker. A worker
// takes from the head of its own deque; once that is empty it steals
// from the tail of another worker's deque. Workers exit when every
// deque is empty. A failing or panicking superblock never affects the
// result of any other superblock.
package executor

import (
	"fmt"
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/unbound-force/tally/internal/metrics"
	"github.com/unbound-force/tally/internal/superblock"
	"github.com/unbound-force/tally/internal/taxonomy"
)

// Result is the outcome of running one superblock.
type Result struct {
	ID      taxonomy.SuperblockID `json:"id"`
	Success bool                  `json:"success"`
	Error   string                `json:"error,omitempty"`
}

// Pass returns a successful result for id.
func Pass(id taxonomy.SuperblockID) Result {
	return Result{ID: id, Success: true}
}

// Fail returns a failed result for id carrying msg.
func Fail(id taxonomy.SuperblockID, msg string) Result {
	return Result{ID: id, Success: false, Error: msg}
}

// Func runs one superblock.
type Func func(sb superblock.Superblock) Result

// WorkerFunc runs one superblock on the given worker. The worker id is
// stable for the lifetime of the worker goroutine and lies in
// [0, WorkerCount()), so it can index per-worker storage such as a
// counter.Arena. Implementations must not modify sb.Blocks.
type WorkerFunc func(worker int, sb superblock.Superblock) Result

// Option configures an Executor.
type Option func(*Executor)

// WithWorkers sets the worker count. Values below 1 are raised to 1.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n < 1 {
			n = 1
		}
		e.workers = n
	}
}

// WithWorkStealing enables or disables stealing between workers.
func WithWorkStealing(enabled bool) Option {
	return func(e *Executor) {
		e.stealing = enabled
	}
}

// WithRecorder attaches Prometheus instrumentation.
func WithRecorder(r *metrics.Recorder) Option {
	return func(e *Executor) {
		e.recorder = r
	}
}

// WithLogger sets the logger used for per-superblock failures.
func WithLogger(l *log.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.logger = l
		}
	}
}

// Executor runs work over a fixed list of superblocks.
type Executor struct {
	superblocks []superblock.Superblock
	workers     int
	stealing    bool
	recorder    *metrics.Recorder
	logger      *log.Logger
}

// New returns an executor over sbs. By default it uses GOMAXPROCS
// workers with work stealing enabled.
func New(sbs []superblock.Superblock, opts ...Option) *Executor {
	e := &Executor{
		superblocks: sbs,
		workers:     max(runtime.GOMAXPROCS(0), 1),
		stealing:    true,
		logger:      log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WorkerCount returns the configured number of workers.
func (e *Executor) WorkerCount() int { return e.workers }

// SuperblockCount returns the number of superblocks to execute.
func (e *Executor) SuperblockCount() int { return len(e.superblocks) }

// TotalBlockCount returns the combined block count of all superblocks.
func (e *Executor) TotalBlockCount() int { return superblock.TotalBlocks(e.superblocks) }

// WorkStealing reports whether idle workers steal from other queues.
func (e *Executor) WorkStealing() bool { return e.stealing }

// Execute runs fn once per superblock and blocks until all have
// completed.
func (e *Executor) Execute(fn Func) *Report {
	return e.ExecuteWorker(func(_ int, sb superblock.Superblock) Result {
		return fn(sb)
	})
}

// ExecuteWorker runs fn once per superblock, passing the id of the
// worker that runs it, and blocks until all have completed.
func (e *Executor) ExecuteWorker(fn WorkerFunc) *Report {
	queues := make([]*deque, e.workers)
	for i := range queues {
		queues[i] = &deque{}
	}
	for i := range e.superblocks {
		q := queues[i%e.workers]
		q.items = append(q.items, i)
	}

	// Each slot is written by exactly one worker.
	results := make([]Result, len(e.superblocks))
	var steals atomic.Int64

	var g errgroup.Group
	for w := 0; w < e.workers; w++ {
		g.Go(func() error {
			for {
				idx, ok := queues[w].popFront()
				if !ok && e.stealing {
					idx, ok = steal(queues, w)
					if ok {
						steals.Add(1)
						e.recorder.ObserveSteal()
					}
				}
				if !ok {
					return nil
				}
				results[idx] = e.run(fn, w, e.superblocks[idx])
			}
		})
	}
	// Workers always return nil: run turns a panicking fn into a Fail
	// result, so Wait only joins.
	_ = g.Wait()

	return newReport(e.superblocks, results, e.workers, int(steals.Load()))
}

// run executes one superblock, converting a panic into a failed result.
func (e *Executor) run(fn WorkerFunc, worker int, sb superblock.Superblock) (res Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = Fail(sb.ID, fmt.Sprintf("panic: %v", r))
		}
		res.ID = sb.ID
		e.recorder.ObserveSuperblock(res.Success, time.Since(start))
		if !res.Success {
			e.logger.Warn("superblock failed", "superblock", sb.ID, "worker", worker, "error", res.Error)
		}
	}()
	return fn(worker, sb)
}

// steal scans the other queues starting at the thief's right neighbour
// and takes from the tail of the first non-empty one.
func steal(queues []*deque, thief int) (int, bool) {
	n := len(queues)
	for off := 1; off < n; off++ {
		if idx, ok := queues[(thief+off)%n].popBack(); ok {
			return idx, true
		}
	}
	return 0, false
}

// deque holds superblock indices. The owner pops from the front and
// thieves pop from the back.
type deque struct {
	mu    sync.Mutex
	items []int
}

func (d *deque) popFront() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return 0, false
	}
	idx := d.items[0]
	d.items = d.items[1:]
	return idx, true
}

func (d *deque) popBack() (int, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.items) == 0 {
		return 0, false
	}
	last := len(d.items) - 1
	idx := d.items[last]
	d.items = d.items[:last]
	return idx, true
}
