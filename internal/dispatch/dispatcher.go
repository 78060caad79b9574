// Package dispatch turns filesystem events into file processing tasks.
//
// A single loop goroutine owns all scheduling state: debounce deadlines, the
// ready queue, and the set of paths in flight. Other goroutines reach it only
// through Submit, which appends to a mutex-guarded queue and never blocks.
// Tasks run on their own goroutines, bounded by a Limiter, and report back to
// the loop over a channel when they finish.
//
// Per path the dispatcher guarantees:
//
//   - bursts of events are coalesced until the path has been quiet for the
//     configured period
//   - a path is never processed by two tasks at once
//   - an event that arrives while the path is in flight schedules exactly one
//     follow-up run after the current task finishes
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JonMunkholm/celllog/internal/ingest"
	"github.com/JonMunkholm/celllog/internal/logging"
)

// ErrAlreadyRunning is returned by Run when the loop is already active.
var ErrAlreadyRunning = errors.New("dispatcher already running")

// Processor handles one file. Process must be safe for concurrent use on
// different paths.
type Processor interface {
	Process(ctx context.Context, path string) ingest.Outcome
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, path string) ingest.Outcome

func (f ProcessorFunc) Process(ctx context.Context, path string) ingest.Outcome {
	return f(ctx, path)
}

// Options configure a Dispatcher.
type Options struct {
	MaxConcurrent int
	QuietPeriod   time.Duration
}

// Dispatcher schedules processing tasks for submitted file events.
type Dispatcher struct {
	proc    Processor
	quiet   time.Duration
	limiter *Limiter
	queue   *eventQueue

	done    chan string
	stopped chan struct{}
	running atomic.Bool

	// Tasks run under taskCtx, not the Run context, so shutdown lets them
	// finish. Drain cancels it when the grace period runs out.
	taskCtx     context.Context
	cancelTasks context.CancelFunc

	nextID    atomic.Uint64
	submitted atomic.Uint64
	ignored   atomic.Uint64
	started   atomic.Uint64
	finished  atomic.Uint64
	panics    atomic.Uint64

	pendingN  atomic.Int64
	readyN    atomic.Int64
	inflightN atomic.Int64

	mu      sync.Mutex
	results map[ingest.Result]uint64

	// Owned by the Run goroutine.
	pending  map[string]time.Time
	inflight map[string]bool
	rerun    map[string]bool
	queued   map[string]bool
	ready    []string
	timer    *time.Timer
}

// New creates a Dispatcher. Call Run to start it.
func New(proc Processor, opts Options) *Dispatcher {
	limiter := NewLimiter(opts.MaxConcurrent)
	taskCtx, cancel := context.WithCancel(context.Background())

	return &Dispatcher{
		proc:        proc,
		quiet:       opts.QuietPeriod,
		limiter:     limiter,
		queue:       newEventQueue(),
		done:        make(chan string, limiter.MaxConcurrent()),
		stopped:     make(chan struct{}),
		taskCtx:     taskCtx,
		cancelTasks: cancel,
		results:     make(map[ingest.Result]uint64),
		pending:     make(map[string]time.Time),
		inflight:    make(map[string]bool),
		rerun:       make(map[string]bool),
		queued:      make(map[string]bool),
	}
}

// Submit hands an event to the loop. It is safe to call from any goroutine
// and never blocks. Directory events are ignored.
func (d *Dispatcher) Submit(ev ingest.FileEvent) {
	if ev.IsDir || ev.Path == "" {
		d.ignored.Add(1)
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	d.submitted.Add(1)
	d.queue.push(ev)
}

// Run executes the scheduling loop until ctx is cancelled. Tasks still in
// flight keep running; use Drain to wait for them.
func (d *Dispatcher) Run(ctx context.Context) error {
	if !d.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(d.stopped)

	d.timer = time.NewTimer(time.Hour)
	d.timer.Stop()
	defer d.timer.Stop()

	slog.Info("dispatcher started",
		"max_concurrent", d.limiter.MaxConcurrent(),
		"quiet_period", d.quiet,
	)

	for {
		select {
		case <-ctx.Done():
			slog.Info("dispatcher stopped",
				"in_flight", len(d.inflight),
				"abandoned", len(d.pending)+len(d.ready),
			)
			return nil

		case <-d.queue.notify:
			now := time.Now()
			for _, ev := range d.queue.drain() {
				d.observe(ev, now)
			}

		case <-d.timer.C:
			d.promote(time.Now())

		case path := <-d.done:
			d.finish(path, time.Now())
		}

		d.launch()
		d.arm(time.Now())
		d.publish()
	}
}

// Drain waits for in-flight tasks. If ctx ends first, the tasks' context is
// cancelled so blocking calls return promptly, and ctx's error is returned.
func (d *Dispatcher) Drain(ctx context.Context) error {
	if err := d.limiter.WaitForDrain(ctx); err != nil {
		d.cancelTasks()
		return err
	}
	return nil
}

// observe records an event for a path.
func (d *Dispatcher) observe(ev ingest.FileEvent, now time.Time) {
	path := filepath.Clean(ev.Path)

	switch {
	case d.inflight[path]:
		d.rerun[path] = true
	case d.queued[path]:
		// Already waiting for a slot.
	case d.quiet <= 0:
		d.enqueue(path)
	default:
		d.pending[path] = now.Add(d.quiet)
	}
}

// promote moves paths whose quiet period has elapsed to the ready queue,
// earliest deadline first.
func (d *Dispatcher) promote(now time.Time) {
	var due []string
	for path, deadline := range d.pending {
		if !deadline.After(now) {
			due = append(due, path)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return d.pending[due[i]].Before(d.pending[due[j]])
	})
	for _, path := range due {
		delete(d.pending, path)
		d.enqueue(path)
	}
}

func (d *Dispatcher) enqueue(path string) {
	d.queued[path] = true
	d.ready = append(d.ready, path)
}

// finish clears a completed path and schedules its follow-up run, if any.
func (d *Dispatcher) finish(path string, now time.Time) {
	delete(d.inflight, path)
	if d.rerun[path] {
		delete(d.rerun, path)
		if d.quiet <= 0 {
			d.enqueue(path)
		} else {
			d.pending[path] = now.Add(d.quiet)
		}
	}
}

// launch starts tasks for ready paths while slots are free.
func (d *Dispatcher) launch() {
	for len(d.ready) > 0 && d.limiter.TryAcquire() {
		path := d.ready[0]
		d.ready[0] = ""
		d.ready = d.ready[1:]
		delete(d.queued, path)

		d.inflight[path] = true
		d.started.Add(1)
		go d.runTask(d.nextID.Add(1), path)
	}
}

// arm sets the timer for the earliest pending deadline.
func (d *Dispatcher) arm(now time.Time) {
	var next time.Time
	for _, deadline := range d.pending {
		if next.IsZero() || deadline.Before(next) {
			next = deadline
		}
	}
	if next.IsZero() {
		d.timer.Stop()
		return
	}
	d.timer.Reset(max(next.Sub(now), 0))
}

func (d *Dispatcher) publish() {
	d.pendingN.Store(int64(len(d.pending)))
	d.readyN.Store(int64(len(d.ready)))
	d.inflightN.Store(int64(len(d.inflight)))
}

func (d *Dispatcher) runTask(id uint64, path string) {
	ctx := logging.WithTask(d.taskCtx, id)

	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			logging.WithFields(ctx, "file", filepath.Base(path)).Error("task panicked",
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
		d.finished.Add(1)
		d.limiter.Release()

		select {
		case d.done <- path:
		case <-d.stopped:
		}
	}()

	out := d.proc.Process(ctx, path)

	d.mu.Lock()
	d.results[out.Result]++
	d.mu.Unlock()
}

// Status is a snapshot of dispatcher activity.
type Status struct {
	Submitted uint64            `json:"submitted"`
	Ignored   uint64            `json:"ignored"`
	Started   uint64            `json:"started"`
	Finished  uint64            `json:"finished"`
	Panics    uint64            `json:"panics"`
	Pending   int               `json:"pending"`
	Ready     int               `json:"ready"`
	InFlight  int               `json:"in_flight"`
	Results   map[string]uint64 `json:"results"`
	Limiter   LimiterStatus     `json:"limiter"`
}

// Status returns current counters. Queue sizes lag the loop by at most one
// iteration.
func (d *Dispatcher) Status() Status {
	d.mu.Lock()
	results := make(map[string]uint64, len(d.results))
	for r, n := range d.results {
		results[string(r)] = n
	}
	d.mu.Unlock()

	return Status{
		Submitted: d.submitted.Load(),
		Ignored:   d.ignored.Load(),
		Started:   d.started.Load(),
		Finished:  d.finished.Load(),
		Panics:    d.panics.Load(),
		Pending:   int(d.pendingN.Load()) + d.queue.len(),
		Ready:     int(d.readyN.Load()),
		InFlight:  int(d.inflightN.Load()),
		Results:   results,
		Limiter:   d.limiter.Status(),
	}
}
