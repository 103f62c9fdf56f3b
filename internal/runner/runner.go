package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pfrederiksen/course-scraper/internal/logger"
)

// State is the lifecycle position of a run
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Terminal reports whether the run has finished
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

var (
	ErrQueueFull  = errors.New("run queue is full")
	ErrPoolClosed = errors.New("run pool is closed")
)

// Report summarizes what a run did
type Report struct {
	Fetched    int `json:"fetched"`    // records extracted from the page
	Appended   int `json:"appended"`   // records newly written to the store
	Duplicates int `json:"duplicates"` // records whose code was already stored
	Skipped    int `json:"skipped"`    // malformed result blocks
}

// Run is a snapshot of one queued scrape
type Run struct {
	ID          string    `json:"id"`
	Query       string    `json:"query"`
	State       State     `json:"state"`
	Report      *Report   `json:"report,omitempty"`
	Error       string    `json:"error,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// Job performs one run for query
type Job func(ctx context.Context, query string) (Report, error)

// Options sizes the pool
type Options struct {
	Workers    int // concurrent runs; defaults to 1
	QueueSize  int // runs waiting for a worker
	MaxHistory int // finished runs kept for status queries; defaults to 256
}

type task struct {
	id    string
	query string
}

// Pool runs jobs on a fixed set of workers
type Pool struct {
	job  Job
	opts Options

	queue  chan task
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	runs   map[string]*Run
	order  []string // submission order
	closed bool

	now func() time.Time
}

// New starts a pool executing job
func New(job Job, opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize < 0 {
		opts.QueueSize = 0
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		job:    job,
		opts:   opts,
		queue:  make(chan task, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
		runs:   make(map[string]*Run),
		now:    time.Now,
	}

	for i := 0; i < opts.Workers; i++ {
		p.group.Go(func() error {
			for t := range p.queue {
				p.execute(t)
			}
			return nil
		})
	}

	return p
}

// Submit queues a run for query and returns it in the pending state
func (p *Pool) Submit(query string) (Run, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return Run{}, ErrPoolClosed
	}

	run := &Run{
		ID:          uuid.NewString(),
		Query:       query,
		State:       StatePending,
		SubmittedAt: p.now().UTC(),
	}

	select {
	case p.queue <- task{id: run.ID, query: query}:
	default:
		logger.IncrCounter("runs.rejected")
		return Run{}, ErrQueueFull
	}

	p.runs[run.ID] = run
	p.order = append(p.order, run.ID)
	p.pruneLocked()

	logger.Info("Run queued", logger.Fields{"run_id": run.ID, "query": query})
	return *run, nil
}

// pruneLocked drops the oldest finished runs beyond MaxHistory
func (p *Pool) pruneLocked() {
	excess := len(p.order) - p.opts.MaxHistory
	if excess <= 0 {
		return
	}

	kept := p.order[:0]
	for _, id := range p.order {
		if excess > 0 && p.runs[id].State.Terminal() {
			delete(p.runs, id)
			excess--
			continue
		}
		kept = append(kept, id)
	}
	p.order = kept
}

// Status returns a copy of the run with the given id
func (p *Pool) Status(id string) (Run, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	run, ok := p.runs[id]
	if !ok {
		return Run{}, false
	}
	return copyRun(run), true
}

// Runs lists known runs, most recently submitted first
func (p *Pool) Runs() []Run {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Run, 0, len(p.order))
	for i := len(p.order) - 1; i >= 0; i-- {
		out = append(out, copyRun(p.runs[p.order[i]]))
	}
	return out
}

func copyRun(r *Run) Run {
	c := *r
	if r.Report != nil {
		rep := *r.Report
		c.Report = &rep
	}
	return c
}

func (p *Pool) execute(t task) {
	start := p.now()
	p.update(t.id, func(r *Run) {
		r.State = StateRunning
		r.StartedAt = start.UTC()
	})

	report, err := p.safeRun(t.query)

	elapsed := p.now().Sub(start)
	logger.RecordTiming("run.duration", elapsed)

	p.update(t.id, func(r *Run) {
		r.FinishedAt = p.now().UTC()
		r.Report = &report
		if err != nil {
			r.State = StateFailed
			r.Error = err.Error()
			return
		}
		r.State = StateSucceeded
	})

	fields := logger.Fields{
		"run_id":      t.id,
		"query":       t.query,
		"duration_ms": elapsed.Milliseconds(),
		"appended":    report.Appended,
		"duplicates":  report.Duplicates,
		"skipped":     report.Skipped,
	}
	if err != nil {
		logger.IncrCounter("runs.failed")
		logger.Error("Run failed", fields, err)
		return
	}
	logger.IncrCounter("runs.succeeded")
	logger.Info("Run completed", fields)
}

// safeRun converts a panicking job into a failed run
func (p *Pool) safeRun(query string) (report Report, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.job(p.ctx, query)
}

func (p *Pool) update(id string, fn func(*Run)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if run, ok := p.runs[id]; ok {
		fn(run)
	}
}

// Close stops accepting runs, lets queued runs finish and waits for the
// workers. If ctx expires first, in-flight jobs see their context cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	select {
	case err := <-done:
		p.cancel()
		return err
	case <-ctx.Done():
		p.cancel()
		return ctx.Err()
	}
}
