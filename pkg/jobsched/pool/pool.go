// Package pool implements the scheduler's bounded worker pool: a fixed
// global concurrency limit enforced with golang.org/x/sync/errgroup (the
// same SetLimit pattern the subagent orchestrator uses for parallel task
// execution), layered with a non-blocking per-job admission check so a
// saturated pool rejects immediately instead of queuing, and panic
// recovery per firing so one bad job can't take the loop down with it
// (grounded on the teacher scheduler's runOneShotJob recover).
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
)

// Task is the unit of work a WorkerPool runs. Its context is cancelled on
// pool shutdown and, if a per-task timeout was configured, on expiry.
type Task func(ctx context.Context) error

// WorkerPool bounds the number of firings running concurrently, both
// globally and per job.
type WorkerPool struct {
	maxWorkers     int
	perTaskTimeout time.Duration
	logger         *slog.Logger

	g   *errgroup.Group
	ctx context.Context

	mu          sync.Mutex
	slots       int
	activeByJob map[string]int
}

// New builds a WorkerPool bound to ctx: cancelling ctx cancels every
// in-flight task. perTaskTimeout of zero means no per-task deadline beyond
// ctx's own cancellation.
func New(ctx context.Context, maxWorkers int, perTaskTimeout time.Duration, logger *slog.Logger) *WorkerPool {
	if logger == nil {
		logger = slog.Default()
	}
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	g := &errgroup.Group{}
	g.SetLimit(maxWorkers)
	return &WorkerPool{
		maxWorkers:     maxWorkers,
		perTaskTimeout: perTaskTimeout,
		logger:         logger,
		g:              g,
		ctx:            ctx,
		slots:          maxWorkers,
		activeByJob:    make(map[string]int),
	}
}

// TryDispatch admits and runs task for jobID if the pool has a free global
// slot and jobID has fewer than maxInstances already running; otherwise it
// returns a jobserr.ErrOverflow-classified error without blocking. The
// scheduler turns an Overflow error into a Missed event rather than
// queuing the firing (§4.4).
func (p *WorkerPool) TryDispatch(jobID string, maxInstances int, task Task) error {
	p.mu.Lock()
	if p.slots <= 0 {
		p.mu.Unlock()
		return jobserr.Overflow("worker pool is saturated")
	}
	if p.activeByJob[jobID] >= maxInstances {
		p.mu.Unlock()
		return jobserr.Overflow(fmt.Sprintf("job %q already has %d running instance(s)", jobID, maxInstances))
	}
	p.slots--
	p.activeByJob[jobID]++
	p.mu.Unlock()

	p.g.Go(func() error {
		defer p.release(jobID)

		taskCtx := p.ctx
		var cancel context.CancelFunc
		if p.perTaskTimeout > 0 {
			taskCtx, cancel = context.WithTimeout(p.ctx, p.perTaskTimeout)
			defer cancel()
		}
		return p.runRecovered(taskCtx, jobID, task)
	})
	return nil
}

func (p *WorkerPool) release(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots++
	p.activeByJob[jobID]--
	if p.activeByJob[jobID] <= 0 {
		delete(p.activeByJob, jobID)
	}
}

// runRecovered isolates a panicking task from the rest of the pool: the
// panic is logged and converted into an error rather than propagating,
// matching the teacher scheduler's per-job recover.
func (p *WorkerPool) runRecovered(ctx context.Context, jobID string, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in job %s: %v", jobID, r)
			p.logger.Error("recovered panic during job execution", "job_id", jobID, "panic", r)
		}
	}()
	return task(ctx)
}

// ActiveCount returns how many tasks are currently running across all jobs.
func (p *WorkerPool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxWorkers - p.slots
}

// ActiveForJob returns how many instances of jobID are currently running.
func (p *WorkerPool) ActiveForJob(jobID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.activeByJob[jobID]
}

// Shutdown waits for all dispatched tasks to finish if wait is true;
// otherwise it returns immediately, leaving tasks to observe ctx
// cancellation on their own.
func (p *WorkerPool) Shutdown(wait bool) error {
	if !wait {
		return nil
	}
	return p.g.Wait()
}
