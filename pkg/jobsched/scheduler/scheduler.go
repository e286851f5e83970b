// Package scheduler implements the Scheduler Core: the main loop that turns
// time into firings. It peeks the earliest due job, sleeps until that
// instant or a change notification, acquires due jobs from the store,
// advances and persists their next fire time, and dispatches each to the
// worker pool. It never blocks on anything but a timer, a change signal, or
// the store's acquire transaction (§4.2, §5).
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/clock"
	"github.com/jholhewres/jobsched/pkg/jobsched/events"
	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
	"github.com/jholhewres/jobsched/pkg/jobsched/pool"
	"github.com/jholhewres/jobsched/pkg/jobsched/store"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
)

// State is the scheduler's one-way lifecycle: Created -> Running ->
// Stopping -> Stopped.
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Runner is the opaque callable the scheduler dispatches every acquired
// firing to. *runner.Runner satisfies this; tests inject fakes.
type Runner interface {
	Run(ctx context.Context, j *job.Job) error
}

// acquireBatch bounds how many due jobs a single loop iteration claims.
const acquireBatch = 32

// storeBackoffInitial and storeBackoffMax bound the exponential backoff the
// loop applies when the store is unreachable (§7).
const (
	storeBackoffInitial = 1 * time.Second
	storeBackoffMax     = 60 * time.Second
)

// unhealthyStoreStreak is the number of consecutive failed store attempts
// after which the loop gives up and transitions to Stopping (§7).
const unhealthyStoreStreak = 10

// Scheduler owns the main loop. It holds only transient indices derived
// from the store; the store is the sole owner of persistent job state.
type Scheduler struct {
	store  store.JobStore
	pool   *pool.WorkerPool
	runner Runner
	bus    *events.Bus
	clk    clock.Clock
	logger *slog.Logger

	maxWorkers int

	state atomic.Int32

	changed chan struct{}
	stopped chan struct{}

	mu sync.Mutex
}

// Config bundles the collaborators a Scheduler is built from.
type Config struct {
	Store      store.JobStore
	Pool       *pool.WorkerPool
	Runner     Runner
	Bus        *events.Bus
	Clock      clock.Clock
	Logger     *slog.Logger
	MaxWorkers int
}

// New builds a Scheduler in the Created state. Call Start to begin the loop.
func New(cfg Config) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.System{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 20
	}
	s := &Scheduler{
		store:      cfg.Store,
		pool:       cfg.Pool,
		runner:     cfg.Runner,
		bus:        cfg.Bus,
		clk:        cfg.Clock,
		logger:     cfg.Logger,
		maxWorkers: cfg.MaxWorkers,
		changed:    make(chan struct{}, 1),
		stopped:    make(chan struct{}),
	}
	s.state.Store(int32(StateCreated))
	return s
}

// State returns the scheduler's current lifecycle state.
func (s *Scheduler) State() State { return State(s.state.Load()) }

// NotifyChanged signals the loop to recompute its earliest job. Every
// mutating API operation calls this.
func (s *Scheduler) NotifyChanged() {
	select {
	case s.changed <- struct{}{}:
	default:
	}
}

// Start transitions Created -> Running and launches the loop goroutine. It
// is not safe to call twice.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.state.CompareAndSwap(int32(StateCreated), int32(StateRunning)) {
		return fmt.Errorf("scheduler: Start called from state %s, want created", s.State())
	}
	go s.loop(ctx)
	return nil
}

// Shutdown quiesces the loop: no new dispatch occurs. If wait is true it
// blocks until in-flight tasks complete; otherwise it returns immediately
// and tasks drain in the background.
func (s *Scheduler) Shutdown(wait bool) error {
	for {
		cur := s.state.Load()
		if State(cur) == StateStopping || State(cur) == StateStopped {
			break
		}
		if s.state.CompareAndSwap(cur, int32(StateStopping)) {
			break
		}
	}
	s.NotifyChanged()

	<-s.stopped
	return s.pool.Shutdown(wait)
}

func (s *Scheduler) loop(ctx context.Context) {
	defer func() {
		s.state.Store(int32(StateStopped))
		close(s.stopped)
	}()

	backoff := storeBackoffInitial
	storeFailures := 0

	for {
		if ctx.Err() != nil {
			return
		}
		if s.State() == StateStopping {
			return
		}

		earliest, err := s.store.PeekEarliest(ctx)
		if err != nil {
			storeFailures++
			s.logger.Error("scheduler: peekEarliest failed", "error", err, "attempt", storeFailures)
			if storeFailures >= unhealthyStoreStreak {
				s.logger.Error("scheduler: store unavailable past threshold, stopping")
				s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping))
				return
			}
			if !s.sleepBackoff(ctx, &backoff) {
				return
			}
			continue
		}
		storeFailures = 0
		backoff = storeBackoffInitial

		if earliest == nil {
			if !s.waitForChange(ctx, nil) {
				return
			}
			continue
		}

		delay := earliest.NextFireTime.Sub(s.clk.Now())
		if delay > 0 {
			if !s.waitForChange(ctx, s.clk.After(delay)) {
				return
			}
			continue
		}

		s.dispatchDue(ctx)
	}
}

// sleepBackoff waits for the current backoff interval (or until ctx/stop),
// then doubles it up to storeBackoffMax. Returns false if the loop should
// exit.
func (s *Scheduler) sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clk.After(*backoff):
	}
	*backoff *= 2
	if *backoff > storeBackoffMax {
		*backoff = storeBackoffMax
	}
	return s.State() != StateStopping
}

// waitForChange blocks until the change signal fires, ctx is done, the
// scheduler is told to stop, or (if non-nil) timer fires. Returns false if
// the loop should exit.
func (s *Scheduler) waitForChange(ctx context.Context, timer <-chan time.Time) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.changed:
		return s.State() != StateStopping
	case <-timer:
		return s.State() != StateStopping
	}
}

// dispatchDue acquires due jobs and dispatches each, honoring misfire and
// coalesce policy (§4.2, §4.3's window enumeration, §4.6's Missed events).
func (s *Scheduler) dispatchDue(ctx context.Context) {
	freeSlots := s.maxWorkers - s.pool.ActiveCount()
	if freeSlots <= 0 {
		freeSlots = 1
	}
	if freeSlots > acquireBatch {
		freeSlots = acquireBatch
	}

	now := s.clk.Now()
	due, err := s.store.AcquireDueJobs(ctx, now, freeSlots)
	if err != nil {
		s.logger.Error("scheduler: acquireDueJobs failed", "error", err)
		return
	}

	for _, j := range due {
		s.fireOne(ctx, j, now)
	}
}

// fireOne advances and persists j's trigger state, then dispatches its
// original nextFireTime plus every boundary crossed since, according to its
// coalesce policy.
func (s *Scheduler) fireOne(ctx context.Context, j *job.Job, now time.Time) {
	originalFire := *j.NextFireTime
	lateness := now.Sub(originalFire)

	windows := append([]time.Time{originalFire}, windowsBetween(j.Trigger, originalFire, now)...)

	j.LastFireTime = &now
	j.DeriveNextFireTime(now)
	j.LeasedUntil = nil

	if err := s.store.Put(ctx, j); err != nil {
		s.logger.Error("scheduler: failed to persist advanced job, skipping dispatch", "job", j.ID, "error", err)
		return
	}

	if lateness > time.Duration(j.MisfireGraceSeconds)*time.Second {
		var missed int
		if !j.Coalesce {
			missed = len(windows)
		} else if missed = len(windows) - 1; missed < 0 {
			missed = 0
		}
		s.publish(events.Event{
			Kind:        events.KindMissed,
			JobID:       j.ID,
			Timestamp:   now,
			MissedCount: missed,
			Message:     fmt.Sprintf("firing was %s late", lateness),
		})
	}

	toFire := windows
	if j.Coalesce {
		toFire = windows[len(windows)-1:]
	}

	for range toFire {
		s.dispatch(ctx, j)
	}
}

// dispatch submits one firing of j to the worker pool. A rejection (pool or
// per-job saturation) becomes a Missed event, per §4.4.
func (s *Scheduler) dispatch(ctx context.Context, j *job.Job) {
	task := func(taskCtx context.Context) error {
		return s.runner.Run(taskCtx, j)
	}

	if err := s.pool.TryDispatch(j.ID, j.MaxInstances, task); err != nil {
		s.logger.Warn("scheduler: dispatch rejected", "job", j.ID, "error", err)
		s.publish(events.Event{
			Kind:        events.KindMissed,
			JobID:       j.ID,
			Timestamp:   s.clk.Now(),
			MissedCount: 1,
			Message:     err.Error(),
		})
	}
}

func (s *Scheduler) publish(evt events.Event) {
	if s.bus != nil {
		s.bus.Publish(evt)
	}
}

// windowsBetween enumerates every trigger boundary in (from, to], oldest
// first, bounded defensively so a misconfigured sub-second-equivalent
// trigger cannot spin the loop forever.
const maxEnumeratedWindows = 10000

func windowsBetween(t trigger.Trigger, from, to time.Time) []time.Time {
	var out []time.Time
	cursor := from
	for i := 0; i < maxEnumeratedWindows; i++ {
		next, ok := t.NextFireAfter(cursor.Add(time.Nanosecond))
		if !ok || next.After(to) {
			break
		}
		out = append(out, next)
		cursor = next
	}
	return out
}

// TriggerNow sets j's nextFireTime to the current instant and persists it.
// It does not signal the loop; callers follow it with NotifyChanged. This is
// equivalent to a natural firing arriving early; it does not bypass pool
// admission (§4.2).
func TriggerNow(ctx context.Context, st store.JobStore, clk clock.Clock, id string) error {
	j, err := st.Get(ctx, id)
	if err != nil {
		return err
	}
	now := clk.Now()
	j.NextFireTime = &now
	if err := j.Validate(); err != nil {
		return jobserr.Validation(err.Error())
	}
	return st.Put(ctx, j)
}
