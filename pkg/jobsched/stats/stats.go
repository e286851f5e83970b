// Package stats implements StatsAggregator: a EventBus subscriber that
// maintains process-lifetime counters with atomic increments (§4.6),
// rebuilt from nothing on every restart.
package stats

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/events"
	"github.com/jholhewres/jobsched/pkg/jobsched/job"
)

// Aggregator subscribes to a Bus and keeps running totals. It is safe for
// concurrent use.
type Aggregator struct {
	executed int64
	failed   int64
	missed   int64

	mu            sync.RWMutex
	lastExecution *time.Time
	lastError     *job.ErrorSnapshot

	bus       *events.Bus
	subscriber string
	stop      chan struct{}
	done      chan struct{}
}

const subscriberName = "stats-aggregator"

// Start subscribes to bus and begins consuming events in a background
// goroutine. Call Stop to unsubscribe and wait for the goroutine to exit.
func Start(bus *events.Bus) *Aggregator {
	a := &Aggregator{
		bus:        bus,
		subscriber: subscriberName,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	ch := bus.Subscribe(a.subscriber)
	go a.loop(ch)
	return a
}

func (a *Aggregator) loop(ch <-chan events.Event) {
	defer close(a.done)
	for {
		select {
		case evt, ok := <-ch:
			if !ok {
				return
			}
			a.apply(evt)
		case <-a.stop:
			return
		}
	}
}

func (a *Aggregator) apply(evt events.Event) {
	now := evt.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	switch evt.Kind {
	case events.KindExecuted:
		atomic.AddInt64(&a.executed, 1)
		a.mu.Lock()
		a.lastExecution = &now
		a.mu.Unlock()
	case events.KindFailed:
		atomic.AddInt64(&a.failed, 1)
		a.mu.Lock()
		a.lastExecution = &now
		a.lastError = &job.ErrorSnapshot{JobID: evt.JobID, Message: evt.Message, Timestamp: now}
		a.mu.Unlock()
	case events.KindMissed:
		n := evt.MissedCount
		if n <= 0 {
			n = 1
		}
		atomic.AddInt64(&a.missed, int64(n))
	}
}

// Snapshot returns the current SchedulerStats.
func (a *Aggregator) Snapshot() job.Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var lastExec *time.Time
	if a.lastExecution != nil {
		t := *a.lastExecution
		lastExec = &t
	}
	var lastErr *job.ErrorSnapshot
	if a.lastError != nil {
		e := *a.lastError
		lastErr = &e
	}

	return job.Stats{
		Executed:      atomic.LoadInt64(&a.executed),
		Failed:        atomic.LoadInt64(&a.failed),
		Missed:        atomic.LoadInt64(&a.missed),
		LastExecution: lastExec,
		LastError:     lastErr,
	}
}

// Stop unsubscribes from the bus and waits for the consuming goroutine to
// exit.
func (a *Aggregator) Stop() {
	close(a.stop)
	a.bus.Unsubscribe(a.subscriber)
	<-a.done
}
