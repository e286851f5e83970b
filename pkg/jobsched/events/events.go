// Package events implements the scheduler's in-process event bus:
// subscribers get their own bounded channel, grounded on the teacher's
// channels.Manager pattern (one named registry entry per subscriber,
// a buffered channel per entry, publish-select with a done/cancel guard).
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
)

// Kind classifies a published Event.
type Kind string

const (
	KindExecuted Kind = "executed"
	KindFailed   Kind = "failed"
	KindMissed   Kind = "missed"
)

// Event is published once per firing outcome, and once per coalesced
// missed-firing group (never once per skipped window).
type Event struct {
	Kind      Kind
	JobID     string
	Timestamp time.Time
	Outcome   job.Outcome
	Message   string

	// MissedCount is set on KindMissed events coalescing more than one
	// skipped window into a single notification.
	MissedCount int
}

// subscriberBuffer bounds how many events a slow subscriber can fall
// behind by; it mirrors the 256-deep channels the teacher gives every
// per-connection message stream (channels/telegram, channels/discord).
const subscriberBuffer = 256

// Bus is the process-lifetime event bus. It is safe for concurrent use.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	logger      *slog.Logger

	// droppedMu guards dropped separately from mu: Publish only ever takes
	// mu's read lock (concurrent publishers must be allowed to fan out at
	// once), so the dropped-count increment needs its own lock rather than
	// upgrading Publish to a full write lock per event.
	droppedMu sync.Mutex
	dropped   map[string]int64
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		dropped:     make(map[string]int64),
		logger:      logger,
	}
}

// Subscribe registers a new named subscriber and returns its receive-only
// channel. Subscribing twice under the same name replaces the previous
// channel (the old one is closed).
func (b *Bus) Subscribe(name string) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subscribers[name]; ok {
		close(old)
	}
	ch := make(chan Event, subscriberBuffer)
	b.subscribers[name] = ch
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[name]; ok {
		close(ch)
		delete(b.subscribers, name)
	}
}

// Publish fans an event out to every subscriber. A subscriber whose buffer
// is full has its oldest event dropped to make room, rather than blocking
// the publisher or the other subscribers; DroppedCount reports how often
// this has happened per subscriber.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for name, ch := range b.subscribers {
		select {
		case ch <- evt:
		default:
			select {
			case <-ch:
				b.droppedMu.Lock()
				b.dropped[name]++
				b.droppedMu.Unlock()
				b.logger.Warn("event bus dropped oldest event for slow subscriber",
					"subscriber", name, "kind", evt.Kind, "job_id", evt.JobID)
			default:
			}
			select {
			case ch <- evt:
			default:
				// Buffer refilled by another publisher between the drain and
				// this send; give up rather than spin.
			}
		}
	}
}

// DroppedCount returns how many events have been dropped for a subscriber
// due to a full buffer.
func (b *Bus) DroppedCount(name string) int64 {
	b.droppedMu.Lock()
	defer b.droppedMu.Unlock()
	return b.dropped[name]
}

// Close closes every subscriber channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for name, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, name)
	}
}
