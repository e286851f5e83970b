// Package store implements the durable JobStore: primary lookup by id, a
// secondary ordering by nextFireTime ascending, and the acquireDueJobs
// critical section the scheduler core uses to claim firings. Three
// backends ship: embedded (SQLite), remote (PostgreSQL), and an ephemeral
// in-memory variant for tests; selection is by URL scheme (§4.1).
package store

import (
	"context"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
)

// leaseDuration bounds how long acquireDueJobs's mark lasts before another
// loop iteration would be willing to re-claim the same row; in practice the
// scheduler always writes back a new nextFireTime well within this window,
// so the lease only matters if the process crashes mid-dispatch, in which
// case the spec's at-least-once trade-off means a restart may re-fire it
// anyway (see §5).
const leaseDuration = 5 * time.Minute

// JobStore is the durable persistence interface every backend implements.
// All mutations are durable before the call returns; failures are returned,
// never swallowed.
type JobStore interface {
	// Put inserts or replaces a job, atomically, updating UpdatedAt.
	Put(ctx context.Context, j *job.Job) error

	// Get returns a job by id, or a jobserr.ErrNotFound-classified error.
	Get(ctx context.Context, id string) (*job.Job, error)

	// Delete removes a job by id, or returns jobserr.ErrNotFound.
	Delete(ctx context.Context, id string) error

	// List returns every job in insertion order.
	List(ctx context.Context) ([]*job.Job, error)

	// PeekEarliest returns the job with the smallest non-nil NextFireTime,
	// or nil if no job has one pending.
	PeekEarliest(ctx context.Context) (*job.Job, error)

	// AcquireDueJobs returns and leases up to maxN jobs whose NextFireTime
	// is <= now, ordered by (NextFireTime, ID) for the tie-break in §4.3.
	// This is the scheduler's sole critical section with the store.
	AcquireDueJobs(ctx context.Context, now time.Time, maxN int) ([]*job.Job, error)

	// CountJobs returns the total number of stored jobs, for HealthEvaluator.
	CountJobs(ctx context.Context) (int, error)

	// Health reports backend connectivity/status.
	Health(ctx context.Context) HealthStatus

	// Close releases backend resources.
	Close() error
}

// HealthStatus is the backend-agnostic health snapshot a JobStore reports.
type HealthStatus struct {
	Healthy bool
	Latency time.Duration
	Version string
	Error   string

	OpenConnections int
	InUse           int
	Idle            int
}

// Migrator applies idempotent schema migrations. Every SQL-backed JobStore
// holds a private migrator implementing this; the ephemeral backend has
// nothing to migrate.
type Migrator interface {
	CurrentVersion(ctx context.Context) (int, error)
	Migrate(ctx context.Context, target int) error
	NeedsMigration(ctx context.Context) (bool, error)
}
