// Package job defines the durable Job record, its validation rules, and the
// append-only JobExecutionRecord artifact each firing produces.
package job

import (
	"regexp"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// idPattern matches the spec's job id invariant: non-empty,
// [A-Za-z0-9_.\-]+.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]+$`)

// ValidateID checks the job id invariant.
func ValidateID(id string) error {
	if id == "" || !idPattern.MatchString(id) {
		return jobserr.Validation("job id must match [A-Za-z0-9_.-]+ and be non-empty: " + id)
	}
	return nil
}

// Default tunables from §3.
const (
	DefaultMaxInstances        = 3
	DefaultMisfireGraceSeconds = 3600
	DefaultCoalesceAdHoc       = false
	DefaultCoalescePreset      = true
)

// Job is the durable record the scheduler fires.
type Job struct {
	ID   string
	Name string

	Trigger trigger.Trigger

	PipelineConfig value.Map

	NextFireTime *time.Time
	LastFireTime *time.Time

	Coalesce            bool
	MaxInstances        int
	MisfireGraceSeconds int

	// LeasedUntil is set by JobStore.AcquireDueJobs to prevent a second
	// loop iteration from re-dispatching the same firing; cleared when the
	// scheduler writes back the new NextFireTime.
	LeasedUntil *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Clone returns a deep-enough copy for safe concurrent handoff between the
// store and the scheduler loop (Trigger is itself immutable, so it is
// shared, not copied).
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.PipelineConfig = j.PipelineConfig.Clone()
	if j.NextFireTime != nil {
		t := *j.NextFireTime
		out.NextFireTime = &t
	}
	if j.LastFireTime != nil {
		t := *j.LastFireTime
		out.LastFireTime = &t
	}
	if j.LeasedUntil != nil {
		t := *j.LeasedUntil
		out.LeasedUntil = &t
	}
	return &out
}

// Validate checks invariants that do not require store access (id shape,
// NextFireTime >= LastFireTime, positive maxInstances, non-negative misfire
// grace).
func (j *Job) Validate() error {
	if err := ValidateID(j.ID); err != nil {
		return err
	}
	if j.Trigger == nil {
		return jobserr.Validation("job trigger is required")
	}
	if j.MaxInstances <= 0 {
		return jobserr.Validation("maxInstances must be positive")
	}
	if j.MisfireGraceSeconds < 0 {
		return jobserr.Validation("misfireGraceSeconds must be non-negative")
	}
	if j.NextFireTime != nil && j.LastFireTime != nil && j.NextFireTime.Before(*j.LastFireTime) {
		return jobserr.Validation("nextFireTime must not precede lastFireTime")
	}
	return nil
}

// DeriveNextFireTime recomputes NextFireTime from the trigger, per §3:
// for Date triggers it is set once at insert and becomes none after firing;
// for Interval/Cron it is trigger.NextFireAfter(max(now, lastFireTime)).
//
// When LastFireTime is set, the query point is advanced one nanosecond past
// it (mirroring scheduler.windowsBetween's cursor.Add(time.Nanosecond))
// rather than querying at LastFireTime itself: NextFireAfter is allowed to
// return its argument unchanged when that argument sits exactly on a
// trigger boundary (an Interval fired at a period multiple of its anchor),
// and LastFireTime is by construction always such a boundary. Querying at
// LastFireTime verbatim would therefore hand back the instant that was
// just fired, freezing NextFireTime and causing AcquireDueJobs to
// re-acquire the same firing forever.
func (j *Job) DeriveNextFireTime(now time.Time) {
	from := now
	if j.LastFireTime != nil {
		afterLast := j.LastFireTime.Add(time.Nanosecond)
		if afterLast.After(from) {
			from = afterLast
		}
	}
	next, ok := j.Trigger.NextFireAfter(from)
	if !ok {
		j.NextFireTime = nil
		return
	}
	j.NextFireTime = &next
}

// Outcome classifies a single firing's result.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeMissed  Outcome = "missed"
	OutcomeTimeout Outcome = "timeout"
)

// maxTruncatedOutput bounds JobExecutionRecord.Message per §3.
const maxTruncatedOutput = 1000

// ExecutionRecord is the append-only artifact written after every firing.
// It is not necessarily held in JobStore; JobRunner writes it to disk as
// job_report_<jobId>_<YYYYMMDD_HHMMSS>.json.
type ExecutionRecord struct {
	ID         string
	JobID      string
	FiredAt    time.Time
	FinishedAt time.Time
	Outcome    Outcome
	Message    string
}

// TruncateMessage clamps a message to the §3 1000-byte bound, matching the
// stderr-truncation rule JobRunner applies on failure.
func TruncateMessage(s string) string {
	if len(s) <= maxTruncatedOutput {
		return s
	}
	return s[:maxTruncatedOutput]
}

// Stats is SchedulerStats from §3: process-lifetime counters, rebuilt on
// restart from nothing.
type Stats struct {
	Executed int64
	Failed   int64
	Missed   int64

	LastExecution *time.Time
	LastError     *ErrorSnapshot
}

// ErrorSnapshot is the last recorded firing failure.
type ErrorSnapshot struct {
	JobID     string
	Message   string
	Timestamp time.Time
}
