// Package api implements the API Facade (§4.9): the single in-process
// surface a transport (HTTP handler, CLI command) calls to drive the
// scheduler. Every operation is synchronous and returns either a result or
// a jobserr-classified error.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/clock"
	"github.com/jholhewres/jobsched/pkg/jobsched/health"
	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
	"github.com/jholhewres/jobsched/pkg/jobsched/scheduler"
	"github.com/jholhewres/jobsched/pkg/jobsched/stats"
	"github.com/jholhewres/jobsched/pkg/jobsched/store"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// CronSpec describes a cron trigger either as a raw five-field Expression
// or, when Expression is empty, as Hour/Minute/DayOfWeek fields the facade
// assembles into one (matching the config-document shape in §6).
type CronSpec struct {
	Expression string
	Hour       int
	Minute     int
	DayOfWeek  string // mon..sun, 0-6, or "*"; ignored when Expression is set
	Timezone   string
}

func (s CronSpec) build() (trigger.Trigger, error) {
	expr := s.Expression
	if expr == "" {
		dow := s.DayOfWeek
		if dow == "" {
			dow = "*"
		}
		expr = fmt.Sprintf("%d %d * * %s", s.Minute, s.Hour, dow)
	}
	return trigger.NewCron(expr, s.Timezone)
}

// IntervalSpec describes a period as day/hour/minute/second components,
// matching the config-document shape in §6.
type IntervalSpec struct {
	Days    int
	Hours   int
	Minutes int
	Seconds int
}

func (s IntervalSpec) period() time.Duration {
	return time.Duration(s.Days)*24*time.Hour +
		time.Duration(s.Hours)*time.Hour +
		time.Duration(s.Minutes)*time.Minute +
		time.Duration(s.Seconds)*time.Second
}

// JobOptions carries the tunables every create operation accepts beyond id,
// name, trigger, and pipelineConfig. Zero values fall back to §3's defaults.
type JobOptions struct {
	Coalesce            *bool
	MaxInstances        int
	MisfireGraceSeconds int
}

func (o JobOptions) coalesce(defaultValue bool) bool {
	if o.Coalesce != nil {
		return *o.Coalesce
	}
	return defaultValue
}

func (o JobOptions) maxInstances() int {
	if o.MaxInstances > 0 {
		return o.MaxInstances
	}
	return job.DefaultMaxInstances
}

func (o JobOptions) misfireGraceSeconds() int {
	if o.MisfireGraceSeconds > 0 {
		return o.MisfireGraceSeconds
	}
	return job.DefaultMisfireGraceSeconds
}

// Facade bundles the store and scheduler handle a transport needs. There is
// no module-level scheduler singleton (§9): every transport holds its own
// Facade value, constructed explicitly at startup.
type Facade struct {
	store     store.JobStore
	sched     *scheduler.Scheduler
	aggregator *stats.Aggregator
	clk       clock.Clock
	logger    *slog.Logger
}

// New builds a Facade over a store and, optionally, a running scheduler.
// sched may be nil: mutations are then persisted without a loop to notify.
func New(st store.JobStore, sched *scheduler.Scheduler, aggregator *stats.Aggregator, clk clock.Clock, logger *slog.Logger) *Facade {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Facade{store: st, sched: sched, aggregator: aggregator, clk: clk, logger: logger}
}

func (f *Facade) create(ctx context.Context, id, name string, trig trigger.Trigger, cfg value.Map, defaultCoalesce bool, opts JobOptions) (*job.Job, error) {
	if err := job.ValidateID(id); err != nil {
		return nil, err
	}
	if _, err := f.store.Get(ctx, id); err == nil {
		return nil, jobserr.Validation("job id already exists: " + id)
	}

	now := f.clk.Now()
	j := &job.Job{
		ID:                  id,
		Name:                name,
		Trigger:             trig,
		PipelineConfig:      cfg.Clone(),
		Coalesce:            opts.coalesce(defaultCoalesce),
		MaxInstances:        opts.maxInstances(),
		MisfireGraceSeconds: opts.misfireGraceSeconds(),
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	j.DeriveNextFireTime(now)
	if err := j.Validate(); err != nil {
		return nil, err
	}
	if j.NextFireTime == nil {
		return nil, jobserr.Validation("trigger never fires: " + j.Trigger.String())
	}

	if err := f.store.Put(ctx, j); err != nil {
		return nil, err
	}
	f.notify()
	return j, nil
}

// CreateCronJob creates a job on a cron schedule.
func (f *Facade) CreateCronJob(ctx context.Context, id, name string, spec CronSpec, cfg value.Map, opts JobOptions) (*job.Job, error) {
	trig, err := spec.build()
	if err != nil {
		return nil, jobserr.Validation(err.Error())
	}
	return f.create(ctx, id, name, trig, cfg, job.DefaultCoalesceAdHoc, opts)
}

// CreateIntervalJob creates a job on a fixed-period schedule anchored at
// creation time.
func (f *Facade) CreateIntervalJob(ctx context.Context, id, name string, spec IntervalSpec, cfg value.Map, opts JobOptions) (*job.Job, error) {
	trig, err := trigger.NewInterval(spec.period(), f.clk.Now())
	if err != nil {
		return nil, jobserr.Validation(err.Error())
	}
	return f.create(ctx, id, name, trig, cfg, job.DefaultCoalesceAdHoc, opts)
}

// CreateOneTimeJob creates a job that fires once at runDate. A runDate in
// the past is rejected with Validation and nothing is stored.
func (f *Facade) CreateOneTimeJob(ctx context.Context, id, name string, runDate time.Time, cfg value.Map, opts JobOptions) (*job.Job, error) {
	if !runDate.After(f.clk.Now()) {
		return nil, jobserr.Validation("run date must be in the future")
	}
	trig := trigger.NewDate(runDate)
	return f.create(ctx, id, name, trig, cfg, job.DefaultCoalesceAdHoc, opts)
}

// CreateFromPreset creates one or more jobs from the §6 preset catalogue.
// "twice_daily" expands to two jobs with ids "${id}_1" and "${id}_2".
func (f *Facade) CreateFromPreset(ctx context.Context, presetName, id string, cfg value.Map) ([]*job.Job, error) {
	specs, ok := presetCatalogue[presetName]
	if !ok {
		return nil, jobserr.NotFound("unknown preset: " + presetName)
	}

	var created []*job.Job
	for _, p := range specs {
		jobID := id
		if len(specs) > 1 {
			jobID = fmt.Sprintf("%s_%d", id, p.suffix)
		}
		j, err := f.CreateCronJob(ctx, jobID, p.name(id), p.cron, cfg, JobOptions{Coalesce: boolPtr(job.DefaultCoalescePreset)})
		if err != nil {
			return nil, err
		}
		created = append(created, j)
	}
	return created, nil
}

// GetJob returns a job by id.
func (f *Facade) GetJob(ctx context.Context, id string) (*job.Job, error) {
	return f.store.Get(ctx, id)
}

// ListJobs returns every job in insertion order.
func (f *Facade) ListJobs(ctx context.Context) ([]*job.Job, error) {
	return f.store.List(ctx)
}

// UpdateJob loads the job, applies mutate, re-derives nextFireTime, and
// writes it back as an atomic delete+insert (the caller's chosen semantics
// per §3's lifecycle note).
func (f *Facade) UpdateJob(ctx context.Context, id string, mutate func(*job.Job) error) (*job.Job, error) {
	j, err := f.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := mutate(j); err != nil {
		return nil, err
	}
	j.UpdatedAt = f.clk.Now()
	j.DeriveNextFireTime(f.clk.Now())
	if err := j.Validate(); err != nil {
		return nil, err
	}

	if err := f.store.Delete(ctx, id); err != nil && !isNotFound(err) {
		return nil, err
	}
	if err := f.store.Put(ctx, j); err != nil {
		return nil, err
	}
	f.notify()
	return j, nil
}

// DeleteJob removes a job by id.
func (f *Facade) DeleteJob(ctx context.Context, id string) error {
	if err := f.store.Delete(ctx, id); err != nil {
		return err
	}
	f.notify()
	return nil
}

// RunNow triggers an immediate firing of id. This goes through ordinary
// pool admission and can be rejected as Overflow like any natural firing
// (Open Question #2, resolved: RunNow respects maxInstances).
func (f *Facade) RunNow(ctx context.Context, id string) error {
	if err := scheduler.TriggerNow(ctx, f.store, f.clk, id); err != nil {
		return err
	}
	f.notify()
	return nil
}

// GetStats returns the live SchedulerStats snapshot.
func (f *Facade) GetStats() job.Stats {
	if f.aggregator == nil {
		return job.Stats{}
	}
	return f.aggregator.Snapshot()
}

// HealthCheck returns the current HealthEvaluator report.
func (f *Facade) HealthCheck(ctx context.Context) health.Report {
	running := f.sched != nil && f.sched.State() == scheduler.StateRunning
	return health.Evaluate(ctx, running, f.store, f.GetStats())
}

func (f *Facade) notify() {
	if f.sched != nil {
		f.sched.NotifyChanged()
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, jobserr.ErrNotFound)
}

func boolPtr(b bool) *bool { return &b }
