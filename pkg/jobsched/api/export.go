package api

import (
	"context"
	"fmt"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// ConfigDocument is the §6 export/import wire format.
type ConfigDocument struct {
	ExportedAt     time.Time        `json:"exported_at"`
	SchedulerStats StatsDocument    `json:"scheduler_stats"`
	Jobs           []JobDocument    `json:"jobs"`
}

// StatsDocument is SchedulerStats in the export document's field names.
type StatsDocument struct {
	Executed      int64               `json:"executed"`
	Failed        int64               `json:"failed"`
	Missed        int64               `json:"missed"`
	LastExecution *time.Time          `json:"last_execution,omitempty"`
	LastError     *job.ErrorSnapshot  `json:"last_error,omitempty"`
}

// JobDocument is one job's exported shape; which trigger fields are
// populated depends on Type.
type JobDocument struct {
	JobID string `json:"job_id"`
	Name  string `json:"name"`
	Type  string `json:"type"`

	// cron
	Hour           *int   `json:"hour,omitempty"`
	Minute         *int   `json:"minute,omitempty"`
	DayOfWeek      string `json:"day_of_week,omitempty"`
	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"`

	// interval
	Days    int64 `json:"days,omitempty"`
	Hours   int64 `json:"hours,omitempty"`
	Minutes int64 `json:"minutes,omitempty"`
	Seconds int64 `json:"seconds,omitempty"`

	// date
	RunDate *time.Time `json:"run_date,omitempty"`

	Config value.Map `json:"config"`
}

// ExportConfig builds a ConfigDocument from the current store and stats.
func (f *Facade) ExportConfig(ctx context.Context) (ConfigDocument, error) {
	jobs, err := f.store.List(ctx)
	if err != nil {
		return ConfigDocument{}, err
	}

	doc := ConfigDocument{
		ExportedAt: f.clk.Now(),
		SchedulerStats: StatsDocument{
			Executed:      f.GetStats().Executed,
			Failed:        f.GetStats().Failed,
			Missed:        f.GetStats().Missed,
			LastExecution: f.GetStats().LastExecution,
			LastError:     f.GetStats().LastError,
		},
	}
	for _, j := range jobs {
		jd, err := toJobDocument(j)
		if err != nil {
			return ConfigDocument{}, err
		}
		doc.Jobs = append(doc.Jobs, jd)
	}
	return doc, nil
}

func toJobDocument(j *job.Job) (JobDocument, error) {
	spec, err := trigger.Serialize(j.Trigger)
	if err != nil {
		return JobDocument{}, err
	}
	jd := JobDocument{
		JobID:  j.ID,
		Name:   j.Name,
		Config: j.PipelineConfig.Clone(),
	}
	switch spec.Kind {
	case trigger.KindCron:
		jd.Type = "cron"
		jd.CronExpression = spec.Expression
		jd.Timezone = spec.Timezone
	case trigger.KindInterval:
		jd.Type = "interval"
		jd.Seconds = spec.PeriodSeconds
	case trigger.KindDate:
		jd.Type = "date"
		jd.RunDate = spec.RunDate
	default:
		return JobDocument{}, fmt.Errorf("api: unknown trigger kind %q", spec.Kind)
	}
	return jd, nil
}

// ImportConfig creates every job in doc whose id is not already present.
// Existing ids are skipped with a logged warning; a date trigger that has
// already elapsed is also skipped with a warning and not counted (Open
// Question #3, resolved). Returns the number of jobs actually created.
func (f *Facade) ImportConfig(ctx context.Context, doc ConfigDocument) (int, error) {
	imported := 0
	for _, jd := range doc.Jobs {
		if _, err := f.store.Get(ctx, jd.JobID); err == nil {
			f.logger.Warn("import: job id already exists, skipping", "job", jd.JobID)
			continue
		}

		j, skip, err := fromJobDocument(jd, f.clk.Now())
		if err != nil {
			return imported, err
		}
		if skip {
			f.logger.Warn("import: trigger has already elapsed, skipping", "job", jd.JobID)
			continue
		}

		if err := f.store.Put(ctx, j); err != nil {
			return imported, err
		}
		imported++
	}
	if imported > 0 {
		f.notify()
	}
	return imported, nil
}

func fromJobDocument(jd JobDocument, now time.Time) (*job.Job, bool, error) {
	var trig trigger.Trigger
	var err error

	switch jd.Type {
	case "cron":
		expr := jd.CronExpression
		if expr == "" {
			hour, minute := 0, 0
			if jd.Hour != nil {
				hour = *jd.Hour
			}
			if jd.Minute != nil {
				minute = *jd.Minute
			}
			dow := jd.DayOfWeek
			if dow == "" {
				dow = "*"
			}
			expr = fmt.Sprintf("%d %d * * %s", minute, hour, dow)
		}
		trig, err = trigger.NewCron(expr, jd.Timezone)
	case "interval":
		period := time.Duration(jd.Days)*24*time.Hour +
			time.Duration(jd.Hours)*time.Hour +
			time.Duration(jd.Minutes)*time.Minute +
			time.Duration(jd.Seconds)*time.Second
		trig, err = trigger.NewInterval(period, now)
	case "date":
		if jd.RunDate == nil {
			return nil, false, fmt.Errorf("api: date job %q missing run_date", jd.JobID)
		}
		if !jd.RunDate.After(now) {
			return nil, true, nil
		}
		trig = trigger.NewDate(*jd.RunDate)
	default:
		return nil, false, fmt.Errorf("api: unknown job type %q", jd.Type)
	}
	if err != nil {
		return nil, false, err
	}

	j := &job.Job{
		ID:                  jd.JobID,
		Name:                jd.Name,
		Trigger:             trig,
		PipelineConfig:      jd.Config.Clone(),
		Coalesce:            job.DefaultCoalescePreset,
		MaxInstances:        job.DefaultMaxInstances,
		MisfireGraceSeconds: job.DefaultMisfireGraceSeconds,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	j.DeriveNextFireTime(now)
	if j.NextFireTime == nil {
		return nil, true, nil
	}
	return j, false, nil
}
