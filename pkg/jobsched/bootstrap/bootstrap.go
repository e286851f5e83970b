// Package bootstrap implements FirstTimeBootstrap: idempotent seeding of a
// default job the very first time a scheduler runs against a given store
// (§4.8). JobStore presence of the default job id is the only authoritative
// check; an optional marker file is written for operator visibility but its
// absence never triggers a re-seed on its own.
package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
	"github.com/jholhewres/jobsched/pkg/jobsched/store"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// Defaults configures the default job Bootstrap creates.
type Defaults struct {
	JobID          string
	Name           string
	Hour           int
	Minute         int
	Timezone       string
	PipelineConfig value.Map
	MaxInstances   int
}

// DefaultSeed is the spec's built-in default: a nightly 2am ingestion run.
func DefaultSeed() Defaults {
	return Defaults{
		JobID:          "default_ingestion",
		Name:           "Default nightly ingestion",
		Hour:           2,
		Minute:         0,
		Timezone:       "UTC",
		PipelineConfig: value.Map{},
		MaxInstances:   job.DefaultMaxInstances,
	}
}

// Bootstrap runs FirstTimeBootstrap against st. If enabled is false it is a
// no-op. If the default job id is already present, it is also a no-op. On
// success it writes markerPath (if non-empty) recording the seed instant;
// markerPath's absence never forces a re-seed, only JobStore presence does.
func Bootstrap(ctx context.Context, st store.JobStore, enabled bool, defaults Defaults, markerPath string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if !enabled {
		return nil
	}

	_, err := st.Get(ctx, defaults.JobID)
	if err == nil {
		logger.Info("bootstrap: default job already present, skipping", "job", defaults.JobID)
		return nil
	}
	if !errors.Is(err, jobserr.ErrNotFound) {
		return err
	}

	trig, err := trigger.NewCron(cronExpr(defaults), defaults.Timezone)
	if err != nil {
		return jobserr.Validation("bootstrap: invalid default cron expression: " + err.Error())
	}

	now := time.Now()
	maxInstances := defaults.MaxInstances
	if maxInstances <= 0 {
		maxInstances = job.DefaultMaxInstances
	}
	j := &job.Job{
		ID:                  defaults.JobID,
		Name:                defaults.Name,
		Trigger:             trig,
		PipelineConfig:      defaults.PipelineConfig,
		Coalesce:            job.DefaultCoalescePreset,
		MaxInstances:        maxInstances,
		MisfireGraceSeconds: job.DefaultMisfireGraceSeconds,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	j.DeriveNextFireTime(now)
	if err := j.Validate(); err != nil {
		return err
	}

	if err := st.Put(ctx, j); err != nil {
		return err
	}
	logger.Info("bootstrap: created default job", "job", j.ID, "nextFireTime", j.NextFireTime)

	if markerPath != "" {
		if err := writeMarker(markerPath, now); err != nil {
			logger.Warn("bootstrap: failed to write marker file, store remains the source of truth", "path", markerPath, "error", err)
		}
	}
	return nil
}

func cronExpr(d Defaults) string {
	minute, hour := d.Minute, d.Hour
	if minute < 0 {
		minute = 0
	}
	if hour < 0 {
		hour = 0
	}
	return strconv.Itoa(minute) + " " + strconv.Itoa(hour) + " * * *"
}

func writeMarker(path string, at time.Time) error {
	return os.WriteFile(path, []byte(at.Format(time.RFC3339)+"\n"), 0o644)
}
