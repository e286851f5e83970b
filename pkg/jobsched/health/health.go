// Package health implements HealthEvaluator: on demand, it inspects
// scheduler state, stats, and store reachability, and returns a verdict
// plus actionable recommendations (§4.7).
package health

import (
	"context"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/store"
)

// Verdict is the derived health classification.
type Verdict string

const (
	VerdictHealthy   Verdict = "healthy"
	VerdictWarning   Verdict = "warning"
	VerdictUnhealthy Verdict = "unhealthy"
)

// Report is the structured result of a health check.
type Report struct {
	SchedulerRunning bool
	TotalJobs        int
	Stats            job.Stats
	Verdict          Verdict
	Warnings         []string
	Recommendations  []string
}

// failureRateThreshold is the §4.7 rule: failed/(executed+failed) > 0.5
// renders the scheduler unhealthy.
const failureRateThreshold = 0.5

// Evaluate builds a Report from the current scheduler state.
func Evaluate(ctx context.Context, running bool, st store.JobStore, stats job.Stats) Report {
	r := Report{SchedulerRunning: running, Stats: stats, Verdict: VerdictHealthy}

	if total, err := st.CountJobs(ctx); err == nil {
		r.TotalJobs = total
	}

	total := stats.Executed + stats.Failed
	if total > 0 {
		rate := float64(stats.Failed) / float64(total)
		if rate > failureRateThreshold {
			r.Verdict = VerdictUnhealthy
			r.Warnings = append(r.Warnings, "High job failure rate detected")
			r.Recommendations = append(r.Recommendations,
				"Inspect recent job_report_* artifacts for the failing job and its stderr output")
		}
	}

	storeHealth := st.Health(ctx)
	if !storeHealth.Healthy {
		r.Verdict = VerdictUnhealthy
		r.Warnings = append(r.Warnings, "JobStore is unreachable: "+storeHealth.Error)
		r.Recommendations = append(r.Recommendations, "Check the store backend connection and credentials")
	}

	if !running {
		if r.Verdict == VerdictHealthy {
			r.Verdict = VerdictWarning
		}
		r.Warnings = append(r.Warnings, "Scheduler loop is not running")
		r.Recommendations = append(r.Recommendations, "Start the scheduler to resume dispatching firings")
	}

	return r
}
