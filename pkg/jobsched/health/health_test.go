package health

import (
	"context"
	"testing"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/store"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

func newHealthTestJob(id string) *job.Job {
	return &job.Job{
		ID:             id,
		Name:           id,
		Trigger:        trigger.NewDate(time.Now().Add(time.Hour)),
		PipelineConfig: value.Map{},
		MaxInstances:   1,
	}
}

func TestEvaluateHealthyByDefault(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()

	r := Evaluate(context.Background(), true, s, job.Stats{})
	if r.Verdict != VerdictHealthy {
		t.Fatalf("got verdict %v, want healthy", r.Verdict)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", r.Warnings)
	}
}

func TestEvaluateUnhealthyOnHighFailureRate(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()

	stats := job.Stats{Executed: 3, Failed: 7}
	r := Evaluate(context.Background(), true, s, stats)
	if r.Verdict != VerdictUnhealthy {
		t.Fatalf("got verdict %v, want unhealthy", r.Verdict)
	}
	if len(r.Recommendations) == 0 {
		t.Fatal("expected at least one recommendation")
	}
}

func TestEvaluateHealthyAtExactlyFiftyPercentFailureRate(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()

	stats := job.Stats{Executed: 5, Failed: 5}
	r := Evaluate(context.Background(), true, s, stats)
	if r.Verdict != VerdictHealthy {
		t.Fatalf("got verdict %v, want healthy at exactly 50%% (rule is strictly > 0.5)", r.Verdict)
	}
}

func TestEvaluateWarningWhenSchedulerNotRunning(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()

	r := Evaluate(context.Background(), false, s, job.Stats{})
	if r.Verdict != VerdictWarning {
		t.Fatalf("got verdict %v, want warning", r.Verdict)
	}
}

func TestEvaluateReportsTotalJobs(t *testing.T) {
	s := store.NewMemory()
	defer s.Close()
	_ = s.Put(context.Background(), newHealthTestJob("a"))
	_ = s.Put(context.Background(), newHealthTestJob("b"))

	r := Evaluate(context.Background(), true, s, job.Stats{})
	if r.TotalJobs != 2 {
		t.Fatalf("got TotalJobs %d, want 2", r.TotalJobs)
	}
}
