package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/clock"
	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
	"github.com/jholhewres/jobsched/pkg/jobsched/store"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	st := store.NewMemory()
	t.Cleanup(func() { st.Close() })
	return New(st, nil, nil, clock.System{}, nil)
}

func TestCreateAndListCronJob(t *testing.T) {
	f := newTestFacade(t)

	j, err := f.CreateCronJob(context.Background(), "daily", "daily", CronSpec{Hour: 2, Minute: 0}, value.Map{}, JobOptions{})
	if err != nil {
		t.Fatalf("CreateCronJob: %v", err)
	}
	if j.NextFireTime == nil {
		t.Fatal("expected a derived nextFireTime")
	}

	jobs, err := f.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "daily" {
		t.Fatalf("got jobs %+v, want one job with id 'daily'", jobs)
	}
}

func TestCreateOneTimeJobInThePastIsRejected(t *testing.T) {
	f := newTestFacade(t)

	_, err := f.CreateOneTimeJob(context.Background(), "once", "once", time.Now().Add(-10*time.Second), value.Map{}, JobOptions{})
	if err == nil {
		t.Fatal("expected an error for a run date in the past")
	}

	jobs, _ := f.ListJobs(context.Background())
	if len(jobs) != 0 {
		t.Fatalf("expected no job to be stored, got %d", len(jobs))
	}
}

func TestCreateFromPresetTwiceDailyExpandsToTwoJobs(t *testing.T) {
	f := newTestFacade(t)

	jobs, err := f.CreateFromPreset(context.Background(), "twice_daily", "ingest", value.Map{})
	if err != nil {
		t.Fatalf("CreateFromPreset: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("got %d jobs, want 2", len(jobs))
	}
	if jobs[0].ID != "ingest_1" || jobs[1].ID != "ingest_2" {
		t.Fatalf("got ids %q, %q, want ingest_1, ingest_2", jobs[0].ID, jobs[1].ID)
	}
}

func TestCreateFromUnknownPresetIsNotFound(t *testing.T) {
	f := newTestFacade(t)

	_, err := f.CreateFromPreset(context.Background(), "nonexistent", "ingest", value.Map{})
	if err == nil {
		t.Fatal("expected an error for an unknown preset")
	}
}

func TestUpdateJobReDerivesNextFireTime(t *testing.T) {
	f := newTestFacade(t)

	_, err := f.CreateCronJob(context.Background(), "daily", "daily", CronSpec{Hour: 2, Minute: 0}, value.Map{}, JobOptions{})
	if err != nil {
		t.Fatalf("CreateCronJob: %v", err)
	}

	updated, err := f.UpdateJob(context.Background(), "daily", func(j *job.Job) error {
		j.MaxInstances = 7
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if updated.MaxInstances != 7 {
		t.Fatalf("got maxInstances %d, want 7", updated.MaxInstances)
	}
	if updated.NextFireTime == nil {
		t.Fatal("expected nextFireTime to still be derived after update")
	}
}

func TestDeleteThenGetIsNotFound(t *testing.T) {
	f := newTestFacade(t)

	if _, err := f.CreateCronJob(context.Background(), "daily", "daily", CronSpec{Hour: 2, Minute: 0}, value.Map{}, JobOptions{}); err != nil {
		t.Fatalf("CreateCronJob: %v", err)
	}
	if err := f.DeleteJob(context.Background(), "daily"); err != nil {
		t.Fatalf("DeleteJob: %v", err)
	}
	if _, err := f.GetJob(context.Background(), "daily"); err == nil {
		t.Fatal("expected not found after delete")
	}
}

func TestExportImportRoundTripPreservesIDsAndConfig(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	if _, err := f.CreateCronJob(ctx, "a", "a", CronSpec{Hour: 2, Minute: 0}, value.Map{"chunk_size": value.Of(int64(512))}, JobOptions{}); err != nil {
		t.Fatalf("create a: %v", err)
	}
	if _, err := f.CreateIntervalJob(ctx, "b", "b", IntervalSpec{Minutes: 5}, value.Map{}, JobOptions{}); err != nil {
		t.Fatalf("create b: %v", err)
	}
	if _, err := f.CreateOneTimeJob(ctx, "c", "c", time.Now().Add(time.Hour), value.Map{}, JobOptions{}); err != nil {
		t.Fatalf("create c: %v", err)
	}

	doc, err := f.ExportConfig(ctx)
	if err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}
	if len(doc.Jobs) != 3 {
		t.Fatalf("got %d exported jobs, want 3", len(doc.Jobs))
	}

	for _, id := range []string{"a", "b", "c"} {
		if err := f.DeleteJob(ctx, id); err != nil {
			t.Fatalf("DeleteJob(%s): %v", id, err)
		}
	}

	n, err := f.ImportConfig(ctx, doc)
	if err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}
	if n != 3 {
		t.Fatalf("got imported count %d, want 3", n)
	}

	jobs, err := f.ListJobs(ctx)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs after import, want 3", len(jobs))
	}

	a, err := f.GetJob(ctx, "a")
	if err != nil {
		t.Fatalf("GetJob(a): %v", err)
	}
	if cs, ok := a.PipelineConfig["chunk_size"].Int(); !ok || cs != 512 {
		t.Fatalf("got chunk_size %v, ok=%v, want 512", cs, ok)
	}
}

func TestImportSkipsExistingID(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	if _, err := f.CreateCronJob(ctx, "a", "a", CronSpec{Hour: 2, Minute: 0}, value.Map{}, JobOptions{}); err != nil {
		t.Fatalf("create a: %v", err)
	}
	doc, err := f.ExportConfig(ctx)
	if err != nil {
		t.Fatalf("ExportConfig: %v", err)
	}

	n, err := f.ImportConfig(ctx, doc)
	if err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}
	if n != 0 {
		t.Fatalf("got imported count %d, want 0 since 'a' already exists", n)
	}
}

func TestImportSkipsElapsedDateTrigger(t *testing.T) {
	f := newTestFacade(t)
	ctx := context.Background()

	past := time.Now().Add(-time.Hour)
	doc := ConfigDocument{
		Jobs: []JobDocument{
			{JobID: "stale", Name: "stale", Type: "date", RunDate: &past, Config: value.Map{}},
		},
	}

	n, err := f.ImportConfig(ctx, doc)
	if err != nil {
		t.Fatalf("ImportConfig: %v", err)
	}
	if n != 0 {
		t.Fatalf("got imported count %d, want 0 for an elapsed date trigger", n)
	}
	if _, err := f.GetJob(ctx, "stale"); err == nil {
		t.Fatal("expected the elapsed job to not be stored")
	}
}

func TestHealthCheckReportsNotRunningWithoutScheduler(t *testing.T) {
	f := newTestFacade(t)

	r := f.HealthCheck(context.Background())
	if r.SchedulerRunning {
		t.Fatal("expected SchedulerRunning to be false with no scheduler attached")
	}
}

func TestRunNowOnMissingJobIsNotFound(t *testing.T) {
	f := newTestFacade(t)

	err := f.RunNow(context.Background(), "nonexistent")
	if err == nil {
		t.Fatal("expected an error for RunNow on a missing job")
	}
	if !errors.Is(err, jobserr.ErrNotFound) {
		t.Fatalf("got error %v, want a not-found classified error", err)
	}
}
