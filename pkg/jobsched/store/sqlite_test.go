package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

func openTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	tmpDir := t.TempDir()
	s, err := OpenSQLite(SQLiteConfig{
		Path:        filepath.Join(tmpDir, "jobsched-test.db"),
		JournalMode: "WAL",
		BusyTimeout: 5000,
		ForeignKeys: true,
	})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenSQLiteMigratesSchema(t *testing.T) {
	s := openTestSQLite(t)

	version, err := s.migrator.CurrentVersion(context.Background())
	if err != nil {
		t.Fatalf("CurrentVersion: %v", err)
	}
	if version < 1 {
		t.Fatalf("expected migrated version >= 1, got %d", version)
	}

	needs, err := s.migrator.NeedsMigration(context.Background())
	if err != nil {
		t.Fatalf("NeedsMigration: %v", err)
	}
	if needs {
		t.Fatal("expected no migration needed right after Migrate")
	}
}

func TestSQLitePutGetRoundTripsTriggerAndConfig(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)

	c, err := trigger.NewCron("0 2 * * *", "UTC")
	if err != nil {
		t.Fatalf("NewCron: %v", err)
	}
	next := time.Date(2025, 6, 23, 2, 0, 0, 0, time.UTC)

	j := newTestJob(t, "nightly-ingest", next)
	j.Trigger = c
	j.PipelineConfig = value.Map{
		"force_recreate": value.Of(true),
		"workers":        value.Of(int64(4)),
	}

	if err := s.Put(ctx, j); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "nightly-ingest")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Trigger.Kind() != trigger.KindCron {
		t.Fatalf("got trigger kind %v, want cron", got.Trigger.Kind())
	}
	if got.Trigger.String() != c.String() {
		t.Fatalf("trigger did not round-trip: got %q want %q", got.Trigger.String(), c.String())
	}
	if b, ok := got.PipelineConfig["force_recreate"].Bool(); !ok || !b {
		t.Fatalf("pipeline config did not round-trip force_recreate")
	}
	if n, ok := got.PipelineConfig["workers"].Int(); !ok || n != 4 {
		t.Fatalf("pipeline config did not round-trip workers, got %v ok=%v", n, ok)
	}
}

func TestSQLiteGetMissingIsNotFound(t *testing.T) {
	s := openTestSQLite(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, jobserr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteAcquireDueJobsLeasesAndExcludes(t *testing.T) {
	ctx := context.Background()
	s := openTestSQLite(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, id := range []string{"b", "a"} {
		if err := s.Put(ctx, newTestJob(t, id, base)); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
	}

	due, err := s.AcquireDueJobs(ctx, base.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("AcquireDueJobs: %v", err)
	}
	if len(due) != 2 || due[0].ID != "a" || due[1].ID != "b" {
		t.Fatalf("got %+v, want [a b] ordering", due)
	}

	due2, err := s.AcquireDueJobs(ctx, base.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("AcquireDueJobs (second): %v", err)
	}
	if len(due2) != 0 {
		t.Fatalf("expected leased rows excluded, got %d", len(due2))
	}
}

func TestSQLiteDeleteUnknownIsNotFound(t *testing.T) {
	s := openTestSQLite(t)
	if err := s.Delete(context.Background(), "missing"); !errors.Is(err, jobserr.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSQLiteHealthReportsVersion(t *testing.T) {
	s := openTestSQLite(t)
	h := s.Health(context.Background())
	if !h.Healthy {
		t.Fatalf("expected healthy, got %+v", h)
	}
	if h.Version == "" {
		t.Fatal("expected a sqlite version string")
	}
}

func TestOpenSQLiteCreatesParentDirectory(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "nested", "dir", "jobsched.db")

	s, err := OpenSQLite(SQLiteConfig{Path: nested})
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(nested); err != nil {
		t.Fatalf("expected database file to exist: %v", err)
	}
}
