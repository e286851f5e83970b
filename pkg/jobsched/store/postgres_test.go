//go:build integration
// +build integration

package store

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"
)

// TestPostgreSQLBackend exercises the remote backend against a real
// database. To run it:
//
//	docker run -d --name jobsched-test-pg -e POSTGRES_USER=test \
//	  -e POSTGRES_PASSWORD=test -e POSTGRES_DB=jobsched_test -p 5432:5432 postgres:16
//	go test -tags=integration ./pkg/jobsched/store/...
//
// Environment variables: PGHOST, PGPORT, PGUSER, PGPASSWORD, PGDATABASE.
func testPostgresConfig() PostgreSQLConfig {
	return PostgreSQLConfig{
		Host:     getEnv("PGHOST", "localhost"),
		Port:     getEnvInt("PGPORT", 5432),
		User:     getEnv("PGUSER", "test"),
		Password: getEnv("PGPASSWORD", "test"),
		Database: getEnv("PGDATABASE", "jobsched_test"),
		SSLMode:  "disable",
	}
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func TestPostgreSQLPutGetDelete(t *testing.T) {
	ctx := context.Background()
	p, err := OpenPostgreSQL(ctx, testPostgresConfig())
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer p.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	j := newTestJob(t, "pg-job-a", base)
	if err := p.Put(ctx, j); err != nil {
		t.Fatalf("Put: %v", err)
	}
	defer p.Delete(ctx, "pg-job-a")

	got, err := p.Get(ctx, "pg-job-a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "pg-job-a" {
		t.Fatalf("got id %q", got.ID)
	}

	if err := p.Delete(ctx, "pg-job-a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestPostgreSQLAcquireDueJobsOrdersByTimeThenID(t *testing.T) {
	ctx := context.Background()
	p, err := OpenPostgreSQL(ctx, testPostgresConfig())
	if err != nil {
		t.Skipf("postgres unavailable: %v", err)
	}
	defer p.Close()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for _, id := range []string{"pg-b", "pg-a"} {
		if err := p.Put(ctx, newTestJob(t, id, base)); err != nil {
			t.Fatalf("Put %s: %v", id, err)
		}
		defer p.Delete(ctx, id)
	}

	due, err := p.AcquireDueJobs(ctx, base.Add(time.Minute), 10)
	if err != nil {
		t.Fatalf("AcquireDueJobs: %v", err)
	}
	if len(due) != 2 || due[0].ID != "pg-a" || due[1].ID != "pg-b" {
		t.Fatalf("got %+v, want [pg-a pg-b] ordering", due)
	}
}
