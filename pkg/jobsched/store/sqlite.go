package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// SQLiteConfig configures the embedded backend, grounded on the teacher's
// backends.SQLiteConfig (journal mode, busy timeout, foreign keys) — the
// connection-option shape survives unchanged, only the schema it migrates
// is new.
type SQLiteConfig struct {
	Path        string
	JournalMode string
	BusyTimeout int
	ForeignKeys bool
}

// SQLite is the embedded, single-file JobStore backend.
type SQLite struct {
	db       *sql.DB
	migrator *sqliteMigrator
}

// OpenSQLite opens or creates the embedded job database, applying WAL
// journaling and a busy-timeout DSN parameter the same way the teacher's
// backends.OpenSQLite does, then migrates the jobs schema.
func OpenSQLite(config SQLiteConfig) (*SQLite, error) {
	if config.Path == "" {
		config.Path = "./data/jobsched.db"
	}
	if config.JournalMode == "" {
		config.JournalMode = "WAL"
	}
	if config.BusyTimeout == 0 {
		config.BusyTimeout = 5000
	}

	dir := filepath.Dir(config.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("create database directory %q: %v", dir, err))
	}

	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d", config.Path, config.JournalMode, config.BusyTimeout)
	if config.ForeignKeys {
		dsn += "&_foreign_keys=ON"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("open database %q: %v", config.Path, err))
	}
	// SQLite only tolerates a single writer; cap the pool so busy_timeout
	// actually serializes writers instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("ping database: %v", err))
	}

	s := &SQLite{db: db, migrator: &sqliteMigrator{db: db}}
	if err := s.migrator.Migrate(context.Background(), 0); err != nil {
		db.Close()
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("migrate schema: %v", err))
	}
	return s, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Put(ctx context.Context, j *job.Job) error {
	spec, err := trigger.Serialize(j.Trigger)
	if err != nil {
		return jobserr.Validation(err.Error())
	}
	specJSON, err := json.Marshal(spec)
	if err != nil {
		return jobserr.Validation(err.Error())
	}
	cfgJSON, err := json.Marshal(j.PipelineConfig)
	if err != nil {
		return jobserr.Validation(err.Error())
	}

	now := time.Now()
	createdAt := j.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, name, trigger_kind, trigger_spec, pipeline_config,
			next_fire_time, last_fire_time, leased_until,
			coalesce_firings, max_instances, misfire_grace_seconds,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, NULL, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			trigger_kind = excluded.trigger_kind,
			trigger_spec = excluded.trigger_spec,
			pipeline_config = excluded.pipeline_config,
			next_fire_time = excluded.next_fire_time,
			last_fire_time = excluded.last_fire_time,
			leased_until = NULL,
			coalesce_firings = excluded.coalesce_firings,
			max_instances = excluded.max_instances,
			misfire_grace_seconds = excluded.misfire_grace_seconds,
			updated_at = excluded.updated_at
	`,
		j.ID, j.Name, string(spec.Kind), string(specJSON), string(cfgJSON),
		nullableTime(j.NextFireTime), nullableTime(j.LastFireTime),
		boolToInt(j.Coalesce), j.MaxInstances, j.MisfireGraceSeconds,
		createdAt.UTC().Format(time.RFC3339Nano), now.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return jobserr.StoreUnavailable(fmt.Sprintf("put job %q: %v", j.ID, err))
	}
	j.CreatedAt = createdAt
	j.UpdatedAt = now
	j.LeasedUntil = nil
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+" FROM jobs WHERE id = ?", id)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, jobserr.NotFound("job " + id)
	}
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("get job %q: %v", id, err))
	}
	return j, nil
}

func (s *SQLite) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return jobserr.StoreUnavailable(fmt.Sprintf("delete job %q: %v", id, err))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return jobserr.NotFound("job " + id)
	}
	return nil
}

func (s *SQLite) List(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, jobSelectColumns+" FROM jobs ORDER BY rowid")
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("list jobs: %v", err))
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *SQLite) PeekEarliest(ctx context.Context) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, jobSelectColumns+`
		FROM jobs WHERE next_fire_time IS NOT NULL
		ORDER BY next_fire_time, id LIMIT 1`)
	j, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("peek earliest: %v", err))
	}
	return j, nil
}

// AcquireDueJobs selects and leases due rows in a single transaction. SQLite
// only allows one writer; the pool is capped to one connection and
// busy_timeout serializes concurrent callers instead of surfacing
// SQLITE_BUSY, which is this backend's analogue to Postgres's explicit
// row locking in postgres.go.
func (s *SQLite) AcquireDueJobs(ctx context.Context, now time.Time, maxN int) ([]*job.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("begin acquire tx: %v", err))
	}
	defer tx.Rollback()

	nowStr := now.UTC().Format(time.RFC3339Nano)
	rows, err := tx.QueryContext(ctx, jobSelectColumns+`
		FROM jobs
		WHERE next_fire_time IS NOT NULL AND next_fire_time <= ?
		  AND (leased_until IS NULL OR leased_until <= ?)
		ORDER BY next_fire_time, id LIMIT ?`, nowStr, nowStr, maxN)
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("select due jobs: %v", err))
	}
	due, err := scanJobs(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	leasedUntil := now.Add(leaseDuration).UTC().Format(time.RFC3339Nano)
	for _, j := range due {
		if _, err := tx.ExecContext(ctx, "UPDATE jobs SET leased_until = ? WHERE id = ?", leasedUntil, j.ID); err != nil {
			return nil, jobserr.StoreUnavailable(fmt.Sprintf("lease job %q: %v", j.ID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("commit acquire tx: %v", err))
	}
	return due, nil
}

func (s *SQLite) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&n); err != nil {
		return 0, jobserr.StoreUnavailable(err.Error())
	}
	return n, nil
}

func (s *SQLite) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return HealthStatus{Healthy: false, Error: err.Error(), Latency: time.Since(start)}
	}
	var version string
	_ = s.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&version)
	st := s.db.Stats()
	return HealthStatus{
		Healthy:         true,
		Version:         version,
		Latency:         time.Since(start),
		OpenConnections: st.OpenConnections,
		InUse:           st.InUse,
		Idle:            st.Idle,
	}
}

// sqliteMigrator applies the jobs schema idempotently, grounded on the
// teacher's SQLiteMigrator (schema_version table + IF NOT EXISTS DDL).
type sqliteMigrator struct {
	db *sql.DB
}

func (m *sqliteMigrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		// Table likely doesn't exist yet.
		return 0, nil
	}
	return version, nil
}

func (m *sqliteMigrator) Migrate(ctx context.Context, _ int) error {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, sqliteJobsSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		if _, err := m.db.ExecContext(ctx, "INSERT OR IGNORE INTO schema_version (version) VALUES (1)"); err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
	}
	return nil
}

func (m *sqliteMigrator) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < 1, nil
}

const sqliteJobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL DEFAULT '',
    trigger_kind          TEXT NOT NULL,
    trigger_spec          TEXT NOT NULL,
    pipeline_config       TEXT NOT NULL DEFAULT '{}',
    next_fire_time        TEXT,
    last_fire_time        TEXT,
    leased_until          TEXT,
    coalesce_firings      INTEGER NOT NULL DEFAULT 1,
    max_instances         INTEGER NOT NULL DEFAULT 3,
    misfire_grace_seconds INTEGER NOT NULL DEFAULT 3600,
    created_at            TEXT NOT NULL,
    updated_at            TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_next_fire ON jobs(next_fire_time);
`

const jobSelectColumns = `SELECT
	id, name, trigger_kind, trigger_spec, pipeline_config,
	next_fire_time, last_fire_time, leased_until,
	coalesce_firings, max_instances, misfire_grace_seconds,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*job.Job, error) {
	var (
		id, name, triggerKind, triggerSpecJSON, pipelineConfigJSON string
		nextFireTime, lastFireTime, leasedUntil                    sql.NullString
		coalesceInt, maxInstances, misfireGrace                    int
		createdAtStr, updatedAtStr                                 string
	)
	if err := r.Scan(
		&id, &name, &triggerKind, &triggerSpecJSON, &pipelineConfigJSON,
		&nextFireTime, &lastFireTime, &leasedUntil,
		&coalesceInt, &maxInstances, &misfireGrace,
		&createdAtStr, &updatedAtStr,
	); err != nil {
		return nil, err
	}

	var spec trigger.Spec
	if err := json.Unmarshal([]byte(triggerSpecJSON), &spec); err != nil {
		return nil, fmt.Errorf("decode trigger spec for job %q: %w", id, err)
	}
	trg, err := trigger.Deserialize(spec)
	if err != nil {
		return nil, fmt.Errorf("rebuild trigger for job %q: %w", id, err)
	}

	var cfg value.Map
	if err := json.Unmarshal([]byte(pipelineConfigJSON), &cfg); err != nil {
		return nil, fmt.Errorf("decode pipeline config for job %q: %w", id, err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for job %q: %w", id, err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parse updated_at for job %q: %w", id, err)
	}

	j := &job.Job{
		ID:                  id,
		Name:                name,
		Trigger:             trg,
		PipelineConfig:      cfg,
		Coalesce:            coalesceInt != 0,
		MaxInstances:        maxInstances,
		MisfireGraceSeconds: misfireGrace,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}
	j.NextFireTime = parseNullableTime(nextFireTime)
	j.LastFireTime = parseNullableTime(lastFireTime)
	j.LeasedUntil = parseNullableTime(leasedUntil)
	return j, nil
}

func scanJobs(rows *sql.Rows) ([]*job.Job, error) {
	var out []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, jobserr.StoreUnavailable(err.Error())
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, jobserr.StoreUnavailable(err.Error())
	}
	return out, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseNullableTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, ns.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
