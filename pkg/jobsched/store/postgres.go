package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/jholhewres/jobsched/pkg/jobsched/job"
	"github.com/jholhewres/jobsched/pkg/jobsched/jobserr"
	"github.com/jholhewres/jobsched/pkg/jobsched/trigger"
	"github.com/jholhewres/jobsched/pkg/jobsched/value"
)

// PostgreSQLConfig configures the remote backend, grounded on the teacher's
// backends.PostgreSQLConfig — host/port/credential fields plus pool sizing
// survive unchanged; the Supabase-URL special case does not (nothing in
// this domain ever talks to Supabase).
type PostgreSQLConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c PostgreSQLConfig) dsn() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, url.QueryEscape(c.Password), c.Database, sslMode)
}

// PostgreSQL is the remote, multi-process-safe JobStore backend.
type PostgreSQL struct {
	db       *sql.DB
	migrator *postgresMigrator
}

// OpenPostgreSQL connects, applies the teacher's pool-sizing defaults, and
// migrates the jobs schema.
func OpenPostgreSQL(ctx context.Context, config PostgreSQLConfig) (*PostgreSQL, error) {
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = 30 * time.Minute
	}

	db, err := sql.Open("pgx", config.dsn())
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("open postgres: %v", err))
	}
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("ping postgres: %v", err))
	}

	p := &PostgreSQL{db: db, migrator: &postgresMigrator{db: db}}
	if err := p.migrator.Migrate(ctx, 0); err != nil {
		db.Close()
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("migrate schema: %v", err))
	}
	return p, nil
}

func (p *PostgreSQL) Close() error { return p.db.Close() }

func (p *PostgreSQL) Put(ctx context.Context, j *job.Job) error {
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

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, name, trigger_kind, trigger_spec, pipeline_config,
			next_fire_time, last_fire_time, leased_until,
			coalesce_firings, max_instances, misfire_grace_seconds,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, NULL, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
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
		nullableTimePG(j.NextFireTime), nullableTimePG(j.LastFireTime),
		j.Coalesce, j.MaxInstances, j.MisfireGraceSeconds,
		createdAt.UTC(), now.UTC(),
	)
	if err != nil {
		return jobserr.StoreUnavailable(fmt.Sprintf("put job %q: %v", j.ID, err))
	}
	j.CreatedAt = createdAt
	j.UpdatedAt = now
	j.LeasedUntil = nil
	return nil
}

func (p *PostgreSQL) Get(ctx context.Context, id string) (*job.Job, error) {
	row := p.db.QueryRowContext(ctx, pgSelectColumns+" FROM jobs WHERE id = $1", id)
	j, err := scanJobPG(row)
	if err == sql.ErrNoRows {
		return nil, jobserr.NotFound("job " + id)
	}
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("get job %q: %v", id, err))
	}
	return j, nil
}

func (p *PostgreSQL) Delete(ctx context.Context, id string) error {
	res, err := p.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = $1", id)
	if err != nil {
		return jobserr.StoreUnavailable(fmt.Sprintf("delete job %q: %v", id, err))
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return jobserr.NotFound("job " + id)
	}
	return nil
}

func (p *PostgreSQL) List(ctx context.Context) ([]*job.Job, error) {
	rows, err := p.db.QueryContext(ctx, pgSelectColumns+" FROM jobs ORDER BY seq")
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("list jobs: %v", err))
	}
	defer rows.Close()
	return scanJobsPG(rows)
}

func (p *PostgreSQL) PeekEarliest(ctx context.Context) (*job.Job, error) {
	row := p.db.QueryRowContext(ctx, pgSelectColumns+`
		FROM jobs WHERE next_fire_time IS NOT NULL
		ORDER BY next_fire_time, id LIMIT 1`)
	j, err := scanJobPG(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("peek earliest: %v", err))
	}
	return j, nil
}

// AcquireDueJobs uses SELECT ... FOR UPDATE SKIP LOCKED so that multiple
// scheduler processes sharing one PostgreSQL database never double-claim a
// firing, the remote-backend analogue of the embedded backend's
// single-writer serialization.
func (p *PostgreSQL) AcquireDueJobs(ctx context.Context, now time.Time, maxN int) ([]*job.Job, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("begin acquire tx: %v", err))
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, pgSelectColumns+`
		FROM jobs
		WHERE next_fire_time IS NOT NULL AND next_fire_time <= $1
		  AND (leased_until IS NULL OR leased_until <= $1)
		ORDER BY next_fire_time, id LIMIT $2
		FOR UPDATE SKIP LOCKED`, now.UTC(), maxN)
	if err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("select due jobs: %v", err))
	}
	due, err := scanJobsPG(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	leasedUntil := now.Add(leaseDuration).UTC()
	for _, j := range due {
		if _, err := tx.ExecContext(ctx, "UPDATE jobs SET leased_until = $1 WHERE id = $2", leasedUntil, j.ID); err != nil {
			return nil, jobserr.StoreUnavailable(fmt.Sprintf("lease job %q: %v", j.ID, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, jobserr.StoreUnavailable(fmt.Sprintf("commit acquire tx: %v", err))
	}
	return due, nil
}

func (p *PostgreSQL) CountJobs(ctx context.Context) (int, error) {
	var n int
	if err := p.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs").Scan(&n); err != nil {
		return 0, jobserr.StoreUnavailable(err.Error())
	}
	return n, nil
}

func (p *PostgreSQL) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	if err := p.db.PingContext(ctx); err != nil {
		return HealthStatus{Healthy: false, Error: err.Error(), Latency: time.Since(start)}
	}
	var version string
	_ = p.db.QueryRowContext(ctx, "SHOW server_version").Scan(&version)
	st := p.db.Stats()
	return HealthStatus{
		Healthy:         true,
		Version:         version,
		Latency:         time.Since(start),
		OpenConnections: st.OpenConnections,
		InUse:           st.InUse,
		Idle:            st.Idle,
	}
}

type postgresMigrator struct {
	db *sql.DB
}

func (m *postgresMigrator) CurrentVersion(ctx context.Context) (int, error) {
	var version int
	err := m.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, nil
	}
	return version, nil
}

func (m *postgresMigrator) Migrate(ctx context.Context, _ int) error {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	if _, err := m.db.ExecContext(ctx, postgresJobsSchema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if current == 0 {
		if _, err := m.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (1) ON CONFLICT DO NOTHING"); err != nil {
			return fmt.Errorf("record migration: %w", err)
		}
	}
	return nil
}

func (m *postgresMigrator) NeedsMigration(ctx context.Context) (bool, error) {
	current, err := m.CurrentVersion(ctx)
	if err != nil {
		return false, err
	}
	return current < 1, nil
}

const postgresJobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
    seq                   BIGSERIAL,
    id                    TEXT PRIMARY KEY,
    name                  TEXT NOT NULL DEFAULT '',
    trigger_kind          TEXT NOT NULL,
    trigger_spec          TEXT NOT NULL,
    pipeline_config       TEXT NOT NULL DEFAULT '{}',
    next_fire_time        TIMESTAMPTZ,
    last_fire_time        TIMESTAMPTZ,
    leased_until          TIMESTAMPTZ,
    coalesce_firings      BOOLEAN NOT NULL DEFAULT true,
    max_instances         INTEGER NOT NULL DEFAULT 3,
    misfire_grace_seconds INTEGER NOT NULL DEFAULT 3600,
    created_at            TIMESTAMPTZ NOT NULL,
    updated_at            TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_next_fire ON jobs(next_fire_time);
`

const pgSelectColumns = `SELECT
	id, name, trigger_kind, trigger_spec, pipeline_config,
	next_fire_time, last_fire_time, leased_until,
	coalesce_firings, max_instances, misfire_grace_seconds,
	created_at, updated_at`

func scanJobPG(r rowScanner) (*job.Job, error) {
	var (
		id, name, triggerKind, triggerSpecJSON, pipelineConfigJSON string
		nextFireTime, lastFireTime, leasedUntil                    sql.NullTime
		coalesce                                                   bool
		maxInstances, misfireGrace                                 int
		createdAt, updatedAt                                       time.Time
	)
	if err := r.Scan(
		&id, &name, &triggerKind, &triggerSpecJSON, &pipelineConfigJSON,
		&nextFireTime, &lastFireTime, &leasedUntil,
		&coalesce, &maxInstances, &misfireGrace,
		&createdAt, &updatedAt,
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

	j := &job.Job{
		ID:                  id,
		Name:                name,
		Trigger:             trg,
		PipelineConfig:      cfg,
		Coalesce:            coalesce,
		MaxInstances:        maxInstances,
		MisfireGraceSeconds: misfireGrace,
		CreatedAt:           createdAt,
		UpdatedAt:           updatedAt,
	}
	if nextFireTime.Valid {
		t := nextFireTime.Time
		j.NextFireTime = &t
	}
	if lastFireTime.Valid {
		t := lastFireTime.Time
		j.LastFireTime = &t
	}
	if leasedUntil.Valid {
		t := leasedUntil.Time
		j.LeasedUntil = &t
	}
	return j, nil
}

func scanJobsPG(rows *sql.Rows) ([]*job.Job, error) {
	var out []*job.Job
	for rows.Next() {
		j, err := scanJobPG(rows)
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

func nullableTimePG(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
