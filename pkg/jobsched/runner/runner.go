package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/jobsched/pkg/jobsched/events"
	"github.com/jholhewres/jobsched/pkg/jobsched/job"
)

// maxCapturedOutput bounds how much of a child's stdout/stderr is kept in
// memory; anything past this is dropped and the record notes the overflow
// (§4.5 step 2).
const maxCapturedOutput = 1 << 20 // 1 MiB

// Runner is JobRunner: it spawns the pipeline binary, waits with the
// firing's deadline, and emits exactly one terminal event per invocation.
type Runner struct {
	binaryPath   string
	artifactsDir string
	bus          *events.Bus
	logger       *slog.Logger
	defaults     PipelineDefaults
}

// New builds a Runner. binaryPath is the pipeline executable invoked for
// every firing; artifactsDir receives one JobExecutionRecord file per
// firing.
func New(binaryPath, artifactsDir string, bus *events.Bus, defaults PipelineDefaults, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		binaryPath:   binaryPath,
		artifactsDir: artifactsDir,
		bus:          bus,
		logger:       logger,
		defaults:     defaults,
	}
}

// Run executes one firing of j. It never returns an error to the caller —
// every outcome becomes a published event and a JobExecutionRecord file,
// per §4.5's "JobRunner never raises to the WorkerPool" contract.
func (r *Runner) Run(ctx context.Context, j *job.Job) error {
	argv := BuildArgv(j.PipelineConfig, r.defaults)
	firedAt := time.Now()

	cmd := exec.CommandContext(ctx, r.binaryPath, argv...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := newBoundedBuffer(maxCapturedOutput)
	stderr := newBoundedBuffer(maxCapturedOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	// Context cancellation only signals the direct child; killing the
	// whole process group catches anything it forked before exiting.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return os.ErrProcessDone
		}
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	runErr := cmd.Run()
	finishedAt := time.Now()

	record := job.ExecutionRecord{
		ID:         uuid.NewString(),
		JobID:      j.ID,
		FiredAt:    firedAt,
		FinishedAt: finishedAt,
	}

	switch {
	case runErr == nil:
		record.Outcome = job.OutcomeSuccess
		record.Message = job.TruncateMessage(stdout.String())
		r.logger.Info("job firing succeeded", "job_id", j.ID, "duration", finishedAt.Sub(firedAt))
		r.publish(events.Event{Kind: events.KindExecuted, JobID: j.ID, Timestamp: finishedAt, Outcome: record.Outcome})

	case ctx.Err() == context.DeadlineExceeded:
		record.Outcome = job.OutcomeTimeout
		record.Message = job.TruncateMessage(stderr.String())
		r.logger.Error("job firing timed out", "job_id", j.ID, "error", runErr)
		r.publish(events.Event{Kind: events.KindFailed, JobID: j.ID, Timestamp: finishedAt, Outcome: record.Outcome, Message: record.Message})

	default:
		if cmd.ProcessState == nil {
			// Binary missing or not executable: the process never started.
			record.Message = job.TruncateMessage(fmt.Sprintf("spawn failed: %v", runErr))
		} else {
			record.Message = job.TruncateMessage(stderr.String())
		}
		record.Outcome = job.OutcomeFailure
		r.logger.Error("job firing failed", "job_id", j.ID, "error", runErr)
		r.publish(events.Event{Kind: events.KindFailed, JobID: j.ID, Timestamp: finishedAt, Outcome: record.Outcome, Message: record.Message})
	}

	if err := r.writeRecord(record); err != nil {
		r.logger.Error("failed to write job execution record", "job_id", j.ID, "error", err)
	}
	return nil
}

func (r *Runner) publish(evt events.Event) {
	if r.bus != nil {
		r.bus.Publish(evt)
	}
}

func (r *Runner) writeRecord(record job.ExecutionRecord) error {
	if r.artifactsDir == "" {
		return nil
	}
	if err := os.MkdirAll(r.artifactsDir, 0o755); err != nil {
		return fmt.Errorf("create artifacts dir: %w", err)
	}

	name := fmt.Sprintf("job_report_%s_%s.json", record.JobID, record.FiredAt.UTC().Format("20060102_150405"))
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	return os.WriteFile(filepath.Join(r.artifactsDir, name), data, 0o644)
}

// boundedBuffer caps how many bytes of child output it retains; bytes past
// the limit are dropped and Truncated is set, matching §4.5's "bounded
// buffer (<= 1 MiB each); overflow is dropped and flagged".
type boundedBuffer struct {
	mu        sync.Mutex
	limit     int
	buf       []byte
	Truncated bool
}

func newBoundedBuffer(limit int) *boundedBuffer {
	return &boundedBuffer{limit: limit}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	remaining := b.limit - len(b.buf)
	if remaining <= 0 {
		b.Truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		b.buf = append(b.buf, p[:remaining]...)
		b.Truncated = true
		return len(p), nil
	}
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
