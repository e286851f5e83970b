package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jholhewres/jobsched/pkg/jobsched/api"
	"github.com/jholhewres/jobsched/pkg/jobsched/bootstrap"
	"github.com/jholhewres/jobsched/pkg/jobsched/clock"
	"github.com/jholhewres/jobsched/pkg/jobsched/pool"
	"github.com/jholhewres/jobsched/pkg/jobsched/runner"
	"github.com/jholhewres/jobsched/pkg/jobsched/scheduler"
)

// newServeCmd creates the `jobsched serve` command: the one blocking entry
// point, always running the non-blocking scheduler loop underneath and
// simply waiting on a shutdown signal (§9 collapses the source's separate
// background/blocking schedulers into this single strategy).
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler loop until signaled to stop",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.Default()

	rt, err := newRuntime(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	workerPool := pool.New(context.Background(), rt.cfg.Pool.MaxWorkers, rt.cfg.Pool.TaskTimeout, logger)
	jobRunner := runner.New(rt.cfg.Pipeline.BinaryPath, rt.cfg.Pipeline.ArtifactsDir, rt.bus, rt.cfg.Pipeline.Defaults, logger)

	sched := scheduler.New(scheduler.Config{
		Store:      rt.store,
		Pool:       workerPool,
		Runner:     jobRunner,
		Bus:        rt.bus,
		Clock:      clock.System{},
		Logger:     logger,
		MaxWorkers: rt.cfg.Pool.MaxWorkers,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bootstrap.Bootstrap(ctx, rt.store, rt.cfg.Bootstrap.Enabled, rt.cfg.BootstrapDefaults(), rt.cfg.Bootstrap.MarkerPath, logger); err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	facade := api.New(rt.store, sched, rt.aggregator, clock.System{}, logger)

	logger.Info("jobsched running, press Ctrl+C to stop")

	healthTicker := time.NewTicker(rt.cfg.Pool.HealthLogInterval)
	defer healthTicker.Stop()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

loop:
	for {
		select {
		case <-sigChan:
			break loop
		case <-healthTicker.C:
			report := facade.HealthCheck(ctx)
			logger.Info("scheduler health", "verdict", report.Verdict, "total_jobs", report.TotalJobs,
				"executed", report.Stats.Executed, "failed", report.Stats.Failed, "missed", report.Stats.Missed)
		}
	}

	logger.Info("shutdown signal received, stopping")

	done := make(chan struct{})
	go func() {
		_ = sched.Shutdown(true)
		close(done)
	}()

	select {
	case <-done:
		logger.Info("shutdown complete")
	case <-time.After(rt.cfg.Pool.ShutdownGrace):
		logger.Warn("shutdown timed out, forcing exit")
	}
	return nil
}
