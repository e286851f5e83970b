package commands

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jholhewres/jobsched/pkg/jobsched/api"
	"github.com/jholhewres/jobsched/pkg/jobsched/clock"
	"github.com/jholhewres/jobsched/pkg/jobsched/config"
	"github.com/jholhewres/jobsched/pkg/jobsched/events"
	"github.com/jholhewres/jobsched/pkg/jobsched/stats"
	"github.com/jholhewres/jobsched/pkg/jobsched/store"
)

// runtime bundles every collaborator a command needs, built from a loaded
// Config. close() releases store resources; it does not stop a scheduler
// loop, since one-shot commands never start one.
type runtime struct {
	cfg        config.Config
	store      store.JobStore
	bus        *events.Bus
	aggregator *stats.Aggregator
	facade     *api.Facade
	logger     *slog.Logger
}

func (r *runtime) close() {
	r.aggregator.Stop()
	_ = r.store.Close()
}

// loadConfig reads the --config flag (falling back to in-memory defaults
// when unset) the way rootCmd's PersistentFlags().StringP("config", "c", ...)
// pattern is consumed everywhere else in this CLI.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(path)
}

// newRuntime wires store, events, stats, and the API facade for a one-shot
// CLI command. It does not start the scheduler loop.
func newRuntime(ctx context.Context, cmd *cobra.Command) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()

	st, err := store.Open(ctx, cfg.Store.URL)
	if err != nil {
		return nil, err
	}

	bus := events.New(logger)
	aggregator := stats.Start(bus)
	facade := api.New(st, nil, aggregator, clock.System{}, logger)

	return &runtime{cfg: cfg, store: st, bus: bus, aggregator: aggregator, facade: facade, logger: logger}, nil
}
