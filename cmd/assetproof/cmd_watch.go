package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/coachpo/assetproof/internal/app/batch"
	"github.com/coachpo/assetproof/internal/infra/config"
)

func newWatchCmd(flags *globalFlags) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Periodically process the inbox directory on the configured schedule",
		Long: `watch runs a batch over watch.inbox on every tick of watch.schedule (default @every 30m),
writing records to watch.outbox and moving processed inputs to <inbox>/done. The config file is
re-read on every tick; schedule changes need a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := bootstrap(ctx, flags)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			w, err := newWatcher(app, flags.configPath)
			if err != nil {
				return err
			}
			if once {
				return w.tick(ctx)
			}
			return w.run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process the inbox once and exit")
	return cmd
}

type watcher struct {
	app    *application
	store  *config.AppConfigStore
	runner atomic.Pointer[batch.Runner]
}

func newWatcher(app *application, configPath string) (*watcher, error) {
	w := &watcher{app: app}
	store, err := config.NewAppConfigStore(app.cfg, configPath, w.apply)
	if err != nil {
		return nil, err
	}
	w.store = store
	if err := w.apply(app.cfg); err != nil {
		return nil, err
	}
	return w, nil
}

// apply rebuilds the batch runner from cfg.
func (w *watcher) apply(cfg config.AppConfig) error {
	assembler, err := buildAssembler(cfg, w.app.logger, w.app.telemetry)
	if err != nil {
		return err
	}
	runner, err := batch.NewRunner(batch.Options{
		Processor: assembler,
		Store:     w.app.recordStore(),
		Logger:    &w.app.logger,
		Workers:   cfg.Watch.Workers,
		Archive:   true,
	})
	if err != nil {
		return err
	}
	w.runner.Store(runner)
	return nil
}

func (w *watcher) tick(ctx context.Context) error {
	if changed, err := w.store.Reload(ctx); err != nil {
		w.app.logger.Warn().Err(err).Msg("config reload rejected, keeping previous snapshot")
	} else if changed {
		w.app.logger.Info().Msg("configuration reloaded")
	}

	snapshot := w.store.Snapshot().Watch
	if err := os.MkdirAll(snapshot.Inbox, 0o755); err != nil {
		return fmt.Errorf("create inbox: %w", err)
	}
	summary, err := w.runner.Load().Run(ctx, snapshot.Inbox, snapshot.Outbox)
	if err != nil {
		w.app.logger.Error().Err(err).Str("inbox", snapshot.Inbox).Msg("watch tick failed")
		return err
	}
	for _, r := range summary.Results {
		if r.Err != nil {
			w.app.logger.Warn().Err(r.Err).Str("input", r.Input).Msg("input failed")
		}
	}
	return nil
}

func (w *watcher) run(ctx context.Context) error {
	logger := cronLogger{logger: w.app.logger.With().Str("component", "watch").Logger()}
	scheduler := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	schedule := w.store.Snapshot().Watch.Schedule
	if _, err := scheduler.AddFunc(schedule, func() { _ = w.tick(ctx) }); err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}

	_ = w.tick(ctx)
	scheduler.Start()
	w.app.logger.Info().Str("schedule", schedule).Msg("watch started; awaiting shutdown signal")

	<-ctx.Done()
	w.app.logger.Info().Msg("shutdown signal received, waiting for running ticks")
	w.app.shutdownStep(ctx, "stopping scheduler", lifecycleShutdownTimeout, func(stepCtx context.Context) error {
		stopped := scheduler.Stop()
		select {
		case <-stopped.Done():
			return nil
		case <-stepCtx.Done():
			return fmt.Errorf("timeout waiting for ticks: %w", stepCtx.Err())
		}
	})
	return nil
}

// cronLogger adapts zerolog to the cron.Logger interface.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
