package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/coachpo/assetproof/internal/app/pipeline"
	"github.com/coachpo/assetproof/internal/app/processor"
	"github.com/coachpo/assetproof/internal/domain/recordstore"
	"github.com/coachpo/assetproof/internal/infra/attestation"
	"github.com/coachpo/assetproof/internal/infra/config"
	"github.com/coachpo/assetproof/internal/infra/persistence"
	"github.com/coachpo/assetproof/internal/infra/persistence/migrations"
	"github.com/coachpo/assetproof/internal/infra/persistence/postgres"
	"github.com/coachpo/assetproof/internal/infra/telemetry"
	"github.com/coachpo/assetproof/internal/logging"
)

const (
	shutdownTimeout          = 30 * time.Second
	serverShutdownTimeout    = 5 * time.Second
	lifecycleShutdownTimeout = 10 * time.Second
	telemetryShutdownTimeout = 5 * time.Second
	databaseShutdownTimeout  = 2 * time.Second
	serverReadHeaderTimeout  = 5 * time.Second
)

// application bundles the long-lived collaborators shared by the commands.
type application struct {
	cfg       config.AppConfig
	logger    zerolog.Logger
	telemetry *telemetry.Provider
	assembler *pipeline.Assembler
	db        *postgres.Store
}

func bootstrap(ctx context.Context, flags *globalFlags) (*application, error) {
	cfg, err := config.LoadOrDefault(ctx, flags.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	logger.Debug().
		Str("env", string(cfg.Environment)).
		Bool("record_store", cfg.Database.Enabled()).
		Msg("configuration initialised")

	provider, err := initTelemetry(ctx, logger, cfg)
	if err != nil {
		return nil, err
	}
	app := &application{cfg: cfg, logger: logger, telemetry: provider, assembler: nil, db: nil}

	app.assembler, err = buildAssembler(cfg, logger, provider)
	if err != nil {
		app.close(ctx)
		return nil, err
	}

	if cfg.Database.Enabled() {
		if app.db, err = openDatabase(ctx, cfg, logger, provider); err != nil {
			app.close(ctx)
			return nil, err
		}
	}
	return app, nil
}

func initTelemetry(ctx context.Context, logger zerolog.Logger, cfg config.AppConfig) (*telemetry.Provider, error) {
	telemetryCfg := telemetry.DefaultConfig()
	telemetryCfg.Enabled = cfg.Telemetry.Enabled
	if cfg.Telemetry.OTLPEndpoint != "" {
		telemetryCfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	if cfg.Telemetry.ServiceName != "" {
		telemetryCfg.ServiceName = cfg.Telemetry.ServiceName
	}
	telemetryCfg.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	telemetryCfg.MetricInterval = cfg.Telemetry.MetricInterval
	telemetryCfg.Environment = string(cfg.Environment)

	provider, err := telemetry.NewProvider(ctx, telemetryCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize telemetry provider: %w", err)
	}
	if telemetryCfg.Enabled {
		logger.Info().
			Str("endpoint", telemetryCfg.OTLPEndpoint).
			Str("service", telemetryCfg.ServiceName).
			Msg("telemetry initialized")
	} else {
		logger.Debug().Msg("telemetry disabled")
	}
	return provider, nil
}

func buildAssembler(cfg config.AppConfig, logger zerolog.Logger, provider *telemetry.Provider) (*pipeline.Assembler, error) {
	registry, err := processor.NewDefaultRegistry(cfg.Endpoints)
	if err != nil {
		return nil, fmt.Errorf("build product table: %w", err)
	}
	return pipeline.New(pipeline.Options{
		Verifier:    attestation.NewVerifier(),
		Registry:    registry,
		Logger:      &logger,
		Metrics:     pipeline.NewMetrics(provider.Meter("assetproof.pipeline"), provider.Environment()),
		Version:     cfg.Record.Version,
		ProjectID:   cfg.Record.ProjectID,
		Stablecoins: cfg.Aggregation.Stablecoins,
		Epsilon:     cfg.Aggregation.Epsilon,
	})
}

func openDatabase(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, provider *telemetry.Provider) (*postgres.Store, error) {
	if cfg.Database.RunMigrations {
		if err := migrations.Apply(ctx, cfg.Database.DSN, "", &logger); err != nil {
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	base, err := persistence.Open(ctx, cfg.Database.DSN, persistence.PoolOptions{
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthCheckPeriod,
	})
	if err != nil {
		return nil, err
	}
	store := postgres.New(base.Pool())
	if err := postgres.ObservePoolMetrics(provider.Meter("postgres.pool"), store.Pool(), "primary", provider.Environment()); err != nil {
		logger.Warn().Err(err).Msg("pool metrics unavailable")
	}
	logger.Info().Int32("max_conns", cfg.Database.MaxConns).Msg("record store connected")
	return store, nil
}

// recordStore returns the configured store, or nil when persistence is disabled.
func (a *application) recordStore() recordstore.Store {
	if a.db == nil {
		return nil
	}
	return a.db.Records()
}

func (a *application) close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.db != nil {
		a.shutdownStep(ctx, "closing record store", databaseShutdownTimeout, func(context.Context) error {
			a.db.Close()
			return nil
		})
	}
	if a.telemetry != nil {
		a.shutdownStep(ctx, "shutting down telemetry", telemetryShutdownTimeout, a.telemetry.Shutdown)
	}
}

func (a *application) shutdownStep(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) {
	stepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := fn(stepCtx); err != nil {
		a.logger.Warn().Err(err).Str("step", name).Msg("shutdown step failed")
		return
	}
	a.logger.Debug().Str("step", name).Msg("shutdown step completed")
}
