package main

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	httpserver "github.com/coachpo/assetproof/internal/infra/server/http"
)

func newServeCmd(flags *globalFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the record API over HTTP",
		Long: `serve exposes POST /v1/records, GET /v1/records/{id}, GET /v1/records, /healthz and
/metrics. Records are stored when database.dsn is configured.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			app, err := bootstrap(ctx, flags)
			if err != nil {
				return err
			}
			defer app.close(ctx)

			if addr != "" {
				app.cfg.Server.Addr = addr
			}
			server, err := buildAPIServer(app)
			if err != nil {
				return err
			}

			var lifecycle conc.WaitGroup
			serveErr := make(chan error, 1)
			lifecycle.Go(func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			})
			app.logger.Info().Str("addr", server.Addr).Msg("record API listening")

			select {
			case <-ctx.Done():
				app.logger.Info().Msg("shutdown signal received, initiating graceful shutdown")
			case err := <-serveErr:
				app.logger.Error().Err(err).Msg("record API stopped")
				lifecycle.Wait()
				return err
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			app.shutdownStep(shutdownCtx, "stopping record API", serverShutdownTimeout, server.Shutdown)
			lifecycle.Wait()
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default: server.addr from config)")
	return cmd
}

func buildAPIServer(app *application) (*http.Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	handler, err := httpserver.NewHandler(httpserver.Options{
		Processor:    app.assembler,
		Store:        app.recordStore(),
		Logger:       &app.logger,
		Registry:     registry,
		RateLimit:    app.cfg.Server.RateLimit,
		RateBurst:    app.cfg.Server.RateBurst,
		MaxBodyBytes: app.cfg.Server.MaxBodyBytes,
	})
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              app.cfg.Server.Addr,
		Handler:           handler,
		ReadTimeout:       app.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: serverReadHeaderTimeout,
	}, nil
}
