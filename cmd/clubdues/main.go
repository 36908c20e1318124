package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/automaxprocs/maxprocs"

	"github.com/clubdues/clubdues/pkg/api"
	"github.com/clubdues/clubdues/pkg/archive"
	"github.com/clubdues/clubdues/pkg/audit"
	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/config"
	"github.com/clubdues/clubdues/pkg/members"
	"github.com/clubdues/clubdues/pkg/observability"
	"github.com/clubdues/clubdues/pkg/orgs"
	"github.com/clubdues/clubdues/pkg/sepa"
	"github.com/clubdues/clubdues/pkg/storage/postgres"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	migrate := flag.Bool("migrate", false, "Create the billing and audit tables before serving")
	flag.Parse()

	if err := run(*configPath, *migrate); err != nil {
		fmt.Fprintf(os.Stderr, "clubdues: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string, migrate bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(cfg.Observability.Level(), os.Stdout)
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Infof)); err != nil {
		logger.WithError(err).Warn("Failed to set GOMAXPROCS")
	}

	ctx := context.Background()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
	}

	otelCfg := cfg.Observability.OTel()
	if otelCfg.ServiceVersion == "" || otelCfg.ServiceVersion == "dev" {
		otelCfg.ServiceVersion = version
	}
	providers, err := observability.InitOTel(ctx, otelCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	conns, err := postgres.NewConnectionManager(ctx, cfg.Database.Connection(),
		postgres.WithLogger(logger),
		postgres.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	healthCtx, stopHealth := context.WithCancel(ctx)
	defer stopHealth()
	healthDone := conns.StartHealthCheckRoutine(healthCtx, cfg.Database.HealthCheckInterval)

	auditLogger, err := audit.NewDBLogger(conns.Primary())
	if err != nil {
		return err
	}

	if migrate {
		if err := billing.EnsureSchema(ctx, conns.Primary()); err != nil {
			return err
		}
		if err := auditLogger.EnsureTable(ctx); err != nil {
			return err
		}
		logger.Info("Database schema is up to date")
	}

	reads := replicaReader{conns: conns}
	// Settings are read from the primary so an export sees a save made just before it.
	settings := orgs.NewPostgresService(conns.Primary())

	ledger := billing.NewLedger(billing.NewPostgresStore(conns.Primary()), members.NewPostgresPricer(),
		billing.WithLogger(logger),
		billing.WithMetrics(metrics),
	)
	exporter := sepa.NewExporter(reads, settings,
		sepa.WithExportLogger(logger),
		sepa.WithExportMetrics(metrics),
	)

	deps := api.Dependencies{
		Creator:        ledger,
		Queries:        billing.NewQueryService(reads, logger),
		Exporter:       exporter,
		Settings:       settings,
		Audit:          auditLogger,
		Logger:         logger,
		Metrics:        metrics,
		ArchiveTimeout: cfg.Archive.Timeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}
	if cfg.Archive.Enabled {
		store, err := archive.NewS3Archive(ctx, archive.Config{
			Bucket:       cfg.Archive.Bucket,
			Region:       cfg.Archive.Region,
			Endpoint:     cfg.Archive.Endpoint,
			AccessKey:    cfg.Archive.AccessKey,
			SecretKey:    cfg.Archive.SecretKey,
			UsePathStyle: cfg.Archive.UsePathStyle,
		}, metrics)
		if err != nil {
			return fmt.Errorf("failed to initialize archive: %w", err)
		}
		deps.Archive = store
	}

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewServer(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	health := observability.NewHealthChecker(version).
		AddCheck("database", true, observability.DatabaseCheck(conns.Primary())).
		AddCheck("replicas", false, conns.HealthCheck)
	logger.WithField("checks", health.DependencyNames()).Debug("readiness checks registered")
	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/health/live", health.Liveness).Methods(http.MethodGet)
	healthRouter.HandleFunc("/health/ready", health.Readiness).Methods(http.MethodGet)
	healthRouter.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
	healthServer := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:           healthRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return conns.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		stopHealth()
		select {
		case <-healthDone:
		case <-ctx.Done():
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})
	shutdown.RegisterShutdownFunc(healthServer.Shutdown)

	serveErr := make(chan error, 2)
	go func() {
		logger.WithField("addr", healthServer.Addr).Info("Starting health server")
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("health server: %w", err)
		}
	}()
	go func() {
		logger.WithFields(map[string]interface{}{
			"addr":    server.Addr,
			"version": version,
		}).Info("Starting clubdues API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("api server: %w", err)
		}
	}()

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- shutdown.WaitForShutdown()
	}()

	select {
	case err := <-waitErr:
		return err
	case err := <-serveErr:
		logger.WithError(err).Error("Server stopped unexpectedly")
		if shutdownErr := shutdown.Shutdown(); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	}
}
