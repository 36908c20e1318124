// Package observability provides structured logging, Prometheus metrics, health probes,
// graceful shutdown and OpenTelemetry tracing for the clubdues services.
//
// # Logging
//
//	logger := observability.NewLogger(observability.ParseLogLevel(cfg.Logging.Level), os.Stdout)
//	logger.WithOrganization(orgID).WithOperation("batch.create").Info("batch created")
//
// # Metrics
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.RecordBatchCreate("created", time.Since(start))
//
// All Record* methods are safe on a nil *Metrics.
//
// # Tracing
//
//	ctx, span := observability.StartSpan(ctx, "billing.Ledger.Create")
//	defer func() { observability.EndSpan(span, err) }()
//
// Spans go to the no-op provider until InitOTel installs an exporter.
package observability
