package observability

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPResponseSize    *prometheus.HistogramVec

	// Billing metrics
	BatchCreateTotal    *prometheus.CounterVec
	BatchCreateDuration prometheus.Histogram
	PaymentsCreated     prometheus.Counter
	BilledAmountTotal   *prometheus.CounterVec

	// Export metrics
	SEPAExportTotal        *prometheus.CounterVec
	SEPAExportTransactions prometheus.Histogram
	SEPAInvalidDebtors     prometheus.Counter
	ArchiveUploadsTotal    *prometheus.CounterVec

	// Database metrics
	DBConnectionsActive    *prometheus.GaugeVec
	DBConnectionsIdle      *prometheus.GaugeVec
	DBConnectionsWaitCount *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		// HTTP metrics
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clubdues_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clubdues_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		HTTPResponseSize: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "clubdues_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "route"},
		),

		// Billing metrics
		BatchCreateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clubdues_batch_create_total",
				Help: "Total number of batch creation attempts by outcome",
			},
			[]string{"result"},
		),
		BatchCreateDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clubdues_batch_create_duration_seconds",
				Help:    "Batch creation duration in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
		),
		PaymentsCreated: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clubdues_payments_created_total",
				Help: "Total number of payment lines written",
			},
		),
		BilledAmountTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clubdues_billed_amount_euros_total",
				Help: "Total amount billed in EUR by fee type",
			},
			[]string{"fee"},
		),

		// Export metrics
		SEPAExportTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clubdues_sepa_export_total",
				Help: "Total number of SEPA export attempts by outcome",
			},
			[]string{"result"},
		),
		SEPAExportTransactions: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "clubdues_sepa_export_transactions",
				Help:    "Number of direct-debit transactions per exported file",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
		SEPAInvalidDebtors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "clubdues_sepa_invalid_debtors_total",
				Help: "Total number of debtors that blocked an export",
			},
		),
		ArchiveUploadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "clubdues_archive_uploads_total",
				Help: "Total number of export archive uploads by status",
			},
			[]string{"status"},
		),

		// Database metrics
		DBConnectionsActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clubdues_db_connections_active",
				Help: "Number of in-use database connections per pool",
			},
			[]string{"pool"},
		),
		DBConnectionsIdle: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clubdues_db_connections_idle",
				Help: "Number of idle database connections per pool",
			},
			[]string{"pool"},
		),
		DBConnectionsWaitCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "clubdues_db_connections_wait_count",
				Help: "Total number of connections waited for per pool",
			},
			[]string{"pool"},
		),
	}

	// Register all metrics
	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPResponseSize,
		m.BatchCreateTotal,
		m.BatchCreateDuration,
		m.PaymentsCreated,
		m.BilledAmountTotal,
		m.SEPAExportTotal,
		m.SEPAExportTransactions,
		m.SEPAInvalidDebtors,
		m.ArchiveUploadsTotal,
		m.DBConnectionsActive,
		m.DBConnectionsIdle,
		m.DBConnectionsWaitCount,
	)

	return m
}

// RecordBatchCreate records the outcome of one batch creation attempt
func (m *Metrics) RecordBatchCreate(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.BatchCreateTotal.WithLabelValues(result).Inc()
	m.BatchCreateDuration.Observe(duration.Seconds())
}

// RecordBilled adds billed amounts of a created batch
func (m *Metrics) RecordBilled(payments int, membership, joiningFee, yearlyFee float64) {
	if m == nil {
		return
	}
	m.PaymentsCreated.Add(float64(payments))
	m.BilledAmountTotal.WithLabelValues("membership").Add(membership)
	m.BilledAmountTotal.WithLabelValues("joining_fee").Add(joiningFee)
	m.BilledAmountTotal.WithLabelValues("yearly_fee").Add(yearlyFee)
}

// RecordSEPAExport records the outcome of one export attempt
func (m *Metrics) RecordSEPAExport(result string, transactions int) {
	if m == nil {
		return
	}
	m.SEPAExportTotal.WithLabelValues(result).Inc()
	if transactions > 0 {
		m.SEPAExportTransactions.Observe(float64(transactions))
	}
}

// RecordInvalidDebtors counts debtors rejected by export validation
func (m *Metrics) RecordInvalidDebtors(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.SEPAInvalidDebtors.Add(float64(n))
}

// RecordArchiveUpload records an archive upload attempt
func (m *Metrics) RecordArchiveUpload(err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ArchiveUploadsTotal.WithLabelValues(status).Inc()
}

// UpdateDBStats copies the statistics of one connection pool into the gauges
func (m *Metrics) UpdateDBStats(pool string, stats sql.DBStats) {
	if m == nil {
		return
	}
	m.DBConnectionsActive.WithLabelValues(pool).Set(float64(stats.InUse))
	m.DBConnectionsIdle.WithLabelValues(pool).Set(float64(stats.Idle))
	m.DBConnectionsWaitCount.WithLabelValues(pool).Set(float64(stats.WaitCount))
}

// responseWriter wraps http.ResponseWriter to capture status code and size
type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics.
// routeOf maps a request to a low-cardinality route label.
func HTTPMetricsMiddleware(metrics *Metrics, routeOf func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rw := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(rw, r)

			route := r.URL.Path
			if routeOf != nil {
				route = routeOf(r)
			}
			duration := time.Since(start).Seconds()
			status := strconv.Itoa(rw.statusCode)

			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(duration)
			metrics.HTTPResponseSize.WithLabelValues(r.Method, route).Observe(float64(rw.bytesWritten))
		})
	}
}

// MetricsHandler serves the registry in the Prometheus exposition format
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
