package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/clubdues/clubdues/pkg/audit"
	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/httputil"
	"github.com/clubdues/clubdues/pkg/observability"
	"github.com/clubdues/clubdues/pkg/orgs"
	"github.com/clubdues/clubdues/pkg/sepa"
)

const (
	defaultArchiveTimeout = 30 * time.Second
	defaultMaxBodyBytes   = 1 << 20
)

// BatchQuerier lists and views batches
type BatchQuerier interface {
	List(ctx context.Context, orgID uuid.UUID) ([]*billing.PaymentBatch, error)
	View(ctx context.Context, orgID, batchID uuid.UUID) (*billing.BatchView, error)
}

// BatchExporter renders a batch as a pain.008 document
type BatchExporter interface {
	Export(ctx context.Context, orgID, batchID uuid.UUID) (*sepa.Export, error)
}

// Archiver keeps a copy of successful exports
type Archiver interface {
	Put(ctx context.Context, orgID uuid.UUID, fileName string, body []byte) error
}

// SettingsStore reads and writes the creditor profile of an organization
type SettingsStore interface {
	orgs.SettingsReader
	SaveSEPASettings(ctx context.Context, settings *orgs.CreditorSettings) error
}

// AuditSearcher queries the audit trail
type AuditSearcher interface {
	Search(ctx context.Context, filter audit.SearchFilter) ([]*audit.AuditEvent, error)
}

// Dependencies are the collaborators of the API server. Settings, Archive and Audit are
// optional; their routes or side effects are skipped when nil.
type Dependencies struct {
	Creator  billing.BatchCreator
	Queries  BatchQuerier
	Exporter BatchExporter
	Settings SettingsStore
	Archive  Archiver
	Audit    audit.Logger
	Logger   *observability.Logger
	Metrics  *observability.Metrics

	ArchiveTimeout time.Duration
	MaxBodyBytes   int64
}

// Server is the billing HTTP API
type Server struct {
	router  *mux.Router
	handler http.Handler
	deps    Dependencies
}

// NewServer wires routes and middleware
func NewServer(deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = observability.NewNopLogger()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopLogger{}
	}
	if deps.ArchiveTimeout <= 0 {
		deps.ArchiveTimeout = defaultArchiveTimeout
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}

	s := &Server{
		router: mux.NewRouter(),
		deps:   deps,
	}
	s.setupRoutes()

	s.handler = httputil.Chain(
		httputil.RequestIDMiddleware(deps.Logger),
		ActorMiddleware,
		AuditMiddleware(deps.Audit),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.MaxBytesMiddleware(deps.MaxBodyBytes),
		httputil.ContentTypeMiddleware,
	)(s.router)
	s.handler = otelhttp.NewHandler(s.handler, "clubdues.api")

	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	if s.deps.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.deps.Metrics, routeTemplate))
	}
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFoundError(w, "route not found")
	})

	NewBatchHandlers(s.deps).RegisterRoutes(s.router)

	if s.deps.Settings != nil {
		NewSettingsHandlers(s.deps.Settings).RegisterRoutes(s.router)
	}

	if searcher, ok := s.deps.Audit.(AuditSearcher); ok {
		NewAuditHandlers(searcher).RegisterRoutes(s.router)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// routeTemplate labels metrics by route pattern so ids do not explode cardinality
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}
