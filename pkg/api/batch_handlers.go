package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/clubdues/clubdues/pkg/async"
	"github.com/clubdues/clubdues/pkg/audit"
	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/httputil"
	"github.com/clubdues/clubdues/pkg/observability"
)

const xmlContentType = "application/xml"

// BatchHandlers handles payment batch requests. The organization id in the path has been
// resolved and authorized by the upstream gateway.
type BatchHandlers struct {
	creator  billing.BatchCreator
	queries  BatchQuerier
	exporter BatchExporter
	archive  Archiver
	deps     Dependencies
}

// NewBatchHandlers creates a new BatchHandlers
func NewBatchHandlers(deps Dependencies) *BatchHandlers {
	return &BatchHandlers{
		creator:  deps.Creator,
		queries:  deps.Queries,
		exporter: deps.Exporter,
		archive:  deps.Archive,
		deps:     deps,
	}
}

// RegisterRoutes registers batch routes
func (h *BatchHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/billing/batches", h.CreateBatch).Methods("POST")
	router.HandleFunc("/orgs/{org_id}/billing/batches", h.ListBatches).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/billing/batches/{batch_id}", h.GetBatch).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/billing/batches/{batch_id}/sepa", h.ExportSEPA).Methods("GET")
}

// CreateBatchRequest is the body of a create call
type CreateBatchRequest struct {
	BillingMonth string  `json:"billing_month" validate:"required,datetime=2006-01-02"`
	Notes        *string `json:"notes,omitempty" validate:"omitempty,max=500"`
}

// CreateBatch handles POST /orgs/{org_id}/billing/batches
func (h *BatchHandlers) CreateBatch(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "org_id")
	if !ok {
		return
	}

	var req CreateBatchRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	billingMonth, err := billing.ParseBillingMonth(req.BillingMonth)
	if err != nil {
		WriteBillingError(w, err)
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeBatchCreate, orgID, audit.EventStatusSuccess)
	event.Metadata["billing_month"] = req.BillingMonth

	result, err := h.creator.Create(r.Context(), &billing.CreateBatchRequest{
		OrganizationID: orgID,
		BillingMonth:   billingMonth,
		Notes:          req.Notes,
	})
	if err != nil {
		recordFailure(r.Context(), event, err)
		WriteBillingError(w, err)
		return
	}

	event.ResourceType = audit.ResourceTypeBatch
	event.ResourceID = result.Batch.ID.String()
	event.Message = "payment batch " + result.Batch.BatchNumber + " created"
	event.Metadata["transaction_count"] = result.Summary.TransactionCount
	event.Metadata["total_amount"] = result.Summary.TotalAmount.String()
	audit.Record(r.Context(), event)

	httputil.WriteCreated(w, result)
}

// ListBatches handles GET /orgs/{org_id}/billing/batches
func (h *BatchHandlers) ListBatches(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "org_id")
	if !ok {
		return
	}

	batches, err := h.queries.List(r.Context(), orgID)
	if err != nil {
		WriteBillingError(w, err)
		return
	}
	if batches == nil {
		batches = []*billing.PaymentBatch{}
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"batches": batches,
		"count":   len(batches),
	})
}

// GetBatch handles GET /orgs/{org_id}/billing/batches/{batch_id}
func (h *BatchHandlers) GetBatch(w http.ResponseWriter, r *http.Request) {
	orgID, batchID, ok := batchPath(w, r)
	if !ok {
		return
	}

	view, err := h.queries.View(r.Context(), orgID, batchID)
	if err != nil {
		WriteBillingError(w, err)
		return
	}

	httputil.WriteSuccess(w, view)
}

// ExportSEPA handles GET /orgs/{org_id}/billing/batches/{batch_id}/sepa. The document is
// returned as a download; a copy is archived in the background when an archive is configured.
func (h *BatchHandlers) ExportSEPA(w http.ResponseWriter, r *http.Request) {
	orgID, batchID, ok := batchPath(w, r)
	if !ok {
		return
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeSEPAExport, orgID, audit.EventStatusSuccess)
	event.ResourceType = audit.ResourceTypeBatch
	event.ResourceID = batchID.String()

	export, err := h.exporter.Export(r.Context(), orgID, batchID)
	if err != nil {
		recordFailure(r.Context(), event, err)
		WriteBillingError(w, err)
		return
	}

	event.Message = "SEPA file " + export.FileName + " exported"
	event.Metadata["transaction_count"] = export.TransactionCount
	event.Metadata["control_sum"] = export.ControlSum.String()
	audit.Record(r.Context(), event)

	if err := httputil.WriteAttachment(w, xmlContentType, export.FileName, export.XML); err != nil {
		observability.FromContext(r.Context()).WithError(err).Warn("failed to write SEPA file")
	}

	h.archiveExport(r.Context(), orgID, export.FileName, export.XML)
}

func (h *BatchHandlers) archiveExport(ctx context.Context, orgID uuid.UUID, fileName string, body []byte) {
	if h.archive == nil {
		return
	}
	logger := observability.FromContext(ctx).WithOrganization(orgID).WithField("file_name", fileName)
	async.SafeGo(context.WithoutCancel(ctx), logger, h.deps.ArchiveTimeout, "archive SEPA export",
		func(ctx context.Context) error {
			return h.archive.Put(ctx, orgID, fileName, body)
		})
}

func batchPath(w http.ResponseWriter, r *http.Request) (orgID, batchID uuid.UUID, ok bool) {
	if orgID, ok = httputil.ParsePathUUIDOrError(w, r, "org_id"); !ok {
		return uuid.Nil, uuid.Nil, false
	}
	if batchID, ok = httputil.ParsePathUUIDOrError(w, r, "batch_id"); !ok {
		return uuid.Nil, uuid.Nil, false
	}
	return orgID, batchID, true
}

// recordFailure audits a failed operation. User-correctable failures are "rejected".
func recordFailure(ctx context.Context, event *audit.AuditEvent, err error) {
	event.Status = audit.EventStatusRejected
	if billing.KindOf(err) == billing.KindInternal {
		event.Status = audit.EventStatusFailure
	}
	event.Metadata["error_kind"] = string(billing.KindOf(err))
	event.ErrorMessage = err.Error()
	audit.Record(ctx, event)
}
