package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/clubdues/clubdues/pkg/audit"
	"github.com/clubdues/clubdues/pkg/httputil"
	"github.com/clubdues/clubdues/pkg/observability"
)

const (
	defaultAuditLimit = 50
	maxAuditLimit     = 500
)

// AuditHandlers expose the audit trail of an organization
type AuditHandlers struct {
	searcher AuditSearcher
}

// NewAuditHandlers creates a new AuditHandlers
func NewAuditHandlers(searcher AuditSearcher) *AuditHandlers {
	return &AuditHandlers{searcher: searcher}
}

// RegisterRoutes registers audit routes
func (h *AuditHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/audit-events", h.ListEvents).Methods("GET")
}

// ListEvents handles GET /orgs/{org_id}/audit-events?event_type=&status=&resource_id=&limit=
func (h *AuditHandlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "org_id")
	if !ok {
		return
	}

	limit, err := strconv.Atoi(httputil.ParseQueryString(r, "limit", strconv.Itoa(defaultAuditLimit)))
	if err != nil || limit < 1 || limit > maxAuditLimit {
		httputil.WriteBadRequest(w, "limit must be between 1 and 500")
		return
	}

	filter := audit.SearchFilter{
		OrganizationID: &orgID,
		ResourceID:     r.URL.Query().Get("resource_id"),
		Limit:          limit,
	}
	for _, et := range r.URL.Query()["event_type"] {
		filter.EventTypes = append(filter.EventTypes, audit.EventType(et))
	}
	if status := r.URL.Query().Get("status"); status != "" {
		s := audit.EventStatus(status)
		filter.Status = &s
	}

	events, err := h.searcher.Search(r.Context(), filter)
	if err != nil {
		observability.FromContext(r.Context()).WithOrganization(orgID).WithError(err).Error("failed to search audit events")
		httputil.WriteInternalError(w)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"events": events,
		"count":  len(events),
	})
}
