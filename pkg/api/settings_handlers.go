package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/clubdues/clubdues/pkg/audit"
	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/httputil"
	"github.com/clubdues/clubdues/pkg/observability"
	"github.com/clubdues/clubdues/pkg/orgs"
	"github.com/clubdues/clubdues/pkg/sepa"
)

// SettingsHandlers manage the SEPA creditor profile of an organization
type SettingsHandlers struct {
	store SettingsStore
}

// NewSettingsHandlers creates a new SettingsHandlers
func NewSettingsHandlers(store SettingsStore) *SettingsHandlers {
	return &SettingsHandlers{store: store}
}

// RegisterRoutes registers settings routes
func (h *SettingsHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/orgs/{org_id}/settings/sepa", h.GetSettings).Methods("GET")
	router.HandleFunc("/orgs/{org_id}/settings/sepa", h.UpdateSettings).Methods("PUT")
}

// SettingsRequest is the body of a settings update
type SettingsRequest struct {
	CreditorName         string  `json:"creditor_name" validate:"required,max=70"`
	CreditorIBAN         string  `json:"creditor_iban" validate:"required"`
	CreditorBIC          string  `json:"creditor_bic" validate:"required"`
	CreditorID           string  `json:"creditor_id" validate:"required,max=35"`
	InitiatorName        *string `json:"initiator_name,omitempty" validate:"omitempty,max=70"`
	BatchBooking         *bool   `json:"batch_booking,omitempty"`
	RemittanceMembership *string `json:"remittance_membership,omitempty" validate:"omitempty,max=140"`
	RemittanceJoiningFee *string `json:"remittance_joining_fee,omitempty" validate:"omitempty,max=140"`
	RemittanceYearlyFee  *string `json:"remittance_yearly_fee,omitempty" validate:"omitempty,max=140"`
}

// GetSettings handles GET /orgs/{org_id}/settings/sepa
func (h *SettingsHandlers) GetSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "org_id")
	if !ok {
		return
	}

	settings, err := h.store.GetSEPASettings(r.Context(), orgID)
	if errors.Is(err, orgs.ErrSettingsNotFound) {
		WriteBillingError(w, billing.NotFound("organization has no SEPA settings"))
		return
	}
	if err != nil {
		observability.FromContext(r.Context()).WithOrganization(orgID).WithError(err).Error("failed to load SEPA settings")
		WriteBillingError(w, err)
		return
	}

	httputil.WriteSuccess(w, settings)
}

// UpdateSettings handles PUT /orgs/{org_id}/settings/sepa. Account identifiers are
// checksum-validated so that a later export does not fail on them.
func (h *SettingsHandlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	orgID, ok := httputil.ParsePathUUIDOrError(w, r, "org_id")
	if !ok {
		return
	}

	var req SettingsRequest
	if !httputil.DecodeAndValidate(w, r, &req) {
		return
	}

	if invalid := invalidAccountFields(&req); len(invalid) > 0 {
		err := billing.InvalidInput("invalid creditor account data")
		err.Details = invalid
		WriteBillingError(w, err)
		return
	}

	settings := &orgs.CreditorSettings{
		OrganizationID:       orgID,
		CreditorName:         req.CreditorName,
		CreditorIBAN:         sepa.NormalizeIBAN(req.CreditorIBAN),
		CreditorBIC:          sepa.NormalizeBIC(req.CreditorBIC),
		CreditorID:           sepa.NormalizeIBAN(req.CreditorID),
		InitiatorName:        req.InitiatorName,
		BatchBooking:         req.BatchBooking,
		RemittanceMembership: req.RemittanceMembership,
		RemittanceJoiningFee: req.RemittanceJoiningFee,
		RemittanceYearlyFee:  req.RemittanceYearlyFee,
	}

	event := audit.NewEvent(r.Context(), audit.EventTypeSettingsUpdate, orgID, audit.EventStatusSuccess)
	if err := h.store.SaveSEPASettings(r.Context(), settings); err != nil {
		observability.FromContext(r.Context()).WithOrganization(orgID).WithError(err).Error("failed to save SEPA settings")
		recordFailure(r.Context(), event, err)
		WriteBillingError(w, err)
		return
	}
	event.Message = "SEPA settings updated"
	audit.Record(r.Context(), event)

	httputil.WriteSuccess(w, settings)
}

func invalidAccountFields(req *SettingsRequest) map[string]string {
	invalid := make(map[string]string)
	if err := sepa.ValidateIBAN(req.CreditorIBAN); err != nil {
		invalid["creditor_iban"] = err.Error()
	}
	if err := sepa.ValidateBIC(req.CreditorBIC); err != nil {
		invalid["creditor_bic"] = err.Error()
	}
	if err := sepa.ValidateCreditorID(req.CreditorID); err != nil {
		invalid["creditor_id"] = err.Error()
	}
	return invalid
}
