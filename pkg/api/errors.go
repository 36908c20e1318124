package api

import (
	"errors"
	"net/http"

	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/httputil"
)

const (
	internalMessage = "the system could not complete the operation"
	configureHint   = "configure SEPA settings"
)

// statusOf maps an error kind onto an HTTP status
func statusOf(kind billing.ErrorKind) int {
	switch kind {
	case billing.KindInvalidInput:
		return http.StatusBadRequest
	case billing.KindConflict:
		return http.StatusConflict
	case billing.KindNoEligibleContracts, billing.KindInvalidConfiguration:
		return http.StatusUnprocessableEntity
	case billing.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// WriteBillingError writes err as a JSON error. Internal failures are opaque; their cause
// was already logged where it happened.
func WriteBillingError(w http.ResponseWriter, err error) {
	var be *billing.Error
	if !errors.As(err, &be) || be.Kind == billing.KindInternal {
		httputil.WriteDetailedError(w, http.StatusInternalServerError, httputil.ErrorResponse{
			Error: internalMessage,
			Code:  string(billing.KindInternal),
		})
		return
	}

	details := be.Details
	if be.Kind == billing.KindInvalidConfiguration && details["hint"] == "" {
		details = make(map[string]string, len(be.Details)+1)
		for k, v := range be.Details {
			details[k] = v
		}
		details["hint"] = configureHint
	}

	httputil.WriteDetailedError(w, statusOf(be.Kind), httputil.ErrorResponse{
		Error:   be.Message,
		Code:    string(be.Kind),
		Details: details,
	})
}
