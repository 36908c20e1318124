package orgs

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrSettingsNotFound is returned when an organization has no settings row
var ErrSettingsNotFound = errors.New("organization settings not found")

// CreditorSettings is the SEPA creditor profile of one organization
type CreditorSettings struct {
	OrganizationID       uuid.UUID `json:"organization_id"`
	CreditorName         string    `json:"creditor_name" validate:"required,max=70"`
	CreditorIBAN         string    `json:"creditor_iban" validate:"required"`
	CreditorBIC          string    `json:"creditor_bic" validate:"required"`
	CreditorID           string    `json:"creditor_id" validate:"required,max=35"`
	InitiatorName        *string   `json:"initiator_name,omitempty" validate:"omitempty,max=70"`
	BatchBooking         *bool     `json:"batch_booking,omitempty"`
	RemittanceMembership *string   `json:"remittance_membership,omitempty" validate:"omitempty,max=140"`
	RemittanceJoiningFee *string   `json:"remittance_joining_fee,omitempty" validate:"omitempty,max=140"`
	RemittanceYearlyFee  *string   `json:"remittance_yearly_fee,omitempty" validate:"omitempty,max=140"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// MissingFields lists the required creditor fields that are empty
func (s *CreditorSettings) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(s.CreditorName) == "" {
		missing = append(missing, "creditor_name")
	}
	if strings.TrimSpace(s.CreditorIBAN) == "" {
		missing = append(missing, "creditor_iban")
	}
	if strings.TrimSpace(s.CreditorBIC) == "" {
		missing = append(missing, "creditor_bic")
	}
	if strings.TrimSpace(s.CreditorID) == "" {
		missing = append(missing, "creditor_id")
	}
	return missing
}

// SettingsReader loads creditor settings
type SettingsReader interface {
	GetSEPASettings(ctx context.Context, orgID uuid.UUID) (*CreditorSettings, error)
}
