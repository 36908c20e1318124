package orgs

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresService implements SettingsReader using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// GetSEPASettings retrieves the creditor profile of an organization
func (s *PostgresService) GetSEPASettings(ctx context.Context, orgID uuid.UUID) (*CreditorSettings, error) {
	query := `
		SELECT organization_id, COALESCE(creditor_name, ''), COALESCE(creditor_iban, ''),
		       COALESCE(creditor_bic, ''), COALESCE(creditor_id, ''), initiator_name,
		       batch_booking, remittance_membership, remittance_joining_fee,
		       remittance_yearly_fee, updated_at
		FROM organization_settings
		WHERE organization_id = $1
	`
	settings := &CreditorSettings{}
	var initiator, membership, joining, yearly sql.NullString
	var batchBooking sql.NullBool

	err := s.db.QueryRowContext(ctx, query, orgID).Scan(
		&settings.OrganizationID, &settings.CreditorName, &settings.CreditorIBAN,
		&settings.CreditorBIC, &settings.CreditorID, &initiator,
		&batchBooking, &membership, &joining,
		&yearly, &settings.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrSettingsNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization settings: %w", err)
	}

	settings.InitiatorName = stringPtr(initiator)
	settings.RemittanceMembership = stringPtr(membership)
	settings.RemittanceJoiningFee = stringPtr(joining)
	settings.RemittanceYearlyFee = stringPtr(yearly)
	if batchBooking.Valid {
		v := batchBooking.Bool
		settings.BatchBooking = &v
	}

	return settings, nil
}

// SaveSEPASettings creates or replaces the creditor profile of an organization
func (s *PostgresService) SaveSEPASettings(ctx context.Context, settings *CreditorSettings) error {
	query := `
		INSERT INTO organization_settings (organization_id, creditor_name, creditor_iban,
		                                   creditor_bic, creditor_id, initiator_name,
		                                   batch_booking, remittance_membership,
		                                   remittance_joining_fee, remittance_yearly_fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (organization_id) DO UPDATE SET
		    creditor_name = EXCLUDED.creditor_name,
		    creditor_iban = EXCLUDED.creditor_iban,
		    creditor_bic = EXCLUDED.creditor_bic,
		    creditor_id = EXCLUDED.creditor_id,
		    initiator_name = EXCLUDED.initiator_name,
		    batch_booking = EXCLUDED.batch_booking,
		    remittance_membership = EXCLUDED.remittance_membership,
		    remittance_joining_fee = EXCLUDED.remittance_joining_fee,
		    remittance_yearly_fee = EXCLUDED.remittance_yearly_fee,
		    updated_at = NOW()
		RETURNING updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		settings.OrganizationID, settings.CreditorName, settings.CreditorIBAN,
		settings.CreditorBIC, settings.CreditorID, settings.InitiatorName,
		settings.BatchBooking, settings.RemittanceMembership,
		settings.RemittanceJoiningFee, settings.RemittanceYearlyFee,
	).Scan(&settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save organization settings: %w", err)
	}
	return nil
}

func stringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
