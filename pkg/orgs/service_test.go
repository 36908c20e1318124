package orgs

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var settingsColumns = []string{
	"organization_id", "creditor_name", "creditor_iban", "creditor_bic", "creditor_id",
	"initiator_name", "batch_booking", "remittance_membership", "remittance_joining_fee",
	"remittance_yearly_fee", "updated_at",
}

func TestPostgresService_GetSEPASettings(t *testing.T) {
	orgID := uuid.New()

	t.Run("full profile", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM organization_settings").
			WithArgs(orgID).
			WillReturnRows(sqlmock.NewRows(settingsColumns).AddRow(
				orgID.String(), "Sportverein Musterstadt e.V.", "DE89370400440532013000", "COBADEFFXXX", "DE98ZZZ09999999999",
				"SV Musterstadt", true, "Beitrag %MONTH% %YEAR%", nil,
				nil, time.Now(),
			))

		settings, err := NewPostgresService(db).GetSEPASettings(context.Background(), orgID)
		require.NoError(t, err)
		assert.Equal(t, "Sportverein Musterstadt e.V.", settings.CreditorName)
		require.NotNil(t, settings.BatchBooking)
		assert.True(t, *settings.BatchBooking)
		require.NotNil(t, settings.InitiatorName)
		assert.Equal(t, "SV Musterstadt", *settings.InitiatorName)
		require.NotNil(t, settings.RemittanceMembership)
		assert.Nil(t, settings.RemittanceJoiningFee)
		assert.Empty(t, settings.MissingFields())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not configured", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM organization_settings").
			WithArgs(orgID).
			WillReturnError(sql.ErrNoRows)

		_, err = NewPostgresService(db).GetSEPASettings(context.Background(), orgID)
		assert.ErrorIs(t, err, ErrSettingsNotFound)
	})

	t.Run("database failure", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		mock.ExpectQuery("FROM organization_settings").WillReturnError(errors.New("connection refused"))

		_, err = NewPostgresService(db).GetSEPASettings(context.Background(), orgID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to get organization settings")
	})
}

func TestPostgresService_SaveSEPASettings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	settings := &CreditorSettings{
		OrganizationID: uuid.New(),
		CreditorName:   "Club",
		CreditorIBAN:   "DE89370400440532013000",
		CreditorBIC:    "COBADEFFXXX",
		CreditorID:     "DE98ZZZ09999999999",
	}
	updatedAt := time.Date(2025, time.January, 1, 8, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO organization_settings").
		WithArgs(settings.OrganizationID, "Club", "DE89370400440532013000", "COBADEFFXXX",
			"DE98ZZZ09999999999", nil, nil, nil, nil, nil).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(updatedAt))

	require.NoError(t, NewPostgresService(db).SaveSEPASettings(context.Background(), settings))
	assert.Equal(t, updatedAt, settings.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreditorSettings_MissingFields(t *testing.T) {
	tests := []struct {
		name     string
		settings CreditorSettings
		want     []string
	}{
		{
			name:     "empty",
			settings: CreditorSettings{},
			want:     []string{"creditor_name", "creditor_iban", "creditor_bic", "creditor_id"},
		},
		{
			name:     "blank name only",
			settings: CreditorSettings{CreditorName: "  ", CreditorIBAN: "X", CreditorBIC: "Y", CreditorID: "Z"},
			want:     []string{"creditor_name"},
		},
		{
			name:     "complete",
			settings: CreditorSettings{CreditorName: "A", CreditorIBAN: "X", CreditorBIC: "Y", CreditorID: "Z"},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.settings.MissingFields())
		})
	}
}
