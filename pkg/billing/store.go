package billing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/clubdues/clubdues/pkg/money"
)

// batchMonthConstraint guards one batch per organization and month
const batchMonthConstraint = "payment_batches_org_month_key"

// Querier is satisfied by *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ContractRollover is the state change applied to a contract once it has been billed
type ContractRollover struct {
	ContractID        uuid.UUID
	OrganizationID    uuid.UUID
	NextBillingDate   time.Time
	JoiningFeePaidAt  *time.Time
	YearlyFeePaidYear *int
}

// LedgerTx is the unit of work the ledger runs inside
type LedgerTx interface {
	Querier() Querier
	BatchExists(ctx context.Context, orgID uuid.UUID, billingMonth time.Time) (bool, error)
	EligibleContracts(ctx context.Context, orgID uuid.UUID, billingMonth time.Time) ([]*Contract, error)
	InsertBatch(ctx context.Context, batch *PaymentBatch) error
	InsertPayments(ctx context.Context, payments []*Payment) error
	AdvanceContracts(ctx context.Context, rollovers []ContractRollover) error
}

// TxRunner opens units of work. fn's error rolls everything back.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// PostgresStore implements TxRunner and BatchReader on PostgreSQL
type PostgresStore struct {
	db        *sql.DB
	txOptions *sql.TxOptions
}

// NewPostgresStore creates a new PostgresStore. Transactions run at read committed; the
// unique constraint on (organization_id, billing_month) closes the duplicate-batch race.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:        db,
		txOptions: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
	}
}

// WithinTx runs fn in a transaction and commits only if fn succeeds
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error {
	tx, err := s.db.BeginTx(ctx, s.txOptions)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) Querier() Querier {
	return t.tx
}

func (t *postgresTx) BatchExists(ctx context.Context, orgID uuid.UUID, billingMonth time.Time) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM payment_batches WHERE organization_id = $1 AND billing_month = $2)`
	var exists bool
	if err := t.tx.QueryRowContext(ctx, query, orgID, billingMonth).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check existing batch: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) EligibleContracts(ctx context.Context, orgID uuid.UUID, billingMonth time.Time) ([]*Contract, error) {
	query := `
		SELECT id, member_id, organization_id, initial_period, start_date,
		       initial_period_end_date, current_period_end_date, next_billing_date,
		       mandate_id, mandate_signature_date, joining_fee_amount, yearly_fee_amount,
		       joining_fee_paid_at, last_yearly_fee_paid_year, cancelled_at,
		       cancellation_effective_date
		FROM contracts
		WHERE organization_id = $1
		  AND start_date <= $2
		  AND next_billing_date <= $2
		  AND (cancellation_effective_date IS NULL OR cancellation_effective_date >= $2)
		ORDER BY start_date, id
	`
	rows, err := t.tx.QueryContext(ctx, query, orgID, billingMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to select eligible contracts: %w", err)
	}
	defer rows.Close()

	var contracts []*Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contracts: %w", err)
	}
	return contracts, nil
}

func scanContract(rows *sql.Rows) (*Contract, error) {
	c := &Contract{}
	var joiningFee, yearlyFee money.NullAmount
	var joiningPaidAt, cancelledAt, cancellationEffective sql.NullTime
	var lastYearlyYear sql.NullInt32

	if err := rows.Scan(
		&c.ID, &c.MemberID, &c.OrganizationID, &c.InitialPeriod, &c.StartDate,
		&c.InitialPeriodEndDate, &c.CurrentPeriodEndDate, &c.NextBillingDate,
		&c.MandateID, &c.MandateSignatureDate, &joiningFee, &yearlyFee,
		&joiningPaidAt, &lastYearlyYear, &cancelledAt, &cancellationEffective,
	); err != nil {
		return nil, fmt.Errorf("failed to scan contract: %w", err)
	}

	c.JoiningFeeAmount = joiningFee.Ptr()
	c.YearlyFeeAmount = yearlyFee.Ptr()
	c.JoiningFeePaidAt = nullTimePtr(joiningPaidAt)
	c.CancelledAt = nullTimePtr(cancelledAt)
	c.CancellationEffectiveDate = nullTimePtr(cancellationEffective)
	if lastYearlyYear.Valid {
		year := int(lastYearlyYear.Int32)
		c.LastYearlyFeePaidYear = &year
	}
	return c, nil
}

func (t *postgresTx) InsertBatch(ctx context.Context, b *PaymentBatch) error {
	query := `
		INSERT INTO payment_batches (id, organization_id, billing_month, batch_number,
		                             total_amount, membership_total, joining_fee_total,
		                             yearly_fee_total, transaction_count, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`
	err := t.tx.QueryRowContext(ctx, query,
		b.ID, b.OrganizationID, b.BillingMonth, b.BatchNumber,
		b.TotalAmount, b.MembershipTotal, b.JoiningFeeTotal,
		b.YearlyFeeTotal, b.TransactionCount, b.Notes,
	).Scan(&b.CreatedAt)
	if isUniqueViolation(err, batchMonthConstraint) {
		return Conflict("batch already exists for this month")
	}
	if err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (t *postgresTx) InsertPayments(ctx context.Context, payments []*Payment) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		INSERT INTO payments (id, contract_id, batch_id, membership_amount, joining_fee_amount,
		                      yearly_fee_amount, total_amount, billing_period_start,
		                      billing_period_end, due_date, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare payment insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range payments {
		if _, err := stmt.ExecContext(ctx,
			p.ID, p.ContractID, p.BatchID, p.MembershipAmount, p.JoiningFeeAmount,
			p.YearlyFeeAmount, p.TotalAmount, p.BillingPeriodStart,
			p.BillingPeriodEnd, p.DueDate, p.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert payment for contract %s: %w", p.ContractID, err)
		}
	}
	return nil
}

func (t *postgresTx) AdvanceContracts(ctx context.Context, rollovers []ContractRollover) error {
	stmt, err := t.tx.PrepareContext(ctx, `
		UPDATE contracts
		SET next_billing_date = $1,
		    joining_fee_paid_at = COALESCE($2, joining_fee_paid_at),
		    last_yearly_fee_paid_year = COALESCE($3, last_yearly_fee_paid_year),
		    updated_at = NOW()
		WHERE id = $4 AND organization_id = $5
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare contract update: %w", err)
	}
	defer stmt.Close()

	for _, r := range rollovers {
		var yearly sql.NullInt32
		if r.YearlyFeePaidYear != nil {
			yearly = sql.NullInt32{Int32: int32(*r.YearlyFeePaidYear), Valid: true}
		}
		var joiningPaidAt sql.NullTime
		if r.JoiningFeePaidAt != nil {
			joiningPaidAt = sql.NullTime{Time: *r.JoiningFeePaidAt, Valid: true}
		}

		result, err := stmt.ExecContext(ctx, r.NextBillingDate, joiningPaidAt, yearly, r.ContractID, r.OrganizationID)
		if err != nil {
			return fmt.Errorf("failed to advance contract %s: %w", r.ContractID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to read affected rows for contract %s: %w", r.ContractID, err)
		}
		if affected != 1 {
			return fmt.Errorf("contract %s was not updated", r.ContractID)
		}
	}
	return nil
}

// ListBatches lists an organization's batches, newest billing month first
func (s *PostgresStore) ListBatches(ctx context.Context, orgID uuid.UUID) ([]*PaymentBatch, error) {
	query := `
		SELECT id, organization_id, billing_month, batch_number, total_amount,
		       membership_total, joining_fee_total, yearly_fee_total,
		       transaction_count, notes, created_at
		FROM payment_batches
		WHERE organization_id = $1
		ORDER BY billing_month DESC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	defer rows.Close()

	batches := make([]*PaymentBatch, 0)
	for rows.Next() {
		b := &PaymentBatch{}
		var notes sql.NullString
		if err := rows.Scan(
			&b.ID, &b.OrganizationID, &b.BillingMonth, &b.BatchNumber, &b.TotalAmount,
			&b.MembershipTotal, &b.JoiningFeeTotal, &b.YearlyFeeTotal,
			&b.TransactionCount, &notes, &b.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.Notes = nullStringPtr(notes)
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate batches: %w", err)
	}
	return batches, nil
}

// GetBatch loads a batch scoped to its organization. A batch of another organization is
// reported as not found.
func (s *PostgresStore) GetBatch(ctx context.Context, orgID, batchID uuid.UUID) (*PaymentBatch, error) {
	query := `
		SELECT id, organization_id, billing_month, batch_number, total_amount,
		       membership_total, joining_fee_total, yearly_fee_total,
		       transaction_count, notes, created_at
		FROM payment_batches
		WHERE id = $1 AND organization_id = $2
	`
	b := &PaymentBatch{}
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx, query, batchID, orgID).Scan(
		&b.ID, &b.OrganizationID, &b.BillingMonth, &b.BatchNumber, &b.TotalAmount,
		&b.MembershipTotal, &b.JoiningFeeTotal, &b.YearlyFeeTotal,
		&b.TransactionCount, &notes, &b.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, NotFound("batch not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	b.Notes = nullStringPtr(notes)
	return b, nil
}

// ListPaymentDetails lists a batch's payments with contract and member fields
func (s *PostgresStore) ListPaymentDetails(ctx context.Context, orgID, batchID uuid.UUID) ([]*PaymentDetail, error) {
	query := `
		SELECT p.id, p.contract_id, p.batch_id, p.membership_amount, p.joining_fee_amount,
		       p.yearly_fee_amount, p.total_amount, p.billing_period_start,
		       p.billing_period_end, p.due_date, p.created_at,
		       m.id, COALESCE(m.member_number, ''), m.first_name, m.last_name,
		       c.mandate_id, c.start_date,
		       COALESCE(m.account_holder, ''), COALESCE(m.iban, ''), COALESCE(m.bic, '')
		FROM payments p
		JOIN payment_batches b ON b.id = p.batch_id
		JOIN contracts c ON c.id = p.contract_id
		JOIN members m ON m.id = c.member_id
		WHERE p.batch_id = $1 AND b.organization_id = $2
		ORDER BY m.last_name, m.first_name, p.id
	`
	rows, err := s.db.QueryContext(ctx, query, batchID, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	details := make([]*PaymentDetail, 0)
	for rows.Next() {
		d := &PaymentDetail{}
		if err := rows.Scan(
			&d.ID, &d.ContractID, &d.BatchID, &d.MembershipAmount, &d.JoiningFeeAmount,
			&d.YearlyFeeAmount, &d.TotalAmount, &d.BillingPeriodStart,
			&d.BillingPeriodEnd, &d.DueDate, &d.CreatedAt,
			&d.MemberID, &d.MemberNumber, &d.FirstName, &d.LastName,
			&d.MandateID, &d.ContractStartDate,
			&d.AccountHolder, &d.IBAN, &d.BIC,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return details, nil
}

func isUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == "23505" && (constraint == "" || pqErr.Constraint == constraint)
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullStringPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
