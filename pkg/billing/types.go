package billing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clubdues/clubdues/pkg/money"
)

// InitialPeriod is the minimum term a contract was signed for
type InitialPeriod string

const (
	InitialPeriodMonthly    InitialPeriod = "monthly"
	InitialPeriodHalfYearly InitialPeriod = "half_yearly"
	InitialPeriodYearly     InitialPeriod = "yearly"
)

// Contract is the billing state of one member. There is exactly one contract per member.
type Contract struct {
	ID                        uuid.UUID     `json:"id"`
	MemberID                  uuid.UUID     `json:"member_id"`
	OrganizationID            uuid.UUID     `json:"organization_id"`
	InitialPeriod             InitialPeriod `json:"initial_period"`
	StartDate                 time.Time     `json:"start_date"`
	InitialPeriodEndDate      time.Time     `json:"initial_period_end_date"`
	CurrentPeriodEndDate      time.Time     `json:"current_period_end_date"`
	NextBillingDate           time.Time     `json:"next_billing_date"`
	MandateID                 string        `json:"mandate_id"`
	MandateSignatureDate      time.Time     `json:"mandate_signature_date"`
	JoiningFeeAmount          *money.Amount `json:"joining_fee_amount,omitempty"`
	YearlyFeeAmount           *money.Amount `json:"yearly_fee_amount,omitempty"`
	JoiningFeePaidAt          *time.Time    `json:"joining_fee_paid_at,omitempty"`
	LastYearlyFeePaidYear     *int          `json:"last_yearly_fee_paid_year,omitempty"`
	CancelledAt               *time.Time    `json:"cancelled_at,omitempty"`
	CancellationEffectiveDate *time.Time    `json:"cancellation_effective_date,omitempty"`
}

// PaymentBatch is the immutable record of one organization's collection run for one month
type PaymentBatch struct {
	ID               uuid.UUID    `json:"id"`
	OrganizationID   uuid.UUID    `json:"organization_id"`
	BillingMonth     time.Time    `json:"billing_month"`
	BatchNumber      string       `json:"batch_number"`
	TotalAmount      money.Amount `json:"total_amount"`
	MembershipTotal  money.Amount `json:"membership_total"`
	JoiningFeeTotal  money.Amount `json:"joining_fee_total"`
	YearlyFeeTotal   money.Amount `json:"yearly_fee_total"`
	TransactionCount int          `json:"transaction_count"`
	Notes            *string      `json:"notes,omitempty"`
	CreatedAt        time.Time    `json:"created_at"`
}

// Label is the human readable batch identifier, falling back to the row id
func (b *PaymentBatch) Label() string {
	if b.BatchNumber != "" {
		return b.BatchNumber
	}
	return b.ID.String()
}

// Payment is one contract's line in a batch. TotalAmount is the sum of the three fee lines.
type Payment struct {
	ID                 uuid.UUID    `json:"id"`
	ContractID         uuid.UUID    `json:"contract_id"`
	BatchID            uuid.UUID    `json:"batch_id"`
	MembershipAmount   money.Amount `json:"membership_amount"`
	JoiningFeeAmount   money.Amount `json:"joining_fee_amount"`
	YearlyFeeAmount    money.Amount `json:"yearly_fee_amount"`
	TotalAmount        money.Amount `json:"total_amount"`
	BillingPeriodStart time.Time    `json:"billing_period_start"`
	BillingPeriodEnd   time.Time    `json:"billing_period_end"`
	DueDate            time.Time    `json:"due_date"`
	CreatedAt          time.Time    `json:"created_at"`
}

// PaymentDetail is a payment joined with the contract and member data needed to display
// it and to render it as a direct-debit transaction. Bank details never leave the process
// as JSON.
type PaymentDetail struct {
	Payment

	MemberID          uuid.UUID `json:"member_id"`
	MemberNumber      string    `json:"member_number,omitempty"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	MandateID         string    `json:"mandate_id"`
	ContractStartDate time.Time `json:"contract_start_date"`

	AccountHolder string `json:"-"`
	IBAN          string `json:"-"`
	BIC           string `json:"-"`
}

// FullName joins first and last name with a single space
func (p *PaymentDetail) FullName() string {
	return joinName(p.FirstName, p.LastName)
}

// Summary describes what a create call produced
type Summary struct {
	BatchID            uuid.UUID    `json:"batch_id"`
	BatchNumber        string       `json:"batch_number"`
	BillingMonth       time.Time    `json:"billing_month"`
	TransactionCount   int          `json:"transaction_count"`
	MembershipTotal    money.Amount `json:"membership_total"`
	JoiningFeeTotal    money.Amount `json:"joining_fee_total"`
	YearlyFeeTotal     money.Amount `json:"yearly_fee_total"`
	TotalAmount        money.Amount `json:"total_amount"`
	JoiningFeesCharged int          `json:"joining_fees_charged"`
	YearlyFeesCharged  int          `json:"yearly_fees_charged"`
	ContractsAdvanced  int          `json:"contracts_advanced"`
}

// CreateBatchRequest is the input of Ledger.Create
type CreateBatchRequest struct {
	OrganizationID uuid.UUID
	BillingMonth   time.Time
	Notes          *string
}

// CreateBatchResult is the output of Ledger.Create
type CreateBatchResult struct {
	Batch    *PaymentBatch `json:"batch"`
	Payments []*Payment    `json:"payments"`
	Summary  Summary       `json:"summary"`
}

// BatchView is a batch with its payments and member display fields
type BatchView struct {
	Batch    *PaymentBatch    `json:"batch"`
	Payments []*PaymentDetail `json:"payments"`
}

// BatchCreator creates batches
type BatchCreator interface {
	Create(ctx context.Context, req *CreateBatchRequest) (*CreateBatchResult, error)
}

// BatchReader is the read side used by listing, viewing and exporting
type BatchReader interface {
	ListBatches(ctx context.Context, orgID uuid.UUID) ([]*PaymentBatch, error)
	GetBatch(ctx context.Context, orgID, batchID uuid.UUID) (*PaymentBatch, error)
	ListPaymentDetails(ctx context.Context, orgID, batchID uuid.UUID) ([]*PaymentDetail, error)
}

// SnapshotReader is a BatchReader spread over several databases, e.g. read replicas.
// Snapshot returns a reader bound to one of them.
type SnapshotReader interface {
	BatchReader
	Snapshot() BatchReader
}

// MembershipPricer resolves the aggregated membership price of members for a billing month.
// The aggregation over group memberships belongs to the member directory; the ledger only
// consumes the result. Members without active memberships may be absent from the map.
type MembershipPricer interface {
	MembershipAmounts(ctx context.Context, q Querier, orgID uuid.UUID, memberIDs []uuid.UUID, billingMonth time.Time) (map[uuid.UUID]money.Amount, error)
}
