package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clubdues/clubdues/pkg/money"
	"github.com/clubdues/clubdues/pkg/observability"
)

// Ledger creates payment batches. Creation runs in a single transaction: the batch, its
// payments and every contract rollover are committed together or not at all.
type Ledger struct {
	store   TxRunner
	pricer  MembershipPricer
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
	newID   func() uuid.UUID
}

// LedgerOption configures a Ledger
type LedgerOption func(*Ledger)

// WithLogger sets the ledger logger
func WithLogger(logger *observability.Logger) LedgerOption {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics sets the ledger metrics
func WithMetrics(metrics *observability.Metrics) LedgerOption {
	return func(l *Ledger) {
		l.metrics = metrics
	}
}

// WithClock overrides the time source used for joining fee timestamps
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithIDGenerator overrides the id source for batches and payments
func WithIDGenerator(newID func() uuid.UUID) LedgerOption {
	return func(l *Ledger) {
		l.newID = newID
	}
}

// NewLedger creates a new Ledger
func NewLedger(store TxRunner, pricer MembershipPricer, opts ...LedgerOption) *Ledger {
	l := &Ledger{
		store:  store,
		pricer: pricer,
		logger: observability.NewNopLogger(),
		now:    time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

var _ BatchCreator = (*Ledger)(nil)

// Create bills every eligible contract of the organization for the requested month
func (l *Ledger) Create(ctx context.Context, req *CreateBatchRequest) (result *CreateBatchResult, err error) {
	if req == nil {
		err = InvalidInput("create batch request is required")
		l.metrics.RecordBatchCreate(createOutcome(err), 0)
		return nil, err
	}

	start := time.Now()
	ctx, span := observability.StartSpan(ctx, "billing.Ledger.Create",
		attribute.String("organization_id", req.OrganizationID.String()),
		attribute.String("billing_month", req.BillingMonth.Format(BillingMonthLayout)),
	)
	logger := l.logger.WithOrganization(req.OrganizationID).WithOperation("batch.create")
	defer func() {
		l.metrics.RecordBatchCreate(createOutcome(err), time.Since(start))
		observability.EndSpan(span, err)
	}()

	if req.OrganizationID == uuid.Nil {
		return nil, InvalidInput("organization id is required")
	}
	if !IsBillingMonth(req.BillingMonth) {
		return nil, InvalidInput("billing month must be the first day of a month, got %s", req.BillingMonth.Format(BillingMonthLayout))
	}
	billingMonth := FirstOfMonth(req.BillingMonth)

	err = l.store.WithinTx(ctx, func(tx LedgerTx) error {
		var txErr error
		result, txErr = l.create(ctx, tx, req, billingMonth)
		return txErr
	})
	if err != nil {
		switch KindOf(err) {
		case KindInternal:
			logger.WithError(err).Error("failed to create payment batch")
			var be *Error
			if !errors.As(err, &be) {
				err = Internal("failed to create payment batch", err)
			}
		default:
			logger.WithError(err).Info("payment batch not created")
		}
		return nil, err
	}

	l.metrics.RecordBilled(result.Summary.TransactionCount,
		result.Summary.MembershipTotal.Decimal().InexactFloat64(),
		result.Summary.JoiningFeeTotal.Decimal().InexactFloat64(),
		result.Summary.YearlyFeeTotal.Decimal().InexactFloat64(),
	)
	logger.WithBatch(result.Batch.ID).WithFields(map[string]interface{}{
		"batch_number":      result.Batch.BatchNumber,
		"transaction_count": result.Summary.TransactionCount,
		"total_amount":      result.Summary.TotalAmount.String(),
	}).Info("payment batch created")

	return result, nil
}

func (l *Ledger) create(ctx context.Context, tx LedgerTx, req *CreateBatchRequest, billingMonth time.Time) (*CreateBatchResult, error) {
	exists, err := tx.BatchExists(ctx, req.OrganizationID, billingMonth)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, Conflict("batch already exists for this month")
	}

	candidates, err := tx.EligibleContracts(ctx, req.OrganizationID, billingMonth)
	if err != nil {
		return nil, err
	}
	contracts := make([]*Contract, 0, len(candidates))
	for _, c := range candidates {
		if IsEligible(c, billingMonth) {
			contracts = append(contracts, c)
		}
	}
	if len(contracts) == 0 {
		return nil, ErrNoEligibleContracts
	}

	memberIDs := make([]uuid.UUID, len(contracts))
	for i, c := range contracts {
		memberIDs[i] = c.MemberID
	}
	amounts, err := l.pricer.MembershipAmounts(ctx, tx.Querier(), req.OrganizationID, memberIDs, billingMonth)
	if err != nil {
		return nil, fmt.Errorf("failed to price memberships: %w", err)
	}

	now := l.now()
	batch := &PaymentBatch{
		ID:             l.newID(),
		OrganizationID: req.OrganizationID,
		BillingMonth:   billingMonth,
		BatchNumber:    BatchNumber(req.OrganizationID, billingMonth),
		Notes:          req.Notes,
	}

	totals := NewTotals()
	summary := Summary{}
	payments := make([]*Payment, 0, len(contracts))
	rollovers := make([]ContractRollover, 0, len(contracts))
	year := billingMonth.Year()
	joinedAt := now.UTC()

	for _, c := range contracts {
		membership, ok := amounts[c.MemberID]
		if !ok {
			membership = money.Zero()
		}
		fees := CalculateFees(c, membership, billingMonth)
		totals.Add(fees)

		payments = append(payments, &Payment{
			ID:                 l.newID(),
			ContractID:         c.ID,
			BatchID:            batch.ID,
			MembershipAmount:   fees.MembershipAmount,
			JoiningFeeAmount:   fees.JoiningFeeAmount,
			YearlyFeeAmount:    fees.YearlyFeeAmount,
			TotalAmount:        fees.TotalAmount,
			BillingPeriodStart: billingMonth,
			BillingPeriodEnd:   LastDayOfMonth(billingMonth),
			DueDate:            billingMonth,
			CreatedAt:          now,
		})

		rollover := ContractRollover{
			ContractID:      c.ID,
			OrganizationID:  c.OrganizationID,
			NextBillingDate: NextBillingMonth(billingMonth),
		}
		if fees.JoiningFeeCharged() {
			rollover.JoiningFeePaidAt = &joinedAt
			summary.JoiningFeesCharged++
		}
		if fees.YearlyFeeCharged() {
			rollover.YearlyFeePaidYear = &year
			summary.YearlyFeesCharged++
		}
		rollovers = append(rollovers, rollover)
	}

	batch.TotalAmount = totals.Total
	batch.MembershipTotal = totals.Membership
	batch.JoiningFeeTotal = totals.JoiningFee
	batch.YearlyFeeTotal = totals.YearlyFee
	batch.TransactionCount = totals.Count

	if err := tx.InsertBatch(ctx, batch); err != nil {
		return nil, err
	}
	if err := tx.InsertPayments(ctx, payments); err != nil {
		return nil, err
	}
	if err := tx.AdvanceContracts(ctx, rollovers); err != nil {
		return nil, err
	}

	summary.BatchID = batch.ID
	summary.BatchNumber = batch.BatchNumber
	summary.BillingMonth = billingMonth
	summary.TransactionCount = totals.Count
	summary.MembershipTotal = totals.Membership
	summary.JoiningFeeTotal = totals.JoiningFee
	summary.YearlyFeeTotal = totals.YearlyFee
	summary.TotalAmount = totals.Total
	summary.ContractsAdvanced = len(rollovers)

	return &CreateBatchResult{
		Batch:    batch,
		Payments: payments,
		Summary:  summary,
	}, nil
}

// BatchNumber derives the human readable batch number, e.g. B202501-1A2B3C4D
func BatchNumber(orgID uuid.UUID, billingMonth time.Time) string {
	return fmt.Sprintf("B%s-%s", billingMonth.Format("200601"), strings.ToUpper(orgID.String()[:8]))
}

func createOutcome(err error) string {
	if err == nil {
		return "created"
	}
	return string(KindOf(err))
}
