package sepa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/money"
	"github.com/clubdues/clubdues/pkg/observability"
	"github.com/clubdues/clubdues/pkg/orgs"
)

const (
	configureHint       = "configure SEPA settings"
	maxInvalidExamples  = 3
	resultExported      = "exported"
	resultRejected      = "rejected"
	resultNotConfigured = "not_configured"
	resultFailed        = "failed"
)

// Export is a rendered direct-debit file
type Export struct {
	FileName         string       `json:"file_name"`
	XML              []byte       `json:"-"`
	TransactionCount int          `json:"transaction_count"`
	ControlSum       money.Amount `json:"control_sum"`
	BatchID          uuid.UUID    `json:"batch_id"`
}

// Exporter turns a committed batch into a pain.008.001.08 document. It never writes.
type Exporter struct {
	batches  billing.BatchReader
	settings orgs.SettingsReader
	logger   *observability.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

// ExporterOption configures an Exporter
type ExporterOption func(*Exporter)

// WithExportLogger sets the logger
func WithExportLogger(logger *observability.Logger) ExporterOption {
	return func(e *Exporter) { e.logger = logger }
}

// WithExportMetrics sets the metrics sink
func WithExportMetrics(metrics *observability.Metrics) ExporterOption {
	return func(e *Exporter) { e.metrics = metrics }
}

// WithExportClock overrides the creation timestamp source
func WithExportClock(now func() time.Time) ExporterOption {
	return func(e *Exporter) { e.now = now }
}

// NewExporter creates a new Exporter
func NewExporter(batches billing.BatchReader, settings orgs.SettingsReader, opts ...ExporterOption) *Exporter {
	e := &Exporter{
		batches:  batches,
		settings: settings,
		logger:   observability.NewNopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export renders the batch of the organization. Preconditions are checked in order and the
// first failing one stops the export: the batch must exist, creditor settings must be
// complete and valid, the batch must have payments and every debtor must be valid.
// The batch is loaded first; settings and payments are only read once it exists.
func (e *Exporter) Export(ctx context.Context, orgID, batchID uuid.UUID) (out *Export, err error) {
	ctx, span := observability.StartSpan(ctx, "sepa.Exporter.Export",
		attribute.String("organization_id", orgID.String()),
		attribute.String("batch_id", batchID.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	logger := e.logger.WithOrganization(orgID).WithBatch(batchID).WithOperation("sepa.export")

	out, err = e.export(ctx, orgID, batchID)
	if err != nil {
		e.metrics.RecordSEPAExport(exportResult(err), 0)
		if billing.KindOf(err) == billing.KindInternal {
			logger.WithError(err).Error("SEPA export failed")
			var be *billing.Error
			if !errors.As(err, &be) {
				err = billing.Internal("failed to export batch", err)
			}
		} else {
			logger.WithError(err).Info("SEPA export rejected")
		}
		return nil, err
	}

	e.metrics.RecordSEPAExport(resultExported, out.TransactionCount)
	logger.WithFields(map[string]interface{}{
		"file_name":    out.FileName,
		"transactions": out.TransactionCount,
		"control_sum":  out.ControlSum.String(),
	}).Info("SEPA export rendered")
	return out, nil
}

func (e *Exporter) export(ctx context.Context, orgID, batchID uuid.UUID) (*Export, error) {
	batches := billing.Snapshot(e.batches)

	batch, err := batches.GetBatch(ctx, orgID, batchID)
	if err != nil {
		if billing.IsKind(err, billing.KindNotFound) {
			return nil, err
		}
		return nil, billing.Internal("failed to load batch for export", err)
	}
	if batch == nil {
		return nil, billing.NotFound("batch not found")
	}

	var (
		settings *orgs.CreditorSettings
		payments []*billing.PaymentDetail
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		settings, err = e.settings.GetSEPASettings(gctx, orgID)
		if errors.Is(err, orgs.ErrSettingsNotFound) {
			settings, err = nil, nil
		}
		return err
	})
	g.Go(func() error {
		var err error
		payments, err = batches.ListPaymentDetails(gctx, orgID, batchID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, billing.Internal("failed to load batch for export", err)
	}

	if err := checkCreditor(settings); err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, billing.InvalidInput("batch has no payments")
	}
	if problems := ValidateDebtors(payments); len(problems) > 0 {
		e.metrics.RecordInvalidDebtors(len(problems))
		return nil, debtorError(problems)
	}

	collection := e.collection(batch, settings, payments)
	data, err := Render(collection)
	if err != nil {
		return nil, billing.InvalidInput("failed to build SEPA document: %v", err)
	}
	if err := Verify(data); err != nil {
		return nil, billing.InvalidInput("SEPA document rejected: %v", err)
	}

	return &Export{
		FileName:         FileName(batch.Label()),
		XML:              data,
		TransactionCount: len(collection.Transactions),
		ControlSum:       collection.ControlSum(),
		BatchID:          batch.ID,
	}, nil
}

func checkCreditor(settings *orgs.CreditorSettings) error {
	if settings == nil {
		err := billing.InvalidConfiguration("SEPA settings are missing, %s", configureHint)
		err.Details = map[string]string{"hint": configureHint}
		return err
	}
	if missing := settings.MissingFields(); len(missing) > 0 {
		err := billing.InvalidConfiguration("SEPA settings are incomplete (missing %s), %s",
			strings.Join(missing, ", "), configureHint)
		err.Details = map[string]string{"hint": configureHint, "missing": strings.Join(missing, ",")}
		return err
	}

	var problems []string
	if ValidateIBAN(settings.CreditorIBAN) != nil {
		problems = append(problems, "creditor_iban")
	}
	if ValidateCreditorID(settings.CreditorID) != nil {
		problems = append(problems, "creditor_id")
	}
	if ValidateBIC(settings.CreditorBIC) != nil {
		problems = append(problems, "creditor_bic")
	}
	if len(problems) > 0 {
		err := billing.InvalidConfiguration("SEPA settings are invalid (%s), %s",
			strings.Join(problems, ", "), configureHint)
		err.Details = map[string]string{"hint": configureHint, "invalid": strings.Join(problems, ",")}
		return err
	}
	return nil
}

// DebtorProblem names what is wrong with one payment's debtor
type DebtorProblem struct {
	PaymentID uuid.UUID
	Name      string
	Reasons   []string
}

// ValidateDebtors checks every payment and returns all problems found
func ValidateDebtors(payments []*billing.PaymentDetail) []DebtorProblem {
	var problems []DebtorProblem
	for _, p := range payments {
		var reasons []string
		if debtorName(p) == "" {
			reasons = append(reasons, "missing account holder")
		}
		switch {
		case strings.TrimSpace(p.IBAN) == "":
			reasons = append(reasons, "missing IBAN")
		case ValidateIBAN(p.IBAN) != nil:
			reasons = append(reasons, "invalid IBAN")
		}
		switch {
		case strings.TrimSpace(p.BIC) == "":
			reasons = append(reasons, "missing BIC")
		case ValidateBIC(p.BIC) != nil:
			reasons = append(reasons, "invalid BIC")
		}
		if !p.TotalAmount.IsPositive() {
			reasons = append(reasons, "amount must be positive")
		}
		if len(reasons) > 0 {
			name := debtorName(p)
			if name == "" {
				name = p.MemberID.String()
			}
			problems = append(problems, DebtorProblem{PaymentID: p.ID, Name: name, Reasons: reasons})
		}
	}
	return problems
}

func debtorError(problems []DebtorProblem) error {
	names := make([]string, 0, maxInvalidExamples)
	for i := 0; i < len(problems) && i < maxInvalidExamples; i++ {
		names = append(names, problems[i].Name)
	}
	more := ""
	if len(problems) > maxInvalidExamples {
		more = fmt.Sprintf(" and %d more", len(problems)-maxInvalidExamples)
	}

	err := billing.InvalidInput("%d member(s) have invalid bank details: %s%s",
		len(problems), strings.Join(names, ", "), more)
	err.Details = map[string]string{
		"invalid_count": fmt.Sprintf("%d", len(problems)),
		"examples":      strings.Join(names, ", "),
	}
	return err
}

func (e *Exporter) collection(batch *billing.PaymentBatch, settings *orgs.CreditorSettings, payments []*billing.PaymentDetail) *Collection {
	label := batch.Label()

	creditor := Creditor{
		Name:       settings.CreditorName,
		IBAN:       settings.CreditorIBAN,
		BIC:        settings.CreditorBIC,
		CreditorID: settings.CreditorID,
	}
	if settings.InitiatorName != nil {
		creditor.InitiatorName = strings.TrimSpace(*settings.InitiatorName)
	}

	templates := RemittanceTemplates{
		Membership: settings.RemittanceMembership,
		JoiningFee: settings.RemittanceJoiningFee,
		YearlyFee:  settings.RemittanceYearlyFee,
	}

	c := &Collection{
		MessageID:      MessageID(label),
		CreatedAt:      e.now(),
		CollectionDate: batch.BillingMonth,
		BatchBooking:   settings.BatchBooking,
		Creditor:       creditor,
		Transactions:   make([]Transaction, 0, len(payments)),
	}

	for _, p := range payments {
		memberNumber := p.MemberNumber
		if memberNumber == "" {
			memberNumber = p.MemberID.String()
		}
		c.Transactions = append(c.Transactions, Transaction{
			EndToEndID:    EndToEndID(label, p.ID),
			Amount:        p.TotalAmount,
			MandateID:     MandateID(p.MandateID),
			MandateSigned: p.ContractStartDate,
			DebtorName:    debtorName(p),
			DebtorIBAN:    p.IBAN,
			DebtorBIC:     p.BIC,
			Remittance: Remittance(templates, RemittanceLine{
				BillingMonth:      batch.BillingMonth,
				MemberName:        p.FullName(),
				MemberNumber:      memberNumber,
				JoinDate:          p.ContractStartDate,
				MembershipCharged: p.MembershipAmount.IsPositive(),
				JoiningCharged:    p.JoiningFeeAmount.IsPositive(),
				YearlyCharged:     p.YearlyFeeAmount.IsPositive(),
			}),
		})
	}
	return c
}

func debtorName(p *billing.PaymentDetail) string {
	if holder := strings.TrimSpace(p.AccountHolder); holder != "" {
		return holder
	}
	return p.FullName()
}

func exportResult(err error) string {
	switch billing.KindOf(err) {
	case billing.KindInvalidConfiguration:
		return resultNotConfigured
	case billing.KindInvalidInput, billing.KindNotFound:
		return resultRejected
	default:
		return resultFailed
	}
}
