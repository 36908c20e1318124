package billing

import (
	"context"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clubdues/clubdues/pkg/observability"
)

// QueryService lists and views batches. It never writes.
type QueryService struct {
	reader BatchReader
	logger *observability.Logger
}

// NewQueryService creates a new QueryService
func NewQueryService(reader BatchReader, logger *observability.Logger) *QueryService {
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &QueryService{reader: reader, logger: logger}
}

// List returns the organization's batches, newest billing month first
func (q *QueryService) List(ctx context.Context, orgID uuid.UUID) ([]*PaymentBatch, error) {
	batches, err := q.reader.ListBatches(ctx, orgID)
	if err != nil {
		return nil, q.internal(orgID, "batch.list", err)
	}
	return batches, nil
}

// Snapshot returns the reader for the reads of one request. A SnapshotReader is bound to a
// single database so the batch and its payments come from the same one.
func Snapshot(r BatchReader) BatchReader {
	if s, ok := r.(SnapshotReader); ok {
		return s.Snapshot()
	}
	return r
}

// View returns one batch with its payment details. Batches of other organizations are
// reported as not found. The batch is read before its payments: both are committed
// together, so once the batch is visible its payments are too.
func (q *QueryService) View(ctx context.Context, orgID, batchID uuid.UUID) (view *BatchView, err error) {
	ctx, span := observability.StartSpan(ctx, "billing.Query.View",
		attribute.String("organization_id", orgID.String()),
		attribute.String("batch_id", batchID.String()),
	)
	defer func() { observability.EndSpan(span, err) }()

	reader := Snapshot(q.reader)

	batch, err := reader.GetBatch(ctx, orgID, batchID)
	if err != nil {
		if IsKind(err, KindNotFound) {
			return nil, err
		}
		return nil, q.internal(orgID, "batch.view", err)
	}
	payments, err := reader.ListPaymentDetails(ctx, orgID, batchID)
	if err != nil {
		return nil, q.internal(orgID, "batch.view", err)
	}

	return &BatchView{Batch: batch, Payments: payments}, nil
}

func (q *QueryService) internal(orgID uuid.UUID, op string, err error) error {
	q.logger.WithOrganization(orgID).WithOperation(op).WithError(err).Error("batch query failed")
	return Internal("failed to load batches", err)
}
