package main

import (
	"context"

	"github.com/google/uuid"

	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/storage/postgres"
)

// replicaReader serves listing from the replica the connection manager picks at call time,
// so replicas dropped by the health check are never reused. View and export take a
// Snapshot and read the batch and its payments from one replica.
type replicaReader struct {
	conns *postgres.ConnectionManager
}

var _ billing.SnapshotReader = replicaReader{}

func (r replicaReader) Snapshot() billing.BatchReader {
	return billing.NewPostgresStore(r.conns.Replica())
}

func (r replicaReader) ListBatches(ctx context.Context, orgID uuid.UUID) ([]*billing.PaymentBatch, error) {
	return r.Snapshot().ListBatches(ctx, orgID)
}

func (r replicaReader) GetBatch(ctx context.Context, orgID, batchID uuid.UUID) (*billing.PaymentBatch, error) {
	return r.Snapshot().GetBatch(ctx, orgID, batchID)
}

func (r replicaReader) ListPaymentDetails(ctx context.Context, orgID, batchID uuid.UUID) ([]*billing.PaymentDetail, error) {
	return r.Snapshot().ListPaymentDetails(ctx, orgID, batchID)
}
