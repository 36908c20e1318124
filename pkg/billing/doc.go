// Package billing turns member contracts into monthly payment batches.
//
// # Overview
//
// A batch bills every eligible contract of one organization for one calendar month.
// Each contract yields one payment line made of the membership amount, the one-time
// joining fee and, in January, the annual fee. Creating a batch also advances every
// billed contract to the next month, so a contract is never billed twice for the same
// month and fees that were charged are never charged again.
//
// # Usage
//
//	store := billing.NewPostgresStore(db)
//	ledger := billing.NewLedger(store, members.NewPostgresPricer(),
//		billing.WithLogger(logger),
//		billing.WithMetrics(metrics),
//	)
//
//	result, err := ledger.Create(ctx, &billing.CreateBatchRequest{
//		OrganizationID: orgID,
//		BillingMonth:   time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
//	})
//	switch billing.KindOf(err) {
//	case billing.KindConflict:
//		// a batch for this month already exists
//	case billing.KindNoEligibleContracts:
//		// nothing to bill
//	}
//
// # Concurrency
//
// Batch creation runs at read committed. The unique constraint on
// (organization_id, billing_month) decides between concurrent creators; the loser gets a
// conflict error and its transaction is rolled back.
//
// # Money
//
// Amounts are decimal (see pkg/money). Fee lines are rounded half-up to cents once, and
// every total is the exact sum of rounded lines.
package billing
