// Package async provides safe concurrent execution primitives for background tasks.
//
// SafeGo runs a single task detached from the caller with a timeout and panic recovery.
// Failures are logged, never propagated:
//
//	done := async.SafeGo(ctx, logger, 30*time.Second, "archive export", upload)
//
// Batch fans a slice of items out to a bounded number of workers and returns one error
// slot per item, which the scheduler uses to create the monthly batch of several
// organizations concurrently:
//
//	errs := async.Batch(ctx, orgIDs, 4, time.Minute, createBatch)
package async
