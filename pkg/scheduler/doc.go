// Package scheduler runs the monthly batch creation for a configured list of organizations.
//
// A MonthlyJob fans the organizations out over a bounded number of workers and calls the
// ledger once per organization for the current billing month. Organizations that already
// have a batch or have no eligible contracts are reported as skipped, so the job can be
// re-run safely:
//
//	job := scheduler.NewMonthlyJob(ledger, orgIDs, logger, scheduler.WithWorkers(4))
//	c := cron.New(cron.WithLocation(time.UTC))
//	if _, err := scheduler.Schedule(ctx, c, "0 3 1 * *", job); err != nil {
//		return err
//	}
//	c.Start()
package scheduler
