package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/clubdues/clubdues/pkg/async"
	"github.com/clubdues/clubdues/pkg/billing"
)

// Report summarizes one run of the monthly job
type Report struct {
	BillingMonth time.Time
	Created      int
	Skipped      int
	Failed       int
	Errors       map[uuid.UUID]error
}

// MonthlyJob creates the batch of the current billing month for a fixed set of organizations
type MonthlyJob struct {
	creator billing.BatchCreator
	orgs    []uuid.UUID
	workers int
	timeout time.Duration
	now     func() time.Time
	logger  logrus.FieldLogger
	running atomic.Bool
}

// Option configures a MonthlyJob
type Option func(*MonthlyJob)

// WithWorkers bounds how many organizations are billed concurrently
func WithWorkers(n int) Option {
	return func(j *MonthlyJob) {
		if n > 0 {
			j.workers = n
		}
	}
}

// WithTimeout bounds the time spent on a single organization
func WithTimeout(d time.Duration) Option {
	return func(j *MonthlyJob) {
		j.timeout = d
	}
}

// WithClock overrides the time source used to pick the billing month
func WithClock(now func() time.Time) Option {
	return func(j *MonthlyJob) {
		j.now = now
	}
}

// NewMonthlyJob creates a new MonthlyJob
func NewMonthlyJob(creator billing.BatchCreator, orgs []uuid.UUID, logger logrus.FieldLogger, opts ...Option) *MonthlyJob {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	j := &MonthlyJob{
		creator: creator,
		orgs:    dedupe(orgs),
		workers: 4,
		timeout: 2 * time.Minute,
		now:     time.Now,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run bills the month containing now for every organization. Organizations that already
// have a batch or have nothing to bill are skipped, not failed.
func (j *MonthlyJob) Run(ctx context.Context) Report {
	return j.RunMonth(ctx, billing.FirstOfMonth(j.now()))
}

// RunMonth bills billingMonth for every organization
func (j *MonthlyJob) RunMonth(ctx context.Context, billingMonth time.Time) Report {
	report := Report{BillingMonth: billingMonth, Errors: map[uuid.UUID]error{}}

	if !j.running.CompareAndSwap(false, true) {
		j.logger.Warn("previous monthly run still in progress, skipping")
		return report
	}
	defer j.running.Store(false)

	month := billingMonth.Format("2006-01")
	j.logger.WithFields(logrus.Fields{
		"billing_month": month,
		"organizations": len(j.orgs),
	}).Info("starting monthly batch run")

	created := make([]*billing.CreateBatchResult, len(j.orgs))
	index := make(map[uuid.UUID]int, len(j.orgs))
	for i, id := range j.orgs {
		index[id] = i
	}

	errs := async.Batch(ctx, j.orgs, j.workers, j.timeout, func(ctx context.Context, orgID uuid.UUID) error {
		result, err := j.creator.Create(ctx, &billing.CreateBatchRequest{
			OrganizationID: orgID,
			BillingMonth:   billingMonth,
		})
		if err != nil {
			return err
		}
		created[index[orgID]] = result
		return nil
	})

	for i, orgID := range j.orgs {
		entry := j.logger.WithFields(logrus.Fields{
			"organization_id": orgID.String(),
			"billing_month":   month,
		})
		err := errs[i]
		switch {
		case err == nil:
			report.Created++
			entry.WithFields(logrus.Fields{
				"batch_id":          created[i].Batch.ID.String(),
				"transaction_count": created[i].Batch.TransactionCount,
				"total_amount":      created[i].Batch.TotalAmount.String(),
			}).Info("batch created")
		case billing.IsKind(err, billing.KindConflict), billing.IsKind(err, billing.KindNoEligibleContracts):
			report.Skipped++
			entry.WithField("reason", string(billing.KindOf(err))).Info("batch skipped")
		default:
			report.Failed++
			report.Errors[orgID] = err
			entry.WithError(err).Error("batch creation failed")
		}
	}

	j.logger.WithFields(logrus.Fields{
		"billing_month": month,
		"created":       report.Created,
		"skipped":       report.Skipped,
		"failed":        report.Failed,
	}).Info("monthly batch run finished")
	return report
}

// Schedule registers the job on c under a standard five field cron spec
func Schedule(ctx context.Context, c *cron.Cron, spec string, job *MonthlyJob) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		job.Run(ctx)
	})
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
