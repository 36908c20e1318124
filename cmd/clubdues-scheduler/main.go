package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	_ "go.uber.org/automaxprocs"

	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/config"
	"github.com/clubdues/clubdues/pkg/members"
	"github.com/clubdues/clubdues/pkg/scheduler"
	"github.com/clubdues/clubdues/pkg/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration file")
	runOnce := flag.Bool("run-once", false, "Bill the current month once and exit")
	month := flag.String("month", "", "Billing month (YYYY-MM-01) for --run-once, defaults to the current month")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if level, err := logrus.ParseLevel(cfg.Observability.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	orgIDs, err := cfg.Scheduler.OrganizationIDs()
	if err != nil {
		logger.WithError(err).Fatal("Invalid scheduler organizations")
	}
	if len(orgIDs) == 0 {
		logger.Fatal("No organizations configured; set scheduler.organizations or CLUBDUES_SCHEDULER_ORGANIZATIONS")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns, err := postgres.NewConnectionManager(ctx, cfg.Database.Connection())
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer conns.Close()

	ledger := billing.NewLedger(billing.NewPostgresStore(conns.Primary()), members.NewPostgresPricer())
	job := scheduler.NewMonthlyJob(ledger, orgIDs, logger,
		scheduler.WithWorkers(cfg.Scheduler.Workers),
		scheduler.WithTimeout(cfg.Scheduler.Timeout),
	)

	if *runOnce {
		var report scheduler.Report
		if *month != "" {
			billingMonth, err := billing.ParseBillingMonth(*month)
			if err != nil {
				logger.WithError(err).Fatal("Invalid billing month")
			}
			report = job.RunMonth(ctx, billingMonth)
		} else {
			report = job.Run(ctx)
		}
		if report.Failed > 0 {
			logger.WithField("failed", report.Failed).Error("Monthly run finished with failures")
			conns.Close()
			os.Exit(1)
		}
		return
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cron.PrintfLogger(logger))),
	)
	if _, err := scheduler.Schedule(ctx, c, cfg.Scheduler.Spec, job); err != nil {
		logger.WithError(err).Fatal("Failed to schedule monthly run")
	}

	logger.WithFields(logrus.Fields{
		"spec":          cfg.Scheduler.Spec,
		"organizations": len(orgIDs),
	}).Info("Scheduler started")
	c.Start()

	<-ctx.Done()
	logger.Info("Shutting down scheduler")
	<-c.Stop().Done()
}
