package cli

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clubdues/clubdues/pkg/audit"
	"github.com/clubdues/clubdues/pkg/billing"
	"github.com/clubdues/clubdues/pkg/config"
	"github.com/clubdues/clubdues/pkg/storage/postgres"
)

func newMigrateCommand() *cobra.Command {
	var (
		configPath string
		printOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create the billing and audit tables in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if printOnly {
				fmt.Fprint(cmd.OutOrStdout(), billing.Schema())
				return nil
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}

			conns, err := postgres.NewConnectionManager(cmd.Context(), cfg.Database.Connection())
			if err != nil {
				return err
			}
			defer conns.Close()

			if err := migrate(cmd.Context(), conns.Primary()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Database schema is up to date")
			return nil
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to the YAML configuration file ($CLUBDUES_CONFIG)")
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print the billing DDL instead of applying it")
	return cmd
}

func migrate(ctx context.Context, db *sql.DB) error {
	if err := billing.EnsureSchema(ctx, db); err != nil {
		return err
	}
	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	return auditLogger.EnsureTable(ctx)
}
