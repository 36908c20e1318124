package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clubdues/clubdues/pkg/billing"
)

func newBatchCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Create, inspect and export payment batches",
	}
	cmd.AddCommand(
		newBatchCreateCommand(opts),
		newBatchListCommand(opts),
		newBatchViewCommand(opts),
		newBatchExportCommand(opts),
	)
	return cmd
}

func newBatchCreateCommand(opts *globalOptions) *cobra.Command {
	var org, month, notes string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create the payment batch of a billing month",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrg(org)
			if err != nil {
				return err
			}
			var notesPtr *string
			if cmd.Flags().Changed("notes") {
				notesPtr = &notes
			}

			result, err := opts.client().CreateBatch(cmd.Context(), orgID, month, notesPtr)
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			s := result.Summary
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created batch %s (%s)\n", s.BatchNumber, s.BatchID)
			fmt.Fprintf(out, "  Billing month:   %s\n", s.BillingMonth.Format("2006-01"))
			fmt.Fprintf(out, "  Transactions:    %d\n", s.TransactionCount)
			fmt.Fprintf(out, "  Membership:      %s EUR\n", s.MembershipTotal)
			fmt.Fprintf(out, "  Joining fees:    %s EUR (%d)\n", s.JoiningFeeTotal, s.JoiningFeesCharged)
			fmt.Fprintf(out, "  Yearly fees:     %s EUR (%d)\n", s.YearlyFeeTotal, s.YearlyFeesCharged)
			fmt.Fprintf(out, "  Total:           %s EUR\n", s.TotalAmount)
			return nil
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization ID")
	cmd.Flags().StringVar(&month, "month", "", "Billing month as YYYY-MM-01")
	cmd.Flags().StringVar(&notes, "notes", "", "Free text stored with the batch")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("month")
	return cmd
}

func newBatchListCommand(opts *globalOptions) *cobra.Command {
	var org string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List payment batches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrg(org)
			if err != nil {
				return err
			}

			batches, err := opts.client().ListBatches(cmd.Context(), orgID)
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), batches)
			}
			if len(batches) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No batches")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tNUMBER\tMONTH\tTRANSACTIONS\tTOTAL\tCREATED")
			for _, b := range batches {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
					b.ID, b.Label(), b.BillingMonth.Format("2006-01"), b.TransactionCount,
					b.TotalAmount, b.CreatedAt.Format("2006-01-02 15:04"))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization ID")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newBatchViewCommand(opts *globalOptions) *cobra.Command {
	var org, batch string

	cmd := &cobra.Command{
		Use:   "view",
		Short: "Show a batch with its payments",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, batchID, err := parseBatchFlags(org, batch)
			if err != nil {
				return err
			}

			view, err := opts.client().ViewBatch(cmd.Context(), orgID, batchID)
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			return printBatchView(cmd, view)
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization ID")
	cmd.Flags().StringVar(&batch, "batch", "", "Batch ID")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func printBatchView(cmd *cobra.Command, view *billing.BatchView) error {
	b := view.Batch
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch %s (%s) for %s\n", b.Label(), b.ID, b.BillingMonth.Format("2006-01"))
	fmt.Fprintf(out, "Total %s EUR in %d transactions\n\n", b.TotalAmount, b.TransactionCount)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MEMBER\tNAME\tMANDATE\tMEMBERSHIP\tJOINING\tYEARLY\tTOTAL\tDUE")
	for _, p := range view.Payments {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			memberLabel(p), p.FullName(), p.MandateID,
			p.MembershipAmount, p.JoiningFeeAmount, p.YearlyFeeAmount, p.TotalAmount,
			p.DueDate.Format("2006-01-02"))
	}
	return tw.Flush()
}

func memberLabel(p *billing.PaymentDetail) string {
	if p.MemberNumber != "" {
		return p.MemberNumber
	}
	return p.MemberID.String()
}

func newBatchExportCommand(opts *globalOptions) *cobra.Command {
	var org, batch, outPath string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Download the SEPA direct debit file of a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, batchID, err := parseBatchFlags(org, batch)
			if err != nil {
				return err
			}

			fileName, body, err := opts.client().ExportSEPA(cmd.Context(), orgID, batchID)
			if err != nil {
				return err
			}

			if outPath == "-" {
				_, err := cmd.OutOrStdout().Write(body)
				return err
			}

			target := outPath
			if target == "" {
				target = fileName
			} else if info, err := os.Stat(target); err == nil && info.IsDir() {
				target = filepath.Join(target, fileName)
			}
			if err := os.WriteFile(target, body, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", target, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", target, len(body))
			return nil
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization ID")
	cmd.Flags().StringVar(&batch, "batch", "", "Batch ID")
	cmd.Flags().StringVar(&outPath, "out", "", "Output file or directory, - for stdout (default: server file name)")
	_ = cmd.MarkFlagRequired("org")
	_ = cmd.MarkFlagRequired("batch")
	return cmd
}

func parseBatchFlags(org, batch string) (uuid.UUID, uuid.UUID, error) {
	orgID, err := parseOrg(org)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	batchID, err := uuid.Parse(batch)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid --batch %q: %w", batch, err)
	}
	return orgID, batchID, nil
}
