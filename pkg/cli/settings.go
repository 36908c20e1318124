package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/clubdues/clubdues/pkg/api"
	"github.com/clubdues/clubdues/pkg/orgs"
)

func newSettingsCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Read and update the SEPA creditor profile",
	}
	cmd.AddCommand(newSettingsGetCommand(opts), newSettingsSetCommand(opts))
	return cmd
}

func newSettingsGetCommand(opts *globalOptions) *cobra.Command {
	var org string

	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show the creditor profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrg(org)
			if err != nil {
				return err
			}
			settings, err := opts.client().GetSettings(cmd.Context(), orgID)
			if err != nil {
				return err
			}
			return printSettings(cmd, opts, settings)
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization ID")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}

func newSettingsSetCommand(opts *globalOptions) *cobra.Command {
	var (
		org        string
		req        api.SettingsRequest
		initiator  string
		booking    bool
		membership string
		joiningFee string
		yearlyFee  string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Replace the creditor profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrg(org)
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("initiator-name") {
				req.InitiatorName = &initiator
			}
			if flags.Changed("batch-booking") {
				req.BatchBooking = &booking
			}
			if flags.Changed("remittance-membership") {
				req.RemittanceMembership = &membership
			}
			if flags.Changed("remittance-joining-fee") {
				req.RemittanceJoiningFee = &joiningFee
			}
			if flags.Changed("remittance-yearly-fee") {
				req.RemittanceYearlyFee = &yearlyFee
			}

			settings, err := opts.client().PutSettings(cmd.Context(), orgID, &req)
			if err != nil {
				return err
			}
			return printSettings(cmd, opts, settings)
		},
	}

	f := cmd.Flags()
	f.StringVar(&org, "org", "", "Organization ID")
	f.StringVar(&req.CreditorName, "creditor-name", "", "Creditor name")
	f.StringVar(&req.CreditorIBAN, "iban", "", "Creditor IBAN")
	f.StringVar(&req.CreditorBIC, "bic", "", "Creditor BIC")
	f.StringVar(&req.CreditorID, "creditor-id", "", "SEPA creditor identifier")
	f.StringVar(&initiator, "initiator-name", "", "Initiating party name (default: creditor name)")
	f.BoolVar(&booking, "batch-booking", true, "Ask the bank to book the collection as one entry")
	f.StringVar(&membership, "remittance-membership", "", "Remittance template for membership fees")
	f.StringVar(&joiningFee, "remittance-joining-fee", "", "Remittance template for joining fees")
	f.StringVar(&yearlyFee, "remittance-yearly-fee", "", "Remittance template for yearly fees")
	for _, name := range []string{"org", "creditor-name", "iban", "bic", "creditor-id"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func printSettings(cmd *cobra.Command, opts *globalOptions, s *orgs.CreditorSettings) error {
	if opts.output == outputJSON {
		return writeJSON(cmd.OutOrStdout(), s)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Creditor name\t%s\n", s.CreditorName)
	fmt.Fprintf(tw, "IBAN\t%s\n", s.CreditorIBAN)
	fmt.Fprintf(tw, "BIC\t%s\n", s.CreditorBIC)
	fmt.Fprintf(tw, "Creditor ID\t%s\n", s.CreditorID)
	fmt.Fprintf(tw, "Initiator\t%s\n", valueOr(s.InitiatorName, s.CreditorName))
	if s.BatchBooking != nil {
		fmt.Fprintf(tw, "Batch booking\t%t\n", *s.BatchBooking)
	} else {
		fmt.Fprintf(tw, "Batch booking\t%s\n", "(bank default)")
	}
	fmt.Fprintf(tw, "Membership text\t%s\n", valueOr(s.RemittanceMembership, "(default)"))
	fmt.Fprintf(tw, "Joining fee text\t%s\n", valueOr(s.RemittanceJoiningFee, "(default)"))
	fmt.Fprintf(tw, "Yearly fee text\t%s\n", valueOr(s.RemittanceYearlyFee, "(default)"))
	return tw.Flush()
}

func valueOr(s *string, fallback string) string {
	if s == nil || *s == "" {
		return fallback
	}
	return *s
}
