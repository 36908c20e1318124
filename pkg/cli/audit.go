package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newAuditCommand(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit trail",
	}
	cmd.AddCommand(newAuditListCommand(opts))
	return cmd
}

func newAuditListCommand(opts *globalOptions) *cobra.Command {
	var (
		org        string
		eventTypes []string
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent audit events of an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			orgID, err := parseOrg(org)
			if err != nil {
				return err
			}

			events, err := opts.client().ListAuditEvents(cmd.Context(), orgID, eventTypes, limit)
			if err != nil {
				return err
			}
			if opts.output == outputJSON {
				return writeJSON(cmd.OutOrStdout(), events)
			}
			if len(events) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No audit events")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tEVENT\tSTATUS\tACTOR\tRESOURCE\tMESSAGE")
			for _, e := range events {
				message := e.Message
				if e.ErrorMessage != "" {
					message = e.ErrorMessage
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Timestamp.Format("2006-01-02 15:04:05"), e.EventType, e.Status,
					e.Actor, e.ResourceID, message)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&org, "org", "", "Organization ID")
	cmd.Flags().StringSliceVar(&eventTypes, "event-type", nil, "Only these event types (repeatable)")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of events (1-500)")
	_ = cmd.MarkFlagRequired("org")
	return cmd
}
