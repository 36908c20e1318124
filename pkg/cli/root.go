package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

const (
	defaultServer  = "http://localhost:8080"
	defaultTimeout = 30 * time.Second

	outputTable = "table"
	outputJSON  = "json"
)

type globalOptions struct {
	server  string
	actor   string
	timeout time.Duration
	output  string
}

func (o *globalOptions) client() *Client {
	return NewClient(o.server, o.actor, o.timeout)
}

// NewRootCommand creates the clubdues-cli command tree
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "clubdues-cli",
		Short:         "Manage membership billing batches and SEPA exports",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.output != outputTable && opts.output != outputJSON {
				return fmt.Errorf("unknown output format %q (use table or json)", opts.output)
			}
			return nil
		},
	}

	server := os.Getenv("CLUBDUES_SERVER")
	if server == "" {
		server = defaultServer
	}

	root.PersistentFlags().StringVar(&opts.server, "server", server, "Base URL of the clubdues API ($CLUBDUES_SERVER)")
	root.PersistentFlags().StringVar(&opts.actor, "actor", os.Getenv("USER"), "Identity recorded in the audit trail")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", defaultTimeout, "Request timeout")
	root.PersistentFlags().StringVarP(&opts.output, "output", "o", outputTable, "Output format: table or json")

	root.AddCommand(
		newBatchCommand(opts),
		newSettingsCommand(opts),
		newAuditCommand(opts),
		newMigrateCommand(),
		newVersionCommand(),
	)

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the client version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func parseOrg(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --org %q: %w", s, err)
	}
	return id, nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
