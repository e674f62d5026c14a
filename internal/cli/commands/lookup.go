package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fieldtrace/internal/engine"
	"github.com/leapstack-labs/fieldtrace/internal/lineage"
)

// LookupOptions holds options for the lookup command.
type LookupOptions struct {
	OutputFormat string
	Direction    string
	MaxHops      int
}

// NewLookupCommand creates the lookup command.
func NewLookupCommand() *cobra.Command {
	opts := &LookupOptions{}

	cmd := &cobra.Command{
		Use:   "lookup <field>",
		Short: "Trace lineage for a field",
		Long: `Trace where a field comes from and where it flows to, across mapping
boundaries. The field may be a bare column name or qualified as
TABLE.COLUMN or instance:PORT; only the last name segment anchors the
search.`,
		Example: `  # Full lineage for a column
  fieldtrace lookup NET_AMT

  # Only upstream sources
  fieldtrace lookup NET_AMT --direction upstream

  # Bounded search, JSON output
  fieldtrace lookup CLAIMS.NET_AMT --max-hops 5 --output json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.OutputFormat, "output", "o", "table", "Output format (table|json|csv)")
	cmd.Flags().StringVarP(&opts.Direction, "direction", "d", "both", "Traversal direction (downstream|upstream|both)")
	cmd.Flags().IntVar(&opts.MaxHops, "max-hops", 0, "Max hops per path (0 = configured default)")

	return cmd
}

func runLookup(cmd *cobra.Command, field string, opts *LookupOptions) error {
	cfg := getConfig(cmd.Context())
	logger := getLogger(cmd.Context())

	dir, err := lineage.ParseDirection(opts.Direction)
	if err != nil {
		return err
	}

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = eng.Close() }()

	result, err := eng.Lookup(cmd.Context(), field, engine.LookupOptions{
		Direction: dir,
		MaxHops:   opts.MaxHops,
	})
	if err != nil {
		var notFound *lineage.FieldNotFoundError
		if errors.As(err, &notFound) {
			return fmt.Errorf("field not found in any mapping: %s", field)
		}
		return err
	}

	return renderResult(cmd.OutOrStdout(), result, opts.OutputFormat)
}
