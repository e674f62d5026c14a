// Package cli provides the command-line interface for fieldtrace.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fieldtrace/internal/cli/commands"
	"github.com/leapstack-labs/fieldtrace/internal/cli/config"
)

var cfgFile string

// Version information (set at build time).
var (
	Version   = "0.1.0"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "fieldtrace",
		Short: "fieldtrace - Field-Level Lineage Engine",
		Long: `fieldtrace traces field-level lineage through ETL mapping definitions.

It ingests mapping exports into an immutable lineage graph, then answers
"where does this column come from and where does it go" across mapping
boundaries, following physical tables and fuzzy-matched renames.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}

			level := slog.LevelInfo
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			}))

			cmd.SetContext(commands.WithSetup(cmd.Context(), cfg, logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Field-level lineage for ETL mappings
`)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./fieldtrace.yaml)")
	rootCmd.PersistentFlags().String("mappings-dir", "", "Path to mapping export directory")
	rootCmd.PersistentFlags().String("state-path", "", "Path to state database")
	rootCmd.PersistentFlags().Int("max-hops", 0, "Traversal hop budget (0 = default)")
	rootCmd.PersistentFlags().Float64("rename-threshold", 0, "Similarity cutoff for renamed stitches (0 = default)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(commands.NewVersionCommand(Version, BuildDate, GitCommit))
	rootCmd.AddCommand(commands.NewIngestCommand())
	rootCmd.AddCommand(commands.NewLookupCommand())
	rootCmd.AddCommand(commands.NewResetCommand())
	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(NewCompletionCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// NewCompletionCommand creates the completion command.
func NewCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for fieldtrace.

To load completions:

Bash:
  $ source <(fieldtrace completion bash)

Zsh:
  $ fieldtrace completion zsh > "${fpath[1]}/_fieldtrace"

Fish:
  $ fieldtrace completion fish | source

PowerShell:
  PS> fieldtrace completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletion(os.Stdout)
			case "zsh":
				return cmd.Root().GenZshCompletion(os.Stdout)
			case "fish":
				return cmd.Root().GenFishCompletion(os.Stdout, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(os.Stdout)
			}
			return nil
		},
	}
	return cmd
}
