package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/fieldtrace/internal/api"
)

// ServeOptions holds options for the serve command.
type ServeOptions struct {
	Port  int
	Watch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand() *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the lineage API server",
		Long: `Start a local HTTP server exposing lineage lookups.

Endpoints:
  GET  /api/health           Snapshot status and counts
  GET  /api/lookup           Trace lineage (?field=..., ?direction=..., ?format=csv)
  POST /api/ingest           Re-parse the mappings directory
  POST /api/reset            Clear state and publish an empty graph
  GET  /api/debug/mappings   Loaded mappings
  GET  /api/debug/endpoints  Physical endpoint index`,
		Example: `  # Serve on the default port
  fieldtrace serve

  # Serve on a custom port, re-ingesting on file changes
  fieldtrace serve --port 3000 --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().IntVar(&opts.Port, "port", 0, "Port to serve on (default: 8731)")
	cmd.Flags().BoolVar(&opts.Watch, "watch", false, "Re-ingest when mapping exports change")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	cfg := getConfig(cmd.Context())
	logger := getLogger(cmd.Context())

	port := cfg.Port
	if opts.Port != 0 {
		port = opts.Port
	}
	watch := cfg.Watch
	if cmd.Flags().Changed("watch") {
		watch = opts.Watch
	}

	eng, err := createEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}
	defer func() { _ = eng.Close() }()

	// Warm the snapshot from the exports if present; a missing directory is
	// fine, the server starts against whatever the store already holds.
	if _, statErr := os.Stat(cfg.MappingsDir); statErr == nil {
		if _, err := eng.IngestDir(cmd.Context()); err != nil {
			logger.Warn("initial ingest failed, serving stored snapshot", "error", err)
		}
	}

	server := api.NewServer(api.Config{
		Engine:      eng,
		Port:        port,
		Watch:       watch,
		MappingsDir: cfg.MappingsDir,
		Logger:      logger,
	})

	fmt.Printf("Starting API server on http://localhost:%d\n", port)
	fmt.Println("Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.Serve(ctx)
}
