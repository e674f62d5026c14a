// Package commands implements the fieldtrace subcommands.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/leapstack-labs/fieldtrace/internal/cli/config"
	"github.com/leapstack-labs/fieldtrace/internal/engine"
	"github.com/leapstack-labs/fieldtrace/internal/state"
)

type configKey struct{}
type loggerKey struct{}

// WithSetup stores the loaded config and logger in the command context.
func WithSetup(ctx context.Context, cfg *config.Config, logger *slog.Logger) context.Context {
	ctx = context.WithValue(ctx, configKey{}, cfg)
	return context.WithValue(ctx, loggerKey{}, logger)
}

func getConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	return &config.Config{
		MappingsDir: config.DefaultMappingsDir,
		StatePath:   config.DefaultStateFile,
		Port:        config.DefaultPort,
	}
}

func getLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// createEngine opens the state store, migrates it, and builds an engine
// from the current configuration.
func createEngine(cfg *config.Config, logger *slog.Logger) (*engine.Engine, error) {
	stateDir := filepath.Dir(cfg.StatePath)
	if stateDir != "." && stateDir != "" {
		if err := os.MkdirAll(stateDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	store := state.NewSQLiteStore(logger)
	if err := store.Open(cfg.StatePath); err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}

	eng, err := engine.New(engine.Config{
		Store:           store,
		MappingsDir:     cfg.MappingsDir,
		RenameThreshold: cfg.RenameThreshold,
		MaxHops:         cfg.MaxHops,
		Logger:          logger,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return eng, nil
}
