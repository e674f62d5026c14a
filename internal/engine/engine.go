// Package engine wires the record store, graph builder, rename resolver,
// and traversal engine into the three operations the surrounding
// application needs: ingest, lookup, and reset.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/leapstack-labs/fieldtrace/internal/graph"
	"github.com/leapstack-labs/fieldtrace/internal/lineage"
	"github.com/leapstack-labs/fieldtrace/internal/parser"
	"github.com/leapstack-labs/fieldtrace/internal/record"
	"github.com/leapstack-labs/fieldtrace/internal/rename"
)

// snapshot pairs one immutable graph generation with its traverser. Readers
// grab the whole pair atomically, so a lookup in flight always completes
// against the generation it started with.
type snapshot struct {
	graph     *graph.Snapshot
	traverser *lineage.Traverser
	version   string
	builtAt   time.Time
}

// Engine orchestrates ingest, lookup, and reset over one record store.
// Lookups are lock-free; ingest and reset serialize on a single writer lock
// and swap the snapshot pointer atomically.
type Engine struct {
	store    record.Store
	resolver *rename.Resolver
	logger   *slog.Logger

	mappingsDir string
	maxHops     int

	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
}

// Config holds engine configuration.
type Config struct {
	// Store persists parsed records between restarts.
	Store record.Store
	// MappingsDir is scanned for mapping/workflow XML exports by IngestDir.
	MappingsDir string
	// RenameThreshold is the similarity cutoff for renamed stitches
	// (default rename.DefaultThreshold).
	RenameThreshold float64
	// MaxHops is the default traversal hop budget (default lineage.DefaultMaxHops).
	MaxHops int
	// Logger is the structured logger (optional, discard if nil).
	Logger *slog.Logger
}

// New creates an engine. If the store already holds records from a previous
// run, the snapshot is rebuilt from them; otherwise lookups start against an
// empty graph until the first ingest.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("engine: record store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = lineage.DefaultMaxHops
	}

	e := &Engine{
		store:       cfg.Store,
		resolver:    rename.New(cfg.RenameThreshold),
		logger:      logger,
		mappingsDir: cfg.MappingsDir,
		maxHops:     maxHops,
	}

	set, err := cfg.Store.All(context.Background())
	if err != nil {
		return nil, fmt.Errorf("engine: reading record store: %w", err)
	}
	if err := e.swap(set); err != nil {
		// A store carrying malformed records from an older run should not
		// prevent startup; start empty and let the next ingest replace it.
		logger.Warn("stored records are inconsistent, starting empty", "error", err)
		if swapErr := e.swap(&record.Set{}); swapErr != nil {
			return nil, swapErr
		}
	}
	return e, nil
}

// swap builds a fresh snapshot from set and publishes it. On build failure
// the previous snapshot stays published.
func (e *Engine) swap(set *record.Set) error {
	g, err := graph.Build(set)
	if err != nil {
		return err
	}
	next := &snapshot{
		graph:     g,
		traverser: lineage.NewTraverser(g, e.resolver),
		version:   uuid.New().String(),
		builtAt:   time.Now().UTC(),
	}
	e.current.Store(next)
	e.logger.Debug("snapshot published",
		"version", next.version,
		"mappings", g.MappingCount(),
		"endpoints", g.EndpointCount())
	return nil
}

// Ingest validates and publishes a record set, persisting it to the store.
// All-or-nothing: a malformed set leaves both the store and the current
// snapshot untouched. Returns the new snapshot version.
func (e *Engine) Ingest(ctx context.Context, set *record.Set) (string, error) {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	// Build first so a malformed set never reaches the store.
	if _, err := graph.Build(set); err != nil {
		return "", err
	}
	if _, err := e.store.ReplaceAll(ctx, set); err != nil {
		return "", fmt.Errorf("engine: persisting records: %w", err)
	}
	if err := e.swap(set); err != nil {
		return "", err
	}
	return e.Version(), nil
}

// FileError records a single file that failed to parse during IngestDir.
type FileError struct {
	File  string `json:"file"`
	Error string `json:"error"`
}

// IngestReport summarizes one directory ingest.
type IngestReport struct {
	Version   string      `json:"version"`
	Dir       string      `json:"dir"`
	Files     int         `json:"files"`
	Loaded    []string    `json:"loaded"`
	Errors    []FileError `json:"errors,omitempty"`
	Mappings  int         `json:"mappings"`
	Workflows int         `json:"workflows"`
	Endpoints int         `json:"endpoints"`
}

// IngestDir parses every XML export under the configured mappings directory
// and ingests the combined record set. Files that fail to parse are reported
// and skipped; only referential inconsistency in the combined set aborts the
// whole ingest.
func (e *Engine) IngestDir(ctx context.Context) (*IngestReport, error) {
	if e.mappingsDir == "" {
		return nil, errors.New("engine: no mappings directory configured")
	}
	files, err := xmlFiles(e.mappingsDir)
	if err != nil {
		return nil, fmt.Errorf("engine: scanning %s: %w", e.mappingsDir, err)
	}

	report := &IngestReport{Dir: e.mappingsDir, Files: len(files)}
	combined := &record.Set{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		set, err := parser.ParseFile(f)
		if err != nil {
			e.logger.Warn("skipping unparseable file", "file", f, "error", err)
			report.Errors = append(report.Errors, FileError{File: f, Error: err.Error()})
			continue
		}
		combined.Merge(set)
		report.Loaded = append(report.Loaded, f)
	}

	version, err := e.Ingest(ctx, combined)
	if err != nil {
		return nil, err
	}
	report.Version = version
	report.Mappings = len(combined.Mappings)
	report.Workflows = len(combined.Workflows)
	report.Endpoints = len(combined.Endpoints)

	e.logger.Info("ingest complete",
		"dir", e.mappingsDir,
		"files", report.Files,
		"mappings", report.Mappings,
		"errors", len(report.Errors))
	return report, nil
}

// LookupOptions configures one lookup.
type LookupOptions struct {
	Direction lineage.Direction
	MaxHops   int
}

// Lookup traverses lineage for a field name against the current snapshot.
// Returns *lineage.FieldNotFoundError when the field is not bound anywhere.
func (e *Engine) Lookup(ctx context.Context, field string, opts LookupOptions) (*lineage.Result, error) {
	snap := e.current.Load()
	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = e.maxHops
	}
	return snap.traverser.Traverse(ctx, field, lineage.Options{
		Direction: opts.Direction,
		MaxHops:   maxHops,
	})
}

// Reset clears the store and publishes an empty snapshot.
func (e *Engine) Reset(ctx context.Context) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	if err := e.store.Reset(ctx); err != nil {
		return fmt.Errorf("engine: resetting store: %w", err)
	}
	return e.swap(&record.Set{})
}

// Snapshot exposes the current graph generation for debug surfaces.
func (e *Engine) Snapshot() *graph.Snapshot {
	return e.current.Load().graph
}

// Version returns the current snapshot version.
func (e *Engine) Version() string {
	return e.current.Load().version
}

// BuiltAt returns when the current snapshot was built.
func (e *Engine) BuiltAt() time.Time {
	return e.current.Load().builtAt
}

// Close releases the record store.
func (e *Engine) Close() error {
	return e.store.Close()
}

// xmlFiles returns all .xml files under root, sorted for deterministic
// ingest order.
func xmlFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".xml") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
