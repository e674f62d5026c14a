// Package state persists parsed mapping records in SQLite so a restart can
// rebuild the lineage snapshot without re-parsing every export. It
// implements record.Store; all reads run inside one transaction so the
// graph builder always sees a consistent generation.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver (pure Go)

	"github.com/leapstack-labs/fieldtrace/internal/record"
)

// SQLiteStore implements record.Store on SQLite.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// NewSQLiteStore creates an unopened store.
func NewSQLiteStore(logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &SQLiteStore{logger: logger}
}

// Open opens the database at path. Use ":memory:" for an in-memory store.
func (s *SQLiteStore) Open(path string) error {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("state: opening sqlite database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty
		// in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("state: pinging sqlite database: %w", err)
	}

	s.db = db
	s.path = path
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// recordTables in delete/insert order.
var recordTables = []string{
	"mappings", "workflows", "workflow_mappings",
	"instances", "ports", "edges", "endpoints",
}

// All reads every record in one transaction.
func (s *SQLiteStore) All(ctx context.Context) (*record.Set, error) {
	if s.db == nil {
		return nil, fmt.Errorf("state: database not opened")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("state: beginning read transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	set := &record.Set{}

	rows, err := tx.QueryContext(ctx, `SELECT mapping_id, name, folder FROM mappings ORDER BY mapping_id`)
	if err != nil {
		return nil, fmt.Errorf("state: reading mappings: %w", err)
	}
	for rows.Next() {
		var m record.Mapping
		if err := rows.Scan(&m.ID, &m.Name, &m.Folder); err != nil {
			_ = rows.Close()
			return nil, err
		}
		set.Mappings = append(set.Mappings, m)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT workflow_id, name FROM workflows ORDER BY workflow_id`)
	if err != nil {
		return nil, fmt.Errorf("state: reading workflows: %w", err)
	}
	workflowIdx := make(map[string]int)
	for rows.Next() {
		var w record.Workflow
		if err := rows.Scan(&w.ID, &w.Name); err != nil {
			_ = rows.Close()
			return nil, err
		}
		workflowIdx[w.ID] = len(set.Workflows)
		set.Workflows = append(set.Workflows, w)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT workflow_id, mapping_id FROM workflow_mappings ORDER BY workflow_id, position`)
	if err != nil {
		return nil, fmt.Errorf("state: reading workflow members: %w", err)
	}
	for rows.Next() {
		var workflowID, mappingID string
		if err := rows.Scan(&workflowID, &mappingID); err != nil {
			_ = rows.Close()
			return nil, err
		}
		if i, ok := workflowIdx[workflowID]; ok {
			set.Workflows[i].MappingIDs = append(set.Workflows[i].MappingIDs, mappingID)
		}
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT instance_id, mapping_id, name, kind FROM instances ORDER BY instance_id`)
	if err != nil {
		return nil, fmt.Errorf("state: reading instances: %w", err)
	}
	for rows.Next() {
		var inst record.Instance
		if err := rows.Scan(&inst.ID, &inst.MappingID, &inst.Name, &inst.Kind); err != nil {
			_ = rows.Close()
			return nil, err
		}
		set.Instances = append(set.Instances, inst)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT port_id, instance_id, name, dtype, direction, endpoint_id FROM ports ORDER BY port_id`)
	if err != nil {
		return nil, fmt.Errorf("state: reading ports: %w", err)
	}
	for rows.Next() {
		var p record.Port
		var dir string
		if err := rows.Scan(&p.ID, &p.InstanceID, &p.Name, &p.DataType, &dir, &p.EndpointID); err != nil {
			_ = rows.Close()
			return nil, err
		}
		p.Direction = record.Direction(dir)
		set.Ports = append(set.Ports, p)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT from_port_id, to_port_id, expression FROM edges ORDER BY from_port_id, to_port_id`)
	if err != nil {
		return nil, fmt.Errorf("state: reading edges: %w", err)
	}
	for rows.Next() {
		var e record.Edge
		if err := rows.Scan(&e.FromPortID, &e.ToPortID, &e.Expression); err != nil {
			_ = rows.Close()
			return nil, err
		}
		set.Edges = append(set.Edges, e)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	rows, err = tx.QueryContext(ctx, `SELECT endpoint_id, system, table_name, column_name, role FROM endpoints ORDER BY endpoint_id`)
	if err != nil {
		return nil, fmt.Errorf("state: reading endpoints: %w", err)
	}
	for rows.Next() {
		var ep record.Endpoint
		var role string
		if err := rows.Scan(&ep.ID, &ep.System, &ep.Table, &ep.Column, &role); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ep.Role = record.EndpointRole(role)
		set.Endpoints = append(set.Endpoints, ep)
	}
	if err := closeRows(rows); err != nil {
		return nil, err
	}

	return set, tx.Commit()
}

// ReplaceAll swaps the stored generation for the given set in one
// transaction and returns the new batch id.
func (s *SQLiteStore) ReplaceAll(ctx context.Context, set *record.Set) (string, error) {
	if s.db == nil {
		return "", fmt.Errorf("state: database not opened")
	}
	if set == nil {
		set = &record.Set{}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("state: beginning write transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range recordTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return "", fmt.Errorf("state: clearing %s: %w", table, err)
		}
	}

	for _, m := range set.Mappings {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO mappings (mapping_id, name, folder) VALUES (?, ?, ?)`,
			m.ID, m.Name, m.Folder); err != nil {
			return "", fmt.Errorf("state: inserting mapping %s: %w", m.ID, err)
		}
	}
	for _, w := range set.Workflows {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO workflows (workflow_id, name) VALUES (?, ?)`,
			w.ID, w.Name); err != nil {
			return "", fmt.Errorf("state: inserting workflow %s: %w", w.ID, err)
		}
		for pos, mid := range w.MappingIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO workflow_mappings (workflow_id, position, mapping_id) VALUES (?, ?, ?)`,
				w.ID, pos, mid); err != nil {
				return "", fmt.Errorf("state: inserting workflow member %s/%s: %w", w.ID, mid, err)
			}
		}
	}
	for _, inst := range set.Instances {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO instances (instance_id, mapping_id, name, kind) VALUES (?, ?, ?, ?)`,
			inst.ID, inst.MappingID, inst.Name, inst.Kind); err != nil {
			return "", fmt.Errorf("state: inserting instance %s: %w", inst.ID, err)
		}
	}
	for _, p := range set.Ports {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO ports (port_id, instance_id, name, dtype, direction, endpoint_id) VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, p.InstanceID, p.Name, p.DataType, string(p.Direction), p.EndpointID); err != nil {
			return "", fmt.Errorf("state: inserting port %s: %w", p.ID, err)
		}
	}
	for _, e := range set.Edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO edges (from_port_id, to_port_id, expression) VALUES (?, ?, ?)`,
			e.FromPortID, e.ToPortID, e.Expression); err != nil {
			return "", fmt.Errorf("state: inserting edge %s->%s: %w", e.FromPortID, e.ToPortID, err)
		}
	}
	for _, ep := range set.Endpoints {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO endpoints (endpoint_id, system, table_name, column_name, role) VALUES (?, ?, ?, ?, ?)`,
			ep.ID, ep.System, ep.Table, ep.Column, string(ep.Role)); err != nil {
			return "", fmt.Errorf("state: inserting endpoint %s: %w", ep.ID, err)
		}
	}

	batchID := uuid.New().String()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO batches (batch_id, created_at) VALUES (?, ?)`,
		batchID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("state: recording batch: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("state: committing batch: %w", err)
	}

	s.logger.Debug("record batch stored",
		"batch", batchID,
		"mappings", len(set.Mappings),
		"ports", len(set.Ports),
		"edges", len(set.Edges))
	return batchID, nil
}

// Reset deletes every stored record.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("state: database not opened")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("state: beginning reset transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range recordTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("state: clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func closeRows(rows *sql.Rows) error {
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	return rows.Close()
}
