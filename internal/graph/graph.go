// Package graph builds the immutable in-memory lineage graph from one
// ingest's record set. A Snapshot holds per-mapping adjacency plus the
// global physical-endpoint index that makes cross-mapping stitching
// possible; it is never mutated after Build returns, so any number of
// traversals may read it concurrently.
package graph

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/fieldtrace/internal/record"
)

// Binding ties a port to the physical endpoint it reads from or writes to.
type Binding struct {
	Port     record.Port
	Endpoint record.Endpoint
	// MappingID and InstanceName are denormalized from the owning instance
	// so traversal never has to chase ids mid-walk.
	MappingID    string
	InstanceName string
	InstanceKind string
}

// Key returns the binding endpoint's normalized key.
func (b Binding) Key() string {
	return b.Endpoint.NormalizedKey()
}

// Snapshot is the complete lineage graph for one record generation.
type Snapshot struct {
	mappings  map[string]record.Mapping
	instances map[string]record.Instance
	ports     map[string]record.Port
	endpoints map[string]record.Endpoint
	workflows map[string]record.Workflow

	outgoing map[string][]record.Edge // from-port id -> edges
	incoming map[string][]record.Edge // to-port id -> edges

	byKey    map[string][]Binding // normalized endpoint key -> bindings
	byColumn map[string][]Binding // normalized column portion -> bindings
	byPort   map[string]Binding   // port id -> its binding

	memberOf map[string][]string // mapping id -> workflow ids, sorted
}

// Mapping returns the mapping record for id.
func (s *Snapshot) Mapping(id string) (record.Mapping, bool) {
	m, ok := s.mappings[id]
	return m, ok
}

// Instance returns the instance record for id.
func (s *Snapshot) Instance(id string) (record.Instance, bool) {
	i, ok := s.instances[id]
	return i, ok
}

// Port returns the port record for id.
func (s *Snapshot) Port(id string) (record.Port, bool) {
	p, ok := s.ports[id]
	return p, ok
}

// Outgoing returns the edges leaving the given port, in stable order.
func (s *Snapshot) Outgoing(portID string) []record.Edge {
	return s.outgoing[portID]
}

// Incoming returns the edges arriving at the given port, in stable order.
func (s *Snapshot) Incoming(portID string) []record.Edge {
	return s.incoming[portID]
}

// BindingFor returns the physical binding of a port, if it has one.
func (s *Snapshot) BindingFor(portID string) (Binding, bool) {
	b, ok := s.byPort[portID]
	return b, ok
}

// BindingsForKey returns every binding across all mappings that shares the
// given normalized endpoint key.
func (s *Snapshot) BindingsForKey(key string) []Binding {
	return s.byKey[key]
}

// BindingsForColumn returns every binding whose endpoint's normalized column
// portion equals col. This is the anchor lookup for field-name queries.
func (s *Snapshot) BindingsForColumn(col string) []Binding {
	return s.byColumn[col]
}

// AllBindings returns every physical binding in the snapshot, grouped by
// normalized key in sorted key order. Rename stitching scans these.
func (s *Snapshot) AllBindings() []Binding {
	out := make([]Binding, 0, len(s.byPort))
	for _, key := range sortedKeys(s.byKey) {
		out = append(out, s.byKey[key]...)
	}
	return out
}

// SharesWorkflow reports whether two mappings appear in a common workflow.
func (s *Snapshot) SharesWorkflow(mappingA, mappingB string) bool {
	for _, wa := range s.memberOf[mappingA] {
		for _, wb := range s.memberOf[mappingB] {
			if wa == wb {
				return true
			}
		}
	}
	return false
}

// MappingCount returns the number of mappings in the snapshot.
func (s *Snapshot) MappingCount() int { return len(s.mappings) }

// EndpointCount returns the number of physical endpoints in the snapshot.
func (s *Snapshot) EndpointCount() int { return len(s.endpoints) }

// Mappings returns all mapping records sorted by id.
func (s *Snapshot) Mappings() []record.Mapping {
	out := make([]record.Mapping, 0, len(s.mappings))
	for _, id := range sortedKeys(s.mappings) {
		out = append(out, s.mappings[id])
	}
	return out
}

// Workflows returns all workflow records sorted by id.
func (s *Snapshot) Workflows() []record.Workflow {
	out := make([]record.Workflow, 0, len(s.workflows))
	for _, id := range sortedKeys(s.workflows) {
		out = append(out, s.workflows[id])
	}
	return out
}

// Edges returns every intra-mapping edge, ordered by from-port id.
func (s *Snapshot) Edges() []record.Edge {
	out := make([]record.Edge, 0)
	for _, id := range sortedKeys(s.outgoing) {
		out = append(out, s.outgoing[id]...)
	}
	return out
}

// MalformedGraphError reports referential inconsistencies in the input
// record set. Any such inconsistency indicates an upstream parsing defect,
// so the whole build is abandoned and no snapshot is produced.
type MalformedGraphError struct {
	Problems []string
}

func (e *MalformedGraphError) Error() string {
	const show = 3
	n := len(e.Problems)
	shown := e.Problems
	if n > show {
		shown = shown[:show]
	}
	msg := fmt.Sprintf("malformed graph: %d problem(s): %s", n, strings.Join(shown, "; "))
	if n > show {
		msg += fmt.Sprintf(" (and %d more)", n-show)
	}
	return msg
}
