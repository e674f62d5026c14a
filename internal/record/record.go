// Package record defines the typed records produced by the mapping parser
// and persisted by the record store. The lineage graph is a read-only
// projection built from one consistent set of these records.
package record

// Direction describes which way data moves through a port.
type Direction string

const (
	DirectionInput  Direction = "INPUT"
	DirectionOutput Direction = "OUTPUT"
	DirectionBoth   Direction = "VARIABLE"
)

// EndpointRole distinguishes where a physical endpoint sits relative to the
// mapping that binds it: a source endpoint feeds the mapping, a target
// endpoint receives from it.
type EndpointRole string

const (
	RoleSource EndpointRole = "SOURCE"
	RoleTarget EndpointRole = "TARGET"
)

// Mapping is a named collection of instances, ports, and edges.
type Mapping struct {
	ID     string `json:"mapping_id"`
	Name   string `json:"name"`
	Folder string `json:"folder"`
}

// Workflow is an ordered chain of mappings. Ordering is only used to prefer
// workflow-adjacent mappings when ranking cross-mapping stitch candidates.
type Workflow struct {
	ID         string   `json:"workflow_id"`
	Name       string   `json:"name"`
	MappingIDs []string `json:"mapping_ids"`
}

// Instance is one processing step inside a mapping (source qualifier,
// expression, lookup, target, ...). It is owned exclusively by its mapping.
type Instance struct {
	ID        string `json:"instance_id"`
	MappingID string `json:"mapping_id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
}

// Instance kinds the builder and traversal care about. Anything else is an
// intermediate transformation.
const (
	KindSource         = "Source"
	KindTarget         = "Target"
	KindTransformation = "Transformation"
)

// Port is a named attribute on an instance. EndpointID is set only for
// source-instance output ports and target-instance input ports, binding the
// port to a physical endpoint.
type Port struct {
	ID         string    `json:"port_id"`
	InstanceID string    `json:"instance_id"`
	Name       string    `json:"name"`
	DataType   string    `json:"dtype,omitempty"`
	Direction  Direction `json:"direction"`
	EndpointID string    `json:"endpoint_id,omitempty"`
}

// Edge is a directed intra-mapping link between two ports, optionally
// annotated with the expression that derives the destination value.
// Cross-mapping connectivity is never an Edge; it is discovered at traversal
// time through shared physical endpoints.
type Edge struct {
	FromPortID string `json:"from_port_id"`
	ToPortID   string `json:"to_port_id"`
	Expression string `json:"expression,omitempty"`
}

// Endpoint identifies a real table column outside any single mapping's
// internal graph. Endpoints are the join points between otherwise
// disconnected mapping graphs.
type Endpoint struct {
	ID     string       `json:"endpoint_id"`
	System string       `json:"system"`
	Table  string       `json:"table"`
	Column string       `json:"column"`
	Role   EndpointRole `json:"role"`
}

// Set holds every record kind for one ingest. A Set handed to the graph
// builder must come from a single consistent store read.
type Set struct {
	Mappings  []Mapping
	Workflows []Workflow
	Instances []Instance
	Ports     []Port
	Edges     []Edge
	Endpoints []Endpoint
}

// Empty reports whether the set contains no mappings at all.
func (s *Set) Empty() bool {
	return s == nil || len(s.Mappings) == 0
}

// Merge appends all records from other into s.
func (s *Set) Merge(other *Set) {
	if other == nil {
		return
	}
	s.Mappings = append(s.Mappings, other.Mappings...)
	s.Workflows = append(s.Workflows, other.Workflows...)
	s.Instances = append(s.Instances, other.Instances...)
	s.Ports = append(s.Ports, other.Ports...)
	s.Edges = append(s.Edges, other.Edges...)
	s.Endpoints = append(s.Endpoints, other.Endpoints...)
}
