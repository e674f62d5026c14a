// Package lineage implements the multi-hop traversal that answers "where
// did this field come from / where does it flow to" across mapping and
// workflow boundaries. It walks one immutable graph snapshot, using the
// rename resolver to bridge renamed columns, and returns ordered hop paths.
package lineage

import (
	"fmt"
	"strings"

	"github.com/leapstack-labs/fieldtrace/internal/graph"
)

// HopKind tags how a traversal step was discovered.
type HopKind string

const (
	// HopDirectEdge is an intra-mapping passthrough between bound ports.
	HopDirectEdge HopKind = "direct-edge"
	// HopExpressionDerived is an intra-mapping step through at least one
	// expression transformation.
	HopExpressionDerived HopKind = "expression-derived"
	// HopPhysicalStitch crosses into another mapping via an exactly
	// matching physical endpoint.
	HopPhysicalStitch HopKind = "physical-stitch"
	// HopRenamedStitch crosses into another mapping via a resolved rename;
	// it is the only hop kind that carries a confidence.
	HopRenamedStitch HopKind = "renamed-stitch"
)

// Direction selects which way the traversal walks from an anchor.
type Direction string

const (
	DirectionDownstream Direction = "downstream"
	DirectionUpstream   Direction = "upstream"
	DirectionBoth       Direction = "both"
)

// ParseDirection validates a direction string, defaulting empty to both.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(s)); d {
	case DirectionDownstream, DirectionUpstream, DirectionBoth:
		return d, nil
	case "":
		return DirectionBoth, nil
	}
	return "", fmt.Errorf("invalid direction %q (want downstream, upstream, or both)", s)
}

// Node is one end of a hop: a port together with the mapping and instance
// that own it and, when bound, its physical endpoint identity.
type Node struct {
	MappingID string `json:"mapping_id"`
	Mapping   string `json:"mapping"`
	Instance  string `json:"instance"`
	Port      string `json:"port"`
	Endpoint  string `json:"endpoint,omitempty"`
	Key       string `json:"-"`
}

// nodeFromBinding builds a Node for a physically bound port.
func nodeFromBinding(snap *graph.Snapshot, b graph.Binding) Node {
	name := b.MappingID
	if m, ok := snap.Mapping(b.MappingID); ok {
		name = m.Name
	}
	return Node{
		MappingID: b.MappingID,
		Mapping:   name,
		Instance:  b.InstanceName,
		Port:      b.Port.Name,
		Endpoint:  b.Endpoint.FullName(),
		Key:       b.Endpoint.NormalizedKey(),
	}
}

// Hop is one step in a lineage path. Expression carries the concatenated
// expression text traversed inside the hop's mapping span; Confidence is set
// for renamed stitches only.
type Hop struct {
	From       Node    `json:"from"`
	To         Node    `json:"to"`
	Kind       HopKind `json:"kind"`
	Confidence float64 `json:"confidence,omitempty"`
	Expression string  `json:"expression,omitempty"`
}

// Path is one ordered hop sequence from an anchor. A path with zero hops
// means the anchor exists but is an origin or terminus in that direction.
type Path struct {
	Anchor    Node      `json:"anchor"`
	Direction Direction `json:"direction"`
	Hops      []Hop     `json:"hops"`
}

// Result is the outcome of one field lookup. Paths is never empty when the
// lookup anchored; "no anchor at all" is *FieldNotFoundError instead.
type Result struct {
	Field           string `json:"field"`
	NormalizedField string `json:"normalized_field"`
	Paths           []Path `json:"paths"`
}

// FieldNotFoundError reports that no physical endpoint anywhere matches the
// queried field name. It is an expected outcome, not a defect, and is
// distinguishable from "anchored but with zero hops".
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not bound to any physical endpoint", e.Field)
}
