package graph

import (
	"fmt"
	"sort"

	"github.com/leapstack-labs/fieldtrace/internal/record"
)

// Build converts a record set into an immutable snapshot. It validates
// referential consistency first: an edge naming an unknown port, a port
// naming an unknown instance, or a port bound to an unknown endpoint fails
// the entire build with *MalformedGraphError. Building is deterministic and
// order-independent: the same record set always yields the same snapshot,
// with every multi-valued index in stable sorted order.
func Build(set *record.Set) (*Snapshot, error) {
	if set == nil {
		set = &record.Set{}
	}

	s := &Snapshot{
		mappings:  make(map[string]record.Mapping, len(set.Mappings)),
		instances: make(map[string]record.Instance, len(set.Instances)),
		ports:     make(map[string]record.Port, len(set.Ports)),
		endpoints: make(map[string]record.Endpoint, len(set.Endpoints)),
		workflows: make(map[string]record.Workflow, len(set.Workflows)),
		outgoing:  make(map[string][]record.Edge),
		incoming:  make(map[string][]record.Edge),
		byKey:     make(map[string][]Binding),
		byColumn:  make(map[string][]Binding),
		byPort:    make(map[string]Binding, len(set.Ports)),
		memberOf:  make(map[string][]string),
	}

	for _, m := range set.Mappings {
		s.mappings[m.ID] = m
	}
	for _, e := range set.Endpoints {
		s.endpoints[e.ID] = e
	}
	for _, w := range set.Workflows {
		s.workflows[w.ID] = w
	}

	var problems []string

	for _, inst := range set.Instances {
		if _, ok := s.mappings[inst.MappingID]; !ok {
			problems = append(problems, fmt.Sprintf("instance %q references missing mapping %q", inst.ID, inst.MappingID))
			continue
		}
		s.instances[inst.ID] = inst
	}

	for _, p := range set.Ports {
		inst, ok := s.instances[p.InstanceID]
		if !ok {
			problems = append(problems, fmt.Sprintf("port %q references missing instance %q", p.ID, p.InstanceID))
			continue
		}
		s.ports[p.ID] = p

		if p.EndpointID == "" {
			continue
		}
		ep, ok := s.endpoints[p.EndpointID]
		if !ok {
			problems = append(problems, fmt.Sprintf("port %q references missing endpoint %q", p.ID, p.EndpointID))
			continue
		}
		b := Binding{
			Port:         p,
			Endpoint:     ep,
			MappingID:    inst.MappingID,
			InstanceName: inst.Name,
			InstanceKind: inst.Kind,
		}
		s.byPort[p.ID] = b
		s.byKey[b.Key()] = append(s.byKey[b.Key()], b)
		s.byColumn[ep.NormalizedColumn()] = append(s.byColumn[ep.NormalizedColumn()], b)
	}

	for _, e := range set.Edges {
		from, fromOK := s.ports[e.FromPortID]
		to, toOK := s.ports[e.ToPortID]
		if !fromOK {
			problems = append(problems, fmt.Sprintf("edge %s->%s references missing port %q", e.FromPortID, e.ToPortID, e.FromPortID))
			continue
		}
		if !toOK {
			problems = append(problems, fmt.Sprintf("edge %s->%s references missing port %q", e.FromPortID, e.ToPortID, e.ToPortID))
			continue
		}
		// Edges are intra-mapping only. A cross-mapping edge means the
		// parser mixed up instance ownership.
		fromInst := s.instances[from.InstanceID]
		toInst := s.instances[to.InstanceID]
		if fromInst.MappingID != toInst.MappingID {
			problems = append(problems, fmt.Sprintf("edge %s->%s crosses mappings %q and %q", e.FromPortID, e.ToPortID, fromInst.MappingID, toInst.MappingID))
			continue
		}
		s.outgoing[e.FromPortID] = append(s.outgoing[e.FromPortID], e)
		s.incoming[e.ToPortID] = append(s.incoming[e.ToPortID], e)
	}

	for _, w := range set.Workflows {
		for _, mid := range w.MappingIDs {
			if _, ok := s.mappings[mid]; !ok {
				problems = append(problems, fmt.Sprintf("workflow %q references missing mapping %q", w.ID, mid))
				continue
			}
			s.memberOf[mid] = append(s.memberOf[mid], w.ID)
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, &MalformedGraphError{Problems: problems}
	}

	s.sortIndexes()
	return s, nil
}

// sortIndexes puts every multi-valued index into a stable order so that
// repeated builds of the same record set are byte-for-byte identical.
func (s *Snapshot) sortIndexes() {
	for _, edges := range s.outgoing {
		sortEdges(edges)
	}
	for _, edges := range s.incoming {
		sortEdges(edges)
	}
	for _, bindings := range s.byKey {
		sortBindings(bindings)
	}
	for _, bindings := range s.byColumn {
		sortBindings(bindings)
	}
	for _, ids := range s.memberOf {
		sort.Strings(ids)
	}
}

func sortEdges(edges []record.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].FromPortID != edges[j].FromPortID {
			return edges[i].FromPortID < edges[j].FromPortID
		}
		return edges[i].ToPortID < edges[j].ToPortID
	})
}

func sortBindings(bindings []Binding) {
	sort.Slice(bindings, func(i, j int) bool {
		if bindings[i].MappingID != bindings[j].MappingID {
			return bindings[i].MappingID < bindings[j].MappingID
		}
		return bindings[i].Port.ID < bindings[j].Port.ID
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
