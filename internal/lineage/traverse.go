package lineage

import (
	"context"
	"sort"
	"strings"

	"github.com/leapstack-labs/fieldtrace/internal/graph"
	"github.com/leapstack-labs/fieldtrace/internal/record"
	"github.com/leapstack-labs/fieldtrace/internal/rename"
)

// DefaultMaxHops bounds a traversal branch when the caller does not provide
// a hop budget. Generous but finite: fuzzy rename bridges could otherwise
// chain indefinitely through near-synonymous columns.
const DefaultMaxHops = 50

// Options configures one traversal.
type Options struct {
	// Direction selects upstream, downstream, or both. Default both.
	Direction Direction
	// MaxHops bounds every branch. Zero or negative means DefaultMaxHops.
	MaxHops int
}

// Traverser walks one snapshot. It is stateless between calls, so a single
// Traverser may serve concurrent lookups against the same snapshot.
type Traverser struct {
	snap     *graph.Snapshot
	resolver *rename.Resolver
}

// NewTraverser returns a traverser over the given snapshot.
func NewTraverser(snap *graph.Snapshot, resolver *rename.Resolver) *Traverser {
	return &Traverser{snap: snap, resolver: resolver}
}

// Traverse resolves anchors for the queried field name and walks each one in
// the requested direction(s). It returns *FieldNotFoundError when no
// physical endpoint matches the field at all; an anchored field with no
// continuations yields a zero-hop path instead.
func (t *Traverser) Traverse(ctx context.Context, field string, opts Options) (*Result, error) {
	normField := record.NormalizeToken(lastNameToken(field))
	if normField == "" {
		return nil, &FieldNotFoundError{Field: field}
	}

	anchors := t.snap.BindingsForColumn(normField)
	if len(anchors) == 0 {
		return nil, &FieldNotFoundError{Field: field}
	}

	maxHops := opts.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	var directions []Direction
	switch opts.Direction {
	case DirectionUpstream:
		directions = []Direction{DirectionUpstream}
	case DirectionDownstream:
		directions = []Direction{DirectionDownstream}
	default:
		directions = []Direction{DirectionDownstream, DirectionUpstream}
	}

	result := &Result{Field: field, NormalizedField: normField}
	for _, anchor := range anchors {
		for _, dir := range directions {
			paths, err := t.walk(ctx, anchor, dir, maxHops)
			if err != nil {
				return nil, err
			}
			result.Paths = append(result.Paths, paths...)
		}
	}
	return result, nil
}

// lastNameToken strips qualifiers like FOLDER:MAP:INST:COL or
// SCHEMA.TABLE.COL down to the final column token.
func lastNameToken(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "."); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// branch is one in-flight traversal path. Each branch owns its visited set:
// revisiting a (mapping, port) pair along the same path is a dead end, which
// is what keeps imprecise rename matches from looping forever.
type branch struct {
	cur     graph.Binding
	hops    []Hop
	visited map[string]struct{}
}

func visitKey(mappingID, portID string) string {
	return mappingID + "\x00" + portID
}

// walk explores every continuation from one anchor in one direction and
// returns the terminal paths in deterministic ranked order.
func (t *Traverser) walk(ctx context.Context, anchor graph.Binding, dir Direction, maxHops int) ([]Path, error) {
	anchorNode := nodeFromBinding(t.snap, anchor)

	root := branch{
		cur:     anchor,
		visited: map[string]struct{}{visitKey(anchor.MappingID, anchor.Port.ID): {}},
	}

	var paths []Path
	stack := []branch{root}
	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		br := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if len(br.hops) >= maxHops {
			paths = append(paths, Path{Anchor: anchorNode, Direction: dir, Hops: br.hops})
			continue
		}

		children := t.expand(br, dir)
		if len(children) == 0 {
			paths = append(paths, Path{Anchor: anchorNode, Direction: dir, Hops: br.hops})
			continue
		}
		// Push in reverse so the highest-ranked continuation is explored,
		// and therefore emitted, first.
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	return paths, nil
}

// expand produces the ranked child branches of br: intra-mapping
// continuations within the current mapping first, then cross-mapping
// stitches from the current boundary.
func (t *Traverser) expand(br branch, dir Direction) []branch {
	var children []branch

	for _, ir := range t.intraWalk(br.cur.MappingID, br.cur.Port.ID, dir, br.visited) {
		kind := HopDirectEdge
		if ir.derived {
			kind = HopExpressionDerived
		}
		child := br.fork(ir.to, Hop{
			From:       nodeFromBinding(t.snap, br.cur),
			To:         nodeFromBinding(t.snap, ir.to),
			Kind:       kind,
			Expression: joinExpressions(ir.exprs),
		})
		child.mark(br.cur.MappingID, ir.route)
		children = append(children, child)
	}

	children = append(children, t.stitches(br, dir)...)
	return children
}

// fork copies the branch with a new current boundary and an appended hop.
func (br branch) fork(to graph.Binding, hop Hop) branch {
	visited := make(map[string]struct{}, len(br.visited)+1)
	for k := range br.visited {
		visited[k] = struct{}{}
	}
	visited[visitKey(to.MappingID, to.Port.ID)] = struct{}{}

	hops := make([]Hop, len(br.hops), len(br.hops)+1)
	copy(hops, br.hops)
	return branch{cur: to, hops: append(hops, hop), visited: visited}
}

// mark adds intermediate route ports to the branch visited set.
func (br branch) mark(mappingID string, route []string) {
	for _, portID := range route {
		br.visited[visitKey(mappingID, portID)] = struct{}{}
	}
}

// stitchCandidate is one ranked cross-mapping continuation.
type stitchCandidate struct {
	entry        graph.Binding
	kind         HopKind
	confidence   float64
	sameWorkflow bool
}

// stitches finds cross-mapping continuations from the current boundary.
// Downstream, a target-role boundary is matched against other mappings'
// source endpoints; upstream, a source-role boundary against other mappings'
// target endpoints. Exact key matches are physical stitches; everything else
// goes through the rename resolver.
func (t *Traverser) stitches(br branch, dir Direction) []branch {
	boundary := br.cur
	fromRole, toRole := record.RoleTarget, record.RoleSource
	if dir == DirectionUpstream {
		fromRole, toRole = record.RoleSource, record.RoleTarget
	}
	if boundary.Endpoint.Role != fromRole {
		return nil
	}

	var candidates []stitchCandidate
	seen := make(map[string]struct{})

	for _, cand := range t.snap.BindingsForKey(boundary.Key()) {
		if cand.MappingID == boundary.MappingID || cand.Endpoint.Role != toRole {
			continue
		}
		seen[cand.Port.ID] = struct{}{}
		candidates = append(candidates, stitchCandidate{
			entry:        cand,
			kind:         HopPhysicalStitch,
			sameWorkflow: t.snap.SharesWorkflow(boundary.MappingID, cand.MappingID),
		})
	}

	for _, cand := range t.snap.AllBindings() {
		if cand.MappingID == boundary.MappingID || cand.Endpoint.Role != toRole {
			continue
		}
		if cand.Key() == boundary.Key() {
			continue
		}
		if _, dup := seen[cand.Port.ID]; dup {
			continue
		}
		match, ok := t.resolver.Resolve(boundary.Endpoint, cand.Endpoint)
		if !ok {
			continue
		}
		candidates = append(candidates, stitchCandidate{
			entry:        cand,
			kind:         HopRenamedStitch,
			confidence:   match.Confidence,
			sameWorkflow: t.snap.SharesWorkflow(boundary.MappingID, cand.MappingID),
		})
	}

	rankCandidates(candidates)

	var children []branch
	for _, c := range candidates {
		if _, cyc := br.visited[visitKey(c.entry.MappingID, c.entry.Port.ID)]; cyc {
			continue
		}
		children = append(children, t.stitchBranches(br, c, dir)...)
	}
	return children
}

// rankCandidates orders stitch continuations: physical before renamed, then
// workflow-adjacent mappings, then higher confidence, then lexicographic
// mapping id as the final deterministic tie-break.
func rankCandidates(candidates []stitchCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if (a.kind == HopPhysicalStitch) != (b.kind == HopPhysicalStitch) {
			return a.kind == HopPhysicalStitch
		}
		if a.sameWorkflow != b.sameWorkflow {
			return a.sameWorkflow
		}
		if a.confidence != b.confidence {
			return a.confidence > b.confidence
		}
		if a.entry.MappingID != b.entry.MappingID {
			return a.entry.MappingID < b.entry.MappingID
		}
		return a.entry.Port.ID < b.entry.Port.ID
	})
}

// stitchBranches carries the traversal across one stitch and through the
// stitched mapping to its next boundary, producing one hop (and one child
// branch) per boundary reached. When the landing port leads nowhere the hop
// ends at the landing endpoint itself.
func (t *Traverser) stitchBranches(br branch, c stitchCandidate, dir Direction) []branch {
	visited := make(map[string]struct{}, len(br.visited)+1)
	for k := range br.visited {
		visited[k] = struct{}{}
	}
	visited[visitKey(c.entry.MappingID, c.entry.Port.ID)] = struct{}{}

	confidence := 0.0
	if c.kind == HopRenamedStitch {
		confidence = c.confidence
	}

	inner := t.intraWalk(c.entry.MappingID, c.entry.Port.ID, dir, visited)
	if len(inner) == 0 {
		child := br.fork(c.entry, Hop{
			From:       nodeFromBinding(t.snap, br.cur),
			To:         nodeFromBinding(t.snap, c.entry),
			Kind:       c.kind,
			Confidence: confidence,
		})
		return []branch{child}
	}

	var children []branch
	for _, ir := range inner {
		child := br.fork(ir.to, Hop{
			From:       nodeFromBinding(t.snap, br.cur),
			To:         nodeFromBinding(t.snap, ir.to),
			Kind:       c.kind,
			Confidence: confidence,
			Expression: joinExpressions(ir.exprs),
		})
		child.visited[visitKey(c.entry.MappingID, c.entry.Port.ID)] = struct{}{}
		child.mark(c.entry.MappingID, ir.route)
		children = append(children, child)
	}
	return children
}

// intraResult is one boundary reached by an intra-mapping walk.
type intraResult struct {
	to      graph.Binding
	exprs   []string
	derived bool
	route   []string // intermediate port ids along this route
}

// intraWalk follows edges in the requested direction from a port, staying
// inside one mapping, until bound ports are reached. Traversal stops at a
// boundary; expression text accumulates per traversed edge. Ports already in
// the branch visited set are dead ends. A dangling edge target, which the
// builder should have rejected, degrades that route rather than failing the
// walk.
func (t *Traverser) intraWalk(mappingID, fromPortID string, dir Direction, visited map[string]struct{}) []intraResult {
	type walkItem struct {
		portID  string
		route   []string
		exprs   []string
		derived bool
	}

	var results []intraResult
	stack := []walkItem{{portID: fromPortID}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		var edges []record.Edge
		if dir == DirectionUpstream {
			edges = t.snap.Incoming(it.portID)
		} else {
			edges = t.snap.Outgoing(it.portID)
		}

		var deeper []walkItem
		for _, edge := range edges {
			nextID := edge.ToPortID
			if dir == DirectionUpstream {
				nextID = edge.FromPortID
			}
			if _, cyc := visited[visitKey(mappingID, nextID)]; cyc {
				continue
			}
			if onRoute(it.route, nextID) {
				continue
			}
			if _, ok := t.snap.Port(nextID); !ok {
				continue
			}

			exprs := it.exprs
			derived := it.derived
			if edge.Expression != "" {
				exprs = append(append([]string(nil), exprs...), edge.Expression)
				derived = true
			}
			route := append(append([]string(nil), it.route...), nextID)

			if b, bound := t.snap.BindingFor(nextID); bound {
				results = append(results, intraResult{to: b, exprs: exprs, derived: derived, route: route})
				continue
			}
			deeper = append(deeper, walkItem{portID: nextID, route: route, exprs: exprs, derived: derived})
		}
		for i := len(deeper) - 1; i >= 0; i-- {
			stack = append(stack, deeper[i])
		}
	}
	return results
}

func onRoute(route []string, portID string) bool {
	for _, id := range route {
		if id == portID {
			return true
		}
	}
	return false
}

func joinExpressions(exprs []string) string {
	return strings.Join(exprs, "; ")
}
