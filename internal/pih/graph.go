package pih

import (
	"fmt"
	"slices"
	"sort"
)

// Graph is the id-indexed mutable working form of a GraphInstance.
//
// Elements live in CID-keyed tables rather than a pointer graph: this keeps
// identity explicit, avoids aliasing, and makes diffing (the change log)
// plain equality-by-CID comparison.
//
// A Graph is exclusively owned by the goroutine executing a strategy run;
// it is not safe for concurrent mutation.
type Graph struct {
	kind       GraphKind
	nodes      map[Cid]*Node
	edges      map[Cid]*Edge
	incidences map[string]*Incidence // keyed by Incidence.Key()
	byEdge     map[Cid][]string      // edge CID -> incidence keys
	byNode     map[Cid][]string      // node CID -> incidence keys
	attrs      Attrs
	boundary   *Boundary
}

// NewGraph creates an empty graph of the given kind.
func NewGraph(kind GraphKind) *Graph {
	return &Graph{
		kind:       kind,
		nodes:      make(map[Cid]*Node),
		edges:      make(map[Cid]*Edge),
		incidences: make(map[string]*Incidence),
		byEdge:     make(map[Cid][]string),
		byNode:     make(map[Cid][]string),
	}
}

// FromInstance builds a Graph from a GraphInstance, validating the model
// invariants: unique CIDs, resolvable edge endpoints, unique incidences,
// and contiguous positional DataIn/DataOut indices per edge.
func FromInstance(inst *GraphInstance) (*Graph, error) {
	g := NewGraph(inst.Kind)
	if g.kind == "" {
		g.kind = KindGraph
	}
	g.attrs = inst.Core.Attrs
	g.boundary = inst.Core.Boundary

	for i := range inst.Core.Nodes {
		if err := g.AddNode(inst.Core.Nodes[i]); err != nil {
			return nil, err
		}
	}
	for i := range inst.Core.Edges {
		if err := g.AddEdge(inst.Core.Edges[i]); err != nil {
			return nil, err
		}
	}
	for i := range inst.Core.Incidences {
		if err := g.AddIncidence(inst.Core.Incidences[i]); err != nil {
			return nil, err
		}
	}

	if err := g.CheckContiguity(); err != nil {
		return nil, err
	}
	if inst.Typing != nil {
		if err := g.checkTyping(inst.Typing); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// checkTyping verifies a typing annotation against the graph: every
// entry must name an existing element and agree with its declared type.
func (g *Graph) checkTyping(t *Typing) error {
	for _, id := range sortedKeys(t.NodeTypes) {
		n := g.nodes[Cid(id)]
		if n == nil {
			return fmt.Errorf("typing references unknown node %s", id)
		}
		if n.Type != t.NodeTypes[id] {
			return fmt.Errorf("typing mismatch on node %s: declared %q, element has %q",
				id, t.NodeTypes[id], n.Type)
		}
	}
	for _, id := range sortedKeys(t.EdgeTypes) {
		e := g.edges[Cid(id)]
		if e == nil {
			return fmt.Errorf("typing references unknown edge %s", id)
		}
		if e.Type != t.EdgeTypes[id] {
			return fmt.Errorf("typing mismatch on edge %s: declared %q, element has %q",
				id, t.EdgeTypes[id], e.Type)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Kind returns the interpretation tag of the graph.
func (g *Graph) Kind() GraphKind { return g.kind }

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.nodes) }

// EdgeCount returns the number of hyperedges.
func (g *Graph) EdgeCount() int { return len(g.edges) }

// Node returns the node with the given CID, or nil.
func (g *Graph) Node(cid Cid) *Node { return g.nodes[cid] }

// Edge returns the edge with the given CID, or nil.
func (g *Graph) Edge(cid Cid) *Edge { return g.edges[cid] }

// HasNode reports whether a node with the given CID exists.
func (g *Graph) HasNode(cid Cid) bool { return g.nodes[cid] != nil }

// HasEdge reports whether an edge with the given CID exists.
func (g *Graph) HasEdge(cid Cid) bool { return g.edges[cid] != nil }

// AddNode inserts a node. The CID must be set and unused.
func (g *Graph) AddNode(n Node) error {
	if n.Cid.IsZero() {
		return fmt.Errorf("node has no cid")
	}
	if g.nodes[n.Cid] != nil {
		return fmt.Errorf("duplicate node cid %s", n.Cid)
	}
	copied := n
	g.nodes[n.Cid] = &copied
	return nil
}

// AddEdge inserts an edge. Endpoints, when present, must resolve to nodes
// already in the graph.
func (g *Graph) AddEdge(e Edge) error {
	if e.Cid.IsZero() {
		return fmt.Errorf("edge has no cid")
	}
	if g.edges[e.Cid] != nil {
		return fmt.Errorf("duplicate edge cid %s", e.Cid)
	}
	for _, ref := range []string{e.Src, e.Tgt} {
		if ref == "" {
			continue
		}
		ep, err := ParseEndpoint(ref)
		if err != nil {
			return fmt.Errorf("edge %s: %w", e.Cid, err)
		}
		if g.nodes[ep.Node] == nil {
			return fmt.Errorf("edge %s: endpoint %q does not resolve to a node in the graph", e.Cid, ref)
		}
	}
	copied := e
	g.edges[e.Cid] = &copied
	return nil
}

// AddIncidence inserts an incidence. Its edge and node must exist, the role
// must be valid, and the (edge, node, role, idx) tuple must be unused.
func (g *Graph) AddIncidence(inc Incidence) error {
	if !ValidRoles[inc.Role] {
		return fmt.Errorf("incidence on edge %s: invalid role %q", inc.Edge, inc.Role)
	}
	if g.edges[inc.Edge] == nil {
		return fmt.Errorf("incidence references unknown edge %s", inc.Edge)
	}
	if g.nodes[inc.Node] == nil {
		return fmt.Errorf("incidence on edge %s references unknown node %s", inc.Edge, inc.Node)
	}
	key := inc.Key()
	if g.incidences[key] != nil {
		return fmt.Errorf("duplicate incidence (%s, %s, %s, %d)", inc.Edge, inc.Node, inc.Role, inc.Idx)
	}
	copied := inc
	g.incidences[key] = &copied
	g.byEdge[inc.Edge] = append(g.byEdge[inc.Edge], key)
	g.byNode[inc.Node] = append(g.byNode[inc.Node], key)
	return nil
}

// RemoveEdge deletes an edge and all of its incidences.
// Returns the removed incidences (sorted by key) for change tracking.
func (g *Graph) RemoveEdge(cid Cid) ([]Incidence, error) {
	if g.edges[cid] == nil {
		return nil, fmt.Errorf("remove: unknown edge %s", cid)
	}

	keys := append([]string(nil), g.byEdge[cid]...)
	sort.Strings(keys)

	removed := make([]Incidence, 0, len(keys))
	for _, key := range keys {
		inc := g.incidences[key]
		removed = append(removed, *inc)
		delete(g.incidences, key)
		g.byNode[inc.Node] = deleteKey(g.byNode[inc.Node], key)
	}
	delete(g.byEdge, cid)
	delete(g.edges, cid)
	return removed, nil
}

// RemoveNode deletes a node. The node must have no remaining incident
// edges; the applier is responsible for removing or rejecting those first
// (the dangling condition).
func (g *Graph) RemoveNode(cid Cid) error {
	if g.nodes[cid] == nil {
		return fmt.Errorf("remove: unknown node %s", cid)
	}
	if incident := g.IncidentEdges(cid); len(incident) > 0 {
		return fmt.Errorf("remove node %s: %d incident edge(s) remain", cid, len(incident))
	}
	delete(g.byNode, cid)
	delete(g.nodes, cid)
	return nil
}

// SetNodeAttrs replaces a node's attrs in place. Identity (the CID) is
// assigned at creation and survives attribute modification; the change log
// records the mutation as NodeModified.
func (g *Graph) SetNodeAttrs(cid Cid, attrs Attrs) error {
	n := g.nodes[cid]
	if n == nil {
		return fmt.Errorf("set attrs: unknown node %s", cid)
	}
	n.Attrs = attrs
	return nil
}

// SetNodeLabels replaces a node's label set in place.
func (g *Graph) SetNodeLabels(cid Cid, labels []string) error {
	n := g.nodes[cid]
	if n == nil {
		return fmt.Errorf("set labels: unknown node %s", cid)
	}
	n.Labels = labels
	return nil
}

// SetEdgeAttrs replaces an edge's attrs in place. As with nodes, the CID
// is identity, not content: it survives attribute modification.
func (g *Graph) SetEdgeAttrs(cid Cid, attrs Attrs) error {
	e := g.edges[cid]
	if e == nil {
		return fmt.Errorf("set attrs: unknown edge %s", cid)
	}
	e.Attrs = attrs
	return nil
}

// SetEdgeLabel replaces an edge's label in place.
func (g *Graph) SetEdgeLabel(cid Cid, label string) error {
	e := g.edges[cid]
	if e == nil {
		return fmt.Errorf("set label: unknown edge %s", cid)
	}
	e.Label = label
	return nil
}

// IncidentEdges returns the CIDs of edges touching the node, via incidence
// or via src/tgt endpoint, sorted ascending.
func (g *Graph) IncidentEdges(node Cid) []Cid {
	seen := make(map[Cid]bool)
	for _, key := range g.byNode[node] {
		seen[g.incidences[key].Edge] = true
	}
	for cid, e := range g.edges {
		for _, ref := range []string{e.Src, e.Tgt} {
			if ref == "" {
				continue
			}
			if ep, err := ParseEndpoint(ref); err == nil && ep.Node == node {
				seen[cid] = true
			}
		}
	}

	out := make([]Cid, 0, len(seen))
	for cid := range seen {
		out = append(out, cid)
	}
	slices.Sort(out)
	return out
}

// IncidencesOf returns the incidences of an edge sorted by key.
func (g *Graph) IncidencesOf(edge Cid) []Incidence {
	keys := append([]string(nil), g.byEdge[edge]...)
	sort.Strings(keys)
	out := make([]Incidence, 0, len(keys))
	for _, key := range keys {
		out = append(out, *g.incidences[key])
	}
	return out
}

// IncidencesAt returns the incidences touching a node sorted by key.
func (g *Graph) IncidencesAt(node Cid) []Incidence {
	keys := append([]string(nil), g.byNode[node]...)
	sort.Strings(keys)
	out := make([]Incidence, 0, len(keys))
	for _, key := range keys {
		out = append(out, *g.incidences[key])
	}
	return out
}

// NodeCids returns all node CIDs sorted ascending.
func (g *Graph) NodeCids() []Cid {
	out := make([]Cid, 0, len(g.nodes))
	for cid := range g.nodes {
		out = append(out, cid)
	}
	slices.Sort(out)
	return out
}

// EdgeCids returns all edge CIDs sorted ascending.
func (g *Graph) EdgeCids() []Cid {
	out := make([]Cid, 0, len(g.edges))
	for cid := range g.edges {
		out = append(out, cid)
	}
	slices.Sort(out)
	return out
}

// Incidences returns all incidences sorted by key.
func (g *Graph) Incidences() []Incidence {
	keys := make([]string, 0, len(g.incidences))
	for key := range g.incidences {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	out := make([]Incidence, 0, len(keys))
	for _, key := range keys {
		out = append(out, *g.incidences[key])
	}
	return out
}

// Degree returns the number of incidences touching a node.
func (g *Graph) Degree(node Cid) int {
	return len(g.byNode[node])
}

// Clone returns a deep copy of the graph.
func (g *Graph) Clone() *Graph {
	out := NewGraph(g.kind)
	out.attrs = cloneAttrs(g.attrs)
	if g.boundary != nil {
		b := *g.boundary
		b.Expose = append([]string(nil), g.boundary.Expose...)
		b.Constraints = cloneAttrs(g.boundary.Constraints)
		out.boundary = &b
	}
	for cid, n := range g.nodes {
		copied := *n
		copied.Labels = append([]string(nil), n.Labels...)
		copied.Ports = append([]Port(nil), n.Ports...)
		copied.Attrs = cloneAttrs(n.Attrs)
		out.nodes[cid] = &copied
	}
	for cid, e := range g.edges {
		copied := *e
		copied.Attrs = cloneAttrs(e.Attrs)
		out.edges[cid] = &copied
	}
	for key, inc := range g.incidences {
		copied := *inc
		copied.Attrs = cloneAttrs(inc.Attrs)
		out.incidences[key] = &copied
		out.byEdge[inc.Edge] = append(out.byEdge[inc.Edge], key)
		out.byNode[inc.Node] = append(out.byNode[inc.Node], key)
	}
	return out
}

func cloneAttrs(a Attrs) Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v Value) Value {
	switch val := v.(type) {
	case Array:
		out := make(Array, len(val))
		for i, elem := range val {
			out[i] = cloneValue(elem)
		}
		return out
	case Object:
		out := make(Object, len(val))
		for k, elem := range val {
			out[k] = cloneValue(elem)
		}
		return out
	default:
		// Null, String, Int, Bool are immutable
		return v
	}
}

// Snapshot serializes the graph back to a GraphInstance with elements in
// sorted-CID order and the content CID recomputed. Two graphs with equal
// content produce byte-identical canonical snapshots.
func (g *Graph) Snapshot() *GraphInstance {
	core := GraphCore{
		Nodes:      make([]Node, 0, len(g.nodes)),
		Edges:      make([]Edge, 0, len(g.edges)),
		Incidences: g.Incidences(),
		Boundary:   g.boundary,
		Attrs:      g.attrs,
	}
	for _, cid := range g.NodeCids() {
		core.Nodes = append(core.Nodes, *g.nodes[cid])
	}
	for _, cid := range g.EdgeCids() {
		core.Edges = append(core.Edges, *g.edges[cid])
	}

	inst := &GraphInstance{Core: core, Kind: g.kind}
	inst.Cid = SnapshotCID(&core)
	return inst
}

// ReachableFrom computes the induced subgraph scope: the set of node and
// edge CIDs reachable from the given node, traversing incidences and
// src/tgt endpoints in both directions. Used by the strategy engine's
// scope combinator to bound matcher visibility.
func (g *Graph) ReachableFrom(root Cid) map[Cid]bool {
	visible := make(map[Cid]bool)
	if g.nodes[root] == nil {
		return visible
	}

	queue := []Cid{root}
	visible[root] = true
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]

		for _, edge := range g.IncidentEdges(node) {
			if visible[edge] {
				continue
			}
			visible[edge] = true
			for _, inc := range g.IncidencesOf(edge) {
				if !visible[inc.Node] {
					visible[inc.Node] = true
					queue = append(queue, inc.Node)
				}
			}
			e := g.edges[edge]
			for _, ref := range []string{e.Src, e.Tgt} {
				if ref == "" {
					continue
				}
				if ep, err := ParseEndpoint(ref); err == nil && !visible[ep.Node] {
					visible[ep.Node] = true
					queue = append(queue, ep.Node)
				}
			}
		}
	}
	return visible
}

// CheckContiguity verifies that every edge's positional DataIn and DataOut
// indices are contiguous from 0.
func (g *Graph) CheckContiguity() error {
	for _, edge := range g.EdgeCids() {
		for _, role := range []Role{RoleDataIn, RoleDataOut} {
			var idxs []int
			for _, inc := range g.IncidencesOf(edge) {
				if inc.Role == role {
					idxs = append(idxs, inc.Idx)
				}
			}
			sort.Ints(idxs)
			for want, got := range idxs {
				if got != want {
					return fmt.Errorf("edge %s: %s indices not contiguous from 0 (have %v)", edge, role, idxs)
				}
			}
		}
	}
	return nil
}

func deleteKey(keys []string, key string) []string {
	for i, k := range keys {
		if k == key {
			return append(keys[:i], keys[i+1:]...)
		}
	}
	return keys
}

// SnapshotCID computes the content CID of a serialized graph core.
func SnapshotCID(core *GraphCore) Cid {
	nodes := make(Array, 0, len(core.Nodes))
	for i := range core.Nodes {
		nodes = append(nodes, nodeCanonical(&core.Nodes[i]))
	}
	edges := make(Array, 0, len(core.Edges))
	for i := range core.Edges {
		edges = append(edges, edgeCanonical(&core.Edges[i]))
	}
	incs := make(Array, 0, len(core.Incidences))
	for i := range core.Incidences {
		incs = append(incs, incidenceCanonical(&core.Incidences[i]))
	}

	obj := Object{
		"nodes":      nodes,
		"edges":      edges,
		"incidences": incs,
	}
	if core.Attrs != nil {
		obj["attrs"] = core.Attrs
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		panic(fmt.Sprintf("SnapshotCID: %v", err))
	}
	return Cid(hashWithDomain(DomainGraph, canonical))
}

func nodeCanonical(n *Node) Object {
	labels := make(Array, len(n.Labels))
	for i, l := range n.Labels {
		labels[i] = String(l)
	}
	obj := Object{
		"cid":    String(n.Cid),
		"type":   String(n.Type),
		"labels": labels,
	}
	if n.Attrs != nil {
		obj["attrs"] = n.Attrs
	}
	return obj
}

func edgeCanonical(e *Edge) Object {
	obj := Object{
		"cid":  String(e.Cid),
		"type": String(e.Type),
	}
	if e.Label != "" {
		obj["label"] = String(e.Label)
	}
	if e.Src != "" {
		obj["src"] = String(e.Src)
	}
	if e.Tgt != "" {
		obj["tgt"] = String(e.Tgt)
	}
	if e.Attrs != nil {
		obj["attrs"] = e.Attrs
	}
	return obj
}

func incidenceCanonical(inc *Incidence) Object {
	obj := Object{
		"edge": String(inc.Edge),
		"node": String(inc.Node),
		"role": String(inc.Role),
		"idx":  Int(inc.Idx),
	}
	if inc.Attrs != nil {
		obj["attrs"] = inc.Attrs
	}
	return obj
}
