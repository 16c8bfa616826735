package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/graftlabs/graft/internal/pih"
)

// CompileGraph parses a CUE graph document into a content-addressed
// graph instance. Declared element ids are replaced by CIDs derived
// from the element content; cross-references (edge endpoints,
// incidences) are rewritten to the derived CIDs.
//
// The CUE value should be the graph struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`graph: { nodes: [...], edges: [...] }`)
//	g, err := CompileGraph(v.LookupPath(cue.ParsePath("graph")))
func CompileGraph(v cue.Value) (*pih.GraphInstance, error) {
	core, err := parseCore(v, true)
	if err != nil {
		return nil, err
	}
	return &pih.GraphInstance{
		Core: *core,
		Kind: pih.KindGraph,
		Cid:  pih.SnapshotCID(core),
	}, nil
}

// CompilePattern parses a CUE graph literal into a pattern-kind
// instance. Declared ids are kept as element CIDs so that morphisms,
// guards, and NAC seeds can reference elements by the names the
// document uses.
func CompilePattern(v cue.Value, kind pih.GraphKind) (*pih.GraphInstance, error) {
	if !pih.ValidGraphKinds[kind] {
		return nil, &CompileError{
			Field:   "kind",
			Message: fmt.Sprintf("invalid graph kind %q", kind),
			Pos:     v.Pos(),
		}
	}
	core, err := parseCore(v, false)
	if err != nil {
		return nil, err
	}
	return &pih.GraphInstance{
		Core: *core,
		Kind: kind,
		Cid:  pih.SnapshotCID(core),
	}, nil
}

// parseCore parses the shared graph literal shape: nodes, edges,
// incidences, and graph-level attrs. When addressed is true element
// CIDs are derived from content; otherwise declared ids become CIDs
// verbatim.
func parseCore(v cue.Value, addressed bool) (*pih.GraphCore, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	core := &pih.GraphCore{}
	idToCid := make(map[string]pih.Cid)

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if nodesVal.Exists() {
		iter, err := nodesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			node, id, err := parseNode(iter.Value())
			if err != nil {
				return nil, err
			}
			if _, dup := idToCid[id]; dup {
				return nil, &CompileError{
					Field:   "nodes",
					Message: fmt.Sprintf("duplicate node id %q", id),
					Pos:     iter.Value().Pos(),
				}
			}
			if addressed {
				cid, err := pih.NodeCID(id, *node)
				if err != nil {
					return nil, &CompileError{
						Field:   "nodes",
						Message: err.Error(),
						Pos:     iter.Value().Pos(),
					}
				}
				node.Cid = cid
			} else {
				node.Cid = pih.Cid(id)
			}
			idToCid[id] = node.Cid
			core.Nodes = append(core.Nodes, *node)
		}
	}

	edgeIDs := make(map[string]pih.Cid)
	edgesVal := v.LookupPath(cue.ParsePath("edges"))
	if edgesVal.Exists() {
		iter, err := edgesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			edge, id, err := parseEdge(iter.Value())
			if err != nil {
				return nil, err
			}
			if _, dup := edgeIDs[id]; dup {
				return nil, &CompileError{
					Field:   "edges",
					Message: fmt.Sprintf("duplicate edge id %q", id),
					Pos:     iter.Value().Pos(),
				}
			}
			if addressed {
				if edge.Src, err = remapEndpoint(edge.Src, idToCid); err != nil {
					return nil, &CompileError{Field: "edges", Message: err.Error(), Pos: iter.Value().Pos()}
				}
				if edge.Tgt, err = remapEndpoint(edge.Tgt, idToCid); err != nil {
					return nil, &CompileError{Field: "edges", Message: err.Error(), Pos: iter.Value().Pos()}
				}
				cid, err := pih.EdgeCID(id, *edge)
				if err != nil {
					return nil, &CompileError{
						Field:   "edges",
						Message: err.Error(),
						Pos:     iter.Value().Pos(),
					}
				}
				edge.Cid = cid
			} else {
				edge.Cid = pih.Cid(id)
			}
			edgeIDs[id] = edge.Cid
			core.Edges = append(core.Edges, *edge)
		}
	}

	incVal := v.LookupPath(cue.ParsePath("incidences"))
	if incVal.Exists() {
		iter, err := incVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		seen := make(map[string]bool)
		for iter.Next() {
			inc, err := parseIncidence(iter.Value(), edgeIDs, idToCid)
			if err != nil {
				return nil, err
			}
			if seen[inc.Key()] {
				return nil, &CompileError{
					Field:   "incidences",
					Message: fmt.Sprintf("duplicate incidence (%s, %s, %s, %d)", inc.Edge, inc.Node, inc.Role, inc.Idx),
					Pos:     iter.Value().Pos(),
				}
			}
			seen[inc.Key()] = true
			core.Incidences = append(core.Incidences, *inc)
		}
	}

	attrs, err := attrsFromCUE("attrs", v.LookupPath(cue.ParsePath("attrs")))
	if err != nil {
		return nil, err
	}
	core.Attrs = attrs

	return core, nil
}

func parseNode(v cue.Value) (*pih.Node, string, error) {
	id, err := requiredString(v, "id")
	if err != nil {
		return nil, "", err
	}
	if err := pih.ValidateID(id); err != nil {
		return nil, "", &CompileError{Field: "nodes", Message: err.Error(), Pos: v.Pos()}
	}
	typ, err := requiredString(v, "type")
	if err != nil {
		return nil, "", err
	}
	labels, err := stringList("labels", v.LookupPath(cue.ParsePath("labels")))
	if err != nil {
		return nil, "", err
	}
	attrs, err := attrsFromCUE("attrs", v.LookupPath(cue.ParsePath("attrs")))
	if err != nil {
		return nil, "", err
	}
	component, err := optionalString(v, "component", "")
	if err != nil {
		return nil, "", err
	}
	ports, err := parsePorts(v.LookupPath(cue.ParsePath("ports")))
	if err != nil {
		return nil, "", err
	}
	return &pih.Node{
		Labels:       labels,
		Type:         typ,
		Ports:        ports,
		Attrs:        attrs,
		ComponentRef: component,
	}, id, nil
}

func parsePorts(v cue.Value) ([]pih.Port, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var ports []pih.Port
	for iter.Next() {
		pv := iter.Value()
		name, err := requiredString(pv, "name")
		if err != nil {
			return nil, err
		}
		dir, err := optionalString(pv, "direction", string(pih.PortBidirectional))
		if err != nil {
			return nil, err
		}
		switch pih.PortDirection(dir) {
		case pih.PortIn, pih.PortOut, pih.PortBidirectional:
		default:
			return nil, &CompileError{
				Field:   "ports",
				Message: fmt.Sprintf("invalid port direction %q", dir),
				Pos:     pv.Pos(),
			}
		}
		typ, err := optionalString(pv, "type", "")
		if err != nil {
			return nil, err
		}
		ports = append(ports, pih.Port{Name: name, Direction: pih.PortDirection(dir), Type: typ})
	}
	return ports, nil
}

func parseEdge(v cue.Value) (*pih.Edge, string, error) {
	id, err := requiredString(v, "id")
	if err != nil {
		return nil, "", err
	}
	if err := pih.ValidateID(id); err != nil {
		return nil, "", &CompileError{Field: "edges", Message: err.Error(), Pos: v.Pos()}
	}
	typ, err := requiredString(v, "type")
	if err != nil {
		return nil, "", err
	}
	label, err := optionalString(v, "label", "")
	if err != nil {
		return nil, "", err
	}
	src, err := optionalString(v, "src", "")
	if err != nil {
		return nil, "", err
	}
	tgt, err := optionalString(v, "tgt", "")
	if err != nil {
		return nil, "", err
	}
	attrs, err := attrsFromCUE("attrs", v.LookupPath(cue.ParsePath("attrs")))
	if err != nil {
		return nil, "", err
	}
	return &pih.Edge{
		Label: label,
		Type:  typ,
		Src:   src,
		Tgt:   tgt,
		Attrs: attrs,
	}, id, nil
}

func parseIncidence(v cue.Value, edges, nodes map[string]pih.Cid) (*pih.Incidence, error) {
	edgeID, err := requiredString(v, "edge")
	if err != nil {
		return nil, err
	}
	edgeCid, ok := edges[edgeID]
	if !ok {
		return nil, &CompileError{
			Field:   "incidences",
			Message: fmt.Sprintf("incidence references unknown edge %q", edgeID),
			Pos:     v.Pos(),
		}
	}
	nodeID, err := requiredString(v, "node")
	if err != nil {
		return nil, err
	}
	nodeCid, ok := nodes[nodeID]
	if !ok {
		return nil, &CompileError{
			Field:   "incidences",
			Message: fmt.Sprintf("incidence references unknown node %q", nodeID),
			Pos:     v.Pos(),
		}
	}
	role, err := requiredString(v, "role")
	if err != nil {
		return nil, err
	}
	if !pih.ValidRoles[pih.Role(role)] {
		return nil, &CompileError{
			Field:   "incidences",
			Message: fmt.Sprintf("invalid incidence role %q", role),
			Pos:     v.Pos(),
		}
	}
	idx, err := optionalInt(v, "idx", 0)
	if err != nil {
		return nil, err
	}
	attrs, err := attrsFromCUE("attrs", v.LookupPath(cue.ParsePath("attrs")))
	if err != nil {
		return nil, err
	}
	return &pih.Incidence{
		Edge:  edgeCid,
		Node:  nodeCid,
		Role:  pih.Role(role),
		Idx:   int(idx),
		Attrs: attrs,
	}, nil
}

// remapEndpoint rewrites a declared-id endpoint reference (plain id or
// "#id.port") to its content-addressed form.
func remapEndpoint(ref string, nodes map[string]pih.Cid) (string, error) {
	if ref == "" {
		return "", nil
	}
	ep, err := pih.ParseEndpoint(ref)
	if err != nil {
		return "", err
	}
	cid, ok := nodes[string(ep.Node)]
	if !ok {
		return "", fmt.Errorf("endpoint references unknown node %q", ep.Node)
	}
	if ep.Port == "" {
		return string(cid), nil
	}
	return "#" + string(cid) + "." + ep.Port, nil
}
