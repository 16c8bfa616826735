package rule

import (
	"fmt"

	"github.com/graftlabs/graft/internal/pih"
)

// FromLR builds a formal DPO rule from a bare L/R pair, deriving the
// interface K as L∩R by element CID. Elements present in both sides are
// preserved; the derived morphisms are identities on the shared CIDs.
//
// This is the convenience form for simple rules authored as two pattern
// graphs (the formal K/morphism model stays authoritative: the result is
// validated before it is returned).
func FromLR(id string, l, r *pih.GraphInstance, nacs []SchemaNac, cond *ApplicationCondition) (*RuleDPO, error) {
	if l == nil || r == nil {
		return nil, fmt.Errorf("rule %s: both l and r are required", id)
	}

	lg, err := pih.FromInstance(l)
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid L graph: %w", id, err)
	}
	rg, err := pih.FromInstance(r)
	if err != nil {
		return nil, fmt.Errorf("rule %s: invalid R graph: %w", id, err)
	}

	k := pih.NewGraph(pih.KindPattern)
	ml := NewMorphisms()
	mr := NewMorphisms()

	// Shared nodes become interface nodes (identity morphisms).
	for _, cid := range lg.NodeCids() {
		if !rg.HasNode(cid) {
			continue
		}
		if err := k.AddNode(*lg.Node(cid)); err != nil {
			return nil, fmt.Errorf("rule %s: derive K: %w", id, err)
		}
		ml.NodeMap[cid] = cid
		mr.NodeMap[cid] = cid
	}

	// Shared edges join K only when every node they touch survived into K;
	// a partial hyperedge would leave non-contiguous positional indices.
	for _, cid := range lg.EdgeCids() {
		if !rg.HasEdge(cid) {
			continue
		}
		e := *lg.Edge(cid)
		if !endpointsInGraph(k, &e) {
			continue
		}
		incs := lg.IncidencesOf(cid)
		complete := true
		for _, inc := range incs {
			if !k.HasNode(inc.Node) {
				complete = false
				break
			}
		}
		if !complete {
			continue
		}

		if err := k.AddEdge(e); err != nil {
			return nil, fmt.Errorf("rule %s: derive K: %w", id, err)
		}
		ml.EdgeMap[cid] = cid
		mr.EdgeMap[cid] = cid

		for _, inc := range incs {
			if err := k.AddIncidence(inc); err != nil {
				return nil, fmt.Errorf("rule %s: derive K: %w", id, err)
			}
		}
	}

	out := &RuleDPO{
		ID:      id,
		L:       l,
		K:       k.Snapshot(),
		R:       r,
		ML:      ml,
		MR:      mr,
		Nacs:    nacs,
		AppCond: cond,
	}
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

func endpointsInGraph(g *pih.Graph, e *pih.Edge) bool {
	for _, ref := range []string{e.Src, e.Tgt} {
		if ref == "" {
			continue
		}
		ep, err := pih.ParseEndpoint(ref)
		if err != nil || !g.HasNode(ep.Node) {
			return false
		}
	}
	return true
}
