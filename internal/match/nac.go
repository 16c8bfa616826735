package match

import (
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// compiledNac is a negative application condition prepared for repeated
// evaluation: its graph validated once, its L-morphism kept for seeding.
type compiledNac struct {
	id    string
	graph *pih.Graph
	morph rule.Morphisms
}

// compileNacs validates every NAC graph up front so a malformed NAC
// surfaces as InvalidPattern before the search starts.
func (s *session) compileNacs(nacs []rule.SchemaNac) error {
	for i := range nacs {
		nac := &nacs[i]
		if nac.Graph == nil {
			return invalidPattern(s.patternID, "NAC %q has no graph", nac.ID)
		}
		ng, err := pih.FromInstance(nac.Graph)
		if err != nil {
			return invalidPattern(s.patternID, "malformed NAC %q: %v", nac.ID, err)
		}
		if ng.Kind() != pih.KindNAC {
			return invalidPattern(s.patternID, "NAC %q has kind %q, want %q", nac.ID, ng.Kind(), pih.KindNAC)
		}
		s.nacs = append(s.nacs, compiledNac{id: nac.ID, graph: ng, morph: nac.MorphismsL})
	}
	return nil
}

// nacBlocked reports whether any NAC embeds into the target consistently
// with the candidate match. The NAC's L-morphism seeds the sub-search:
// NAC elements in the image of L are pinned to the match's bindings, and
// the search only has to extend the embedding to the remaining elements.
func (s *session) nacBlocked(m *Match) bool {
	for i := range s.nacs {
		if s.nacEmbeds(&s.nacs[i], m) {
			return true
		}
	}
	return false
}

func (s *session) nacEmbeds(nac *compiledNac, m *Match) bool {
	if s.expired() {
		return false
	}

	sub := &session{
		cfg:       s.cfg,
		pattern:   nac.graph,
		patternID: nac.id,
		target:    s.target,
		injective: s.injective,
		scope:     s.scope,
		deadline:  s.deadline,
		assign:    make(map[pih.Cid]pih.Cid),
		used:      make(map[pih.Cid]bool),
	}
	sub.cfg.MaxMatches = 1

	// Seed node bindings from the L-morphism. A seeded NAC node still
	// carries guards (type, labels, attrs) that must hold on the bound
	// target node, otherwise this NAC cannot embed at all.
	for lCid, nacCid := range nac.morph.NodeMap {
		tn, bound := m.NodeMap[lCid]
		if !bound {
			return false
		}
		nacNode := nac.graph.Node(nacCid)
		if nacNode == nil {
			return false
		}
		if !sub.nodeCompatible(nacNode, s.target.Node(tn)) {
			return false
		}
		if prev, dup := sub.assign[nacCid]; dup && prev != tn {
			return false
		}
		sub.assign[nacCid] = tn
		sub.used[tn] = true
	}

	// Seeded NAC edges are pinned to the match's bindings so the edge
	// assignment cannot rebind them elsewhere.
	sub.pinned = make(map[pih.Cid]pih.Cid)
	for lCid, nacCid := range nac.morph.EdgeMap {
		te, bound := m.EdgeMap[lCid]
		if !bound {
			return false
		}
		sub.pinned[nacCid] = te
	}

	// Free NAC nodes are searched; seeded ones are already assigned.
	for _, cid := range orderNodes(nac.graph) {
		if _, seeded := sub.assign[cid]; !seeded {
			sub.order = append(sub.order, cid)
		}
	}
	sub.edgeOrder = nac.graph.EdgeCids()

	sub.searchNodes(0)
	if sub.timedOut {
		s.timedOut = true
	}
	return len(sub.matches) > 0
}
