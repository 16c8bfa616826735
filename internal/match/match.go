package match

import (
	"fmt"
	"strings"

	"github.com/graftlabs/graft/internal/pih"
)

// Match is one successful embedding of a pattern into a target graph.
// It maps pattern-element CIDs (the variables) to target-element CIDs.
//
// Lifecycle: created by the matcher per embedding; consumed by exactly one
// apply, or discarded when the strategy backtracks.
type Match struct {
	// NodeMap maps pattern node CIDs to target node CIDs.
	// Injective by default per the rule's application condition.
	NodeMap map[pih.Cid]pih.Cid

	// EdgeMap maps pattern edge CIDs to target edge CIDs.
	EdgeMap map[pih.Cid]pih.Cid

	// Score is a deterministic heuristic (mapped element count) used for
	// query cost objectives. Never a float.
	Score int64

	// Metadata carries matcher annotations (pattern id, truncation info).
	Metadata map[string]string
}

// Node returns the target CID bound to a pattern node variable.
func (m *Match) Node(pattern pih.Cid) (pih.Cid, bool) {
	cid, ok := m.NodeMap[pattern]
	return cid, ok
}

// Edge returns the target CID bound to a pattern edge variable.
func (m *Match) Edge(pattern pih.Cid) (pih.Cid, bool) {
	cid, ok := m.EdgeMap[pattern]
	return cid, ok
}

// sortKey is the deterministic ordering key: matched target node CIDs in
// pattern-CID order, then target edge CIDs in pattern-CID order.
func (m *Match) sortKey(patternNodes, patternEdges []pih.Cid) string {
	var b strings.Builder
	for _, p := range patternNodes {
		b.WriteString(string(m.NodeMap[p]))
		b.WriteByte(0)
	}
	for _, p := range patternEdges {
		b.WriteString(string(m.EdgeMap[p]))
		b.WriteByte(0)
	}
	return b.String()
}

// Signature returns a canonical content hash of the variable bindings.
// The applier mixes it into derived CIDs so that fresh elements created
// for distinct matches never collide, while re-running the same match
// reproduces the same CIDs.
func (m *Match) Signature() string {
	nodes := make(pih.Object, len(m.NodeMap))
	for p, t := range m.NodeMap {
		nodes[string(p)] = pih.String(t)
	}
	edges := make(pih.Object, len(m.EdgeMap))
	for p, t := range m.EdgeMap {
		edges[string(p)] = pih.String(t)
	}

	canonical, err := pih.MarshalCanonical(pih.Object{
		"nodes": nodes,
		"edges": edges,
	})
	if err != nil {
		// String-only object cannot fail canonical marshaling.
		panic(fmt.Sprintf("match signature: %v", err))
	}
	return pih.Hash(pih.DomainMatch, canonical)
}

// Clone returns an independent copy of the match. The applier binds fresh
// elements into its copy without mutating the matcher's result.
func (m *Match) Clone() *Match {
	out := &Match{
		NodeMap:  make(map[pih.Cid]pih.Cid, len(m.NodeMap)),
		EdgeMap:  make(map[pih.Cid]pih.Cid, len(m.EdgeMap)),
		Score:    m.Score,
		Metadata: make(map[string]string, len(m.Metadata)),
	}
	for k, v := range m.NodeMap {
		out.NodeMap[k] = v
	}
	for k, v := range m.EdgeMap {
		out.EdgeMap[k] = v
	}
	for k, v := range m.Metadata {
		out.Metadata[k] = v
	}
	return out
}

// Result is the outcome of a matcher session.
type Result struct {
	Matches []*Match

	// Truncated is set when MaxMatches stopped the search early.
	Truncated bool

	// TimedOut is set when the time budget elapsed after at least one
	// match was found; the contained matches are still valid.
	TimedOut bool
}

// First returns the first match in deterministic order, or nil.
func (r *Result) First() *Match {
	if len(r.Matches) == 0 {
		return nil
	}
	return r.Matches[0]
}

// Empty reports whether no match was found.
func (r *Result) Empty() bool { return len(r.Matches) == 0 }
