package match

import (
	"slices"
	"sort"
	"time"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// Matcher finds embeddings of pattern graphs into target graphs.
// A Matcher is stateless between calls; all search state lives in a
// per-call session.
type Matcher struct {
	cfg Config
}

// New creates a Matcher with the given options applied over defaults.
func New(opts ...Option) *Matcher {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Matcher{cfg: cfg}
}

// Config returns the matcher's effective configuration.
func (m *Matcher) Config() Config { return m.cfg }

// FindMatches enumerates embeddings of pattern into target, subject to the
// NACs and the injectivity flag. Matches are returned in deterministic
// order (ascending matched node CIDs, ties broken by edge CIDs).
func (m *Matcher) FindMatches(pattern *pih.GraphInstance, target *pih.Graph, nacs []rule.SchemaNac, injective bool) (*Result, error) {
	return m.find(pattern, target, nacs, injective, nil, nil)
}

// FindMatchesScoped is FindMatches restricted to the given visibility set
// of node and edge CIDs; out-of-scope elements are invisible to the
// search. A nil guard or scope means unrestricted.
func (m *Matcher) FindMatchesScoped(pattern *pih.GraphInstance, target *pih.Graph, nacs []rule.SchemaNac, injective bool, guard pih.Attrs, scope map[pih.Cid]bool) (*Result, error) {
	return m.find(pattern, target, nacs, injective, guard, scope)
}

func (m *Matcher) find(pattern *pih.GraphInstance, target *pih.Graph, nacs []rule.SchemaNac, injective bool, guard pih.Attrs, scope map[pih.Cid]bool) (*Result, error) {
	pg, err := pih.FromInstance(pattern)
	if err != nil {
		return nil, invalidPattern(string(pattern.Cid), "malformed pattern graph: %v", err)
	}

	s := &session{
		cfg:       m.cfg,
		pattern:   pg,
		patternID: string(pattern.Cid),
		target:    target,
		injective: injective,
		guard:     guard,
		scope:     scope,
	}
	if m.cfg.TimeoutMs > 0 {
		s.deadline = time.Now().Add(time.Duration(m.cfg.TimeoutMs) * time.Millisecond)
	}

	if err := s.compileNacs(nacs); err != nil {
		return nil, err
	}

	s.order = orderNodes(pg)
	s.edgeOrder = pg.EdgeCids()
	s.assign = make(map[pih.Cid]pih.Cid, len(s.order))
	s.used = make(map[pih.Cid]bool)

	s.searchNodes(0)

	if s.timedOut && len(s.matches) == 0 {
		return nil, &Error{
			Code:    ErrCodeTimeout,
			Pattern: s.patternID,
			Message: "search budget elapsed with no matches",
		}
	}

	sortMatches(s.matches, s.order, s.edgeOrder)
	return &Result{
		Matches:   s.matches,
		Truncated: s.truncated,
		TimedOut:  s.timedOut,
	}, nil
}

// session holds the state of one backtracking search.
type session struct {
	cfg       Config
	pattern   *pih.Graph
	patternID string
	target    *pih.Graph
	injective bool
	guard     pih.Attrs
	scope     map[pih.Cid]bool
	deadline  time.Time
	nacs      []compiledNac

	order     []pih.Cid // pattern nodes, degree-descending
	edgeOrder []pih.Cid // pattern edge CIDs ascending
	assign    map[pih.Cid]pih.Cid
	used      map[pih.Cid]bool
	pinned    map[pih.Cid]pih.Cid // pattern edge -> forced target edge

	matches   []*Match
	truncated bool
	timedOut  bool
}

// orderNodes returns pattern node CIDs in degree-descending order with
// ascending-CID tie break. High-degree nodes first maximizes pruning.
func orderNodes(pg *pih.Graph) []pih.Cid {
	cids := pg.NodeCids()
	sort.SliceStable(cids, func(i, j int) bool {
		di, dj := pg.Degree(cids[i]), pg.Degree(cids[j])
		if di != dj {
			return di > dj
		}
		return cids[i] < cids[j]
	})
	return cids
}

// expired checks the time budget. Once expired, the search unwinds.
func (s *session) expired() bool {
	if s.timedOut {
		return true
	}
	if !s.deadline.IsZero() && time.Now().After(s.deadline) {
		s.timedOut = true
	}
	return s.timedOut
}

// done reports whether the search should stop (budget or truncation).
func (s *session) done() bool {
	if s.truncated || s.expired() {
		return true
	}
	return false
}

// searchNodes extends the node assignment one pattern node at a time.
func (s *session) searchNodes(i int) {
	if s.done() {
		return
	}
	if i == len(s.order) {
		s.assignEdges(0, make(map[pih.Cid]pih.Cid, len(s.edgeOrder)), make(map[pih.Cid]bool))
		return
	}

	pn := s.order[i]
	patternNode := s.pattern.Node(pn)

	for _, tn := range s.target.NodeCids() {
		if s.done() {
			return
		}
		if s.scope != nil && !s.scope[tn] {
			continue
		}
		if s.injective && s.used[tn] {
			continue
		}
		if !s.nodeCompatible(patternNode, s.target.Node(tn)) {
			continue
		}

		s.assign[pn] = tn
		s.used[tn] = true

		if s.locallyConsistent(pn) {
			s.searchNodes(i + 1)
		}

		delete(s.assign, pn)
		delete(s.used, tn)
	}
}

// nodeCompatible checks type, label, and attribute-guard compatibility.
// Pattern attrs act as equality guards against bound target values.
func (s *session) nodeCompatible(p, t *pih.Node) bool {
	if p.Type != "" && p.Type != t.Type {
		return false
	}

	switch s.cfg.Labels {
	case LabelsIntersect:
		if len(p.Labels) > 0 {
			any := false
			for _, l := range p.Labels {
				if t.HasLabel(l) {
					any = true
					break
				}
			}
			if !any {
				return false
			}
		}
	default: // LabelsSubset
		for _, l := range p.Labels {
			if !t.HasLabel(l) {
				return false
			}
		}
	}

	for k, want := range p.Attrs {
		got, ok := t.Attrs[k]
		if !ok || !pih.Equal(want, got) {
			return false
		}
	}
	return true
}

// locallyConsistent prunes after assigning pattern node pn: every pattern
// edge whose incident nodes are now all assigned must still have at least
// one candidate target edge.
func (s *session) locallyConsistent(pn pih.Cid) bool {
	for _, inc := range s.pattern.IncidencesAt(pn) {
		if !s.edgeFullyAssigned(inc.Edge) {
			continue
		}
		if len(s.edgeCandidates(inc.Edge)) == 0 {
			return false
		}
	}
	return true
}

func (s *session) edgeFullyAssigned(pe pih.Cid) bool {
	for _, inc := range s.pattern.IncidencesOf(pe) {
		if _, ok := s.assign[inc.Node]; !ok {
			return false
		}
	}
	e := s.pattern.Edge(pe)
	for _, ref := range []string{e.Src, e.Tgt} {
		if ref == "" {
			continue
		}
		ep, err := pih.ParseEndpoint(ref)
		if err != nil {
			return false
		}
		if _, ok := s.assign[ep.Node]; !ok {
			return false
		}
	}
	return true
}

// edgeCandidates returns target edge CIDs compatible with a fully node-
// assigned pattern edge, in ascending order.
func (s *session) edgeCandidates(pe pih.Cid) []pih.Cid {
	patternEdge := s.pattern.Edge(pe)
	patternIncs := s.pattern.IncidencesOf(pe)

	var out []pih.Cid
	for _, te := range s.target.EdgeCids() {
		if s.scope != nil && !s.scope[te] {
			continue
		}
		if s.edgeCompatible(patternEdge, patternIncs, te) {
			out = append(out, te)
		}
	}
	return out
}

// edgeCompatible checks one target edge against a pattern edge under the
// current node assignment: type, label, attrs, endpoint correspondence,
// and role/index-preserving incidence correspondence. The target edge may
// carry extra incidences - this is an embedding, not an induced match.
func (s *session) edgeCompatible(p *pih.Edge, pIncs []pih.Incidence, te pih.Cid) bool {
	t := s.target.Edge(te)

	if p.Type != "" && p.Type != t.Type {
		return false
	}
	if p.Label != "" && p.Label != t.Label {
		return false
	}
	for k, want := range p.Attrs {
		got, ok := t.Attrs[k]
		if !ok || !pih.Equal(want, got) {
			return false
		}
	}

	if !s.endpointCorresponds(p.Src, t.Src) || !s.endpointCorresponds(p.Tgt, t.Tgt) {
		return false
	}

	for _, inc := range pIncs {
		if !s.incidenceCorresponds(inc, te) {
			return false
		}
	}
	return true
}

// endpointCorresponds checks an edge endpoint reference. An empty pattern
// endpoint matches anything; a set one must resolve to the image of the
// pattern's endpoint node, with the same port when specified.
func (s *session) endpointCorresponds(patternRef, targetRef string) bool {
	if patternRef == "" {
		return true
	}
	if targetRef == "" {
		return false
	}
	pe, err := pih.ParseEndpoint(patternRef)
	if err != nil {
		return false
	}
	te, err := pih.ParseEndpoint(targetRef)
	if err != nil {
		return false
	}
	if s.assign[pe.Node] != te.Node {
		return false
	}
	if pe.Port != "" && pe.Port != te.Port {
		return false
	}
	return true
}

// incidenceCorresponds requires the target edge to carry an incidence on
// the image node under the same role and relative index, with compatible
// incidence attrs.
func (s *session) incidenceCorresponds(pInc pih.Incidence, te pih.Cid) bool {
	image := s.assign[pInc.Node]
	for _, tInc := range s.target.IncidencesOf(te) {
		if tInc.Node != image || tInc.Role != pInc.Role || tInc.Idx != pInc.Idx {
			continue
		}
		ok := true
		for k, want := range pInc.Attrs {
			got, present := tInc.Attrs[k]
			if !present || !pih.Equal(want, got) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// assignEdges extends a complete node assignment with an injective edge
// assignment, emitting a match per complete assignment that survives the
// guard and NAC checks.
func (s *session) assignEdges(i int, eAssign map[pih.Cid]pih.Cid, eUsed map[pih.Cid]bool) {
	if s.done() {
		return
	}
	if i == len(s.edgeOrder) {
		s.emit(eAssign)
		return
	}

	pe := s.edgeOrder[i]
	candidates := s.edgeCandidates(pe)
	if forced, ok := s.pinned[pe]; ok {
		if !slices.Contains(candidates, forced) {
			return
		}
		candidates = []pih.Cid{forced}
	}
	for _, te := range candidates {
		if s.done() {
			return
		}
		if eUsed[te] {
			continue
		}
		eAssign[pe] = te
		eUsed[te] = true
		s.assignEdges(i+1, eAssign, eUsed)
		delete(eAssign, pe)
		delete(eUsed, te)
	}
}

// emit finalizes one embedding: attr-guard check, NAC check, then record.
func (s *session) emit(eAssign map[pih.Cid]pih.Cid) {
	m := &Match{
		NodeMap:  make(map[pih.Cid]pih.Cid, len(s.assign)),
		EdgeMap:  make(map[pih.Cid]pih.Cid, len(eAssign)),
		Metadata: map[string]string{"pattern": s.patternID},
	}
	for k, v := range s.assign {
		m.NodeMap[k] = v
	}
	for k, v := range eAssign {
		m.EdgeMap[k] = v
	}
	m.Score = int64(len(m.NodeMap) + len(m.EdgeMap))

	if !s.guardHolds(m) {
		return
	}
	if s.nacBlocked(m) {
		return
	}

	s.matches = append(s.matches, m)
	if s.cfg.MaxMatches > 0 && len(s.matches) >= s.cfg.MaxMatches {
		s.truncated = true
	}
}

// guardHolds evaluates rule-level attribute guards. Guard keys use the
// form "<patternElementCid>.<attrName>"; the bound target element must
// carry an equal attribute value.
func (s *session) guardHolds(m *Match) bool {
	for key, want := range s.guard {
		elem, attr, ok := splitGuardKey(key)
		if !ok {
			return false
		}

		var got pih.Value
		var present bool
		if tn, bound := m.NodeMap[pih.Cid(elem)]; bound {
			got, present = s.target.Node(tn).Attrs[attr]
		} else if te, bound := m.EdgeMap[pih.Cid(elem)]; bound {
			got, present = s.target.Edge(te).Attrs[attr]
		} else {
			return false
		}

		if !present || !pih.Equal(want, got) {
			return false
		}
	}
	return true
}

func splitGuardKey(key string) (elem, attr string, ok bool) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '.' {
			if i == 0 || i == len(key)-1 {
				return "", "", false
			}
			return key[:i], key[i+1:], true
		}
	}
	return "", "", false
}

// sortMatches orders matches deterministically: ascending by the matched
// node CIDs (in pattern-CID order), ties broken by matched edge CIDs.
func sortMatches(matches []*Match, patternNodes, patternEdges []pih.Cid) {
	nodesAsc := append([]pih.Cid(nil), patternNodes...)
	slices.Sort(nodesAsc)
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].sortKey(nodesAsc, patternEdges) < matches[j].sortKey(nodesAsc, patternEdges)
	})
}
