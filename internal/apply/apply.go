package apply

import (
	"fmt"
	"slices"

	"github.com/graftlabs/graft/internal/match"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// Config tunes an Applier.
type Config struct {
	// Validate re-checks model invariants on the rewritten graph before
	// committing. On by default.
	Validate bool

	// TrackChanges records the ordered mutation log on the application
	// record. On by default.
	TrackChanges bool

	// DetectConflicts checks each batch member against the already
	// accepted ones and rejects overlapping deletions with a
	// CONFLICT_DETECTED error. On by default; only batch application
	// consults it.
	DetectConflicts bool
}

// DefaultConfig returns the default applier configuration.
func DefaultConfig() Config {
	return Config{Validate: true, TrackChanges: true, DetectConflicts: true}
}

// Option configures an Applier.
type Option func(*Config)

// WithValidation toggles post-rewrite validation.
func WithValidation(on bool) Option {
	return func(c *Config) { c.Validate = on }
}

// WithChangeTracking toggles the mutation log.
func WithChangeTracking(on bool) Option {
	return func(c *Config) { c.TrackChanges = on }
}

// WithConflictDetection toggles batch conflict checking.
func WithConflictDetection(on bool) Option {
	return func(c *Config) { c.DetectConflicts = on }
}

// Applier executes DPO rewrites. An Applier is stateless between calls.
type Applier struct {
	cfg Config
}

// New creates an Applier with the given options applied over defaults.
func New(opts ...Option) *Applier {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Applier{cfg: cfg}
}

// Apply rewrites g at the given match of r's left-hand side. The input
// graph is never mutated; on success the rewritten clone is returned with
// the application record. On any failure the input is untouched and the
// error carries the reason.
func (a *Applier) Apply(g *pih.Graph, r *rule.RuleDPO, m *match.Match) (*pih.Graph, *RuleApplication, error) {
	if _, err := pih.FromInstance(r.L); err != nil {
		return nil, nil, applyFailed(r.ID, "malformed left-hand side: %v", err)
	}
	rGraph, err := pih.FromInstance(r.R)
	if err != nil {
		return nil, nil, applyFailed(r.ID, "malformed right-hand side: %v", err)
	}

	cond := r.Condition()

	delNodes, delEdges, err := DeletionSet(g, r, m, cond.Dangling)
	if err != nil {
		return nil, nil, err
	}

	out := g.Clone()
	app := &RuleApplication{
		RuleID:         r.ID,
		MatchSignature: m.Signature(),
		Derived:        make(map[pih.Cid]pih.Cid),
	}
	if r.Effects != nil {
		app.Cost = r.Effects.Cost
	}

	record := func(c GraphChange) {
		if a.cfg.TrackChanges {
			app.Changes = append(app.Changes, c)
		}
	}

	// Pushout complement: drop L\K images, edges before nodes.
	for _, te := range sortedCids(delEdges) {
		edge := *out.Edge(te)
		removedIncs, err := out.RemoveEdge(te)
		if err != nil {
			return nil, nil, applyFailed(r.ID, "remove edge %s: %v", te, err)
		}
		for i := range removedIncs {
			record(GraphChange{Op: ChangeIncidenceRemoved, Incidence: &removedIncs[i]})
		}
		record(GraphChange{Op: ChangeEdgeRemoved, Edge: &edge})
	}
	for _, tn := range sortedCids(delNodes) {
		node := *out.Node(tn)
		if err := out.RemoveNode(tn); err != nil {
			return nil, nil, applyFailed(r.ID, "remove node %s: %v", tn, err)
		}
		record(GraphChange{Op: ChangeNodeRemoved, Node: &node})
	}

	// Preserved elements: K identity survives, node attrs and labels
	// follow R plus the rule's label effects, edge attrs and label
	// follow R.
	if err := a.rewritePreserved(out, r, rGraph, m, record); err != nil {
		return nil, nil, err
	}

	// Pushout: fresh R\K elements under derived CIDs.
	if err := a.addFresh(out, r, rGraph, m, app, record); err != nil {
		return nil, nil, err
	}

	if a.cfg.Validate {
		if violations := ValidateGraph(out); len(violations) > 0 {
			return nil, nil, &Error{
				Code:    ErrCodeValidationFailed,
				Rule:    r.ID,
				Message: fmt.Sprintf("%d invariant violation(s), first: %v", len(violations), violations[0]),
				Wrapped: violations[0],
			}
		}
	}

	app.ResultCid = out.Snapshot().Cid
	return out, app, nil
}

// rewritePreserved updates K-image elements whose content changed
// between L and R: node attrs and labels, edge attrs and label.
func (a *Applier) rewritePreserved(out *pih.Graph, r *rule.RuleDPO, rGraph *pih.Graph, m *match.Match, record func(GraphChange)) error {
	kNodes := make([]pih.Cid, 0, len(r.ML.NodeMap))
	for k := range r.ML.NodeMap {
		kNodes = append(kNodes, k)
	}
	slices.Sort(kNodes)

	for _, k := range kNodes {
		lCid := r.ML.NodeMap[k]
		rCid, ok := r.MR.NodeMap[k]
		if !ok {
			return applyFailed(r.ID, "interface node %s has no image in the right-hand side", k)
		}
		tn, bound := m.NodeMap[lCid]
		if !bound {
			return applyFailed(r.ID, "match does not bind pattern node %s", lCid)
		}
		target := out.Node(tn)
		if target == nil {
			return applyFailed(r.ID, "match binding %s no longer exists", tn)
		}
		rNode := rGraph.Node(rCid)
		if rNode == nil {
			return applyFailed(r.ID, "right-hand side is missing node %s", rCid)
		}

		wantAttrs := rNode.Attrs
		wantLabels := applyLabelEffects(rNode.Labels, r.Effects)

		if attrsEqual(target.Attrs, wantAttrs) && labelsEqual(target.Labels, wantLabels) {
			continue
		}

		before := target.Attrs
		if err := out.SetNodeAttrs(tn, cloneAttrs(wantAttrs)); err != nil {
			return applyFailed(r.ID, "update node %s: %v", tn, err)
		}
		if err := out.SetNodeLabels(tn, slices.Clone(wantLabels)); err != nil {
			return applyFailed(r.ID, "update node %s: %v", tn, err)
		}
		after := *out.Node(tn)
		record(GraphChange{Op: ChangeNodeModified, Node: &after, Before: before, After: after.Attrs})
	}

	kEdges := make([]pih.Cid, 0, len(r.ML.EdgeMap))
	for k := range r.ML.EdgeMap {
		kEdges = append(kEdges, k)
	}
	slices.Sort(kEdges)

	for _, k := range kEdges {
		lCid := r.ML.EdgeMap[k]
		rCid, ok := r.MR.EdgeMap[k]
		if !ok {
			return applyFailed(r.ID, "interface edge %s has no image in the right-hand side", k)
		}
		te, bound := m.EdgeMap[lCid]
		if !bound {
			return applyFailed(r.ID, "match does not bind pattern edge %s", lCid)
		}
		target := out.Edge(te)
		if target == nil {
			return applyFailed(r.ID, "match binding %s no longer exists", te)
		}
		rEdge := rGraph.Edge(rCid)
		if rEdge == nil {
			return applyFailed(r.ID, "right-hand side is missing edge %s", rCid)
		}

		if attrsEqual(target.Attrs, rEdge.Attrs) && target.Label == rEdge.Label {
			continue
		}

		before := target.Attrs
		if err := out.SetEdgeAttrs(te, cloneAttrs(rEdge.Attrs)); err != nil {
			return applyFailed(r.ID, "update edge %s: %v", te, err)
		}
		if err := out.SetEdgeLabel(te, rEdge.Label); err != nil {
			return applyFailed(r.ID, "update edge %s: %v", te, err)
		}
		after := *out.Edge(te)
		record(GraphChange{Op: ChangeEdgeModified, Edge: &after, Before: before, After: after.Attrs})
	}
	return nil
}

// remapEndpoint rewrites an R-side edge endpoint through the element
// image, preserving the "#node.port" form.
func remapEndpoint(ref string, image func(pih.Cid) (pih.Cid, bool)) (string, error) {
	if ref == "" {
		return "", nil
	}
	ep, err := pih.ParseEndpoint(ref)
	if err != nil {
		return "", err
	}
	node, ok := image(ep.Node)
	if !ok {
		return "", fmt.Errorf("endpoint %q: node %s has no image in the target", ref, ep.Node)
	}
	if ep.Port == "" {
		return string(node), nil
	}
	return fmt.Sprintf("#%s.%s", node, ep.Port), nil
}

// addFresh creates the R\K elements with deterministic derived CIDs and
// records them in the application's Derived map.
func (a *Applier) addFresh(out *pih.Graph, r *rule.RuleDPO, rGraph *pih.Graph, m *match.Match, app *RuleApplication, record func(GraphChange)) error {
	rPreserved := make(map[pih.Cid]pih.Cid) // R element -> target CID
	for k, rCid := range r.MR.NodeMap {
		lCid := r.ML.NodeMap[k]
		rPreserved[rCid] = m.NodeMap[lCid]
	}
	for k, rCid := range r.MR.EdgeMap {
		lCid := r.ML.EdgeMap[k]
		rPreserved[rCid] = m.EdgeMap[lCid]
	}

	image := func(rCid pih.Cid) (pih.Cid, bool) {
		if tc, ok := rPreserved[rCid]; ok {
			return tc, true
		}
		tc, ok := app.Derived[rCid]
		return tc, ok
	}

	sig := app.MatchSignature
	for _, rCid := range rGraph.NodeCids() {
		if _, preserved := rPreserved[rCid]; preserved {
			continue
		}
		rNode := rGraph.Node(rCid)
		fresh := pih.DerivedCID(r.ID, sig, string(rCid))
		node := pih.Node{
			Cid:          fresh,
			Labels:       slices.Clone(rNode.Labels),
			Type:         rNode.Type,
			Ports:        slices.Clone(rNode.Ports),
			Attrs:        cloneAttrs(rNode.Attrs),
			ComponentRef: rNode.ComponentRef,
		}
		if err := out.AddNode(node); err != nil {
			return applyFailed(r.ID, "add node %s: %v", fresh, err)
		}
		app.Derived[rCid] = fresh
		record(GraphChange{Op: ChangeNodeAdded, Node: &node})
	}

	for _, rCid := range rGraph.EdgeCids() {
		if _, preserved := rPreserved[rCid]; preserved {
			continue
		}
		rEdge := rGraph.Edge(rCid)
		fresh := pih.DerivedCID(r.ID, sig, string(rCid))

		src, err := remapEndpoint(rEdge.Src, image)
		if err != nil {
			return applyFailed(r.ID, "edge %s: %v", rCid, err)
		}
		tgt, err := remapEndpoint(rEdge.Tgt, image)
		if err != nil {
			return applyFailed(r.ID, "edge %s: %v", rCid, err)
		}

		edge := pih.Edge{
			Cid:   fresh,
			Label: rEdge.Label,
			Type:  rEdge.Type,
			Src:   src,
			Tgt:   tgt,
			Attrs: cloneAttrs(rEdge.Attrs),
		}
		if err := out.AddEdge(edge); err != nil {
			return applyFailed(r.ID, "add edge %s: %v", fresh, err)
		}
		app.Derived[rCid] = fresh
		record(GraphChange{Op: ChangeEdgeAdded, Edge: &edge})

		for _, inc := range rGraph.IncidencesOf(rCid) {
			node, ok := image(inc.Node)
			if !ok {
				return applyFailed(r.ID, "edge %s: incidence node %s has no image", rCid, inc.Node)
			}
			mapped := pih.Incidence{
				Edge:  fresh,
				Node:  node,
				Role:  inc.Role,
				Idx:   inc.Idx,
				Attrs: cloneAttrs(inc.Attrs),
			}
			if err := out.AddIncidence(mapped); err != nil {
				return applyFailed(r.ID, "add incidence on %s: %v", fresh, err)
			}
			record(GraphChange{Op: ChangeIncidenceAdded, Incidence: &mapped})
		}
	}
	return nil
}

// DeletionSet computes the target-side node and edge CIDs an application
// would delete, including dangling-edge cascades under the cleanup
// policy. Under the forbid policy a dangling deletion is an error.
func DeletionSet(g *pih.Graph, r *rule.RuleDPO, m *match.Match, mode rule.DanglingMode) (nodes, edges map[pih.Cid]bool, err error) {
	imageNodes := make(map[pih.Cid]bool, len(r.ML.NodeMap))
	for _, lCid := range r.ML.NodeMap {
		imageNodes[lCid] = true
	}
	imageEdges := make(map[pih.Cid]bool, len(r.ML.EdgeMap))
	for _, lCid := range r.ML.EdgeMap {
		imageEdges[lCid] = true
	}

	nodes = make(map[pih.Cid]bool)
	edges = make(map[pih.Cid]bool)
	for lCid, tn := range m.NodeMap {
		if !imageNodes[lCid] {
			nodes[tn] = true
		}
	}
	for lCid, te := range m.EdgeMap {
		if !imageEdges[lCid] {
			edges[te] = true
		}
	}

	// Dangling condition: a deleted node must not leave incidences on
	// surviving edges behind.
	for tn := range nodes {
		for _, te := range g.IncidentEdges(tn) {
			if edges[te] {
				continue
			}
			if mode == rule.DanglingAllowWithCleanup {
				edges[te] = true
				continue
			}
			return nil, nil, applyFailed(r.ID,
				"deleting node %s would dangle edge %s", tn, te)
		}
	}
	return nodes, edges, nil
}

// Planned pairs a rule with one of its matches for conflict analysis.
type Planned struct {
	Rule  *rule.RuleDPO
	Match *match.Match
}

// Conflicts reports whether two planned applications interfere: one's
// deletion set overlaps anything the other's match touches. Independent
// applications commute and may run in the same parallel batch.
func Conflicts(g *pih.Graph, a, b Planned) (bool, error) {
	aNodes, aEdges, err := DeletionSet(g, a.Rule, a.Match, a.Rule.Condition().Dangling)
	if err != nil {
		return false, err
	}
	bNodes, bEdges, err := DeletionSet(g, b.Rule, b.Match, b.Rule.Condition().Dangling)
	if err != nil {
		return false, err
	}
	return touches(aNodes, aEdges, b.Match) || touches(bNodes, bEdges, a.Match), nil
}

// ApplyBatch applies r at up to max of the given matches in order, as
// one logical parallel step over the starting graph g. With
// DetectConflicts on, a match whose deletion set overlaps an already
// accepted one is rejected with a CONFLICT_DETECTED error without
// consuming a slot; independent skips that check for rules statically
// known to commute. max <= 0 means unbounded. Rejected collects one
// error per skipped match. The returned graph reflects every accepted
// application; g is never mutated.
func (a *Applier) ApplyBatch(g *pih.Graph, r *rule.RuleDPO, matches []*match.Match, max int, independent bool) (out *pih.Graph, apps []*RuleApplication, rejected []error, err error) {
	out = g
	var accepted []Planned
	for _, m := range matches {
		if max > 0 && len(accepted) >= max {
			break
		}
		if a.cfg.DetectConflicts && !independent {
			conflict := false
			for _, p := range accepted {
				c, cerr := Conflicts(g, p, Planned{Rule: r, Match: m})
				if cerr != nil {
					return nil, nil, nil, cerr
				}
				if c {
					conflict = true
					break
				}
			}
			if conflict {
				rejected = append(rejected, conflictDetected(r.ID,
					"match %s overlaps an accepted application in the batch", m.Signature()))
				continue
			}
		}
		next, app, aerr := a.Apply(out, r, m)
		if aerr != nil {
			if IsApplicationFailed(aerr) {
				rejected = append(rejected, aerr)
				continue
			}
			return nil, nil, nil, aerr
		}
		out = next
		apps = append(apps, app)
		accepted = append(accepted, Planned{Rule: r, Match: m})
	}
	return out, apps, rejected, nil
}

func touches(delNodes, delEdges map[pih.Cid]bool, m *match.Match) bool {
	for _, tn := range m.NodeMap {
		if delNodes[tn] {
			return true
		}
	}
	for _, te := range m.EdgeMap {
		if delEdges[te] {
			return true
		}
	}
	return false
}

// ValidateGraph checks model invariants over a rewritten graph and
// returns every violation found, in deterministic element order.
func ValidateGraph(g *pih.Graph) []*ValidationError {
	var out []*ValidationError

	for _, cid := range g.NodeCids() {
		if g.Node(cid).Type == "" {
			out = append(out, &ValidationError{
				Code:    ValTypeConstraint,
				Element: string(cid),
				Message: "node has no type",
			})
		}
	}

	for _, cid := range g.EdgeCids() {
		e := g.Edge(cid)
		if e.Type == "" {
			out = append(out, &ValidationError{
				Code:    ValTypeConstraint,
				Element: string(cid),
				Message: "edge has no type",
			})
		}
		for _, ref := range []string{e.Src, e.Tgt} {
			if ref == "" {
				continue
			}
			ep, err := pih.ParseEndpoint(ref)
			if err != nil || !g.HasNode(ep.Node) {
				out = append(out, &ValidationError{
					Code:    ValReference,
					Element: string(cid),
					Message: fmt.Sprintf("endpoint %q does not resolve", ref),
				})
			}
		}
	}

	for _, inc := range g.Incidences() {
		if !pih.ValidRoles[inc.Role] {
			out = append(out, &ValidationError{
				Code:    ValTypeConstraint,
				Element: string(inc.Edge),
				Message: fmt.Sprintf("invalid incidence role %q", inc.Role),
			})
		}
		if !g.HasEdge(inc.Edge) || !g.HasNode(inc.Node) {
			out = append(out, &ValidationError{
				Code:    ValReference,
				Element: string(inc.Edge),
				Message: "incidence references a missing element",
			})
		}
	}

	if err := g.CheckContiguity(); err != nil {
		out = append(out, &ValidationError{
			Code:    ValCardinality,
			Message: err.Error(),
		})
	}
	return out
}

func applyLabelEffects(labels []string, effects *rule.Effects) []string {
	if effects == nil {
		return labels
	}
	out := make([]string, 0, len(labels)+len(effects.LabelsAdd))
	for _, l := range labels {
		if !slices.Contains(effects.LabelsRemove, l) {
			out = append(out, l)
		}
	}
	for _, l := range effects.LabelsAdd {
		if !slices.Contains(out, l) {
			out = append(out, l)
		}
	}
	return out
}

func attrsEqual(a, b pih.Attrs) bool {
	if len(a) != len(b) {
		return false
	}
	for k, va := range a {
		vb, ok := b[k]
		if !ok || !pih.Equal(va, vb) {
			return false
		}
	}
	return true
}

func labelsEqual(a, b []string) bool {
	return slices.Equal(a, b)
}

func cloneAttrs(a pih.Attrs) pih.Attrs {
	if a == nil {
		return nil
	}
	out := make(pih.Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func sortedCids(set map[pih.Cid]bool) []pih.Cid {
	out := make([]pih.Cid, 0, len(set))
	for cid := range set {
		out = append(out, cid)
	}
	slices.Sort(out)
	return out
}
