package rule

import (
	"fmt"

	"github.com/graftlabs/graft/internal/pih"
)

// Validate checks that a rule is a well-formed DPO rule:
//   - L, K, R are structurally valid graphs
//   - ML and MR are total on K (every K node/edge has an image)
//   - ML and MR are injective
//   - every mapped image exists in L (resp. R)
//   - every NAC graph is valid, tagged NAC, and its L-morphism resolves
//
// Malformed rules are hard errors at load time, never control flow.
func Validate(r *RuleDPO) error {
	if r.ID == "" {
		return fmt.Errorf("rule has no id")
	}
	if err := pih.ValidateID(r.ID); err != nil {
		return fmt.Errorf("rule: %w", err)
	}
	if r.L == nil || r.K == nil || r.R == nil {
		return fmt.Errorf("rule %s: l, k, and r graphs are all required", r.ID)
	}

	l, err := pih.FromInstance(r.L)
	if err != nil {
		return fmt.Errorf("rule %s: invalid L graph: %w", r.ID, err)
	}
	k, err := pih.FromInstance(r.K)
	if err != nil {
		return fmt.Errorf("rule %s: invalid K graph: %w", r.ID, err)
	}
	rg, err := pih.FromInstance(r.R)
	if err != nil {
		return fmt.Errorf("rule %s: invalid R graph: %w", r.ID, err)
	}

	if err := checkMorphism(r.ID, "m_l", k, l, r.ML); err != nil {
		return err
	}
	if err := checkMorphism(r.ID, "m_r", k, rg, r.MR); err != nil {
		return err
	}

	for i := range r.Nacs {
		if err := validateNac(r.ID, l, &r.Nacs[i]); err != nil {
			return err
		}
	}

	if cond := r.Condition(); cond.Dangling != DanglingForbid && cond.Dangling != DanglingAllowWithCleanup {
		return fmt.Errorf("rule %s: invalid dangling mode %q", r.ID, cond.Dangling)
	}

	return nil
}

// checkMorphism verifies a K->target morphism is total and injective and
// that all images exist.
func checkMorphism(ruleID, name string, k, target *pih.Graph, m Morphisms) error {
	seen := make(map[pih.Cid]pih.Cid, len(m.NodeMap))
	for _, src := range k.NodeCids() {
		img, ok := m.NodeMap[src]
		if !ok {
			return fmt.Errorf("rule %s: %s is not total: K node %s has no image", ruleID, name, src)
		}
		if !target.HasNode(img) {
			return fmt.Errorf("rule %s: %s maps node %s to missing element %s", ruleID, name, src, img)
		}
		if prior, dup := seen[img]; dup {
			return fmt.Errorf("rule %s: %s is not injective: nodes %s and %s share image %s", ruleID, name, prior, src, img)
		}
		seen[img] = src
	}

	seenEdges := make(map[pih.Cid]pih.Cid, len(m.EdgeMap))
	for _, src := range k.EdgeCids() {
		img, ok := m.EdgeMap[src]
		if !ok {
			return fmt.Errorf("rule %s: %s is not total: K edge %s has no image", ruleID, name, src)
		}
		if !target.HasEdge(img) {
			return fmt.Errorf("rule %s: %s maps edge %s to missing element %s", ruleID, name, src, img)
		}
		if prior, dup := seenEdges[img]; dup {
			return fmt.Errorf("rule %s: %s is not injective: edges %s and %s share image %s", ruleID, name, prior, src, img)
		}
		seenEdges[img] = src
	}

	return nil
}

func validateNac(ruleID string, l *pih.Graph, nac *SchemaNac) error {
	if nac.ID == "" {
		return fmt.Errorf("rule %s: NAC has no id", ruleID)
	}
	if nac.Graph == nil {
		return fmt.Errorf("rule %s: NAC %s has no graph", ruleID, nac.ID)
	}
	if nac.Graph.Kind != pih.KindNAC {
		return fmt.Errorf("rule %s: NAC %s graph has kind %q, want %q", ruleID, nac.ID, nac.Graph.Kind, pih.KindNAC)
	}

	ng, err := pih.FromInstance(nac.Graph)
	if err != nil {
		return fmt.Errorf("rule %s: NAC %s: invalid graph: %w", ruleID, nac.ID, err)
	}

	for src, img := range nac.MorphismsL.NodeMap {
		if !l.HasNode(src) {
			return fmt.Errorf("rule %s: NAC %s: morphism source node %s not in L", ruleID, nac.ID, src)
		}
		if !ng.HasNode(img) {
			return fmt.Errorf("rule %s: NAC %s: morphism image node %s not in NAC graph", ruleID, nac.ID, img)
		}
	}
	for src, img := range nac.MorphismsL.EdgeMap {
		if !l.HasEdge(src) {
			return fmt.Errorf("rule %s: NAC %s: morphism source edge %s not in L", ruleID, nac.ID, src)
		}
		if !ng.HasEdge(img) {
			return fmt.Errorf("rule %s: NAC %s: morphism image edge %s not in NAC graph", ruleID, nac.ID, img)
		}
	}

	return nil
}

// Inverse returns the reversed rule: L and R swapped, ML and MR swapped.
// K is unchanged. The result is only a valid DPO rule if Validate accepts
// it; the analyzer uses this to decide invertibility.
func Inverse(r *RuleDPO) *RuleDPO {
	return &RuleDPO{
		ID:      r.ID + ":inverse",
		L:       r.R,
		K:       r.K,
		R:       r.L,
		ML:      r.MR,
		MR:      r.ML,
		AppCond: r.AppCond,
	}
}
