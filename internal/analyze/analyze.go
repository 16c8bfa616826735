// Package analyze derives static properties of rewrite rules: linearity,
// idempotence, invertibility, parallel safety, and a matching-cost
// estimate. Strategy schedulers use these to order rules and to decide
// which rules need dynamic conflict checks in parallel batches.
package analyze

import (
	"fmt"

	"github.com/graftlabs/graft/internal/match"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// RuleAnalysis is the static profile of one rule.
type RuleAnalysis struct {
	// IsLinear: both interface morphisms are injective, so the rule
	// neither merges nor clones elements.
	IsLinear bool `json:"is_linear"`

	// IsIdempotent: L does not embed into R, so a second application at
	// the same site cannot fire; repeated application terminates per
	// site.
	IsIdempotent bool `json:"is_idempotent"`

	// HasInverse: the span can be flipped into a valid rule. Requires
	// linearity and no NACs (a NAC does not survive inversion).
	HasInverse bool `json:"has_inverse"`

	// ParallelSafe: the rule deletes nothing, so two applications at any
	// pair of matches commute without a dynamic conflict check.
	ParallelSafe bool `json:"parallel_safe"`

	// Complexity estimates matching cost: pattern size plus the size of
	// every NAC that must be searched per candidate match.
	Complexity int64 `json:"complexity"`
}

// Analyze computes the static profile of a rule. The rule must already
// pass rule.Validate.
func Analyze(r *rule.RuleDPO) (*RuleAnalysis, error) {
	lGraph, err := pih.FromInstance(r.L)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: invalid L: %w", r.ID, err)
	}
	rGraph, err := pih.FromInstance(r.R)
	if err != nil {
		return nil, fmt.Errorf("analyze %s: invalid R: %w", r.ID, err)
	}

	linear := injective(r.ML.NodeMap) && injective(r.ML.EdgeMap) &&
		injective(r.MR.NodeMap) && injective(r.MR.EdgeMap)

	idempotent, err := lAbsentFromR(r, rGraph)
	if err != nil {
		return nil, err
	}

	return &RuleAnalysis{
		IsLinear:     linear,
		IsIdempotent: idempotent,
		HasInverse:   linear && len(r.Nacs) == 0,
		ParallelSafe: deletesNothing(r, lGraph),
		Complexity:   complexity(r, lGraph),
	}, nil
}

// lAbsentFromR checks that the left-hand side has no embedding into the
// right-hand side. Label matching is structural here, not subset: an
// embedding of L in R means the rule re-enables itself.
func lAbsentFromR(r *rule.RuleDPO, rGraph *pih.Graph) (bool, error) {
	result, err := match.New(match.WithMaxMatches(1)).FindMatches(r.L, rGraph, nil, true)
	if err != nil {
		if match.IsTimeout(err) {
			return false, nil // undecided within budget, assume the worst
		}
		return false, fmt.Errorf("analyze %s: %w", r.ID, err)
	}
	return result.Empty(), nil
}

// deletesNothing reports whether every L element is in the image of the
// interface, i.e. the rule only adds and modifies.
func deletesNothing(r *rule.RuleDPO, lGraph *pih.Graph) bool {
	imageNodes := make(map[pih.Cid]bool, len(r.ML.NodeMap))
	for _, lCid := range r.ML.NodeMap {
		imageNodes[lCid] = true
	}
	for _, cid := range lGraph.NodeCids() {
		if !imageNodes[cid] {
			return false
		}
	}
	imageEdges := make(map[pih.Cid]bool, len(r.ML.EdgeMap))
	for _, lCid := range r.ML.EdgeMap {
		imageEdges[lCid] = true
	}
	for _, cid := range lGraph.EdgeCids() {
		if !imageEdges[cid] {
			return false
		}
	}
	return true
}

func complexity(r *rule.RuleDPO, lGraph *pih.Graph) int64 {
	total := int64(lGraph.NodeCount() + lGraph.EdgeCount())
	for _, nac := range r.Nacs {
		if nac.Graph == nil {
			continue
		}
		total += int64(len(nac.Graph.Core.Nodes) + len(nac.Graph.Core.Edges))
	}
	return total
}

func injective(m map[pih.Cid]pih.Cid) bool {
	seen := make(map[pih.Cid]bool, len(m))
	for _, v := range m {
		if seen[v] {
			return false
		}
		seen[v] = true
	}
	return true
}
