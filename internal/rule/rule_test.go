package rule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlabs/graft/internal/pih"
)

// foldLR is the constant folding rule span: L matches an add event over
// two const inputs, R keeps only the result node.
func foldLR() (*pih.GraphInstance, *pih.GraphInstance) {
	l := &pih.GraphInstance{
		Kind: pih.KindPattern,
		Core: pih.GraphCore{
			Nodes: []pih.Node{
				{Cid: "n:a", Type: "val", Labels: []string{"const"}},
				{Cid: "n:b", Type: "val", Labels: []string{"const"}},
				{Cid: "n:result", Type: "val"},
			},
			Edges: []pih.Edge{{Cid: "e:add", Type: "event", Label: "add"}},
			Incidences: []pih.Incidence{
				{Edge: "e:add", Node: "n:a", Role: pih.RoleDataIn, Idx: 0},
				{Edge: "e:add", Node: "n:b", Role: pih.RoleDataIn, Idx: 1},
				{Edge: "e:add", Node: "n:result", Role: pih.RoleDataOut, Idx: 0},
			},
		},
	}
	r := &pih.GraphInstance{
		Kind: pih.KindPattern,
		Core: pih.GraphCore{
			Nodes: []pih.Node{{Cid: "n:result", Type: "val", Labels: []string{"const"}}},
		},
	}
	return l, r
}

func TestFromLR(t *testing.T) {
	l, r := foldLR()

	rule, err := FromLR("constant-folding", l, r, nil, nil)
	require.NoError(t, err)

	// K is the shared interface: only the result node survives both sides.
	assert.Equal(t, "constant-folding", rule.ID)
	require.Len(t, rule.K.Core.Nodes, 1)
	assert.Equal(t, pih.Cid("n:result"), rule.K.Core.Nodes[0].Cid)
	assert.Empty(t, rule.K.Core.Edges)

	// Derived morphisms are identities on the shared CIDs.
	assert.Equal(t, pih.Cid("n:result"), rule.ML.NodeMap["n:result"])
	assert.Equal(t, pih.Cid("n:result"), rule.MR.NodeMap["n:result"])
}

func TestFromLRSharedEdgeJoinsK(t *testing.T) {
	l, _ := foldLR()
	// R repeats the full L pattern, so everything is preserved.
	r := &pih.GraphInstance{Kind: pih.KindPattern, Core: l.Core}

	rule, err := FromLR("noop", l, r, nil, nil)
	require.NoError(t, err)

	assert.Len(t, rule.K.Core.Nodes, 3)
	require.Len(t, rule.K.Core.Edges, 1)
	assert.Len(t, rule.K.Core.Incidences, 3)
	assert.Equal(t, pih.Cid("e:add"), rule.MR.EdgeMap["e:add"])
}

func TestFromLRPartialEdgeStaysOut(t *testing.T) {
	l, _ := foldLR()
	// R drops one of the edge's endpoints; the edge cannot join K with a
	// hole in its positional indices.
	r := &pih.GraphInstance{
		Kind: pih.KindPattern,
		Core: pih.GraphCore{
			Nodes: []pih.Node{
				{Cid: "n:a", Type: "val", Labels: []string{"const"}},
				{Cid: "n:result", Type: "val"},
			},
			Edges: []pih.Edge{{Cid: "e:add", Type: "event", Label: "add"}},
			Incidences: []pih.Incidence{
				{Edge: "e:add", Node: "n:a", Role: pih.RoleDataIn, Idx: 0},
				{Edge: "e:add", Node: "n:result", Role: pih.RoleDataOut, Idx: 0},
			},
		},
	}

	rule, err := FromLR("partial", l, r, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rule.K.Core.Edges)
	assert.Len(t, rule.K.Core.Nodes, 2)
}

func TestFromLRRequiresBothSides(t *testing.T) {
	l, r := foldLR()
	_, err := FromLR("broken", nil, r, nil, nil)
	require.Error(t, err)
	_, err = FromLR("broken", l, nil, nil, nil)
	require.Error(t, err)
}

func TestValidateAcceptsDerivedRule(t *testing.T) {
	l, r := foldLR()
	rule, err := FromLR("constant-folding", l, r, nil, nil)
	require.NoError(t, err)
	assert.NoError(t, Validate(rule))
}

func TestValidateRejectsMissingGraphs(t *testing.T) {
	err := Validate(&RuleDPO{ID: "hollow"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "l, k, and r graphs are all required")
}

func TestValidateRejectsBadID(t *testing.T) {
	require.Error(t, Validate(&RuleDPO{}))
	require.Error(t, Validate(&RuleDPO{ID: "has space"}))
}

func TestValidateRejectsNonTotalMorphism(t *testing.T) {
	l, r := foldLR()
	rule, err := FromLR("constant-folding", l, r, nil, nil)
	require.NoError(t, err)

	delete(rule.ML.NodeMap, "n:result")
	err = Validate(rule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not total")
}

func TestValidateRejectsDanglingImage(t *testing.T) {
	l, r := foldLR()
	rule, err := FromLR("constant-folding", l, r, nil, nil)
	require.NoError(t, err)

	rule.ML.NodeMap["n:result"] = "n:ghost"
	err = Validate(rule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing element")
}

func TestValidateRejectsNonInjectiveMorphism(t *testing.T) {
	l, _ := foldLR()
	r := &pih.GraphInstance{Kind: pih.KindPattern, Core: l.Core}
	rule, err := FromLR("noop", l, r, nil, nil)
	require.NoError(t, err)

	// Two K nodes squashed onto one image.
	rule.ML.NodeMap["n:a"] = "n:b"
	err = Validate(rule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not injective")
}

func TestValidateRejectsBadDanglingMode(t *testing.T) {
	l, r := foldLR()
	rule, err := FromLR("constant-folding", l, r, nil, nil)
	require.NoError(t, err)

	rule.AppCond = &ApplicationCondition{Dangling: "sideways"}
	err = Validate(rule)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid dangling mode")
}

func TestValidateNac(t *testing.T) {
	l, r := foldLR()
	nac := SchemaNac{
		ID: "no-frozen",
		Graph: &pih.GraphInstance{
			Kind: pih.KindNAC,
			Core: pih.GraphCore{
				Nodes: []pih.Node{{Cid: "n:a", Type: "val", Labels: []string{"frozen"}}},
			},
		},
		MorphismsL: Morphisms{NodeMap: map[pih.Cid]pih.Cid{"n:a": "n:a"}},
	}

	rule, err := FromLR("guarded", l, r, []SchemaNac{nac}, nil)
	require.NoError(t, err)
	assert.NoError(t, Validate(rule))
}

func TestValidateNacWrongKind(t *testing.T) {
	l, r := foldLR()
	nac := SchemaNac{
		ID: "untagged",
		Graph: &pih.GraphInstance{
			Kind: pih.KindPattern,
			Core: pih.GraphCore{Nodes: []pih.Node{{Cid: "n:x", Type: "val"}}},
		},
	}

	_, err := FromLR("guarded", l, r, []SchemaNac{nac}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `has kind "Pattern"`)
}

func TestValidateNacUnresolvedMorphism(t *testing.T) {
	l, r := foldLR()
	nac := SchemaNac{
		ID: "loose",
		Graph: &pih.GraphInstance{
			Kind: pih.KindNAC,
			Core: pih.GraphCore{Nodes: []pih.Node{{Cid: "n:x", Type: "val"}}},
		},
		MorphismsL: Morphisms{NodeMap: map[pih.Cid]pih.Cid{"n:ghost": "n:x"}},
	}

	_, err := FromLR("guarded", l, r, []SchemaNac{nac}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not in L")
}

func TestConditionDefaults(t *testing.T) {
	r := &RuleDPO{}
	cond := r.Condition()
	assert.True(t, cond.Injective)
	assert.Equal(t, DanglingForbid, cond.Dangling)

	r.AppCond = &ApplicationCondition{Injective: false}
	cond = r.Condition()
	assert.False(t, cond.Injective)
	assert.Equal(t, DanglingForbid, cond.Dangling)
}

func TestInverse(t *testing.T) {
	l, r := foldLR()
	rule, err := FromLR("constant-folding", l, r, nil, nil)
	require.NoError(t, err)

	inv := Inverse(rule)
	assert.Equal(t, "constant-folding:inverse", inv.ID)
	assert.Equal(t, rule.R, inv.L)
	assert.Equal(t, rule.L, inv.R)
	assert.Equal(t, rule.K, inv.K)
	assert.Equal(t, rule.MR, inv.ML)

	// The reversed span is still a well formed rule.
	assert.NoError(t, Validate(inv))
}
