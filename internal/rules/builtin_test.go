package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/match"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
	"github.com/graftlabs/graft/internal/testutil"
)

func findMatches(t *testing.T, g *pih.Graph, r *rule.RuleDPO) []*match.Match {
	t.Helper()
	cond := r.Condition()
	result, err := match.New().FindMatchesScoped(r.L, g, r.Nacs, cond.Injective, cond.AttrsGuard, nil)
	require.NoError(t, err)
	return result.Matches
}

func applyFirst(t *testing.T, g *pih.Graph, r *rule.RuleDPO) (*pih.Graph, *apply.RuleApplication) {
	t.Helper()
	matches := findMatches(t, g, r)
	require.NotEmpty(t, matches)
	out, app, err := apply.New().Apply(g, r, matches[0])
	require.NoError(t, err)
	return out, app
}

func TestBuiltin_AllRulesValidate(t *testing.T) {
	set := Builtin()
	require.Len(t, set, 6)
	for id, r := range set {
		assert.NoError(t, rule.Validate(r), id)
	}
}

func TestConstantFolding(t *testing.T) {
	g := testutil.NewGraphBuilder(pih.KindGraph).
		NodeWith("n:c5", "val", nil, pih.Attrs{"is_const": pih.Bool(true), "value": pih.Int(5)}).
		NodeWith("n:c3", "val", nil, pih.Attrs{"is_const": pih.Bool(true), "value": pih.Int(3)}).
		Node("n:r", "val").
		EdgeWith("e:add", "event", "add", pih.Attrs{"opcode": pih.String("add")}).
		In("e:add", "n:c5", 0).
		In("e:add", "n:c3", 1).
		Out("e:add", "n:r", 0).
		Graph(t, "g:fold")

	out, _ := applyFirst(t, g, ConstantFolding())

	assert.Equal(t, 1, out.NodeCount())
	assert.Equal(t, 0, out.EdgeCount())
	folded := out.Node("n:r")
	require.NotNil(t, folded)
	assert.True(t, pih.Equal(pih.Int(8), folded.Attrs["value"]))
	assert.True(t, pih.Equal(pih.Bool(true), folded.Attrs["is_const"]))
}

func TestStrengthReduction(t *testing.T) {
	g := testutil.NewGraphBuilder(pih.KindGraph).
		NodeWith("n:x", "val", nil, pih.Attrs{"dtype": pih.String("i32")}).
		NodeWith("n:c8", "val", nil, pih.Attrs{
			"is_const": pih.Bool(true), "value": pih.Int(8), "is_power_of_two": pih.Bool(true),
		}).
		Node("n:out", "val").
		EdgeWith("e:mul", "event", "mul", pih.Attrs{"opcode": pih.String("mul")}).
		In("e:mul", "n:x", 0).
		In("e:mul", "n:c8", 1).
		Out("e:mul", "n:out", 0).
		Graph(t, "g:mul8")

	out, app := applyFirst(t, g, StrengthReduction())

	// x and out survive, the constant and the mul are gone, a shift by 3
	// takes their place.
	assert.True(t, out.HasNode("n:x"))
	assert.True(t, out.HasNode("n:out"))
	assert.False(t, out.HasNode("n:c8"))
	assert.False(t, out.HasEdge("e:mul"))

	shl, ok := app.Derived["shl_op"]
	require.True(t, ok)
	assert.True(t, pih.Equal(pih.String("shl"), out.Edge(shl).Attrs["opcode"]))

	amt, ok := app.Derived["shift_amt"]
	require.True(t, ok)
	assert.True(t, pih.Equal(pih.Int(3), out.Node(amt).Attrs["value"]))

	incs := out.IncidencesOf(shl)
	require.Len(t, incs, 3)
}

func TestStrengthReduction_FloatBlocked(t *testing.T) {
	g := testutil.NewGraphBuilder(pih.KindGraph).
		NodeWith("n:x", "val", nil, pih.Attrs{"dtype": pih.String("f32")}).
		NodeWith("n:c8", "val", nil, pih.Attrs{
			"is_const": pih.Bool(true), "value": pih.Int(8), "is_power_of_two": pih.Bool(true),
		}).
		Node("n:out", "val").
		EdgeWith("e:mul", "event", "mul", pih.Attrs{"opcode": pih.String("mul")}).
		In("e:mul", "n:x", 0).
		In("e:mul", "n:c8", 1).
		Out("e:mul", "n:out", 0).
		Graph(t, "g:mulf32")

	assert.Empty(t, findMatches(t, g, StrengthReduction()))
}

func TestDeadCodeElimination(t *testing.T) {
	g := testutil.NewGraphBuilder(pih.KindGraph).
		Node("n:dead", "val").
		Node("n:live", "val").
		Node("n:sink", "val").
		EdgeWith("e:dead", "event", "mul", pih.Attrs{"opcode": pih.String("mul")}).
		Out("e:dead", "n:dead", 0).
		EdgeWith("e:live", "event", "mul", pih.Attrs{"opcode": pih.String("mul")}).
		Out("e:live", "n:live", 0).
		EdgeWith("e:use", "event", "add", pih.Attrs{"opcode": pih.String("add")}).
		In("e:use", "n:live", 0).
		Out("e:use", "n:sink", 0).
		Graph(t, "g:dce")

	r := DeadCodeElimination()
	matches := findMatches(t, g, r)
	// Only the unconsumed value is eligible.
	require.Len(t, matches, 1)
	assert.Equal(t, pih.Cid("n:dead"), matches[0].NodeMap["unused"])

	out, _, err := apply.New().Apply(g, r, matches[0])
	require.NoError(t, err)
	assert.False(t, out.HasNode("n:dead"))
	assert.False(t, out.HasEdge("e:dead"))
	assert.True(t, out.HasNode("n:live"))
}

func loopGraph(t *testing.T, loops ...string) *pih.Graph {
	t.Helper()
	b := testutil.NewGraphBuilder(pih.KindGraph).
		Node("n:array", "obj").
		Node("n:i", "val")
	for _, id := range loops {
		b.EdgeWith(id, "event", "for", pih.Attrs{
			"opcode": pih.String("for"),
			"start":  pih.Int(0), "end": pih.Int(100), "step": pih.Int(1),
		}).
			Incidence(id, "n:array", pih.RoleObj, 0, nil).
			Incidence(id, "n:i", pih.RoleCtrlIn, 0, nil)
	}
	return b.Graph(t, "g:loops")
}

func TestLoopFusion(t *testing.T) {
	g := loopGraph(t, "e:loop1", "e:loop2")

	out, app := applyFirst(t, g, LoopFusion())

	assert.Equal(t, 1, out.EdgeCount())
	fused, ok := app.Derived["fused_loop"]
	require.True(t, ok)
	assert.True(t, pih.Equal(pih.Int(200), out.Edge(fused).Attrs["end"]))
	assert.True(t, out.HasNode("n:array"))
	assert.True(t, out.HasNode("n:i"))
}

func TestLoopFusion_DependencyBlocked(t *testing.T) {
	b := testutil.NewGraphBuilder(pih.KindGraph).
		Node("n:array", "obj").
		Node("n:i", "val").
		Node("n:dep", "val")
	for _, id := range []string{"e:loop1", "e:loop2"} {
		b.EdgeWith(id, "event", "for", pih.Attrs{
			"opcode": pih.String("for"),
			"start":  pih.Int(0), "end": pih.Int(100), "step": pih.Int(1),
		}).
			Incidence(id, "n:array", pih.RoleObj, 0, nil).
			Incidence(id, "n:i", pih.RoleCtrlIn, 0, nil)
	}
	// loop1 writes n:dep, loop2 reads it.
	b.Out("e:loop1", "n:dep", 0)
	b.In("e:loop2", "n:dep", 0)
	g := b.Graph(t, "g:dep")

	matches := findMatches(t, g, LoopFusion())
	// The (loop1, loop2) assignment is blocked; the mirrored assignment
	// (loop2 as first, loop1 as second) has no write-read chain.
	for _, m := range matches {
		assert.NotEqual(t, pih.Cid("e:loop1"), m.EdgeMap["loop1"])
	}
}

func TestVectorization(t *testing.T) {
	g := loopGraph(t, "e:loop")

	out, app := applyFirst(t, g, Vectorization())

	vec, ok := app.Derived["vector_loop"]
	require.True(t, ok)
	assert.True(t, pih.Equal(pih.Int(4), out.Edge(vec).Attrs["step"]))
	acc, ok := app.Derived["vector"]
	require.True(t, ok)
	assert.True(t, pih.Equal(pih.String("__m128i"), out.Node(acc).Attrs["dtype"]))
}

func TestVectorization_UnalignedBlocked(t *testing.T) {
	g := testutil.NewGraphBuilder(pih.KindGraph).
		NodeWith("n:array", "obj", nil, pih.Attrs{"aligned": pih.Bool(false)}).
		Node("n:i", "val").
		EdgeWith("e:loop", "event", "for", pih.Attrs{
			"opcode": pih.String("for"),
			"start":  pih.Int(0), "end": pih.Int(100), "step": pih.Int(1),
		}).
		Incidence("e:loop", "n:array", pih.RoleObj, 0, nil).
		Incidence("e:loop", "n:i", pih.RoleCtrlIn, 0, nil).
		Graph(t, "g:unaligned")

	assert.Empty(t, findMatches(t, g, Vectorization()))
}

func TestParallelization(t *testing.T) {
	g := loopGraph(t, "e:loop")

	out, app := applyFirst(t, g, Parallelization())

	par, ok := app.Derived["parallel_loop"]
	require.True(t, ok)
	assert.True(t, pih.Equal(pih.Int(4), out.Edge(par).Attrs["num_threads"]))
	tid, ok := app.Derived["thread_id"]
	require.True(t, ok)
	assert.True(t, out.HasNode(tid))
}

func TestParallelization_CarriedDependencyBlocked(t *testing.T) {
	g := testutil.NewGraphBuilder(pih.KindGraph).
		Node("n:array", "obj").
		Node("n:i", "val").
		Node("n:acc", "val").
		EdgeWith("e:loop", "event", "for", pih.Attrs{
			"opcode": pih.String("for"),
			"start":  pih.Int(0), "end": pih.Int(100), "step": pih.Int(1),
		}).
		Incidence("e:loop", "n:array", pih.RoleObj, 0, nil).
		Incidence("e:loop", "n:i", pih.RoleCtrlIn, 0, nil).
		In("e:loop", "n:acc", 0).
		Out("e:loop", "n:acc", 0).
		Graph(t, "g:carried")

	assert.Empty(t, findMatches(t, g, Parallelization()))
}
