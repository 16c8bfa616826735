package compiler

import (
	"testing"

	"cuelang.org/go/cue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/strategy"
)

func TestCompileStrategyTree(t *testing.T) {
	v := compileDoc(t, `
		strategy: {
			seq: [
				{repeat: {body: {apply: "constant-folding"}, max: 10}},
				{guard: {
					query: "has-dead-code"
					then: {apply: "dead-code-elimination"}
				}},
				{choice: [
					{apply: {rule: "vectorization", order: "bottom-up"}},
					{apply: "strength-reduction"},
				]},
			]
		}
	`)

	s, err := CompileStrategy(v.LookupPath(cue.ParsePath("strategy")))
	require.NoError(t, err)

	seq, ok := s.(strategy.Seq)
	require.True(t, ok)
	require.Len(t, seq.Steps, 3)

	rep, ok := seq.Steps[0].(strategy.Repeat)
	require.True(t, ok)
	assert.Equal(t, 10, rep.Max)
	assert.Equal(t, strategy.ApplyRule{Rule: "constant-folding", Order: strategy.TopDown}, rep.Body)

	guard, ok := seq.Steps[1].(strategy.Guard)
	require.True(t, ok)
	assert.Equal(t, "has-dead-code", guard.Query)
	assert.NotNil(t, guard.Then)
	assert.Nil(t, guard.Else)

	choice, ok := seq.Steps[2].(strategy.Choice)
	require.True(t, ok)
	require.Len(t, choice.Arms, 2)
	assert.Equal(t, strategy.ApplyRule{Rule: "vectorization", Order: strategy.BottomUp}, choice.Arms[0])
}

func TestCompileStrategyScopeAndParallel(t *testing.T) {
	v := compileDoc(t, `
		strategy: {
			scope: {
				root: "loop-head"
				body: {parallel: {rule: "parallelization", max: 4}}
			}
		}
	`)

	s, err := CompileStrategy(v.LookupPath(cue.ParsePath("strategy")))
	require.NoError(t, err)

	scope, ok := s.(strategy.Scope)
	require.True(t, ok)
	assert.Equal(t, pih.Cid("loop-head"), scope.Root)
	assert.Equal(t, strategy.Parallel{Rule: "parallelization", Max: 4}, scope.Body)
}

func TestCompileStrategyFixpointRepeat(t *testing.T) {
	v := compileDoc(t, `
		strategy: {repeat: {body: {apply: "fold"}}}
	`)

	s, err := CompileStrategy(v.LookupPath(cue.ParsePath("strategy")))
	require.NoError(t, err)

	rep, ok := s.(strategy.Repeat)
	require.True(t, ok)
	assert.Zero(t, rep.Max)
}

func TestCompileStrategyUnknownCombinator(t *testing.T) {
	v := compileDoc(t, `strategy: {spin: {rule: "x"}}`)

	_, err := CompileStrategy(v.LookupPath(cue.ParsePath("strategy")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown combinator")
}

func TestCompileStrategyInvalidOrder(t *testing.T) {
	v := compileDoc(t, `strategy: {apply: {rule: "x", order: "sideways"}}`)

	_, err := CompileStrategy(v.LookupPath(cue.ParsePath("strategy")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid order")
}

func TestCompileStrategyEmptySeq(t *testing.T) {
	v := compileDoc(t, `strategy: {seq: []}`)

	_, err := CompileStrategy(v.LookupPath(cue.ParsePath("strategy")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one step")
}
