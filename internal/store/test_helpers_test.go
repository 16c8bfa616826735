package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/match"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
	"github.com/graftlabs/graft/internal/testutil"
)

// openTestStore creates a store backed by a temp database, closed when
// the test finishes.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "graft.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// foldRule rewrites x + y into a single folded constant.
func foldRule(t *testing.T) *rule.RuleDPO {
	t.Helper()
	l := testutil.NewGraphBuilder(pih.KindPattern).
		NodeWith("l:x", "value", nil, pih.Attrs{"const": pih.Int(5)}).
		NodeWith("l:y", "value", nil, pih.Attrs{"const": pih.Int(3)}).
		Node("l:out", "value").
		EdgeWith("l:add", "op", "add", nil).
		In("l:add", "l:x", 0).
		In("l:add", "l:y", 1).
		Out("l:add", "l:out", 0).
		Instance("rule:fold:l")
	r := testutil.NewGraphBuilder(pih.KindPattern).
		NodeWith("l:out", "value", nil, pih.Attrs{"const": pih.Int(8)}).
		Instance("rule:fold:r")

	rl, err := rule.FromLR("fold-add", l, r, nil, nil)
	require.NoError(t, err)
	return rl
}

func foldTarget(t *testing.T) *pih.Graph {
	t.Helper()
	return testutil.NewGraphBuilder(pih.KindGraph).
		NodeWith("n:a", "value", nil, pih.Attrs{"const": pih.Int(5)}).
		NodeWith("n:b", "value", nil, pih.Attrs{"const": pih.Int(3)}).
		Node("n:sum", "value").
		EdgeWith("e:add", "op", "add", nil).
		In("e:add", "n:a", 0).
		In("e:add", "n:b", 1).
		Out("e:add", "n:sum", 0).
		Graph(t, "g:fold")
}

// retagRule rewrites an add edge in place: new label, bumped weight,
// endpoints preserved. Its journal carries an EdgeModified entry.
func retagRule(t *testing.T) *rule.RuleDPO {
	t.Helper()
	l := testutil.NewGraphBuilder(pih.KindPattern).
		Node("l:a", "value").
		Node("l:out", "value").
		EdgeWith("l:e", "op", "add", pih.Attrs{"w": pih.Int(1)}).
		In("l:e", "l:a", 0).
		Out("l:e", "l:out", 0).
		Instance("rule:retag:l")
	r := testutil.NewGraphBuilder(pih.KindPattern).
		Node("l:a", "value").
		Node("l:out", "value").
		EdgeWith("l:e", "op", "fma", pih.Attrs{"w": pih.Int(2)}).
		In("l:e", "l:a", 0).
		Out("l:e", "l:out", 0).
		Instance("rule:retag:r")
	rl, err := rule.FromLR("retag", l, r, nil, nil)
	require.NoError(t, err)
	return rl
}

func retagTarget(t *testing.T) *pih.Graph {
	t.Helper()
	return testutil.NewGraphBuilder(pih.KindGraph).
		Node("n:a", "value").
		Node("n:out", "value").
		EdgeWith("e:op", "op", "add", pih.Attrs{"w": pih.Int(1)}).
		In("e:op", "n:a", 0).
		Out("e:op", "n:out", 0).
		Graph(t, "g:retag")
}

// applyRule runs r once against g and returns the rewritten graph with
// its application record.
func applyRule(t *testing.T, g *pih.Graph, r *rule.RuleDPO) (*pih.Graph, *apply.RuleApplication) {
	t.Helper()
	cond := r.Condition()
	result, err := match.New().FindMatchesScoped(r.L, g, r.Nacs, cond.Injective, cond.AttrsGuard, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)

	out, app, err := apply.New().Apply(g, r, result.Matches[0])
	require.NoError(t, err)
	return out, app
}

// applyFold runs the fold rule once against the target and returns the
// rewritten graph with its application record.
func applyFold(t *testing.T, g *pih.Graph) (*pih.Graph, *apply.RuleApplication) {
	t.Helper()
	r := foldRule(t)
	cond := r.Condition()
	result, err := match.New().FindMatchesScoped(r.L, g, r.Nacs, cond.Injective, cond.AttrsGuard, nil)
	require.NoError(t, err)
	require.NotEmpty(t, result.Matches)

	out, app, err := apply.New().Apply(g, r, result.Matches[0])
	require.NoError(t, err)
	return out, app
}
