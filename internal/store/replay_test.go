package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/pih"
)

// storeRun persists an input snapshot, a run record, and its journal.
func storeRun(t *testing.T, s *Store, runID string, input *pih.GraphInstance, apps []*apply.RuleApplication) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.PutGraph(ctx, input))

	resultCid := input.Cid
	if len(apps) > 0 {
		resultCid = apps[len(apps)-1].ResultCid
	}
	require.NoError(t, s.WriteRunWithJournal(ctx, RunRecord{
		ID:        runID,
		Strategy:  "apply(fold-add)",
		InputCid:  input.Cid,
		ResultCid: resultCid,
		Steps:     len(apps),
	}, apps))
}

func TestReplayReproducesRun(t *testing.T) {
	s := openTestStore(t)

	g := foldTarget(t)
	input := g.Snapshot()
	out, app := applyFold(t, g)
	storeRun(t, s, "run-1", input, []*apply.RuleApplication{app})

	result, replayed, err := s.Replay(context.Background(), "run-1")
	require.NoError(t, err)

	assert.False(t, result.Diverged, "reason: %s", result.Reason)
	assert.Equal(t, 1, result.Steps)
	assert.Equal(t, app.ResultCid, result.FinalCid)
	assert.Equal(t, out.Snapshot().Cid, replayed.Snapshot().Cid)
	assert.Equal(t, 1, replayed.NodeCount())
	assert.Equal(t, 0, replayed.EdgeCount())
}

func TestReplayEdgeModification(t *testing.T) {
	s := openTestStore(t)

	g := retagTarget(t)
	input := g.Snapshot()
	out, app := applyRule(t, g, retagRule(t))
	storeRun(t, s, "run-1", input, []*apply.RuleApplication{app})

	result, replayed, err := s.Replay(context.Background(), "run-1")
	require.NoError(t, err)

	assert.False(t, result.Diverged, "reason: %s", result.Reason)
	assert.Equal(t, out.Snapshot().Cid, replayed.Snapshot().Cid)

	e := replayed.Edge("e:op")
	require.NotNil(t, e)
	assert.Equal(t, "fma", e.Label)
	assert.True(t, pih.Equal(pih.Int(2), e.Attrs["w"]))
}

func TestReplayEmptyJournal(t *testing.T) {
	s := openTestStore(t)

	input := foldTarget(t).Snapshot()
	storeRun(t, s, "run-1", input, nil)

	result, replayed, err := s.Replay(context.Background(), "run-1")
	require.NoError(t, err)

	assert.False(t, result.Diverged)
	assert.Zero(t, result.Steps)
	assert.Equal(t, input.Cid, result.FinalCid)
	assert.Equal(t, 3, replayed.NodeCount())
}

func TestReplayDetectsTamperedJournal(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g := foldTarget(t)
	input := g.Snapshot()
	_, app := applyFold(t, g)
	storeRun(t, s, "run-1", input, []*apply.RuleApplication{app})

	_, err := s.db.ExecContext(ctx,
		`UPDATE applications SET result_cid = 'bogus' WHERE run_id = 'run-1'`)
	require.NoError(t, err)

	result, _, err := s.Replay(ctx, "run-1")
	require.NoError(t, err)

	assert.True(t, result.Diverged)
	assert.Equal(t, 0, result.DivergedAt)
	assert.Contains(t, result.Reason, "bogus")
}

func TestReplayDetectsTamperedChanges(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	g := foldTarget(t)
	input := g.Snapshot()
	_, app := applyFold(t, g)
	storeRun(t, s, "run-1", input, []*apply.RuleApplication{app})

	_, err := s.db.ExecContext(ctx,
		`UPDATE applications SET changes = '[]' WHERE run_id = 'run-1'`)
	require.NoError(t, err)

	result, _, err := s.Replay(ctx, "run-1")
	require.NoError(t, err)

	assert.True(t, result.Diverged)
	assert.Equal(t, 0, result.DivergedAt)
}

func TestReplayMissingRun(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.Replay(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
}
