package store

import (
	"context"
	"fmt"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/pih"
)

// ReplayResult reports the outcome of re-materializing a run from its
// journal.
type ReplayResult struct {
	RunID    string
	Steps    int
	FinalCid pih.Cid

	// Diverged is set when a replayed step's snapshot CID differs from
	// the recorded one. DivergedAt is the journal sequence of the first
	// divergent step and Reason describes the mismatch.
	Diverged   bool
	DivergedAt int
	Reason     string
}

// Replay re-materializes a run's result graph by applying its recorded
// change log to the stored input snapshot, verifying the content CID
// after every step. A clean store replays to byte-identical snapshots;
// any divergence means the store or the journal was tampered with or
// corrupted.
//
// The replayed graph is returned alongside the result so callers can
// inspect or re-store it. On divergence the graph holds the state after
// the last verified step.
func (s *Store) Replay(ctx context.Context, runID string) (*ReplayResult, *pih.Graph, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	input, err := s.GetGraph(ctx, run.InputCid)
	if err != nil {
		return nil, nil, fmt.Errorf("replay %s: %w", runID, err)
	}
	g, err := pih.FromInstance(input)
	if err != nil {
		return nil, nil, fmt.Errorf("replay %s: corrupt input snapshot: %w", runID, err)
	}

	journal, err := s.ReadJournal(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("replay %s: %w", runID, err)
	}

	result := &ReplayResult{RunID: runID, DivergedAt: -1}

	for _, entry := range journal {
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("replay %s: %w", runID, err)
		}

		next := g.Clone()
		if err := replayApplication(next, &entry.Application); err != nil {
			result.Diverged = true
			result.DivergedAt = entry.Seq
			result.Reason = err.Error()
			result.FinalCid = g.Snapshot().Cid
			return result, g, nil
		}

		snap := next.Snapshot()
		if snap.Cid != entry.Application.ResultCid {
			result.Diverged = true
			result.DivergedAt = entry.Seq
			result.Reason = fmt.Sprintf("replayed snapshot %s, journal recorded %s", snap.Cid, entry.Application.ResultCid)
			result.FinalCid = g.Snapshot().Cid
			return result, g, nil
		}

		g = next
		result.Steps++
	}

	result.FinalCid = g.Snapshot().Cid
	if !run.ResultCid.IsZero() && result.FinalCid != run.ResultCid {
		result.Diverged = true
		result.Reason = fmt.Sprintf("final snapshot %s, run recorded %s", result.FinalCid, run.ResultCid)
	}

	return result, g, nil
}

// replayApplication applies one recorded change log to the graph.
//
// IncidenceRemoved entries are skipped: the journal logs them ahead of
// their EdgeRemoved entry, and removing the edge drops its incidences.
func replayApplication(g *pih.Graph, app *apply.RuleApplication) error {
	for i, change := range app.Changes {
		var err error
		switch change.Op {
		case apply.ChangeNodeAdded:
			if change.Node == nil {
				err = fmt.Errorf("NodeAdded without node")
				break
			}
			err = g.AddNode(*change.Node)
		case apply.ChangeNodeRemoved:
			if change.Node == nil {
				err = fmt.Errorf("NodeRemoved without node")
				break
			}
			err = g.RemoveNode(change.Node.Cid)
		case apply.ChangeNodeModified:
			if change.Node == nil {
				err = fmt.Errorf("NodeModified without node")
				break
			}
			if err = g.SetNodeAttrs(change.Node.Cid, change.Node.Attrs); err != nil {
				break
			}
			err = g.SetNodeLabels(change.Node.Cid, change.Node.Labels)
		case apply.ChangeEdgeAdded:
			if change.Edge == nil {
				err = fmt.Errorf("EdgeAdded without edge")
				break
			}
			err = g.AddEdge(*change.Edge)
		case apply.ChangeEdgeRemoved:
			if change.Edge == nil {
				err = fmt.Errorf("EdgeRemoved without edge")
				break
			}
			_, err = g.RemoveEdge(change.Edge.Cid)
		case apply.ChangeEdgeModified:
			if change.Edge == nil {
				err = fmt.Errorf("EdgeModified without edge")
				break
			}
			if err = g.SetEdgeAttrs(change.Edge.Cid, change.Edge.Attrs); err != nil {
				break
			}
			err = g.SetEdgeLabel(change.Edge.Cid, change.Edge.Label)
		case apply.ChangeIncidenceAdded:
			if change.Incidence == nil {
				err = fmt.Errorf("IncidenceAdded without incidence")
				break
			}
			err = g.AddIncidence(*change.Incidence)
		case apply.ChangeIncidenceRemoved:
			// Subsumed by the following EdgeRemoved.
		default:
			err = fmt.Errorf("unknown change op %q", change.Op)
		}
		if err != nil {
			return fmt.Errorf("rule %s change %d: %w", app.RuleID, i, err)
		}
	}
	return nil
}
