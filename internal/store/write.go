package store

import (
	"context"
	"fmt"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// PutGraph inserts a graph snapshot keyed by its content CID.
// Uses ON CONFLICT(cid) DO NOTHING for idempotency - the CID commits to
// the content, so a duplicate row is necessarily byte-equal.
func (s *Store) PutGraph(ctx context.Context, g *pih.GraphInstance) error {
	if g == nil {
		return fmt.Errorf("put graph: nil graph")
	}
	if g.Cid.IsZero() {
		return fmt.Errorf("put graph: graph has no CID")
	}

	body, err := marshalGraph(g)
	if err != nil {
		return fmt.Errorf("put graph: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO graphs (cid, kind, body)
		VALUES (?, ?, ?)
		ON CONFLICT(cid) DO NOTHING
	`, string(g.Cid), string(g.Kind), body)
	if err != nil {
		return fmt.Errorf("put graph: %w", err)
	}

	return nil
}

// PutRule inserts or replaces a compiled rule under its declared id.
// Rules are not content-addressed; recompiling a rule document updates
// the stored form.
func (s *Store) PutRule(ctx context.Context, r *rule.RuleDPO) error {
	if r == nil {
		return fmt.Errorf("put rule: nil rule")
	}
	if r.ID == "" {
		return fmt.Errorf("put rule: rule has no id")
	}

	body, err := marshalRule(r)
	if err != nil {
		return fmt.Errorf("put rule: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rules (id, body)
		VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET body = excluded.body
	`, r.ID, body)
	if err != nil {
		return fmt.Errorf("put rule: %w", err)
	}

	return nil
}

// RunRecord is the stored outcome of one strategy execution.
type RunRecord struct {
	ID         string
	Strategy   string
	InputCid   pih.Cid
	ResultCid  pih.Cid
	Failed     bool
	FailedPath string
	Steps      int
}

// WriteRun inserts a run record. Uses ON CONFLICT(id) DO NOTHING for
// idempotency - run ids are engine-issued tokens, never reused.
//
// Note: the input graph referenced by InputCid must already be stored
// (foreign key constraint).
func (s *Store) WriteRun(ctx context.Context, run RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("write run: run has no id")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, input_cid, result_cid, failed, failed_path, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID,
		run.Strategy,
		string(run.InputCid),
		string(run.ResultCid),
		run.Failed,
		run.FailedPath,
		run.Steps,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	return nil
}

// WriteApplication appends one committed rewrite to the run's journal
// at the given sequence position. Uses ON CONFLICT(run_id, seq) DO
// NOTHING so re-writing a journal after a crash is idempotent.
//
// Note: the run referenced by runID must exist (foreign key constraint).
func (s *Store) WriteApplication(ctx context.Context, runID string, seq int, app *apply.RuleApplication) error {
	if app == nil {
		return fmt.Errorf("write application: nil application")
	}

	changes, err := marshalChanges(app.Changes)
	if err != nil {
		return fmt.Errorf("write application: %w", err)
	}

	var cost any
	if app.Cost != nil {
		cost = *app.Cost
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO applications (run_id, seq, rule_id, match_sig, cost, result_cid, changes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`,
		runID,
		seq,
		app.RuleID,
		app.MatchSignature,
		cost,
		string(app.ResultCid),
		changes,
	)
	if err != nil {
		return fmt.Errorf("write application: %w", err)
	}

	return nil
}

// WriteRunWithJournal stores a run and its full application journal in
// one transaction, so a stored run is never visible without its log.
func (s *Store) WriteRunWithJournal(ctx context.Context, run RunRecord, apps []*apply.RuleApplication) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run with journal: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, strategy, input_cid, result_cid, failed, failed_path, steps)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		run.ID, run.Strategy, string(run.InputCid), string(run.ResultCid),
		run.Failed, run.FailedPath, run.Steps,
	)
	if err != nil {
		return fmt.Errorf("write run with journal: %w", err)
	}

	for seq, app := range apps {
		changes, err := marshalChanges(app.Changes)
		if err != nil {
			return fmt.Errorf("write run with journal: seq %d: %w", seq, err)
		}
		var cost any
		if app.Cost != nil {
			cost = *app.Cost
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO applications (run_id, seq, rule_id, match_sig, cost, result_cid, changes)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, seq) DO NOTHING
		`,
			run.ID, seq, app.RuleID, app.MatchSignature, cost, string(app.ResultCid), changes,
		)
		if err != nil {
			return fmt.Errorf("write run with journal: seq %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run with journal: commit: %w", err)
	}
	return nil
}
