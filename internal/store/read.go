package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// GetGraph loads a stored graph snapshot by CID.
func (s *Store) GetGraph(ctx context.Context, cid pih.Cid) (*pih.GraphInstance, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM graphs WHERE cid = ?`, string(cid),
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get graph %s: %w", cid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get graph %s: %w", cid, err)
	}
	return unmarshalGraph(body)
}

// HasGraph reports whether a snapshot with the given CID is stored.
func (s *Store) HasGraph(ctx context.Context, cid pih.Cid) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM graphs WHERE cid = ?`, string(cid),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("has graph %s: %w", cid, err)
	}
	return true, nil
}

// ListGraphs returns the CIDs of all stored graphs of the given kind,
// in CID order for deterministic output. An empty kind lists all.
func (s *Store) ListGraphs(ctx context.Context, kind pih.GraphKind) ([]pih.Cid, error) {
	query := `SELECT cid FROM graphs ORDER BY cid COLLATE BINARY ASC`
	args := []any{}
	if kind != "" {
		query = `SELECT cid FROM graphs WHERE kind = ? ORDER BY cid COLLATE BINARY ASC`
		args = append(args, string(kind))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()

	var cids []pih.Cid
	for rows.Next() {
		var cid string
		if err := rows.Scan(&cid); err != nil {
			return nil, fmt.Errorf("list graphs: %w", err)
		}
		cids = append(cids, pih.Cid(cid))
	}
	return cids, rows.Err()
}

// GetRule loads a stored rule by id.
func (s *Store) GetRule(ctx context.Context, id string) (*rule.RuleDPO, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM rules WHERE id = ?`, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get rule %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", id, err)
	}
	return unmarshalRule(body)
}

// ListRules loads every stored rule as a RuleSet.
func (s *Store) ListRules(ctx context.Context) (rule.RuleSet, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM rules ORDER BY id COLLATE BINARY ASC`)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	rules := make(rule.RuleSet)
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		r, err := unmarshalRule(body)
		if err != nil {
			return nil, fmt.Errorf("list rules: %w", err)
		}
		rules[r.ID] = r
	}
	return rules, rows.Err()
}

// GetRun loads a run record by its token.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var run RunRecord
	var inputCid, resultCid string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, input_cid, result_cid, failed, failed_path, steps
		FROM runs WHERE id = ?
	`, id).Scan(&run.ID, &run.Strategy, &inputCid, &resultCid, &run.Failed, &run.FailedPath, &run.Steps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	run.InputCid = pih.Cid(inputCid)
	run.ResultCid = pih.Cid(resultCid)
	return &run, nil
}

// ListRuns returns all stored run records in id order.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, input_cid, result_cid, failed, failed_path, steps
		FROM runs ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var run RunRecord
		var inputCid, resultCid string
		if err := rows.Scan(&run.ID, &run.Strategy, &inputCid, &resultCid, &run.Failed, &run.FailedPath, &run.Steps); err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		run.InputCid = pih.Cid(inputCid)
		run.ResultCid = pih.Cid(resultCid)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// JournalEntry is one stored rewrite with its position in the run.
type JournalEntry struct {
	Seq         int
	Application apply.RuleApplication
}

// ReadJournal returns the full application journal of a run, ordered by
// sequence.
func (s *Store) ReadJournal(ctx context.Context, runID string) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, rule_id, match_sig, cost, result_cid, changes
		FROM applications
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("read journal %s: %w", runID, err)
	}
	defer rows.Close()

	var entries []JournalEntry
	for rows.Next() {
		var entry JournalEntry
		var cost sql.NullInt64
		var resultCid, changes string
		if err := rows.Scan(&entry.Seq, &entry.Application.RuleID, &entry.Application.MatchSignature,
			&cost, &resultCid, &changes); err != nil {
			return nil, fmt.Errorf("read journal %s: %w", runID, err)
		}
		if cost.Valid {
			c := cost.Int64
			entry.Application.Cost = &c
		}
		entry.Application.ResultCid = pih.Cid(resultCid)
		entry.Application.Changes, err = unmarshalChanges(changes)
		if err != nil {
			return nil, fmt.Errorf("read journal %s: seq %d: %w", runID, entry.Seq, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// CountApplicationsByRule reports how often each rule committed a
// rewrite, across all runs.
func (s *Store) CountApplicationsByRule(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rule_id, COUNT(*) FROM applications
		GROUP BY rule_id
		ORDER BY rule_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("count applications: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var ruleID string
		var n int
		if err := rows.Scan(&ruleID, &n); err != nil {
			return nil, fmt.Errorf("count applications: %w", err)
		}
		counts[ruleID] = n
	}
	return counts, rows.Err()
}
