package strategy

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/graftlabs/graft/internal/analyze"
	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/match"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// TokenGenerator produces run tokens for correlation across logs and the
// rewrite journal. Implemented by UUIDGenerator (production),
// FixedGenerator, and testutil.SequenceTokenGenerator.
type TokenGenerator interface {
	Generate() string
}

// DefaultMaxSteps bounds rule-application attempts per run. This keeps a
// runaway repeat from spinning forever on a self-enabling rule.
const DefaultMaxSteps = 10000

// RuleStats aggregates per-rule counters over one run.
type RuleStats struct {
	Attempts     int64 `json:"attempts"`
	Applications int64 `json:"applications"`
	MatchesFound int64 `json:"matches_found"`
	Conflicts    int64 `json:"conflicts"`
	TotalCost    int64 `json:"total_cost"`
}

// Run is the record of one strategy execution. Committed applications
// stay committed even when the overall strategy fails; FailedPath and
// Remaining report where it stopped and what was left to do.
type Run struct {
	RunID        string                   `json:"run_id"`
	Result       *pih.Graph               `json:"-"`
	ResultCid    pih.Cid                  `json:"result_cid"`
	Applications []*apply.RuleApplication `json:"applications"`
	Stats        map[string]*RuleStats    `json:"stats"`
	Steps        int64                    `json:"steps"`
	Failed       bool                     `json:"failed"`
	FailedPath   []string                 `json:"failed_path,omitempty"`
	Remaining    string                   `json:"remaining,omitempty"`
}

// OptimizationConfig enables optional assists layered over the plain
// strategy semantics. None changes which rewrites a strategy denotes,
// only how much search the engine spends finding them. All off by
// default.
type OptimizationConfig struct {
	// Aggressive lifts the match cap for parallel batches so max_parallel
	// can fill from the full match set instead of the matcher's bound.
	Aggressive bool `json:"aggressive"`

	// PatternOptimization caps single-site applies at one match instead
	// of enumerating the full set and taking the first.
	PatternOptimization bool `json:"pattern_optimization"`

	// StaticAnalysis profiles each rule once per run lifetime; rules the
	// profile marks parallel safe skip the dynamic conflict check in
	// batches.
	StaticAnalysis bool `json:"static_analysis"`
}

// Engine interprets strategy trees against a graph and a rule/query set.
type Engine struct {
	rules    rule.RuleSet
	queries  rule.QuerySet
	matcher  *match.Matcher
	applier  *apply.Applier
	tokens   TokenGenerator
	maxSteps int64
	opt      OptimizationConfig

	// Derived from matcher per opt; fall back to matcher itself.
	applyMatcher *match.Matcher
	batchMatcher *match.Matcher

	analyses map[string]*analyze.RuleAnalysis
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithMatcher replaces the default matcher.
func WithMatcher(m *match.Matcher) EngineOption {
	return func(e *Engine) { e.matcher = m }
}

// WithApplier replaces the default applier.
func WithApplier(a *apply.Applier) EngineOption {
	return func(e *Engine) { e.applier = a }
}

// WithTokenGenerator replaces the run token source.
func WithTokenGenerator(g TokenGenerator) EngineOption {
	return func(e *Engine) { e.tokens = g }
}

// WithMaxSteps sets the per-run application-attempt quota.
func WithMaxSteps(n int64) EngineOption {
	return func(e *Engine) { e.maxSteps = n }
}

// WithOptimization sets the optimization toggles.
func WithOptimization(cfg OptimizationConfig) EngineOption {
	return func(e *Engine) { e.opt = cfg }
}

// New creates an Engine over the given rule and query sets.
func New(rules rule.RuleSet, queries rule.QuerySet, opts ...EngineOption) *Engine {
	e := &Engine{
		rules:    rules,
		queries:  queries,
		matcher:  match.New(),
		applier:  apply.New(),
		tokens:   NewUUIDGenerator(),
		maxSteps: DefaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.applyMatcher = e.matcher
	e.batchMatcher = e.matcher
	if e.opt.PatternOptimization {
		cfg := e.matcher.Config()
		cfg.MaxMatches = 1
		e.applyMatcher = match.New(match.WithConfig(cfg))
	}
	if e.opt.Aggressive {
		cfg := e.matcher.Config()
		cfg.MaxMatches = 0
		e.batchMatcher = match.New(match.WithConfig(cfg))
	}
	if e.opt.StaticAnalysis {
		e.analyses = make(map[string]*analyze.RuleAnalysis)
	}
	return e
}

// analysis returns the cached static profile of a rule, or nil when
// static analysis is off or the rule does not profile cleanly.
func (e *Engine) analysis(r *rule.RuleDPO) *analyze.RuleAnalysis {
	if !e.opt.StaticAnalysis {
		return nil
	}
	if a, ok := e.analyses[r.ID]; ok {
		return a
	}
	a, err := analyze.Analyze(r)
	if err != nil {
		a = nil
	}
	e.analyses[r.ID] = a
	return a
}

// runState threads the mutable execution state through the tree walk.
// The graph pointer is replaced on every committed application, which is
// what makes choice rollback a pointer restore.
type runState struct {
	graph *pih.Graph
	scope map[pih.Cid]bool
	run   *Run
}

// Run executes a strategy against g. The input graph is never mutated.
// A strategy that fails to apply is reported on the Run record, not as
// an error; errors cover broken strategies, budget exhaustion, and
// context cancellation.
func (e *Engine) Run(ctx context.Context, g *pih.Graph, s Strategy) (*Run, error) {
	run := &Run{
		RunID: e.tokens.Generate(),
		Stats: make(map[string]*RuleStats),
	}
	st := &runState{graph: g, run: run}

	slog.Info("strategy run starting",
		"run_id", run.RunID,
		"strategy", s.String())

	ok, err := e.exec(ctx, st, s, nil)
	if err != nil {
		return nil, err
	}

	run.Failed = !ok
	if ok {
		// Recovered failures (a choice arm, an exhausted repeat) leave
		// stale marks behind; only a failed run keeps them.
		run.FailedPath = nil
		run.Remaining = ""
	}
	run.Result = st.graph
	run.ResultCid = st.graph.Snapshot().Cid

	slog.Info("strategy run finished",
		"run_id", run.RunID,
		"failed", run.Failed,
		"steps", run.Steps,
		"applications", len(run.Applications))
	return run, nil
}

func (e *Engine) exec(ctx context.Context, st *runState, s Strategy, path []string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	switch node := s.(type) {
	case Seq:
		for i, step := range node.Steps {
			ok, err := e.exec(ctx, st, step, append(path, fmt.Sprintf("seq[%d]", i)))
			if err != nil {
				return false, err
			}
			if !ok {
				e.markFailure(st, append(path, fmt.Sprintf("seq[%d]", i)), Seq{Steps: node.Steps[i:]})
				return false, nil
			}
		}
		return true, nil

	case Choice:
		for i, arm := range node.Arms {
			saved := st.graph
			savedApps := len(st.run.Applications)
			ok, err := e.exec(ctx, st, arm, append(path, fmt.Sprintf("choice[%d]", i)))
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
			st.graph = saved
			st.run.Applications = st.run.Applications[:savedApps]
		}
		e.markFailure(st, path, node)
		return false, nil

	case Repeat:
		for i := 0; node.Max == 0 || i < node.Max; i++ {
			saved := st.graph
			savedApps := len(st.run.Applications)
			ok, err := e.exec(ctx, st, node.Body, append(path, fmt.Sprintf("repeat[%d]", i)))
			if err != nil {
				return false, err
			}
			if !ok {
				st.graph = saved
				st.run.Applications = st.run.Applications[:savedApps]
				break
			}
		}
		return true, nil

	case Guard:
		hit, err := e.queryHits(node.Query, st)
		if err != nil {
			return false, err
		}
		if hit {
			if node.Then == nil {
				return true, nil
			}
			return e.exec(ctx, st, node.Then, append(path, "guard.then"))
		}
		// A missed guard with no else branch is a failure: a bare
		// guard(q) gates the rest of a seq on the query.
		if node.Else == nil {
			e.markFailure(st, path, node)
			return false, nil
		}
		return e.exec(ctx, st, node.Else, append(path, "guard.else"))

	case ApplyRule:
		return e.applyOne(st, node, path)

	case Scope:
		savedScope := st.scope
		st.scope = intersectScope(savedScope, st.graph.ReachableFrom(node.Root))
		ok, err := e.exec(ctx, st, node.Body, append(path, fmt.Sprintf("scope(%s)", node.Root)))
		st.scope = savedScope
		return ok, err

	case Parallel:
		return e.applyBatch(st, node, path)

	default:
		return false, &Error{Code: ErrCodeUnknownRule, Message: fmt.Sprintf("unsupported strategy node %T", s)}
	}
}

// applyOne applies a rule at one match selected by order.
func (e *Engine) applyOne(st *runState, node ApplyRule, path []string) (bool, error) {
	r, stats, err := e.lookupRule(st, node.Rule)
	if err != nil {
		return false, err
	}
	if err := e.chargeStep(st); err != nil {
		return false, err
	}
	stats.Attempts++

	// Bottom-up selection needs the full match set; the capped matcher
	// only serves the take-first case.
	mt := e.applyMatcher
	if node.Order == BottomUp {
		mt = e.matcher
	}
	matches, err := e.findMatches(st, r, mt)
	if err != nil {
		return false, err
	}
	stats.MatchesFound += int64(len(matches))
	if len(matches) == 0 {
		e.markFailure(st, append(path, node.String()), node)
		return false, nil
	}

	m := matches[0]
	if node.Order == BottomUp {
		m = matches[len(matches)-1]
	}

	out, app, err := e.applier.Apply(st.graph, r, m)
	if err != nil {
		if apply.IsApplicationFailed(err) {
			// The match exists but the rewrite is inadmissible (for
			// example a dangling deletion); treat as strategy failure.
			slog.Debug("application rejected",
				"run_id", st.run.RunID,
				"rule", r.ID,
				"reason", err)
			e.markFailure(st, append(path, node.String()), node)
			return false, nil
		}
		return false, err
	}

	e.commit(st, stats, out, app, r)
	return true, nil
}

// applyBatch applies a rule at up to Max pairwise non-conflicting
// matches. Selection is greedy over the matcher's deterministic order,
// so the batch is reproducible; applications run sequentially, which is
// observationally equivalent to a parallel commit of independent
// rewrites.
func (e *Engine) applyBatch(st *runState, node Parallel, path []string) (bool, error) {
	r, stats, err := e.lookupRule(st, node.Rule)
	if err != nil {
		return false, err
	}
	if err := e.chargeStep(st); err != nil {
		return false, err
	}
	stats.Attempts++

	matches, err := e.findMatches(st, r, e.batchMatcher)
	if err != nil {
		return false, err
	}
	stats.MatchesFound += int64(len(matches))

	// A statically parallel-safe rule deletes nothing, so its matches
	// cannot conflict and the dynamic check is skipped.
	independent := false
	if a := e.analysis(r); a != nil && a.ParallelSafe {
		independent = true
	}

	out, apps, rejected, err := e.applier.ApplyBatch(st.graph, r, matches, node.Max, independent)
	if err != nil {
		return false, err
	}
	for _, rej := range rejected {
		if apply.IsConflictDetected(rej) {
			stats.Conflicts++
		}
		slog.Debug("batch member rejected",
			"run_id", st.run.RunID,
			"rule", r.ID,
			"reason", rej)
	}
	if len(apps) == 0 {
		e.markFailure(st, append(path, node.String()), node)
		return false, nil
	}

	st.graph = out
	for _, app := range apps {
		st.run.Applications = append(st.run.Applications, app)
		stats.Applications++
		if app.Cost != nil {
			stats.TotalCost += *app.Cost
		}
	}

	slog.Debug("parallel batch committed",
		"run_id", st.run.RunID,
		"rule", r.ID,
		"batch", len(apps))
	return true, nil
}

func (e *Engine) commit(st *runState, stats *RuleStats, out *pih.Graph, app *apply.RuleApplication, r *rule.RuleDPO) {
	st.graph = out
	st.run.Applications = append(st.run.Applications, app)
	stats.Applications++
	if app.Cost != nil {
		stats.TotalCost += *app.Cost
	}
	slog.Debug("rule applied",
		"run_id", st.run.RunID,
		"rule", r.ID,
		"match", app.MatchSignature,
		"result", app.ResultCid)
}

func (e *Engine) findMatches(st *runState, r *rule.RuleDPO, mt *match.Matcher) ([]*match.Match, error) {
	cond := r.Condition()
	result, err := mt.FindMatchesScoped(r.L, st.graph, r.Nacs, cond.Injective, cond.AttrsGuard, st.scope)
	if err != nil {
		if match.IsTimeout(err) {
			return nil, nil
		}
		return nil, err
	}
	return result.Matches, nil
}

// queryHits evaluates a guard predicate: does the named query have at
// least one match in the current scope.
func (e *Engine) queryHits(id string, st *runState) (bool, error) {
	q, ok := e.queries[id]
	if !ok {
		return false, &Error{Code: ErrCodeUnknownQuery, Ref: id, Message: "guard references undefined query"}
	}
	result, err := e.matcher.FindMatchesScoped(q.Pattern, st.graph, q.Nacs, true, nil, st.scope)
	if err != nil {
		if match.IsTimeout(err) {
			return false, nil
		}
		return false, err
	}
	return !result.Empty(), nil
}

func (e *Engine) lookupRule(st *runState, id string) (*rule.RuleDPO, *RuleStats, error) {
	r, ok := e.rules[id]
	if !ok {
		return nil, nil, &Error{Code: ErrCodeUnknownRule, Ref: id, Message: "strategy references undefined rule"}
	}
	stats := st.run.Stats[id]
	if stats == nil {
		stats = &RuleStats{}
		st.run.Stats[id] = stats
	}
	return r, stats, nil
}

func (e *Engine) chargeStep(st *runState) error {
	st.run.Steps++
	if e.maxSteps > 0 && st.run.Steps > e.maxSteps {
		return &Error{
			Code:    ErrCodeBudgetExceeded,
			Message: fmt.Sprintf("step quota %d exhausted", e.maxSteps),
		}
	}
	return nil
}

// markFailure records where the strategy stopped. Only the outermost
// failure sticks; nested combinators may recover via choice or repeat.
func (e *Engine) markFailure(st *runState, path []string, remaining Strategy) {
	st.run.FailedPath = append([]string(nil), path...)
	st.run.Remaining = remaining.String()
}

func intersectScope(outer, inner map[pih.Cid]bool) map[pih.Cid]bool {
	if outer == nil {
		return inner
	}
	out := make(map[pih.Cid]bool)
	for cid := range inner {
		if outer[cid] {
			out[cid] = true
		}
	}
	return out
}
