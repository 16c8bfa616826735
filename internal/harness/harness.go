package harness

import (
	"context"
	"fmt"
	"sort"

	"github.com/graftlabs/graft/internal/apply"
	"github.com/graftlabs/graft/internal/cli"
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/strategy"
	"github.com/graftlabs/graft/internal/testutil"
)

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Compile the scenario's CUE specs directory
//  2. Load the YAML input graph fixture
//  3. Run the named strategy with deterministic run tokens
//  4. Check the outcome against expect_failure
//  5. Evaluate assertions over the run and the final graph
func Run(scenario *Scenario) (*Result, error) {
	docs, errs := cli.LoadDocs(scenario.Specs, cli.LoadModeFailFast)
	if len(errs) > 0 {
		return nil, fmt.Errorf("loading specs: %w", errs[0])
	}

	strat, err := pickStrategy(docs.Strategies, scenario.Strategy)
	if err != nil {
		return nil, err
	}

	inst, err := cli.LoadGraphYAML(scenario.Graph)
	if err != nil {
		return nil, fmt.Errorf("loading graph fixture: %w", err)
	}
	g, err := pih.FromInstance(inst)
	if err != nil {
		return nil, fmt.Errorf("invalid graph fixture: %w", err)
	}

	token := scenario.Token
	if token == "" {
		token = scenario.Name
	}
	opts := []strategy.EngineOption{
		strategy.WithTokenGenerator(testutil.NewSequenceTokenGenerator(token)),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, strategy.WithMaxSteps(scenario.MaxSteps))
	}
	engine := strategy.New(docs.Rules, docs.Queries, opts...)

	run, err := engine.Run(context.Background(), g, strat)
	if err != nil {
		return nil, fmt.Errorf("running strategy: %w", err)
	}

	result := NewResult()
	result.Run = run
	for i, app := range run.Applications {
		result.Trace = append(result.Trace, TraceEvent{
			Seq:            i,
			Rule:           app.RuleID,
			MatchSignature: app.MatchSignature,
			ResultCid:      app.ResultCid,
			Changes:        changeLines(app.Changes),
		})
	}

	if run.Failed && !scenario.ExpectFailure {
		result.AddError(fmt.Sprintf("strategy failed at %v", run.FailedPath))
	}
	if !run.Failed && scenario.ExpectFailure {
		result.AddError("strategy succeeded but expect_failure is set")
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, run.Result) {
		result.AddError(errMsg)
	}

	return result, nil
}

// pickStrategy selects the named strategy, or the only one when the
// name is empty.
func pickStrategy(strategies map[string]strategy.Strategy, name string) (strategy.Strategy, error) {
	if name != "" {
		s, ok := strategies[name]
		if !ok {
			names := make([]string, 0, len(strategies))
			for n := range strategies {
				names = append(names, n)
			}
			sort.Strings(names)
			return nil, fmt.Errorf("unknown strategy %q (have %v)", name, names)
		}
		return s, nil
	}
	if len(strategies) != 1 {
		return nil, fmt.Errorf("specs define %d strategies, name one in the scenario", len(strategies))
	}
	for _, s := range strategies {
		return s, nil
	}
	return nil, fmt.Errorf("no strategy defined")
}

// changeLines renders a change log as stable display strings.
func changeLines(changes []apply.GraphChange) []string {
	out := make([]string, 0, len(changes))
	for _, c := range changes {
		switch {
		case c.Node != nil:
			out = append(out, fmt.Sprintf("%s %s", c.Op, c.Node.Cid))
		case c.Edge != nil:
			out = append(out, fmt.Sprintf("%s %s", c.Op, c.Edge.Cid))
		case c.Incidence != nil:
			out = append(out, fmt.Sprintf("%s %s->%s %s[%d]", c.Op, c.Incidence.Edge, c.Incidence.Node, c.Incidence.Role, c.Incidence.Idx))
		default:
			out = append(out, string(c.Op))
		}
	}
	return out
}
