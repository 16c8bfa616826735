package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/strategy"
)

// CompileStrategy parses a CUE strategy document into a combinator
// tree. Each node is a single-field struct naming the combinator:
//
//	{seq: [s, ...]}
//	{choice: [s, ...]}
//	{repeat: {body: s, max?: int}}
//	{guard: {query: "q", then?: s, else?: s}}
//	{apply: "r"} or {apply: {rule: "r", order?: "top-down" | "bottom-up"}}
//	{scope: {root: "cid", body: s}}
//	{parallel: {rule: "r", max?: int}}
func CompileStrategy(v cue.Value) (strategy.Strategy, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	if sv := v.LookupPath(cue.ParsePath("seq")); sv.Exists() {
		steps, err := compileStrategyList("seq", sv)
		if err != nil {
			return nil, err
		}
		if len(steps) == 0 {
			return nil, &CompileError{Field: "seq", Message: "seq needs at least one step", Pos: sv.Pos()}
		}
		return strategy.Seq{Steps: steps}, nil
	}

	if sv := v.LookupPath(cue.ParsePath("choice")); sv.Exists() {
		arms, err := compileStrategyList("choice", sv)
		if err != nil {
			return nil, err
		}
		if len(arms) == 0 {
			return nil, &CompileError{Field: "choice", Message: "choice needs at least one arm", Pos: sv.Pos()}
		}
		return strategy.Choice{Arms: arms}, nil
	}

	if sv := v.LookupPath(cue.ParsePath("repeat")); sv.Exists() {
		bodyVal := sv.LookupPath(cue.ParsePath("body"))
		if !bodyVal.Exists() {
			return nil, &CompileError{Field: "repeat.body", Message: "repeat body is required", Pos: sv.Pos()}
		}
		body, err := CompileStrategy(bodyVal)
		if err != nil {
			return nil, err
		}
		max, err := optionalInt(sv, "max", 0)
		if err != nil {
			return nil, err
		}
		if max < 0 {
			return nil, &CompileError{Field: "repeat.max", Message: "repeat max must be non-negative", Pos: sv.Pos()}
		}
		return strategy.Repeat{Body: body, Max: int(max)}, nil
	}

	if sv := v.LookupPath(cue.ParsePath("guard")); sv.Exists() {
		query, err := requiredString(sv, "query")
		if err != nil {
			return nil, err
		}
		node := strategy.Guard{Query: query}
		if thenVal := sv.LookupPath(cue.ParsePath("then")); thenVal.Exists() {
			if node.Then, err = CompileStrategy(thenVal); err != nil {
				return nil, err
			}
		}
		if elseVal := sv.LookupPath(cue.ParsePath("else")); elseVal.Exists() {
			if node.Else, err = CompileStrategy(elseVal); err != nil {
				return nil, err
			}
		}
		return node, nil
	}

	if sv := v.LookupPath(cue.ParsePath("apply")); sv.Exists() {
		return compileApply(sv)
	}

	if sv := v.LookupPath(cue.ParsePath("scope")); sv.Exists() {
		root, err := requiredString(sv, "root")
		if err != nil {
			return nil, err
		}
		bodyVal := sv.LookupPath(cue.ParsePath("body"))
		if !bodyVal.Exists() {
			return nil, &CompileError{Field: "scope.body", Message: "scope body is required", Pos: sv.Pos()}
		}
		body, err := CompileStrategy(bodyVal)
		if err != nil {
			return nil, err
		}
		return strategy.Scope{Root: pih.Cid(root), Body: body}, nil
	}

	if sv := v.LookupPath(cue.ParsePath("parallel")); sv.Exists() {
		ruleName, err := requiredString(sv, "rule")
		if err != nil {
			return nil, err
		}
		max, err := optionalInt(sv, "max", 0)
		if err != nil {
			return nil, err
		}
		if max < 0 {
			return nil, &CompileError{Field: "parallel.max", Message: "parallel max must be non-negative", Pos: sv.Pos()}
		}
		return strategy.Parallel{Rule: ruleName, Max: int(max)}, nil
	}

	return nil, &CompileError{
		Field:   "strategy",
		Message: "unknown combinator: want seq, choice, repeat, guard, apply, scope, or parallel",
		Pos:     v.Pos(),
	}
}

// compileApply handles both the shorthand string form and the
// structured form of the apply combinator.
func compileApply(v cue.Value) (strategy.Strategy, error) {
	if ruleName, err := v.String(); err == nil {
		return strategy.ApplyRule{Rule: ruleName, Order: strategy.TopDown}, nil
	}

	ruleName, err := requiredString(v, "rule")
	if err != nil {
		return nil, err
	}
	order, err := optionalString(v, "order", string(strategy.TopDown))
	if err != nil {
		return nil, err
	}
	switch strategy.Order(order) {
	case strategy.TopDown, strategy.BottomUp:
	default:
		return nil, &CompileError{
			Field:   "apply.order",
			Message: fmt.Sprintf("invalid order %q: want top-down or bottom-up", order),
			Pos:     v.Pos(),
		}
	}
	return strategy.ApplyRule{Rule: ruleName, Order: strategy.Order(order)}, nil
}

func compileStrategyList(field string, v cue.Value) ([]strategy.Strategy, error) {
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []strategy.Strategy
	for iter.Next() {
		s, err := CompileStrategy(iter.Value())
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
