package compiler

import (
	"fmt"

	"cuelang.org/go/cue"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// CompileRule parses a CUE rule document into a DPO rule.
//
// The document names its L and R sides as graph literals; the gluing
// interface K may be given explicitly together with its morphisms, or
// omitted, in which case K is derived as the id-intersection of L and
// R. The compiled rule is validated before it is returned.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`rule: { id: "fold", l: {...}, r: {...} }`)
//	r, err := CompileRule(v.LookupPath(cue.ParsePath("rule")))
func CompileRule(v cue.Value) (*rule.RuleDPO, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	id, err := requiredString(v, "id")
	if err != nil {
		return nil, err
	}
	if err := pih.ValidateID(id); err != nil {
		return nil, &CompileError{Field: "id", Message: err.Error(), Pos: v.Pos()}
	}

	lVal := v.LookupPath(cue.ParsePath("l"))
	if !lVal.Exists() {
		return nil, &CompileError{Field: "l", Message: "rule left-hand side is required", Pos: v.Pos()}
	}
	l, err := CompilePattern(lVal, pih.KindPattern)
	if err != nil {
		return nil, err
	}

	rVal := v.LookupPath(cue.ParsePath("r"))
	if !rVal.Exists() {
		return nil, &CompileError{Field: "r", Message: "rule right-hand side is required", Pos: v.Pos()}
	}
	r, err := CompilePattern(rVal, pih.KindPattern)
	if err != nil {
		return nil, err
	}

	nacs, err := parseNacs(v.LookupPath(cue.ParsePath("nacs")))
	if err != nil {
		return nil, err
	}

	cond, err := parseCondition(v.LookupPath(cue.ParsePath("condition")))
	if err != nil {
		return nil, err
	}

	effects, err := parseEffects(v.LookupPath(cue.ParsePath("effects")))
	if err != nil {
		return nil, err
	}

	kVal := v.LookupPath(cue.ParsePath("k"))
	if !kVal.Exists() {
		compiled, err := rule.FromLR(id, l, r, nacs, cond)
		if err != nil {
			return nil, &CompileError{Field: "rule", Message: err.Error(), Pos: v.Pos()}
		}
		compiled.Effects = effects
		return compiled, nil
	}

	k, err := CompilePattern(kVal, pih.KindPattern)
	if err != nil {
		return nil, err
	}
	ml, err := parseMorphisms("morphisms.l", v.LookupPath(cue.ParsePath("morphisms.l")))
	if err != nil {
		return nil, err
	}
	mr, err := parseMorphisms("morphisms.r", v.LookupPath(cue.ParsePath("morphisms.r")))
	if err != nil {
		return nil, err
	}

	compiled := &rule.RuleDPO{
		ID:      id,
		L:       l,
		K:       k,
		R:       r,
		ML:      ml,
		MR:      mr,
		Nacs:    nacs,
		AppCond: cond,
		Effects: effects,
	}
	if err := rule.Validate(compiled); err != nil {
		return nil, &CompileError{Field: "rule", Message: err.Error(), Pos: v.Pos()}
	}
	return compiled, nil
}

// CompileQuery parses a CUE query document: a pattern, optional NACs,
// an optional cost objective, and optional search limits.
func CompileQuery(v cue.Value) (*rule.Query, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	id, err := requiredString(v, "id")
	if err != nil {
		return nil, err
	}
	if err := pih.ValidateID(id); err != nil {
		return nil, &CompileError{Field: "id", Message: err.Error(), Pos: v.Pos()}
	}

	patVal := v.LookupPath(cue.ParsePath("pattern"))
	if !patVal.Exists() {
		return nil, &CompileError{Field: "pattern", Message: "query pattern is required", Pos: v.Pos()}
	}
	pattern, err := CompilePattern(patVal, pih.KindPattern)
	if err != nil {
		return nil, err
	}

	nacs, err := parseNacs(v.LookupPath(cue.ParsePath("nacs")))
	if err != nil {
		return nil, err
	}

	q := &rule.Query{
		ID:      id,
		Pattern: pattern,
		Nacs:    nacs,
	}

	costVal := v.LookupPath(cue.ParsePath("cost"))
	if costVal.Exists() {
		objective, err := requiredString(costVal, "objective")
		if err != nil {
			return nil, err
		}
		switch rule.CostObjective(objective) {
		case rule.ObjectiveMin, rule.ObjectiveMax:
		default:
			return nil, &CompileError{
				Field:   "cost.objective",
				Message: fmt.Sprintf("invalid cost objective %q: want min or max", objective),
				Pos:     costVal.Pos(),
			}
		}
		expr, err := requiredString(costVal, "expr")
		if err != nil {
			return nil, err
		}
		q.Cost = &rule.QueryCost{Objective: rule.CostObjective(objective), Expr: expr}
	}

	limitsVal := v.LookupPath(cue.ParsePath("limits"))
	if limitsVal.Exists() {
		maxSteps, err := optionalInt(limitsVal, "max_steps", 0)
		if err != nil {
			return nil, err
		}
		timeoutMs, err := optionalInt(limitsVal, "timeout_ms", 0)
		if err != nil {
			return nil, err
		}
		q.Limits = &rule.QueryLimits{MaxSteps: int(maxSteps), TimeoutMs: timeoutMs}
	}

	return q, nil
}

// parseNacs parses the optional nacs list. Each entry carries a NAC
// graph literal and the morphism mapping L elements to their seeded
// images inside the NAC graph.
func parseNacs(v cue.Value) ([]rule.SchemaNac, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var nacs []rule.SchemaNac
	for iter.Next() {
		nv := iter.Value()
		id, err := requiredString(nv, "id")
		if err != nil {
			return nil, err
		}
		graphVal := nv.LookupPath(cue.ParsePath("graph"))
		if !graphVal.Exists() {
			return nil, &CompileError{Field: "nacs", Message: "nac graph is required", Pos: nv.Pos()}
		}
		graph, err := CompilePattern(graphVal, pih.KindNAC)
		if err != nil {
			return nil, err
		}
		morph, err := parseMorphisms("nacs.morphism", nv.LookupPath(cue.ParsePath("morphism")))
		if err != nil {
			return nil, err
		}
		desc, err := optionalString(nv, "description", "")
		if err != nil {
			return nil, err
		}
		nacs = append(nacs, rule.SchemaNac{
			ID:          id,
			Graph:       graph,
			MorphismsL:  morph,
			Description: desc,
		})
	}
	return nacs, nil
}

// parseMorphisms parses a morphism struct of the form
// {nodes: {from: to, ...}, edges: {from: to, ...}}.
func parseMorphisms(field string, v cue.Value) (rule.Morphisms, error) {
	m := rule.NewMorphisms()
	if !v.Exists() {
		return m, nil
	}

	nodesVal := v.LookupPath(cue.ParsePath("nodes"))
	if nodesVal.Exists() {
		iter, err := nodesVal.Fields()
		if err != nil {
			return m, formatCUEError(err)
		}
		for iter.Next() {
			to, err := iter.Value().String()
			if err != nil {
				return m, formatCUEError(err)
			}
			m.NodeMap[pih.Cid(iter.Label())] = pih.Cid(to)
		}
	}

	edgesVal := v.LookupPath(cue.ParsePath("edges"))
	if edgesVal.Exists() {
		iter, err := edgesVal.Fields()
		if err != nil {
			return m, formatCUEError(err)
		}
		for iter.Next() {
			to, err := iter.Value().String()
			if err != nil {
				return m, formatCUEError(err)
			}
			m.EdgeMap[pih.Cid(iter.Label())] = pih.Cid(to)
		}
	}

	return m, nil
}

// parseCondition parses the optional application condition block.
func parseCondition(v cue.Value) (*rule.ApplicationCondition, error) {
	if !v.Exists() {
		return nil, nil
	}

	cond := rule.DefaultApplicationCondition()

	injVal := v.LookupPath(cue.ParsePath("injective"))
	if injVal.Exists() {
		inj, err := injVal.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		cond.Injective = inj
	}

	dangling, err := optionalString(v, "dangling", string(rule.DanglingForbid))
	if err != nil {
		return nil, err
	}
	switch rule.DanglingMode(dangling) {
	case rule.DanglingForbid, rule.DanglingAllowWithCleanup:
		cond.Dangling = rule.DanglingMode(dangling)
	default:
		return nil, &CompileError{
			Field:   "condition.dangling",
			Message: fmt.Sprintf("invalid dangling mode %q: want forbid or allow-with-cleanup", dangling),
			Pos:     v.Pos(),
		}
	}

	guard, err := attrsFromCUE("condition.attrs_guard", v.LookupPath(cue.ParsePath("attrs_guard")))
	if err != nil {
		return nil, err
	}
	cond.AttrsGuard = guard

	return &cond, nil
}

// parseEffects parses the optional effects block applied to preserved
// nodes after a successful application.
func parseEffects(v cue.Value) (*rule.Effects, error) {
	if !v.Exists() {
		return nil, nil
	}

	effects := &rule.Effects{}

	costVal := v.LookupPath(cue.ParsePath("cost"))
	if costVal.Exists() {
		cost, err := costVal.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		effects.Cost = &cost
	}

	add, err := stringList("effects.labels_add", v.LookupPath(cue.ParsePath("labels_add")))
	if err != nil {
		return nil, err
	}
	effects.LabelsAdd = add

	remove, err := stringList("effects.labels_remove", v.LookupPath(cue.ParsePath("labels_remove")))
	if err != nil {
		return nil, err
	}
	effects.LabelsRemove = remove

	return effects, nil
}
