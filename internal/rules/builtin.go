package rules

import (
	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/rule"
)

// Builtin returns the full catalog keyed by rule id.
func Builtin() rule.RuleSet {
	set := rule.RuleSet{}
	for _, r := range []*rule.RuleDPO{
		ConstantFolding(),
		StrengthReduction(),
		DeadCodeElimination(),
		LoopFusion(),
		Vectorization(),
		Parallelization(),
	} {
		set[r.ID] = r
	}
	return set
}

// ConstantFolding folds 5 + 3 into the constant 8: the operand nodes and
// the add event are deleted, the result node survives carrying the
// folded value.
func ConstantFolding() *rule.RuleDPO {
	l := pattern().
		val("const1", pih.Attrs{"is_const": pih.Bool(true), "value": pih.Int(5)}).
		val("const2", pih.Attrs{"is_const": pih.Bool(true), "value": pih.Int(3)}).
		val("result", nil).
		event("add_op", "add", nil).
		inc("add_op", "const1", pih.RoleDataIn, 0).
		inc("add_op", "const2", pih.RoleDataIn, 1).
		inc("add_op", "result", pih.RoleDataOut, 0).
		instance("rule:constant-folding:l")
	r := pattern().
		val("result", pih.Attrs{"is_const": pih.Bool(true), "value": pih.Int(8)}).
		instance("rule:constant-folding:r")
	return mustRule("constant-folding", l, r, nil)
}

// StrengthReduction turns multiplication by the constant 8 into a left
// shift by 3. A NAC keeps it off floating point operands.
func StrengthReduction() *rule.RuleDPO {
	l := pattern().
		val("x", nil).
		val("c", pih.Attrs{
			"is_const":        pih.Bool(true),
			"value":           pih.Int(8),
			"is_power_of_two": pih.Bool(true),
		}).
		val("out", nil).
		event("mul_op", "mul", nil).
		inc("mul_op", "x", pih.RoleDataIn, 0).
		inc("mul_op", "c", pih.RoleDataIn, 1).
		inc("mul_op", "out", pih.RoleDataOut, 0).
		instance("rule:strength-reduction:l")
	r := pattern().
		val("x", nil).
		val("out", nil).
		val("shift_amt", pih.Attrs{"is_const": pih.Bool(true), "value": pih.Int(3)}).
		event("shl_op", "shl", nil).
		inc("shl_op", "x", pih.RoleDataIn, 0).
		inc("shl_op", "shift_amt", pih.RoleDataIn, 1).
		inc("shl_op", "out", pih.RoleDataOut, 0).
		instance("rule:strength-reduction:r")

	noFloat := rule.SchemaNac{
		ID:          "no-floating-point",
		Description: "strength reduction does not apply to floating point operands",
		Graph: nacGraph().
			val("nac:x", pih.Attrs{"dtype": pih.String("f32")}).
			instance("nac:no-floating-point"),
		MorphismsL: rule.Morphisms{NodeMap: map[pih.Cid]pih.Cid{"x": "nac:x"}},
	}
	return mustRule("strength-reduction", l, r, []rule.SchemaNac{noFloat})
}

// DeadCodeElimination removes a computation whose only output feeds
// nothing. A NAC rejects values with any consumer.
func DeadCodeElimination() *rule.RuleDPO {
	l := pattern().
		val("unused", nil).
		event("compute", "mul", nil).
		inc("compute", "unused", pih.RoleDataOut, 0).
		instance("rule:dead-code-elimination:l")
	r := pattern().instance("rule:dead-code-elimination:r")

	hasConsumer := rule.SchemaNac{
		ID:          "no-consumers",
		Description: "the computed value must not be read anywhere",
		Graph: nacGraph().
			val("nac:v", nil).
			val("nac:sink", nil).
			anyEvent("nac:use").
			inc("nac:use", "nac:v", pih.RoleDataIn, 0).
			inc("nac:use", "nac:sink", pih.RoleDataOut, 0).
			instance("nac:no-consumers"),
		MorphismsL: rule.Morphisms{NodeMap: map[pih.Cid]pih.Cid{"unused": "nac:v"}},
	}
	return mustRule("dead-code-elimination", l, r, []rule.SchemaNac{hasConsumer})
}

// LoopFusion merges two adjacent loops over the same array and induction
// variable into one loop with doubled trip count. A NAC forbids fusion
// when the second loop consumes a value the first produces.
func LoopFusion() *rule.RuleDPO {
	loopAttrs := func() pih.Attrs {
		return pih.Attrs{"start": pih.Int(0), "end": pih.Int(100), "step": pih.Int(1)}
	}
	l := pattern().
		obj("array", nil).
		val("i", nil).
		event("loop1", "for", loopAttrs()).
		event("loop2", "for", loopAttrs()).
		inc("loop1", "array", pih.RoleObj, 0).
		inc("loop1", "i", pih.RoleCtrlIn, 0).
		inc("loop2", "array", pih.RoleObj, 0).
		inc("loop2", "i", pih.RoleCtrlIn, 0).
		instance("rule:loop-fusion:l")
	r := pattern().
		obj("array", nil).
		val("i", nil).
		event("fused_loop", "for", pih.Attrs{
			"start":      pih.Int(0),
			"end":        pih.Int(200),
			"step":       pih.Int(1),
			"fused_from": pih.Array{pih.String("loop1"), pih.String("loop2")},
		}).
		inc("fused_loop", "array", pih.RoleObj, 0).
		inc("fused_loop", "i", pih.RoleCtrlIn, 0).
		instance("rule:loop-fusion:r")

	noDependency := rule.SchemaNac{
		ID:          "no-dependencies",
		Description: "the second loop must not read a value the first writes",
		Graph: nacGraph().
			val("nac:dep", nil).
			event("nac:loop1", "for", nil).
			event("nac:loop2", "for", nil).
			inc("nac:loop1", "nac:dep", pih.RoleDataOut, 0).
			inc("nac:loop2", "nac:dep", pih.RoleDataIn, 0).
			instance("nac:no-dependencies"),
		MorphismsL: rule.Morphisms{
			EdgeMap: map[pih.Cid]pih.Cid{"loop1": "nac:loop1", "loop2": "nac:loop2"},
		},
	}
	return mustRule("loop-fusion", l, r, []rule.SchemaNac{noDependency})
}

// Vectorization rewrites a scalar loop into a SIMD loop with stride 4
// and a vector accumulator. A NAC keeps it off arrays marked unaligned.
func Vectorization() *rule.RuleDPO {
	l := pattern().
		obj("array", nil).
		val("i", nil).
		event("scalar_loop", "for", pih.Attrs{
			"start": pih.Int(0), "end": pih.Int(100), "step": pih.Int(1),
		}).
		inc("scalar_loop", "array", pih.RoleObj, 0).
		inc("scalar_loop", "i", pih.RoleCtrlIn, 0).
		instance("rule:vectorization:l")
	r := pattern().
		obj("array", nil).
		val("i", nil).
		val("vector", pih.Attrs{"dtype": pih.String("__m128i")}).
		event("vector_loop", "for", pih.Attrs{
			"start": pih.Int(0), "end": pih.Int(100), "step": pih.Int(4),
		}).
		inc("vector_loop", "array", pih.RoleObj, 0).
		inc("vector_loop", "i", pih.RoleCtrlIn, 0).
		inc("vector_loop", "vector", pih.RoleDataOut, 0).
		instance("rule:vectorization:r")

	unaligned := rule.SchemaNac{
		ID:          "aligned-data",
		Description: "SIMD loads require aligned data",
		Graph: nacGraph().
			obj("nac:array", pih.Attrs{"aligned": pih.Bool(false)}).
			instance("nac:aligned-data"),
		MorphismsL: rule.Morphisms{NodeMap: map[pih.Cid]pih.Cid{"array": "nac:array"}},
	}
	return mustRule("vectorization", l, r, []rule.SchemaNac{unaligned})
}

// Parallelization rewrites a sequential loop into a multi-threaded one
// with a thread id input. A NAC forbids loop-carried dependencies, i.e.
// the loop reading a value it also writes.
func Parallelization() *rule.RuleDPO {
	l := pattern().
		obj("array", nil).
		val("i", nil).
		event("sequential_loop", "for", pih.Attrs{
			"start": pih.Int(0), "end": pih.Int(100), "step": pih.Int(1),
		}).
		inc("sequential_loop", "array", pih.RoleObj, 0).
		inc("sequential_loop", "i", pih.RoleCtrlIn, 0).
		instance("rule:parallelization:l")
	r := pattern().
		obj("array", nil).
		val("i", nil).
		val("thread_id", nil).
		event("parallel_loop", "for", pih.Attrs{
			"start": pih.Int(0), "end": pih.Int(100), "step": pih.Int(1),
			"num_threads": pih.Int(4),
		}).
		inc("parallel_loop", "array", pih.RoleObj, 0).
		inc("parallel_loop", "i", pih.RoleCtrlIn, 0).
		inc("parallel_loop", "thread_id", pih.RoleDataIn, 0).
		instance("rule:parallelization:r")

	carried := rule.SchemaNac{
		ID:          "no-loop-dependencies",
		Description: "a loop that reads what it writes cannot run in parallel",
		Graph: nacGraph().
			val("nac:carried", nil).
			event("nac:loop", "for", nil).
			inc("nac:loop", "nac:carried", pih.RoleDataIn, 0).
			inc("nac:loop", "nac:carried", pih.RoleDataOut, 0).
			instance("nac:no-loop-dependencies"),
		MorphismsL: rule.Morphisms{
			EdgeMap: map[pih.Cid]pih.Cid{"sequential_loop": "nac:loop"},
		},
	}
	return mustRule("parallelization", l, r, []rule.SchemaNac{carried})
}
