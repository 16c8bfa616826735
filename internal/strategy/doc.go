// Package strategy interprets rewrite strategies over a working graph.
//
// A strategy is a combinator tree: sequence, choice, repeat, guard,
// single-rule application, scope restriction, and bounded parallel
// batches. The engine walks the tree single-threaded against one graph;
// determinism follows from the matcher's ordered enumeration and the
// applier's clone-and-commit discipline. A failing subtree never leaves
// partial mutations behind: choice arms and guard branches restore the
// pre-attempt graph on failure.
//
// Each run is tagged with a run token for correlation across logs and
// the rewrite journal. Production runs draw UUIDs; tests inject a fixed
// generator for byte-identical traces.
package strategy
