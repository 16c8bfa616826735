// Package harness provides data-driven conformance testing for rewrite
// strategies.
//
// The harness loads a specs directory of CUE rule/strategy documents, a
// YAML graph fixture, runs the strategy, and validates assertions over
// the run and the resulting graph.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: fold_chain
//	description: "Constant folding reaches fixpoint over a chain of adds"
//	specs: specs
//	graph: graphs/chain.yaml
//	strategy: fold
//	token: fold-chain
//	assertions:
//	  - type: rule_applied
//	    rule: constant-folding
//	    count: 2
//	  - type: node_count
//	    count: 1
//	  - type: label_count
//	    label: const
//	    count: 1
//
// Paths are resolved relative to the scenario file. The strategy name
// may be omitted when the specs define exactly one strategy.
//
// # Assertion Types
//
//   - rule_applied: the rule committed exactly N applications
//   - node_count: the final graph has exactly N nodes
//   - edge_count: the final graph has exactly N hyperedges
//   - label_count: exactly N final nodes carry the label
//
// # Deterministic Testing
//
// Runs use a sequence token generator seeded from the scenario token, so
// repeated executions produce identical run ids and byte-identical trace
// snapshots for golden file comparison (RunWithGolden).
package harness
