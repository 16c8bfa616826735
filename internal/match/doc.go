// Package match implements subgraph-embedding search over the PIH.
//
// The matcher finds morphisms from a pattern graph (a rule LHS or a bare
// query pattern) into a target graph: an assignment of every pattern node
// and edge to a distinct (when injective) target element such that types,
// labels, role-tagged incidences, and attribute guards all line up. The
// algorithm is VF2-style backtracking: pattern nodes are ordered
// degree-descending, the partial mapping is extended one node at a time,
// and edge compatibility prunes dead branches early.
//
// Negative application conditions reuse the same search primitive: a NAC
// is a bounded sub-search seeded by the candidate match; if any forbidden
// extension embeds into the target, the match is rejected.
//
// DETERMINISM: candidate target elements are always visited in ascending
// CID order, and the final match list is sorted by matched node CIDs
// (ties broken by edge CIDs). Re-running the matcher on an identical graph
// always yields the identical match sequence.
package match
