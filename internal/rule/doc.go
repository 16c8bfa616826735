// Package rule defines DPO rewrite rules, negative application conditions,
// and standalone queries.
//
// A rule is a span of injective morphisms K→L and K→R over three pattern
// graphs: L is what the matcher looks for, K is the preserved interface,
// and R is the replacement. Applying a rule deletes the images of L\K and
// creates fresh elements for R\K (the two pushout steps live in package
// apply).
//
// Rules arrive as already-parsed values: either built programmatically
// (package rules), compiled from CUE documents (package compiler), or
// derived from an L/R pair via FromLR, which computes K as L∩R by element
// CID. The kernel never parses source syntax itself.
package rule
