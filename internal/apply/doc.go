// Package apply executes double-pushout rule applications against a
// working graph.
//
// An application runs in two phases over a clone of the input graph.
// The pushout complement deletes the match image of L\K, subject to the
// dangling condition: a node deletion that would orphan incidences on
// surviving edges either rejects the application (forbid) or cascades to
// the incident edges (allow-with-cleanup). The pushout then adds the
// image of R\K, assigning fresh elements deterministic derived CIDs from
// the rule id, the match signature, and the element id. Attribute changes
// on preserved nodes keep the node's CID; identity is assigned at
// creation and survives modification.
//
// Applications are all-or-nothing: the input graph is never mutated, and
// the rewritten clone is returned only after validation passes. Every
// mutation is recorded in an ordered change log suitable for replay and
// golden-file comparison.
package apply
