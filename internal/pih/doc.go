// Package pih provides the Program Interaction Hypergraph model.
//
// A PIH represents a program as typed value/object nodes, event (operation)
// hyperedges, and role-tagged incidences connecting edges to nodes. This
// package contains the data model, the id-indexed mutable Graph used by the
// matcher and applier, and the content-addressed identity machinery.
//
// All other internal packages import pih; pih imports nothing internal.
//
// Key design constraints:
//   - Elements are identified by content-derived CIDs, never by pointer.
//     Two nodes are the same node iff their CIDs are equal.
//   - NO float types anywhere in hashed content - use Int (int64) for
//     numbers. Floats break cross-platform determinism.
//   - All iteration that affects observable output goes through sorted-CID
//     order, never Go map order.
package pih
