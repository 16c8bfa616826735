// Package rules ships the builtin optimization rule catalog: constant
// folding, strength reduction, dead code elimination, loop fusion,
// vectorization, and parallelization over program interaction graphs.
//
// Conventions: value nodes have type "val" and object (entity) nodes
// type "obj"; the data type lives in the dtype attribute. Operation
// edges have type "event" with the opcode as label and attribute.
package rules
