// Package compiler parses CUE documents into the engine's in-memory
// forms: graph instances, DPO rules, queries, and strategy trees.
//
// Documents are compiled through the CUE SDK's Go API directly (not a
// CLI subprocess). Errors carry source positions where CUE provides
// them.
package compiler
