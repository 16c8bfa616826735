package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// foldSpecs is a minimal specs package: one rule that folds a binary
// add over two constants, a query detecting foldable sites, and a
// strategy that folds to fixpoint.
const foldSpecs = `
package specs

rule: fold: {
	id: "constant-folding"
	l: {
		nodes: [
			{id: "a", type: "val", labels: ["const"]},
			{id: "b", type: "val", labels: ["const"]},
			{id: "result", type: "val"},
		]
		edges: [{id: "add", type: "event", label: "add"}]
		incidences: [
			{edge: "add", node: "a", role: "DataIn", idx: 0},
			{edge: "add", node: "b", role: "DataIn", idx: 1},
			{edge: "add", node: "result", role: "DataOut", idx: 0},
		]
	}
	r: {
		nodes: [{id: "result", type: "val", labels: ["const"]}]
	}
}

query: "has-fold": {
	id: "has-fold"
	pattern: {
		nodes: [{id: "c", type: "val", labels: ["const"]}]
	}
}

strategy: fold: {repeat: {body: {apply: "constant-folding"}}}
`

// foldGraphYAML is the matching input fixture: 5 + 3 flowing into out.
const foldGraphYAML = `
nodes:
  - id: a
    type: val
    labels: [const]
    attrs: {value: 5}
  - id: b
    type: val
    labels: [const]
    attrs: {value: 3}
  - id: out
    type: val
edges:
  - id: add1
    type: event
    label: add
incidences:
  - {edge: add1, node: a, role: DataIn, idx: 0}
  - {edge: add1, node: b, role: DataIn, idx: 1}
  - {edge: add1, node: out, role: DataOut, idx: 0}
`

func writeFoldSpecs(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "fold.cue"), []byte(foldSpecs), 0644)
	require.NoError(t, err)
	return dir
}

func writeFoldGraph(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.yaml")
	err := os.WriteFile(path, []byte(foldGraphYAML), 0644)
	require.NoError(t, err)
	return path
}
