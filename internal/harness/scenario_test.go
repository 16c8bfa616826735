package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const foldSpecsDoc = `
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

strategy: fold: {repeat: {body: {apply: "constant-folding"}}}
strategy: once: {apply: "constant-folding"}
`

const foldFixtureYAML = `
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

// writeScenarioTree lays out a scenario directory: the scenario file,
// its specs package, and its graph fixture.
func writeScenarioTree(t *testing.T, scenarioYAML string) string {
	t.Helper()
	dir := t.TempDir()

	specsDir := filepath.Join(dir, "specs")
	require.NoError(t, os.MkdirAll(specsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(specsDir, "fold.cue"), []byte(foldSpecsDoc), 0644))

	graphsDir := filepath.Join(dir, "graphs")
	require.NoError(t, os.MkdirAll(graphsDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(graphsDir, "chain.yaml"), []byte(foldFixtureYAML), 0644))

	path := filepath.Join(dir, "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenarioYAML), 0644))
	return path
}

const validScenarioYAML = `
name: fold_once
description: "Constant folding collapses one add over two constants"
specs: specs
graph: graphs/chain.yaml
strategy: fold
token: fold-once
assertions:
  - type: rule_applied
    rule: constant-folding
    count: 1
  - type: node_count
    count: 1
`

func TestLoadScenario(t *testing.T) {
	path := writeScenarioTree(t, validScenarioYAML)

	scenario, err := LoadScenario(path)
	require.NoError(t, err)

	assert.Equal(t, "fold_once", scenario.Name)
	assert.Equal(t, "fold", scenario.Strategy)
	assert.Equal(t, "fold-once", scenario.Token)
	require.Len(t, scenario.Assertions, 2)
	assert.Equal(t, AssertRuleApplied, scenario.Assertions[0].Type)

	// Relative paths are resolved against the scenario file.
	assert.True(t, filepath.IsAbs(scenario.Specs))
	assert.True(t, filepath.IsAbs(scenario.Graph))
}

func TestLoadScenarioUnknownField(t *testing.T) {
	path := writeScenarioTree(t, `
name: typo
description: "Misspelled assertions key"
specs: specs
graph: graphs/chain.yaml
assertion:
  - type: node_count
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertion")
}

func TestLoadScenarioMissingName(t *testing.T) {
	path := writeScenarioTree(t, `
description: "No name"
specs: specs
graph: graphs/chain.yaml
assertions:
  - type: node_count
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "name is required")
}

func TestLoadScenarioMissingGraphFile(t *testing.T) {
	path := writeScenarioTree(t, `
name: missing_graph
description: "Graph fixture does not exist"
specs: specs
graph: graphs/nope.yaml
assertions:
  - type: node_count
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graph fixture not found")
}

func TestLoadScenarioUnknownAssertionType(t *testing.T) {
	path := writeScenarioTree(t, `
name: bad_assertion
description: "Unknown assertion type"
specs: specs
graph: graphs/chain.yaml
assertions:
  - type: state_table
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown assertion type")
}

func TestLoadScenarioRuleAppliedRequiresRule(t *testing.T) {
	path := writeScenarioTree(t, `
name: no_rule
description: "rule_applied without a rule id"
specs: specs
graph: graphs/chain.yaml
assertions:
  - type: rule_applied
    count: 1
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rule is required")
}

func TestLoadScenarioNoAssertions(t *testing.T) {
	path := writeScenarioTree(t, `
name: empty
description: "No assertions"
specs: specs
graph: graphs/chain.yaml
`)

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "assertions list is required")
}
