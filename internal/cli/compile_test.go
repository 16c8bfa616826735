package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlabs/graft/internal/pih"
	"github.com/graftlabs/graft/internal/store"
)

func TestCompileValidSpecs(t *testing.T) {
	specsDir := writeFoldSpecs(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "compiled 1 file(s)")
	assert.Contains(t, output, "1 rule(s)")
	assert.Contains(t, output, "1 strategy(ies)")
}

func TestCompileValidSpecsJSON(t *testing.T) {
	specsDir := writeFoldSpecs(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	dataMap, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	rules, ok := dataMap["rules"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"constant-folding"}, rules)
}

func TestCompileNonExistentDirectory(t *testing.T) {
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"/nonexistent/directory/path"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "E005")
	assert.Contains(t, buf.String(), "not found")
}

func TestCompileEmptyDirectory(t *testing.T) {
	tmpDir := t.TempDir()

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "E003")
	assert.Contains(t, buf.String(), "no CUE files found")
}

func TestCompileInvalidRule(t *testing.T) {
	tmpDir := t.TempDir()

	// Rule without a left-hand side.
	invalidSpec := `
package specs

rule: broken: {
	id: "broken"
	r: {
		nodes: [{id: "x", type: "val"}]
	}
}
`
	err := os.WriteFile(filepath.Join(tmpDir, "bad.cue"), []byte(invalidSpec), 0644)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "compilation failed")
}

func TestCompileInvalidRuleJSON(t *testing.T) {
	tmpDir := t.TempDir()

	invalidSpec := `
package specs

rule: broken: {
	id: "broken"
	r: {
		nodes: [{id: "x", type: "val"}]
	}
}
`
	err := os.WriteFile(filepath.Join(tmpDir, "bad.cue"), []byte(invalidSpec), 0644)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err = cmd.Execute()
	require.Error(t, err)

	var resp CLIResponse
	jsonErr := json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, jsonErr)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeCompileFailed, resp.Error.Code)
}

func TestCompileFloatRejection(t *testing.T) {
	tmpDir := t.TempDir()

	floatSpec := `
package specs

graph: bad: {
	nodes: [{id: "x", type: "val", attrs: {weight: 1.5}}]
}
`
	err := os.WriteFile(filepath.Join(tmpDir, "float.cue"), []byte(floatSpec), 0644)
	require.NoError(t, err)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, buf.String(), "forbidden")
}

func TestCompilePersistsToStore(t *testing.T) {
	tmpDir := t.TempDir()
	specsDoc := foldSpecs + `
graph: demo: {
	nodes: [
		{id: "a", type: "val", labels: ["const"], attrs: {value: 5}},
		{id: "b", type: "val", labels: ["const"], attrs: {value: 3}},
		{id: "out", type: "val"},
	]
	edges: [{id: "add1", type: "event", label: "add"}]
	incidences: [
		{edge: "add1", node: "a", role: "DataIn", idx: 0},
		{edge: "add1", node: "b", role: "DataIn", idx: 1},
		{edge: "add1", node: "out", role: "DataOut", idx: 0},
	]
}
`
	err := os.WriteFile(filepath.Join(tmpDir, "fold.cue"), []byte(specsDoc), 0644)
	require.NoError(t, err)

	dbPath := filepath.Join(t.TempDir(), "graft.db")

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewCompileCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{tmpDir, "--db", dbPath})

	err = cmd.Execute()
	require.NoError(t, err)

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	stored, err := s.ListRules(ctx)
	require.NoError(t, err)
	assert.Contains(t, stored, "constant-folding")

	graphs, err := s.ListGraphs(ctx, pih.KindGraph)
	require.NoError(t, err)
	assert.Len(t, graphs, 1)
}

func TestValidateCommand(t *testing.T) {
	specsDir := writeFoldSpecs(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "1 rule(s) valid")
	assert.Contains(t, output, "constant-folding")
}

func TestValidateCommandJSON(t *testing.T) {
	specsDir := writeFoldSpecs(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	dataMap, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	rules, ok := dataMap["rules"].([]interface{})
	require.True(t, ok)
	require.Len(t, rules, 1)
	ruleMap, ok := rules[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "constant-folding", ruleMap["id"])
}
