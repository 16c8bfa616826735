package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graftlabs/graft/internal/store"
)

// execRun runs the fold strategy end to end and returns the decoded
// summary payload.
func execRun(t *testing.T, extraArgs ...string) map[string]interface{} {
	t.Helper()
	specsDir := writeFoldSpecs(t)
	graphPath := writeFoldGraph(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{specsDir, graphPath}, extraArgs...))

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	require.Equal(t, "ok", resp.Status)

	dataMap, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	return dataMap
}

func TestRunCommand(t *testing.T) {
	summary := execRun(t)

	assert.NotEmpty(t, summary["run_id"])
	assert.Equal(t, false, summary["failed"])
	assert.Equal(t, float64(1), summary["applications"])
	assert.NotEqual(t, summary["input_cid"], summary["result_cid"])

	stats, ok := summary["rule_stats"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), stats["constant-folding"])
}

func TestRunCommandText(t *testing.T) {
	specsDir := writeFoldSpecs(t)
	graphPath := writeFoldGraph(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir, graphPath, "--strategy", "fold"})

	err := cmd.Execute()
	require.NoError(t, err)

	output := buf.String()
	assert.Contains(t, output, "run ")
	assert.Contains(t, output, "ok")
	assert.Contains(t, output, "constant-folding")
}

func TestRunUnknownStrategy(t *testing.T) {
	specsDir := writeFoldSpecs(t)
	graphPath := writeFoldGraph(t)

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewRunCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{specsDir, graphPath, "--strategy", "nope"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "E102")
}

func TestRunPersistsAndReplays(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graft.db")
	summary := execRun(t, "--db", dbPath)
	runID, ok := summary["run_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, runID)

	// The journal round-trips through the store.
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	ctx := context.Background()
	journal, err := s.ReadJournal(ctx, runID)
	require.NoError(t, err)
	require.Len(t, journal, 1)
	assert.Equal(t, "constant-folding", journal[0].Application.RuleID)
	require.NoError(t, s.Close())

	// replay verifies every journaled step.
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", runID})

	err = cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	dataMap, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, dataMap["diverged"])
	assert.Equal(t, summary["result_cid"], dataMap["final_cid"])
}

func TestReplayDivergesOnTamperedJournal(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graft.db")
	summary := execRun(t, "--db", dbPath)
	runID := summary["run_id"].(string)

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	_, err = s.DB().Exec(`UPDATE applications SET result_cid = 'bogus' WHERE run_id = ?`, runID)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", runID})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "E106")
	assert.Contains(t, buf.String(), "DIVERGED")
}

func TestReplayMissingRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graft.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewReplayCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", "missing"})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestShowCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graft.db")
	summary := execRun(t, "--db", dbPath)

	// Listing shows the input and result snapshots.
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewShowCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	dataMap := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), dataMap["count"])

	// Printing one snapshot by cid.
	buf.Reset()
	cmd = NewShowCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--graph", summary["result_cid"].(string)})

	err = cmd.Execute()
	require.NoError(t, err)

	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)
	dataMap = resp.Data.(map[string]interface{})
	assert.Equal(t, summary["result_cid"], dataMap["cid"])
	assert.Equal(t, float64(1), dataMap["nodes"])
	assert.Equal(t, float64(0), dataMap["edges"])
}

func TestShowGraphNotFound(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graft.db")
	s, err := store.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "text"}
	cmd := NewShowCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--graph", "deadbeef"})

	err = cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, buf.String(), "E005")
}

func TestLogCommand(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "graft.db")
	summary := execRun(t, "--db", dbPath)
	runID := summary["run_id"].(string)

	// Run listing.
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: "json"}
	cmd := NewLogCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath})

	err := cmd.Execute()
	require.NoError(t, err)

	var resp CLIResponse
	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	dataMap := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), dataMap["count"])

	// Journal for the run.
	buf.Reset()
	cmd = NewLogCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--db", dbPath, "--run", runID})

	err = cmd.Execute()
	require.NoError(t, err)

	err = json.Unmarshal(buf.Bytes(), &resp)
	require.NoError(t, err)
	dataMap = resp.Data.(map[string]interface{})
	assert.Equal(t, runID, dataMap["run_id"])
	entries, ok := dataMap["entries"].([]interface{})
	require.True(t, ok)
	require.Len(t, entries, 1)
	entry := entries[0].(map[string]interface{})
	assert.Equal(t, "constant-folding", entry["rule"])
	changes, ok := entry["changes"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, changes)
}
