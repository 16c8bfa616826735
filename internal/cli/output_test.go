package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatterTextErrorListsDetails(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "text", Writer: &buf}

	err := f.Error(ErrCodeCompileFailed, "2 document(s) failed to compile", []string{
		"rule \"a\": float attribute values are forbidden - use int instead",
		"graph \"b\": unknown node endpoint",
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Error [E008]: 2 document(s) failed to compile")
	assert.Contains(t, out, "  rule \"a\": float attribute values are forbidden - use int instead")
	assert.Contains(t, out, "  graph \"b\": unknown node endpoint")
}

func TestOutputFormatterJSONError(t *testing.T) {
	var buf bytes.Buffer
	f := &OutputFormatter{Format: "json", Writer: &buf}

	require.NoError(t, f.Error(ErrCodeStoreFailed, "disk full", nil))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeStoreFailed, resp.Error.Code)
	assert.Equal(t, "disk full", resp.Error.Message)
}
