package cli

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func TestQueryCmd_Use(t *testing.T) {
	assert.Equal(t, "query [question]", queryCmd.Use)
}

func TestQueryCmd_RequiresQuestion(t *testing.T) {
	_, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand(t, "query")
	assert.Error(t, err)
}

func TestQueryCmd_Output(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "query", "how", "do", "I", "reset", "the", "router")
	require.NoError(t, err)

	assert.Equal(t, "how do I reset the router", memory.lastQuery.Query)
	assert.Contains(t, out, "Hold the reset button for ten seconds.")
	assert.Contains(t, out, "Confidence: 0.82 (complete, 3 chunks)")
	assert.Contains(t, out, "[1] guide.pdf")
	assert.Contains(t, out, "hold the reset button")
	assert.NotContains(t, out, "Optimized query")
}

func TestQueryCmd_Explain(t *testing.T) {
	_, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "query", "reset router", "--explain")
	require.NoError(t, err)

	assert.Contains(t, out, "Optimized query: router reset procedure")
	assert.Contains(t, out, "Intent: procedure, strategy: expanded")
	assert.Contains(t, out, "variant: factory reset router")
}

func TestQueryCmd_Filters(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand(t, "query", "reset", "-n", "5", "--source", "guide.pdf", "--type", "document", "--no-cache")
	require.NoError(t, err)

	assert.Equal(t, 5, memory.lastQuery.MaxResults)
	assert.Equal(t, "guide.pdf", memory.lastQuery.Filter.Source)
	assert.Equal(t, domain.SourceTypeDocument, memory.lastQuery.Filter.SourceType)
	assert.True(t, memory.lastQuery.NoCache)
}

func TestQueryCmd_InvalidType(t *testing.T) {
	_, _, cleanup := setupTestServices()
	defer cleanup()

	_, err := executeCommand(t, "query", "reset", "--type", "email")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid --type "email"`)
}

func TestQueryCmd_JSON(t *testing.T) {
	_, _, cleanup := setupTestServices()
	defer cleanup()

	out, err := executeCommand(t, "query", "reset", "--json")
	require.NoError(t, err)

	var result domain.SynthesisResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, domain.CompletenessComplete, result.Completeness)
	assert.Len(t, result.Citations, 1)
}

func TestQueryCmd_Error(t *testing.T) {
	memory, _, cleanup := setupTestServices()
	defer cleanup()
	memory.err = errors.New("embedding provider unreachable")

	_, err := executeCommand(t, "query", "reset")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query failed")
}
