package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolateConfig points the config commands at an empty directory.
func isolateConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("RECALL_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "")
	return dir
}

func TestConfigCmd_SkipsServices(t *testing.T) {
	for _, c := range []*struct {
		name  string
		annot map[string]string
	}{
		{"config", configCmd.Annotations},
		{"show", configShowCmd.Annotations},
		{"set", configSetCmd.Annotations},
		{"path", configPathCmd.Annotations},
	} {
		assert.NotEmpty(t, c.annot[skipServices], c.name)
	}
}

func TestConfigPathCmd(t *testing.T) {
	dir := isolateConfig(t)

	out, err := executeCommand(t, "config", "path", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, filepath.Join(dir, "config.toml"))
}

func TestConfigShowCmd_Defaults(t *testing.T) {
	dir := isolateConfig(t)

	out, err := executeCommand(t, "config", "show", "--config-dir", dir)
	require.NoError(t, err)

	assert.Contains(t, out, "Current Settings")
	assert.Contains(t, out, "Backend: chromem")
	assert.Contains(t, out, "Feature hashing (offline)")
	assert.Contains(t, out, "Provider: (none, answers are extractive)")
	assert.Contains(t, out, "Schedule: (none)")
}

func TestConfigSetCmd(t *testing.T) {
	dir := isolateConfig(t)

	out, err := executeCommand(t, "config", "set", "retrieval.max_results", "20", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Set retrieval.max_results = 20")

	data, err := os.ReadFile(filepath.Join(dir, "config.toml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_results = 20")

	out, err = executeCommand(t, "config", "--config-dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Max results: 20")
}

func TestConfigSetCmd_RejectsInvalid(t *testing.T) {
	dir := isolateConfig(t)

	_, err := executeCommand(t, "config", "set", "vector_store.backend", "faiss", "--config-dir", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid value for vector_store.backend")

	_, statErr := os.Stat(filepath.Join(dir, "config.toml"))
	assert.True(t, os.IsNotExist(statErr), "invalid config is not saved")
}

func TestParseConfigValue(t *testing.T) {
	assert.Equal(t, true, parseConfigValue("TRUE"))
	assert.Equal(t, false, parseConfigValue("false"))
	assert.Equal(t, int64(20), parseConfigValue("20"))
	assert.InDelta(t, 0.4, parseConfigValue("0.4"), 1e-9)
	assert.Equal(t, "0 3 * * *", parseConfigValue("0 3 * * *"))
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk-a...wxyz", maskAPIKey("sk-abcdefghijklmnopqrstuvwxyz"))
}
