package file

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/recall/internal/core/domain"
)

func writeConfig(t *testing.T, content string) *ConfigStore {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte(content), 0o600))
	store, err := NewConfigStore(dir)
	require.NoError(t, err)
	return store
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvDataDir, EnvOpenAIKey, EnvAnthropicKey, EnvOllamaHost} {
		t.Setenv(k, "")
	}
}

func TestLoadSettings_Defaults(t *testing.T) {
	clearEnv(t)
	store := writeConfig(t, "")

	s, err := LoadSettings(store, "/data/recall")
	require.NoError(t, err)

	want := domain.DefaultSettings("/data/recall")
	want.Embedding.Model = "fnv-384"
	assert.Equal(t, want, s)
}

func TestLoadSettings_Overrides(t *testing.T) {
	clearEnv(t)
	store := writeConfig(t, `
[paths]
data_dir = "/srv/recall"
backups = "/mnt/backups"

[retrieval]
max_results = 20
search_timeout = "3s"
min_similarity = 0.3

[forget]
min_similarity = 0.5

[synthesis]
timeout = 30
agreement_weight = 0.5
volume_weight = 0.1
model_weight = 0.4

[backup]
schedule = "0 3 * * *"
format = "zip"
compress = true

[vector_store]
backend = "bleve"

[llm]
provider = "ollama"
base_url = "http://gpu:11434"
`)

	s, err := LoadSettings(store, "/ignored")
	require.NoError(t, err)

	assert.Equal(t, "/srv/recall", s.Paths.DataDir)
	assert.Equal(t, filepath.Join("/srv/recall", "documents"), s.Paths.DocumentsDir)
	assert.Equal(t, "/mnt/backups", s.Paths.BackupsDir)
	assert.Equal(t, 20, s.Retrieval.MaxResults)
	assert.Equal(t, 3*time.Second, s.Retrieval.SearchTimeout)
	assert.InDelta(t, 0.3, s.Retrieval.MinSimilarity, 1e-9)
	assert.InDelta(t, 0.5, s.Forget.MinSimilarity, 1e-9)
	assert.Equal(t, 30*time.Second, s.Synthesis.Timeout)
	assert.InDelta(t, 0.5, s.Synthesis.AgreementWeight, 1e-9)
	assert.Equal(t, "0 3 * * *", s.Backup.Schedule)
	assert.Equal(t, domain.ArchiveZip, s.Backup.Format)
	assert.True(t, s.Backup.Compress)
	assert.Equal(t, domain.VectorBackendBleve, s.VectorStore.Backend)
	assert.Equal(t, domain.AIProviderOllama, s.LLM.Provider)
	assert.Equal(t, "llama3.2", s.LLM.Model)
	assert.Equal(t, "http://gpu:11434", s.LLM.BaseURL)
}

func TestLoadSettings_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvDataDir, "/env/data")
	t.Setenv(EnvAnthropicKey, "sk-ant")
	t.Setenv(EnvOpenAIKey, "sk-oai")
	t.Setenv(EnvOllamaHost, "http://ollama:11434")

	store := writeConfig(t, `
[llm]
provider = "anthropic"

[embedding]
provider = "ollama"
`)

	s, err := LoadSettings(store, "/ignored")
	require.NoError(t, err)

	assert.Equal(t, "/env/data", s.Paths.DataDir)
	assert.Equal(t, "sk-ant", s.LLM.APIKey)
	assert.Empty(t, s.Embedding.APIKey)
	assert.Equal(t, "http://ollama:11434", s.Embedding.BaseURL)
	assert.Equal(t, "nomic-embed-text", s.Embedding.Model)
}

func TestLoadSettings_FileKeyWinsOverEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvOpenAIKey, "from-env")
	store := writeConfig(t, "[llm]\nprovider = \"openai\"\napi_key = \"from-file\"\n")

	s, err := LoadSettings(store, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "from-file", s.LLM.APIKey)
}

func TestLoadSettings_ExpandsHome(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	t.Setenv("HOME", home)
	store := writeConfig(t, "[paths]\ndata_dir = \"~/notes\"\n")

	s, err := LoadSettings(store, "/ignored")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "notes"), s.Paths.DataDir)
}

func TestLoadSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{"wrong type", "[retrieval]\nmax_results = \"ten\"\n", "retrieval.max_results must be an integer"},
		{"bad duration", "[cache]\nttl = \"soon\"\n", "cache.ttl"},
		{"out of range", "[retrieval]\nmax_results = 0\n", "MaxResults"},
		{"unknown backend", "[vector_store]\nbackend = \"faiss\"\n", "faiss"},
		{"unknown provider", "[llm]\nprovider = \"gemini\"\n", "gemini"},
		{"weights", "[synthesis]\nmodel_weight = 0.9\n", "synthesis weights"},
		{"overlap", "[chunking]\nsize = 100\noverlap = 100\n", "Overlap"},
		{"archive format", "[backup]\nformat = \"rar\"\n", "Format"},
		{"similarity above one", "[retrieval]\nmin_similarity = 1.5\n", "MinSimilarity"},
		{"negative forget similarity", "[forget]\nmin_similarity = -0.1\n", "MinSimilarity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := LoadSettings(writeConfig(t, tt.content), t.TempDir())
			require.Error(t, err)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoadEnv(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		assert.NoError(t, LoadEnv(t.TempDir()))
	})

	t.Run("does not override", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, EnvFile),
			[]byte("RECALL_TEST_FROM_FILE=file\nRECALL_TEST_PRESET=file\n"), 0o600))
		t.Setenv("RECALL_TEST_PRESET", "env")
		t.Setenv("RECALL_TEST_FROM_FILE", "")
		require.NoError(t, os.Unsetenv("RECALL_TEST_FROM_FILE"))

		require.NoError(t, LoadEnv(dir))
		assert.Equal(t, "file", os.Getenv("RECALL_TEST_FROM_FILE"))
		assert.Equal(t, "env", os.Getenv("RECALL_TEST_PRESET"))
	})
}
