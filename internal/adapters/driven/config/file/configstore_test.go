package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfigStore_Success(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewConfigStore(tmpDir)

	require.NoError(t, err)
	require.NotNil(t, store)
	assert.Equal(t, filepath.Join(tmpDir, ConfigFile), store.Path())
	assert.Equal(t, tmpDir, store.Dir())
}

func TestNewConfigStore_DefaultDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	store, err := NewConfigStore("")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".recall", ConfigFile), store.Path())
}

func TestNewConfigStore_WithNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")

	store, err := NewConfigStore(dir)

	require.NoError(t, err)
	assert.DirExists(t, dir)
	assert.NoFileExists(t, store.Path(), "nothing is written until a value is set")
}

func TestNewConfigStore_MkdirAllError(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, err := NewConfigStore(filepath.Join(blocker, "sub"))
	assert.Error(t, err)
}

func TestNewConfigStore_LoadCorruptedFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ConfigFile), []byte("[[[ not toml"), 0o600))

	_, err := NewConfigStore(tmpDir)
	assert.Error(t, err)
}

// value returns the raw value for key, failing the test when it is unset.
func value(t *testing.T, store *ConfigStore, key string) any {
	t.Helper()
	v, ok := store.Get(key)
	require.True(t, ok, "key %s not set", key)
	return v
}

func TestConfigStore_NestedTables(t *testing.T) {
	tmpDir := t.TempDir()
	content := `
[backup]
schedule = "0 3 * * *"
max_backup_files = 5
compress = true

[llm]
provider = "anthropic"

[retrieval]
max_results = 12
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ConfigFile), []byte(content), 0o600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	// TOML integers decode as int64.
	assert.Equal(t, "0 3 * * *", value(t, store, "backup.schedule"))
	assert.Equal(t, int64(5), value(t, store, "backup.max_backup_files"))
	assert.Equal(t, true, value(t, store, "backup.compress"))
	assert.Equal(t, "anthropic", value(t, store, "llm.provider"))
	assert.Equal(t, int64(12), value(t, store, "retrieval.max_results"))

	_, ok := store.Get("retrieval")
	assert.False(t, ok, "tables are not values")
}

func TestConfigStore_GetMissing(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	_, ok := store.Get("missing")
	assert.False(t, ok)

	require.NoError(t, store.Set("s", "text"))
	assert.Equal(t, "text", value(t, store, "s"))
}

func TestConfigStore_SaveReload_PreservesData(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	require.NoError(t, store.Set("backup.schedule", "@daily"))
	require.NoError(t, store.Set("backup.max_backup_files", 3))
	require.NoError(t, store.Set("history.turns", 6))
	require.NoError(t, store.Set("tags", []string{"x", "y"}))

	data, err := os.ReadFile(store.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "[backup]", "dotted keys are written as tables")

	reloaded, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "@daily", value(t, reloaded, "backup.schedule"))
	assert.Equal(t, int64(3), value(t, reloaded, "backup.max_backup_files"))
	assert.Equal(t, int64(6), value(t, reloaded, "history.turns"))
	assert.Equal(t, []any{"x", "y"}, value(t, reloaded, "tags"))
}

func TestConfigStore_Load_PicksUpExternalEdits(t *testing.T) {
	tmpDir := t.TempDir()
	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.provider", "openai"))

	require.NoError(t, os.WriteFile(store.Path(), []byte("[llm]\nprovider = \"ollama\"\n"), 0o600))
	require.NoError(t, store.Load())

	assert.Equal(t, "ollama", value(t, store, "llm.provider"))
}

func TestConfigStore_FilePermissions(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Set("llm.api_key", "secret"))

	info, err := os.Stat(store.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestConfigStore_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ConfigFile), nil, 0o600))

	store, err := NewConfigStore(tmpDir)
	require.NoError(t, err)

	_, ok := store.Get("anything")
	assert.False(t, ok)
}

func TestConfigStore_Concurrency(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.Set("key", i)
			_, _ = store.Get("key")
		}(i)
	}
	wg.Wait()

	_, ok := store.Get("key")
	assert.True(t, ok)
}

func TestConfigStore_SetWithUnmarshallableValue(t *testing.T) {
	store, err := NewConfigStore(t.TempDir())
	require.NoError(t, err)

	err = store.Set("bad", make(chan int))
	assert.Error(t, err)
}

func TestFlattenAndNestMap(t *testing.T) {
	nested := map[string]any{
		"backup": map[string]any{"schedule": "@daily", "compress": true},
		"top":    "value",
	}

	flat := flattenMap(nested, "")
	assert.Equal(t, map[string]any{
		"backup.schedule": "@daily",
		"backup.compress": true,
		"top":             "value",
	}, flat)
	assert.Equal(t, nested, nestMap(flat))
}
