package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/recall/internal/adapters/driven/config/file"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and change configuration",
	Long: `View the effective configuration or change values in config.toml.

Keys are dotted paths into the file, for example retrieval.max_results or
backup.schedule.`,
	Annotations: map[string]string{skipServices: "true"},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:         "show",
	Short:       "Show the effective configuration",
	Annotations: map[string]string{skipServices: "true"},
	RunE:        runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long: `Sets a value in config.toml. The value is stored as a boolean, integer
or number when it parses as one, and as a string otherwise. The change is
rejected if the resulting configuration is invalid.`,
	Example: `  recall config set retrieval.max_results 20
  recall config set backup.schedule "0 3 * * *"
  recall config set llm.provider anthropic`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{skipServices: "true"},
	RunE:        runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:         "path",
	Short:       "Print the configuration file path",
	Args:        cobra.NoArgs,
	Annotations: map[string]string{skipServices: "true"},
	RunE:        runConfigPath,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func openConfig() (*file.ConfigStore, error) {
	store, err := file.NewConfigStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	return store, nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}
	if err := file.LoadEnv(store.Dir()); err != nil {
		return err
	}
	settings, err := file.LoadSettings(store, store.Dir())
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	cmd.Println("Current Settings")
	cmd.Println("================")
	cmd.Println()

	cmd.Println("[Paths]")
	cmd.Printf("  Data: %s\n", settings.Paths.DataDir)
	cmd.Printf("  Documents: %s\n", settings.Paths.DocumentsDir)
	cmd.Printf("  Backups: %s\n", settings.Paths.BackupsDir)
	cmd.Println()

	cmd.Println("[Vector Store]")
	cmd.Printf("  Backend: %s\n", settings.VectorStore.Backend)
	cmd.Printf("  Collection: %s\n", settings.VectorStore.Collection)
	cmd.Println()

	cmd.Println("[Embedding]")
	cmd.Printf("  Provider: %s\n", settings.Embedding.Provider.Description())
	cmd.Printf("  Model: %s\n", settings.Embedding.Model)
	showProviderDetails(cmd, settings.Embedding.Provider, settings.Embedding.BaseURL, settings.Embedding.APIKey)
	cmd.Printf("  Status: %s\n", configuredStatus(settings.Embedding.IsConfigured()))
	cmd.Println()

	cmd.Println("[LLM]")
	if settings.LLM.Provider == "" {
		cmd.Println("  Provider: (none, answers are extractive)")
	} else {
		cmd.Printf("  Provider: %s\n", settings.LLM.Provider.Description())
		cmd.Printf("  Model: %s\n", settings.LLM.Model)
		showProviderDetails(cmd, settings.LLM.Provider, settings.LLM.BaseURL, settings.LLM.APIKey)
		cmd.Printf("  Status: %s\n", configuredStatus(settings.LLM.IsConfigured()))
	}
	cmd.Println()

	cmd.Println("[Retrieval]")
	cmd.Printf("  Max results: %d\n", settings.Retrieval.MaxResults)
	cmd.Printf("  Max iterations: %d\n", settings.Retrieval.MaxIterations)
	cmd.Printf("  Query optimizer: %t\n", settings.Optimizer.Enabled)
	cmd.Println()

	cmd.Println("[Backup]")
	cmd.Printf("  Keep: %d\n", settings.Backup.MaxBackupFiles)
	cmd.Printf("  Compress: %t (%s)\n", settings.Backup.Compress, settings.Backup.Format)
	schedule := settings.Backup.Schedule
	if schedule == "" {
		schedule = "(none)"
	}
	cmd.Printf("  Schedule: %s\n", schedule)
	return nil
}

func showProviderDetails(cmd *cobra.Command, provider domain.AIProvider, baseURL, apiKey string) {
	if provider == domain.AIProviderOllama {
		cmd.Printf("  Base URL: %s\n", baseURL)
	}
	if provider.RequiresAPIKey() {
		if apiKey != "" {
			cmd.Printf("  API Key: %s\n", maskAPIKey(apiKey))
		} else {
			cmd.Printf("  API Key: (not set)\n")
		}
	}
}

func configuredStatus(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}

	key, value := args[0], parseConfigValue(args[1])
	if _, err := file.LoadSettings(pendingValue{store, key, value}, store.Dir()); err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}

	cmd.Printf("Set %s = %v\n", key, value)
	return nil
}

func runConfigPath(cmd *cobra.Command, _ []string) error {
	store, err := openConfig()
	if err != nil {
		return err
	}
	cmd.Println(store.Path())
	return nil
}

// pendingValue overlays one unsaved value on a config store, so a change
// can be validated before Set writes it to disk.
type pendingValue struct {
	driven.ConfigStore
	key   string
	value any
}

func (p pendingValue) Get(key string) (any, bool) {
	if key == p.key {
		return p.value, true
	}
	return p.ConfigStore.Get(key)
}

// parseConfigValue types a command-line value for the TOML file.
func parseConfigValue(s string) any {
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
