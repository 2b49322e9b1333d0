package file

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Environment variables consulted when the config file leaves a value empty.
//
//nolint:gosec // G101: These are variable names, not credentials.
const (
	EnvDataDir      = "RECALL_DATA_DIR"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOllamaHost   = "OLLAMA_HOST"
)

// EnvFile is the dotenv file read from the config directory.
const EnvFile = ".env"

// LoadEnv reads KEY=value pairs from dir/.env without overriding the environment.
// A missing file is not an error.
func LoadEnv(dir string) error {
	path := filepath.Join(dir, EnvFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	logger.Debug("config: loaded environment from %s", path)
	return nil
}

// LoadSettings maps the config store onto domain.Settings, starting from the
// defaults rooted at the data directory, and validates the result.
func LoadSettings(store driven.ConfigStore, defaultDataDir string) (domain.Settings, error) {
	r := reader{store: store}

	dataDir := r.getString("paths.data_dir", os.Getenv(EnvDataDir))
	if dataDir == "" {
		dataDir = defaultDataDir
	}
	s := domain.DefaultSettings(expandHome(dataDir))

	p := &s.Paths
	p.VectorStoreDir = expandHome(r.getString("paths.vector_store", p.VectorStoreDir))
	p.DocumentsDir = expandHome(r.getString("paths.documents", p.DocumentsDir))
	p.ChatHistoryDir = expandHome(r.getString("paths.chat_history", p.ChatHistoryDir))
	p.BackupsDir = expandHome(r.getString("paths.backups", p.BackupsDir))
	p.PromptsDir = expandHome(r.getString("paths.prompts", p.PromptsDir))
	p.TempDir = expandHome(r.getString("paths.temp", p.TempDir))
	p.StateDir = expandHome(r.getString("paths.state", p.StateDir))

	rt := &s.Retrieval
	rt.MaxResults = r.getInt("retrieval.max_results", rt.MaxResults)
	rt.MaxIterations = r.getInt("retrieval.max_iterations", rt.MaxIterations)
	rt.MaxVariants = r.getInt("retrieval.max_variants", rt.MaxVariants)
	rt.Workers = r.getInt("retrieval.workers", rt.Workers)
	rt.BroadFactor = r.getInt("retrieval.broad_factor", rt.BroadFactor)
	rt.SearchTimeout = r.getDuration("retrieval.search_timeout", rt.SearchTimeout)
	rt.MinSimilarity = r.getFloat("retrieval.min_similarity", rt.MinSimilarity)

	o := &s.Optimizer
	o.Enabled = r.getBool("optimizer.enabled", o.Enabled)
	o.Timeout = r.getDuration("optimizer.timeout", o.Timeout)
	o.MaxTokens = r.getInt("optimizer.max_tokens", o.MaxTokens)
	o.Temperature = r.getFloat("optimizer.temperature", o.Temperature)

	sy := &s.Synthesis
	sy.Timeout = r.getDuration("synthesis.timeout", sy.Timeout)
	sy.MaxTokens = r.getInt("synthesis.max_tokens", sy.MaxTokens)
	sy.MaxContextTokens = r.getInt("synthesis.max_context_tokens", sy.MaxContextTokens)
	sy.Temperature = r.getFloat("synthesis.temperature", sy.Temperature)
	sy.AgreementWeight = r.getFloat("synthesis.agreement_weight", sy.AgreementWeight)
	sy.VolumeWeight = r.getFloat("synthesis.volume_weight", sy.VolumeWeight)
	sy.ModelWeight = r.getFloat("synthesis.model_weight", sy.ModelWeight)
	sy.AgreementTarget = r.getInt("synthesis.agreement_target", sy.AgreementTarget)
	sy.VolumeTarget = r.getInt("synthesis.volume_target", sy.VolumeTarget)
	sy.MinChunks = r.getInt("synthesis.min_chunks", sy.MinChunks)
	sy.LowCountCap = r.getFloat("synthesis.low_count_cap", sy.LowCountCap)
	sy.InsufficientModelCap = r.getFloat("synthesis.insufficient_model_cap", sy.InsufficientModelCap)
	sy.SnippetLength = r.getInt("synthesis.snippet_length", sy.SnippetLength)

	s.Security.ImperativeThreshold = r.getFloat("security.imperative_threshold", s.Security.ImperativeThreshold)
	s.Security.MinWordsForDensity = r.getInt("security.min_words_for_density", s.Security.MinWordsForDensity)

	b := &s.Backup
	b.MaxBackupFiles = r.getInt("backup.max_backup_files", b.MaxBackupFiles)
	b.IncludeDocuments = r.getBool("backup.include_documents", b.IncludeDocuments)
	b.IncludeChatHistory = r.getBool("backup.include_chat_history", b.IncludeChatHistory)
	b.Compress = r.getBool("backup.compress", b.Compress)
	b.Format = domain.ArchiveFormat(r.getString("backup.format", string(b.Format)))
	b.Schedule = r.getString("backup.schedule", b.Schedule)

	s.Forget.PreviewLimit = r.getInt("forget.preview_limit", s.Forget.PreviewLimit)
	s.Forget.PreviewTTL = r.getDuration("forget.preview_ttl", s.Forget.PreviewTTL)
	s.Forget.MinSimilarity = r.getFloat("forget.min_similarity", s.Forget.MinSimilarity)

	s.Cache.Enabled = r.getBool("cache.enabled", s.Cache.Enabled)
	s.Cache.MaxEntries = int64(r.getInt("cache.max_entries", int(s.Cache.MaxEntries)))
	s.Cache.TTL = r.getDuration("cache.ttl", s.Cache.TTL)

	s.Chunking.Size = r.getInt("chunking.size", s.Chunking.Size)
	s.Chunking.Overlap = r.getInt("chunking.overlap", s.Chunking.Overlap)

	rs := &s.Resilience
	rs.Retries = uint(max(r.getInt("resilience.retries", int(rs.Retries)), 0))
	rs.RetryDelay = r.getDuration("resilience.retry_delay", rs.RetryDelay)
	rs.RequestsPerSecond = r.getFloat("resilience.requests_per_second", rs.RequestsPerSecond)
	rs.Burst = r.getInt("resilience.burst", rs.Burst)

	s.History.Turns = r.getInt("history.turns", s.History.Turns)

	s.VectorStore.Backend = domain.VectorBackend(r.getString("vector_store.backend", string(s.VectorStore.Backend)))
	s.VectorStore.Collection = r.getString("vector_store.collection", s.VectorStore.Collection)

	s.Embedding = domain.EmbeddingSettings{
		Provider:   domain.AIProvider(r.getString("embedding.provider", string(s.Embedding.Provider))),
		Model:      r.getString("embedding.model", ""),
		BaseURL:    r.getString("embedding.base_url", ""),
		APIKey:     r.getString("embedding.api_key", ""),
		Dimensions: r.getInt("embedding.dimensions", 0),
	}
	s.LLM = domain.LLMSettings{
		Provider: domain.AIProvider(r.getString("llm.provider", "")),
		Model:    r.getString("llm.model", ""),
		BaseURL:  r.getString("llm.base_url", ""),
		APIKey:   r.getString("llm.api_key", ""),
	}
	applyEnv(&s)
	applyModelDefaults(&s)

	if len(r.errs) > 0 {
		return s, domain.ValidationErrorf("config", "%s", strings.Join(r.errs, "; "))
	}
	if err := Validate(s); err != nil {
		return s, err
	}
	return s, nil
}

// applyEnv fills API keys and the Ollama host from the environment.
func applyEnv(s *domain.Settings) {
	key := func(p domain.AIProvider) string {
		switch p {
		case domain.AIProviderOpenAI:
			return os.Getenv(EnvOpenAIKey)
		case domain.AIProviderAnthropic:
			return os.Getenv(EnvAnthropicKey)
		default:
			return ""
		}
	}
	if s.Embedding.APIKey == "" {
		s.Embedding.APIKey = key(s.Embedding.Provider)
	}
	if s.LLM.APIKey == "" {
		s.LLM.APIKey = key(s.LLM.Provider)
	}
	if host := os.Getenv(EnvOllamaHost); host != "" {
		if s.Embedding.Provider == domain.AIProviderOllama && s.Embedding.BaseURL == "" {
			s.Embedding.BaseURL = host
		}
		if s.LLM.Provider == domain.AIProviderOllama && s.LLM.BaseURL == "" {
			s.LLM.BaseURL = host
		}
	}
}

func applyModelDefaults(s *domain.Settings) {
	if s.Embedding.Model == "" {
		s.Embedding.Model = domain.DefaultEmbeddingModels()[s.Embedding.Provider]
	}
	if s.LLM.Model == "" && s.LLM.Provider != "" {
		s.LLM.Model = domain.DefaultLLMModels()[s.LLM.Provider]
	}
}

// Validate checks struct constraints and the enumerated fields.
func Validate(s domain.Settings) error {
	var problems []string

	if err := validator.New().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return domain.ValidationErrorf("config", "%v", err)
		}
		for _, e := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed on '%s' tag", e.Namespace(), e.Tag()))
		}
	}
	if !s.VectorStore.Backend.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown vector_store.backend %q", s.VectorStore.Backend))
	}
	if s.Embedding.Provider != "" && !s.Embedding.Provider.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown embedding.provider %q", s.Embedding.Provider))
	}
	if s.LLM.Provider != "" && !s.LLM.Provider.IsValid() {
		problems = append(problems, fmt.Sprintf("unknown llm.provider %q", s.LLM.Provider))
	}
	sum := s.Synthesis.AgreementWeight + s.Synthesis.VolumeWeight + s.Synthesis.ModelWeight
	if sum < 0.999 || sum > 1.001 {
		problems = append(problems, fmt.Sprintf("synthesis weights sum to %.3f, want 1", sum))
	}

	if len(problems) > 0 {
		return domain.ValidationErrorf("config", "%s", strings.Join(problems, "; "))
	}
	return nil
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// reader reads typed values with defaults and collects type errors.
type reader struct {
	store driven.ConfigStore
	errs  []string
}

func (r *reader) getString(key, def string) string {
	v, ok := r.store.Get(key)
	if !ok {
		return def
	}
	s, isStr := v.(string)
	if !isStr {
		r.errs = append(r.errs, fmt.Sprintf("%s must be a string", key))
		return def
	}
	if s == "" {
		return def
	}
	return s
}

func (r *reader) getInt(key string, def int) int {
	v, ok := r.store.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	default:
		r.errs = append(r.errs, fmt.Sprintf("%s must be an integer", key))
		return def
	}
}

func (r *reader) getFloat(key string, def float64) float64 {
	v, ok := r.store.Get(key)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		r.errs = append(r.errs, fmt.Sprintf("%s must be a number", key))
		return def
	}
}

func (r *reader) getBool(key string, def bool) bool {
	v, ok := r.store.Get(key)
	if !ok {
		return def
	}
	b, isBool := v.(bool)
	if !isBool {
		r.errs = append(r.errs, fmt.Sprintf("%s must be true or false", key))
		return def
	}
	return b
}

// getDuration accepts Go duration strings ("90s") or whole seconds.
func (r *reader) getDuration(key string, def time.Duration) time.Duration {
	v, ok := r.store.Get(key)
	if !ok {
		return def
	}
	switch d := v.(type) {
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			r.errs = append(r.errs, fmt.Sprintf("%s: %v", key, err))
			return def
		}
		return parsed
	case int64:
		return time.Duration(d) * time.Second
	case int:
		return time.Duration(d) * time.Second
	default:
		r.errs = append(r.errs, fmt.Sprintf("%s must be a duration such as \"30s\"", key))
		return def
	}
}
