package domain

import (
	"path/filepath"
	"time"
)

const unknownDescription = "Unknown"

// AIProvider identifies an AI service provider for embeddings or LLM.
type AIProvider string

// Available AI providers.
const (
	// AIProviderOllama is local Ollama instance.
	AIProviderOllama AIProvider = "ollama"

	// AIProviderOpenAI is OpenAI cloud API.
	AIProviderOpenAI AIProvider = "openai"

	// AIProviderAnthropic is Anthropic cloud API.
	AIProviderAnthropic AIProvider = "anthropic"

	// AIProviderHash is the offline feature-hashing embedder.
	AIProviderHash AIProvider = "hash"
)

// IsValid returns true if the AI provider is recognised.
func (p AIProvider) IsValid() bool {
	switch p {
	case AIProviderOllama, AIProviderOpenAI, AIProviderAnthropic, AIProviderHash:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p AIProvider) RequiresAPIKey() bool {
	return p == AIProviderOpenAI || p == AIProviderAnthropic
}

// IsLocal returns true if this provider runs locally.
func (p AIProvider) IsLocal() bool {
	return p == AIProviderOllama || p == AIProviderHash
}

// String returns the string representation.
func (p AIProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p AIProvider) Description() string {
	switch p {
	case AIProviderOllama:
		return "Ollama (local)"
	case AIProviderOpenAI:
		return "OpenAI (cloud)"
	case AIProviderAnthropic:
		return "Anthropic (cloud)"
	case AIProviderHash:
		return "Feature hashing (offline)"
	default:
		return unknownDescription
	}
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider AIProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions overrides the model's known vector size.
	Dimensions int `validate:"gte=0"`
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() || e.Provider == AIProviderAnthropic {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// LLMSettings holds LLM provider configuration.
type LLMSettings struct {
	// Provider is the LLM service provider.
	Provider AIProvider

	// Model is the LLM model name.
	Model string

	// BaseURL is the API endpoint (for Ollama).
	BaseURL string

	// APIKey is the API key (for OpenAI/Anthropic).
	APIKey string
}

// IsConfigured returns true if the LLM provider is set up.
func (l LLMSettings) IsConfigured() bool {
	if !l.Provider.IsValid() || l.Provider == AIProviderHash {
		return false
	}
	if l.Provider.RequiresAPIKey() && l.APIKey == "" {
		return false
	}
	return true
}

// VectorBackend selects the vector store implementation.
type VectorBackend string

// Vector store backends.
const (
	// VectorBackendChromem is the embedded chromem-go store (direct delete).
	VectorBackendChromem VectorBackend = "chromem"

	// VectorBackendBleve is the bleve lexical index (direct delete and listing).
	VectorBackendBleve VectorBackend = "bleve"

	// VectorBackendMemory is the append-only snapshot store (listing only).
	VectorBackendMemory VectorBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b VectorBackend) IsValid() bool {
	switch b {
	case VectorBackendChromem, VectorBackendBleve, VectorBackendMemory:
		return true
	default:
		return false
	}
}

// RequiresEmbedding returns true if the backend searches by vector.
func (b VectorBackend) RequiresEmbedding() bool {
	return b == VectorBackendChromem || b == VectorBackendMemory
}

// VectorStoreSettings holds vector store configuration.
type VectorStoreSettings struct {
	Backend    VectorBackend `validate:"required"`
	Collection string        `validate:"required"`
}

// PathSettings holds the on-disk layout.
type PathSettings struct {
	// DataDir is the root directory; the others default to children of it.
	DataDir        string `validate:"required"`
	VectorStoreDir string `validate:"required"`
	DocumentsDir   string `validate:"required"`
	ChatHistoryDir string `validate:"required"`
	BackupsDir     string `validate:"required"`
	PromptsDir     string `validate:"required"`
	TempDir        string `validate:"required"`
	StateDir       string `validate:"required"`
}

// DefaultPathSettings derives the layout from a data directory.
func DefaultPathSettings(dataDir string) PathSettings {
	return PathSettings{
		DataDir:        dataDir,
		VectorStoreDir: filepath.Join(dataDir, string(ComponentVectorStore)),
		DocumentsDir:   filepath.Join(dataDir, string(ComponentDocuments)),
		ChatHistoryDir: filepath.Join(dataDir, string(ComponentChatHistory)),
		BackupsDir:     filepath.Join(dataDir, "backups"),
		PromptsDir:     filepath.Join(dataDir, "prompts"),
		TempDir:        filepath.Join(dataDir, "tmp"),
		StateDir:       filepath.Join(dataDir, "state"),
	}
}

// RetrievalSettings tunes the multi-query retrieval engine.
type RetrievalSettings struct {
	MaxResults    int           `validate:"min=1,max=200"`
	MaxIterations int           `validate:"min=1,max=20"`
	MaxVariants   int           `validate:"min=0,max=10"`
	Workers       int           `validate:"min=1,max=16"`
	BroadFactor   int           `validate:"min=1,max=5"`
	SearchTimeout time.Duration `validate:"gt=0"`

	// MinSimilarity drops search hits scoring below it on stores that
	// report cosine similarity.
	MinSimilarity float64 `validate:"gte=0,lte=1"`
}

// OptimizerSettings tunes the query optimizer.
type OptimizerSettings struct {
	Enabled     bool
	Timeout     time.Duration `validate:"gt=0"`
	MaxTokens   int           `validate:"min=16"`
	Temperature float64       `validate:"gte=0,lte=2"`
}

// SynthesisSettings tunes answer synthesis and confidence scoring.
type SynthesisSettings struct {
	Timeout          time.Duration `validate:"gt=0"`
	MaxTokens        int           `validate:"min=16"`
	MaxContextTokens int           `validate:"min=100"`
	Temperature      float64       `validate:"gte=0,lte=2"`

	// AgreementWeight, VolumeWeight and ModelWeight should sum to 1.
	AgreementWeight float64 `validate:"gte=0,lte=1"`
	VolumeWeight    float64 `validate:"gte=0,lte=1"`
	ModelWeight     float64 `validate:"gte=0,lte=1"`

	// AgreementTarget is the number of distinct safe sources for full agreement.
	AgreementTarget int `validate:"min=1"`

	// VolumeTarget is the chunk count for full volume credit.
	VolumeTarget int `validate:"min=1"`

	// Below MinChunks the confidence is capped at LowCountCap.
	MinChunks   int     `validate:"min=1"`
	LowCountCap float64 `validate:"gte=0,lte=1"`

	// InsufficientModelCap caps the model term when the model reports insufficient.
	InsufficientModelCap float64 `validate:"gte=0,lte=1"`

	SnippetLength int `validate:"min=20"`
}

// SecuritySettings tunes the content security validator.
type SecuritySettings struct {
	ImperativeThreshold float64 `validate:"gt=0,lte=1"`
	MinWordsForDensity  int     `validate:"min=1"`
}

// BackupSettings configures backups and retention.
type BackupSettings struct {
	MaxBackupFiles     int `validate:"min=1"`
	IncludeDocuments   bool
	IncludeChatHistory bool
	Compress           bool
	Format             ArchiveFormat `validate:"oneof=tar.gz zip"`

	// Schedule is a cron expression for automatic backups; empty disables them.
	Schedule string
}

// ForgetSettings configures forget previews.
type ForgetSettings struct {
	PreviewLimit int           `validate:"min=1"`
	PreviewTTL   time.Duration `validate:"gt=0"`

	// MinSimilarity is the cut-off for preview candidates. It is stricter
	// than retrieval's because confirmed candidates are deleted.
	MinSimilarity float64 `validate:"gte=0,lte=1"`
}

// CacheSettings configures the query result cache.
type CacheSettings struct {
	Enabled    bool
	MaxEntries int64         `validate:"min=1"`
	TTL        time.Duration `validate:"gt=0"`
}

// ChunkingSettings configures document chunking.
type ChunkingSettings struct {
	Size    int `validate:"min=50"`
	Overlap int `validate:"min=0,ltfield=Size"`
}

// ResilienceSettings configures retries and rate limiting of model calls.
type ResilienceSettings struct {
	Retries           uint          `validate:"max=10"`
	RetryDelay        time.Duration `validate:"gte=0"`
	RequestsPerSecond float64       `validate:"gt=0"`
	Burst             int           `validate:"min=1"`
}

// HistorySettings configures conversational context.
type HistorySettings struct {
	// Turns is how many recent chat turns are passed to the optimizer.
	Turns int `validate:"min=0,max=50"`
}

// Settings holds all application settings.
type Settings struct {
	Paths       PathSettings
	Retrieval   RetrievalSettings
	Optimizer   OptimizerSettings
	Synthesis   SynthesisSettings
	Security    SecuritySettings
	Backup      BackupSettings
	Forget      ForgetSettings
	Cache       CacheSettings
	Chunking    ChunkingSettings
	Resilience  ResilienceSettings
	History     HistorySettings
	VectorStore VectorStoreSettings
	Embedding   EmbeddingSettings
	LLM         LLMSettings
}

// DefaultSettings returns settings with sensible defaults rooted at dataDir.
// The LLM is left unconfigured; embeddings default to the offline hash embedder.
func DefaultSettings(dataDir string) Settings {
	return Settings{
		Paths: DefaultPathSettings(dataDir),
		Retrieval: RetrievalSettings{
			MaxResults:    10,
			MaxIterations: 3,
			MaxVariants:   3,
			Workers:       3,
			BroadFactor:   2,
			SearchTimeout: 10 * time.Second,
			MinSimilarity: 0.2,
		},
		Optimizer: OptimizerSettings{
			Enabled:   true,
			Timeout:   15 * time.Second,
			MaxTokens: 300,
		},
		Synthesis: SynthesisSettings{
			Timeout:              60 * time.Second,
			MaxTokens:            1024,
			MaxContextTokens:     3000,
			Temperature:          0.2,
			AgreementWeight:      0.4,
			VolumeWeight:         0.2,
			ModelWeight:          0.4,
			AgreementTarget:      3,
			VolumeTarget:         5,
			MinChunks:            2,
			LowCountCap:          0.5,
			InsufficientModelCap: 0.3,
			SnippetLength:        160,
		},
		Security: SecuritySettings{
			ImperativeThreshold: 0.15,
			MinWordsForDensity:  20,
		},
		Backup: BackupSettings{
			MaxBackupFiles:     10,
			IncludeDocuments:   true,
			IncludeChatHistory: true,
			Format:             ArchiveTarGz,
		},
		Forget: ForgetSettings{
			PreviewLimit:  20,
			PreviewTTL:    10 * time.Minute,
			MinSimilarity: 0.35,
		},
		Cache: CacheSettings{
			Enabled:    true,
			MaxEntries: 1000,
			TTL:        10 * time.Minute,
		},
		Chunking: ChunkingSettings{
			Size:    1000,
			Overlap: 200,
		},
		Resilience: ResilienceSettings{
			Retries:           2,
			RetryDelay:        500 * time.Millisecond,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		History: HistorySettings{
			Turns: 4,
		},
		VectorStore: VectorStoreSettings{
			Backend:    VectorBackendChromem,
			Collection: "recall",
		},
		Embedding: EmbeddingSettings{
			Provider: AIProviderHash,
		},
		LLM: LLMSettings{},
	}
}

// AllLLMProviders returns providers that support LLM operations.
func AllLLMProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderAnthropic,
	}
}

// AllEmbeddingProviders returns providers that support embeddings.
func AllEmbeddingProviders() []AIProvider {
	return []AIProvider{
		AIProviderOllama,
		AIProviderOpenAI,
		AIProviderHash,
	}
}

// DefaultEmbeddingModels returns default models for each embedding provider.
func DefaultEmbeddingModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama: "nomic-embed-text",
		AIProviderOpenAI: "text-embedding-3-small",
		AIProviderHash:   "fnv-384",
	}
}

// DefaultLLMModels returns default models for each LLM provider.
func DefaultLLMModels() map[AIProvider]string {
	return map[AIProvider]string{
		AIProviderOllama:    "llama3.2",
		AIProviderOpenAI:    "gpt-4o-mini",
		AIProviderAnthropic: "claude-3-5-sonnet-latest",
	}
}

// EmbeddingDimensions returns the vector dimensions for known models.
func EmbeddingDimensions() map[string]int {
	return map[string]int{
		// Ollama models
		"nomic-embed-text":  768,
		"mxbai-embed-large": 1024,
		"all-minilm":        384,
		// OpenAI models
		"text-embedding-3-small": 1536,
		"text-embedding-3-large": 3072,
		"text-embedding-ada-002": 1536,
		// Offline
		"fnv-384": 384,
	}
}
