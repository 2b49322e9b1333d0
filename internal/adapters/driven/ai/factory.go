// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	hashembed "github.com/custodia-labs/recall/internal/adapters/driven/embedding/hash"
	ollamaembed "github.com/custodia-labs/recall/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/recall/internal/adapters/driven/embedding/openai"
	anthropicllm "github.com/custodia-labs/recall/internal/adapters/driven/llm/anthropic"
	ollamallm "github.com/custodia-labs/recall/internal/adapters/driven/llm/ollama"
	openaillm "github.com/custodia-labs/recall/internal/adapters/driven/llm/openai"
	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// configHint tells the user where provider settings live.
const configHint = "Check the [embedding] and [llm] sections of config.toml"

// InitResult contains the result of AI service initialisation.
type InitResult struct {
	EmbeddingService driven.EmbeddingService // Nil only for backends that do not embed.
	LLMService       driven.LLMService       // Nil when unconfigured or unreachable.
	Warnings         []string                // Non-fatal issues that caused degradation.
	Degraded         bool                    // True if a configured LLM could not be used.
}

// Close releases all resources held by InitResult.
func (r *InitResult) Close() {
	if r.EmbeddingService != nil {
		_ = r.EmbeddingService.Close()
	}
	if r.LLMService != nil {
		_ = r.LLMService.Close()
	}
}

// Initialise creates and validates the model services for settings.
// An unusable embedding service is fatal when the vector backend needs one.
// An unusable LLM only degrades query optimisation and synthesis.
func Initialise(settings domain.Settings) (*InitResult, error) {
	result := &InitResult{}
	limiter := NewLimiter(settings.Resilience)

	embed, err := CreateAndValidateEmbeddingService(&settings.Embedding)
	switch {
	case err != nil && settings.VectorStore.Backend.RequiresEmbedding():
		return nil, err
	case err != nil:
		result.Warnings = append(result.Warnings, err.Error())
	case embed == nil && settings.VectorStore.Backend.RequiresEmbedding():
		return nil, fmt.Errorf("%w: backend %q needs an embedding provider. %s",
			domain.ErrEmbeddingUnavailable, settings.VectorStore.Backend, configHint)
	}
	if embed != nil && !settings.Embedding.Provider.IsLocal() {
		embed = NewResilientEmbedding(embed, limiter)
	}
	result.EmbeddingService = embed

	llm, err := CreateAndValidateLLMService(&settings.LLM)
	if err != nil {
		logger.Warn("%v", err)
		result.Warnings = append(result.Warnings, err.Error())
		result.Degraded = true
	}
	if llm != nil {
		result.LLMService = NewResilientLLM(llm, limiter)
	}

	return result, nil
}

// CreateAndValidateEmbeddingService creates an embedding service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	svc, err := CreateEmbeddingService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. %s", domain.ErrEmbeddingUnavailable, err, configHint)
	}

	if svc == nil {
		return nil, nil
	}

	if err := ping(svc.Ping); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). %s", domain.ErrEmbeddingUnavailable, err, configHint)
	}

	return svc, nil
}

// CreateAndValidateLLMService creates an LLM service and validates connectivity.
// Returns the service if successful, or an error with guidance.
func CreateAndValidateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	svc, err := CreateLLMService(settings)
	if err != nil {
		return nil, fmt.Errorf("%w: %w. %s", domain.ErrLLMUnavailable, err, configHint)
	}
	if svc == nil {
		return nil, nil
	}

	if err := ping(svc.Ping); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: service unreachable (%w). %s", domain.ErrLLMUnavailable, err, configHint)
	}

	return svc, nil
}

func ping(fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	return fn(ctx)
}

// CreateEmbeddingService creates the appropriate embedding service based on settings.
// Returns nil if no provider is set; a provider that cannot be used is an error.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, nil
	}

	switch settings.Provider {
	case domain.AIProviderAnthropic:
		return nil, fmt.Errorf("anthropic does not support embeddings, use ollama, openai or hash")
	case "":
		return nil, nil
	}
	if !settings.IsConfigured() {
		if !settings.Provider.IsValid() {
			return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
		}
		return nil, fmt.Errorf("%w: %s requires an API key", domain.ErrInvalidInput, settings.Provider)
	}

	switch settings.Provider {
	case domain.AIProviderHash:
		return hashembed.NewEmbeddingService(dimensionsFor(settings, hashembed.DefaultDimensions)), nil

	case domain.AIProviderOllama:
		return ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: dimensionsFor(settings, ollamaembed.DefaultDimensions),
		}), nil

	case domain.AIProviderOpenAI:
		return openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:     settings.APIKey,
			BaseURL:    settings.BaseURL,
			Model:      settings.Model,
			Dimensions: dimensionsFor(settings, 0),
		})

	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}

// dimensionsFor resolves the vector size: explicit override, then known model, then fallback.
func dimensionsFor(settings *domain.EmbeddingSettings, fallback int) int {
	if settings.Dimensions > 0 {
		return settings.Dimensions
	}
	if d := domain.EmbeddingDimensions()[settings.Model]; d > 0 {
		return d
	}
	return fallback
}

// CreateLLMService creates the appropriate LLM service based on settings.
// Returns nil if no provider is set; a provider that cannot be used is an error.
func CreateLLMService(settings *domain.LLMSettings) (driven.LLMService, error) {
	if settings == nil || settings.Provider == "" {
		return nil, nil
	}
	switch {
	case settings.Provider == domain.AIProviderHash:
		return nil, fmt.Errorf("hash does not support text generation, use ollama, openai or anthropic")
	case !settings.Provider.IsValid():
		return nil, fmt.Errorf("%w: LLM provider %q", domain.ErrUnsupportedType, settings.Provider)
	case !settings.IsConfigured():
		return nil, fmt.Errorf("%w: %s requires an API key", domain.ErrInvalidInput, settings.Provider)
	}

	switch settings.Provider {
	case domain.AIProviderOllama:
		return ollamallm.NewLLMService(ollamallm.LLMConfig{
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		}), nil

	case domain.AIProviderOpenAI:
		return openaillm.NewLLMService(openaillm.LLMConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	case domain.AIProviderAnthropic:
		return anthropicllm.NewLLMService(anthropicllm.Config{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Model:   settings.Model,
		})

	default:
		return nil, fmt.Errorf("%w: LLM provider %q", domain.ErrUnsupportedType, settings.Provider)
	}
}
