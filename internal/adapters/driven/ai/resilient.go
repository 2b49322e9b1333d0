package ai

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
	"github.com/custodia-labs/recall/internal/logger"
)

// Ensure the wrappers implement the interfaces.
var (
	_ driven.LLMService       = (*ResilientLLM)(nil)
	_ driven.EmbeddingService = (*ResilientEmbedding)(nil)
)

// rateLimitBackoff is how long every caller pauses after the provider returns 429.
const rateLimitBackoff = 5 * time.Second

// Limiter throttles outbound model calls and retries transient failures.
// A single Limiter can be shared by the LLM and embedding wrappers of one provider.
type Limiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
	backoff time.Duration

	attempts uint
	delay    time.Duration
}

// NewLimiter creates a limiter from resilience settings.
func NewLimiter(cfg domain.ResilienceSettings) *Limiter {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := max(cfg.Burst, 1)

	return &Limiter{
		limiter:  rate.NewLimiter(rate.Limit(rps), burst),
		backoff:  rateLimitBackoff,
		attempts: cfg.Retries + 1,
		delay:    cfg.RetryDelay,
	}
}

// wait blocks until a request may be sent, honouring any 429 backoff.
func (l *Limiter) wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if d := time.Until(retryAt); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

func (l *Limiter) recordRateLimit() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.retryAt = time.Now().Add(l.backoff)
}

// retryable reports whether a failed call is worth repeating.
func retryable(err error) bool {
	switch {
	case !retry.IsRecoverable(err),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}

// do runs fn under the limiter with retries.
func do[T any](ctx context.Context, l *Limiter, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := retry.Do(
		func() error {
			if err := l.wait(ctx); err != nil {
				return retry.Unrecoverable(err)
			}
			v, err := fn(ctx)
			if err != nil {
				if errors.Is(err, domain.ErrRateLimited) {
					l.recordRateLimit()
				}
				return err
			}
			out = v
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(l.attempts),
		retry.Delay(l.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			logger.Debug("ai: %s attempt %d failed: %v", op, n+1, err)
		}),
	)
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// ResilientLLM wraps an LLM service with rate limiting and retries.
type ResilientLLM struct {
	inner   driven.LLMService
	limiter *Limiter
}

// NewResilientLLM wraps inner. A nil limiter returns inner unchanged.
func NewResilientLLM(inner driven.LLMService, limiter *Limiter) driven.LLMService {
	if inner == nil || limiter == nil {
		return inner
	}
	return &ResilientLLM{inner: inner, limiter: limiter}
}

// Generate produces text completion from a prompt.
func (r *ResilientLLM) Generate(ctx context.Context, prompt string, opts driven.GenerateOptions) (string, error) {
	return do(ctx, r.limiter, "generate", func(ctx context.Context) (string, error) {
		return r.inner.Generate(ctx, prompt, opts)
	})
}

// Chat conducts a multi-turn conversation.
func (r *ResilientLLM) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	return do(ctx, r.limiter, "chat", func(ctx context.Context) (string, error) {
		return r.inner.Chat(ctx, messages, opts)
	})
}

// ModelName returns the wrapped model name.
func (r *ResilientLLM) ModelName() string { return r.inner.ModelName() }

// Ping is not retried; startup checks want a fast answer.
func (r *ResilientLLM) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }

// Close closes the wrapped service.
func (r *ResilientLLM) Close() error { return r.inner.Close() }

// ResilientEmbedding wraps an embedding service with rate limiting and retries.
type ResilientEmbedding struct {
	inner   driven.EmbeddingService
	limiter *Limiter
}

// NewResilientEmbedding wraps inner. A nil limiter returns inner unchanged.
func NewResilientEmbedding(inner driven.EmbeddingService, limiter *Limiter) driven.EmbeddingService {
	if inner == nil || limiter == nil {
		return inner
	}
	return &ResilientEmbedding{inner: inner, limiter: limiter}
}

// Embed generates a vector embedding for the given text.
func (r *ResilientEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	return do(ctx, r.limiter, "embed", func(ctx context.Context) ([]float32, error) {
		return r.inner.Embed(ctx, text)
	})
}

// EmbedBatch generates embeddings for multiple texts.
func (r *ResilientEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return do(ctx, r.limiter, "embed batch", func(ctx context.Context) ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the wrapped vector size.
func (r *ResilientEmbedding) Dimensions() int { return r.inner.Dimensions() }

// ModelName returns the wrapped model name.
func (r *ResilientEmbedding) ModelName() string { return r.inner.ModelName() }

// Ping is not retried.
func (r *ResilientEmbedding) Ping(ctx context.Context) error { return r.inner.Ping(ctx) }

// Close closes the wrapped service.
func (r *ResilientEmbedding) Close() error { return r.inner.Close() }
