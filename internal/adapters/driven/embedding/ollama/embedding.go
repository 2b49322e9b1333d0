// Package ollama embeds text with a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/custodia-labs/recall/internal/core/domain"
	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

var _ driven.EmbeddingService = (*EmbeddingService)(nil)

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultTimeout    = 30 * time.Second
	DefaultDimensions = 768
)

// maxErrorBody caps how much of a failed response is quoted in the error.
const maxErrorBody = 4096

// Config selects the server and model. Zero fields take the defaults above.
type Config struct {
	BaseURL    string
	Model      string
	Timeout    time.Duration
	Dimensions int
}

// EmbeddingService calls POST /api/embed with the whole batch in one request.
type EmbeddingService struct {
	client     *http.Client
	endpoint   string
	model      string
	dimensions int
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// NewEmbeddingService applies defaults to cfg and returns the service.
func NewEmbeddingService(cfg Config) *EmbeddingService {
	return &EmbeddingService{
		client:     &http.Client{Timeout: orDefault(cfg.Timeout, DefaultTimeout)},
		endpoint:   strings.TrimRight(orDefault(cfg.BaseURL, DefaultBaseURL), "/"),
		model:      orDefault(cfg.Model, DefaultModel),
		dimensions: orDefault(cfg.Dimensions, DefaultDimensions),
	}
}

func orDefault[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}

func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	payload, err := json.Marshal(embedRequest{Model: s.model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode embed request: %w", err)
	}
	body, err := s.roundTrip(ctx, http.MethodPost, "/api/embed", payload)
	if err != nil {
		return nil, err
	}

	rows := gjson.GetBytes(body, "embeddings").Array()
	if len(rows) != len(texts) {
		return nil, fmt.Errorf("ollama: expected %d embeddings, got %d", len(texts), len(rows))
	}
	vecs := make([][]float32, len(rows))
	for i, row := range rows {
		values := row.Array()
		vec := make([]float32, len(values))
		for j, v := range values {
			vec[j] = float32(v.Float())
		}
		vecs[i] = vec
	}
	return vecs, nil
}

func (s *EmbeddingService) Dimensions() int { return s.dimensions }

func (s *EmbeddingService) ModelName() string { return s.model }

// Ping lists the installed models, which needs no model to be loaded.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	_, err := s.roundTrip(ctx, http.MethodGet, "/api/tags", nil)
	return err
}

func (s *EmbeddingService) Close() error { return nil }

// roundTrip sends one request and returns the body of a 200 response.
func (s *EmbeddingService) roundTrip(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	var reader io.Reader = http.NoBody
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, s.endpoint+path, reader)
	if err != nil {
		return nil, fmt.Errorf("ollama: build %s request: %w", path, err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(snippet))
		if resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("ollama: %w: %s", domain.ErrRateLimited, msg)
		}
		return nil, fmt.Errorf("ollama: %s returned status %d: %s", path, resp.StatusCode, msg)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read %s response: %w", path, err)
	}
	return body, nil
}
