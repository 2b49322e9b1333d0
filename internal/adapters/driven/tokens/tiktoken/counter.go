// Package tiktoken counts tokens with OpenAI's BPE encodings.
//
// Encodings are downloaded on first use and cached under TIKTOKEN_CACHE_DIR
// (or the system temp directory). Callers treat a construction error as
// "no counter" and fall back to a character estimate.
package tiktoken

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/custodia-labs/recall/internal/core/ports/driven"
)

// Ensure Counter implements the interface.
var _ driven.TokenCounter = (*Counter)(nil)

// FallbackEncoding is used for models tiktoken does not know, including
// Anthropic and Ollama models, where it is a close enough estimate for budgeting.
const FallbackEncoding = "cl100k_base"

// Counter counts tokens for one encoding. It is safe for concurrent use.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// New returns a counter for model, or for FallbackEncoding if the model is unknown.
func New(model string) (*Counter, error) {
	if model != "" {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return &Counter{enc: enc}, nil
		}
	}
	enc, err := tiktoken.GetEncoding(FallbackEncoding)
	if err != nil {
		return nil, fmt.Errorf("load %s encoding: %w", FallbackEncoding, err)
	}
	return &Counter{enc: enc}, nil
}

// Count returns the number of tokens in text. Special-token markers count as ordinary text.
func (c *Counter) Count(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.EncodeOrdinary(text))
}
