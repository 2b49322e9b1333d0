package driven

import "context"

// LLMService is the language model behind query optimisation and answer
// synthesis. It is optional: with no provider configured the optimizer uses
// its heuristic rewrite and synthesis returns an extractive answer.
type LLMService interface {
	// Generate completes a single prompt.
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (string, error)

	// Chat completes a message list.
	Chat(ctx context.Context, messages []ChatMessage, opts ChatOptions) (string, error)

	ModelName() string

	// Ping makes the cheapest request the provider allows. Startup calls it
	// before wiring the service in.
	Ping(ctx context.Context) error

	Close() error
}

// GenerateOptions tunes a Generate call. Zero values mean provider defaults.
type GenerateOptions struct {
	MaxTokens   int
	Temperature float64
	StopWords   []string
	// System, when set, is sent as the system prompt.
	System string
}

// ChatMessage is one turn. Role is "system", "user" or "assistant".
type ChatMessage struct {
	Role    string
	Content string
}

// ChatOptions tunes a Chat call. Zero values mean provider defaults.
type ChatOptions struct {
	MaxTokens   int
	Temperature float64
}
