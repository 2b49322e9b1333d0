package driven

import "context"

// EmbeddingService turns text into vectors for the vector-backed stores.
// A store keeps the dimension it was created with, so switching models on an
// existing store requires a rebuild.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in one provider round trip where supported.
	// The result has one vector per input, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length produced by the model.
	Dimensions() int

	ModelName() string

	// Ping checks the provider answers before the service is wired in.
	Ping(ctx context.Context) error

	Close() error
}
