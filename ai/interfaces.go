package ai

import "context"

// Embedder generates vector embeddings from text for semantic
// similarity search. Implementations must be thread-safe and
// deterministic: the same text always yields the same vector.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates embeddings for multiple texts in a batch.
	// The returned slice is in input order and the same length as texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Summarizer produces a short prose summary of a conversation.
// Implementations must be thread-safe for concurrent use.
type Summarizer interface {
	// Summarize returns a compact summary of the given conversation
	// text. An empty summary with nil error means the input carried
	// nothing worth summarizing.
	Summarize(ctx context.Context, text string) (string, error)
}

// Provider aggregates the model services for convenient initialization
// and lifecycle management.
type Provider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Summarizer returns the conversation summary service.
	Summarizer() Summarizer

	// Close releases resources held by the provider and its services.
	Close() error
}
