package search

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/keepsake-ai/keepsake/ai"
	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/storage"
)

// NoContextFound is returned (with a nil error) when a user has no
// relevant chat history for a query. Callers can pass it straight into
// a prompt; it reads as an answer, not an error.
const NoContextFound = "No relevant chat history found."

const (
	// DefaultLimit is how many matches are fetched per query.
	DefaultLimit = 8

	// DefaultContextBudget is the character budget of a composed
	// context block.
	DefaultContextBudget = 4000
)

// entrySeparator joins context entries; a blank line keeps chunk
// transcripts visually separate.
const entrySeparator = "\n\n"

// Retriever composes retrieval context from a user's stored embeddings.
type Retriever struct {
	vectors       storage.VectorRepository
	embedder      ai.Embedder
	contextBudget int
	maxDistance   float32
	logger        *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithContextBudget sets the character budget of the composed context.
func WithContextBudget(budget int) Option {
	return func(r *Retriever) error {
		if budget > 0 {
			r.contextBudget = budget
		}
		return nil
	}
}

// WithMaxDistance drops matches with cosine distance above the given
// value. Default keeps everything and trusts the ranking.
func WithMaxDistance(distance float32) Option {
	return func(r *Retriever) error {
		r.maxDistance = distance
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(vectors storage.VectorRepository, provider ai.Provider, opts ...Option) (*Retriever, error) {
	if vectors == nil {
		return nil, ErrVectorRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	r := &Retriever{
		vectors:       vectors,
		embedder:      provider.Embedder(),
		contextBudget: DefaultContextBudget,
		logger:        slog.Default().With("component", "retriever"),
	}

	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Retrieve returns a context block of the user's chat history most
// relevant to the query. Returns NoContextFound with a nil error when
// the user has no relevant history.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, limit int) (string, error) {
	return r.RetrieveWithMonitor(ctx, userID, query, limit, nil)
}

// RetrieveWithMonitor is Retrieve with observation hooks.
// The monitor receives callbacks at each stage of retrieval.
func (r *Retriever) RetrieveWithMonitor(ctx context.Context, userID, query string, limit int, monitor RetrievalMonitor) (string, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if userID == "" {
		return "", core.ErrEmptyUserID
	}
	if limit <= 0 {
		return "", ErrInvalidLimit
	}

	monitor.Start(query)

	if strings.TrimSpace(query) == "" {
		monitor.Finish(NoContextFound)
		return NoContextFound, nil
	}

	vector, err := r.embedder.EmbedText(ctx, query)
	if err != nil {
		r.logger.Error("error generating embedding for query", "err", err)
		return "", err
	}
	monitor.AfterQueryEmbedding(vector)

	// A degenerate query embeds to the zero vector; every distance would
	// tie at 1 and the ranking would be noise.
	if isZero(vector) {
		monitor.Finish(NoContextFound)
		return NoContextFound, nil
	}

	matches, err := r.vectors.FindSimilar(ctx, userID, storage.SimilarityQuery{
		Vector:      vector,
		Limit:       limit,
		MaxDistance: r.maxDistance,
	})
	if err != nil {
		r.logger.Error("error querying for similar embeddings", "err", err)
		return "", err
	}
	monitor.AfterVectorSearch(matches)

	if len(matches) == 0 {
		monitor.Finish(NoContextFound)
		return NoContextFound, nil
	}

	result := r.compose(matches, monitor)
	if result == "" {
		monitor.Finish(NoContextFound)
		return NoContextFound, nil
	}

	monitor.Finish(result)
	return result, nil
}

// compose joins match texts in ranking order under the character
// budget. The best match is always included, truncated if it alone
// exceeds the budget.
func (r *Retriever) compose(matches []*core.SimilarityMatch, monitor RetrievalMonitor) string {
	var b strings.Builder

	for i, match := range matches {
		text := strings.TrimSpace(match.Embedding.Text)
		if text == "" {
			monitor.EntrySkipped(match)
			continue
		}

		if b.Len() == 0 {
			if len(text) > r.contextBudget {
				text = truncate(text, r.contextBudget)
			}
			b.WriteString(text)
			monitor.EntryIncluded(match)
			continue
		}

		if b.Len()+len(entrySeparator)+len(text) > r.contextBudget {
			monitor.EntrySkipped(match)
			// Later entries are ranked worse; no point scanning on.
			for _, rest := range matches[i+1:] {
				monitor.EntrySkipped(rest)
			}
			break
		}
		b.WriteString(entrySeparator)
		b.WriteString(text)
		monitor.EntryIncluded(match)
	}

	return b.String()
}

// truncate cuts text to at most n bytes without splitting a UTF-8 rune.
func truncate(text string, n int) string {
	if len(text) <= n {
		return text
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}

// isZero reports whether every component of the vector is zero.
func isZero(vector []float32) bool {
	for _, v := range vector {
		if v != 0 {
			return false
		}
	}
	return true
}
