package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keepsake-ai/keepsake/ai/mock"
	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/storage"
	badgerstore "github.com/keepsake-ai/keepsake/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDimension = 4

type retrieverFixture struct {
	retriever *Retriever
	vectors   storage.VectorRepository
	embedder  *mock.MockEmbedder
}

func newRetrieverFixture(t *testing.T, opts ...Option) *retrieverFixture {
	t.Helper()

	_, vectors, _, backend, err := badgerstore.NewMemoryRepositories(testDimension)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := mock.NewMockEmbedder()
	embedder.Dimension = testDimension
	provider := mock.NewMockProviderWithServices(embedder, mock.NewMockSummarizer())

	retriever, err := NewRetriever(vectors, provider, opts...)
	require.NoError(t, err)

	return &retrieverFixture{retriever: retriever, vectors: vectors, embedder: embedder}
}

// axisEmbedder maps known texts to fixed unit vectors so rankings are
// exact.
func axisEmbedder(axes map[string][]float32) func(ctx context.Context, text string) ([]float32, error) {
	return func(ctx context.Context, text string) ([]float32, error) {
		if v, ok := axes[text]; ok {
			return v, nil
		}
		return mock.DeterministicVector(text, testDimension), nil
	}
}

func storeEmbedding(t *testing.T, vectors storage.VectorRepository, userID, text string, vec []float32) {
	t.Helper()
	_, err := vectors.PutEmbeddings(context.Background(), &core.Embedding{
		UserID:           userID,
		ConversationID:   "family",
		Kind:             core.EmbeddingKindChunk,
		Vector:           vec,
		Text:             text,
		MessageTimestamp: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
}

func TestRetrieve_RanksRelevantFirst(t *testing.T) {
	f := newRetrieverFixture(t)

	mlText := "[2024-03-01 09:00] Alice: neural networks are fun"
	weatherText := "[2024-03-01 10:00] Bob: looks like rain today"
	storeEmbedding(t, f.vectors, "user-1", mlText, []float32{1, 0, 0, 0})
	storeEmbedding(t, f.vectors, "user-1", weatherText, []float32{0, 1, 0, 0})

	f.embedder.EmbedTextFunc = axisEmbedder(map[string][]float32{
		"machine learning": {0.9486833, 0.31622776, 0, 0},
	})

	result, err := f.retriever.Retrieve(context.Background(), "user-1", "machine learning", 10)
	require.NoError(t, err)

	mlIdx := strings.Index(result, mlText)
	weatherIdx := strings.Index(result, weatherText)
	require.GreaterOrEqual(t, mlIdx, 0)
	require.GreaterOrEqual(t, weatherIdx, 0)
	assert.Less(t, mlIdx, weatherIdx, "closest match should lead the context")
}

func TestRetrieve_NoHistoryReturnsSentinel(t *testing.T) {
	f := newRetrieverFixture(t)

	result, err := f.retriever.Retrieve(context.Background(), "user-1", "anything at all", 5)
	require.NoError(t, err)
	assert.Equal(t, NoContextFound, result)
}

func TestRetrieve_EmptyQueryReturnsSentinel(t *testing.T) {
	f := newRetrieverFixture(t)
	storeEmbedding(t, f.vectors, "user-1", "some text", []float32{1, 0, 0, 0})

	for _, query := range []string{"", "   ", "\n"} {
		result, err := f.retriever.Retrieve(context.Background(), "user-1", query, 5)
		require.NoError(t, err)
		assert.Equal(t, NoContextFound, result)
	}
	assert.Zero(t, f.embedder.CallCount())
}

func TestRetrieve_ZeroQueryVectorReturnsSentinel(t *testing.T) {
	f := newRetrieverFixture(t)
	storeEmbedding(t, f.vectors, "user-1", "some text", []float32{1, 0, 0, 0})

	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return make([]float32, testDimension), nil
	}

	result, err := f.retriever.Retrieve(context.Background(), "user-1", "short", 5)
	require.NoError(t, err)
	assert.Equal(t, NoContextFound, result)
}

func TestRetrieve_TenantIsolation(t *testing.T) {
	f := newRetrieverFixture(t)

	secret := "[2024-03-01 09:00] Eve: my bank PIN is 1234"
	storeEmbedding(t, f.vectors, "user-2", secret, []float32{1, 0, 0, 0})

	f.embedder.EmbedTextFunc = axisEmbedder(map[string][]float32{
		"bank PIN": {1, 0, 0, 0},
	})

	// user-1 queries with a vector that matches user-2's data exactly;
	// it still must not surface.
	result, err := f.retriever.Retrieve(context.Background(), "user-1", "bank PIN", 10)
	require.NoError(t, err)
	assert.Equal(t, NoContextFound, result)
	assert.NotContains(t, result, "1234")
}

func TestRetrieve_RespectsContextBudget(t *testing.T) {
	f := newRetrieverFixture(t, WithContextBudget(120))

	first := strings.Repeat("a", 100)
	second := strings.Repeat("b", 100)
	storeEmbedding(t, f.vectors, "user-1", first, []float32{1, 0, 0, 0})
	storeEmbedding(t, f.vectors, "user-1", second, []float32{0.8, 0.6, 0, 0})

	f.embedder.EmbedTextFunc = axisEmbedder(map[string][]float32{
		"query": {1, 0, 0, 0},
	})

	result, err := f.retriever.Retrieve(context.Background(), "user-1", "query", 10)
	require.NoError(t, err)

	assert.Contains(t, result, first)
	assert.NotContains(t, result, second)
	assert.LessOrEqual(t, len(result), 120)
}

func TestRetrieve_TruncatesOversizedBestMatch(t *testing.T) {
	f := newRetrieverFixture(t, WithContextBudget(50))

	long := strings.Repeat("x", 200)
	storeEmbedding(t, f.vectors, "user-1", long, []float32{1, 0, 0, 0})

	f.embedder.EmbedTextFunc = axisEmbedder(map[string][]float32{
		"query": {1, 0, 0, 0},
	})

	result, err := f.retriever.Retrieve(context.Background(), "user-1", "query", 10)
	require.NoError(t, err)
	assert.Len(t, result, 50)
	assert.Equal(t, strings.Repeat("x", 50), result)
}

func TestRetrieve_StorageErrorsAreReturned(t *testing.T) {
	f := newRetrieverFixture(t)
	storeEmbedding(t, f.vectors, "user-1", "some text", []float32{1, 0, 0, 0})

	// Wrong-dimension query vector surfaces the storage error instead of
	// the sentinel.
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0}, nil
	}

	_, err := f.retriever.Retrieve(context.Background(), "user-1", "query", 5)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestRetrieve_EmbedderErrorsAreReturned(t *testing.T) {
	f := newRetrieverFixture(t)

	wantErr := errors.New("model service down")
	f.embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, wantErr
	}

	_, err := f.retriever.Retrieve(context.Background(), "user-1", "query", 5)
	assert.ErrorIs(t, err, wantErr)
}

func TestRetrieve_ValidatesArguments(t *testing.T) {
	f := newRetrieverFixture(t)

	_, err := f.retriever.Retrieve(context.Background(), "", "query", 5)
	assert.ErrorIs(t, err, core.ErrEmptyUserID)

	_, err = f.retriever.Retrieve(context.Background(), "user-1", "query", 0)
	assert.ErrorIs(t, err, ErrInvalidLimit)
}

type recordingMonitor struct {
	started  string
	searched int
	included int
	skipped  int
	finished string
}

func (m *recordingMonitor) Start(query string)                           { m.started = query }
func (m *recordingMonitor) AfterQueryEmbedding(_ []float32)              {}
func (m *recordingMonitor) AfterVectorSearch(ms []*core.SimilarityMatch) { m.searched = len(ms) }
func (m *recordingMonitor) EntryIncluded(_ *core.SimilarityMatch)        { m.included++ }
func (m *recordingMonitor) EntrySkipped(_ *core.SimilarityMatch)         { m.skipped++ }
func (m *recordingMonitor) Finish(context string)                        { m.finished = context }

func TestRetrieveWithMonitor(t *testing.T) {
	f := newRetrieverFixture(t)

	storeEmbedding(t, f.vectors, "user-1", "first text", []float32{1, 0, 0, 0})
	storeEmbedding(t, f.vectors, "user-1", "second text", []float32{0, 1, 0, 0})

	f.embedder.EmbedTextFunc = axisEmbedder(map[string][]float32{
		"query": {1, 0, 0, 0},
	})

	monitor := &recordingMonitor{}
	result, err := f.retriever.RetrieveWithMonitor(context.Background(), "user-1", "query", 10, monitor)
	require.NoError(t, err)

	assert.Equal(t, "query", monitor.started)
	assert.Equal(t, 2, monitor.searched)
	assert.Equal(t, 2, monitor.included)
	assert.Zero(t, monitor.skipped)
	assert.Equal(t, result, monitor.finished)
}
