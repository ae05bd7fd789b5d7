package storage

import (
	"context"

	"github.com/keepsake-ai/keepsake/core"
)

// SimilarityQuery describes a vector similarity search within a single
// user's embeddings.
type SimilarityQuery struct {
	// Vector is the query embedding. Must match the store's dimension.
	Vector []float32

	// Limit caps the number of matches returned. Must be positive.
	Limit int

	// MaxDistance filters out matches with cosine distance above this
	// value. Zero or negative means no distance filter.
	MaxDistance float32

	// ConversationID restricts the search to one conversation when
	// non-empty.
	ConversationID string
}

// MessageRepository provides operations for canonical chat messages.
// Implementations must be thread-safe and support concurrent access.
type MessageRepository interface {
	// AddMessages persists messages, skipping any whose identity
	// (sender, timestamp, content) already exists in the same user and
	// conversation. New messages get sequence-generated IDs and an
	// InsertedAt timestamp. Returns only the messages actually inserted.
	AddMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error)

	// GetMessage retrieves a single message by ID within a user's data.
	// Returns ErrNotFound if the message doesn't exist.
	GetMessage(ctx context.Context, userID string, id core.ID) (*core.Message, error)

	// GetConversation retrieves all messages of one conversation,
	// ordered by timestamp ascending with insertion ID as tiebreaker.
	GetConversation(ctx context.Context, userID, conversationID string) ([]*core.Message, error)

	// ListConversations returns the distinct conversation IDs a user
	// has messages in.
	ListConversations(ctx context.Context, userID string) ([]string, error)

	// Close releases resources held by the repository.
	Close() error
}

// VectorRepository provides operations for embeddings and similarity
// search. Implementations must be thread-safe.
type VectorRepository interface {
	// PutEmbeddings persists embeddings with sequence-generated IDs.
	// Every vector must match the store's configured dimension;
	// otherwise ErrDimensionMismatch is returned and nothing is written.
	// Vectors must be unit length (or zero): the store computes cosine
	// distance as 1 - dot product and does not renormalize. Embedders
	// wrapped by ai.GuardedEmbedder satisfy this.
	PutEmbeddings(ctx context.Context, embeddings ...*core.Embedding) ([]*core.Embedding, error)

	// FindSimilar searches one user's embeddings for the nearest
	// vectors by cosine distance, assuming unit-length query and stored
	// vectors. Results are ordered by distance ascending; ties go to the
	// newer message timestamp, then the smaller embedding ID, so
	// identical stores always return identical rankings.
	FindSimilar(ctx context.Context, userID string, query SimilarityQuery) ([]*core.SimilarityMatch, error)

	// CountEmbeddings returns the number of embeddings stored for a user.
	CountEmbeddings(ctx context.Context, userID string) (int, error)

	// Close releases resources held by the repository.
	Close() error
}

// JobRepository provides durable state for ingestion jobs. Job records
// survive process restarts so progress and outcomes remain queryable.
type JobRepository interface {
	// CreateJob persists a new job record.
	// Returns ErrDuplicateKey if the job ID already exists.
	CreateJob(ctx context.Context, job *core.IngestionJob) error

	// GetJob retrieves a job by ID.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.IngestionJob, error)

	// UpdateJob overwrites an existing job record, refreshing UpdatedAt.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.IngestionJob) error

	// ListJobsByUser returns all jobs submitted by a user, newest first.
	ListJobsByUser(ctx context.Context, userID string) ([]*core.IngestionJob, error)

	// Close releases resources held by the repository.
	Close() error
}
