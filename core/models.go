package core

import (
	"time"
)

// ID is a unique identifier for domain entities.
// It is generated using content-based hashing or database sequences.
type ID uint64

// Source identifies the messaging platform a message was exported from.
// It is a closed set: adding a platform means adding a constant here and
// teaching the export parser about its format.
type Source int

const (
	// SourceWhatsApp represents a WhatsApp chat export.
	SourceWhatsApp Source = iota + 1
	// SourceTelegram represents a Telegram chat export.
	SourceTelegram
	// SourceManual represents messages entered directly, outside any export.
	SourceManual
)

// String returns the wire name of the source.
func (s Source) String() string {
	switch s {
	case SourceWhatsApp:
		return "whatsapp"
	case SourceTelegram:
		return "telegram"
	case SourceManual:
		return "manual"
	default:
		return "unknown"
	}
}

// RawMessage is a single parsed entry from a chat export.
// It is immutable once emitted by the parser and ordered by Timestamp
// within its conversation.
type RawMessage struct {
	ConversationID string
	Sender         string
	Recipient      string   // Set for 1:1 conversations
	Recipients     []string // Set for group conversations
	Timestamp      time.Time
	Content        string
	Source         Source
}

// Message is a persisted chat message owned by a tenant.
// Never mutated after creation.
type Message struct {
	Id             ID
	UserID         string
	ConversationID string
	Sender         string
	Recipient      string
	Recipients     []string
	Timestamp      time.Time
	Content        string
	Source         Source
	InsertedAt     time.Time
}

// Chunk is a grouped span of consecutive messages treated as one
// embeddable unit. Chunks are derived: only their text and embedding are
// persisted, owned by the ingestion run that created them.
type Chunk struct {
	ConversationID string
	Participants   []string
	Start          time.Time
	End            time.Time
	Text           string
	MessageIds     []ID // Ordered member messages, for traceability
}

// EmbeddingKind distinguishes what a stored vector represents.
type EmbeddingKind int

const (
	// EmbeddingKindChunk is an embedding of a chunk of conversation text.
	EmbeddingKindChunk EmbeddingKind = iota + 1
	// EmbeddingKindSummary is an embedding of a conversation summary.
	EmbeddingKindSummary
)

// Embedding is a persisted vector with its source text.
// Vector and Text are immutable after creation; updates create a new row.
type Embedding struct {
	Id               ID
	UserID           string
	ConversationID   string
	Kind             EmbeddingKind
	Vector           []float32
	Text             string
	MessageIds       []ID      // Member messages, empty for summaries
	MessageTimestamp time.Time // Most recent member message, used for ranking ties
	InsertedAt       time.Time
}

// JobStatus is the state of an ingestion job.
type JobStatus int

const (
	// JobPending is the state at creation, before the pipeline starts.
	JobPending JobStatus = iota + 1
	// JobRunning means the pipeline is executing.
	JobRunning
	// JobCompleted is terminal: the pipeline finished without an unrecoverable error.
	JobCompleted
	// JobFailed is terminal: an unrecoverable error occurred or the job was canceled.
	JobFailed
)

// String returns the wire name of the status.
func (s JobStatus) String() string {
	switch s {
	case JobPending:
		return "pending"
	case JobRunning:
		return "running"
	case JobCompleted:
		return "completed"
	case JobFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions are permitted.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// JobProgress holds the monotonically non-decreasing counters of an
// ingestion run. Persisted as a JSON document alongside the job.
type JobProgress struct {
	MessagesCreated   int64 `json:"messages_created"`
	ChunksCreated     int64 `json:"chunks_created"`
	EmbeddingsCreated int64 `json:"embeddings_created"`
	SummariesCreated  int64 `json:"summaries_created"`
}

// IngestionJob is the durable record of one ingestion run.
// Mutated only by the ingestion manager.
type IngestionJob struct {
	Id             string
	UserID         string
	ConversationID string // Empty means "all conversations"
	Status         JobStatus
	Progress       JobProgress
	Error          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// SimilarityMatch is one result of a vector search: an embedding and its
// cosine distance from the query (lower = closer).
type SimilarityMatch struct {
	Embedding *Embedding
	Distance  float32
}
