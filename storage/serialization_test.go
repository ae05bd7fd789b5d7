package storage

import (
	"testing"
	"time"

	"github.com/keepsake-ai/keepsake/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalID_RoundTrip(t *testing.T) {
	for _, id := range []core.ID{0, 1, 42, 1<<63 + 7} {
		data := MarshalID(id)
		require.Len(t, data, 8)

		got, err := UnmarshalID(data)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestMarshalID_SortOrder(t *testing.T) {
	// Big-endian encoding must preserve numeric order under
	// lexicographic comparison, since index keys rely on it.
	a := MarshalID(1)
	b := MarshalID(256)
	c := MarshalID(1 << 40)

	assert.Less(t, string(a), string(b))
	assert.Less(t, string(b), string(c))
}

func TestUnmarshalID_Truncated(t *testing.T) {
	_, err := UnmarshalID([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}

func TestMessage_RoundTrip(t *testing.T) {
	msg := &core.Message{
		Id:             7,
		UserID:         "user-1",
		ConversationID: "family",
		Sender:         "Alice",
		Recipient:      "Bob",
		Timestamp:      time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC),
		Content:        "¡Feliz año! 🎉 line one\nline two",
		Source:         core.SourceWhatsApp,
		InsertedAt:     time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}

	data, err := MarshalMessage(msg)
	require.NoError(t, err)

	got, err := UnmarshalMessage(data)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

func TestEmbedding_RoundTrip(t *testing.T) {
	emb := &core.Embedding{
		Id:               3,
		UserID:           "user-1",
		ConversationID:   "family",
		Kind:             core.EmbeddingKindChunk,
		Vector:           []float32{0.25, -0.5, 0.75},
		Text:             "Alice: hello\nBob: hi",
		MessageIds:       []core.ID{1, 2},
		MessageTimestamp: time.Date(2024, 3, 1, 9, 31, 0, 0, time.UTC),
		InsertedAt:       time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC),
	}

	data, err := MarshalEmbedding(emb)
	require.NoError(t, err)

	got, err := UnmarshalEmbedding(data)
	require.NoError(t, err)
	assert.Equal(t, emb, got)
}

func TestJob_RoundTrip(t *testing.T) {
	job := &core.IngestionJob{
		Id:             "550e8400-e29b-41d4-a716-446655440000",
		UserID:         "user-1",
		ConversationID: "family",
		Status:         core.JobRunning,
		Progress: core.JobProgress{
			MessagesCreated:   12,
			ChunksCreated:     3,
			EmbeddingsCreated: 3,
			SummariesCreated:  1,
		},
		CreatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2024, 3, 1, 9, 5, 0, 0, time.UTC),
	}

	data, err := MarshalJob(job)
	require.NoError(t, err)

	got, err := UnmarshalJob(data)
	require.NoError(t, err)
	assert.Equal(t, job, got)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := UnmarshalMessage([]byte("not json"))
	assert.ErrorIs(t, err, ErrSerializationFailed)

	_, err = UnmarshalJob([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, ErrSerializationFailed)
}
