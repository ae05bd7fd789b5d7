package ingestion

import (
	"strings"
	"testing"
	"time"

	"github.com/keepsake-ai/keepsake/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chunkMsg(id core.ID, sender, content string, ts time.Time) *core.Message {
	return &core.Message{
		Id:             id,
		UserID:         "user-1",
		ConversationID: "family",
		Sender:         sender,
		Timestamp:      ts,
		Content:        content,
		Source:         core.SourceWhatsApp,
	}
}

func TestChunk_Empty(t *testing.T) {
	c := NewChunker(DefaultChunkConfig())
	assert.Nil(t, c.Chunk(nil))
}

func TestChunk_SingleChunk(t *testing.T) {
	c := NewChunker(DefaultChunkConfig())
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	chunks := c.Chunk([]*core.Message{
		chunkMsg(1, "Alice", "hello", base),
		chunkMsg(2, "Bob", "hi there", base.Add(time.Minute)),
		chunkMsg(3, "Alice", "how are you?", base.Add(2*time.Minute)),
	})
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, "family", chunk.ConversationID)
	assert.Equal(t, []string{"Alice", "Bob"}, chunk.Participants)
	assert.Equal(t, base, chunk.Start)
	assert.Equal(t, base.Add(2*time.Minute), chunk.End)
	assert.Equal(t, []core.ID{1, 2, 3}, chunk.MessageIds)

	lines := strings.Split(chunk.Text, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[2024-03-01 09:00] Alice: hello", lines[0])
	assert.Equal(t, "[2024-03-01 09:01] Bob: hi there", lines[1])
}

func TestChunk_IdleGapStartsNewChunk(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChars: 2000, IdleGap: 30 * time.Minute})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	chunks := c.Chunk([]*core.Message{
		chunkMsg(1, "Alice", "morning", base),
		chunkMsg(2, "Bob", "morning!", base.Add(time.Minute)),
		chunkMsg(3, "Alice", "evening plans?", base.Add(8*time.Hour)),
		chunkMsg(4, "Bob", "dinner at 7", base.Add(8*time.Hour+2*time.Minute)),
	})
	require.Len(t, chunks, 2)

	assert.Equal(t, []core.ID{1, 2}, chunks[0].MessageIds)
	assert.Equal(t, []core.ID{3, 4}, chunks[1].MessageIds)
	assert.Equal(t, base.Add(time.Minute), chunks[0].End)
	assert.Equal(t, base.Add(8*time.Hour), chunks[1].Start)
}

func TestChunk_CharBudgetStartsNewChunk(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChars: 100, IdleGap: time.Hour})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	long := strings.Repeat("x", 60)
	chunks := c.Chunk([]*core.Message{
		chunkMsg(1, "Alice", long, base),
		chunkMsg(2, "Bob", long, base.Add(time.Minute)),
		chunkMsg(3, "Alice", long, base.Add(2*time.Minute)),
	})
	require.Len(t, chunks, 3)

	for i, chunk := range chunks {
		assert.Equal(t, []core.ID{core.ID(i + 1)}, chunk.MessageIds)
	}
}

func TestChunk_OverlongMessageOwnChunk(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxChars: 50, IdleGap: time.Hour})
	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	huge := strings.Repeat("words ", 100)
	chunks := c.Chunk([]*core.Message{
		chunkMsg(1, "Alice", "hi", base),
		chunkMsg(2, "Bob", huge, base.Add(time.Minute)),
		chunkMsg(3, "Alice", "ok", base.Add(2*time.Minute)),
	})
	require.Len(t, chunks, 3)
	assert.Equal(t, []core.ID{2}, chunks[1].MessageIds)
	assert.Contains(t, chunks[1].Text, huge)
}

func TestNewChunker_ZeroConfigUsesDefaults(t *testing.T) {
	c := NewChunker(ChunkConfig{})
	assert.Equal(t, DefaultChunkMaxChars, c.config.MaxChars)
	assert.Equal(t, DefaultIdleGap, c.config.IdleGap)
}
