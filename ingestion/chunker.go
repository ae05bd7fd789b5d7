package ingestion

import (
	"fmt"
	"strings"
	"time"

	"github.com/keepsake-ai/keepsake/core"
)

const (
	// DefaultChunkMaxChars is the character budget of one chunk.
	DefaultChunkMaxChars = 2000

	// DefaultIdleGap is the silence between consecutive messages that
	// starts a new chunk: a long pause usually means the topic changed.
	DefaultIdleGap = 30 * time.Minute
)

// chunkTimeLayout is the timestamp format used in chunk text lines.
const chunkTimeLayout = "2006-01-02 15:04"

// ChunkConfig holds chunk boundary tuning.
type ChunkConfig struct {
	// MaxChars is the character budget of one chunk's text. A single
	// message longer than the budget becomes a chunk of its own.
	MaxChars int

	// IdleGap starts a new chunk when consecutive messages are further
	// apart than this.
	IdleGap time.Duration
}

// DefaultChunkConfig returns the default chunk boundary tuning.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxChars: DefaultChunkMaxChars,
		IdleGap:  DefaultIdleGap,
	}
}

// Chunker groups consecutive messages of one conversation into
// embeddable chunks.
type Chunker struct {
	config ChunkConfig
}

// NewChunker creates a chunker. Zero config fields fall back to defaults.
func NewChunker(config ChunkConfig) *Chunker {
	if config.MaxChars <= 0 {
		config.MaxChars = DefaultChunkMaxChars
	}
	if config.IdleGap <= 0 {
		config.IdleGap = DefaultIdleGap
	}
	return &Chunker{config: config}
}

// Chunk groups messages into chunks. Messages must belong to one
// conversation and be ordered by timestamp ascending; the chunker
// preserves that order. A new chunk starts when adding a message would
// exceed the character budget, or when the gap since the previous
// message reaches the idle gap.
func (c *Chunker) Chunk(messages []*core.Message) []*core.Chunk {
	if len(messages) == 0 {
		return nil
	}

	var chunks []*core.Chunk
	var current *builder

	for i, msg := range messages {
		line := formatChunkLine(msg)

		startNew := current == nil
		if !startNew && msg.Timestamp.Sub(messages[i-1].Timestamp) >= c.config.IdleGap {
			startNew = true
		}
		if !startNew && current.length()+len(line)+1 > c.config.MaxChars {
			startNew = true
		}

		if startNew {
			if current != nil {
				chunks = append(chunks, current.build())
			}
			current = newBuilder(msg.ConversationID)
		}
		current.add(msg, line)
	}
	chunks = append(chunks, current.build())

	return chunks
}

// builder accumulates one chunk.
type builder struct {
	conversationID string
	lines          []string
	size           int
	participants   []string
	seen           map[string]struct{}
	start, end     time.Time
	messageIds     []core.ID
}

func newBuilder(conversationID string) *builder {
	return &builder{
		conversationID: conversationID,
		seen:           make(map[string]struct{}),
	}
}

func (b *builder) length() int {
	return b.size
}

func (b *builder) add(msg *core.Message, line string) {
	if len(b.lines) > 0 {
		b.size++ // newline joining lines
	}
	b.lines = append(b.lines, line)
	b.size += len(line)

	if _, ok := b.seen[msg.Sender]; !ok {
		b.seen[msg.Sender] = struct{}{}
		b.participants = append(b.participants, msg.Sender)
	}
	if b.start.IsZero() {
		b.start = msg.Timestamp
	}
	b.end = msg.Timestamp
	b.messageIds = append(b.messageIds, msg.Id)
}

func (b *builder) build() *core.Chunk {
	return &core.Chunk{
		ConversationID: b.conversationID,
		Participants:   b.participants,
		Start:          b.start,
		End:            b.end,
		Text:           strings.Join(b.lines, "\n"),
		MessageIds:     b.messageIds,
	}
}

// formatChunkLine renders one message as a chunk text line.
func formatChunkLine(msg *core.Message) string {
	return fmt.Sprintf("[%s] %s: %s", msg.Timestamp.UTC().Format(chunkTimeLayout), msg.Sender, msg.Content)
}
