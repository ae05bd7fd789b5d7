package badger

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/keepsake-ai/keepsake/core"
)

// Key prefixes for different data types. Every message and embedding
// key embeds the owning user ID right after the prefix, so per-tenant
// reads are plain prefix scans and cross-tenant reads are impossible to
// express.
const (
	messagePrefix         = "msgrec"
	messageIdentityPrefix = "msgide"
	messageConvPrefix     = "msgcon"
	messageIDSeq          = "msgrecseq"
	embeddingPrefix       = "embrec"
	embeddingIDSeq        = "embrecseq"
	jobPrefix             = "jobrec"
	jobUserPrefix         = "jobusr"
)

// escapeSegment makes a tenant-supplied ID safe to embed in a composite
// key. The separator only ever appears escaped inside a segment, so
// segment boundaries stay unambiguous: user "a:b" and user "a" with a
// conversation starting "b" produce disjoint keys, and one user's scan
// prefix can never cover another user's keys.
func escapeSegment(s string) string {
	if !strings.ContainsAny(s, `\:`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2)
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' || s[i] == ':' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// unescapeSegment reverses escapeSegment.
func unescapeSegment(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// makeMessageKey generates a key for a message by user and ID.
func makeMessageKey(userID string, id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", messagePrefix, escapeSegment(userID), id))
}

// makeMessagePrefix generates the scan prefix for one user's messages.
func makeMessagePrefix(userID string) []byte {
	return []byte(messagePrefix + ":" + escapeSegment(userID) + ":")
}

// makeIdentityKey generates a key for the message identity index.
// Format: prefix:user:conversation:identity
// The identity hash is written big-endian so the segment has fixed width.
func makeIdentityKey(userID, conversationID string, identity core.ID) []byte {
	prefix := []byte(messageIdentityPrefix + ":" + escapeSegment(userID) + ":" + escapeSegment(conversationID) + ":")
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(identity))
	return buf
}

// makeConvKey generates a composite key for the conversation index.
// Format: prefix:user:conversation:timestamp:id
// Timestamp and ID are big-endian so lexicographic iteration yields
// chronological order with insertion ID as tiebreaker.
func makeConvKey(userID, conversationID string, timestamp time.Time, id core.ID) []byte {
	prefix := makeConvPrefix(userID, conversationID)
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(timestamp.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeConvPrefix generates the scan prefix for one conversation's index.
func makeConvPrefix(userID, conversationID string) []byte {
	return []byte(messageConvPrefix + ":" + escapeSegment(userID) + ":" + escapeSegment(conversationID) + ":")
}

// makeConvUserPrefix generates the scan prefix for all of a user's
// conversation index entries.
func makeConvUserPrefix(userID string) []byte {
	return []byte(messageConvPrefix + ":" + escapeSegment(userID) + ":")
}

// makeEmbeddingKey generates a key for an embedding by user and ID.
func makeEmbeddingKey(userID string, id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%s:%d", embeddingPrefix, escapeSegment(userID), id))
}

// makeEmbeddingPrefix generates the scan prefix for one user's embeddings.
func makeEmbeddingPrefix(userID string) []byte {
	return []byte(embeddingPrefix + ":" + escapeSegment(userID) + ":")
}

// makeJobKey generates a key for a job by its UUID.
func makeJobKey(id string) []byte {
	return []byte(jobPrefix + ":" + id)
}

// makeJobUserKey generates a key for the per-user job index.
// Format: prefix:user:jobID
func makeJobUserKey(userID, jobID string) []byte {
	return []byte(jobUserPrefix + ":" + escapeSegment(userID) + ":" + jobID)
}

// makeJobUserPrefix generates the scan prefix for one user's job index.
func makeJobUserPrefix(userID string) []byte {
	return []byte(jobUserPrefix + ":" + escapeSegment(userID) + ":")
}
