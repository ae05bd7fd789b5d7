package core

import (
	"encoding/binary"
	"strconv"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// identitySeparator keeps the hashed fields from colliding across their
// boundaries ("ab"+"c" vs "a"+"bc").
const identitySeparator = "\x1f"

// IdentityKey generates a deterministic ID from a message's identity
// triple (sender, timestamp, content) using BLAKE2b hashing.
//
// Two uploads of overlapping history produce identical keys for
// identical messages, which is what the ingestion dedup check relies on.
// The key is tenant-agnostic; storage scopes it per user.
func IdentityKey(sender string, timestamp time.Time, content string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(sender))
	h.Write([]byte(identitySeparator))
	h.Write([]byte(strconv.FormatInt(timestamp.UTC().UnixMicro(), 10)))
	h.Write([]byte(identitySeparator))
	h.Write([]byte(content))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// MessageIdentity returns the identity key for a raw message.
func MessageIdentity(msg *RawMessage) ID {
	return IdentityKey(msg.Sender, msg.Timestamp, msg.Content)
}
