package badger

import (
	"context"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/storage"
)

// MessageRepository implements storage.MessageRepository for BadgerDB.
type MessageRepository struct {
	backend *Backend
	idSeq   *badger.Sequence
}

var _ storage.MessageRepository = (*MessageRepository)(nil)

// newMessageRepository is an internal constructor returning the concrete type.
func newMessageRepository(backend *Backend) (*MessageRepository, error) {
	idSeq, err := backend.GetSequence(messageIDSeq)
	if err != nil {
		return nil, err
	}

	return &MessageRepository{
		backend: backend,
		idSeq:   idSeq,
	}, nil
}

// NewMessageRepository creates a message repository on the given backend.
//
// Returns storage.MessageRepository interface to enforce abstraction.
func NewMessageRepository(backend *Backend) (storage.MessageRepository, error) {
	return newMessageRepository(backend)
}

// Close releases the ID sequence.
func (r *MessageRepository) Close() error {
	return r.idSeq.Release()
}

// AddMessages persists messages, skipping identity duplicates.
func (r *MessageRepository) AddMessages(ctx context.Context, messages ...*core.Message) ([]*core.Message, error) {
	for _, msg := range messages {
		if err := core.ValidateMessage(msg); err != nil {
			return nil, err
		}
	}

	var inserted []*core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		inserted = inserted[:0]
		for _, msg := range messages {
			identity := core.IdentityKey(msg.Sender, msg.Timestamp, msg.Content)
			identityKey := makeIdentityKey(msg.UserID, msg.ConversationID, identity)

			// Same sender, timestamp, and content in the same
			// conversation means the message was ingested before.
			_, err := tx.Get(identityKey)
			if err == nil {
				continue
			}
			if !errors.Is(err, badger.ErrKeyNotFound) {
				return err
			}

			nextID, err := r.idSeq.Next()
			if err != nil {
				return err
			}
			// BadgerDB sequences can return 0 on first call, so we skip it
			if nextID == 0 {
				nextID, err = r.idSeq.Next()
				if err != nil {
					return err
				}
			}
			msg.Id = core.ID(nextID)
			msg.InsertedAt = time.Now().UTC()

			value, err := storage.MarshalMessage(msg)
			if err != nil {
				return err
			}
			if err := tx.Set(makeMessageKey(msg.UserID, msg.Id), value); err != nil {
				return err
			}
			if err := tx.Set(identityKey, storage.MarshalID(msg.Id)); err != nil {
				return err
			}
			convKey := makeConvKey(msg.UserID, msg.ConversationID, msg.Timestamp, msg.Id)
			if err := tx.Set(convKey, storage.MarshalID(msg.Id)); err != nil {
				return err
			}

			inserted = append(inserted, msg)
		}
		return tx.Commit()
	}, true)

	if err != nil {
		return nil, err
	}
	return inserted, nil
}

// GetMessage retrieves a single message by ID within a user's data.
func (r *MessageRepository) GetMessage(ctx context.Context, userID string, id core.ID) (*core.Message, error) {
	var msg *core.Message
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		msg, err = r.readMessage(tx, makeMessageKey(userID, id))
		return err
	}, false)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, storage.ErrNotFound
	}
	return msg, nil
}

// GetConversation retrieves all messages of one conversation in
// chronological order.
func (r *MessageRepository) GetConversation(ctx context.Context, userID, conversationID string) ([]*core.Message, error) {
	var messages []*core.Message

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = makeConvPrefix(userID, conversationID)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var id core.ID
			err := iter.Item().Value(func(val []byte) error {
				var err error
				id, err = storage.UnmarshalID(val)
				return err
			})
			if err != nil {
				return err
			}

			msg, err := r.readMessage(tx, makeMessageKey(userID, id))
			if err != nil {
				return err
			}
			if msg == nil {
				// Index entry without a record; skip rather than fail the scan.
				continue
			}
			messages = append(messages, msg)
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListConversations returns the distinct conversation IDs a user has
// messages in.
func (r *MessageRepository) ListConversations(ctx context.Context, userID string) ([]string, error) {
	userPrefix := makeConvUserPrefix(userID)
	seen := make(map[string]struct{})
	var conversations []string

	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = userPrefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			// Key layout: prefix + escaped conversation + ":" + 16 binary bytes.
			if len(key) < len(userPrefix)+17 {
				continue
			}
			conv := unescapeSegment(string(key[len(userPrefix) : len(key)-17]))
			if _, ok := seen[conv]; !ok {
				seen[conv] = struct{}{}
				conversations = append(conversations, conv)
			}
		}
		return nil
	}, false)

	if err != nil {
		return nil, err
	}
	return conversations, nil
}

// readMessage reads a message by key. Returns nil without error when
// the key does not exist.
func (r *MessageRepository) readMessage(tx *badger.Txn, key []byte) (*core.Message, error) {
	item, err := tx.Get(key)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var msg *core.Message
	err = item.Value(func(val []byte) error {
		var err error
		msg, err = storage.UnmarshalMessage(val)
		return err
	})
	if err != nil {
		return nil, err
	}
	return msg, nil
}
