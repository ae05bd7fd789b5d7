package badger

import (
	"context"
	"testing"
	"time"

	"github.com/keepsake-ai/keepsake/core"
	"github.com/keepsake-ai/keepsake/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMessage(userID, conversationID, sender, content string, ts time.Time) *core.Message {
	return &core.Message{
		UserID:         userID,
		ConversationID: conversationID,
		Sender:         sender,
		Timestamp:      ts,
		Content:        content,
		Source:         core.SourceWhatsApp,
	}
}

func TestAddMessages_AssignsIDsAndTimestamps(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	inserted, err := repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Alice", "hello", base),
		newTestMessage("user-1", "family", "Bob", "hi", base.Add(time.Minute)),
	)
	require.NoError(t, err)
	require.Len(t, inserted, 2)

	for _, msg := range inserted {
		assert.NotZero(t, msg.Id)
		assert.False(t, msg.InsertedAt.IsZero())
	}
	assert.NotEqual(t, inserted[0].Id, inserted[1].Id)
}

func TestAddMessages_DeduplicatesByIdentity(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	first, err := repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Alice", "hello", ts),
	)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Same identity again: skipped.
	second, err := repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Alice", "hello", ts),
	)
	require.NoError(t, err)
	assert.Empty(t, second)

	// Any field of the identity differing makes it a new message.
	third, err := repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Alice", "hello!", ts),
		newTestMessage("user-1", "family", "Bob", "hello", ts),
		newTestMessage("user-1", "family", "Alice", "hello", ts.Add(time.Second)),
	)
	require.NoError(t, err)
	assert.Len(t, third, 3)

	msgs, err := repo.GetConversation(context.Background(), "user-1", "family")
	require.NoError(t, err)
	assert.Len(t, msgs, 4)
}

func TestAddMessages_DedupScopedToConversationAndUser(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err = repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Alice", "hello", ts),
	)
	require.NoError(t, err)

	// Same identity in another conversation or tenant is not a duplicate.
	inserted, err := repo.AddMessages(context.Background(),
		newTestMessage("user-1", "work", "Alice", "hello", ts),
		newTestMessage("user-2", "family", "Alice", "hello", ts),
	)
	require.NoError(t, err)
	assert.Len(t, inserted, 2)
}

func TestAddMessages_Invalid(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	msg := newTestMessage("", "family", "Alice", "hello", time.Now().UTC())
	_, err = repo.AddMessages(context.Background(), msg)
	assert.ErrorIs(t, err, core.ErrEmptyUserID)
}

func TestGetMessage(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	inserted, err := repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Alice", "hello", time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)),
	)
	require.NoError(t, err)
	require.Len(t, inserted, 1)

	got, err := repo.GetMessage(context.Background(), "user-1", inserted[0].Id)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Content)

	// Same ID under a different tenant does not exist.
	_, err = repo.GetMessage(context.Background(), "user-2", inserted[0].Id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = repo.GetMessage(context.Background(), "user-1", 9999)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestGetConversation_ChronologicalOrder(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	// Insert out of chronological order.
	_, err = repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Bob", "third", base.Add(2*time.Minute)),
		newTestMessage("user-1", "family", "Alice", "first", base),
		newTestMessage("user-1", "family", "Alice", "second", base.Add(time.Minute)),
	)
	require.NoError(t, err)

	msgs, err := repo.GetConversation(context.Background(), "user-1", "family")
	require.NoError(t, err)
	require.Len(t, msgs, 3)

	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)
}

func TestGetConversation_TenantScoped(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err = repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Alice", "mine", ts),
		newTestMessage("user-2", "family", "Eve", "theirs", ts),
	)
	require.NoError(t, err)

	msgs, err := repo.GetConversation(context.Background(), "user-1", "family")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "mine", msgs[0].Content)
}

func TestListConversations(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	_, err = repo.AddMessages(context.Background(),
		newTestMessage("user-1", "family", "Alice", "a", ts),
		newTestMessage("user-1", "family", "Bob", "b", ts.Add(time.Minute)),
		newTestMessage("user-1", "work", "Carol", "c", ts),
		newTestMessage("user-2", "hobby", "Dan", "d", ts),
	)
	require.NoError(t, err)

	convs, err := repo.ListConversations(context.Background(), "user-1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"family", "work"}, convs)

	convs, err = repo.ListConversations(context.Background(), "user-3")
	require.NoError(t, err)
	assert.Empty(t, convs)
}

func TestAddMessages_SeparatorInIDsStaysTenantScoped(t *testing.T) {
	repo, _, _, backend, err := NewMemoryRepositories(4)
	require.NoError(t, err)
	defer backend.Close()
	defer repo.Close()

	ts := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	// (user "a:b", conversation "c") and (user "a", conversation "b:c")
	// join to the same bytes without escaping; the identical message must
	// still land in both tenants.
	first, err := repo.AddMessages(context.Background(),
		newTestMessage("a:b", "c", "Alice", "hello", ts),
	)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := repo.AddMessages(context.Background(),
		newTestMessage("a", "b:c", "Alice", "hello", ts),
	)
	require.NoError(t, err)
	require.Len(t, second, 1, "other tenant's message must not count as a duplicate")

	msgs, err := repo.GetConversation(context.Background(), "a", "b:c")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
	msgs, err = repo.GetConversation(context.Background(), "a:b", "c")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	// Conversation names come back unescaped.
	convs, err := repo.ListConversations(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"b:c"}, convs)
}
