package projection

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"courier/directory"
	"courier/domain"
	"courier/domain/event"
	"courier/errors"
	"courier/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type nopPublisher struct{}

func (nopPublisher) Publish(_ event.DomainEvent) {}

func newTestResolver(t *testing.T, users ...domain.User) (*Resolver, repositories.MessageRepository) {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repository := repositories.NewMessageRepository(db, slog.Default(), nil)
	dir := directory.NewMemoryDirectory(users...)
	resolver := NewResolver(repository, dir, nopPublisher{}, slog.Default(), 2, time.Millisecond)
	return resolver, repository
}

func user(id string) domain.User {
	return domain.User{ID: id, FirstName: id}
}

func Test_Ranked_Buckets_Unread_Then_Recency_Then_New_People(t *testing.T) {
	req := require.New(t)
	resolver, repository := newTestResolver(t,
		user("alice"), user("bob"), user("carol"), user("dave"), user("eve"))
	at := time.Now().UTC()

	// Given an older conversation with dave and a fresher one with carol
	req.NoError(repository.Append(domain.Message{
		ID: uuid.New(), SenderID: "dave", ReceiverID: "bob", Content: "old", CreatedAt: at,
	}))
	req.NoError(repository.Append(domain.Message{
		ID: uuid.New(), SenderID: "bob", ReceiverID: "carol", Content: "new", CreatedAt: at.Add(time.Minute),
	}))

	// When ranking with dave unread
	ranked, err := resolver.Ranked(context.Background(), "bob", map[string]struct{}{"dave": {}})
	req.NoError(err)

	// Then: unread first, then recency, then directory users by id
	req.Equal([]string{"dave", "carol", "alice", "eve"}, ranked)
}

func Test_Ranked_Without_Directory_Still_Ranks_Known_Partners(t *testing.T) {
	req := require.New(t)
	resolver, repository := newTestResolver(t) // empty directory
	at := time.Now().UTC()

	req.NoError(repository.Append(domain.Message{
		ID: uuid.New(), SenderID: "alice", ReceiverID: "bob", Content: "hi", CreatedAt: at,
	}))

	ranked, err := resolver.Ranked(context.Background(), "bob", nil)
	req.NoError(err)
	req.Equal([]string{"alice"}, ranked)
}

func Test_EnsureConversation_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	resolver, _ := newTestResolver(t, user("alice"), user("bob"))
	ctx := context.Background()

	// When ensuring the same pair twice from both sides
	first, err := resolver.EnsureConversation(ctx, "alice", "bob")
	req.NoError(err)
	second, err := resolver.EnsureConversation(ctx, "bob", "alice")
	req.NoError(err)

	// Then both handles reference the same earliest message
	req.Equal(first.EarliestID, second.EarliestID)
	req.Equal(first.Pair, second.Pair)
}

func Test_EnsureConversation_Reuses_Existing_Earliest_Message(t *testing.T) {
	req := require.New(t)
	resolver, repository := newTestResolver(t, user("alice"), user("bob"))
	ctx := context.Background()

	// Given a real message already exchanged
	existing := domain.Message{
		ID: uuid.New(), SenderID: "alice", ReceiverID: "bob",
		Content: "hello", CreatedAt: time.Now().UTC(),
	}
	req.NoError(repository.Append(existing))

	// Then no seed is inserted and the handle points at it
	handle, err := resolver.EnsureConversation(ctx, "bob", "alice")
	req.NoError(err)
	req.Equal(existing.ID, handle.EarliestID)

	messages, _, err := repository.ListBetween("alice", "bob", nil)
	req.NoError(err)
	req.Len(messages, 1)
}

func Test_EnsureConversation_Seeds_The_Partner_List(t *testing.T) {
	req := require.New(t)
	resolver, repository := newTestResolver(t, user("alice"), user("bob"))

	_, err := resolver.EnsureConversation(context.Background(), "alice", "bob")
	req.NoError(err)

	partners, err := repository.Partners("alice")
	req.NoError(err)
	req.Equal([]string{"bob"}, partners)
}

func Test_EnsureConversation_Rejects_Unknown_Receiver_And_Self(t *testing.T) {
	req := require.New(t)
	resolver, _ := newTestResolver(t, user("alice"))
	ctx := context.Background()

	_, err := resolver.EnsureConversation(ctx, "alice", "ghost")
	req.ErrorIs(err, errors.ErrUserNotFound)

	_, err = resolver.EnsureConversation(ctx, "alice", "alice")
	req.ErrorIs(err, errors.ErrSelfMessage)
}
