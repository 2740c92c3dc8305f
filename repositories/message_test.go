package repositories

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"courier/domain"
	"courier/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestRepository(t *testing.T, limit *int) MessageRepository {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewMessageRepository(db, slog.Default(), limit)
}

func message(sender, receiver, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:         uuid.New(),
		SenderID:   sender,
		ReceiverID: receiver,
		Content:    content,
		CreatedAt:  at,
	}
}

func Test_Append_Then_List_Contains_The_Message_Unread(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)
	at := time.Now().UTC()

	// When a message is appended
	sent := message("alice", "bob", "hello", at)
	req.NoError(repository.Append(sent))

	// Then listing the pair returns exactly that message, unread
	fetched, cursor, err := repository.ListBetween("alice", "bob", nil)
	req.NoError(err)
	req.Nil(cursor)
	req.Len(fetched, 1)
	req.Equal(sent.ID, fetched[0].ID)
	req.Equal("hello", fetched[0].Content)
	req.False(fetched[0].Read)
	req.False(fetched[0].Deleted)
}

func Test_List_Merges_Both_Directions_In_Total_Order(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)
	at := time.Now().UTC()

	// Given interleaved sends in both directions, appended out of order
	m1 := message("alice", "bob", "first", at)
	m2 := message("bob", "alice", "second", at.Add(1*time.Minute))
	m3 := message("alice", "bob", "third", at.Add(2*time.Minute))
	for _, m := range []domain.Message{m3, m1, m2} {
		req.NoError(repository.Append(m))
	}

	// Then the merged sequence is ordered by (created_at, id) only
	fetched, _, err := repository.ListBetween("bob", "alice", nil)
	req.NoError(err)
	req.Len(fetched, 3)
	req.Equal([]uuid.UUID{m1.ID, m2.ID, m3.ID},
		[]uuid.UUID{fetched[0].ID, fetched[1].ID, fetched[2].ID})
}

func Test_List_Pagination_Restarts_From_Cursor(t *testing.T) {
	req := require.New(t)
	limit := 4
	repository := newTestRepository(t, &limit)
	at := time.Now().UTC()

	var sent []domain.Message
	for i := 0; i < 10; i++ {
		m := message("alice", "bob", "msg", at.Add(time.Duration(i)*time.Second))
		sent = append(sent, m)
		req.NoError(repository.Append(m))
	}

	// When paging through the conversation
	var collected []domain.Message
	var cursor *string
	for {
		page, next, err := repository.ListBetween("alice", "bob", cursor)
		req.NoError(err)
		collected = append(collected, page...)
		if next == nil {
			break
		}
		cursor = next
	}

	// Then every message arrives exactly once, in order
	req.Len(collected, len(sent))
	for i, m := range sent {
		req.Equal(m.ID, collected[i].ID)
	}
}

func Test_Delete_Tombstones_And_Preserves_Relative_Order(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)
	at := time.Now().UTC()

	// Given three messages from alice to bob
	m1 := message("alice", "bob", "one", at)
	m2 := message("alice", "bob", "two", at.Add(time.Second))
	m3 := message("alice", "bob", "three", at.Add(2*time.Second))
	for _, m := range []domain.Message{m1, m2, m3} {
		req.NoError(repository.Append(m))
	}

	// When the sender deletes the second one
	deleted, err := repository.Delete(m2.ID, "alice")
	req.NoError(err)
	req.True(deleted.Deleted)

	// Then the list keeps 1 and 3 in their original order
	fetched, _, err := repository.ListBetween("alice", "bob", nil)
	req.NoError(err)
	req.Len(fetched, 2)
	req.Equal(m1.ID, fetched[0].ID)
	req.Equal(m3.ID, fetched[1].ID)

	// And the id stays addressable as a tombstone
	tombstone, err := repository.GetByID(m2.ID)
	req.NoError(err)
	req.True(tombstone.Deleted)
	req.Equal("two", tombstone.Content)
}

func Test_Delete_Requires_The_Sender(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)

	m := message("alice", "bob", "mine", time.Now().UTC())
	req.NoError(repository.Append(m))

	// The receiver cannot delete
	_, err := repository.Delete(m.ID, "bob")
	req.ErrorIs(err, errors.ErrUnauthorized)

	// An unknown id is not found
	_, err = repository.Delete(uuid.New(), "alice")
	req.ErrorIs(err, errors.ErrMessageNotFound)

	// A second delete of the same id is not found either
	_, err = repository.Delete(m.ID, "alice")
	req.NoError(err)
	_, err = repository.Delete(m.ID, "alice")
	req.ErrorIs(err, errors.ErrMessageNotFound)
}

func Test_MarkConversationRead_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)
	at := time.Now().UTC()

	// Given two unread messages from alice and one already-read reply
	req.NoError(repository.Append(message("alice", "bob", "one", at)))
	req.NoError(repository.Append(message("alice", "bob", "two", at.Add(time.Second))))
	req.NoError(repository.Append(message("bob", "alice", "reply", at.Add(2*time.Second))))

	// When bob opens the conversation
	count, err := repository.MarkConversationRead("bob", "alice")
	req.NoError(err)
	req.Equal(2, count)

	// Then an immediate second call transitions nothing
	count, err = repository.MarkConversationRead("bob", "alice")
	req.NoError(err)
	req.Equal(0, count)

	// And alice's own unread reply was not touched
	senders, err := repository.UnreadSenders("alice")
	req.NoError(err)
	req.Contains(senders, "bob")
}

func Test_MarkConversationRead_Concurrent_Sessions_Count_Once(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)

	// Given exactly one unread message for bob
	req.NoError(repository.Append(message("alice", "bob", "hello", time.Now().UTC())))

	// When two sessions of bob race on the same batch
	var wg sync.WaitGroup
	counts := make([]int, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			count, err := repository.MarkConversationRead("bob", "alice")
			require.NoError(t, err)
			counts[i] = count
		}(i)
	}
	wg.Wait()

	// Then exactly one call reports the transition
	req.Equal(1, counts[0]+counts[1])
}

func Test_UnreadSenders_Never_Contains_Read_Or_Deleted_Counterparts(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)
	at := time.Now().UTC()

	// Given an unread message from alice and one from carol
	fromAlice := message("alice", "bob", "hi", at)
	req.NoError(repository.Append(fromAlice))
	req.NoError(repository.Append(message("carol", "bob", "hey", at.Add(time.Second))))

	senders, err := repository.UnreadSenders("bob")
	req.NoError(err)
	req.Len(senders, 2)

	// When bob reads alice's conversation
	_, err = repository.MarkConversationRead("bob", "alice")
	req.NoError(err)

	// Then alice drops out of the unread set
	senders, err = repository.UnreadSenders("bob")
	req.NoError(err)
	req.NotContains(senders, "alice")
	req.Contains(senders, "carol")
}

func Test_UnreadSenders_Deleted_Unread_Message_Leaves_No_Stale_Entry(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)

	// Given a single unread message that the sender then deletes
	m := message("alice", "bob", "oops", time.Now().UTC())
	req.NoError(repository.Append(m))
	_, err := repository.Delete(m.ID, "alice")
	req.NoError(err)

	// Then the full re-derivation holds no stale entry for alice
	senders, err := repository.UnreadSenders("bob")
	req.NoError(err)
	req.Empty(senders)
}

func Test_Partners_Ordered_By_Most_Recent_Contact(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)
	at := time.Now().UTC()

	// Given conversations with carol (old), dave (middle), alice (new),
	// with traffic in both directions
	req.NoError(repository.Append(message("bob", "carol", "old", at)))
	req.NoError(repository.Append(message("dave", "bob", "mid", at.Add(time.Minute))))
	req.NoError(repository.Append(message("carol", "bob", "older reply", at.Add(30*time.Second))))
	req.NoError(repository.Append(message("bob", "alice", "new", at.Add(2*time.Minute))))

	partners, err := repository.Partners("bob")
	req.NoError(err)
	req.Equal([]string{"alice", "dave", "carol"}, partners)
}

func Test_Partners_Survive_Full_Tombstoning(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)

	// Given a pair whose only message gets deleted
	m := message("bob", "carol", "gone", time.Now().UTC())
	req.NoError(repository.Append(m))
	_, err := repository.Delete(m.ID, "bob")
	req.NoError(err)

	// Then the conversation still appears in the partner list
	partners, err := repository.Partners("bob")
	req.NoError(err)
	req.Equal([]string{"carol"}, partners)
}

func Test_EarliestMessage_Is_Stable_Across_Deletion(t *testing.T) {
	req := require.New(t)
	repository := newTestRepository(t, nil)
	at := time.Now().UTC()

	first := message("alice", "bob", "first", at)
	req.NoError(repository.Append(first))
	req.NoError(repository.Append(message("bob", "alice", "second", at.Add(time.Second))))

	// When the earliest message is tombstoned
	_, err := repository.Delete(first.ID, "alice")
	req.NoError(err)

	// Then it still anchors the conversation handle
	earliest, err := repository.EarliestMessage("bob", "alice")
	req.NoError(err)
	req.Equal(first.ID, earliest.ID)
}
