package search

import (
	"context"
	"testing"
	"time"

	"courier/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func indexed(t *testing.T, idx *Index, sender, receiver, content string, at time.Time) domain.Message {
	t.Helper()
	m := domain.Message{
		ID: uuid.New(), SenderID: sender, ReceiverID: receiver,
		Content: content, CreatedAt: at,
	}
	require.NoError(t, idx.IndexMessage(m))
	return m
}

func Test_Search_Matches_Only_The_Pair(t *testing.T) {
	req := require.New(t)
	idx, err := Open("")
	req.NoError(err)
	defer idx.Close()
	at := time.Now().UTC()

	hit := indexed(t, idx, "alice", "bob", "the invoice for the gig", at)
	indexed(t, idx, "carol", "bob", "another invoice entirely", at.Add(time.Second))

	ids, err := idx.Search(context.Background(), "bob", "alice", "invoice", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{hit.ID}, ids)
}

func Test_Search_Returns_Newest_First(t *testing.T) {
	req := require.New(t)
	idx, err := Open("")
	req.NoError(err)
	defer idx.Close()
	at := time.Now().UTC()

	older := indexed(t, idx, "alice", "bob", "payment schedule", at)
	newer := indexed(t, idx, "bob", "alice", "updated payment terms", at.Add(time.Minute))

	ids, err := idx.Search(context.Background(), "alice", "bob", "payment", 10)
	req.NoError(err)
	req.Equal([]uuid.UUID{newer.ID, older.ID}, ids)
}

func Test_Removed_Messages_Stop_Matching(t *testing.T) {
	req := require.New(t)
	idx, err := Open("")
	req.NoError(err)
	defer idx.Close()

	m := indexed(t, idx, "alice", "bob", "delete me", time.Now().UTC())
	req.NoError(idx.Remove(m.ID))

	ids, err := idx.Search(context.Background(), "alice", "bob", "delete", 10)
	req.NoError(err)
	req.Empty(ids)
}
