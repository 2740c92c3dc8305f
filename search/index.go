// Package search maintains a bluge full-text index over visible
// messages. The index is a derived view fed by the realtime channel;
// losing it never loses data, a rebuild replays the store.
package search

import (
	"context"
	"fmt"
	"sync"

	"courier/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type Index struct {
	mu     sync.Mutex
	writer *bluge.Writer
}

// Open creates or reopens a disk-backed index. An empty path opens an
// in-memory index for tests.
func Open(path string) (*Index, error) {
	var config bluge.Config
	if path == "" {
		config = bluge.InMemoryOnlyConfig()
	} else {
		config = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	return &Index{writer: writer}, nil
}

// IndexMessage upserts one message document; deleted records are removed
// instead so tombstones never match a search.
func (idx *Index) IndexMessage(message domain.Message) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if message.Deleted {
		return idx.writer.Delete(bluge.Identifier(message.ID.String()))
	}

	doc := bluge.NewDocument(message.ID.String()).
		AddField(bluge.NewKeywordField("pair", domain.PairKey(message.SenderID, message.ReceiverID))).
		AddField(bluge.NewTextField("content", message.Content)).
		AddField(bluge.NewDateTimeField("created_at", message.CreatedAt).Sortable())
	return idx.writer.Update(doc.ID(), doc)
}

// Remove drops a message from the index.
func (idx *Index) Remove(messageID uuid.UUID) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.writer.Delete(bluge.Identifier(messageID.String()))
}

// Search returns the ids of the pair's messages matching the query,
// newest first.
func (idx *Index) Search(ctx context.Context, userA, userB, query string, limit int) ([]uuid.UUID, error) {
	reader, err := idx.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	q := bluge.NewBooleanQuery().
		AddMust(bluge.NewTermQuery(domain.PairKey(userA, userB)).SetField("pair")).
		AddMust(bluge.NewMatchQuery(query).SetField("content"))
	request := bluge.NewTopNSearch(limit, q).SortBy([]string{"-created_at"})

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, parseErr := uuid.Parse(string(value)); parseErr == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}

func (idx *Index) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.writer.Close()
}
