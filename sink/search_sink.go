// Package sink contains permanent event consumers attached to the fanout
// worker.
package sink

import (
	"context"
	"log/slog"

	"courier/domain/event"
	"courier/repositories"
	"courier/search"
)

// SearchSink keeps the full-text index in sync with the store. The event
// is only a trigger: the message is re-read from the repository, so a
// duplicate or reordered notification converges to the stored state.
type SearchSink struct {
	index      *search.Index
	repository repositories.IMessageRepository
	log        *slog.Logger
}

func NewSearchSink(index *search.Index, repository repositories.IMessageRepository, log *slog.Logger) *SearchSink {
	return &SearchSink{index: index, repository: repository, log: log}
}

func (s *SearchSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.MessageCreated:
		message, err := s.repository.GetByID(evt.MessageID)
		if err != nil {
			return err
		}
		return s.index.IndexMessage(message)
	case event.MessageDeleted:
		return s.index.Remove(evt.MessageID)
	}
	return nil
}
