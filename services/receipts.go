package services

import (
	stderrors "errors"
	"log/slog"
	"time"

	"courier/contract"
	"courier/domain/event"
	"courier/errors"
	"courier/repositories"
)

// ReadReceiptManager transitions a conversation's unread messages to
// read when the owner opens it. One call per conversation-open, never
// per message render.
type ReadReceiptManager struct {
	repository repositories.IMessageRepository
	publisher  contract.Publisher
	log        *slog.Logger
}

func NewReadReceiptManager(repository repositories.IMessageRepository,
	publisher contract.Publisher, log *slog.Logger) *ReadReceiptManager {
	return &ReadReceiptManager{repository: repository, publisher: publisher, log: log}
}

// MarkRead flips every unread message from counterpart to owner in one
// conditional bulk update. 0 is a valid outcome: another session already
// transitioned the batch, or there was nothing to read. A benign
// concurrent-writer conflict is reported as 0, not as an error.
func (r *ReadReceiptManager) MarkRead(owner, counterpart string) (int, error) {
	count, err := r.repository.MarkConversationRead(owner, counterpart)
	if err != nil {
		if stderrors.Is(err, errors.ErrConflict) {
			r.log.Debug("Read transition lost a benign race", "owner", owner, "counterpart", counterpart)
			return 0, nil
		}
		return 0, err
	}
	if count > 0 {
		r.publisher.Publish(event.MessageRead{
			OwnerID:       owner,
			CounterpartID: counterpart,
			Count:         count,
			At:            time.Now().UTC(),
		})
	}
	return count, nil
}
