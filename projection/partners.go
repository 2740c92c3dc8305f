package projection

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"courier/contract"
	"courier/directory"
	"courier/domain"
	"courier/domain/event"
	"courier/errors"
	"courier/repositories"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// seedContent is the greeting stored when a conversation is created
// before any real message exists; content must be non-empty.
const seedContent = "\U0001F44B"

// ConversationHandle references a conversation through its earliest
// message, which stays stable because deletion only tombstones.
type ConversationHandle struct {
	Pair       string
	EarliestID uuid.UUID
	StartedAt  time.Time
}

// Resolver derives the ordered, deduplicated list of a user's
// conversation partners, and owns the idempotent "ensure conversation
// exists" primitive.
type Resolver struct {
	repository repositories.IMessageRepository
	directory  directory.IDirectory
	publisher  contract.Publisher
	log        *slog.Logger
	retries    int
	backoff    time.Duration

	mu       sync.RWMutex
	lastGood map[string][]string
}

func NewResolver(repository repositories.IMessageRepository, dir directory.IDirectory,
	publisher contract.Publisher, log *slog.Logger, retries int, backoff time.Duration) *Resolver {
	return &Resolver{
		repository: repository,
		directory:  dir,
		publisher:  publisher,
		log:        log,
		retries:    retries,
		backoff:    backoff,
		lastGood:   make(map[string][]string),
	}
}

// Partners re-derives the owner's distinct counterparts, most recent
// message first. Transient failures degrade to the last-known-good list.
func (r *Resolver) Partners(owner string) ([]string, error) {
	partners, err := withRetry(r.retries, r.backoff, func() ([]string, error) {
		return r.repository.Partners(owner)
	})
	if err != nil {
		r.log.Warn("Partner refresh failed, serving last-known-good", "owner", owner, "error", err)
		r.mu.RLock()
		cached, ok := r.lastGood[owner]
		r.mu.RUnlock()
		if ok {
			return append([]string(nil), cached...), nil
		}
		return nil, err
	}

	r.mu.Lock()
	r.lastGood[owner] = partners
	r.mu.Unlock()
	return partners, nil
}

// Ranked orders the owner's conversation list into three buckets:
// counterparts with unread messages first, then known partners by
// recency, then the remaining directory users ("new people") in
// lexicographic id order.
func (r *Resolver) Ranked(ctx context.Context, owner string, unread map[string]struct{}) ([]string, error) {
	partners, err := r.Partners(owner)
	if err != nil {
		return nil, err
	}

	withUnread := lo.Filter(partners, func(id string, _ int) bool {
		_, ok := unread[id]
		return ok
	})
	withoutUnread := lo.Filter(partners, func(id string, _ int) bool {
		_, ok := unread[id]
		return !ok
	})

	users, err := r.directory.LookupUsers(ctx, owner)
	if err != nil {
		// The directory being down only hides "new people"; known
		// conversations stay ranked.
		r.log.Warn("Directory lookup failed, ranking known partners only", "owner", owner, "error", err)
		return append(withUnread, withoutUnread...), nil
	}

	known := make(map[string]struct{}, len(partners))
	for _, id := range partners {
		known[id] = struct{}{}
	}
	newPeople := lo.FilterMap(users, func(u domain.User, _ int) (string, bool) {
		_, ok := known[u.ID]
		return u.ID, !ok
	})
	sort.Strings(newPeople)

	ranked := append(withUnread, withoutUnread...)
	return append(ranked, newPeople...), nil
}

// EnsureConversation makes the {sender, receiver} pair exist: when no
// message has ever been exchanged it seeds the pair with a greeting, so
// the pair shows up in Partners. Calling it twice returns handles
// referencing the same earliest message.
func (r *Resolver) EnsureConversation(ctx context.Context, senderID, receiverID string) (ConversationHandle, error) {
	if senderID == receiverID {
		return ConversationHandle{}, errors.ErrSelfMessage
	}
	exists, err := r.directory.Exists(ctx, receiverID)
	if err != nil {
		return ConversationHandle{}, err
	}
	if !exists {
		return ConversationHandle{}, errors.ErrUserNotFound
	}

	earliest, err := r.repository.EarliestMessage(senderID, receiverID)
	if err == nil {
		return handleOf(earliest), nil
	}
	if err != errors.ErrMessageNotFound {
		return ConversationHandle{}, err
	}

	seed := domain.Message{
		ID:         uuid.New(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    seedContent,
		CreatedAt:  time.Now().UTC(),
	}
	if err := r.repository.Append(seed); err != nil {
		return ConversationHandle{}, err
	}
	r.publisher.Publish(event.MessageCreated{
		MessageID:  seed.ID,
		SenderID:   seed.SenderID,
		ReceiverID: seed.ReceiverID,
		At:         seed.CreatedAt,
	})

	// Re-read instead of trusting the local seed: a concurrent session
	// may have seeded first, and the earliest record wins.
	earliest, err = r.repository.EarliestMessage(senderID, receiverID)
	if err != nil {
		return ConversationHandle{}, err
	}
	return handleOf(earliest), nil
}

func handleOf(earliest domain.Message) ConversationHandle {
	return ConversationHandle{
		Pair:       domain.PairKey(earliest.SenderID, earliest.ReceiverID),
		EarliestID: earliest.ID,
		StartedAt:  earliest.CreatedAt,
	}
}
