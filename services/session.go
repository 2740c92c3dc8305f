// Package services composes the store, projections, realtime channel and
// moderation into the session façade the UI layer consumes.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"courier/auth"
	"courier/contract"
	"courier/directory"
	"courier/domain"
	"courier/domain/event"
	"courier/errors"
	"courier/moderation"
	"courier/projection"
	"courier/repositories"
	"courier/search"

	"github.com/google/uuid"
)

type SessionState int32

const (
	StateIdle SessionState = iota
	StateLoading
	StateReady
	StateSending
	StateError
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Broker is the realtime surface the session controller needs:
// publishing store-change notifications and managing per-identity
// subscriptions.
type Broker interface {
	contract.Publisher
	Subscribe(userID string, sink contract.EventSink) contract.SubscriptionHandle
	Unsubscribe(handle contract.SubscriptionHandle)
}

// SessionService opens messaging sessions and exposes the two read-only
// query surfaces of the core.
type SessionService struct {
	log        *slog.Logger
	repository repositories.IMessageRepository
	directory  directory.IDirectory
	broker     Broker
	tracker    *projection.UnreadTracker
	resolver   *projection.Resolver
	receipts   *ReadReceiptManager
	masker     moderation.Masker
	tokens     auth.TokenManager
	index      *search.Index
	bufferSize int
}

func NewSessionService(log *slog.Logger, repository repositories.IMessageRepository,
	dir directory.IDirectory, broker Broker, tracker *projection.UnreadTracker,
	resolver *projection.Resolver, receipts *ReadReceiptManager,
	masker moderation.Masker, tokens auth.TokenManager, index *search.Index,
	bufferSize int) *SessionService {
	return &SessionService{
		log:        log,
		repository: repository,
		directory:  dir,
		broker:     broker,
		tracker:    tracker,
		resolver:   resolver,
		receipts:   receipts,
		masker:     masker,
		tokens:     tokens,
		index:      index,
		bufferSize: bufferSize,
	}
}

// UnreadCounterparts re-derives the owner's unread set. Exposed to the
// UI layer next to the session operations.
func (s *SessionService) UnreadCounterparts(owner string) (map[string]struct{}, error) {
	return s.tracker.Refresh(owner)
}

// ConversationPartners returns the owner's ranked conversation list:
// unread first, then known partners by recency, then remaining directory
// users.
func (s *SessionService) ConversationPartners(ctx context.Context, owner string) ([]string, error) {
	unread, err := s.tracker.Refresh(owner)
	if err != nil {
		return nil, err
	}
	return s.resolver.Ranked(ctx, owner, unread)
}

// OpenSession verifies the platform token, resolves the owner identity
// and subscribes the session to the realtime channel. The subscription
// replaces any earlier one for the same identity and is torn down by
// Close.
func (s *SessionService) OpenSession(ctx context.Context, token string) (*Session, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}
	owner, err := s.directory.CurrentUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	session := &Session{
		service: s,
		owner:   owner,
		log:     s.log.With("owner", owner.ID),
		events:  make(chan event.DomainEvent, s.bufferSize),
	}
	session.setState(StateLoading)

	loopCtx, cancel := context.WithCancel(context.Background())
	session.cancel = cancel
	session.handle = s.broker.Subscribe(owner.ID, sessionSink{session: session})

	if _, err := s.tracker.Refresh(owner.ID); err != nil {
		s.broker.Unsubscribe(session.handle)
		cancel()
		return nil, err
	}

	go session.reconcile(loopCtx)
	session.setState(StateReady)
	return session, nil
}

// Session is one open messaging session of an owner identity. Several
// sessions may exist for the same identity (tabs, devices); nothing here
// coordinates them beyond the store's own conditional updates.
type Session struct {
	service *SessionService
	owner   domain.User
	log     *slog.Logger
	handle  contract.SubscriptionHandle
	events  chan event.DomainEvent
	cancel  context.CancelFunc
	state   atomic.Int32
	closed  atomic.Bool

	mu       sync.Mutex
	selected string
	viewSeq  uint64
	view     []domain.Message
}

// sessionSink feeds fanout deliveries into the session's reconciliation
// loop. A full buffer drops the event; the next delivery or explicit
// operation re-derives the same state.
type sessionSink struct {
	session *Session
}

func (s sessionSink) Consume(_ context.Context, e event.DomainEvent) error {
	select {
	case s.session.events <- e:
	default:
		s.session.log.Debug("Session event buffer full, dropping trigger")
	}
	return nil
}

func (s *Session) Owner() domain.User { return s.owner }

func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

func (s *Session) setState(state SessionState) {
	s.state.Store(int32(state))
}

// ConversationView returns a copy of the currently selected
// conversation's messages.
func (s *Session) ConversationView() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Message(nil), s.view...)
}

// RecentMessages lists the visible messages between the owner and the
// counterpart, ascending, restartable through the returned cursor.
func (s *Session) RecentMessages(counterpart string, cursor *string) ([]domain.Message, *string, error) {
	if s.closed.Load() {
		return nil, nil, errors.ErrSessionClosed
	}
	return s.service.repository.ListBetween(s.owner.ID, counterpart, cursor)
}

// SendMessage validates and persists one outgoing message, applies it
// optimistically to the local view and notifies both participants. A
// failure is surfaced, never retried, so the caller can keep the typed
// content and resend explicitly.
func (s *Session) SendMessage(ctx context.Context, counterpart, content string) (domain.Message, error) {
	if s.closed.Load() {
		return domain.Message{}, errors.ErrSessionClosed
	}

	cmd := domain.SendMessageCommand{SenderID: s.owner.ID, ReceiverID: counterpart, Content: content}
	if err := cmd.Validate(); err != nil {
		return domain.Message{}, err
	}
	exists, err := s.service.directory.Exists(ctx, counterpart)
	if err != nil {
		return domain.Message{}, err
	}
	if !exists {
		return domain.Message{}, errors.ErrUserNotFound
	}

	s.setState(StateSending)

	masked, matched := s.service.masker.Mask(content)
	if len(matched) > 0 {
		s.log.Info("Masked banned terms in outgoing message",
			"terms", len(matched), "language", moderation.Language(content))
	}

	message := domain.Message{
		ID:         uuid.New(),
		SenderID:   s.owner.ID,
		ReceiverID: counterpart,
		Content:    masked,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.service.repository.Append(message); err != nil {
		s.setState(StateError)
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrUnavailable, err)
	}

	s.applyOptimistic(message)
	s.service.broker.Publish(event.MessageCreated{
		MessageID:  message.ID,
		SenderID:   message.SenderID,
		ReceiverID: message.ReceiverID,
		At:         message.CreatedAt,
	})

	s.setState(StateReady)
	return message, nil
}

// DeleteMessage tombstones one of the owner's own messages. The local
// view is only touched after the store accepted the delete, so a failed
// delete leaves the message visible.
func (s *Session) DeleteMessage(messageID uuid.UUID) error {
	if s.closed.Load() {
		return errors.ErrSessionClosed
	}

	deleted, err := s.service.repository.Delete(messageID, s.owner.ID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	for i, m := range s.view {
		if m.ID == messageID {
			s.view = append(s.view[:i], s.view[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.service.broker.Publish(event.MessageDeleted{
		MessageID:  deleted.ID,
		SenderID:   deleted.SenderID,
		ReceiverID: deleted.ReceiverID,
		At:         time.Now().UTC(),
	})
	return nil
}

// SelectConversation opens the conversation with counterpart: transitions
// its unread messages in one batch, then loads the pair's messages. Late
// responses of an earlier selection are discarded via the view sequence.
func (s *Session) SelectConversation(counterpart string) ([]domain.Message, error) {
	if s.closed.Load() {
		return nil, errors.ErrSessionClosed
	}

	s.mu.Lock()
	s.viewSeq++
	seq := s.viewSeq
	s.selected = counterpart
	s.mu.Unlock()

	if _, err := s.service.receipts.MarkRead(s.owner.ID, counterpart); err != nil {
		return nil, err
	}

	page, _, err := s.service.repository.ListBetween(s.owner.ID, counterpart, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.viewSeq == seq {
		s.view = page
	}
	s.mu.Unlock()

	// The batch transition changed read state; re-derive the unread set.
	_, _ = s.service.tracker.Refresh(s.owner.ID)
	return page, nil
}

// UnreadCounterparts re-derives the owner's unread set.
func (s *Session) UnreadCounterparts() (map[string]struct{}, error) {
	if s.closed.Load() {
		return nil, errors.ErrSessionClosed
	}
	return s.service.tracker.Refresh(s.owner.ID)
}

// ConversationPartners returns the owner's ranked conversation list.
func (s *Session) ConversationPartners(ctx context.Context) ([]string, error) {
	if s.closed.Load() {
		return nil, errors.ErrSessionClosed
	}
	return s.service.ConversationPartners(ctx, s.owner.ID)
}

// StartConversation ensures the pair with counterpart exists and returns
// its stable handle.
func (s *Session) StartConversation(ctx context.Context, counterpart string) (projection.ConversationHandle, error) {
	if s.closed.Load() {
		return projection.ConversationHandle{}, errors.ErrSessionClosed
	}
	return s.service.resolver.EnsureConversation(ctx, s.owner.ID, counterpart)
}

// Search finds messages of the conversation with counterpart matching
// the query, newest first.
func (s *Session) Search(ctx context.Context, counterpart, query string, limit int) ([]uuid.UUID, error) {
	if s.closed.Load() {
		return nil, errors.ErrSessionClosed
	}
	return s.service.index.Search(ctx, s.owner.ID, counterpart, query, limit)
}

// Close tears down the realtime subscription and stops the
// reconciliation loop. Events already in flight may still be delivered
// to the sink and are discarded.
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.service.broker.Unsubscribe(s.handle)
	s.cancel()
	s.setState(StateIdle)
}

// reconcile is the single consumer of the session's realtime triggers.
// Every event re-derives: the unread set always, the selected
// conversation when the event touches its pair. The event payload itself
// is never applied.
func (s *Session) reconcile(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-s.events:
			s.applyTrigger(evt)
		}
	}
}

func (s *Session) applyTrigger(evt event.DomainEvent) {
	if _, err := s.service.tracker.Refresh(s.owner.ID); err != nil {
		s.log.Warn("Unread re-derivation failed", "error", err)
	}

	s.mu.Lock()
	selected := s.selected
	seq := s.viewSeq
	s.mu.Unlock()
	if selected == "" {
		return
	}

	participants := evt.Participants()
	pair := domain.PairKey(s.owner.ID, selected)
	if domain.PairKey(participants[0], participants[1]) != pair {
		return
	}

	page, _, err := s.service.repository.ListBetween(s.owner.ID, selected, nil)
	if err != nil {
		s.log.Warn("Conversation re-derivation failed", "error", err)
		return
	}

	// Replacing the view from the store deduplicates the realtime echo
	// of an optimistic send by construction: both carry the same id.
	s.mu.Lock()
	if s.viewSeq == seq && s.selected == selected {
		s.view = page
	}
	s.mu.Unlock()
}

// applyOptimistic inserts a just-sent message into the selected view in
// (created_at, id) position, unless the echo already arrived.
func (s *Session) applyOptimistic(message domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected != message.ReceiverID {
		return
	}
	for _, m := range s.view {
		if m.ID == message.ID {
			return
		}
	}
	s.view = append(s.view, message)
	sort.Slice(s.view, func(i, j int) bool {
		if !s.view[i].CreatedAt.Equal(s.view[j].CreatedAt) {
			return s.view[i].CreatedAt.Before(s.view[j].CreatedAt)
		}
		return s.view[i].ID.String() < s.view[j].ID.String()
	})
}
