// Package projection derives read views from the message store.
// Projections hold no authoritative state: every refresh is a full
// re-derivation, so a deleted unread message or a batched read can never
// leave a stale entry, no matter how many sessions write concurrently.
package projection

import (
	"log/slog"
	"sync"
	"time"

	"courier/repositories"
)

// UnreadTracker derives, per owner, the set of counterparts with at
// least one unread message addressed to the owner.
type UnreadTracker struct {
	repository repositories.IMessageRepository
	log        *slog.Logger
	retries    int
	backoff    time.Duration

	mu       sync.RWMutex
	lastGood map[string]map[string]struct{}
}

func NewUnreadTracker(repository repositories.IMessageRepository, log *slog.Logger,
	retries int, backoff time.Duration) *UnreadTracker {
	return &UnreadTracker{
		repository: repository,
		log:        log,
		retries:    retries,
		backoff:    backoff,
		lastGood:   make(map[string]map[string]struct{}),
	}
}

// Refresh recomputes the owner's unread counterpart set from the store.
// Transient failures are retried with backoff, then degrade to the
// last-known-good value instead of blanking the caller's view.
func (t *UnreadTracker) Refresh(owner string) (map[string]struct{}, error) {
	senders, err := withRetry(t.retries, t.backoff, func() (map[string]struct{}, error) {
		return t.repository.UnreadSenders(owner)
	})
	if err != nil {
		t.log.Warn("Unread refresh failed, serving last-known-good", "owner", owner, "error", err)
		if cached, ok := t.cached(owner); ok {
			return cached, nil
		}
		return nil, err
	}

	t.mu.Lock()
	t.lastGood[owner] = senders
	t.mu.Unlock()
	return copySet(senders), nil
}

// Current returns the cached set without touching the store. Absent
// owners get an empty set.
func (t *UnreadTracker) Current(owner string) map[string]struct{} {
	if cached, ok := t.cached(owner); ok {
		return cached
	}
	return make(map[string]struct{})
}

func (t *UnreadTracker) cached(owner string) (map[string]struct{}, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	cached, ok := t.lastGood[owner]
	if !ok {
		return nil, false
	}
	return copySet(cached), true
}

func copySet(set map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(set))
	for k := range set {
		out[k] = struct{}{}
	}
	return out
}
