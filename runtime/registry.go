package runtime

import (
	"sync"

	"courier/contract"
)

// Registry tracks the single active event sink of each user identity.
//
// A new Subscribe for an identity replaces the previous sink, so a user
// opening a second session never receives duplicate fan-out. Every
// registration gets a sequence number; Unsubscribe only removes the sink
// when the handle still matches, so tearing down a stale session cannot
// evict a newer one.
type Registry struct {
	mu       sync.RWMutex
	seq      uint64
	Sessions map[string]registration
}

type registration struct {
	sink contract.EventSink
	seq  uint64
}

func NewRegistry() *Registry {
	return &Registry{Sessions: make(map[string]registration)}
}

func (r *Registry) Subscribe(userID string, sink contract.EventSink) contract.SubscriptionHandle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.Sessions[userID] = registration{sink: sink, seq: r.seq}
	return contract.SubscriptionHandle{UserID: userID, Seq: r.seq}
}

func (r *Registry) Unsubscribe(handle contract.SubscriptionHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.Sessions[handle.UserID]
	if !ok || current.seq != handle.Seq {
		return
	}
	delete(r.Sessions, handle.UserID)
}

// SinksFor resolves the active sinks of the two participants of an
// event. Identities without an active session are simply skipped; they
// re-derive state on their next session open.
func (r *Registry) SinksFor(participants [2]string) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var activeSinks []contract.EventSink
	for _, participantID := range participants {
		if reg, exists := r.Sessions[participantID]; exists {
			activeSinks = append(activeSinks, reg.sink)
		}
	}
	return activeSinks
}
