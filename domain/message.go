// Package domain contains core concepts of the direct-messaging system.
// This file defines the Message record and the conversation pair key.
// Messages are immutable after creation; only the read and deleted
// flags may change, and both are monotonic.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message represents one point-to-point message between two users.
type Message struct {
	ID         uuid.UUID // unique identifier
	SenderID   string
	ReceiverID string
	Content    string
	CreatedAt  time.Time
	Read       bool // flips only false -> true
	Deleted    bool // logical tombstone, the id stays addressable
}

// Counterpart returns the other participant relative to owner.
func (m Message) Counterpart(owner string) string {
	if m.SenderID == owner {
		return m.ReceiverID
	}
	return m.SenderID
}

// PairKey normalizes an unordered user pair {a, b} into a single
// deterministic key, so both directions of a conversation share one
// storage prefix.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}
