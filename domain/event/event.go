// Package event defines the typed notifications pushed over the realtime
// channel. Events are triggers to re-derive state from the message store,
// never authoritative payloads: consumers must tolerate duplicates and
// reordering.
package event

import (
	"time"

	"github.com/google/uuid"
)

type DomainEvent interface {
	// Participants returns the two identities the event must be
	// delivered to.
	Participants() [2]string
}

type MessageCreated struct {
	MessageID  uuid.UUID
	SenderID   string
	ReceiverID string
	At         time.Time
}

func (e MessageCreated) Participants() [2]string {
	return [2]string{e.SenderID, e.ReceiverID}
}

// MessageRead signals that a bulk read transition moved at least one
// message of the (owner, counterpart) pair.
type MessageRead struct {
	OwnerID       string
	CounterpartID string
	Count         int
	At            time.Time
}

func (e MessageRead) Participants() [2]string {
	return [2]string{e.OwnerID, e.CounterpartID}
}

type MessageDeleted struct {
	MessageID  uuid.UUID
	SenderID   string
	ReceiverID string
	At         time.Time
}

func (e MessageDeleted) Participants() [2]string {
	return [2]string{e.SenderID, e.ReceiverID}
}
