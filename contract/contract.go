//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"courier/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself. Supervision, restart and panic
// isolation are the supervisor's job.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision purposes, avoiding manual naming in
// the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// SubscriptionHandle identifies one registration of a user identity.
// A later Subscribe for the same identity invalidates earlier handles.
type SubscriptionHandle struct {
	UserID string
	Seq    uint64
}

type IRegistry interface {
	Subscribe(userID string, sink EventSink) SubscriptionHandle
	Unsubscribe(handle SubscriptionHandle)
	SinksFor(participants [2]string) []EventSink
}

// Publisher pushes an event onto the realtime channel. Delivery is
// at-least-once towards active subscribers; a full channel drops the
// event, subscribers re-derive on the next trigger.
type Publisher interface {
	Publish(e event.DomainEvent)
}
