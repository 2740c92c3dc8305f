// Package runtime wires the realtime side of the messaging core: the
// event channel, the subscription registry and the supervised fanout
// worker. It contains no messaging rules; services publish events after
// successful store writes and consumers re-derive from the store.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"courier/contract"
	"courier/domain/event"
	"courier/runtime/workers"
)

type Orchestrator struct {
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	events         chan event.DomainEvent
	sinkTimeout    time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor,
	registry contract.IRegistry, bufferSize int, sinkTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		registry:    registry,
		events:      make(chan event.DomainEvent, bufferSize),
		sinkTimeout: sinkTimeout,
	}
}

// Add registers permanent sinks, delivered every event regardless of
// participants. Must be called before Start.
func (o *Orchestrator) Add(sinks ...contract.EventSink) {
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// Publish pushes an event onto the realtime channel without blocking the
// caller. A full channel drops the event: subscribers re-derive from the
// store on their next trigger, so a lost notification delays a refresh
// but never corrupts state.
func (o *Orchestrator) Publish(e event.DomainEvent) {
	select {
	case o.events <- e:
	default:
		o.log.Warn("Event channel full, dropping notification")
	}
}

func (o *Orchestrator) Subscribe(userID string, sink contract.EventSink) contract.SubscriptionHandle {
	return o.registry.Subscribe(userID, sink)
}

func (o *Orchestrator) Unsubscribe(handle contract.SubscriptionHandle) {
	o.registry.Unsubscribe(handle)
}

// Start registers the fanout worker and launches the supervision loop in
// the background.
func (o *Orchestrator) Start(ctx context.Context) {
	fanout := workers.NewEventFanout(o.log, o.registry, o.permanentSinks, o.events, o.sinkTimeout)
	o.supervisor.Add(fanout)

	o.log.Info("Starting orchestrator and all supervised workers")
	go o.supervisor.Run(ctx)
}

// Stop initiates a graceful shutdown of the supervised workers.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
