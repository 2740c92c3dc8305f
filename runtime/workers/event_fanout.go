package workers

import (
	"context"
	"log/slog"
	"time"

	"courier/contract"
	"courier/domain/event"
)

// EventFanout drains the realtime channel and delivers each event to the
// active sinks of both participants, plus the permanent sinks (search
// indexer, projections).
//
// Delivery is at-least-once towards registered sinks with no ordering
// guarantee beyond per-pair store order. Sinks must treat events as
// re-derivation triggers only, so duplicates and reordering are harmless.
//
// EventFanout is safe for concurrent use by multiple goroutines.
type EventFanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	events         chan event.DomainEvent
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry,
	permanentSinks []contract.EventSink, events chan event.DomainEvent,
	sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:            log,
		registry:       registry,
		permanentSinks: permanentSinks,
		events:         events,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				w.log.Debug("Event channel closed")
				return nil
			}
			w.fanout(ctx, evt)
		}
	}
}

// fanout delivers one event to every resolved sink. A slow or failing
// sink only loses its own notification; the affected identity recovers on
// its next re-derivation.
func (w *EventFanout) fanout(ctx context.Context, evt event.DomainEvent) {
	sinks := w.registry.SinksFor(evt.Participants())
	sinks = append(sinks, w.permanentSinks...)

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink failed to consume event", "error", err)
		}
		cancel()
	}
}
