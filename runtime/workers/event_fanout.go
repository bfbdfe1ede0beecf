package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"time"
)

// EventFanout broadcasts domain events to in-process consumers.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// durability or retries. EventFanout is not a message broker: it feeds
// observability and side effects (projections, publishers, metrics), the
// delivery core never depends on it for correctness.
type EventFanout struct {
	log     *slog.Logger
	events  <-chan event.DomainEvent
	sinks   []contract.EventSink
	timeout time.Duration
}

func NewEventFanout(log *slog.Logger, events <-chan event.DomainEvent, timeout time.Duration) *EventFanout {
	return &EventFanout{log: log, events: events, timeout: timeout}
}

var _ contract.Worker = (*EventFanout)(nil)

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.sinks = append(w.sinks, sinks...)
	return w
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping event fanout")
			return nil
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout hands the event to every sink, one at a time, each under its own
// timeout so a slow sink cannot wedge the loop.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.timeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Warn("Sink rejected event", "error", err)
		}
		cancel()
	}
}
