package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	goerrors "errors"
	"log/slog"
)

// DeliveryRouter fans committed messages out to the live sessions of every
// chat participant. Delivery is at-most-once via push: a failed push is
// swallowed for that session and the message stays in the log, replay on
// the next join delivers it. The router never blocks on socket I/O, a push
// is an enqueue into the session transport's bounded buffer.
//
// A single Run loop consumes the append queue, so per-chat push order
// matches seq order without any extra coordination.
type DeliveryRouter struct {
	log      *slog.Logger
	members  contract.IMembership
	registry *Registry
	queue    <-chan event.DomainEvent
	events   chan<- event.DomainEvent
	metrics  *observability.Metrics
}

func NewDeliveryRouter(
	log *slog.Logger,
	members contract.IMembership,
	registry *Registry,
	queue <-chan event.DomainEvent,
	events chan<- event.DomainEvent,
	metrics *observability.Metrics) *DeliveryRouter {
	return &DeliveryRouter{
		log:      log,
		members:  members,
		registry: registry,
		queue:    queue,
		events:   events,
		metrics:  metrics,
	}
}

var _ contract.Worker = (*DeliveryRouter)(nil)

func (w *DeliveryRouter) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping delivery router")
			return nil
		case evt, ok := <-w.queue:
			if !ok {
				return nil
			}
			if appended, ok := evt.(event.MessageAppended); ok {
				w.metrics.IncrAppended()
				w.Publish(appended.Message)
			}
			w.forward(evt)
		}
	}
}

// Publish resolves participants through the membership index, their live
// sessions through the registry, and pushes to every session currently
// subscribed to the chat. One broken recipient never affects the others.
func (w *DeliveryRouter) Publish(message domain.Message) {
	participants, err := w.members.ParticipantsOf(message.ChatID)
	if err != nil {
		w.log.Warn("Dropping publish for unknown chat",
			"chat_id", message.ChatID, "error", err)
		return
	}

	for _, participant := range participants {
		for _, session := range w.registry.SessionsFor(participant) {
			pushed, err := session.Deliver(message)
			switch {
			case err == nil:
				if pushed {
					w.metrics.IncrDelivered()
					w.forward(event.MessageDelivered{SessionID: session.ID, Message: message})
				}
			case goerrors.Is(err, errors.ErrSessionClosed):
				// Registry cleanup races the push, nothing to do.
			case goerrors.Is(err, errors.ErrTransportFailure):
				// Bounded send gave up: treat the session as disconnected,
				// the log remains the source of truth for this recipient.
				w.metrics.IncrDeliveryFailures()
				w.log.Warn("Transport push failed, detaching session",
					"session_id", session.ID,
					"user_id", session.UserID,
					"chat_id", message.ChatID,
					"seq", message.Seq,
					"error", err)
				w.registry.Unregister(session.ID)
			default:
				w.metrics.IncrDeliveryFailures()
				w.log.Error("Unexpected delivery error",
					"session_id", session.ID, "error", err)
			}
		}
	}
}

// forward hands the event to the sink fan-out, best effort.
func (w *DeliveryRouter) forward(e event.DomainEvent) {
	if w.events == nil {
		return
	}
	select {
	case w.events <- e:
	default:
		w.log.Debug("Sink event dropped, event channel full")
	}
}
