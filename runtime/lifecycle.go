package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/observability"
	"context"
	"log/slog"

	"github.com/samber/lo"
)

// Lifecycle drives the per-session state machine: Connected on register,
// Subscribed per chat after an explicit join, Detached on leave or
// transport close. Join performs the replay that closes the gap for a
// client that was offline.
type Lifecycle struct {
	log      *slog.Logger
	registry *Registry
	members  contract.IMembership
	messages contract.IMessageLog
	metrics  *observability.Metrics
}

func NewLifecycle(
	log *slog.Logger,
	registry *Registry,
	members contract.IMembership,
	messages contract.IMessageLog,
	metrics *observability.Metrics) *Lifecycle {
	return &Lifecycle{
		log:      log,
		registry: registry,
		members:  members,
		messages: messages,
		metrics:  metrics,
	}
}

// Connect registers a fresh session for the verified user.
func (m *Lifecycle) Connect(userID string, transport contract.Transport) *Session {
	session := m.registry.Register(userID, transport)
	m.metrics.IncrSessionsOpened()
	m.log.Info("Session connected", "session_id", session.ID, "user_id", userID)
	return session
}

// Disconnect detaches the session and discards its subscriptions. A later
// reconnect creates a fresh session and must re-join and re-replay, never
// resume this one.
func (m *Lifecycle) Disconnect(sessionID string) {
	m.registry.Unregister(sessionID)
	m.metrics.IncrSessionsClosed()
	m.log.Info("Session detached", "session_id", sessionID)
}

// Join validates membership, subscribes the session to the chat and replays
// every missed message (seq > afterSeq) in order before the subscription
// goes live. Messages published during the replay are parked by the session
// and flushed on activation, so ordering holds across the transition.
//
// A failed replay aborts the join and removes the half-open subscription,
// no partial state survives since replay is read-only.
func (m *Lifecycle) Join(ctx context.Context, session *Session, chatID domain.ChatID, afterSeq int64) error {
	participants, err := m.members.ParticipantsOf(chatID)
	if err != nil {
		return err
	}
	if !lo.Contains(participants, session.UserID) {
		return errors.ErrNotParticipant
	}

	if err := session.beginSubscription(chatID, afterSeq); err != nil {
		return err
	}

	missed, err := m.messages.History(chatID, afterSeq, 0)
	if err != nil {
		session.unsubscribe(chatID)
		return err
	}
	if err := session.pushHistory(chatID, missed); err != nil {
		session.unsubscribe(chatID)
		return err
	}
	if err := session.activateSubscription(chatID); err != nil {
		session.unsubscribe(chatID)
		return err
	}

	m.metrics.AddReplayed(len(missed))
	m.log.Debug("Session joined chat",
		"session_id", session.ID,
		"chat_id", chatID,
		"replayed", len(missed),
		"last_seen", session.LastSeen(chatID))
	return nil
}

// Leave drops the chat subscription, the session itself stays connected.
func (m *Lifecycle) Leave(session *Session, chatID domain.ChatID) {
	session.unsubscribe(chatID)
}
