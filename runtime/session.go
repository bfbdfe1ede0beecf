package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// subscription is one per-chat state slot of a session.
// It starts non-live: deliveries arriving while the join replay runs are
// parked in pending and flushed once the replay completes, so a session
// never sees seq N+1 before seq N.
type subscription struct {
	live     bool
	lastSeen int64
	pending  []domain.Message
}

// Session is one live connection instance for a user. It is created on
// connect, destroyed on disconnect and never persisted. A later reconnect
// creates a fresh session which must re-join and re-replay.
type Session struct {
	ID     string
	UserID string

	mu        sync.Mutex
	transport contract.Transport
	subs      map[domain.ChatID]*subscription
	closed    bool
}

func newSession(userID string, transport contract.Transport) *Session {
	return &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		transport: transport,
		subs:      make(map[domain.ChatID]*subscription),
	}
}

// beginSubscription installs a non-live state slot for the chat, starting
// from the client-supplied cursor. Replay fills the gap before activation.
func (s *Session) beginSubscription(chatID domain.ChatID, afterSeq int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.ErrSessionClosed
	}
	s.subs[chatID] = &subscription{lastSeen: afterSeq}
	return nil
}

// pushHistory replays missed messages in ascending seq order. Messages at
// or below the cursor are skipped so replay stays idempotent.
//
// Pushes go through SendWait: a backlog larger than the transport buffer
// waits for the consumer to drain instead of failing on the first full
// slot. The mutex is released around each blocking send, the subscription
// is not live yet so concurrent deliveries only park in pending and no
// other goroutine touches the transport.
func (s *Session) pushHistory(chatID domain.ChatID, messages []domain.Message) error {
	for _, message := range messages {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return errors.ErrSessionClosed
		}
		sub, ok := s.subs[chatID]
		if !ok {
			s.mu.Unlock()
			return nil
		}
		if message.Seq <= sub.lastSeen {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		if err := s.transport.SendWait(event.MessageAppended{Message: message}); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrTransportFailure, err)
		}
		s.markSeen(chatID, message.Seq)
	}
	return nil
}

// activateSubscription flushes deliveries parked during replay and marks
// the slot live. From here on the router pushes directly. Parked messages
// flush one at a time with the mutex released around the blocking send, so
// deliveries arriving mid-flush keep parking behind the ones in flight.
func (s *Session) activateSubscription(chatID domain.ChatID) error {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return errors.ErrSessionClosed
		}
		sub, ok := s.subs[chatID]
		if !ok {
			s.mu.Unlock()
			return nil
		}

		var next *domain.Message
		for len(sub.pending) > 0 {
			parked := sub.pending[0]
			sub.pending = sub.pending[1:]
			if parked.Seq > sub.lastSeen {
				next = &parked
				break
			}
		}
		if next == nil {
			sub.pending = nil
			sub.live = true
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()

		if err := s.transport.SendWait(event.MessageAppended{Message: *next}); err != nil {
			return fmt.Errorf("%w: %v", errors.ErrTransportFailure, err)
		}
		s.markSeen(chatID, next.Seq)
	}
}

func (s *Session) markSeen(chatID domain.ChatID, seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[chatID]; ok && seq > sub.lastSeen {
		sub.lastSeen = seq
	}
}

// Deliver pushes one live message to the session. It reports whether the
// push actually reached the transport: parked, deduplicated and
// not-subscribed messages return false with no error.
// Dedup is driven by seq: anything at or below lastSeen was already pushed
// within this session lifetime and is silently dropped.
func (s *Session) Deliver(message domain.Message) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, errors.ErrSessionClosed
	}
	sub, ok := s.subs[message.ChatID]
	if !ok {
		// Not subscribed to this chat, replay on a later join covers it.
		return false, nil
	}
	if !sub.live {
		sub.pending = append(sub.pending, message)
		return false, nil
	}
	if message.Seq <= sub.lastSeen {
		return false, nil
	}
	if err := s.transport.Send(event.MessageAppended{Message: message}); err != nil {
		return false, fmt.Errorf("%w: %v", errors.ErrTransportFailure, err)
	}
	sub.lastSeen = message.Seq
	return true, nil
}

func (s *Session) unsubscribe(chatID domain.ChatID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, chatID)
}

// Subscribed reports whether the chat slot exists and is live.
func (s *Session) Subscribed(chatID domain.ChatID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[chatID]
	return ok && sub.live
}

// LastSeen returns the highest seq pushed to this session for the chat.
func (s *Session) LastSeen(chatID domain.ChatID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.subs[chatID]; ok {
		return sub.lastSeen
	}
	return 0
}

// close marks the session detached and closes its transport. Subscriptions
// are discarded, a reconnect starts from scratch.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.subs = make(map[domain.ChatID]*subscription)
	transport := s.transport
	s.mu.Unlock()

	_ = transport.Close()
}
