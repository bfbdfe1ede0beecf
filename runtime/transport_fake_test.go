package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"fmt"
	"sync"
)

// fakeTransport records every pushed event and can be switched to fail,
// standing in for a WebSocket client.
type fakeTransport struct {
	mu      sync.Mutex
	events  []event.DomainEvent
	failing bool
	closed  bool
}

func (t *fakeTransport) Send(e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failing {
		return fmt.Errorf("socket gone")
	}
	t.events = append(t.events, e)
	return nil
}

func (t *fakeTransport) SendWait(e event.DomainEvent) error {
	return t.Send(e)
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) fail() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failing = true
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// messages extracts pushed messages in push order.
func (t *fakeTransport) messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var messages []domain.Message
	for _, e := range t.events {
		if appended, ok := e.(event.MessageAppended); ok {
			messages = append(messages, appended.Message)
		}
	}
	return messages
}

// boundedTransport mimics a small socket buffer with an active consumer:
// instant pushes fail once the buffer holds capacity events, waiting
// pushes drain the buffer the way a running write pump would.
type boundedTransport struct {
	mu       sync.Mutex
	capacity int
	buffered int
	events   []event.DomainEvent
}

func (t *boundedTransport) Send(e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buffered >= t.capacity {
		return fmt.Errorf("buffer full")
	}
	t.buffered++
	t.events = append(t.events, e)
	return nil
}

func (t *boundedTransport) SendWait(e event.DomainEvent) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buffered = 0
	t.events = append(t.events, e)
	return nil
}

func (t *boundedTransport) Close() error { return nil }

func (t *boundedTransport) messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	var messages []domain.Message
	for _, e := range t.events {
		if appended, ok := e.(event.MessageAppended); ok {
			messages = append(messages, appended.Message)
		}
	}
	return messages
}
