// Package ws exposes the per-session WebSocket transport. The core treats
// a client as a capability (send may fail, close is final) and never sees
// gorilla/websocket directly.
package ws

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// frame is the single wire shape for both directions. Inbound types:
// join, leave, message. Outbound types: message, joined, presence, error.
//
// Live message frames are at-most-once: under overload the server may skip
// the push for a committed message, which surfaces to the client as a gap
// in message.seq. Clients must treat a seq gap as missed delivery and
// re-join with after_seq set to the highest seq they hold, the replay
// fills the hole from the durable log.
type frame struct {
	Type     string          `json:"type"`
	ChatID   string          `json:"chat_id,omitempty"`
	Content  string          `json:"content,omitempty"`
	AfterSeq int64           `json:"after_seq,omitempty"`
	Message  *domain.Message `json:"message,omitempty"`
	LastSeq  int64           `json:"last_seq,omitempty"`
	UserID   string          `json:"user_id,omitempty"`
	Online   *bool           `json:"online,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Client pumps outbound frames through a bounded buffer. Live pushes never
// block: a full buffer means a consumer too slow to keep up and the push
// fails. Replay and control frames instead wait for room up to the write
// deadline, so they survive a momentarily full buffer but still give up on
// a dead consumer.
type Client struct {
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	once        sync.Once
	sendTimeout time.Duration
	log         *slog.Logger
}

func NewClient(conn *websocket.Conn, bufferSize int, log *slog.Logger) *Client {
	return &Client{
		conn:        conn,
		send:        make(chan []byte, bufferSize),
		done:        make(chan struct{}),
		sendTimeout: writeWait,
		log:         log,
	}
}

func toFrame(e event.DomainEvent) (frame, bool) {
	switch evt := e.(type) {
	case event.MessageAppended:
		message := evt.Message
		return frame{
			Type:    "message",
			ChatID:  string(message.ChatID),
			Message: &message,
		}, true
	case event.PresenceChanged:
		online := evt.Online
		return frame{Type: "presence", UserID: evt.UserID, Online: &online}, true
	default:
		return frame{}, false
	}
}

// Send maps a domain event onto a wire frame and enqueues it without
// blocking. A full buffer fails the push, live delivery never waits for a
// slow consumer.
func (c *Client) Send(e event.DomainEvent) error {
	f, ok := toFrame(e)
	if !ok {
		return nil
	}
	bytes, err := json.Marshal(f)
	if err != nil {
		return err
	}
	select {
	case <-c.done:
		return errors.ErrSessionClosed
	default:
	}
	select {
	case c.send <- bytes:
		return nil
	default:
		return errors.ErrTransportFailure
	}
}

// SendWait enqueues like Send but waits for buffer room up to the write
// deadline, so a replay backlog larger than the buffer drains through the
// write pump instead of failing on the first full slot. A timeout means the
// consumer cannot keep up within the deadline and the session is treated
// as disconnected.
func (c *Client) SendWait(e event.DomainEvent) error {
	f, ok := toFrame(e)
	if !ok {
		return nil
	}
	bytes, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.enqueueWait(bytes)
}

// Control carries acknowledgement and error frames. It waits for buffer
// room bounded by the write deadline, a control frame is either delivered
// or the connection is torn down, never silently dropped.
func (c *Client) Control(f frame) error {
	bytes, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return c.enqueueWait(bytes)
}

func (c *Client) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *Client) enqueueWait(bytes []byte) error {
	timer := time.NewTimer(c.sendTimeout)
	defer timer.Stop()
	select {
	case <-c.done:
		return errors.ErrSessionClosed
	case c.send <- bytes:
		return nil
	case <-timer.C:
		return errors.ErrTransportFailure
	}
}

// WritePump drains the send buffer onto the socket and keeps the
// connection alive with pings. It owns all writes, gorilla connections
// allow a single concurrent writer.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.log.Debug("Socket write failed", "error", err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
