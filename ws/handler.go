package ws

import (
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/errors"
	"chat-relay/runtime"
	"chat-relay/services"
	"context"
	"encoding/json"
	goerrors "errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Handler upgrades authenticated requests into live sessions and drives
// the read side of the connection: join/leave subscription changes and
// message submissions.
type Handler struct {
	log        *slog.Logger
	tokens     *auth.TokenManager
	lifecycle  *runtime.Lifecycle
	chats      services.IChatService
	bufferSize int
	upgrader   websocket.Upgrader
}

func NewHandler(
	log *slog.Logger,
	tokens *auth.TokenManager,
	lifecycle *runtime.Lifecycle,
	chats services.IChatService,
	bufferSize int) *Handler {
	return &Handler{
		log:        log,
		tokens:     tokens,
		lifecycle:  lifecycle,
		chats:      chats,
		bufferSize: bufferSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP authenticates via token query parameter (browsers cannot set
// headers on WebSocket dials) or Authorization header, then hands the
// connection to the session lifecycle. It blocks until the client
// disconnects, cleanup happens through the deferred detach.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		tokenStr = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	claims, err := h.tokens.Validate(tokenStr)
	if err != nil {
		http.Error(w, "invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("WebSocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn, h.bufferSize, h.log)
	go client.WritePump()

	session := h.lifecycle.Connect(claims.UserID, client)
	defer h.lifecycle.Disconnect(session.ID)

	h.readLoop(r.Context(), conn, client, session)
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, client *Client, session *runtime.Session) {
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug("Socket read failed",
					"session_id", session.ID, "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			if err := client.Control(frame{Type: "error", Error: "invalid frame"}); err != nil {
				return
			}
			continue
		}
		if err := h.handleFrame(ctx, client, session, f); err != nil {
			h.log.Debug("Session transport gone",
				"session_id", session.ID, "error", err)
			return
		}
	}
}

// handleFrame dispatches a single inbound frame. A non-nil return means
// the transport itself is dead and the connection must close, domain
// failures are reported to the client as error frames instead. Error and
// ack frames go through Control, which waits for buffer room, so a client
// mid-replay still learns about a rejected request.
func (h *Handler) handleFrame(ctx context.Context, client *Client, session *runtime.Session, f frame) error {
	chatID := domain.ChatID(f.ChatID)

	switch f.Type {
	case "join":
		if err := h.lifecycle.Join(ctx, session, chatID, f.AfterSeq); err != nil {
			if goerrors.Is(err, errors.ErrTransportFailure) {
				return err
			}
			return client.Control(frame{Type: "error", ChatID: f.ChatID, Error: err.Error()})
		}
		return client.Control(frame{
			Type:    "joined",
			ChatID:  f.ChatID,
			LastSeq: session.LastSeen(chatID),
		})

	case "leave":
		h.lifecycle.Leave(session, chatID)
		return nil

	case "message":
		// The sender is not echoed here: its own subscription receives the
		// committed message through the router like any other participant,
		// keeping a single source of truth for order and content.
		_, err := h.chats.SendMessage(ctx, domain.SendMessageCommand{
			ChatID:    chatID,
			SenderID:  session.UserID,
			Content:   f.Content,
			CreatedAt: time.Now().UTC(),
		})
		if err != nil {
			return client.Control(frame{Type: "error", ChatID: f.ChatID, Error: err.Error()})
		}
		return nil

	default:
		return client.Control(frame{Type: "error", Error: "unknown frame type"})
	}
}
