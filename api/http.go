// Package api is the REST glue around the delivery core: account
// endpoints, chat CRUD and durable history reads. The real-time path lives
// in the ws package.
package api

import (
	"chat-relay/auth"
	"chat-relay/domain"
	goerrors "chat-relay/errors"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/services"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

type Server struct {
	log             *slog.Logger
	auth            services.IAuthService
	chats           services.IChatService
	users           repositories.IUserRepository
	registry        *runtime.Registry
	tokens          *auth.TokenManager
	validate        *validator.Validate
	historyPageSize int
	maxContentLen   int
}

func NewServer(
	log *slog.Logger,
	authService services.IAuthService,
	chatService services.IChatService,
	users repositories.IUserRepository,
	registry *runtime.Registry,
	tokens *auth.TokenManager,
	historyPageSize, maxContentLen int) *Server {
	return &Server{
		log:             log,
		auth:            authService,
		chats:           chatService,
		users:           users,
		registry:        registry,
		tokens:          tokens,
		validate:        validator.New(),
		historyPageSize: historyPageSize,
		maxContentLen:   maxContentLen,
	}
}

// Routes wires every endpoint onto a mux. wsHandler serves the live
// transport, it authenticates on its own because browsers cannot set
// headers on WebSocket dials.
func (s *Server) Routes(wsHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	protected := func(h http.HandlerFunc) http.Handler {
		return s.tokens.Middleware(h)
	}
	mux.Handle("GET /api/chats", protected(s.handleListChats))
	mux.Handle("POST /api/chats", protected(s.handleCreateChat))
	mux.Handle("GET /api/chats/{id}/messages", protected(s.handleHistory))
	mux.Handle("POST /api/chats/{id}/messages", protected(s.handleSendMessage))
	mux.Handle("GET /api/users/me", protected(s.handleMe))
	mux.Handle("GET /api/users/search", protected(s.handleSearchUsers))

	mux.Handle("GET /ws", wsHandler)
	return mux
}

type registerRequest struct {
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Password    string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !s.decode(w, r, &req) {
		return
	}
	token, err := s.auth.Register(req.Email, req.DisplayName, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, tokenResponse{Token: string(token)})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	token, err := s.auth.Login(req.Email, req.Password)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tokenResponse{Token: string(token)})
}

type createChatRequest struct {
	Participants []string `json:"participants" validate:"required,min=1"`
	Name         string   `json:"name"`
	IsGroup      bool     `json:"is_group"`
}

func (s *Server) handleCreateChat(w http.ResponseWriter, r *http.Request) {
	var req createChatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := s.validate.Struct(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	chat, err := s.chats.CreateChat(domain.CreateChatCommand{
		CreatorID:    auth.UserID(r.Context()),
		Participants: req.Participants,
		Name:         req.Name,
		IsGroup:      req.IsGroup,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, chat)
}

func (s *Server) handleListChats(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.chats.ChatsFor(auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	afterSeq, _ := strconv.ParseInt(r.URL.Query().Get("after_seq"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > s.historyPageSize {
		limit = s.historyPageSize
	}

	cmd := domain.HistoryCommand{
		ChatID:   domain.ChatID(r.PathValue("id")),
		CallerID: auth.UserID(r.Context()),
		AfterSeq: afterSeq,
		Limit:    limit,
	}
	messages, err := s.chats.History(cmd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	// Paging hint: when the newest returned seq is below this, another page
	// exists.
	if lastSeq, err := s.chats.LastSeq(cmd); err == nil {
		w.Header().Set("X-Last-Seq", strconv.FormatInt(lastSeq, 10))
	}
	s.writeJSON(w, http.StatusOK, messages)
}

type sendMessageRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Content) > s.maxContentLen {
		http.Error(w, "content too long", http.StatusBadRequest)
		return
	}
	message, err := s.chats.SendMessage(r.Context(), domain.SendMessageCommand{
		ChatID:    domain.ChatID(r.PathValue("id")),
		SenderID:  auth.UserID(r.Context()),
		Content:   req.Content,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, message)
}

// userView decorates an account with derived presence.
type userView struct {
	repositories.User
	Online bool `json:"online"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user, err := s.users.GetUserByID(auth.UserID(r.Context()))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, userView{User: user, Online: s.registry.Online(user.ID)})
}

func (s *Server) handleSearchUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.SearchUsers(
		r.URL.Query().Get("q"),
		auth.UserID(r.Context()),
		s.historyPageSize)
	if err != nil {
		s.writeError(w, err)
		return
	}
	views := make([]userView, 0, len(users))
	for _, user := range users {
		views = append(views, userView{User: user, Online: s.registry.Online(user.ID)})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("Response encoding failed", "error", err)
	}
}

// writeError maps the domain taxonomy onto HTTP statuses. Authorization
// and not-found failures surface to the caller, storage failures stay 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, goerrors.ErrChatNotFound), errors.Is(err, goerrors.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, goerrors.ErrNotParticipant):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, goerrors.ErrInvalidCredentials):
		http.Error(w, err.Error(), http.StatusUnauthorized)
	case errors.Is(err, goerrors.ErrUserAlreadyExists):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, goerrors.ErrNotEnoughMembers),
		errors.Is(err, goerrors.ErrEmptyContent),
		errors.Is(err, goerrors.ErrInvalidPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		s.log.Error("Request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
