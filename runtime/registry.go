package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"log/slog"
	"sync"
)

// Registry tracks live sessions per authenticated user. A user may hold
// several sessions concurrently (multi-device), presence is a derived read:
// online == at least one live session. The registry is the single owner of
// session liveness, the router only reads it.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session            // sessionID -> session
	byUser   map[string]map[string]*Session // userID -> sessionID -> session
	events   chan<- event.DomainEvent
	log      *slog.Logger
}

func NewRegistry(log *slog.Logger, events chan<- event.DomainEvent) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]*Session),
		events:   events,
		log:      log,
	}
}

// Register creates a session for the user's transport. The first session of
// a user fires a presence-changed event, later ones do not.
func (r *Registry) Register(userID string, transport contract.Transport) *Session {
	session := newSession(userID, transport)

	r.mu.Lock()
	r.sessions[session.ID] = session
	userSessions, ok := r.byUser[userID]
	if !ok {
		userSessions = make(map[string]*Session)
		r.byUser[userID] = userSessions
	}
	userSessions[session.ID] = session
	wentOnline := len(userSessions) == 1
	r.mu.Unlock()

	if wentOnline {
		r.emit(event.PresenceChanged{UserID: userID, Online: true})
	}
	return session
}

// Unregister removes a session and closes it. It is idempotent, a second
// call for the same id is a no-op. The last session of a user fires the
// offline presence transition.
func (r *Registry) Unregister(sessionID string) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, sessionID)
	wentOffline := false
	if userSessions, ok := r.byUser[session.UserID]; ok {
		delete(userSessions, sessionID)
		if len(userSessions) == 0 {
			delete(r.byUser, session.UserID)
			wentOffline = true
		}
	}
	r.mu.Unlock()

	session.close()
	if wentOffline {
		r.emit(event.PresenceChanged{UserID: session.UserID, Online: false})
	}
}

// SessionsFor returns the user's live sessions, possibly empty.
func (r *Registry) SessionsFor(userID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	userSessions, ok := r.byUser[userID]
	if !ok {
		return nil
	}
	sessions := make([]*Session, 0, len(userSessions))
	for _, session := range userSessions {
		sessions = append(sessions, session)
	}
	return sessions
}

// Online derives presence from session liveness, there is no second copy of
// this fact anywhere.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byUser[userID]) > 0
}

func (r *Registry) CountSessions() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) emit(e event.DomainEvent) {
	if r.events == nil {
		return
	}
	select {
	case r.events <- e:
	default:
		r.log.Debug("Presence event dropped, event channel full")
	}
}
