package auth

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mvalderrama/electrocaja/internal/events"
)

// Session is one signed-in terminal.
type Session struct {
	ID          string
	UserName    string
	Role        string
	ConnectedAt time.Time
}

// SessionRegistry tracks signed-in terminals in memory and announces
// membership changes on the bus. A user may hold several sessions at once
// (e.g. counter terminal plus back-office browser).
type SessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	bus      *events.Bus
	log      zerolog.Logger
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry(bus *events.Bus, log zerolog.Logger) *SessionRegistry {
	return &SessionRegistry{
		sessions: make(map[string]*Session),
		bus:      bus,
		log:      log.With().Str("component", "sessions").Logger(),
	}
}

// Register adds a session and broadcasts the new active-user list.
func (r *SessionRegistry) Register(sessionID, userName, role string) {
	r.mu.Lock()
	r.sessions[sessionID] = &Session{
		ID:          sessionID,
		UserName:    userName,
		Role:        role,
		ConnectedAt: time.Now(),
	}
	users := r.activeUsersLocked()
	r.mu.Unlock()

	r.log.Debug().Str("session", sessionID).Str("user", userName).Msg("Session registered")
	r.bus.Emit(events.New(events.UsersUpdated, userName, &events.UsersUpdatedData{ActiveUsers: users}))
}

// Unregister removes a session and broadcasts the new active-user list.
// Unknown session ids are ignored so disconnect races stay harmless.
func (r *SessionRegistry) Unregister(sessionID string) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if ok {
		delete(r.sessions, sessionID)
	}
	users := r.activeUsersLocked()
	r.mu.Unlock()

	if !ok {
		return
	}
	r.bus.Emit(events.New(events.UsersUpdated, session.UserName, &events.UsersUpdatedData{ActiveUsers: users}))
}

// ActiveUsers returns the distinct signed-in user names, sorted.
func (r *SessionRegistry) ActiveUsers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.activeUsersLocked()
}

// Count returns the number of live sessions.
func (r *SessionRegistry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// ForceLogoutAll clears every session and broadcasts a force-logout.
// Terminals show the message briefly before dropping their session; the
// event is never suppressed, including on the admin's own terminal.
func (r *SessionRegistry) ForceLogoutAll(adminUser, message string) {
	r.mu.Lock()
	n := len(r.sessions)
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	r.log.Warn().Str("admin", adminUser).Int("sessions", n).Msg("Forcing logout of all terminals")
	r.bus.Emit(events.New(events.ForceLogout, adminUser, &events.ForceLogoutData{
		Message:   message,
		AdminUser: adminUser,
	}))
	r.bus.Emit(events.New(events.UsersUpdated, adminUser, &events.UsersUpdatedData{ActiveUsers: nil}))
}

func (r *SessionRegistry) activeUsersLocked() []string {
	seen := make(map[string]bool, len(r.sessions))
	var users []string
	for _, s := range r.sessions {
		if !seen[s.UserName] {
			seen[s.UserName] = true
			users = append(users, s.UserName)
		}
	}
	sort.Strings(users)
	return users
}
