package session

import (
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// CookieName is the session cookie. The value is an opaque random id; the
// user id it maps to lives only server-side.
const CookieName = "session_id"

// Manager maps session ids to user ids for the lifetime of the process.
// Sessions are not persisted, matching the lifecycle of the message cipher
// key.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]string
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]string)}
}

// Start creates a session for userID and sets the cookie on w. It returns
// the session id.
func (m *Manager) Start(w http.ResponseWriter, userID string) string {
	id := uuid.NewString()
	m.mu.Lock()
	m.sessions[id] = userID
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// UserID resolves the request's session cookie to a user id.
func (m *Manager) UserID(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(CookieName)
	if err != nil {
		return "", false
	}
	m.mu.RLock()
	userID, ok := m.sessions[cookie.Value]
	m.mu.RUnlock()
	return userID, ok
}

// Destroy drops the request's session and expires the cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(CookieName); err == nil {
		m.mu.Lock()
		delete(m.sessions, cookie.Value)
		m.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:   CookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
