// internal/auth/session.go
package auth

import (
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	sessionName  = "github_mirror_session"
	sessionOwner = "owner_id"
)

// Sessions wraps the cookie session store carrying the owner identity.
type Sessions struct {
	store *sessions.CookieStore
}

// NewSessions creates a cookie-backed session store signed with secret.
func NewSessions(secret string) *Sessions {
	cs := sessions.NewCookieStore([]byte(secret))
	cs.Options = &sessions.Options{
		Path:     "/",
		HttpOnly: true,
		MaxAge:   86400 * 7,
	}
	return &Sessions{store: cs}
}

// OwnerID returns the owner identity bound to the request's session, if any.
func (s *Sessions) OwnerID(r *http.Request) (string, bool) {
	sess, err := s.store.Get(r, sessionName)
	if err != nil {
		return "", false
	}
	ownerID, ok := sess.Values[sessionOwner].(string)
	return ownerID, ok && ownerID != ""
}

// SetOwner binds the owner identity to the session cookie.
func (s *Sessions) SetOwner(w http.ResponseWriter, r *http.Request, ownerID string) error {
	sess, _ := s.store.Get(r, sessionName)
	sess.Values[sessionOwner] = ownerID
	return sess.Save(r, w)
}

// Clear destroys the session.
func (s *Sessions) Clear(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.store.Get(r, sessionName)
	sess.Options.MaxAge = -1
	delete(sess.Values, sessionOwner)
	return sess.Save(r, w)
}
