// Package flow defines the session persistence interface consumed by the
// orchestrator.
package flow

import "github.com/supportflow/supportflow/internal/models"

// SessionStore persists per-user session state. The orchestrator is the sole
// owner of session mutation; other components must not write sessions
// directly. A nil session with a nil error from GetSession means the user has
// no session yet.
type SessionStore interface {
	// GetSession retrieves the session for a user, or nil if none exists.
	GetSession(userID string) (*models.Session, error)

	// SaveSession stores or updates a session.
	SaveSession(session models.Session) error

	// DeleteSession removes a session entirely.
	DeleteSession(userID string) error
}
