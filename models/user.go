package models

import "time"

// User is the authenticated end user as seen by the grant engine.
type User struct {
	ID     string `json:"id"`
	Active bool   `json:"active"`
}

// LoginSession is the end user's browser or app session. It is owned by the
// login-session store; the engine only reads it and refreshes LastUsedAt.
type LoginSession struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// IsUsableAt reports whether the session is active and unexpired at t.
func (s *LoginSession) IsUsableAt(t time.Time) bool {
	if !s.Active {
		return false
	}
	return s.ExpiresAt.IsZero() || t.Before(s.ExpiresAt)
}
