package models

import (
	"strings"
	"time"
)

// OAuth2Session is the durable grant behind a refresh token. TokenID is the
// only secret correlating a refresh token to the session and is replaced on
// every refresh.
type OAuth2Session struct {
	ID            string    `gorm:"primaryKey;column:id" json:"id"`
	UserID        string    `gorm:"column:user_id;index" json:"user_id"`
	ClientID      string    `gorm:"column:client_id" json:"client_id"`
	TokenID       string    `gorm:"column:token_id;uniqueIndex" json:"token_id"`
	Scope         string    `gorm:"column:scope" json:"scope"`
	LastRefreshAt time.Time `gorm:"column:last_refresh_at" json:"last_refresh_at"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at"`
}

// TableName gorm table name
func (OAuth2Session) TableName() string {
	return "oauth2_sessions"
}

// Scopes returns the granted scopes.
func (s *OAuth2Session) Scopes() []string {
	return strings.Fields(s.Scope)
}

// JoinScopes renders scopes the way they are stored and reported (RFC 6749 §3.3).
func JoinScopes(scopes []string) string {
	return strings.Join(scopes, " ")
}
