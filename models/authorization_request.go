package models

import "time"

// AuthorizationRequest is a pending authorize call waiting for its code to be
// exchanged. It is created when authorize succeeds and lives under a
// one-time code until consumed or expired.
type AuthorizationRequest struct {
	ClientID            string    `json:"client_id"`
	ClientRedirectURIs  []string  `json:"client_redirect_uris"`
	ClientScopes        []string  `json:"client_scopes"`
	Scopes              []string  `json:"scopes"`
	RedirectURI         string    `json:"redirect_uri"`
	ResponseType        string    `json:"response_type"`
	UserID              string    `json:"user_id"`
	State               string    `json:"state,omitempty"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
}

// IsExpiredAt checks if the authorization request has expired at t.
func (ar *AuthorizationRequest) IsExpiredAt(t time.Time) bool {
	return !ar.ExpiresAt.IsZero() && !t.Before(ar.ExpiresAt)
}

// HasPKCE reports whether the request was bound to a code challenge.
func (ar *AuthorizationRequest) HasPKCE() bool {
	return ar.CodeChallenge != ""
}
