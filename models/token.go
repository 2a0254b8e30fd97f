package models

import "time"

// TokenKindAccess marks access tokens so other signed artifacts are not
// accepted in their place.
const TokenKindAccess = "access"

// AccessTokenPayload is the content of a signed access token. It is never
// mutated after issuance and is verified from its signature alone.
type AccessTokenPayload struct {
	Subject   string
	Scopes    []string
	Audience  string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Kind      string
}

// TokenResponse is the token endpoint success body.
type TokenResponse struct {
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token,omitempty"`
	TokenType    string        `json:"token_type"`
	ExpiresIn    time.Duration `json:"-"`
	Scope        string        `json:"scope,omitempty"`
}
