package server

import (
	"time"

	oauth2 "github.com/legit-games/grant-engine"
)

// Config configuration parameters
type Config struct {
	Issuer string // issuer URL advertised by discovery
	// AllowImplicit advertises response_type=token; the engine enforces it.
	AllowImplicit bool
	// LoginSessionKey is the go-session key holding the login-session reference
	// when no bearer token is presented at the authorize endpoint.
	LoginSessionKey string
	// TokenRateLimit is the per-IP budget of the token and revoke endpoints in
	// requests per minute; zero or less disables limiting.
	TokenRateLimit int
	// RateLimitWindow is how long an idle client IP keeps its bucket.
	RateLimitWindow time.Duration
}

// NewConfig create to configuration instance
func NewConfig() *Config {
	return &Config{
		Issuer:          "http://localhost", // can be overridden by deployment config
		LoginSessionKey: "login_session",
		TokenRateLimit:  600,
		RateLimitWindow: 5 * time.Minute,
	}
}

// ResponseTypes lists the response types offered at the authorize endpoint.
func (c *Config) ResponseTypes() []oauth2.ResponseType {
	rts := []oauth2.ResponseType{oauth2.Code, oauth2.WebMessage}
	if c.AllowImplicit {
		rts = append(rts, oauth2.Token)
	}
	return rts
}
