package manage

import "time"

// Config configuration parameters of the grant engine
type Config struct {
	// Issuer is the iss claim of every access token.
	Issuer string
	// AccessTokenTTL is the lifetime of access tokens.
	AccessTokenTTL time.Duration
	// RefreshTokenTTL is the idle lifetime of a session: a refresh token not
	// used within this window is rejected and its session revoked.
	RefreshTokenTTL time.Duration
	// AuthCodeTTL is the lifetime of an authorization code.
	AuthCodeTTL time.Duration
	// AllowImplicit enables response_type=token. The access token is then
	// delivered through the front channel without code exchange or PKCE.
	AllowImplicit bool
}

// default configs
var (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultAuthCodeTTL     = 60 * time.Second
)

// DefaultConfig returns a Config with the default lifetimes.
func DefaultConfig() Config {
	return Config{
		Issuer:          "http://localhost",
		AccessTokenTTL:  DefaultAccessTokenTTL,
		RefreshTokenTTL: DefaultRefreshTokenTTL,
		AuthCodeTTL:     DefaultAuthCodeTTL,
	}
}

func (c *Config) withDefaults() {
	if c.AccessTokenTTL <= 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL <= 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.AuthCodeTTL <= 0 {
		c.AuthCodeTTL = DefaultAuthCodeTTL
	}
}
