package models

import (
	"golang.org/x/crypto/bcrypt"
)

// Client is a registered OAuth application.
// Secret holds a bcrypt hash; public clients leave it empty.
type Client struct {
	ID           string
	Secret       string
	RedirectURIs []string
	Scopes       []string
}

// IsPublic reports whether the client has no secret and must use PKCE.
func (c *Client) IsPublic() bool {
	return c.Secret == ""
}

// HasRedirectURI reports whether uri is one of the registered redirect URIs.
// Matching is exact.
func (c *Client) HasRedirectURI(uri string) bool {
	for _, u := range c.RedirectURIs {
		if u == uri {
			return true
		}
	}
	return false
}

// VerifyPassword checks a presented client secret against the stored hash.
func (c *Client) VerifyPassword(secret string) bool {
	if c.IsPublic() || secret == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(c.Secret), []byte(secret)) == nil
}

// HashClientSecret returns the bcrypt hash stored in Client.Secret.
func HashClientSecret(secret string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
