package manage

import (
	"context"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
)

// Authenticator resolves a login-session reference into a user.
type Authenticator interface {
	Authenticate(ctx context.Context, sessionToken string) (*models.User, *models.LoginSession, error)
}

// AuthorizeRequest is a parsed authorize call.
type AuthorizeRequest struct {
	SessionToken        string
	ClientID            string
	RedirectURI         string
	Scopes              []string
	ResponseType        oauth2.ResponseType
	State               string
	CodeChallenge       string
	CodeChallengeMethod oauth2.CodeChallengeMethod
}

// AuthorizeResult is delivered to the client through the response channel
// chosen by ResponseType. Exactly one of Code, Token or Err is set.
type AuthorizeResult struct {
	ResponseType oauth2.ResponseType
	RedirectURI  string
	State        string
	Code         string
	Token        *models.TokenResponse
	Err          error
}

// ClientCredentials are the client id and secret presented at the token endpoint.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
}
