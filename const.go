package oauth2

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// ResponseType the type of authorization request
type ResponseType string

// define the type of authorization request
const (
	Code       ResponseType = "code"
	Token      ResponseType = "token"
	WebMessage ResponseType = "web_message"
)

func (rt ResponseType) String() string {
	return string(rt)
}

// GrantType authorization model
type GrantType string

// define authorization model
const (
	AuthorizationCode GrantType = "authorization_code"
	Refreshing        GrantType = "refresh_token"
)

func (gt GrantType) String() string {
	if gt == AuthorizationCode || gt == Refreshing {
		return string(gt)
	}
	return ""
}

// CodeChallengeMethod PKCE method
type CodeChallengeMethod string

// S256 is the only method accepted; plain is rejected at authorize time.
const (
	CodeChallengeS256 CodeChallengeMethod = "S256"
)

func (ccm CodeChallengeMethod) String() string {
	return string(ccm)
}

// Validate reports whether verifier hashes to challenge under this method.
func (ccm CodeChallengeMethod) Validate(challenge, verifier string) bool {
	switch ccm {
	case CodeChallengeS256:
		sum := sha256.Sum256([]byte(verifier))
		computed := base64.RawURLEncoding.EncodeToString(sum[:])
		return subtle.ConstantTimeCompare([]byte(computed), []byte(strings.TrimRight(challenge, "="))) == 1
	default:
		return false
	}
}

// TokenTypeBearer is the token_type reported by the token endpoint.
const TokenTypeBearer = "Bearer"
