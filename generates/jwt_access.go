package generates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/errors"
	"github.com/legit-games/grant-engine/models"
)

// JWTAccessClaims jwt claims
type JWTAccessClaims struct {
	jwt.RegisteredClaims
	ClientID string `json:"client_id,omitempty"`
	Scope    string `json:"scope,omitempty"` // Space-separated scopes per RFC 6749
	TokenUse string `json:"token_use"`
}

// NewJWTAccessGenerate create to generate the jwt access token instance
func NewJWTAccessGenerate(keys oauth2.KeySource, issuer string, ttl time.Duration, now func() time.Time) *JWTAccessGenerate {
	if now == nil {
		now = time.Now
	}
	return &JWTAccessGenerate{
		Keys:   keys,
		Issuer: issuer,
		TTL:    ttl,
		Method: jwt.SigningMethodRS256,
		now:    now,
	}
}

// JWTAccessGenerate signs and verifies RS256 access tokens. Every token
// carries the kid of the key that signed it.
type JWTAccessGenerate struct {
	Keys   oauth2.KeySource
	Issuer string
	TTL    time.Duration
	Method jwt.SigningMethod
	now    func() time.Time
}

var _ oauth2.SigningService = (*JWTAccessGenerate)(nil)

// Sign stamps issuer, issued-at, expiry and kind onto payload and returns the
// signed token.
func (a *JWTAccessGenerate) Sign(ctx context.Context, payload *models.AccessTokenPayload) (string, error) {
	issued := a.now().Truncate(time.Second)
	payload.Issuer = a.Issuer
	payload.IssuedAt = issued
	payload.ExpiresAt = issued.Add(a.TTL)
	payload.Kind = models.TokenKindAccess

	claims := &JWTAccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    payload.Issuer,
			Subject:   payload.Subject,
			Audience:  jwt.ClaimStrings{payload.Audience},
			IssuedAt:  jwt.NewNumericDate(payload.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(payload.ExpiresAt),
		},
		ClientID: payload.Audience,
		Scope:    models.JoinScopes(payload.Scopes),
		TokenUse: payload.Kind,
	}

	kid, key := a.Keys.SigningKeyID()
	token := jwt.NewWithClaims(a.Method, claims)
	token.Header["kid"] = kid

	access, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return access, nil
}

// Verify checks signature, issuer, expiry and kind. Any failure yields
// errors.ErrInvalidAccessToken.
func (a *JWTAccessGenerate) Verify(ctx context.Context, token string) (*models.AccessTokenPayload, error) {
	claims := &JWTAccessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, a.keyFunc,
		jwt.WithValidMethods([]string{a.Method.Alg()}),
		jwt.WithIssuer(a.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidAccessToken, err)
	}
	if claims.TokenUse != models.TokenKindAccess {
		return nil, fmt.Errorf("%w: token_use %q", errors.ErrInvalidAccessToken, claims.TokenUse)
	}

	payload := &models.AccessTokenPayload{
		Subject:   claims.Subject,
		Scopes:    strings.Fields(claims.Scope),
		Issuer:    claims.Issuer,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Kind:      claims.TokenUse,
	}
	if len(claims.Audience) > 0 {
		payload.Audience = claims.Audience[0]
	}
	return payload, nil
}

func (a *JWTAccessGenerate) keyFunc(t *jwt.Token) (interface{}, error) {
	kid, _ := t.Header["kid"].(string)
	if kid == "" {
		return nil, errors.New("missing kid header")
	}
	return a.Keys.VerificationKey(kid)
}
