package oauth2

import (
	"context"
	"crypto/rsa"
	"time"

	"github.com/legit-games/grant-engine/models"
)

type (
	// ClientStore the client information storage interface
	ClientStore interface {
		// GetByID according to the ID for the client information
		GetByID(ctx context.Context, id string) (*models.Client, error)
	}

	// UserStore resolves end users by id.
	UserStore interface {
		GetByID(ctx context.Context, id string) (*models.User, error)
	}

	// LoginSessionStore is the end user's session store. The grant engine
	// only reads sessions and refreshes their last-used timestamp.
	LoginSessionStore interface {
		Get(ctx context.Context, id string) (*models.LoginSession, error)
		Touch(ctx context.Context, id string, at time.Time) error
	}

	// RequestStore holds pending authorization requests under one-time codes.
	RequestStore interface {
		// Create stores req under a fresh random code and returns the code.
		Create(ctx context.Context, req *models.AuthorizationRequest) (string, error)
		// Consume atomically reads and removes the request stored under code.
		// A second call with the same code must fail.
		Consume(ctx context.Context, code string) (*models.AuthorizationRequest, error)
	}

	// SessionStore holds OAuth2 sessions indexed by id and current token id.
	SessionStore interface {
		Create(ctx context.Context, userID, clientID string, scopes []string) (*models.OAuth2Session, error)
		Get(ctx context.Context, sessionID string) (*models.OAuth2Session, error)
		GetByTokenID(ctx context.Context, tokenID string) (*models.OAuth2Session, error)
		// Rotate replaces expectedTokenID with newTokenID as a single
		// conditional update and fails if expectedTokenID is no longer current.
		Rotate(ctx context.Context, sessionID, expectedTokenID, newTokenID string) error
		Revoke(ctx context.Context, sessionID string) error
		RevokeAllForUser(ctx context.Context, userID string) error
	}

	// KeySource selects signing keys and resolves keys by kid.
	KeySource interface {
		SigningKeyID() (kid string, key *rsa.PrivateKey)
		VerificationKey(kid string) (*rsa.PublicKey, error)
		DecryptionKey(kid string) (*rsa.PrivateKey, error)
	}

	// SigningService issues and verifies stateless access tokens.
	SigningService interface {
		// Sign fills in issuer and expiry and returns the signed token.
		Sign(ctx context.Context, payload *models.AccessTokenPayload) (string, error)
		Verify(ctx context.Context, token string) (*models.AccessTokenPayload, error)
	}

	// EncryptionService wraps raw identifiers into opaque tokens.
	EncryptionService interface {
		Encrypt(raw []byte) (string, error)
		Decrypt(token string) ([]byte, error)
	}
)
