package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
	valkey "github.com/valkey-io/valkey-go"
)

// ErrAuthorizationRequestNotFound indicates the authorization request was not
// found, was already consumed, or has expired.
var ErrAuthorizationRequestNotFound = errors.New("authorization request not found")

// DefaultAuthRequestTTL is the default lifetime of an authorization code.
const DefaultAuthRequestTTL = 60 * time.Second

// AuthorizationRequestStore stores authorization requests in Valkey (Redis-compatible).
type AuthorizationRequestStore struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

var _ oauth2.RequestStore = (*AuthorizationRequestStore)(nil)

// NewAuthorizationRequestStore creates a Valkey-backed authorization request store.
func NewAuthorizationRequestStore(addr string, prefix string) (*AuthorizationRequestStore, error) {
	cli, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, err
	}
	return NewAuthorizationRequestStoreWithClient(cli, prefix), nil
}

// NewAuthorizationRequestStoreWithClient creates a store with an existing Valkey client.
func NewAuthorizationRequestStoreWithClient(client valkey.Client, prefix string) *AuthorizationRequestStore {
	if prefix == "" {
		prefix = "iam:"
	}
	return &AuthorizationRequestStore{
		client: client,
		prefix: prefix,
		ttl:    DefaultAuthRequestTTL,
		now:    time.Now,
	}
}

// SetTTL sets the TTL applied to requests that carry no expiry.
func (s *AuthorizationRequestStore) SetTTL(ttl time.Duration) {
	s.ttl = ttl
}

// SetClock replaces the time source used for expiry checks.
func (s *AuthorizationRequestStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AuthorizationRequestStore) key(code string) string {
	return fmt.Sprintf("%sauth_request:%s", s.prefix, code)
}

// Create stores req under a fresh code. SET NX guards against overwriting a
// live request on collision.
func (s *AuthorizationRequestStore) Create(ctx context.Context, req *models.AuthorizationRequest) (string, error) {
	ttl := stampRequest(req, s.now(), s.ttl)
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal authorization request: %w", err)
	}

	for i := 0; i < maxCodeAttempts; i++ {
		code, err := generateCode()
		if err != nil {
			return "", err
		}
		cmd := s.client.B().Set().Key(s.key(code)).Value(string(data)).Nx().Ex(ceilSeconds(ttl)).Build()
		err = s.client.Do(ctx, cmd).Error()
		if err == nil {
			return code, nil
		}
		if !valkey.IsValkeyNil(err) {
			return "", fmt.Errorf("failed to save authorization request: %w", err)
		}
	}
	return "", errors.New("failed to allocate a unique authorization code")
}

// Consume reads and deletes the request in one GETDEL round trip, so at most
// one caller ever receives it.
func (s *AuthorizationRequestStore) Consume(ctx context.Context, code string) (*models.AuthorizationRequest, error) {
	if code == "" {
		return nil, ErrAuthorizationRequestNotFound
	}
	res := s.client.Do(ctx, s.client.B().Getdel().Key(s.key(code)).Build())
	if err := res.Error(); err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, ErrAuthorizationRequestNotFound
		}
		return nil, err
	}
	val, err := res.ToString()
	if err != nil || val == "" {
		return nil, ErrAuthorizationRequestNotFound
	}
	return decodeRequest(val, s.now())
}

// stampRequest fills CreatedAt/ExpiresAt when absent and returns the
// remaining lifetime.
func stampRequest(req *models.AuthorizationRequest, now time.Time, ttl time.Duration) time.Duration {
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	if req.ExpiresAt.IsZero() {
		req.ExpiresAt = req.CreatedAt.Add(ttl)
	}
	return req.ExpiresAt.Sub(now)
}

func decodeRequest(val string, now time.Time) (*models.AuthorizationRequest, error) {
	var req models.AuthorizationRequest
	if err := json.Unmarshal([]byte(val), &req); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization request: %w", err)
	}
	if req.IsExpiredAt(now) {
		return nil, ErrAuthorizationRequestNotFound
	}
	return &req, nil
}
