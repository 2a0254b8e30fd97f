package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
	"github.com/tidwall/buntdb"
)

// MemoryRequestStore keeps authorization requests in an in-memory buntdb.
type MemoryRequestStore struct {
	db  *buntdb.DB
	ttl time.Duration
	now func() time.Time
}

var _ oauth2.RequestStore = (*MemoryRequestStore)(nil)

// NewMemoryRequestStore create an in-memory authorization request store
func NewMemoryRequestStore() (*MemoryRequestStore, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &MemoryRequestStore{db: db, ttl: DefaultAuthRequestTTL, now: time.Now}, nil
}

// SetTTL sets the TTL applied to requests that carry no expiry.
func (s *MemoryRequestStore) SetTTL(ttl time.Duration) { s.ttl = ttl }

// SetClock replaces the time source used for expiry checks.
func (s *MemoryRequestStore) SetClock(now func() time.Time) { s.now = now }

// Close releases the underlying database.
func (s *MemoryRequestStore) Close() error { return s.db.Close() }

// Create stores req under a fresh code.
func (s *MemoryRequestStore) Create(ctx context.Context, req *models.AuthorizationRequest) (string, error) {
	ttl := stampRequest(req, s.now(), s.ttl)
	data, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal authorization request: %w", err)
	}

	var code string
	err = s.db.Update(func(tx *buntdb.Tx) error {
		for i := 0; i < maxCodeAttempts; i++ {
			c, err := generateCode()
			if err != nil {
				return err
			}
			if _, err := tx.Get(c); err == nil {
				continue
			}
			if _, _, err := tx.Set(c, string(data), &buntdb.SetOptions{Expires: true, TTL: ceilSeconds(ttl)}); err != nil {
				return err
			}
			code = c
			return nil
		}
		return errors.New("failed to allocate a unique authorization code")
	})
	if err != nil {
		return "", err
	}
	return code, nil
}

// Consume deletes and returns the request inside a single write transaction.
func (s *MemoryRequestStore) Consume(ctx context.Context, code string) (*models.AuthorizationRequest, error) {
	if code == "" {
		return nil, ErrAuthorizationRequestNotFound
	}
	var val string
	err := s.db.Update(func(tx *buntdb.Tx) error {
		v, err := tx.Delete(code)
		if err != nil {
			return err
		}
		val = v
		return nil
	})
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, ErrAuthorizationRequestNotFound
		}
		return nil, err
	}
	return decodeRequest(val, s.now())
}
