package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
	"github.com/tidwall/buntdb"
)

// MemoryLoginSessionStore keeps login sessions in an in-memory buntdb.
type MemoryLoginSessionStore struct {
	db *buntdb.DB
}

var _ oauth2.LoginSessionStore = (*MemoryLoginSessionStore)(nil)

// NewMemoryLoginSessionStore create an in-memory login session store
func NewMemoryLoginSessionStore() (*MemoryLoginSessionStore, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &MemoryLoginSessionStore{db: db}, nil
}

// Close releases the underlying database.
func (s *MemoryLoginSessionStore) Close() error { return s.db.Close() }

// Put stores sess.
func (s *MemoryLoginSessionStore) Put(ctx context.Context, sess *models.LoginSession) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(sess.ID, string(data), nil)
		return err
	})
}

// Get loads a login session.
func (s *MemoryLoginSessionStore) Get(ctx context.Context, id string) (*models.LoginSession, error) {
	var sess *models.LoginSession
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		sess, err = getLoginSession(tx, id)
		return err
	})
	return sess, err
}

// Touch records at as the session's last use.
func (s *MemoryLoginSessionStore) Touch(ctx context.Context, id string, at time.Time) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		sess, err := getLoginSession(tx, id)
		if err != nil {
			return err
		}
		sess.LastUsedAt = at
		data, err := json.Marshal(sess)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(id, string(data), nil)
		return err
	})
}

func getLoginSession(tx *buntdb.Tx, id string) (*models.LoginSession, error) {
	val, err := tx.Get(id)
	if err != nil {
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil, ErrLoginSessionNotFound
		}
		return nil, err
	}
	var sess models.LoginSession
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}
