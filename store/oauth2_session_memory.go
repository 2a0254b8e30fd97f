package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
	"github.com/tidwall/buntdb"
)

// MemorySessionStore keeps OAuth2 sessions in an in-memory buntdb. Keys:
// session:<id> holds the session, token:<token id> points at the session id
// and user:<user id>:<session id> indexes sessions by user.
type MemorySessionStore struct {
	db  *buntdb.DB
	now func() time.Time
}

var _ oauth2.SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore create an in-memory session store
func NewMemorySessionStore() (*MemorySessionStore, error) {
	db, err := buntdb.Open(":memory:")
	if err != nil {
		return nil, err
	}
	return &MemorySessionStore{db: db, now: time.Now}, nil
}

// SetClock replaces the time source used for timestamps.
func (s *MemorySessionStore) SetClock(now func() time.Time) { s.now = now }

// Close releases the underlying database.
func (s *MemorySessionStore) Close() error { return s.db.Close() }

func sessionKey(id string) string       { return "session:" + id }
func tokenKey(tokenID string) string    { return "token:" + tokenID }
func userKey(userID, sid string) string { return userPrefix(userID) + sid }
func userPrefix(userID string) string   { return "user:" + userID + ":" }

// Create stores a new session with a fresh token id.
func (s *MemorySessionStore) Create(ctx context.Context, userID, clientID string, scopes []string) (*models.OAuth2Session, error) {
	now := s.now().UTC()
	sess := &models.OAuth2Session{
		ID:            models.NewSessionID(),
		UserID:        userID,
		ClientID:      clientID,
		TokenID:       uuid.NewString(),
		Scope:         models.JoinScopes(scopes),
		LastRefreshAt: now,
		CreatedAt:     now,
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		return putSession(tx, sess)
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session by id.
func (s *MemorySessionStore) Get(ctx context.Context, sessionID string) (*models.OAuth2Session, error) {
	var sess *models.OAuth2Session
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		sess, err = getSession(tx, sessionID)
		return err
	})
	return sess, err
}

// GetByTokenID loads the session whose current token id is tokenID.
func (s *MemorySessionStore) GetByTokenID(ctx context.Context, tokenID string) (*models.OAuth2Session, error) {
	var sess *models.OAuth2Session
	err := s.db.View(func(tx *buntdb.Tx) error {
		sid, err := tx.Get(tokenKey(tokenID))
		if err != nil {
			return notFound(err)
		}
		sess, err = getSession(tx, sid)
		return err
	})
	return sess, err
}

// Rotate compares and swaps the token id inside one write transaction.
func (s *MemorySessionStore) Rotate(ctx context.Context, sessionID, expectedTokenID, newTokenID string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		sess, err := getSession(tx, sessionID)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return ErrSessionConflict
			}
			return err
		}
		if sess.TokenID != expectedTokenID {
			return ErrSessionConflict
		}
		if _, err := tx.Delete(tokenKey(expectedTokenID)); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
		sess.TokenID = newTokenID
		sess.LastRefreshAt = s.now().UTC()
		return putSession(tx, sess)
	})
}

// Revoke deletes a session. Unknown ids are not an error.
func (s *MemorySessionStore) Revoke(ctx context.Context, sessionID string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		return deleteSession(tx, sessionID)
	})
}

// RevokeAllForUser deletes every session of userID.
func (s *MemorySessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.db.Update(func(tx *buntdb.Tx) error {
		prefix := userPrefix(userID)
		var ids []string
		err := tx.AscendGreaterOrEqual("", prefix, func(key, _ string) bool {
			if !strings.HasPrefix(key, prefix) {
				return false
			}
			ids = append(ids, strings.TrimPrefix(key, prefix))
			return true
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteSession(tx, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteIdle removes sessions last refreshed before cutoff.
func (s *MemorySessionStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	err := s.db.Update(func(tx *buntdb.Tx) error {
		var ids []string
		err := tx.AscendGreaterOrEqual("", "session:", func(key, val string) bool {
			if !strings.HasPrefix(key, "session:") {
				return false
			}
			var sess models.OAuth2Session
			if json.Unmarshal([]byte(val), &sess) == nil && sess.LastRefreshAt.Before(cutoff) {
				ids = append(ids, sess.ID)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := deleteSession(tx, id); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	return n, err
}

func putSession(tx *buntdb.Tx, sess *models.OAuth2Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	if _, _, err := tx.Set(sessionKey(sess.ID), string(data), nil); err != nil {
		return err
	}
	if _, _, err := tx.Set(tokenKey(sess.TokenID), sess.ID, nil); err != nil {
		return err
	}
	_, _, err = tx.Set(userKey(sess.UserID, sess.ID), "", nil)
	return err
}

func getSession(tx *buntdb.Tx, sessionID string) (*models.OAuth2Session, error) {
	val, err := tx.Get(sessionKey(sessionID))
	if err != nil {
		return nil, notFound(err)
	}
	var sess models.OAuth2Session
	if err := json.Unmarshal([]byte(val), &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

func deleteSession(tx *buntdb.Tx, sessionID string) error {
	sess, err := getSession(tx, sessionID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil
		}
		return err
	}
	for _, k := range []string{sessionKey(sess.ID), tokenKey(sess.TokenID), userKey(sess.UserID, sess.ID)} {
		if _, err := tx.Delete(k); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
			return err
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, buntdb.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}
