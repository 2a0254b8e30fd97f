package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/models"
	"gorm.io/gorm"
)

var (
	// ErrSessionNotFound indicates no session matches the id or token id.
	ErrSessionNotFound = errors.New("oauth2 session not found")
	// ErrSessionConflict indicates the expected token id is no longer current.
	ErrSessionConflict = errors.New("oauth2 session token id changed")
)

// SessionStore persists OAuth2 sessions in the oauth2_sessions table.
type SessionStore struct {
	DB  *gorm.DB
	now func() time.Time
}

var _ oauth2.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a gorm-backed session store.
func NewSessionStore(db *gorm.DB) *SessionStore {
	return &SessionStore{DB: db, now: time.Now}
}

// SetClock replaces the time source used for timestamps.
func (s *SessionStore) SetClock(now func() time.Time) { s.now = now }

// Create inserts a new session with a fresh token id.
func (s *SessionStore) Create(ctx context.Context, userID, clientID string, scopes []string) (*models.OAuth2Session, error) {
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
	if err := s.DB.WithContext(ctx).Create(sess).Error; err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session by id.
func (s *SessionStore) Get(ctx context.Context, sessionID string) (*models.OAuth2Session, error) {
	return s.first(ctx, "id = ?", sessionID)
}

// GetByTokenID loads the session whose current token id is tokenID.
func (s *SessionStore) GetByTokenID(ctx context.Context, tokenID string) (*models.OAuth2Session, error) {
	return s.first(ctx, "token_id = ?", tokenID)
}

func (s *SessionStore) first(ctx context.Context, query string, arg string) (*models.OAuth2Session, error) {
	var sess models.OAuth2Session
	err := s.DB.WithContext(ctx).Where(query, arg).First(&sess).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &sess, nil
}

// Rotate swaps the token id with a single conditional UPDATE. Of two
// concurrent rotations presenting the same expected id, exactly one matches a
// row.
func (s *SessionStore) Rotate(ctx context.Context, sessionID, expectedTokenID, newTokenID string) error {
	result := s.DB.WithContext(ctx).Model(&models.OAuth2Session{}).
		Where("id = ? AND token_id = ?", sessionID, expectedTokenID).
		Updates(map[string]interface{}{
			"token_id":        newTokenID,
			"last_refresh_at": s.now().UTC(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSessionConflict
	}
	return nil
}

// Revoke deletes a session. Unknown ids are not an error.
func (s *SessionStore) Revoke(ctx context.Context, sessionID string) error {
	return s.DB.WithContext(ctx).Where("id = ?", sessionID).Delete(&models.OAuth2Session{}).Error
}

// RevokeAllForUser deletes every session of userID.
func (s *SessionStore) RevokeAllForUser(ctx context.Context, userID string) error {
	return s.DB.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.OAuth2Session{}).Error
}

// DeleteIdle removes sessions last refreshed before cutoff.
func (s *SessionStore) DeleteIdle(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.DB.WithContext(ctx).Where("last_refresh_at < ?", cutoff.UTC()).Delete(&models.OAuth2Session{})
	return result.RowsAffected, result.Error
}
