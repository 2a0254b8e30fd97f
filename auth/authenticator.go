// Package auth resolves opaque login-session references into authenticated
// users.
package auth

import (
	"context"
	"time"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/errors"
	"github.com/legit-games/grant-engine/models"
	"go.uber.org/zap"
)

// SessionAuthenticator validates login-session references. The reference is
// the login session id encrypted with the opaque token codec.
type SessionAuthenticator struct {
	sessions oauth2.LoginSessionStore
	users    oauth2.UserStore
	codec    oauth2.EncryptionService
	log      *zap.Logger
	now      func() time.Time
}

// NewSessionAuthenticator creates an authenticator. A nil logger disables logging.
func NewSessionAuthenticator(sessions oauth2.LoginSessionStore, users oauth2.UserStore, codec oauth2.EncryptionService, log *zap.Logger) *SessionAuthenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionAuthenticator{
		sessions: sessions,
		users:    users,
		codec:    codec,
		log:      log.Named("auth"),
		now:      time.Now,
	}
}

// SetClock replaces the time source used for expiry checks.
func (a *SessionAuthenticator) SetClock(now func() time.Time) { a.now = now }

// Authenticate returns the user and login session behind sessionToken and
// records the session as used. Every failure is reported as
// errors.ErrInvalidSession; the cause is only logged.
func (a *SessionAuthenticator) Authenticate(ctx context.Context, sessionToken string) (*models.User, *models.LoginSession, error) {
	if sessionToken == "" {
		return nil, nil, a.reject("empty session token", nil)
	}
	raw, err := a.codec.Decrypt(sessionToken)
	if err != nil {
		return nil, nil, a.reject("undecryptable session token", err)
	}
	sess, err := a.sessions.Get(ctx, string(raw))
	if err != nil {
		return nil, nil, a.reject("login session lookup failed", err)
	}
	now := a.now()
	if !sess.IsUsableAt(now) {
		return nil, nil, a.reject("login session inactive or expired", nil, zap.String("login_session", sess.ID))
	}
	user, err := a.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, a.reject("user lookup failed", err, zap.String("login_session", sess.ID))
	}
	if !user.Active {
		return nil, nil, a.reject("user inactive", nil, zap.String("user_id", user.ID))
	}

	if err := a.sessions.Touch(ctx, sess.ID, now); err != nil {
		a.log.Warn("failed to touch login session", zap.String("login_session", sess.ID), zap.Error(err))
	} else {
		sess.LastUsedAt = now
	}
	return user, sess, nil
}

// EncodeSessionToken builds the opaque reference for a login session id.
func (a *SessionAuthenticator) EncodeSessionToken(sessionID string) (string, error) {
	return a.codec.Encrypt([]byte(sessionID))
}

func (a *SessionAuthenticator) reject(reason string, err error, fields ...zap.Field) error {
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	a.log.Debug(reason, fields...)
	return errors.ErrInvalidSession
}
