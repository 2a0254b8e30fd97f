// Package manage implements the authorization code, implicit and refresh
// token grants on top of the request, session and token services.
package manage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/errors"
	"github.com/legit-games/grant-engine/models"
	"github.com/legit-games/grant-engine/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Dependencies are the collaborators of a Manager.
type Dependencies struct {
	Clients       oauth2.ClientStore
	Authenticator Authenticator
	Requests      oauth2.RequestStore
	Sessions      oauth2.SessionStore
	AccessTokens  oauth2.SigningService
	Opaque        oauth2.EncryptionService
	Logger        *zap.Logger
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Manager is the grant engine.
type Manager struct {
	cfg      Config
	clients  oauth2.ClientStore
	authn    Authenticator
	requests oauth2.RequestStore
	sessions oauth2.SessionStore
	access   oauth2.SigningService
	opaque   oauth2.EncryptionService
	log      *zap.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// NewManager wires a grant engine.
func NewManager(cfg Config, deps Dependencies) (*Manager, error) {
	switch {
	case deps.Clients == nil:
		return nil, errors.New("manage: client store is required")
	case deps.Authenticator == nil:
		return nil, errors.New("manage: authenticator is required")
	case deps.Requests == nil:
		return nil, errors.New("manage: request store is required")
	case deps.Sessions == nil:
		return nil, errors.New("manage: session store is required")
	case deps.AccessTokens == nil:
		return nil, errors.New("manage: access token service is required")
	case deps.Opaque == nil:
		return nil, errors.New("manage: opaque token service is required")
	}
	cfg.withDefaults()
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		cfg:      cfg,
		clients:  deps.Clients,
		authn:    deps.Authenticator,
		requests: deps.Requests,
		sessions: deps.Sessions,
		access:   deps.AccessTokens,
		opaque:   deps.Opaque,
		log:      log.Named("manage"),
		tracer:   otel.Tracer("github.com/legit-games/grant-engine/manage"),
		now:      now,
	}, nil
}

// Config returns the effective configuration.
func (m *Manager) Config() Config { return m.cfg }

// Authorize validates an authorize call. Errors returned directly mean no
// redirect target could be trusted; errors after that point are placed in
// AuthorizeResult.Err for delivery through the client's channel.
func (m *Manager) Authorize(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResult, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Authorize", trace.WithAttributes(
		attribute.String("oauth2.client_id", req.ClientID),
		attribute.String("oauth2.response_type", req.ResponseType.String()),
		attribute.String("oauth2.code_challenge_method", req.CodeChallengeMethod.String()),
	))
	defer span.End()

	client, err := m.clients.GetByID(ctx, req.ClientID)
	if err != nil {
		return nil, m.fail(span, errors.ErrInvalidClientID, err)
	}
	if req.RedirectURI == "" {
		return nil, m.fail(span, errors.ErrInvalidRedirectURI, nil)
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, m.fail(span, errors.ErrNotMatchingConfiguration, nil)
	}

	switch req.ResponseType {
	case oauth2.Code, oauth2.WebMessage:
		if err := checkChallenge(req.CodeChallenge, req.CodeChallengeMethod); err != nil {
			return nil, m.fail(span, err, nil)
		}
	case oauth2.Token:
		if !m.cfg.AllowImplicit {
			return nil, m.fail(span, errors.ErrUnsupportedResponseType, nil)
		}
	default:
		return nil, m.fail(span, errors.ErrUnsupportedResponseType, nil)
	}

	result := &AuthorizeResult{
		ResponseType: req.ResponseType,
		RedirectURI:  req.RedirectURI,
		State:        req.State,
	}

	user, _, err := m.authn.Authenticate(ctx, req.SessionToken)
	if err != nil {
		result.Err = errors.ErrNotAuthenticated
		span.RecordError(result.Err)
		return result, nil
	}
	scopes, err := checkScopes(req.Scopes, client.Scopes)
	if err != nil {
		result.Err = err
		span.RecordError(err)
		return result, nil
	}

	if req.ResponseType == oauth2.Token {
		tr, err := m.issueAccess(ctx, user.ID, client.ID, scopes)
		if err != nil {
			return nil, m.fail(span, err, nil)
		}
		result.Token = tr
		m.log.Info("issued implicit access token", zap.String("client_id", client.ID), zap.String("user_id", user.ID))
		return result, nil
	}

	now := m.now()
	ar := &models.AuthorizationRequest{
		ClientID:            client.ID,
		ClientRedirectURIs:  client.RedirectURIs,
		ClientScopes:        client.Scopes,
		Scopes:              scopes,
		RedirectURI:         req.RedirectURI,
		ResponseType:        req.ResponseType.String(),
		UserID:              user.ID,
		State:               req.State,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: req.CodeChallengeMethod.String(),
		CreatedAt:           now,
		ExpiresAt:           now.Add(m.cfg.AuthCodeTTL),
	}
	code, err := m.requests.Create(ctx, ar)
	if err != nil {
		return nil, m.fail(span, errors.ErrServerError, err)
	}
	result.Code = code
	m.log.Debug("issued authorization code",
		zap.String("client_id", client.ID),
		zap.String("user_id", user.ID),
		zap.Bool("pkce", ar.HasPKCE()))
	return result, nil
}

// ExchangeCode redeems an authorization code for an access and refresh token.
func (m *Manager) ExchangeCode(ctx context.Context, creds ClientCredentials, code, redirectURI, codeVerifier string) (*models.TokenResponse, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.ExchangeCode", trace.WithAttributes(
		attribute.String("oauth2.client_id", creds.ClientID),
		attribute.String("oauth2.grant_type", oauth2.AuthorizationCode.String()),
	))
	defer span.End()

	if code == "" {
		return nil, m.fail(span, errors.ErrInvalidAuthorizationCode, nil)
	}
	ar, err := m.requests.Consume(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrAuthorizationRequestNotFound) {
			return nil, m.fail(span, errors.ErrInvalidAuthorizationCode, nil)
		}
		return nil, m.fail(span, errors.ErrServerError, err)
	}
	if ar.IsExpiredAt(m.now()) || ar.ClientID != creds.ClientID {
		return nil, m.fail(span, errors.ErrInvalidAuthorizationCode, nil)
	}
	if redirectURI != ar.RedirectURI {
		return nil, m.fail(span, errors.ErrInvalidRedirectURI, nil)
	}

	client, err := m.clients.GetByID(ctx, ar.ClientID)
	if err != nil {
		return nil, m.fail(span, errors.ErrInvalidClientCredentials, err)
	}
	if ar.HasPKCE() {
		span.SetAttributes(attribute.String("oauth2.code_challenge_method", ar.CodeChallengeMethod))
		method := oauth2.CodeChallengeMethod(ar.CodeChallengeMethod)
		if codeVerifier == "" || !method.Validate(ar.CodeChallenge, codeVerifier) {
			return nil, m.fail(span, errors.ErrInvalidCodeVerifier, nil)
		}
		if creds.ClientSecret != "" && !client.VerifyPassword(creds.ClientSecret) {
			return nil, m.fail(span, errors.ErrInvalidClientCredentials, nil)
		}
	} else if !client.VerifyPassword(creds.ClientSecret) {
		return nil, m.fail(span, errors.ErrInvalidClientCredentials, nil)
	}

	sess, err := m.sessions.Create(ctx, ar.UserID, ar.ClientID, ar.Scopes)
	if err != nil {
		return nil, m.fail(span, errors.ErrServerError, err)
	}
	tr, err := m.issueTokens(ctx, sess, sess.TokenID, ar.Scopes)
	if err != nil {
		return nil, m.fail(span, err, nil)
	}
	m.log.Info("exchanged authorization code",
		zap.String("client_id", ar.ClientID),
		zap.String("user_id", ar.UserID),
		zap.String("session_id", sess.ID))
	return tr, nil
}

// Refresh rotates the session behind refreshToken and issues a new token
// pair. scopes may narrow the granted scopes for the new access token; the
// session keeps its original grant.
func (m *Manager) Refresh(ctx context.Context, creds ClientCredentials, refreshToken string, scopes []string) (*models.TokenResponse, error) {
	ctx, span := m.tracer.Start(ctx, "Manager.Refresh", trace.WithAttributes(
		attribute.String("oauth2.client_id", creds.ClientID),
		attribute.String("oauth2.grant_type", oauth2.Refreshing.String()),
	))
	defer span.End()

	sess, tokenID, err := m.lookupRefresh(ctx, refreshToken)
	if err != nil {
		return nil, m.fail(span, err, nil)
	}
	if sess.ClientID != creds.ClientID {
		return nil, m.fail(span, errors.ErrInvalidRefreshToken, nil)
	}
	client, err := m.clients.GetByID(ctx, sess.ClientID)
	if err != nil {
		return nil, m.fail(span, errors.ErrInvalidRefreshToken, err)
	}
	if !client.IsPublic() && !client.VerifyPassword(creds.ClientSecret) {
		return nil, m.fail(span, errors.ErrInvalidClientCredentials, nil)
	}

	if m.now().Sub(sess.LastRefreshAt) > m.cfg.RefreshTokenTTL {
		if err := m.sessions.Revoke(ctx, sess.ID); err != nil {
			m.log.Warn("failed to revoke idle session", zap.String("session_id", sess.ID), zap.Error(err))
		}
		return nil, m.fail(span, errors.ErrInvalidRefreshToken, nil)
	}

	granted := sess.Scopes()
	if len(scopes) > 0 {
		narrowed, err := checkScopes(scopes, granted)
		if err != nil {
			return nil, m.fail(span, err, nil)
		}
		granted = narrowed
	}

	newTokenID := uuid.NewString()
	if err := m.sessions.Rotate(ctx, sess.ID, tokenID, newTokenID); err != nil {
		if errors.Is(err, store.ErrSessionConflict) {
			m.log.Warn("refresh token replayed or raced", zap.String("session_id", sess.ID))
			return nil, m.fail(span, errors.ErrInvalidRefreshToken, nil)
		}
		return nil, m.fail(span, errors.ErrServerError, err)
	}

	tr, err := m.issueTokens(ctx, sess, newTokenID, granted)
	if err != nil {
		return nil, m.fail(span, err, nil)
	}
	m.log.Debug("rotated refresh token", zap.String("session_id", sess.ID))
	return tr, nil
}

// RevokeRefreshToken revokes the session behind refreshToken. Tokens that do
// not resolve to a session of the client are ignored.
func (m *Manager) RevokeRefreshToken(ctx context.Context, creds ClientCredentials, refreshToken string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.RevokeRefreshToken", trace.WithAttributes(
		attribute.String("oauth2.client_id", creds.ClientID),
	))
	defer span.End()

	client, err := m.clients.GetByID(ctx, creds.ClientID)
	if err != nil {
		return m.fail(span, errors.ErrInvalidClientCredentials, err)
	}
	if !client.IsPublic() && !client.VerifyPassword(creds.ClientSecret) {
		return m.fail(span, errors.ErrInvalidClientCredentials, nil)
	}

	sess, _, err := m.lookupRefresh(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRefreshToken) {
			return nil
		}
		return m.fail(span, err, nil)
	}
	if sess.ClientID != client.ID {
		return nil
	}
	if err := m.sessions.Revoke(ctx, sess.ID); err != nil {
		return m.fail(span, errors.ErrServerError, err)
	}
	m.log.Info("revoked oauth2 session", zap.String("session_id", sess.ID), zap.String("client_id", client.ID))
	return nil
}

// RevokeAllForUser revokes every session of userID.
func (m *Manager) RevokeAllForUser(ctx context.Context, userID string) error {
	ctx, span := m.tracer.Start(ctx, "Manager.RevokeAllForUser")
	defer span.End()

	if err := m.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return m.fail(span, errors.ErrServerError, err)
	}
	m.log.Info("revoked all oauth2 sessions", zap.String("user_id", userID))
	return nil
}

// VerifyAccessToken checks an access token issued by this engine.
func (m *Manager) VerifyAccessToken(ctx context.Context, token string) (*models.AccessTokenPayload, error) {
	return m.access.Verify(ctx, token)
}

func (m *Manager) lookupRefresh(ctx context.Context, refreshToken string) (*models.OAuth2Session, string, error) {
	if refreshToken == "" {
		return nil, "", errors.ErrInvalidRefreshToken
	}
	raw, err := m.opaque.Decrypt(refreshToken)
	if err != nil {
		return nil, "", errors.ErrInvalidRefreshToken
	}
	tokenID := string(raw)
	sess, err := m.sessions.GetByTokenID(ctx, tokenID)
	if err != nil {
		if errors.Is(err, store.ErrSessionNotFound) {
			return nil, "", errors.ErrInvalidRefreshToken
		}
		return nil, "", fmt.Errorf("%w: %v", errors.ErrServerError, err)
	}
	return sess, tokenID, nil
}

func (m *Manager) issueAccess(ctx context.Context, userID, clientID string, scopes []string) (*models.TokenResponse, error) {
	payload := &models.AccessTokenPayload{Subject: userID, Audience: clientID, Scopes: scopes}
	access, err := m.access.Sign(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrServerError, err)
	}
	return &models.TokenResponse{
		AccessToken: access,
		TokenType:   oauth2.TokenTypeBearer,
		ExpiresIn:   payload.ExpiresAt.Sub(payload.IssuedAt),
		Scope:       models.JoinScopes(scopes),
	}, nil
}

func (m *Manager) issueTokens(ctx context.Context, sess *models.OAuth2Session, tokenID string, scopes []string) (*models.TokenResponse, error) {
	tr, err := m.issueAccess(ctx, sess.UserID, sess.ClientID, scopes)
	if err != nil {
		return nil, err
	}
	refresh, err := m.opaque.Encrypt([]byte(tokenID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrServerError, err)
	}
	tr.RefreshToken = refresh
	return tr, nil
}

// fail records err on the span and logs the cause of server errors.
func (m *Manager) fail(span trace.Span, err error, cause error) error {
	span.RecordError(err)
	if errors.Is(err, errors.ErrServerError) {
		span.SetStatus(codes.Error, err.Error())
		if cause != nil {
			m.log.Error("grant engine failure", zap.Error(cause))
			return fmt.Errorf("%w: %v", err, cause)
		}
		m.log.Error("grant engine failure", zap.Error(err))
		return err
	}
	if cause != nil {
		m.log.Debug("grant rejected", zap.Error(err), zap.NamedError("cause", cause))
	}
	return err
}
