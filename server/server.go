package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-session/session/v3"
	"go.uber.org/zap"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/errors"
	"github.com/legit-games/grant-engine/manage"
	"github.com/legit-games/grant-engine/models"
)

// KeySet publishes the verification keys of the token issuer.
type KeySet interface {
	JWKS() jose.JSONWebKeySet
}

// ClientInfoHandler get client info from request
type ClientInfoHandler func(r *http.Request) (clientID, clientSecret string, err error)

// Server Provide the HTTP surface of the grant engine
type Server struct {
	Config            *Config
	Manager           *manage.Manager
	Keys              KeySet
	Logger            *zap.Logger
	ClientInfoHandler ClientInfoHandler
	limiter           *RateLimiter
}

// NewServer create authorization server
func NewServer(cfg *Config, manager *manage.Manager, keys KeySet, logger *zap.Logger) *Server {
	if cfg == nil {
		cfg = NewConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Config:            cfg,
		Manager:           manager,
		Keys:              keys,
		Logger:            logger.Named("server"),
		ClientInfoHandler: ClientBasicOrFormHandler,
		limiter:           NewRateLimiter(cfg.TokenRateLimit, cfg.RateLimitWindow),
	}
}

// SetClientInfoHandler get client info from request
func (s *Server) SetClientInfoHandler(handler ClientInfoHandler) {
	s.ClientInfoHandler = handler
}

// ValidationAuthorizeRequest parses an authorize call from query or form values.
func (s *Server) ValidationAuthorizeRequest(w http.ResponseWriter, r *http.Request) (*manage.AuthorizeRequest, error) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		return nil, errors.ErrInvalidRequest
	}
	clientID := r.FormValue("client_id")
	if clientID == "" {
		return nil, errors.ErrInvalidClientID
	}
	return &manage.AuthorizeRequest{
		SessionToken:        s.loginSessionToken(w, r),
		ClientID:            clientID,
		RedirectURI:         r.FormValue("redirect_uri"),
		Scopes:              strings.Fields(r.FormValue("scope")),
		ResponseType:        oauth2.ResponseType(r.FormValue("response_type")),
		State:               r.FormValue("state"),
		CodeChallenge:       r.FormValue("code_challenge"),
		CodeChallengeMethod: oauth2.CodeChallengeMethod(r.FormValue("code_challenge_method")),
	}, nil
}

// loginSessionToken reads the login-session reference from the bearer
// header, falling back to the cookie session.
func (s *Server) loginSessionToken(w http.ResponseWriter, r *http.Request) string {
	if token, ok := bearerToken(r); ok {
		return token
	}
	store, err := session.Start(r.Context(), w, r)
	if err != nil {
		s.Logger.Debug("session start failed", zap.Error(err))
		return ""
	}
	if v, ok := store.Get(s.Config.LoginSessionKey); ok {
		if token, ok := v.(string); ok {
			return token
		}
	}
	return ""
}

// SetLoginSession stores the login-session reference in the cookie session
// consulted by the authorize endpoint.
func (s *Server) SetLoginSession(w http.ResponseWriter, r *http.Request, token string) error {
	store, err := session.Start(r.Context(), w, r)
	if err != nil {
		return err
	}
	store.Set(s.Config.LoginSessionKey, token)
	return store.Save()
}

// HandleAuthorizeRequest the authorization request handling
func (s *Server) HandleAuthorizeRequest(w http.ResponseWriter, r *http.Request) error {
	req, err := s.ValidationAuthorizeRequest(w, r)
	if err != nil {
		return s.authorizeError(w, err)
	}

	res, err := s.Manager.Authorize(r.Context(), req)
	if err != nil {
		return s.authorizeError(w, err)
	}

	resp, err := BuildAuthorizeResponse(res)
	if err != nil {
		return s.authorizeError(w, err)
	}
	return resp.Write(w)
}

// authorizeError reports an error that happened before a redirect target
// was trusted; it is never sent to the redirect URI.
func (s *Server) authorizeError(w http.ResponseWriter, err error) error {
	data, statusCode, _ := s.GetErrorData(err)
	if statusCode < http.StatusInternalServerError {
		statusCode = http.StatusBadRequest
	}
	return s.token(w, data, nil, statusCode)
}

// HandleTokenRequest token request handling
func (s *Server) HandleTokenRequest(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return s.tokenError(w, errors.ErrInvalidRequest)
	}
	clientID, clientSecret, err := s.ClientInfoHandler(r)
	if err != nil {
		return s.tokenError(w, err)
	}
	creds := manage.ClientCredentials{ClientID: clientID, ClientSecret: clientSecret}
	ctx := r.Context()

	var tr *models.TokenResponse
	switch gt := oauth2.GrantType(r.FormValue("grant_type")); gt {
	case oauth2.AuthorizationCode:
		tr, err = s.Manager.ExchangeCode(ctx, creds,
			r.FormValue("code"),
			r.FormValue("redirect_uri"),
			r.FormValue("code_verifier"),
		)
	case oauth2.Refreshing:
		rt := r.FormValue("refresh_token")
		if rt == "" {
			return s.tokenError(w, errors.ErrInvalidRequest)
		}
		tr, err = s.Manager.Refresh(ctx, creds, rt, strings.Fields(r.FormValue("scope")))
	case "":
		err = errors.ErrInvalidRequest
	default:
		err = errors.ErrUnsupportedGrantType
	}
	if err != nil {
		return s.tokenError(w, err)
	}
	return s.token(w, s.GetTokenData(tr), nil)
}

// GetTokenData token data
func (s *Server) GetTokenData(tr *models.TokenResponse) map[string]interface{} {
	data := map[string]interface{}{
		"access_token": tr.AccessToken,
		"token_type":   tr.TokenType,
		"expires_in":   int64(tr.ExpiresIn.Seconds()),
	}
	if tr.Scope != "" {
		data["scope"] = tr.Scope
	}
	if tr.RefreshToken != "" {
		data["refresh_token"] = tr.RefreshToken
	}
	return data
}

// HandleRevocationRequest revokes the session behind a refresh token.
// Unknown tokens and access tokens are answered with 200 as well.
func (s *Server) HandleRevocationRequest(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodPost {
		return s.tokenError(w, errors.ErrInvalidRequest)
	}
	clientID, clientSecret, err := s.ClientInfoHandler(r)
	if err != nil {
		return s.tokenError(w, err)
	}
	token := r.FormValue("token")
	if token == "" {
		return s.tokenError(w, errors.ErrInvalidRequest)
	}
	creds := manage.ClientCredentials{ClientID: clientID, ClientSecret: clientSecret}
	if err := s.Manager.RevokeRefreshToken(r.Context(), creds, token); err != nil {
		return s.tokenError(w, err)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	return nil
}

func (s *Server) tokenError(w http.ResponseWriter, err error) error {
	data, statusCode, header := s.GetErrorData(err)
	return s.token(w, data, header, statusCode)
}

func (s *Server) token(w http.ResponseWriter, data map[string]interface{}, header http.Header, statusCode ...int) error {
	w.Header().Set("Content-Type", "application/json;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	for key := range header {
		w.Header().Set(key, header.Get(key))
	}

	status := http.StatusOK
	if len(statusCode) > 0 && statusCode[0] > 0 {
		status = statusCode[0]
	}

	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// GetErrorData get error response data
func (s *Server) GetErrorData(err error) (map[string]interface{}, int, http.Header) {
	re, known := errors.Lookup(err)
	if !known || errors.Is(err, errors.ErrServerError) {
		s.Logger.Error("request failed", zap.Error(err))
	}
	if re.StatusCode == http.StatusUnauthorized && errors.Is(re.Error, errors.ErrInvalidClientCredentials) {
		re.SetHeader("WWW-Authenticate", `Basic realm="oauth"`)
	}

	data := map[string]interface{}{
		"error": re.WireCode,
	}
	if re.Description != "" {
		data["error_description"] = re.Description
	}
	if re.URI != "" {
		data["error_uri"] = re.URI
	}
	return data, re.StatusCode, re.Header
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	prefix := "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):]), true
	}
	return "", false
}
