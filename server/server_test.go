package server

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/gavv/httpexpect/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-session/session/v3"

	"github.com/legit-games/grant-engine/auth"
	"github.com/legit-games/grant-engine/generates"
	"github.com/legit-games/grant-engine/keys"
	"github.com/legit-games/grant-engine/manage"
	"github.com/legit-games/grant-engine/models"
	"github.com/legit-games/grant-engine/store"
)

const (
	publicClientID       = "spa"
	confidentialClientID = "backend"
	clientSecret         = "s3cret"
	redirectURI          = "https://app.example/callback"
	codeVerifier         = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

var (
	fixtureOnce sync.Once
	fixtureKey  keys.KeyPair
	fixtureHash string
	fixtureErr  error
)

type testEnv struct {
	srv        *Server
	ts         *httptest.Server
	keys       *keys.Manager
	loginToken string
}

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	// httptest serves plain HTTP, so the session cookie must not be Secure.
	session.InitManager(session.SetSecure(false))
	m.Run()
}

func challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func newTestEnv(t *testing.T, mutate ...func(*manage.Config, *Config)) *testEnv {
	t.Helper()
	fixtureOnce.Do(func() {
		if fixtureKey, fixtureErr = keys.Generate(keys.MinKeyBits); fixtureErr != nil {
			return
		}
		fixtureHash, fixtureErr = models.HashClientSecret(clientSecret)
	})
	if fixtureErr != nil {
		t.Fatal(fixtureErr)
	}

	km, err := keys.NewManager(fixtureKey)
	if err != nil {
		t.Fatal(err)
	}
	mcfg := manage.DefaultConfig()
	mcfg.Issuer = "https://auth.example"
	scfg := NewConfig()
	scfg.Issuer = mcfg.Issuer
	scfg.TokenRateLimit = 0
	for _, fn := range mutate {
		fn(&mcfg, scfg)
	}

	clients := store.NewClientStore()
	_ = clients.Set(publicClientID, &models.Client{ID: publicClientID, RedirectURIs: []string{redirectURI}, Scopes: []string{"openid", "profile"}})
	_ = clients.Set(confidentialClientID, &models.Client{ID: confidentialClientID, Secret: fixtureHash, RedirectURIs: []string{redirectURI}, Scopes: []string{"openid", "profile"}})
	users := store.NewUserStore()
	users.Set(&models.User{ID: "alice", Active: true})

	logins, err := store.NewMemoryLoginSessionStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = logins.Close() })
	if err := logins.Put(context.Background(), &models.LoginSession{ID: "login-1", UserID: "alice", Active: true}); err != nil {
		t.Fatal(err)
	}
	requests, err := store.NewMemoryRequestStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = requests.Close() })
	sessions, err := store.NewMemorySessionStore()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = sessions.Close() })

	authn := auth.NewSessionAuthenticator(logins, users, generates.NewOpaqueGenerate(km, generates.LoginSessionType), nil)
	m, err := manage.NewManager(mcfg, manage.Dependencies{
		Clients:       clients,
		Authenticator: authn,
		Requests:      requests,
		Sessions:      sessions,
		AccessTokens:  generates.NewJWTAccessGenerate(km, mcfg.Issuer, mcfg.AccessTokenTTL, nil),
		Opaque:        generates.NewOpaqueGenerate(km, generates.RefreshTokenType),
	})
	if err != nil {
		t.Fatal(err)
	}
	loginToken, err := authn.EncodeSessionToken("login-1")
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(scfg, m, km, nil)
	engine := NewGinEngine(srv)
	engine.GET("/test/login", func(c *gin.Context) {
		if err := srv.SetLoginSession(c.Writer, c.Request, loginToken); err != nil {
			c.AbortWithStatus(http.StatusInternalServerError)
			return
		}
		c.Status(http.StatusNoContent)
	})
	ts := httptest.NewServer(engine)
	t.Cleanup(ts.Close)
	return &testEnv{srv: srv, ts: ts, keys: km, loginToken: loginToken}
}

// authorize builds an authorize call for the public client. Entries of
// override replace the defaults; an empty value drops the parameter.
// The "login" entry replaces the bearer login-session reference.
func (env *testEnv) authorize(e *httpexpect.Expect, override map[string]string) *httpexpect.Request {
	params := map[string]string{
		"response_type": "code",
		"client_id":     publicClientID,
		"redirect_uri":  redirectURI,
		"scope":         "openid profile",
		"state":         "123",
		"login":         env.loginToken,
	}
	for k, v := range override {
		params[k] = v
	}
	req := e.GET("/oauth/authorize").WithRedirectPolicy(httpexpect.DontFollowRedirects)
	if login := params["login"]; login != "" {
		req = req.WithHeader("Authorization", "Bearer "+login)
	}
	delete(params, "login")
	for k, v := range params {
		if v != "" {
			req = req.WithQuery(k, v)
		}
	}
	return req
}

func pkce(extra map[string]string) map[string]string {
	params := map[string]string{
		"code_challenge":        challenge(codeVerifier),
		"code_challenge_method": "S256",
	}
	for k, v := range extra {
		params[k] = v
	}
	return params
}

func locationQuery(t *testing.T, location string) url.Values {
	t.Helper()
	u, err := url.Parse(location)
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Scheme + "://" + u.Host + u.Path; got != redirectURI {
		t.Fatalf("redirected to %q", got)
	}
	return u.Query()
}

func TestAuthorizeCodeWithChallengeS256(t *testing.T) {
	env := newTestEnv(t)
	e := httpexpect.Default(t, env.ts.URL)

	resp := env.authorize(e, pkce(nil)).
		Expect().
		Status(http.StatusFound)
	resp.Header("Cache-Control").IsEqual("no-store")
	q := locationQuery(t, resp.Header("Location").Raw())
	if q.Get("state") != "123" {
		t.Fatalf("unrecognized state: %q", q.Get("state"))
	}
	code := q.Get("code")
	if len(code) != 43 {
		t.Fatalf("code %q", code)
	}

	token := e.POST("/oauth/token").
		WithFormField("grant_type", "authorization_code").
		WithFormField("code", code).
		WithFormField("redirect_uri", redirectURI).
		WithFormField("client_id", publicClientID).
		WithFormField("code_verifier", codeVerifier).
		Expect().
		Status(http.StatusOK)
	token.Header("Cache-Control").IsEqual("no-store")
	token.Header("Pragma").IsEqual("no-cache")
	obj := token.JSON().Object()
	obj.Value("token_type").String().IsEqual("Bearer")
	obj.Value("expires_in").Number().IsEqual(900)
	obj.Value("scope").String().IsEqual("openid profile")
	obj.ContainsKey("refresh_token")

	payload, err := env.srv.Manager.VerifyAccessToken(context.Background(), obj.Value("access_token").String().Raw())
	if err != nil {
		t.Fatal(err)
	}
	if payload.Subject != "alice" || payload.Audience != publicClientID {
		t.Fatalf("unexpected payload %+v", payload)
	}

	// the code is single use
	e.POST("/oauth/token").
		WithFormField("grant_type", "authorization_code").
		WithFormField("code", code).
		WithFormField("redirect_uri", redirectURI).
		WithFormField("client_id", publicClientID).
		WithFormField("code_verifier", codeVerifier).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("invalid_grant")
}

func TestAuthorizeCodeWrongVerifier(t *testing.T) {
	env := newTestEnv(t)
	e := httpexpect.Default(t, env.ts.URL)

	location := env.authorize(e, pkce(nil)).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw()

	e.POST("/oauth/token").
		WithFormField("grant_type", "authorization_code").
		WithFormField("code", locationQuery(t, location).Get("code")).
		WithFormField("redirect_uri", redirectURI).
		WithFormField("client_id", publicClientID).
		WithFormField("code_verifier", strings.Repeat("x", 43)).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("invalid_grant")
}

func TestRefreshRotationAndRevoke(t *testing.T) {
	env := newTestEnv(t)
	e := httpexpect.Default(t, env.ts.URL)

	location := env.authorize(e, map[string]string{"client_id": confidentialClientID}).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw()

	first := e.POST("/oauth/token").
		WithBasicAuth(confidentialClientID, clientSecret).
		WithFormField("grant_type", "authorization_code").
		WithFormField("code", locationQuery(t, location).Get("code")).
		WithFormField("redirect_uri", redirectURI).
		Expect().
		Status(http.StatusOK).
		JSON().Object().Value("refresh_token").String().Raw()

	second := e.POST("/oauth/token").
		WithBasicAuth(confidentialClientID, clientSecret).
		WithFormField("grant_type", "refresh_token").
		WithFormField("refresh_token", first).
		WithFormField("scope", "openid").
		Expect().
		Status(http.StatusOK).
		JSON().Object()
	second.Value("scope").String().IsEqual("openid")
	rotated := second.Value("refresh_token").String().Raw()
	if rotated == first {
		t.Fatal("refresh token was not rotated")
	}

	// replaying the previous refresh token fails
	e.POST("/oauth/token").
		WithBasicAuth(confidentialClientID, clientSecret).
		WithFormField("grant_type", "refresh_token").
		WithFormField("refresh_token", first).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("invalid_grant")

	e.POST("/oauth/revoke").
		WithBasicAuth(confidentialClientID, clientSecret).
		WithFormField("token", rotated).
		Expect().
		Status(http.StatusOK)

	e.POST("/oauth/token").
		WithBasicAuth(confidentialClientID, clientSecret).
		WithFormField("grant_type", "refresh_token").
		WithFormField("refresh_token", rotated).
		Expect().
		Status(http.StatusBadRequest)

	// revoking an unknown token still succeeds
	e.POST("/oauth/revoke").
		WithBasicAuth(confidentialClientID, clientSecret).
		WithFormField("token", "not-a-token").
		Expect().
		Status(http.StatusOK)
}

func TestAuthorizeErrorsBeforeRedirect(t *testing.T) {
	env := newTestEnv(t)
	e := httpexpect.Default(t, env.ts.URL)

	unknown := env.authorize(e, map[string]string{"client_id": "nobody"}).
		Expect().
		Status(http.StatusBadRequest)
	unknown.Header("Location").IsEmpty()
	unknown.JSON().Object().Value("error").String().IsEqual("invalid_client")

	env.authorize(e, map[string]string{"redirect_uri": "https://evil.example/callback"}).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("invalid_request")

	env.authorize(e, pkce(map[string]string{"code_challenge_method": "plain"})).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("invalid_request")

	// implicit is off by default
	env.authorize(e, map[string]string{"response_type": "token"}).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("unsupported_response_type")
}

func TestAuthorizeLoginSessionFromCookie(t *testing.T) {
	env := newTestEnv(t)
	e := httpexpect.Default(t, env.ts.URL)

	// without a bearer header or cookie the user is not authenticated
	location := env.authorize(e, map[string]string{"login": ""}).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw()
	if got := locationQuery(t, location).Get("error"); got != "login_required" {
		t.Fatalf("error = %q", got)
	}

	setCookie := e.GET("/test/login").Expect().
		Status(http.StatusNoContent).
		Header("Set-Cookie")
	setCookie.Contains("go_session_id=")
	setCookie.NotContains("Secure")

	location = env.authorize(e, map[string]string{"login": ""}).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw()
	if code := locationQuery(t, location).Get("code"); code == "" {
		t.Fatalf("no code after cookie login: %s", location)
	}
}

func TestAuthorizeErrorThroughRedirect(t *testing.T) {
	env := newTestEnv(t)
	e := httpexpect.Default(t, env.ts.URL)

	location := env.authorize(e, map[string]string{"login": "garbage"}).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw()
	q := locationQuery(t, location)
	if q.Get("error") != "login_required" || q.Get("state") != "123" || q.Get("code") != "" {
		t.Fatalf("unexpected redirect %s", location)
	}

	location = env.authorize(e, map[string]string{"scope": "admin"}).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw()
	if got := locationQuery(t, location).Get("error"); got != "invalid_scope" {
		t.Fatalf("error = %q", got)
	}
}

func TestAuthorizeImplicit(t *testing.T) {
	env := newTestEnv(t, func(m *manage.Config, c *Config) {
		m.AllowImplicit = true
		c.AllowImplicit = true
	})
	e := httpexpect.Default(t, env.ts.URL)

	location := env.authorize(e, map[string]string{"response_type": "token"}).
		Expect().
		Status(http.StatusFound).
		Header("Location").Raw()
	u, err := url.Parse(location)
	if err != nil {
		t.Fatal(err)
	}
	if u.RawQuery != "" {
		t.Fatalf("implicit response leaked into the query: %s", location)
	}
	frag, err := url.ParseQuery(u.Fragment)
	if err != nil {
		t.Fatal(err)
	}
	if frag.Get("access_token") == "" || frag.Get("token_type") != "Bearer" || frag.Get("expires_in") != "900" || frag.Get("state") != "123" {
		t.Fatalf("unexpected fragment %q", u.Fragment)
	}
	if frag.Get("refresh_token") != "" {
		t.Fatal("implicit grant must not issue a refresh token")
	}
}

func TestAuthorizeWebMessage(t *testing.T) {
	env := newTestEnv(t)
	e := httpexpect.Default(t, env.ts.URL)

	resp := env.authorize(e, pkce(map[string]string{"response_type": "web_message"})).
		Expect().
		Status(http.StatusOK)
	resp.ContentType("text/html", "utf-8")
	csp := resp.Header("Content-Security-Policy").Raw()
	m := regexp.MustCompile(`script-src 'nonce-([A-Za-z0-9_-]+)'`).FindStringSubmatch(csp)
	if m == nil {
		t.Fatalf("csp %q", csp)
	}
	body := resp.Body()
	body.Contains(`nonce="` + m[1] + `"`)
	body.Contains("authorization_response")
	body.Contains("app.example")
	body.Contains(`"state":"123"`)
	body.Contains(`"code":`)

	// each response carries its own nonce
	again := env.authorize(e, pkce(map[string]string{"response_type": "web_message"})).
		Expect().
		Header("Content-Security-Policy").Raw()
	if again == csp {
		t.Fatal("nonce reused")
	}
}

func TestTokenErrors(t *testing.T) {
	env := newTestEnv(t)
	e := httpexpect.Default(t, env.ts.URL)

	e.POST("/oauth/token").
		WithFormField("grant_type", "password").
		WithFormField("client_id", publicClientID).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("unsupported_grant_type")

	e.POST("/oauth/token").
		WithFormField("grant_type", "refresh_token").
		WithFormField("client_id", publicClientID).
		Expect().
		Status(http.StatusBadRequest).
		JSON().Object().Value("error").String().IsEqual("invalid_request")

	bad := e.POST("/oauth/token").
		WithBasicAuth(confidentialClientID, "wrong").
		WithFormField("grant_type", "authorization_code").
		WithFormField("code", "whatever").
		WithFormField("redirect_uri", redirectURI).
		Expect()
	bad.JSON().Object().Value("error").String().IsEqual("invalid_grant")

	e.POST("/oauth/token").
		WithFormField("grant_type", "authorization_code").
		Expect().
		Status(http.StatusUnauthorized).
		JSON().Object().Value("error").String().IsEqual("invalid_client")

	e.POST("/oauth/revoke").
		WithBasicAuth(confidentialClientID, "wrong").
		WithFormField("token", "x").
		Expect().
		Status(http.StatusUnauthorized).
		Header("WWW-Authenticate").NotEmpty()
}

func TestTokenRateLimit(t *testing.T) {
	env := newTestEnv(t, func(_ *manage.Config, c *Config) {
		c.TokenRateLimit = 10
	})
	e := httpexpect.Default(t, env.ts.URL)

	e.POST("/oauth/token").
		WithFormField("grant_type", "refresh_token").
		WithFormField("client_id", publicClientID).
		Expect().
		Status(http.StatusBadRequest)
	e.POST("/oauth/token").
		WithFormField("grant_type", "refresh_token").
		WithFormField("client_id", publicClientID).
		Expect().
		Status(http.StatusTooManyRequests).
		JSON().Object().Value("error").String().IsEqual("temporarily_unavailable")

	// discovery is not limited
	e.GET("/.well-known/openid-configuration").Expect().Status(http.StatusOK)
}
