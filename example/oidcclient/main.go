package main

import (
	"encoding/json"
	"fmt"
	"html"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2"
)

var (
	authBaseURL   = env("OIDC_AUTH_BASE_URL", "http://localhost:9096")
	clientID      = env("OIDC_CLIENT_ID", "222222")
	clientSecret  = env("OIDC_CLIENT_SECRET", "")
	redirectURL   = env("OIDC_REDIRECT_URL", "http://localhost:9098/callback")
	stateExpected = env("OIDC_STATE", "xyz")
)

var (
	mu        sync.Mutex
	verifier  string
	token     *oauth2.Token
	lastError string
)

func config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{"openid", "profile"},
		Endpoint: oauth2.Endpoint{
			AuthURL:   authBaseURL + "/oauth/authorize",
			TokenURL:  authBaseURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func main() {
	http.HandleFunc("/", handleIndex)
	http.HandleFunc("/authorize", handleAuthorize)
	http.HandleFunc("/callback", handleCallback)
	http.HandleFunc("/refresh", handleRefresh)

	port := os.Getenv("OIDC_CLIENT_PORT")
	if port == "" {
		port = "9098"
	}
	log.Printf("OIDC example client running at http://localhost:%s", port)
	log.Printf("Config: AUTH_BASE=%s CLIENT_ID=%s REDIRECT_URL=%s", authBaseURL, clientID, redirectURL)
	log.Fatal(http.ListenAndServe(":"+port, nil))
}

func handleIndex(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	defer mu.Unlock()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	warn := ""
	if token == nil {
		warn = `<p>No access token yet. Start the server with <code>-dev -r ` + html.EscapeString(redirectURL) + `</code> and click "Authorize".</p>`
	}
	if lastError != "" {
		warn += `<p style="color:#991b1b">` + html.EscapeString(lastError) + `</p>`
	}
	var access, refresh string
	if token != nil {
		access, refresh = token.AccessToken, token.RefreshToken
	}
	fmt.Fprintf(w, `<h1>OIDC Example Client</h1>
	%s
	<ul>
		<li><a href="/authorize">Start Authorization Code (PKCE)</a></li>
		<li><a href="/refresh">Refresh the token</a></li>
	</ul>
	<pre>access_token=%s
refresh_token=%s</pre>`, warn, html.EscapeString(access), html.EscapeString(refresh))
}

// handleAuthorize signs in through the dev login endpoint, which returns to
// the authorize request with the login session cookie set.
func handleAuthorize(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	verifier = oauth2.GenerateVerifier()
	authURL := config().AuthCodeURL(stateExpected, oauth2.S256ChallengeOption(verifier))
	mu.Unlock()

	u, err := url.Parse(authURL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	login := authBaseURL + "/dev/login?return_to=" + url.QueryEscape(u.RequestURI())
	http.Redirect(w, r, login, http.StatusFound)
}

func handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mu.Lock()
	defer mu.Unlock()
	if e := q.Get("error"); e != "" {
		lastError = e + ": " + q.Get("error_description")
		http.Error(w, lastError, http.StatusBadRequest)
		return
	}
	if q.Get("state") != stateExpected {
		lastError = "invalid state returned from authorization server"
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	tok, err := config().Exchange(r.Context(), q.Get("code"), oauth2.VerifierOption(verifier))
	if err != nil {
		lastError = "token request failed: " + err.Error()
		http.Error(w, lastError, http.StatusBadGateway)
		return
	}
	token, lastError = tok, ""
	respJSON(w, tok)
}

func handleRefresh(w http.ResponseWriter, r *http.Request) {
	mu.Lock()
	defer mu.Unlock()
	if token == nil || token.RefreshToken == "" {
		http.Error(w, "missing refresh token; run /authorize first", http.StatusBadRequest)
		return
	}
	tok, err := config().TokenSource(r.Context(), &oauth2.Token{RefreshToken: token.RefreshToken}).Token()
	if err != nil {
		lastError = "refresh failed: " + err.Error()
		http.Error(w, lastError, http.StatusBadGateway)
		return
	}
	token, lastError = tok, ""
	respJSON(w, tok)
}

func respJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
