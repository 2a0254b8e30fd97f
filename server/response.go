package server

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/errors"
	"github.com/legit-games/grant-engine/manage"
)

// AuthorizeResponse is a rendered authorize outcome: either a redirect
// (Location set) or an HTML page posting the result to the opener.
type AuthorizeResponse struct {
	StatusCode int
	Location   string
	Header     http.Header
	Body       []byte
}

// Write sends the response to w.
func (ar *AuthorizeResponse) Write(w http.ResponseWriter) error {
	for key := range ar.Header {
		w.Header().Set(key, ar.Header.Get(key))
	}
	if ar.Location != "" {
		w.Header().Set("Location", ar.Location)
	}
	w.WriteHeader(ar.StatusCode)
	if len(ar.Body) == 0 {
		return nil
	}
	_, err := w.Write(ar.Body)
	return err
}

var webMessageTemplate = template.Must(template.New("web_message").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Authorization Response</title></head>
<body>
<script nonce="{{.Nonce}}">
(function () {
  var origin = {{.Origin}};
  var message = {type: "authorization_response", response: {{.Response}}};
  var target = window.opener || window.parent;
  target.postMessage(message, origin);
})();
</script>
</body>
</html>
`))

// BuildAuthorizeResponse renders res through the channel chosen by its
// response type: query redirect for code, fragment redirect for token and
// an embedded postMessage page for web_message.
func BuildAuthorizeResponse(res *manage.AuthorizeResult) (*AuthorizeResponse, error) {
	if res == nil {
		return nil, errors.ErrServerError
	}
	u, err := url.Parse(res.RedirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidRedirectURI, err)
	}
	data := authorizeData(res)

	switch res.ResponseType {
	case oauth2.Code:
		q := u.Query()
		for k, v := range data {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
		return redirectTo(u.String()), nil
	case oauth2.Token:
		q := make(url.Values, len(data))
		for k, v := range data {
			q.Set(k, v)
		}
		u.Fragment = ""
		u.RawFragment = ""
		return redirectTo(u.String() + "#" + q.Encode()), nil
	case oauth2.WebMessage:
		return webMessage(u, data)
	}
	return nil, errors.ErrUnsupportedResponseType
}

func redirectTo(location string) *AuthorizeResponse {
	return &AuthorizeResponse{
		StatusCode: http.StatusFound,
		Location:   location,
		Header:     http.Header{"Cache-Control": []string{"no-store"}},
	}
}

func authorizeData(res *manage.AuthorizeResult) map[string]string {
	data := make(map[string]string)
	switch {
	case res.Err != nil:
		re, _ := errors.Lookup(res.Err)
		data["error"] = re.WireCode
		data["error_description"] = re.Description
	case res.Token != nil:
		data["access_token"] = res.Token.AccessToken
		data["token_type"] = res.Token.TokenType
		data["expires_in"] = strconv.FormatInt(int64(res.Token.ExpiresIn.Seconds()), 10)
		if res.Token.Scope != "" {
			data["scope"] = res.Token.Scope
		}
	default:
		data["code"] = res.Code
	}
	if res.State != "" {
		data["state"] = res.State
	}
	return data
}

func webMessage(u *url.URL, data map[string]string) (*AuthorizeResponse, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, err
	}
	origin := u.Scheme + "://" + u.Host

	var buf bytes.Buffer
	err = webMessageTemplate.Execute(&buf, struct {
		Nonce    string
		Origin   string
		Response map[string]string
	}{nonce, origin, data})
	if err != nil {
		return nil, err
	}

	header := make(http.Header)
	header.Set("Content-Type", "text/html; charset=utf-8")
	header.Set("Cache-Control", "no-store")
	header.Set("Pragma", "no-cache")
	header.Set("Content-Security-Policy", fmt.Sprintf("default-src 'none'; script-src 'nonce-%s'", nonce))
	header.Set("X-Content-Type-Options", "nosniff")
	return &AuthorizeResponse{
		StatusCode: http.StatusOK,
		Header:     header,
		Body:       buf.Bytes(),
	}, nil
}

func newNonce() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
