package server

import (
	"net/http"
	"net/url"

	"github.com/legit-games/grant-engine/errors"
)

// ClientFormHandler get client data from form
func ClientFormHandler(r *http.Request) (string, string, error) {
	clientID := r.FormValue("client_id")
	if clientID == "" {
		return "", "", errors.ErrInvalidClientCredentials
	}
	return clientID, r.FormValue("client_secret"), nil
}

// ClientBasicHandler get client data from basic authorization
func ClientBasicHandler(r *http.Request) (string, string, error) {
	username, password, ok := r.BasicAuth()
	if !ok {
		return "", "", errors.ErrInvalidClientCredentials
	}
	// RFC 6749 section 2.3.1 form-encodes both parts.
	clientID, err := url.QueryUnescape(username)
	if err != nil {
		return "", "", errors.ErrInvalidClientCredentials
	}
	clientSecret, err := url.QueryUnescape(password)
	if err != nil {
		return "", "", errors.ErrInvalidClientCredentials
	}
	return clientID, clientSecret, nil
}

// ClientBasicOrFormHandler prefers HTTP Basic credentials and falls back
// to the form. Presenting both is rejected.
func ClientBasicOrFormHandler(r *http.Request) (string, string, error) {
	if _, _, ok := r.BasicAuth(); ok {
		if r.FormValue("client_secret") != "" {
			return "", "", errors.ErrInvalidRequest
		}
		return ClientBasicHandler(r)
	}
	return ClientFormHandler(r)
}
