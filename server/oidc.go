package server

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/legit-games/grant-engine/keys"
)

// HandleOIDCDiscovery serves the OpenID Provider Metadata.
func (s *Server) HandleOIDCDiscovery(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil
	}
	issuer := strings.TrimRight(s.Config.Issuer, "/")
	responseTypes := make([]string, 0, 3)
	for _, rt := range s.Config.ResponseTypes() {
		responseTypes = append(responseTypes, rt.String())
	}
	meta := map[string]interface{}{
		"issuer":                                issuer,
		"authorization_endpoint":                issuer + "/oauth/authorize",
		"token_endpoint":                        issuer + "/oauth/token",
		"revocation_endpoint":                   issuer + "/oauth/revoke",
		"jwks_uri":                              issuer + "/.well-known/jwks.json",
		"response_types_supported":              responseTypes,
		"response_modes_supported":              []string{"query", "fragment", "web_message"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{keys.Algorithm},
		"grant_types_supported":                 []string{"authorization_code", "refresh_token"},
		"code_challenge_methods_supported":      []string{"S256"},
		"token_endpoint_auth_methods_supported": []string{"client_secret_basic", "client_secret_post", "none"},
	}
	w.Header().Set("Content-Type", "application/json")
	return json.NewEncoder(w).Encode(meta)
}

// HandleOIDCJWKS serves the public JWKS of every active signing key.
func (s *Server) HandleOIDCJWKS(w http.ResponseWriter, r *http.Request) error {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return nil
	}
	if s.Keys == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return nil
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=300")
	return json.NewEncoder(w).Encode(s.Keys.JWKS())
}
