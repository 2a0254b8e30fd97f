package manage

import (
	oauth2 "github.com/legit-games/grant-engine"
	"github.com/legit-games/grant-engine/errors"
)

// checkScopes returns requested with duplicates removed, or an error when it
// is empty or not a subset of allowed.
func checkScopes(requested, allowed []string) ([]string, error) {
	if len(requested) == 0 {
		return nil, errors.ErrMissingScope
	}
	set := make(map[string]struct{}, len(allowed))
	for _, s := range allowed {
		set[s] = struct{}{}
	}
	seen := make(map[string]struct{}, len(requested))
	out := make([]string, 0, len(requested))
	for _, s := range requested {
		if _, ok := set[s]; !ok {
			return nil, errors.ErrNotAllowedScope
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

// checkChallenge accepts no PKCE at all, or an S256 challenge.
func checkChallenge(challenge string, method oauth2.CodeChallengeMethod) error {
	if challenge == "" {
		if method != "" {
			return errors.ErrInvalidRequest
		}
		return nil
	}
	if method != oauth2.CodeChallengeS256 {
		return errors.ErrUnsupportedCodeChallengeMethod
	}
	// RFC 7636 §4.2: base64url of a SHA-256 digest.
	if len(challenge) != 43 {
		return errors.ErrInvalidRequest
	}
	return nil
}
