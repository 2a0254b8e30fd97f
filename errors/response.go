package errors

import "net/http"

// authorize errors
var (
	ErrInvalidClientID                = New("invalid client id")
	ErrInvalidRedirectURI             = New("invalid redirect uri")
	ErrNotMatchingConfiguration       = New("redirect uri does not match client configuration")
	ErrMissingScope                   = New("missing scope")
	ErrNotAllowedScope                = New("scope not allowed")
	ErrNotAuthenticated               = New("not authenticated")
	ErrUnsupportedResponseType        = New("unsupported response type")
	ErrUnsupportedCodeChallengeMethod = New("unsupported code challenge method")
)

// token endpoint errors
var (
	ErrInvalidAuthorizationCode = New("invalid authorization code")
	ErrInvalidCodeVerifier      = New("invalid code verifier")
	ErrInvalidClientCredentials = New("invalid client credentials")
	ErrInvalidRefreshToken      = New("invalid refresh token")
	ErrUnsupportedGrantType     = New("unsupported grant type")
)

// session, token codec and generic errors
var (
	ErrInvalidSession     = New("invalid session")
	ErrInvalidAccessToken = New("invalid access token")
	ErrInvalidOpaqueToken = New("invalid opaque token")
	ErrInvalidRequest     = New("invalid request")
	ErrTooManyRequests    = New("too many requests")
	ErrServerError        = New("server error")
)

// WireCodes OAuth 2.0 error codes sent to the client
var WireCodes = map[error]string{
	ErrInvalidClientID:                "invalid_client",
	ErrInvalidRedirectURI:             "invalid_request",
	ErrNotMatchingConfiguration:       "invalid_request",
	ErrMissingScope:                   "invalid_scope",
	ErrNotAllowedScope:                "invalid_scope",
	ErrNotAuthenticated:               "login_required",
	ErrUnsupportedResponseType:        "unsupported_response_type",
	ErrUnsupportedCodeChallengeMethod: "invalid_request",
	ErrInvalidAuthorizationCode:       "invalid_grant",
	ErrInvalidCodeVerifier:            "invalid_grant",
	ErrInvalidClientCredentials:       "invalid_client",
	ErrInvalidRefreshToken:            "invalid_grant",
	ErrUnsupportedGrantType:           "unsupported_grant_type",
	ErrInvalidSession:                 "login_required",
	ErrInvalidAccessToken:             "invalid_token",
	ErrInvalidOpaqueToken:             "invalid_grant",
	ErrInvalidRequest:                 "invalid_request",
	ErrTooManyRequests:                "temporarily_unavailable",
	ErrServerError:                    "server_error",
}

// Descriptions error description
var Descriptions = map[error]string{
	ErrInvalidClientID:                "Client authentication failed: unknown client",
	ErrInvalidRedirectURI:             "The redirect URI is missing or malformed",
	ErrNotMatchingConfiguration:       "The redirect URI is not registered for this client",
	ErrMissingScope:                   "The request does not name any scope",
	ErrNotAllowedScope:                "The requested scope exceeds the scope granted to the client",
	ErrNotAuthenticated:               "The end user is not authenticated",
	ErrUnsupportedResponseType:        "The authorization server does not support obtaining an authorization code using this method",
	ErrUnsupportedCodeChallengeMethod: "Transform algorithm not supported, only S256 is accepted",
	ErrInvalidAuthorizationCode:       "The authorization code is invalid, expired or already used",
	ErrInvalidCodeVerifier:            "The code verifier does not match the code challenge",
	ErrInvalidClientCredentials:       "Client authentication failed",
	ErrInvalidRefreshToken:            "The refresh token is invalid, expired or already used",
	ErrUnsupportedGrantType:           "The authorization grant type is not supported by the authorization server",
	ErrInvalidSession:                 "The login session is invalid or expired",
	ErrInvalidAccessToken:             "The access token provided is expired, revoked, malformed, or invalid for other reasons",
	ErrInvalidOpaqueToken:             "The token provided is malformed or cannot be decrypted",
	ErrInvalidRequest:                 "The request is missing a required parameter, includes an invalid parameter value, includes a parameter more than once, or is otherwise malformed",
	ErrTooManyRequests:                "Rate limit exceeded, retry later",
	ErrServerError:                    "The authorization server encountered an unexpected condition that prevented it from fulfilling the request",
}

// StatusCodes response error HTTP status code
var StatusCodes = map[error]int{
	ErrInvalidClientID:                http.StatusUnauthorized,
	ErrInvalidRedirectURI:             http.StatusBadRequest,
	ErrNotMatchingConfiguration:       http.StatusBadRequest,
	ErrMissingScope:                   http.StatusBadRequest,
	ErrNotAllowedScope:                http.StatusBadRequest,
	ErrNotAuthenticated:               http.StatusUnauthorized,
	ErrUnsupportedResponseType:        http.StatusBadRequest,
	ErrUnsupportedCodeChallengeMethod: http.StatusBadRequest,
	ErrInvalidAuthorizationCode:       http.StatusBadRequest,
	ErrInvalidCodeVerifier:            http.StatusBadRequest,
	ErrInvalidClientCredentials:       http.StatusUnauthorized,
	ErrInvalidRefreshToken:            http.StatusBadRequest,
	ErrUnsupportedGrantType:           http.StatusBadRequest,
	ErrInvalidSession:                 http.StatusUnauthorized,
	ErrInvalidAccessToken:             http.StatusUnauthorized,
	ErrInvalidOpaqueToken:             http.StatusBadRequest,
	ErrInvalidRequest:                 http.StatusBadRequest,
	ErrTooManyRequests:                http.StatusTooManyRequests,
	ErrServerError:                    http.StatusInternalServerError,
}
