package auth

import "errors"

var (
	// ErrInvalidCallback means the OAuth callback lacked a code or state, or could not be parsed.
	ErrInvalidCallback = errors.New("invalid oauth callback")

	// ErrCSRFMismatch means the callback's state does not match the pending login flow.
	// Never retried: the user has to start a new login.
	ErrCSRFMismatch = errors.New("oauth state mismatch")

	// ErrTokenExchangeFailed means the authorization code could not be traded for a token.
	ErrTokenExchangeFailed = errors.New("token exchange failed")
)
