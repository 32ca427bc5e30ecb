package auth

import "errors"

var (
	// ErrMissingToken is returned when no token was supplied at all.
	ErrMissingToken = errors.New("auth: missing token")
	// ErrInvalidToken covers bad signatures, malformed tokens and issuer/audience mismatches.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired is returned for a correctly signed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrWrongTokenKind is returned when an access token is presented as a refresh token or vice versa.
	ErrWrongTokenKind = errors.New("auth: wrong token kind")
	// ErrWeakPassword is returned when a new password does not satisfy the strength policy.
	ErrWeakPassword = errors.New("auth: password does not meet strength requirements")
)
