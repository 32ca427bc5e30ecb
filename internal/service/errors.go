package service

import "errors"

var (
	ErrValidation             = errors.New("validation failed")
	ErrInvalidCredentials     = errors.New("invalid email or password")
	ErrTokenNotFoundOrExpired = errors.New("refresh token not found or expired")
	ErrUserNotFound           = errors.New("user not found")
	ErrUserInactive           = errors.New("user account is inactive")
	ErrRoleNotFound           = errors.New("role not found")
	ErrDuplicateEmail         = errors.New("email already registered")
	ErrIncorrectPassword      = errors.New("current password is incorrect")
)

// ValidationError describes one rejected input field. It matches ErrValidation under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalidField(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
