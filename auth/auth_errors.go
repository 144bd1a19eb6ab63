package auth

import (
	"context"
	"errors"
	"net"
)

// ErrorKind is the user-facing classification of a failed auth operation.
// Callers key their own messages off it.
type ErrorKind string

const (
	KindInvalidCredentials   ErrorKind = "INVALID_CREDENTIALS"
	KindUserNotFound         ErrorKind = "USER_NOT_FOUND"
	KindUserInactive         ErrorKind = "USER_INACTIVE"
	KindUnauthorizedAudience ErrorKind = "UNAUTHORIZED_AUDIENCE"
	KindTokenExpired         ErrorKind = "TOKEN_EXPIRED"
	KindNoRefreshToken       ErrorKind = "NO_REFRESH_TOKEN"
	KindNetworkError         ErrorKind = "NETWORK_ERROR"
	KindValidationError      ErrorKind = "VALIDATION_ERROR"
	KindDuplicateEmail       ErrorKind = "DUPLICATE_EMAIL"
	KindUnknownError         ErrorKind = "UNKNOWN_ERROR"
)

var kindMessages = map[ErrorKind]string{
	KindInvalidCredentials:   "invalid email or password",
	KindUserNotFound:         "user not found",
	KindUserInactive:         "user account is inactive",
	KindUnauthorizedAudience: "this account cannot sign in to this application",
	KindTokenExpired:         "session expired, please sign in again",
	KindNoRefreshToken:       "no refresh token available",
	KindNetworkError:         "network unavailable",
	KindValidationError:      "invalid input",
	KindDuplicateEmail:       "email already registered",
	KindUnknownError:         "unexpected error",
}

// Message is a default English description of the kind.
func (k ErrorKind) Message() string {
	if m, ok := kindMessages[k]; ok {
		return m
	}
	return kindMessages[KindUnknownError]
}

// AuthError is returned by every SessionManager operation that fails.
type AuthError struct {
	Kind ErrorKind
	Err  error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, auth.ErrInvalidCredentials) works
// whatever the cause.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInvalidCredentials   = &AuthError{Kind: KindInvalidCredentials}
	ErrUserNotFound         = &AuthError{Kind: KindUserNotFound}
	ErrUserInactive         = &AuthError{Kind: KindUserInactive}
	ErrUnauthorizedAudience = &AuthError{Kind: KindUnauthorizedAudience}
	ErrTokenExpired         = &AuthError{Kind: KindTokenExpired}
	ErrNoRefreshToken       = &AuthError{Kind: KindNoRefreshToken}
	ErrNetwork              = &AuthError{Kind: KindNetworkError}
	ErrValidation           = &AuthError{Kind: KindValidationError}
	ErrDuplicateEmail       = &AuthError{Kind: KindDuplicateEmail}
	ErrUnknown              = &AuthError{Kind: KindUnknownError}
)

func newAuthError(kind ErrorKind, err error) *AuthError {
	return &AuthError{Kind: kind, Err: err}
}

// KindOf returns the kind carried by err, "" for nil and KindUnknownError for
// anything that is not an AuthError.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknownError
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
