package service

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"wellnesscms/api/internal/ratelimit"
)

var (
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	ErrPasswordUnchanged      = errors.New("new password must differ from the current password")
	ErrSessionNotFound        = errors.New("session not found")
	ErrRateLimited            = errors.New("too many attempts")
)

// Code is the machine readable reason attached to rejected credentials.
type Code string

const (
	CodeNoToken                Code = "NO_TOKEN"
	CodeTokenExpired           Code = "TOKEN_EXPIRED"
	CodeInvalidToken           Code = "INVALID_TOKEN"
	CodeUserNotFound           Code = "USER_NOT_FOUND"
	CodeInsufficientPrivileges Code = "INSUFFICIENT_PRIVILEGES"
	CodeAccountDeactivated     Code = "ACCOUNT_DEACTIVATED"
	// CodeInternal means the credential could not be checked at all.
	CodeInternal Code = "INTERNAL_ERROR"
)

// AccessError is a rejected bearer credential. Err holds the cause of an
// internal rejection.
type AccessError struct {
	Code    Code
	Message string
	Err     error
}

func (e *AccessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// Internal reports whether a backing store failed, as opposed to the
// credential being bad.
func (e *AccessError) Internal() bool {
	return e.Code == CodeInternal
}

// Status is the HTTP status a rejection maps to.
func (e *AccessError) Status() int {
	switch {
	case e.Internal():
		return http.StatusInternalServerError
	case e.Forbidden():
		return http.StatusForbidden
	default:
		return http.StatusUnauthorized
	}
}

// Forbidden reports whether the rejection is an authorization (403) rather
// than an authentication (401) failure.
func (e *AccessError) Forbidden() bool {
	return e.Code == CodeInsufficientPrivileges || e.Code == CodeAccountDeactivated
}

func accessError(code Code, message string) *AccessError {
	return &AccessError{Code: code, Message: message}
}

// ThrottledError wraps ErrRateLimited with the limiter's rejection.
type ThrottledError struct {
	Decision ratelimit.Decision
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("%s, retry in %s", ErrRateLimited, e.Decision.RetryAfter.Round(time.Second))
}

func (e *ThrottledError) Unwrap() error {
	return ErrRateLimited
}

// ValidationError is a caller-fixable input problem.
type ValidationError struct {
	Code string
	Err  error
}

func (e *ValidationError) Error() string {
	return e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func validation(code string, err error) *ValidationError {
	return &ValidationError{Code: code, Err: err}
}
