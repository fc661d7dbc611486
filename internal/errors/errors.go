package errors

import (
	"errors"
	"fmt"
)

// Error kinds raised along the login flow. FlowError values match these with
// errors.Is, so callers can branch on the category without inspecting codes.
var (
	ErrProvider    = errors.New("provider error")
	ErrValidation  = errors.New("validation error")
	ErrNetwork     = errors.New("network error")
	ErrIdentity    = errors.New("identity error")
	ErrRefresh     = errors.New("refresh failure")
	ErrPersistence = errors.New("persistence error")
)

// Session and flow errors
var (
	ErrNoSession           = errors.New("no session")
	ErrNothingToRefresh    = errors.New("no current session to refresh")
	ErrLoginInProgress     = errors.New("login already in progress")
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrNoFreePort          = errors.New("no free callback port")
	ErrMissingEmail        = errors.New("no usable email address")
	ErrMissingUserID       = errors.New("no user id")
)

// Codes reported in FlowError.Code and in the Error status. Provider errors
// carry the provider's own code; every other failure reports CodeAuthFailed.
const (
	CodeAuthFailed       = "AUTH_FAILED"
	CodeValidationFailed = "validation_failed"
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// New is errors.New, re-exported so callers need a single import.
func New(text string) error {
	return errors.New(text)
}
