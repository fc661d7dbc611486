package errors

import (
	"errors"
	"fmt"
)

// FlowError is a categorised login-flow failure. Kind is one of the Err*
// kind sentinels; Code is the machine-readable code shown in the Error status.
type FlowError struct {
	Kind        error
	Code        string
	Description string
	Err         error
}

func (e *FlowError) Error() string {
	msg := e.Kind.Error()
	if e.Code != "" {
		msg += " (" + e.Code + ")"
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FlowError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel as well as the wrapped chain.
func (e *FlowError) Is(target error) bool {
	return target == e.Kind
}

// Provider builds a ProviderError from the OAuth error parameters.
func Provider(code, description string) *FlowError {
	return &FlowError{Kind: ErrProvider, Code: code, Description: description}
}

// Validation builds a ValidationError.
func Validation(description string) *FlowError {
	return &FlowError{Kind: ErrValidation, Code: CodeValidationFailed, Description: description}
}

// Network wraps a transport failure or a non-2xx response.
func Network(err error, format string, args ...any) *FlowError {
	return &FlowError{Kind: ErrNetwork, Description: fmt.Sprintf(format, args...), Err: err}
}

// HTTPStatus builds a NetworkError from an unexpected response.
func HTTPStatus(what string, status int, body string) *FlowError {
	return &FlowError{
		Kind:        ErrNetwork,
		Description: fmt.Sprintf("%s returned HTTP %d: %s", what, status, body),
	}
}

// Identity builds an IdentityError; cause is ErrMissingEmail or
// ErrMissingUserID.
func Identity(cause error, description string) *FlowError {
	return &FlowError{Kind: ErrIdentity, Description: description, Err: cause}
}

// Refresh wraps a failed refresh attempt.
func Refresh(err error) *FlowError {
	return &FlowError{Kind: ErrRefresh, Err: err}
}

// Persistence wraps a session file failure.
func Persistence(err error, description string) *FlowError {
	return &FlowError{Kind: ErrPersistence, Description: description, Err: err}
}

// CodeOf returns the first code carried by a FlowError in err's chain, or
// CodeAuthFailed when there is none.
func CodeOf(err error) string {
	for err != nil {
		var fe *FlowError
		if !errors.As(err, &fe) {
			break
		}
		if fe.Code != "" {
			return fe.Code
		}
		err = fe.Err
	}
	return CodeAuthFailed
}

// DescriptionOf returns a human description for the status channel.
func DescriptionOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) && fe.Description != "" {
		return fe.Description
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
