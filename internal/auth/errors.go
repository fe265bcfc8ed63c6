package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an authentication or authorization failure
type Kind string

const (
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindTokenExpired       Kind = "TokenExpired"
	KindTokenInvalid       Kind = "TokenInvalid"
	KindNoSessionFound     Kind = "NoSessionFound"
	KindStrategyNotFound   Kind = "StrategyNotFound"
	KindInsufficientRole   Kind = "InsufficientRole"
)

var defaultMessages = map[Kind]string{
	KindInvalidCredentials: "Invalid email or password",
	KindTokenExpired:       "Token expired",
	KindTokenInvalid:       "Invalid token",
	KindNoSessionFound:     "No active session",
	KindStrategyNotFound:   "Authentication strategy not registered",
	KindInsufficientRole:   "Insufficient permissions",
}

// Error is an authentication or authorization failure with a stable kind.
// Err holds the internal cause and is never rendered to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Sentinels for errors.Is; matching compares Kind only.
var (
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrTokenExpired       = &Error{Kind: KindTokenExpired}
	ErrTokenInvalid       = &Error{Kind: KindTokenInvalid}
	ErrNoSessionFound     = &Error{Kind: KindNoSessionFound}
	ErrStrategyNotFound   = &Error{Kind: KindStrategyNotFound}
	ErrInsufficientRole   = &Error{Kind: KindInsufficientRole}
)

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: defaultMessages[kind], Err: cause}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = defaultMessages[e.Kind]
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// PublicMessage is the client-facing message
func (e *Error) PublicMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return defaultMessages[e.Kind]
}

// Status returns the HTTP status code for the error kind
func (e *Error) Status() int {
	switch e.Kind {
	case KindInvalidCredentials, KindTokenExpired, KindTokenInvalid, KindNoSessionFound:
		return http.StatusUnauthorized
	case KindInsufficientRole:
		return http.StatusForbidden
	default:
		// StrategyNotFound only surfaces at startup
		return http.StatusInternalServerError
	}
}

// AsError extracts an *Error from err's chain
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or "" when err is not an auth failure
func KindOf(err error) Kind {
	if authErr, ok := AsError(err); ok {
		return authErr.Kind
	}
	return ""
}
