// Package errors defines the typed error model shared by every casfad
// component. Errors carry a wire-visible kind (surfaced to HTTP clients as
// {"error": KIND, "message": ...}), an operator-facing message, and an
// optional cause for wrapping.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Kind is the wire-visible error discriminator.
type Kind string

// Error kinds
const (
	// ErrUnauthorized is returned when a request carries no usable credential
	ErrUnauthorized Kind = "UNAUTHORIZED"

	// ErrInvalidTokenFormat is returned when a bearer token fails to decode
	ErrInvalidTokenFormat Kind = "INVALID_TOKEN_FORMAT"

	// ErrAccessTokenRequired is returned when a refresh token is presented
	// where an access token is required
	ErrAccessTokenRequired Kind = "ACCESS_TOKEN_REQUIRED"

	// ErrTokenInvalid is returned when a token's hash does not match the
	// delegate's current token generation
	ErrTokenInvalid Kind = "TOKEN_INVALID"

	// ErrTokenExpired is returned when an access token is past its expiry
	ErrTokenExpired Kind = "TOKEN_EXPIRED"

	// ErrNotRefreshToken is returned when an access token is presented to
	// the refresh endpoint
	ErrNotRefreshToken Kind = "NOT_REFRESH_TOKEN"

	// ErrDelegateNotFound is returned when a delegate does not exist, or
	// when the caller is not an ancestor (deliberately indistinguishable)
	ErrDelegateNotFound Kind = "DELEGATE_NOT_FOUND"

	// ErrDelegateRevoked is returned when a delegate has been revoked
	ErrDelegateRevoked Kind = "DELEGATE_REVOKED"

	// ErrDelegateExpired is returned when a delegate is past its expiry
	ErrDelegateExpired Kind = "DELEGATE_EXPIRED"

	// ErrDelegateAlreadyRevoked is returned when revoking a delegate twice
	ErrDelegateAlreadyRevoked Kind = "DELEGATE_ALREADY_REVOKED"

	// ErrRealmMismatch is returned when the path realm differs from the
	// authenticated realm
	ErrRealmMismatch Kind = "REALM_MISMATCH"

	// ErrPermissionEscalation is returned when a proposed child delegate
	// wants more than its parent holds
	ErrPermissionEscalation Kind = "PERMISSION_ESCALATION"

	// ErrDepthExceeded is returned when a create would exceed the configured
	// maximum delegation depth
	ErrDepthExceeded Kind = "DEPTH_EXCEEDED"

	// ErrInvalidScope is returned when a requested scope is malformed or
	// unreachable from the parent's scope roots
	ErrInvalidScope Kind = "INVALID_SCOPE"

	// ErrInvalidRealm is returned when a root issuance names a realm other
	// than the authenticated user
	ErrInvalidRealm Kind = "INVALID_REALM"

	// ErrRootDelegateRevoked is returned when a realm's root delegate has
	// been revoked
	ErrRootDelegateRevoked Kind = "ROOT_DELEGATE_REVOKED"

	// ErrInvalidRequest is returned for malformed request bodies and
	// query parameters
	ErrInvalidRequest Kind = "INVALID_REQUEST"

	// ErrAlreadyExists is returned by stores on duplicate primary keys
	ErrAlreadyExists Kind = "ALREADY_EXISTS"

	// ErrInternal is returned for unexpected failures, including store
	// transport errors
	ErrInternal Kind = "INTERNAL"
)

// defaultStatus maps each kind to the HTTP status used when the call site
// does not override it.
var defaultStatus = map[Kind]int{
	ErrUnauthorized:           http.StatusUnauthorized,
	ErrInvalidTokenFormat:     http.StatusUnauthorized,
	ErrAccessTokenRequired:    http.StatusForbidden,
	ErrTokenInvalid:           http.StatusUnauthorized,
	ErrTokenExpired:           http.StatusUnauthorized,
	ErrNotRefreshToken:        http.StatusBadRequest,
	ErrDelegateNotFound:       http.StatusUnauthorized,
	ErrDelegateRevoked:        http.StatusUnauthorized,
	ErrDelegateExpired:        http.StatusUnauthorized,
	ErrDelegateAlreadyRevoked: http.StatusConflict,
	ErrRealmMismatch:          http.StatusForbidden,
	ErrPermissionEscalation:   http.StatusBadRequest,
	ErrDepthExceeded:          http.StatusBadRequest,
	ErrInvalidScope:           http.StatusBadRequest,
	ErrInvalidRealm:           http.StatusBadRequest,
	ErrRootDelegateRevoked:    http.StatusForbidden,
	ErrInvalidRequest:         http.StatusBadRequest,
	ErrAlreadyExists:          http.StatusConflict,
	ErrInternal:               http.StatusInternalServerError,
}

// Error represents an error in the application.
type Error struct {
	// Type is the wire-visible error kind
	Type Kind

	// Message is the error message
	Message string

	// Status overrides the kind's default HTTP status when non-zero.
	// DELEGATE_NOT_FOUND, for example, is 401 from the token middleware but
	// 404 from the delegate controller.
	Status int

	// Cause is the underlying error
	Cause error
}

// Error returns the error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithStatus overrides the HTTP status for this error and returns it.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// HTTPStatus resolves the HTTP status for this error.
func (e *Error) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	if s, ok := defaultStatus[e.Type]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// New creates a new error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Type: kind, Message: message}
}

// Newf creates a new error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Type: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new error of the given kind wrapping a cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Type: kind, Message: message, Cause: cause}
}

// KindOf returns the kind of err, or ErrInternal for untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrInternal
}

// Is reports whether err is (or wraps) an Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == kind
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteHTTP renders err as the {"error", "message"} JSON body with its
// resolved status. Untyped errors render as INTERNAL without leaking the
// underlying message.
func WriteHTTP(w http.ResponseWriter, err error) {
	var e *Error
	if !errors.As(err, &e) {
		e = New(ErrInternal, "internal server error")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus())
	_ = json.NewEncoder(w).Encode(errorBody{Error: string(e.Type), Message: e.Message})
}
