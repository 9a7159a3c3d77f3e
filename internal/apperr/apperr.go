// Package apperr defines the error taxonomy shared by every liveclass service.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for logging and transport mapping.
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindAuthentication Kind = "authentication_failure"
	KindRoleMismatch   Kind = "role_mismatch"
	KindValidation     Kind = "validation_failure"
	KindBackend        Kind = "backend_failure"
)

var (
	// ErrNotFound is returned when a single-row lookup found zero rows.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials is returned when sign-in credentials are rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthenticated is returned when no usable principal is attached to a request.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrRoleMismatch is returned when the principal's role does not match the flow.
	ErrRoleMismatch = errors.New("role mismatch")
)

// ValidationError captures field level validation issues raised before any
// network call is made.
type ValidationError struct {
	Fields map[string]string
}

// Error implements the error interface.
func (v *ValidationError) Error() string {
	if v == nil || len(v.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add records a field level validation error.
func (v *ValidationError) Add(field, message string) {
	if v.Fields == nil {
		v.Fields = make(map[string]string)
	}
	v.Fields[field] = message
}

// HasErrors reports whether any field level issues were recorded.
func (v *ValidationError) HasErrors() bool {
	return v != nil && len(v.Fields) > 0
}

// OrNil returns v as an error when it holds issues and nil otherwise.
func (v *ValidationError) OrNil() error {
	if v.HasErrors() {
		return v
	}
	return nil
}

// Invalid builds a single-field validation error.
func Invalid(field, message string) error {
	v := &ValidationError{}
	v.Add(field, message)
	return v
}

// BackendError wraps an error surfaced by the data service.
type BackendError struct {
	Op  string
	Err error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend wraps err as a BackendFailure for operation op. Errors that already
// carry a known kind are returned unchanged.
func Backend(op string, err error) error {
	if err == nil {
		return nil
	}
	if k := KindOf(err); k != KindBackend {
		return err
	}
	var be *BackendError
	if errors.As(err, &be) {
		return err
	}
	return &BackendError{Op: op, Err: err}
}

// KindOf maps err onto the taxonomy. Unknown errors are BackendFailure.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUnauthenticated):
		return KindAuthentication
	case errors.Is(err, ErrRoleMismatch):
		return KindRoleMismatch
	}
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return KindValidation
	}
	return KindBackend
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindNotFound:
		return http.StatusNotFound
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindRoleMismatch:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case "":
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Message is the user-facing text for err. Backend failures are reported
// generically so driver details never leak to clients.
func Message(err error) string {
	if KindOf(err) == KindBackend {
		return "something went wrong, please try again"
	}
	return err.Error()
}
