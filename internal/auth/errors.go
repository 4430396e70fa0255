// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hubbub Contributors

package auth

import (
	"errors"
	"net/http"
)

// Sentinel errors returned by gateways.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when an insert collides with a different
	// record holding the same unique value.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidImage is returned by an ImageHost when the submitted image
	// cannot be decoded.
	ErrInvalidImage = errors.New("invalid image")
)

// Kind classifies a client-facing failure.
type Kind int

// Error kinds.
const (
	KindValidation Kind = iota + 1
	KindAuth
	KindNotFound
	KindDependency
)

// String returns the kind name used in logs and metrics.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindDependency:
		return "dependency"
	default:
		return "unknown"
	}
}

// dependencyMessage is the only text a client sees for backend failures.
const dependencyMessage = "Service temporarily unavailable"

// Error is a failure that is safe to render to a client.
// Message is the single human-readable message; Err holds the cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status for the error kind.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindValidation, KindAuth:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// NewValidationError reports malformed or missing input.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewAuthError reports a credential failure. Messages stay generic.
func NewAuthError(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

// NewNotFoundError reports a resolved-but-absent resource.
func NewNotFoundError(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// NewDependencyError reports that a store, image host, or other backend failed.
func NewDependencyError(err error) *Error {
	return &Error{Kind: KindDependency, Message: dependencyMessage, Err: err}
}

// AsError extracts an *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr, true
	}
	return nil, false
}
