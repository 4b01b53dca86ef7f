// Package errors provides the quote engine's error taxonomy.
package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
)

// Type identifies the category of error
type Type string

const (
	// TypeNoCorridor indicates no active rate card matches the requested corridor
	TypeNoCorridor Type = "NO_CORRIDOR"

	// TypeInvalidQuantity indicates a zero, negative or mismatched weight/volume
	TypeInvalidQuantity Type = "INVALID_QUANTITY"

	// TypeUnknownAddon marks a dropped add-on selection. Only used for warnings.
	TypeUnknownAddon Type = "UNKNOWN_ADDON"

	// TypeFxUnavailable indicates no cached or fetchable FX rate exists
	TypeFxUnavailable Type = "FX_RATE_UNAVAILABLE"

	// TypeMarginConfig indicates a reseller margin is misconfigured
	TypeMarginConfig Type = "MARGIN_CONFIG_ERROR"

	// TypeInput indicates an input validation error
	TypeInput Type = "INPUT_ERROR"

	// TypeConfig indicates a configuration error
	TypeConfig Type = "CONFIG_ERROR"

	// TypeNetwork indicates a network error
	TypeNetwork Type = "NETWORK_ERROR"

	// TypeInternal indicates an internal error
	TypeInternal Type = "INTERNAL_ERROR"

	// TypeNotFound indicates a resource not found error
	TypeNotFound Type = "NOT_FOUND"
)

// ContextAvailableCorridors is the context key holding corridor suggestions
const ContextAvailableCorridors = "available_corridors"

// Error represents a domain error with context
type Error struct {
	Type    Type                   `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if the error is of a specific type
func (e *Error) Is(t Type) bool {
	return e.Type == t
}

// WithContext adds context to the error
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new error
func New(errType Type, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
	}
}

// Newf creates a new formatted error
func Newf(errType Type, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with context
func Wrap(errType Type, message string, cause error) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Cause:   cause,
	}
}

// Wrapf wraps an error with formatted context
func Wrapf(errType Type, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// As returns the first *Error in err's chain
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsType checks if any error in the chain is of a specific type
func IsType(err error, t Type) bool {
	for err != nil {
		var e *Error
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Type == t {
			return true
		}
		err = e.Cause
	}
	return false
}

// TypeOf returns the type of the first *Error in the chain, or TypeInternal
func TypeOf(err error) Type {
	if e, ok := As(err); ok {
		return e.Type
	}
	return TypeInternal
}

// NoCorridor creates a no-corridor error listing the corridors that do exist
func NoCorridor(mode, origin, destination string, available []string) *Error {
	sorted := append([]string(nil), available...)
	sort.Strings(sorted)
	return Newf(TypeNoCorridor, "no %s corridor from %q to %q", mode, origin, destination).
		WithContext(ContextAvailableCorridors, sorted)
}

// AvailableCorridors extracts corridor suggestions from a no-corridor error
func AvailableCorridors(err error) []string {
	e, ok := As(err)
	if !ok || e.Type != TypeNoCorridor {
		return nil
	}
	corridors, _ := e.Context[ContextAvailableCorridors].([]string)
	return corridors
}

// InvalidQuantity creates an invalid quantity error
func InvalidQuantity(message string) *Error {
	return New(TypeInvalidQuantity, message)
}

// FxUnavailable creates an FX rate unavailable error
func FxUnavailable(message string, cause error) *Error {
	return Wrap(TypeFxUnavailable, message, cause)
}

// MarginConfig creates a margin configuration error
func MarginConfig(message string) *Error {
	return New(TypeMarginConfig, message)
}

// Input creates an input error
func Input(message string) *Error {
	return New(TypeInput, message)
}

// Config creates a configuration error
func Config(message string, cause error) *Error {
	return Wrap(TypeConfig, message, cause)
}

// Network creates a network error
func Network(message string, cause error) *Error {
	return Wrap(TypeNetwork, message, cause)
}

// NotFound creates a not found error
func NotFound(resourceType, identifier string) *Error {
	return Newf(TypeNotFound, "%s not found: %s", resourceType, identifier)
}

// Internal creates an internal error
func Internal(message string, cause error) *Error {
	return Wrap(TypeInternal, message, cause)
}
