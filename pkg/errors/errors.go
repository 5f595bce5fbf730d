// Package errors provides custom error types for the enrollsync system.
// These errors enable better error handling, programmatic error checking,
// and a clear split between batch-fatal failures and failures that only
// affect a single stage, chunk, or record.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is, As and Join mirror the standard library so callers need a single import.
var (
	Is   = errors.Is
	As   = errors.As
	Join = errors.Join
)

// Common sentinel errors for the enrollsync system
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates that provided input was invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrCredentialRequired indicates that a target has no credential configured
	ErrCredentialRequired = errors.New("credential required")

	// ErrStoreUnavailable indicates that the remote store is temporarily unavailable
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrRateLimited indicates that the remote store throttled the request
	ErrRateLimited = errors.New("rate limited")

	// ErrBatchFatal marks failures that abort the whole run
	ErrBatchFatal = errors.New("batch fatal")
)

// NotFoundError represents an error when a resource is not found
type NotFoundError struct {
	Resource string
	ID       string
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %s not found", e.Resource, e.ID)
}

// Is implements errors.Is support
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFoundError creates a new NotFoundError
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// Is implements errors.Is support
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// NewValidationError creates a new ValidationError
func NewValidationError(field string, value any, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// APIError represents a non-success response from a remote record store.
// Only HTTP 200 counts as success; every other status becomes an APIError.
type APIError struct {
	App        string // Remote application identifier
	StatusCode int
	Message    string
	Endpoint   string
	Err        error
}

// Error implements the error interface
func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("API error from app %s (status %d): %s", e.App, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error from app %s: %s", e.App, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *APIError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support. A request that got no response at all
// (status 0) counts as the store being unavailable.
func (e *APIError) Is(target error) bool {
	if e.StatusCode == 0 {
		return target == ErrStoreUnavailable
	}
	if e.StatusCode == 429 {
		return target == ErrRateLimited
	}
	if e.StatusCode >= 500 {
		return target == ErrStoreUnavailable
	}
	return false
}

// NewAPIError creates a new APIError
func NewAPIError(app string, statusCode int, message string) *APIError {
	return &APIError{
		App:        app,
		StatusCode: statusCode,
		Message:    message,
	}
}

// ConfigError represents a configuration error
type ConfigError struct {
	Component string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Component != "" {
		return fmt.Sprintf("configuration error in %s: %s", e.Component, e.Message)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError
func NewConfigError(component, message string, err error) *ConfigError {
	return &ConfigError{
		Component: component,
		Message:   message,
		Err:       err,
	}
}

// ParseError represents an error when parsing data formats
type ParseError struct {
	Format  string // "csv", "json", "yaml"
	File    string
	Line    int
	Column  int
	Message string
	Err     error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" && e.Line > 0 {
		return fmt.Sprintf("parse error in %s at %s:%d:%d: %s", e.Format, e.File, e.Line, e.Column, e.Message)
	}
	if e.File != "" {
		return fmt.Sprintf("parse error in %s file %s: %s", e.Format, e.File, e.Message)
	}
	return fmt.Sprintf("%s parse error: %s", e.Format, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ParseError) Unwrap() error {
	return e.Err
}

// NewParseError creates a new ParseError
func NewParseError(format, file string, message string, err error) *ParseError {
	return &ParseError{
		Format:  format,
		File:    file,
		Message: message,
		Err:     err,
	}
}

// IOError represents an error during I/O operations
type IOError struct {
	Operation string // "read", "write", "open", "locate", "decode"
	Path      string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("IO error during %s of %s: %s", e.Operation, e.Path, e.Message)
	}
	return fmt.Sprintf("IO error during %s: %s", e.Operation, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *IOError) Unwrap() error {
	return e.Err
}

// NewIOError creates a new IOError
func NewIOError(operation, path string, err error) *IOError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &IOError{
		Operation: operation,
		Path:      path,
		Message:   message,
		Err:       err,
	}
}

// ResourceError represents an error during resource operations
type ResourceError struct {
	Operation string // "create", "update", "query", "load"
	Resource  string // "record", "event", "config", "audit"
	ID        string
	Message   string
	Err       error
}

// Error implements the error interface
func (e *ResourceError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("failed to %s %s %s: %s", e.Operation, e.Resource, e.ID, e.Message)
	}
	return fmt.Sprintf("failed to %s %s: %s", e.Operation, e.Resource, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *ResourceError) Unwrap() error {
	return e.Err
}

// NewResourceError creates a new ResourceError
func NewResourceError(operation, resource, id string, err error) *ResourceError {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ResourceError{
		Operation: operation,
		Resource:  resource,
		ID:        id,
		Message:   message,
		Err:       err,
	}
}

// JoinError reports a benefits row that has no identity row.
// A single miss fails the whole batch.
type JoinError struct {
	ParticipantCode string
	Row             int // 1-indexed position in the benefits feed
}

// Error implements the error interface
func (e *JoinError) Error() string {
	return fmt.Sprintf("participant code %s (benefits row %d) has no identity record", e.ParticipantCode, e.Row)
}

// Is implements errors.Is support
func (e *JoinError) Is(target error) bool {
	return target == ErrNotFound || target == ErrBatchFatal
}

// NewJoinError creates a new JoinError
func NewJoinError(code string, row int) *JoinError {
	return &JoinError{ParticipantCode: code, Row: row}
}

// ChunkError reports a failed batch write. Offset is the index of the first
// record of the failed chunk within the plan.
type ChunkError struct {
	Operation string // "create" or "update"
	App       string
	Offset    int
	Size      int
	Err       error
}

// Error implements the error interface
func (e *ChunkError) Error() string {
	return fmt.Sprintf("batch %s on app %s failed for records %d-%d: %v",
		e.Operation, e.App, e.Offset, e.Offset+e.Size-1, e.Err)
}

// Unwrap implements errors.Unwrap
func (e *ChunkError) Unwrap() error {
	return e.Err
}

// NewChunkError creates a new ChunkError
func NewChunkError(operation, app string, offset, size int, err error) *ChunkError {
	return &ChunkError{
		Operation: operation,
		App:       app,
		Offset:    offset,
		Size:      size,
		Err:       err,
	}
}

// Fatal marks err as batch-fatal while keeping it unwrappable.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }
func (e *fatalError) Is(target error) bool {
	return target == ErrBatchFatal
}

// Helper functions for error checking

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsRateLimited checks if an error is a rate limit error
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsStoreUnavailable checks if an error indicates the store is unavailable
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// IsBatchFatal checks if an error must abort the whole run
func IsBatchFatal(err error) bool {
	return errors.Is(err, ErrBatchFatal)
}

// Helper wrapping functions for common patterns

// WrapValidation wraps an error as a ValidationError
func WrapValidation(field string, err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Field: field, Message: err.Error()}
}

// WrapIO wraps an error as an IOError
func WrapIO(operation, path string, err error) error {
	if err == nil {
		return nil
	}
	return NewIOError(operation, path, err)
}

// WrapResource wraps an error as a ResourceError
func WrapResource(operation, resource, id string, err error) error {
	if err == nil {
		return nil
	}
	return NewResourceError(operation, resource, id, err)
}

// WrapParse wraps an error as a ParseError
func WrapParse(format, file string, err error) error {
	if err == nil {
		return nil
	}
	return NewParseError(format, file, err.Error(), err)
}

// WrapAPI wraps an error as an APIError. Use status 0 for a request that
// never got a response.
func WrapAPI(app string, statusCode int, err error) error {
	if err == nil {
		return nil
	}
	return &APIError{
		App:        app,
		StatusCode: statusCode,
		Message:    err.Error(),
		Err:        err,
	}
}
