package errors

import (
	"errors"
	"fmt"
	"time"
)

// Error types for the reactive model
type ErrorType string

const (
	// Transaction errors
	ErrorTypeTransaction ErrorType = "transaction"
	ErrorTypePanic       ErrorType = "panic"

	// Lifetime errors
	ErrorTypeCleanup ErrorType = "cleanup"

	// Index errors
	ErrorTypeIndexMismatch ErrorType = "index_mismatch"

	// Input errors
	ErrorTypeScript ErrorType = "script"
	ErrorTypeConfig ErrorType = "config"

	// Internal errors
	ErrorTypeInternal ErrorType = "internal"
)

// ErrModelClosed is returned by operations on a model whose lifetime has ended.
var ErrModelClosed = errors.New("reactive model is closed")

// TransactionError reports an aborted transaction. The committed root is
// unchanged whenever a TransactionError is returned.
type TransactionError struct {
	Type       ErrorType
	Name       string
	Revision   uint64 // revision the transform was applied to
	Underlying error
	Timestamp  time.Time
}

// NewTransactionError creates a new transaction error
func NewTransactionError(name string, revision uint64, err error) *TransactionError {
	return &TransactionError{
		Type:       ErrorTypeTransaction,
		Name:       name,
		Revision:   revision,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// NewTransactionPanic wraps a value recovered from a panicking transform
func NewTransactionPanic(name string, revision uint64, recovered interface{}) *TransactionError {
	return &TransactionError{
		Type:       ErrorTypePanic,
		Name:       name,
		Revision:   revision,
		Underlying: fmt.Errorf("transform panicked: %v", recovered),
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *TransactionError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("transaction %q aborted at revision %d: %v", e.Name, e.Revision, e.Underlying)
	}
	return fmt.Sprintf("transaction aborted at revision %d: %v", e.Revision, e.Underlying)
}

// Unwrap returns the underlying error for errors.Is/As
func (e *TransactionError) Unwrap() error {
	return e.Underlying
}

// IsPanic reports whether the transform panicked rather than returning an error
func (e *TransactionError) IsPanic() bool {
	return e.Type == ErrorTypePanic
}

// CleanupError collects failures from lifetime termination callbacks.
type CleanupError struct {
	Type      ErrorType
	Lifetime  string
	Failures  []error
	Timestamp time.Time
}

// NewCleanupError creates a cleanup error, or returns nil when there is nothing to report
func NewCleanupError(lifetime string, errs []error) *CleanupError {
	filtered := make([]error, 0, len(errs))
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &CleanupError{
		Type:      ErrorTypeCleanup,
		Lifetime:  lifetime,
		Failures:  filtered,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *CleanupError) Error() string {
	if len(e.Failures) == 1 {
		return fmt.Sprintf("cleanup of lifetime %s failed: %v", e.Lifetime, e.Failures[0])
	}
	return fmt.Sprintf("cleanup of lifetime %s failed with %d errors: %v", e.Lifetime, len(e.Failures), e.Failures)
}

// Unwrap returns all collected failures
func (e *CleanupError) Unwrap() []error {
	return e.Failures
}

// Errors returns the collected failures
func (e *CleanupError) Errors() []error {
	return e.Failures
}

// IndexMismatchError reports an incrementally maintained index that disagrees
// with a full recomputation over the same root.
type IndexMismatchError struct {
	Type      ErrorType
	Tag       string
	Missing   []string // members found by the full scan only
	Stale     []string // members found in the index only
	Timestamp time.Time
}

// NewIndexMismatchError creates a new index mismatch error
func NewIndexMismatchError(tag string, missing, stale []string) *IndexMismatchError {
	return &IndexMismatchError{
		Type:      ErrorTypeIndexMismatch,
		Tag:       tag,
		Missing:   missing,
		Stale:     stale,
		Timestamp: time.Now(),
	}
}

// Error implements the error interface
func (e *IndexMismatchError) Error() string {
	return fmt.Sprintf("index %q inconsistent with root: %d missing %v, %d stale %v",
		e.Tag, len(e.Missing), e.Missing, len(e.Stale), e.Stale)
}

// ScriptError represents a failure to load or apply a transaction script
type ScriptError struct {
	Type       ErrorType
	File       string
	Step       int // 1-based transaction number, 0 when not tied to a step
	Operation  string
	Underlying error
	Timestamp  time.Time
}

// NewScriptError creates a new script error
func NewScriptError(file string, step int, op string, err error) *ScriptError {
	return &ScriptError{
		Type:       ErrorTypeScript,
		File:       file,
		Step:       step,
		Operation:  op,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ScriptError) Error() string {
	if e.Step > 0 {
		return fmt.Sprintf("script %s: transaction %d: %s: %v", e.File, e.Step, e.Operation, e.Underlying)
	}
	return fmt.Sprintf("script %s: %s: %v", e.File, e.Operation, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ScriptError) Unwrap() error {
	return e.Underlying
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field      string
	Value      string
	Underlying error
	Timestamp  time.Time
}

// NewConfigError creates a new configuration error
func NewConfigError(field, value string, err error) *ConfigError {
	return &ConfigError{
		Field:      field,
		Value:      value,
		Underlying: err,
		Timestamp:  time.Now(),
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error for field %s (value %s): %v", e.Field, e.Value, e.Underlying)
}

// Unwrap returns the underlying error
func (e *ConfigError) Unwrap() error {
	return e.Underlying
}
