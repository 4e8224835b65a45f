// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors
var (
	ErrConfigInvalid  = errors.New("invalid configuration")
	ErrDataNotFound   = errors.New("data not found")
	ErrInvalidWindow  = errors.New("invalid event window")
	ErrFetchFailed    = errors.New("fetch failed")
	ErrRunNotFound    = errors.New("study run not found")
	ErrDatabaseError  = errors.New("database error")
	ErrUnknownFormat  = errors.New("unknown export format")
	ErrInvalidTicker  = errors.New("invalid ticker")
	ErrSourceDisabled = errors.New("data source disabled")
)

// UnrecognizedActionError is returned when a recommendation action passes the
// up/down filter but is not exactly "up" or "down" (for example "upgrade").
type UnrecognizedActionError struct {
	Action string
}

func (e *UnrecognizedActionError) Error() string {
	return fmt.Sprintf("unrecognized recommendation action %q", e.Action)
}

// NewUnrecognizedActionError creates a new UnrecognizedActionError.
func NewUnrecognizedActionError(action string) *UnrecognizedActionError {
	return &UnrecognizedActionError{Action: action}
}

// SchemaError is returned when an input table lacks required columns.
type SchemaError struct {
	File    string
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error [%s]: missing column(s) %s", e.File, strings.Join(e.Missing, ", "))
}

// NewSchemaError creates a new SchemaError.
func NewSchemaError(file string, missing []string) *SchemaError {
	return &SchemaError{
		File:    file,
		Missing: missing,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Ticker   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Ticker, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Ticker, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, ticker, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Ticker:   ticker,
		Message:  message,
		Err:      err,
	}
}

// SourceError represents a failure in an external data source.
type SourceError struct {
	Source string
	Ticker string
	Err    error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source error [%s] %s: %v", e.Source, e.Ticker, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrFetchFailed) match any source failure.
func (e *SourceError) Is(target error) bool {
	return target == ErrFetchFailed
}

// NewSourceError creates a new SourceError.
func NewSourceError(source, ticker string, err error) *SourceError {
	return &SourceError{
		Source: source,
		Ticker: ticker,
		Err:    err,
	}
}

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Is lets errors.Is(err, ErrConfigInvalid) match validation failures.
func (e *ValidationError) Is(target error) bool {
	return target == ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}
