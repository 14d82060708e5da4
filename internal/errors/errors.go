// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrInvalidMarketState  = errors.New("invalid market state")
	ErrInvalidOption       = errors.New("invalid option")
	ErrInvalidGreek        = errors.New("invalid greek")
	ErrInvalidStrategySpec = errors.New("invalid strategy spec")
	ErrInvalidPriceSeries  = errors.New("invalid price series")
	ErrInputValidation     = errors.New("input validation failed")
	ErrConfigInvalid       = errors.New("invalid configuration")
	ErrDataNotFound        = errors.New("data not found")
	ErrDatabaseError       = errors.New("database error")
)

// ValidationError represents a validation error.
// Kind is one of the sentinel errors above and is what errors.Is matches.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
	Kind    error
}

func (e *ValidationError) Error() string {
	if e.Kind != nil {
		return fmt.Sprintf("%v: %s (%v): %s", e.Kind, e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Kind == nil {
		return ErrInputValidation
	}
	return e.Kind
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string, kind error) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
		Kind:    kind,
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

// Kind returns the sentinel category of err, or nil when it is not a domain error.
// Boundary code uses it to map failures to exit codes or responses.
func Kind(err error) error {
	for _, k := range []error{
		ErrInvalidMarketState,
		ErrInvalidOption,
		ErrInvalidGreek,
		ErrInvalidStrategySpec,
		ErrInvalidPriceSeries,
		ErrInputValidation,
		ErrConfigInvalid,
		ErrDataNotFound,
		ErrDatabaseError,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// IsValidation reports whether err is an input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
