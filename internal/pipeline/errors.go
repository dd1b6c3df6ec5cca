package pipeline

import (
	"errors"
	"fmt"
)

// Common pipeline errors
var (
	// ErrNoData means a stage ran but produced no valid rows
	ErrNoData = errors.New("no data")

	// ErrUnavailable means a stage could not run, e.g. no API key or no URL
	ErrUnavailable = errors.New("stage unavailable")
)

// ErrorCode classifies why a stage failed
type ErrorCode string

const (
	ErrCodeNoData      ErrorCode = "NO_DATA"
	ErrCodeUnavailable ErrorCode = "UNAVAILABLE"
	ErrCodeUpstream    ErrorCode = "UPSTREAM"
	ErrCodeFetch       ErrorCode = "FETCH"
	ErrCodeParse       ErrorCode = "PARSE"
	ErrCodeCanceled    ErrorCode = "CANCELED"
)

// StageError wraps a stage failure with the stage and URL it happened on
type StageError struct {
	Code       ErrorCode
	Stage      Stage
	URL        string
	Underlying error
}

// Error implements the error interface
func (e *StageError) Error() string {
	if e.URL != "" {
		return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Stage, e.URL, e.Underlying)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Stage, e.Underlying)
}

// Unwrap returns the underlying error
func (e *StageError) Unwrap() error {
	return e.Underlying
}

// Is checks if the error matches the target
func (e *StageError) Is(target error) bool {
	if t, ok := target.(*StageError); ok {
		return e.Code == t.Code
	}
	return errors.Is(e.Underlying, target)
}

// NewStageError creates a new StageError
func NewStageError(code ErrorCode, stage Stage, url string, err error) *StageError {
	return &StageError{
		Code:       code,
		Stage:      stage,
		URL:        url,
		Underlying: err,
	}
}
