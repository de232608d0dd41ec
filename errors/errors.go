package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for common error conditions
var (
	// ErrNotFound indicates that a requested resource was not found
	ErrNotFound = errors.New("resource not found")

	// ErrInvalidInput indicates that input validation failed
	ErrInvalidInput = errors.New("invalid input")

	// ErrEmptyInput indicates that no usable passages were supplied for ranking
	ErrEmptyInput = errors.New("no usable passages to rank")

	// ErrEmbeddingProvider indicates the embedding provider was unreachable or returned malformed data
	ErrEmbeddingProvider = errors.New("embedding provider failure")

	// ErrStageFailure indicates a pipeline stage could not complete its turn
	ErrStageFailure = errors.New("stage failure")

	// ErrPersistence indicates a conversation record could not be stored
	ErrPersistence = errors.New("persistence failure")
)

// StageError reports which pipeline stage failed and why.
type StageError struct {
	Stage string
	Err   error
}

// NewStageError wraps err as a failure of the named stage.
func NewStageError(stage string, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s stage failed", e.Stage)
	}
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Is makes every StageError match ErrStageFailure.
func (e *StageError) Is(target error) bool {
	return target == ErrStageFailure
}
