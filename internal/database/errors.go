package database

import (
	"errors"
	"fmt"
)

var (
	// ErrDimensionMismatch is returned when a vector length disagrees with the index.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrIndexUnavailable is returned when the backing store cannot be reached.
	ErrIndexUnavailable = errors.New("similarity index unavailable")
	// ErrSubjectNotFound is returned when a subject does not exist.
	ErrSubjectNotFound = errors.New("subject not found")
	// ErrInvalidSubjectID is returned for an empty subject id.
	ErrInvalidSubjectID = errors.New("invalid subject id")
)

// DimensionMismatchError carries the established and the offending vector length.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

// Unavailable marks err as a store outage while keeping the cause in the chain.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrIndexUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
}
