package extractor

import (
	"errors"
	"fmt"
)

var (
	// ErrExtractionTimeout is returned when the extractor does not answer in time.
	ErrExtractionTimeout = errors.New("feature extraction timed out")
	// ErrExtractionRejected is returned for non-2xx extractor responses.
	ErrExtractionRejected = errors.New("feature extraction rejected")
	// ErrMalformedResponse is returned when the extractor answer cannot be used.
	ErrMalformedResponse = errors.New("malformed extractor response")
	// ErrExtractorUnavailable is returned when the extractor cannot be reached.
	ErrExtractorUnavailable = errors.New("feature extractor unavailable")
	// ErrExtractorNotReady is returned by Extract before Init succeeded.
	ErrExtractorNotReady = errors.New("feature extractor not ready")
	// ErrEmptyImageRef is returned for a reference with neither URL nor data.
	ErrEmptyImageRef = errors.New("image reference has neither url nor data")
)

// RejectedError carries the status and body of a rejected extraction.
type RejectedError struct {
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

func (e *RejectedError) Unwrap() error {
	return ErrExtractionRejected
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...))
}
