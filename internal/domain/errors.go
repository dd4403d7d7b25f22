package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedMediaType is returned before any extraction strategy
	// runs when the declared media type is not a supported document format.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrEmptyDocument is returned for zero-length uploads.
	ErrEmptyDocument = errors.New("empty document")

	// ErrJobNotFound is returned when a job id does not exist for the
	// requesting owner. Cross-owner lookups fail with this same error so
	// that nothing leaks about other owners' jobs.
	ErrJobNotFound = errors.New("ocr job not found")

	// ErrInvalidTransition is returned by the store when a guarded state
	// update matched no row, i.e. the job was already past that state.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// SubmissionError means the external OCR service refused or errored on
// job submission. It is surfaced synchronously at creation time and
// recorded on the job as a failed state.
type SubmissionError struct {
	Reason string
	Err    error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("ocr submission failed: %s: %v", e.Reason, e.Err)
	}
	return "ocr submission failed: " + e.Reason
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError means a status query against the external OCR service failed.
// Transient errors (timeouts, 5xx) never mutate persisted job state; the
// caller is told the job is still running and retries on the next poll.
type PollError struct {
	Transient bool
	Err       error
}

func (e *PollError) Error() string {
	if e.Transient {
		return fmt.Sprintf("transient ocr poll error: %v", e.Err)
	}
	return fmt.Sprintf("ocr poll error: %v", e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }
