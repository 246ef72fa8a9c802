package inbox

import (
	"errors"
	"strings"
)

var (
	// ErrConfig is returned for invalid engine configuration.
	ErrConfig = errors.New("invalid config")

	// ErrMissingUser is returned when a store operation is invoked without a user id.
	ErrMissingUser = errors.New("missing user id")

	// ErrInvalidBatch is the sentinel wrapped by ValidationError.
	ErrInvalidBatch = errors.New("invalid agent batch")
)

// ValidationError describes why a raw agent payload was rejected.
// It collects all structural issues rather than stopping at the first, so a
// drifting generator contract is diagnosable from a single log line.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Issues) == 0 {
		return ErrInvalidBatch.Error()
	}
	return ErrInvalidBatch.Error() + ": " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidBatch }
