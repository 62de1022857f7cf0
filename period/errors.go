package period

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrIntervalMismatch is returned when keys of different intervals are
	// compared. Callers that stick to profile.Interval never see it.
	ErrIntervalMismatch = errors.New("period interval mismatch")

	// ErrInvalidKey is returned when period text cannot be parsed.
	ErrInvalidKey = errors.New("invalid period key")

	// ErrInvalidInterval is returned for an unknown interval name.
	ErrInvalidInterval = errors.New("invalid interval")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// IntervalMismatchError names the two intervals that were mixed.
type IntervalMismatchError struct {
	Left  Interval
	Right Interval
}

func (e *IntervalMismatchError) Error() string {
	return fmt.Sprintf("cannot compare %s period with %s period", e.Left, e.Right)
}

func (e *IntervalMismatchError) Unwrap() error { return ErrIntervalMismatch }

// InvalidKeyError carries the rejected text.
type InvalidKeyError struct {
	Text     string
	Interval Interval
	Reason   string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("invalid %s period key %q: %s", e.Interval, e.Text, e.Reason)
}

func (e *InvalidKeyError) Unwrap() error { return ErrInvalidKey }
