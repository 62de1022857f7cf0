/*
errors.go - Error taxonomy of the dues engine

ERROR CATEGORIES:
  1. Period errors - re-exported from period/ (interval mismatch, bad key)
  2. Lookup errors - member or payment does not exist
  3. Validation errors - bad command input

NOT AN ERROR:
  A member without contribution or interval has no obligation. That is
  reported as MemberDuesStatus.State == UNKNOWN, never returned as error.

STORE ERRORS:
  Store failures propagate wrapped with %w. The engine does not retry or
  swallow them.
*/
package dues

import (
	"errors"
	"fmt"

	"github.com/warp/dues-engine/period"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrIntervalMismatch = period.ErrIntervalMismatch
	ErrInvalidKey       = period.ErrInvalidKey
	ErrInvalidInterval  = period.ErrInvalidInterval

	// ErrMemberNotFound is returned when the member store has no profile.
	ErrMemberNotFound = errors.New("member not found")

	// ErrPaymentNotFound is returned by operations that need an existing record.
	ErrPaymentNotFound = errors.New("payment record not found")

	// ErrInvalidAmount is returned for negative money values.
	ErrInvalidAmount = errors.New("invalid amount")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// MemberNotFoundError names the missing member.
type MemberNotFoundError struct {
	MemberID MemberID
}

func (e *MemberNotFoundError) Error() string {
	return fmt.Sprintf("member not found: %s", e.MemberID)
}

func (e *MemberNotFoundError) Unwrap() error { return ErrMemberNotFound }

// PaymentNotFoundError names the unsettled period.
type PaymentNotFoundError struct {
	MemberID MemberID
	Period   period.Key
}

func (e *PaymentNotFoundError) Error() string {
	return fmt.Sprintf("no payment recorded for %s period %s", e.MemberID, e.Period)
}

func (e *PaymentNotFoundError) Unwrap() error { return ErrPaymentNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrIntervalMismatch) ||
		errors.Is(err, ErrInvalidKey) ||
		errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidAmount)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
