// Package common provides shared utilities and types used across the application.
package common

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Common application errors.
var (
	// Database errors.
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEntry = errors.New("duplicate entry")

	// Voucher errors.
	ErrTooFewLines      = errors.New("voucher requires at least two lines")
	ErrInvalidLine      = errors.New("voucher line must have exactly one positive side")
	ErrUnbalanced       = errors.New("voucher debits and credits do not balance")
	ErrVoucherLocked    = errors.New("posted vouchers are immutable")
	ErrDuplicatePosting = errors.New("source record is already posted")

	// Review queue errors.
	ErrAlreadyResolved = errors.New("review item was already resolved")
	ErrUnknownItem     = errors.New("unknown review item")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// ValidationError reports a voucher invariant violation with the exact
// imbalance so the caller can see what went wrong. Nothing is persisted when
// a ValidationError is returned.
type ValidationError struct {
	Err       error
	SourceRef string
	Imbalance decimal.Decimal
}

func (e *ValidationError) Error() string {
	if !e.Imbalance.IsZero() {
		return fmt.Sprintf("voucher validation failed for %s: %v (imbalance %s)",
			e.SourceRef, e.Err, e.Imbalance.String())
	}
	return fmt.Sprintf("voucher validation failed for %s: %v", e.SourceRef, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// DuplicatePostingError reports an attempt to post a source record twice.
// It carries the existing voucher so the caller can point at it.
type DuplicatePostingError struct {
	SourceRef         string
	ExistingVoucherID string
}

func (e *DuplicatePostingError) Error() string {
	return fmt.Sprintf("source %s is already posted as voucher %s", e.SourceRef, e.ExistingVoucherID)
}

func (e *DuplicatePostingError) Unwrap() error {
	return ErrDuplicatePosting
}

// ConcurrencyConflictError is returned to the loser of a review item claim
// race. It tells the caller what outcome the winner recorded.
type ConcurrencyConflictError struct {
	ItemID  string
	Outcome string
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("review item %s was already resolved as %s", e.ItemID, e.Outcome)
}

func (e *ConcurrencyConflictError) Unwrap() error {
	return ErrAlreadyResolved
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}
