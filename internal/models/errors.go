package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a booking, promocode or withdrawal lookup misses.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientBalance is returned when a ledger entry would push a balance below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInvalidTransition is returned when a booking status change is not allowed.
	ErrInvalidTransition = errors.New("invalid booking status transition")
	// ErrAlreadyPaid is returned when paying for a booking that left NOT_PAID.
	ErrAlreadyPaid = errors.New("booking already paid")
	ErrForbidden   = errors.New("forbidden")
	// ErrIntentAlreadyCanceled is returned by a provider canceling a payment intent twice.
	ErrIntentAlreadyCanceled = errors.New("payment intent already canceled")
)

// Validation error codes.
const (
	CodeDateConflict     = "date_conflict"
	CodeTooSoon          = "too_soon"
	CodeDurationTooShort = "duration_too_short"
	CodeInvalidCode      = "invalid_code"
	CodeAlreadyUsed      = "already_used"
	CodeOverused         = "overused"
	CodeNotYetActive     = "not_yet_active"
	CodeExpired          = "expired"
	CodeInvalidPercent   = "invalid_percent"
	CodeInvalidStatus    = "invalid_status"
	CodeInvalidAmount    = "invalid_amount"
)

// ValidationError is bad input scoped to a single field.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, code, message string) *ValidationError {
	return &ValidationError{Field: field, Code: code, Message: message}
}

// ProviderError wraps a payment gateway failure.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
