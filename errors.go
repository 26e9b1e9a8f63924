package policymaker

import (
	"errors"
	"fmt"

	"github.com/xraph/policymaker/access"
	"github.com/xraph/policymaker/premium"
)

// Sentinel errors returned by the engine and every store backend.
// None of them is transient; the engine never retries.
var (
	// Caller errors
	ErrInvalidInput         = errors.New("policymaker: invalid input")
	ErrInvalidPolicyTerms   = errors.New("policymaker: invalid policy terms")
	ErrUnauthorized         = access.ErrUnauthorized
	ErrNoAdmin              = access.ErrNoAdmin
	ErrAmountMustBePositive = errors.New("policymaker: amount must be positive")
	ErrCurrencyMismatch     = errors.New("policymaker: currency does not match policy")

	// Lookup errors
	ErrPolicyNotFound  = errors.New("policymaker: policy not found")
	ErrPolicyInactive  = errors.New("policymaker: policy is inactive")
	ErrPaymentNotFound = errors.New("policymaker: payment not found")

	// Arithmetic errors
	ErrAmountOverflow = premium.ErrOverflow

	// Store errors
	ErrStoreClosed     = errors.New("policymaker: store is closed")
	ErrMigrationFailed = errors.New("policymaker: migration failed")
)

// ValidationError names the policy term that failed validation.
// It matches ErrInvalidPolicyTerms under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("policymaker: invalid policy terms: %s %s", e.Field, e.Message)
}

// Unwrap ties every ValidationError to ErrInvalidPolicyTerms.
func (e ValidationError) Unwrap() error { return ErrInvalidPolicyTerms }

// IsNotFound reports whether err is a lookup miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}

// IsCallerError reports whether err was caused by the caller's input or identity
// rather than by the store.
func IsCallerError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidPolicyTerms) ||
		errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrNoAdmin) ||
		errors.Is(err, ErrAmountMustBePositive) ||
		errors.Is(err, ErrCurrencyMismatch) ||
		errors.Is(err, ErrPolicyInactive) ||
		IsNotFound(err)
}
