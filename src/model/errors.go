package model

import "fmt"

// ErrorCode classifies ledger rejections so callers can branch without
// parsing messages.
type ErrorCode string

const (
	ErrCodeValidation          ErrorCode = "VALIDATION_ERROR"
	ErrCodeNotFound            ErrorCode = "NOT_FOUND"
	ErrCodeInsufficientFunds   ErrorCode = "INSUFFICIENT_FUNDS"
	ErrCodeOptionLimitExceeded ErrorCode = "OPTION_LIMIT_EXCEEDED"
	ErrCodePersistence         ErrorCode = "PERSISTENCE_FAILURE"
	ErrCodeVersionConflict     ErrorCode = "VERSION_CONFLICT"
)

// LedgerError is the structured rejection returned to callers. Message is
// user-displayable and carries the numeric amounts formatted to two
// decimals; a bare internal error never escapes the core.
type LedgerError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Cause   error     `json:"-"`
}

func (e *LedgerError) Error() string {
	return string(e.Code) + ": " + e.Message
}

func (e *LedgerError) Unwrap() error {
	return e.Cause
}

// Is matches two ledger errors by code so errors.Is works with the
// sentinel-style constructors below.
func (e *LedgerError) Is(target error) bool {
	t, ok := target.(*LedgerError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func NewValidationError(format string, args ...interface{}) *LedgerError {
	return &LedgerError{Code: ErrCodeValidation, Message: fmt.Sprintf(format, args...)}
}

func NewFundAccountNotFound(brokerID, customerID string) *LedgerError {
	return &LedgerError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Fund account not found for broker %s, customer %s", brokerID, customerID),
	}
}

func NewOrderNotFound(ref string) *LedgerError {
	return &LedgerError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("Order not found: %s", ref),
	}
}

func NewInsufficientFunds(required, available float64) *LedgerError {
	return &LedgerError{
		Code:    ErrCodeInsufficientFunds,
		Message: fmt.Sprintf("Insufficient funds. Required: %.2f, Available: %.2f", required, available),
	}
}

// NewOptionLimitExceeded reports a breach of the daily option exposure cap.
// The label distinguishes a fresh requirement from the incremental margin of
// a modification ("Required" vs "Additional Required").
func NewOptionLimitExceeded(label string, cap, usedToday, required float64) *LedgerError {
	return &LedgerError{
		Code: ErrCodeOptionLimitExceeded,
		Message: fmt.Sprintf(
			"Option daily limit exceeded. Cap: %.2f, Used today: %.2f, %s: %.2f",
			cap, usedToday, label, required,
		),
	}
}

func NewPersistenceFailure(op string, cause error) *LedgerError {
	return &LedgerError{
		Code:    ErrCodePersistence,
		Message: fmt.Sprintf("Failed to persist %s", op),
		Cause:   cause,
	}
}

// ErrVersionConflict is returned by the fund account repository when a
// conditional write loses a race. Callers reload and retry.
var ErrVersionConflict = &LedgerError{
	Code:    ErrCodeVersionConflict,
	Message: "Fund account was modified concurrently",
}
