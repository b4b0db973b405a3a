package engine

import (
	"errors"
	"fmt"
)

// RuntimeError represents an error detected while recovering a dispatch
// table.
//
// Runtime errors include:
//   - Missing block: a branch target has no block in the body
//   - Round budget exceeded: the frontier was still non-empty at the cap
//   - Unsupported slice: an edge leaving the slice region carries a call
//   - No body: a method that must be analysed cannot be lifted
//   - Bad parameter index: the code parameter does not exist
//
// None of these abort a scan. The resolver logs and skips the affected
// code; the scan records a per-entity status.
type RuntimeError struct {
	// Code identifies the error category.
	Code RuntimeErrorCode

	// Message is a human-readable description.
	Message string

	// Method is the key of the method being analysed.
	Method string

	// Block is the affected block, or ir.NoBlock.
	Block string

	// Details contains additional context.
	Details map[string]string

	// Cause is the underlying error, if any.
	Cause error
}

// RuntimeErrorCode categorizes runtime errors.
type RuntimeErrorCode string

const (
	// ErrCodeMissingBlock indicates a branch target absent from the body.
	ErrCodeMissingBlock RuntimeErrorCode = "MISSING_BLOCK"

	// ErrCodeRoundBudgetExceeded indicates the frontier outlived the round cap.
	ErrCodeRoundBudgetExceeded RuntimeErrorCode = "ROUND_BUDGET_EXCEEDED"

	// ErrCodeUnsupportedSlice indicates a slice whose dropped edge has a side effect.
	ErrCodeUnsupportedSlice RuntimeErrorCode = "UNSUPPORTED_SLICE"

	// ErrCodeNoBody indicates a method without a retrievable body.
	ErrCodeNoBody RuntimeErrorCode = "NO_BODY"

	// ErrCodeBadParamIndex indicates the code parameter index is out of range.
	ErrCodeBadParamIndex RuntimeErrorCode = "BAD_PARAM_INDEX"
)

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Method != "" && e.Block != "" {
		return fmt.Sprintf("%s: %s (method=%s, block=%s)", e.Code, e.Message, e.Method, e.Block)
	}
	if e.Method != "" {
		return fmt.Sprintf("%s: %s (method=%s)", e.Code, e.Message, e.Method)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *RuntimeError) Unwrap() error { return e.Cause }

func hasCode(err error, code RuntimeErrorCode) bool {
	var re *RuntimeError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsUnsupportedSlice returns true if err is an unsupported slice shape.
// Uses errors.As to handle wrapped errors.
func IsUnsupportedSlice(err error) bool { return hasCode(err, ErrCodeUnsupportedSlice) }

// IsMissingBlock returns true if err is a missing block error.
func IsMissingBlock(err error) bool { return hasCode(err, ErrCodeMissingBlock) }

// IsNoBody returns true if err reports a method without a body.
func IsNoBody(err error) bool { return hasCode(err, ErrCodeNoBody) }

// IsRoundsExceeded returns true if err reports an exhausted round budget,
// either as a RuntimeError with ErrCodeRoundBudgetExceeded or as a bare
// RoundsExceededError.
func IsRoundsExceeded(err error) bool {
	if hasCode(err, ErrCodeRoundBudgetExceeded) {
		return true
	}
	var re *RoundsExceededError
	return errors.As(err, &re)
}

// NewUnsupportedSliceError creates a RuntimeError for an edge that cannot be
// dropped from a slice.
func NewUnsupportedSliceError(method, block, reason string) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeUnsupportedSlice,
		Message: reason,
		Method:  method,
		Block:   block,
	}
}

// NewRoundBudgetExceededError wraps the budget error of a truncated method
// scan.
func NewRoundBudgetExceededError(method string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeRoundBudgetExceeded,
		Message: "frontier not exhausted, result is partial",
		Method:  method,
		Cause:   cause,
	}
}

// NewMissingBlockError creates a RuntimeError for a dangling branch target.
func NewMissingBlockError(method, block string, code int64) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeMissingBlock,
		Message: "branch target has no block",
		Method:  method,
		Block:   block,
		Details: map[string]string{"code": fmt.Sprintf("%d", code)},
	}
}

// NewNoBodyError creates a RuntimeError for a method that cannot be lifted.
func NewNoBodyError(method string, cause error) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeNoBody,
		Message: cause.Error(),
		Method:  method,
		Cause:   cause,
	}
}

// NewBadParamIndexError creates a RuntimeError for an out-of-range code
// parameter.
func NewBadParamIndexError(method string, index, params int) *RuntimeError {
	return &RuntimeError{
		Code:    ErrCodeBadParamIndex,
		Message: fmt.Sprintf("parameter %d out of range (method has %d)", index, params),
		Method:  method,
	}
}
