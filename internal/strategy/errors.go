package strategy

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes strategy engine errors. Strategy failure (a
// subtree that simply does not apply) is a run outcome, not an error;
// these codes cover genuinely broken runs.
type ErrorCode string

const (
	// ErrCodeUnknownRule indicates a strategy referenced a rule id the
	// rule set does not define.
	ErrCodeUnknownRule ErrorCode = "UNKNOWN_RULE"

	// ErrCodeUnknownQuery indicates a guard referenced an undefined query.
	ErrCodeUnknownQuery ErrorCode = "UNKNOWN_QUERY"

	// ErrCodeBudgetExceeded indicates the run hit its step quota.
	ErrCodeBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
)

// Error is a structured strategy engine error.
type Error struct {
	Code    ErrorCode
	Ref     string // rule or query id, when relevant
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Ref != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Ref)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// IsUnknownRule reports whether err is an UNKNOWN_RULE error.
func IsUnknownRule(err error) bool { return hasCode(err, ErrCodeUnknownRule) }

// IsUnknownQuery reports whether err is an UNKNOWN_QUERY error.
func IsUnknownQuery(err error) bool { return hasCode(err, ErrCodeUnknownQuery) }

// IsBudgetExceeded reports whether err is a BUDGET_EXCEEDED error.
func IsBudgetExceeded(err error) bool { return hasCode(err, ErrCodeBudgetExceeded) }

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}
