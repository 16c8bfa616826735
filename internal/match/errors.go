package match

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes matcher errors.
type ErrorCode string

const (
	// ErrCodeInvalidPattern indicates a malformed rule or query graph.
	// Fatal - the caller must fix the rule definition.
	ErrCodeInvalidPattern ErrorCode = "INVALID_PATTERN"

	// ErrCodeTimeout indicates the search budget elapsed with zero matches
	// found. Recoverable - retry with a larger budget. A timeout after at
	// least one match is reported via Result.TimedOut, not as an error.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodePatternMatchFailed is the internal negative result feeding
	// choice/guard control flow; it is not surfaced as a hard error.
	ErrCodePatternMatchFailed ErrorCode = "PATTERN_MATCH_FAILED"
)

// Error is a structured matcher error.
type Error struct {
	Code    ErrorCode
	Pattern string // pattern or rule graph id, when known
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Pattern != "" {
		return fmt.Sprintf("%s: %s (pattern=%s)", e.Code, e.Message, e.Pattern)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IsTimeout returns true if the error is a matcher timeout.
// Uses errors.As to handle wrapped errors.
func IsTimeout(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == ErrCodeTimeout
	}
	return false
}

// IsInvalidPattern returns true if the error reports a malformed pattern.
func IsInvalidPattern(err error) bool {
	var me *Error
	if errors.As(err, &me) {
		return me.Code == ErrCodeInvalidPattern
	}
	return false
}

func invalidPattern(pattern, format string, args ...any) *Error {
	return &Error{
		Code:    ErrCodeInvalidPattern,
		Pattern: pattern,
		Message: fmt.Sprintf(format, args...),
	}
}
