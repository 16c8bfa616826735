package apply

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes applier errors.
type ErrorCode string

const (
	// ErrCodeApplicationFailed indicates the rewrite itself could not be
	// carried out at the given match, e.g. a dangling deletion under the
	// forbid policy or a match binding that no longer exists.
	ErrCodeApplicationFailed ErrorCode = "APPLICATION_FAILED"

	// ErrCodeValidationFailed indicates the rewritten graph violated a
	// model invariant; the application was rolled back.
	ErrCodeValidationFailed ErrorCode = "VALIDATION_FAILED"

	// ErrCodeConflictDetected indicates two planned applications overlap
	// on deleted elements and cannot commute.
	ErrCodeConflictDetected ErrorCode = "CONFLICT_DETECTED"
)

// Error is a structured applier error.
type Error struct {
	Code    ErrorCode
	Rule    string
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Rule != "" {
		return fmt.Sprintf("%s: %s (rule=%s)", e.Code, e.Message, e.Rule)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

// IsApplicationFailed reports whether err is an APPLICATION_FAILED error.
func IsApplicationFailed(err error) bool { return hasCode(err, ErrCodeApplicationFailed) }

// IsValidationFailed reports whether err is a VALIDATION_FAILED error.
func IsValidationFailed(err error) bool { return hasCode(err, ErrCodeValidationFailed) }

// IsConflictDetected reports whether err is a CONFLICT_DETECTED error.
func IsConflictDetected(err error) bool { return hasCode(err, ErrCodeConflictDetected) }

func hasCode(err error, code ErrorCode) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code == code
	}
	return false
}

func applyFailed(ruleID, format string, args ...any) *Error {
	return &Error{Code: ErrCodeApplicationFailed, Rule: ruleID, Message: fmt.Sprintf(format, args...)}
}

func conflictDetected(ruleID, format string, args ...any) *Error {
	return &Error{Code: ErrCodeConflictDetected, Rule: ruleID, Message: fmt.Sprintf(format, args...)}
}

// ValidationCode categorizes post-rewrite validation findings.
type ValidationCode string

const (
	// ValTypeConstraint flags an element with a missing or malformed type
	// or an invalid incidence role.
	ValTypeConstraint ValidationCode = "TYPE_CONSTRAINT_VIOLATION"

	// ValCardinality flags non-contiguous positional DataIn/DataOut
	// indices on a hyperedge.
	ValCardinality ValidationCode = "CARDINALITY_VIOLATION"

	// ValReference flags an endpoint or incidence referencing an element
	// that does not exist.
	ValReference ValidationCode = "REFERENCE_VIOLATION"
)

// ValidationError describes one invariant violation found in a rewritten
// graph.
type ValidationError struct {
	Code    ValidationCode
	Element string // CID of the offending element
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: element %s: %s", e.Code, e.Element, e.Message)
}
