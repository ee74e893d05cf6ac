package domain

import "fmt"

// Kind classifies a failure for orchestration callers. It maps one-to-one to
// the exit conditions the HTTP surface translates into status codes.
type Kind string

const (
	KindOk              Kind = "Ok"
	KindContractError   Kind = "ContractError"
	KindIntegrityError  Kind = "IntegrityError"
	KindStorageError    Kind = "StorageError"
	KindUnauthenticated Kind = "Unauthenticated"
	KindNotFound        Kind = "NotFound"
	KindConflict        Kind = "Conflict"
	KindCancelled       Kind = "Cancelled"
	KindTimeout         Kind = "Timeout"
)

// Error is the sum-type result carried across component boundaries.
// Rule violations from the audit engine are data, not errors, and never
// appear here.
type Error struct {
	Kind    Kind
	Op      string
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Op, e.Details, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v (%s)", e.Op, e.Err, e.Kind)
	}
	return fmt.Sprintf("%s (%s)", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of err, or KindStorageError for unclassified
// non-nil errors and KindOk for nil.
func KindOf(err error) Kind {
	if err == nil {
		return KindOk
	}
	if de, ok := err.(*Error); ok {
		return de.Kind
	}
	return KindStorageError
}
