package axisdb

import (
	"errors"
	"fmt"

	"github.com/axisdb/axisdb/internal/query"
)

// Common sentinel errors for the axisdb package. The parse-time sentinels
// are re-exported from the query parser so callers can match them with
// errors.Is without importing the internal package.
var (
	// ErrClosed is returned when operations are attempted on a closed store.
	ErrClosed = errors.New("store is closed")

	// ErrEmptyQuery is returned when a query is empty after comment and
	// whitespace stripping.
	ErrEmptyQuery = query.ErrEmptyQuery

	// ErrSyntax is returned for malformed query text.
	ErrSyntax = query.ErrSyntax

	// ErrUnknownOperation is returned for an operation name the registry
	// does not know, or a known name used with the wrong kind of pipe.
	ErrUnknownOperation = query.ErrUnknownOperation

	// ErrInvalidParameter is returned for unknown, duplicate, or
	// non-numeric operation parameters.
	ErrInvalidParameter = query.ErrInvalidParameter

	// ErrMissingProperty is returned when a named axis, scalar, vector, or
	// matrix does not exist.
	ErrMissingProperty = errors.New("no such property")

	// ErrMissingEntry is returned when an entry selection names an entry
	// the axis does not contain.
	ErrMissingEntry = errors.New("no such axis entry")

	// ErrInvalidLiteral is returned when a comparison literal cannot be
	// converted to the property's element type.
	ErrInvalidLiteral = errors.New("invalid comparison literal")

	// ErrInvalidPattern is returned when a match operator is applied to a
	// non-string property or its pattern does not compile.
	ErrInvalidPattern = errors.New("invalid match pattern")

	// ErrNonBooleanFilter is returned when a filter mask resolves to a
	// non-boolean vector.
	ErrNonBooleanFilter = errors.New("filter is not boolean")

	// ErrNonNumericInput is returned when an operation is applied to
	// non-numeric data.
	ErrNonNumericInput = errors.New("operation input is not numeric")

	// ErrChainedLookupMiss is returned when a chained lookup step is not
	// string-typed or a looked-up value is not an entry of the next axis.
	ErrChainedLookupMiss = errors.New("chained lookup miss")

	// ErrSquareRelayout is returned when an explicit relayout is requested
	// for a matrix whose row and column axes are the same axis.
	ErrSquareRelayout = errors.New("cannot relayout a square matrix")

	// ErrStoreContract is returned when a storage backend hands back data
	// that violates its contract, such as a vector whose length does not
	// match its axis.
	ErrStoreContract = errors.New("store contract violation")
)

// ParseError is re-exported from the query parser; it wraps one of the
// parse-time sentinels with the query text and offending token.
type ParseError = query.ParseError

// EvalError describes an evaluation failure. It names the query fragment
// being evaluated and the entity involved, and wraps one of the sentinel
// errors above.
type EvalError struct {
	Fragment string
	Entity   string
	Message  string
	Err      error
}

func (e *EvalError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Entity != "" {
		return fmt.Sprintf("%s (entity %q) in %q", msg, e.Entity, e.Fragment)
	}
	return fmt.Sprintf("%s in %q", msg, e.Fragment)
}

func (e *EvalError) Unwrap() error { return e.Err }

func evalErr(sentinel error, fragment, entity, format string, args ...any) *EvalError {
	return &EvalError{
		Fragment: fragment,
		Entity:   entity,
		Message:  fmt.Sprintf(format, args...),
		Err:      sentinel,
	}
}
