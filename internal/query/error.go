package query

import (
	"errors"
	"fmt"
)

// Sentinel errors for query parsing. Callers match them with errors.Is.
var (
	// ErrEmptyQuery is returned when a query is empty after comment and
	// whitespace stripping.
	ErrEmptyQuery = errors.New("empty query")

	// ErrSyntax is returned for any grammar violation.
	ErrSyntax = errors.New("invalid query syntax")

	// ErrUnknownOperation is returned for an unregistered element-wise or
	// reduction operation name.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrInvalidParameter is returned for an unknown, duplicate, or
	// unparseable operation parameter.
	ErrInvalidParameter = errors.New("invalid operation parameter")
)

// ParseError describes a query that failed to parse. It carries the
// offending token and a human-readable expectation so a misconfigured query
// is diagnosable from the error message alone.
type ParseError struct {
	Query    string // normalized query text
	Token    string // offending token, empty at end of input
	Expected string // what the parser expected instead
	Err      error  // sentinel category
}

func (e *ParseError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("%v: %s at end of %q", e.Err, e.Expected, e.Query)
	}
	return fmt.Sprintf("%v: %s at %q in %q", e.Err, e.Expected, e.Token, e.Query)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func syntaxError(queryText, token, expected string) *ParseError {
	return &ParseError{Query: queryText, Token: token, Expected: expected, Err: ErrSyntax}
}
