// Package plserr defines the error taxonomy of the pls compiler.
package plserr

import (
	"fmt"
)

// Kind classifies a compile error.
type Kind string

const (
	LexError        Kind = "LexError"
	ParseError      Kind = "ParseError"
	TypeError       Kind = "TypeError"
	NameError       Kind = "NameError"
	ArityError      Kind = "ArityError"
	DomainError     Kind = "DomainError"
	LayerConflict   Kind = "LayerConflict"
	DuplicateSymbol Kind = "DuplicateSymbol"
	CacheError      Kind = "CacheError"
	GeomError       Kind = "GeomError"
)

// Error is a compile error with its taxonomy kind. Every kind except
// CacheError is fatal to the current compile.
type Error struct {
	Kind  Kind
	Msg   string
	Names []string // offending identifiers for NameError
	wrap  error
}

func (e *Error) Error() string {
	return string(e.Kind) + ": " + e.Msg
}

func (e *Error) Unwrap() error { return e.wrap }

// Is matches errors by kind so callers can test
// errors.Is(err, &plserr.Error{Kind: plserr.NameError}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...) + ": " + err.Error(), wrap: err}
}

// Unresolved creates a NameError carrying the offending names,
// deduplicated in first-seen order.
func Unresolved(names []string) *Error {
	seen := map[string]bool{}
	var unique []string
	for _, n := range names {
		if !seen[n] {
			seen[n] = true
			unique = append(unique, n)
		}
	}
	msg := "unresolved name(s): "
	for i, n := range unique {
		if i > 0 {
			msg += ", "
		}
		msg += `"` + n + `"`
	}
	return &Error{Kind: NameError, Msg: msg, Names: unique}
}

// IsKind reports whether err is a *Error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
