// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package errors

import (
	"fmt"
	"slices"
)

// ErrorDetails is a detail line of a DetailedError, printed from the given
// verbosity on.
type ErrorDetails struct {
	Msg       string
	Verbosity int
}

// DetailedError is an error meant for the command line. Besides its
// message, it carries hints on how to fix the descriptors, each printed
// from its own verbosity, and optionally the error that caused it.
type DetailedError struct {
	Msg     string
	Code    Kind
	Cause   error
	Details []ErrorDetails
}

// D creates a DetailedError with a formatted message.
func D(format string, a ...any) *DetailedError {
	return &DetailedError{Msg: fmt.Sprintf(format, a...)}
}

// Error returns the message of the error, without details or cause.
func (e DetailedError) Error() string {
	return e.Msg
}

// WithCause sets the error that caused e.
// The caller is modified but also returned for convenience.
func (e *DetailedError) WithCause(cause error) *DetailedError {
	e.Cause = cause
	return e
}

// WithCode tags the error with a kind, so it can be matched with HasCode.
// The caller is modified but also returned for convenience.
func (e *DetailedError) WithCode(code Kind) *DetailedError {
	e.Code = code
	return e
}

// WithDetailf adds a formatted detail printed from the given verbosity on.
// The caller is modified but also returned for convenience.
func (e *DetailedError) WithDetailf(verbosity int, format string, a ...any) *DetailedError {
	e.Details = append(e.Details, ErrorDetails{
		Msg:       fmt.Sprintf(format, a...),
		Verbosity: verbosity,
	})
	return e
}

// DetailsUpTo returns the messages of the details printed at the given
// verbosity, in the order they were added.
func DetailsUpTo(details []ErrorDetails, verbosity int) []string {
	var msgs []string
	for _, d := range details {
		if d.Verbosity <= verbosity {
			msgs = append(msgs, d.Msg)
		}
	}
	return msgs
}

// Is tells if e partially matches target, which must be a *DetailedError.
// Only the message, code and details set on target are compared.
func (e *DetailedError) Is(target error) bool {
	t, ok := target.(*DetailedError)
	if !ok {
		return false
	}
	switch {
	case t.Msg != "" && t.Msg != e.Msg:
		return false
	case t.Code != "" && t.Code != e.Code:
		return false
	case t.Details != nil && !slices.Equal(t.Details, e.Details):
		return false
	}
	return true
}

// Unwrap returns the cause of the error, if any.
func (e *DetailedError) Unwrap() error {
	return e.Cause
}

// Inspect calls f for e and then for each error of its chain of causes,
// with i being the depth in the chain. The chain ends at the first cause
// that is not a *DetailedError, which is passed to f with no cause and no
// details.
func (e DetailedError) Inspect(f func(i int, msg string, cause error, details []ErrorDetails)) {
	cur := &e
	for i := 0; ; i++ {
		f(i, cur.Msg, cur.Cause, cur.Details)
		switch cause := cur.Cause.(type) {
		case nil:
			return
		case *DetailedError:
			cur = cause
		default:
			f(i+1, cause.Error(), nil, nil)
			return
		}
	}
}

// HasCode tells if the error tree rooted at err contains a DetailedError
// with the given code.
func HasCode(err error, code Kind) bool {
	return Is(err, &DetailedError{Code: code})
}
