// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package errors implements the error type used by bindgraph.
// Errors carry a Kind, the source range of the offending declaration and,
// when raised during graph resolution, the rendered binding stack.
package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// Error is the default bindgraph error type.
type Error struct {
	// Kind is the kind of error.
	Kind Kind

	// FileRange holds the error source.
	FileRange hcl.Range

	// Stack is the rendered binding stack which originated the error.
	Stack Stack

	// Description of the error.
	Description string

	// Err represents the underlying error.
	Err error
}

// Kind defines the kind of an error.
type Kind string

// Stack is a rendered binding stack, one frame per line.
type Stack string

// Separator is the separator used to join error parts.
const Separator = ": "

// E builds an error value from its arguments.
// There must be at least one argument or E panics.
// The type of each argument determines its meaning. If more than one argument
// of a given type is presented, only the last one is recorded.
//
// The types are:
//
//	errors.Kind
//		The kind of error (eg.: graph.ErrMissingBinding).
//	hcl.Range
//		The file range where the error originated.
//	errors.Stack
//		The binding stack rendering that leads to the error.
//	string
//		Treated as an error description and assigned to the Description field
//		if not empty. If there are arguments of unknown type they are
//		used as format arguments of the description.
//	error
//		The underlying error that triggered this one. More than one error
//		builds an errors.List.
//	hcl.Diagnostics
//		The underlying hcl error(s) that triggered this one.
//		If this error's FileRange is not set, the first error diagnostic
//		subject range is pulled.
//		If this error's Description is not set, the first error diagnostic
//		detail field is pulled.
//	*hcl.Diagnostic / hcl.Diagnostic
//		Same as hcl.Diagnostics with a single item. Nil pointers are ignored.
//
// If the error is printed, only those items that have been
// set to non-zero values will appear in the result. For the `hcl.Range` type,
// the `range.Empty()` method is used.
//
// Minimization:
//
// In order to avoid duplicated messages, the fields of the underlying error
// which have the same value in this error are erased.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("called with no args")
	}

	e := &Error{}
	var (
		format  *string
		fmtargs []interface{}
		errs    = L()
	)

	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case hcl.Range:
			e.FileRange = arg
		case Stack:
			e.Stack = arg
		case hcl.Diagnostics:
			for _, diag := range arg {
				errs.appendDiag(diag)
			}
		case *hcl.Diagnostic:
			if arg != nil {
				errs.appendDiag(arg)
			}
		case hcl.Diagnostic:
			errs.appendDiag(&arg)
		case *List:
			if arg != nil {
				for _, err := range arg.errs {
					errs.Append(err)
				}
			}
		case string:
			if format != nil {
				fmtargs = append(fmtargs, arg)
				continue
			}
			s := arg
			format = &s
		case error:
			errs.Append(arg)
		default:
			fmtargs = append(fmtargs, arg)
		}
	}

	if format != nil {
		if len(fmtargs) > 0 {
			e.Description = fmt.Sprintf(*format, fmtargs...)
		} else {
			e.Description = *format
		}
	} else if len(fmtargs) > 0 {
		panic(fmt.Errorf("unexpected format arguments with no format: %v", fmtargs))
	}

	switch len(errs.errs) {
	case 0:
	case 1:
		e.Err = errs.errs[0]
	default:
		e.Err = errs
	}

	if e.Kind == "" && e.Description == "" && e.Stack == "" && e.FileRange.Empty() {
		if e.Err == nil {
			panic(fmt.Errorf("empty error"))
		}
		if diagErr, ok := e.Err.(*Error); ok {
			return diagErr
		}
		panic(fmt.Errorf("empty error wrapping %v", e.Err))
	}

	var prev *Error
	switch underlying := e.Err.(type) {
	case *Error:
		prev = underlying
	case *List:
		if first := underlying.firstError(); first != nil && e.FileRange.Empty() {
			e.FileRange = first.FileRange
			first.FileRange = hcl.Range{}
		}
		return e
	default:
		return e
	}

	if e.FileRange.Empty() {
		e.FileRange = prev.FileRange
	}
	if prev.FileRange == e.FileRange {
		prev.FileRange = hcl.Range{}
	}
	if e.Kind == "" {
		e.Kind = prev.Kind
		prev.Kind = ""
	} else if prev.Kind == e.Kind {
		prev.Kind = ""
	}
	if prev.Stack == e.Stack {
		prev.Stack = ""
	}
	if prev.Description == e.Description {
		prev.Description = ""
	}
	if prev.isEmpty() {
		e.Err = prev.Err
	}
	return e
}

// isEmpty tells if all fields of this error are empty.
// Note that e.Err is the underlying error hence not checked.
func (e *Error) isEmpty() bool {
	return e.FileRange.Empty() && e.Kind == "" && e.Description == "" && e.Stack == ""
}

// Error returns the error message.
func (e *Error) Error() string {
	var errParts []string
	if !e.FileRange.Empty() {
		errParts = append(errParts, e.FileRange.String())
	}
	if e.Kind != "" {
		errParts = append(errParts, string(e.Kind))
	}
	if e.Description != "" {
		errParts = append(errParts, e.Description)
	}
	if e.Err != nil {
		errParts = append(errParts, e.Err.Error())
	}
	msg := strings.Join(errParts, Separator)
	if e.Stack != "" {
		msg += "\n" + string(e.Stack)
	}
	return msg
}

// Unwrap returns the wrapped error, if there is any.
// Returns nil if there is no wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is tells if e matches the target error.
// The target error must be of type *Error and it will try to match the
// following fields:
// - Kind
// - Description
// - FileRange
// - Stack
// Any fields absent (empty) on the target error are ignored even if they
// exist on e (partial match).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != "" && e.Kind != t.Kind {
		return false
	}
	if t.Description != "" && e.Description != t.Description {
		return false
	}
	if !t.FileRange.Empty() && e.FileRange != t.FileRange {
		return false
	}
	if t.Stack != "" && e.Stack != t.Stack {
		return false
	}
	return true
}

// IsKind tells if err is of kind k.
// It returns false if err is nil or not an *errors.Error.
// It also recursively checks if any underlying error is of kind k.
func IsKind(err error, k Kind) bool {
	if err == nil {
		return false
	}
	var list *List
	if errors.As(err, &list) {
		for _, e := range list.errs {
			if IsKind(e, k) {
				return true
			}
		}
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	if e.Kind == k {
		return true
	}
	return IsKind(e.Err, k)
}

// Is is just an alias to Go stdlib errors.Is
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As is just an alias to Go stdlib errors.As
func As(err error, target any) bool {
	return errors.As(err, target)
}

func (l *List) appendDiag(diag *hcl.Diagnostic) {
	if diag.Severity != hcl.DiagError {
		return
	}
	e := &Error{Description: diag.Detail}
	if e.Description == "" {
		e.Description = diag.Summary
	}
	if diag.Subject != nil {
		e.FileRange = *diag.Subject
	}
	l.Append(e)
}
