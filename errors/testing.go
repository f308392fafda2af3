// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package errors

import (
	"slices"
	"testing"
)

// AssertKind asserts that got is of same error kind as want.
func AssertKind(t *testing.T, got, want error) {
	t.Helper()
	if (got == nil) != (want == nil) {
		t.Fatalf("got error[%v] differs from want[%v]", got, want)
	}
	if want == nil {
		return
	}

	var e2 *Error
	if !As(want, &e2) {
		t.Fatal("want is not an *errors.Error")
	}

	AssertIsKind(t, got, e2.Kind)
}

// AssertIsKind asserts err is of kind k.
func AssertIsKind(t *testing.T, err error, k Kind) {
	t.Helper()
	if !IsKind(err, k) {
		t.Fatalf("error[%v] is not of kind %q", err, k)
	}
}

// Assert err is (contains, wraps, etc) target.
func Assert(t *testing.T, err, target error) {
	t.Helper()
	if !Is(err, target) {
		t.Fatalf("error[%v] is not target[%v]", err, target)
	}
}

// AssertKinds asserts err is a List whose errors have exactly the given
// kinds, in order. A single error is handled as a list of one.
func AssertKinds(t *testing.T, err error, kinds ...Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("got no error but want kinds %v", kinds)
	}
	var list *List
	if !As(err, &list) {
		list = L(err)
	}
	if got := list.Kinds(); !slices.Equal(got, kinds) {
		t.Fatalf("error[%v] has kinds %q but want %q", err, got, kinds)
	}
}
