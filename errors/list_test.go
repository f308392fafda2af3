// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package errors_test

import (
	stderrors "errors"
	stdfmt "fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/madlambda/spells/assert"
	"github.com/terramate-io/bindgraph/errors"
)

func TestErrorListEmpty(t *testing.T) {
	errs := errors.L(nil, nil)
	errs.Append(nil)

	assert.EqualInts(t, 0, errs.Len())
	assert.EqualInts(t, 0, len(errs.Errors()))
	assert.EqualInts(t, 0, len(errs.Kinds()))
	assert.EqualStrings(t, "", errs.Error())
	assert.EqualStrings(t, "", errs.Detailed())
	if err := errs.AsError(); err != nil {
		t.Fatalf("got error %v but want nil", err)
	}
}

func TestErrorListErrors(t *testing.T) {
	errs := errors.L(E(missingBinding, "Repo"))
	errs.Append(stdfmt.Errorf("resolving AdminGraph: %w", E(hardCycle, "Foo -> Bar -> Foo")))
	errs.Append(stderrors.New("canceled"))
	errs.Append(E(duplicateBinding, "Clock"))

	got := errs.Errors()
	assert.EqualInts(t, 3, len(got))
	assert.IsError(t, got[0], E(missingBinding))
	assert.IsError(t, got[1], E(hardCycle))
	assert.IsError(t, got[2], E(duplicateBinding))

	assert.EqualStrings(t, "missing binding: Repo (and 3 elided errors)", errs.Error())
}

func TestErrorListFlattensNestedLists(t *testing.T) {
	errs := errors.L(E("AppGraph"))
	errs.Append(errors.L(E("AdminGraph"), E("CoreGraph")))

	assert.EqualInts(t, 3, errs.Len())
	assert.EqualStrings(t, "error list:\n\t-AppGraph\n\t-AdminGraph\n\t-CoreGraph", errs.Detailed())
}

func TestErrorListKinds(t *testing.T) {
	errs := errors.L(
		E(missingBinding, "Repo"),
		E("resolving graph AppGraph", E(hardCycle, "Foo -> Bar -> Foo")),
		stderrors.New("canceled"),
	)

	want := []errors.Kind{missingBinding, hardCycle, ""}
	if diff := cmp.Diff(want, errs.Kinds()); diff != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", diff)
	}

	errors.AssertKinds(t, errs, missingBinding, hardCycle, "")
	errors.AssertKinds(t, E(duplicateBinding, "Clock"), duplicateBinding)
}
