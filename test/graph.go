// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package test

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/madlambda/spells/assert"
	"github.com/terramate-io/bindgraph/descriptor"
	"github.com/terramate-io/bindgraph/graph"
	"github.com/terramate-io/bindgraph/typekey"
)

// ParseDescriptor parses the HCL descriptor content, failing the test on
// errors.
func ParseDescriptor(t testing.TB, content string) *descriptor.File {
	t.Helper()
	file, err := descriptor.Parse([]byte(content), "test.hcl")
	assert.NoError(t, err, "parsing descriptor")
	return file
}

// ResolveGraph assembles and resolves the graph named name of file, failing
// the test on errors.
func ResolveGraph(t testing.TB, file *descriptor.File, name string) *graph.Resolved {
	t.Helper()
	for _, decl := range file.Graphs {
		if decl.Name != name {
			continue
		}
		g, err := graph.Assemble(decl, file.Descriptors)
		assert.NoError(t, err, "assembling graph %s", name)

		res, err := g.Resolve()
		assert.NoError(t, err, "resolving graph %s", name)
		return res
	}
	t.Fatalf("graph %s is not declared", name)
	return nil
}

// Keys renders the keys with typekey.Key.String.
func Keys(keys []typekey.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

// AssertKeys asserts the rendered keys are equal to want, in order.
func AssertKeys(t testing.TB, got []typekey.Key, want []string) {
	t.Helper()
	if diff := cmp.Diff(want, Keys(got)); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
}

// AssertEqualSets checks if two sets contains the same elements
// independent of order (handles slices as sets).
func AssertEqualSets[T comparable](t testing.TB, got, want []T) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got: %+v; want: %+v", got, want)
	}

	got = append([]T(nil), got...)
	for _, w := range want {
		for i, g := range got {
			if g == w {
				got = append(got[:i], got[i+1:]...)
				break
			}
		}
	}

	if len(got) > 0 {
		t.Fatalf("unable to find %v from got inside wanted set %v", got, want)
	}
}
