// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"strings"

	"github.com/terramate-io/bindgraph/typekey"
)

// Suggestion is a bound key similar to a missing one.
type Suggestion struct {
	Key    typekey.Key
	Reason string
}

// Reasons of suggestions.
const (
	NullableEquivalent = "nullable equivalent"
	OtherQualifier     = "different qualifier"
	OtherPackage       = "same name in a different package"
)

// String renders the suggestion, e.g. "Int (nullable equivalent)".
func (s Suggestion) String() string {
	return s.Key.Render(false, true) + " (" + s.Reason + ")"
}

// Similar returns the bound or injectable keys that look like key, sorted.
// Multibinding element keys are never suggested.
func (g *Graph) Similar(key typekey.Key) []Suggestion {
	candidates := make([]typekey.Key, 0, len(g.bindings)+len(g.injectables))
	for k := range g.bindings {
		candidates = append(candidates, k)
	}
	for k := range g.injectables {
		if _, ok := g.bindings[k]; !ok {
			candidates = append(candidates, k)
		}
	}
	typekey.Sort(candidates)

	want := key.Type.NonNull()
	var out []Suggestion
	for _, k := range candidates {
		if k == key || strings.HasPrefix(k.Qualifier, "element:") {
			continue
		}
		got := k.Type.NonNull()
		switch {
		case got == want && k.Qualifier == key.Qualifier:
			out = append(out, Suggestion{Key: k, Reason: NullableEquivalent})
		case got == want:
			out = append(out, Suggestion{Key: k, Reason: OtherQualifier})
		case got.SimpleName() == want.SimpleName() && !hasTypeArgs(got) && !hasTypeArgs(want):
			out = append(out, Suggestion{Key: k, Reason: OtherPackage})
		}
	}
	return out
}

func hasTypeArgs(t typekey.Type) bool {
	return strings.ContainsRune(string(t), '<')
}
