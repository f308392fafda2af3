// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package binding

import (
	"fmt"

	"github.com/terramate-io/bindgraph/typekey"
)

type (
	// Descriptor is a declaration classified by the front-end.
	// It's the input of graph assembly.
	Descriptor struct {
		Binding Binding

		// Contribution is set for bindings contributed to a scope rather
		// than declared explicitly by the graph.
		Contribution *Contribution

		// Element is set for bindings contributed into a multibinding.
		Element *Element
	}

	// Contribution holds the aggregation metadata of a contributed binding.
	Contribution struct {
		// Scope is the scope the binding is contributed to.
		Scope string

		// Origin identifies the contributing declaration. Replaces and
		// Excludes refer to origins.
		Origin string

		// Rank orders competing contributions of the same key. It's only
		// meaningful if HasRank is true.
		Rank    int
		HasRank bool

		// Replaces lists the origins whose contributions this one
		// replaces.
		Replaces []string

		// Excludes lists the origins whose contributions are removed from
		// every graph that includes this one.
		Excludes []string
	}

	// Element describes how a binding contributes to a multibinding.
	Element struct {
		// Multibinding is the key of the collection, e.g. "Set<Plugin>".
		Multibinding typekey.Key
		Collection   Collection

		// MapKey is the rendered map key. Required for map collections.
		MapKey string
	}
)

// ID returns an identifier of the descriptor used in element keys and
// diagnostics.
func (d Descriptor) ID() string {
	if d.Contribution != nil && d.Contribution.Origin != "" {
		return d.Contribution.Origin
	}
	return d.Binding.Name()
}

// ElementKey returns the key a multibinding element is bound under. Each
// element gets a unique qualifier so it never collides with a plain binding
// of the same type.
func (d Descriptor) ElementKey() typekey.Key {
	id := d.ID()
	if d.Element != nil && d.Element.Collection == Map {
		id = fmt.Sprintf("%s[%s]", id, d.Element.MapKey)
	}
	return d.Binding.Key().WithQualifier("element:" + d.Element.Multibinding.String() + "/" + id)
}

// String renders the descriptor for diagnostics.
func (d Descriptor) String() string {
	s := fmt.Sprintf("%s %s (%s)", d.Binding.Kind(), d.Binding.Key(), d.Binding.Name())
	if c := d.Contribution; c != nil {
		s += " contributed by " + c.Origin
		if c.HasRank {
			s += fmt.Sprintf(" with rank %d", c.Rank)
		}
	}
	if d.Binding.Range().Filename != "" {
		s += " at " + d.Binding.Range().String()
	}
	return s
}
