// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package binding defines the nodes of a binding graph.
//
// A Binding tells how a key is satisfied. The set of bindings is closed:
// Provided, ConstructorInjected, Alias, Multibinding, BoundInstance,
// GraphDependency and Absent are the only implementations, so a type switch
// over Binding with those cases (see Kind) is exhaustive. Bindings are
// immutable after construction; use WithKey to derive a re-keyed copy.
package binding

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/terramate-io/bindgraph/typekey"
)

// Kind enumerates the binding variants.
type Kind int

// Binding variants.
const (
	KindProvided Kind = iota + 1
	KindConstructorInjected
	KindAlias
	KindMultibinding
	KindBoundInstance
	KindGraphDependency
	KindAbsent
)

// String returns the name of the variant.
func (k Kind) String() string {
	switch k {
	case KindProvided:
		return "provided"
	case KindConstructorInjected:
		return "constructor-injected"
	case KindAlias:
		return "alias"
	case KindMultibinding:
		return "multibinding"
	case KindBoundInstance:
		return "bound-instance"
	case KindGraphDependency:
		return "graph-dependency"
	case KindAbsent:
		return "absent"
	}
	return fmt.Sprintf("unknown binding kind %d", int(k))
}

// Binding is a node of the binding graph.
type Binding interface {
	// Key returns the key satisfied by the binding.
	Key() typekey.Key

	// Dependencies returns the ordered requests the binding needs.
	Dependencies() []typekey.Contextual

	// Kind returns the variant of the binding.
	Kind() Kind

	// Name returns a short human readable name of the binding's origin,
	// used in binding stack renderings.
	Name() string

	// Range returns the source range of the declaration, if known.
	Range() hcl.Range

	withKey(k typekey.Key) Binding
}

type (
	// Provided is satisfied by calling a provider function.
	Provided struct {
		TypeKey typekey.Key

		// Function is the provider function, e.g. "AppModule.provideFoo".
		Function string

		// Params are the provider parameters in declaration order.
		Params []Param

		Source hcl.Range
	}

	// ConstructorInjected is satisfied by calling the injectable constructor
	// of Class and then injecting Members.
	ConstructorInjected struct {
		TypeKey typekey.Key
		Class   string
		Params  []Param
		Members []Param
		Source  hcl.Range
	}

	// Alias delegates the key to Target, unchanged at runtime.
	Alias struct {
		TypeKey  typekey.Key
		Target   typekey.Key
		Function string
		Source   hcl.Range
	}

	// Multibinding aggregates contributor bindings into a set or a map.
	Multibinding struct {
		TypeKey      typekey.Key
		Collection   Collection
		Contributors []Contributor

		// AllowEmpty is true if the multibinding was declared and may
		// legitimately have no contributors.
		AllowEmpty bool

		Source hcl.Range
	}

	// BoundInstance is a value supplied when the graph is created.
	BoundInstance struct {
		TypeKey typekey.Key

		// Param is the name of the graph factory parameter.
		Param  string
		Source hcl.Range
	}

	// GraphDependency is a value exposed by another graph this graph
	// depends on.
	GraphDependency struct {
		TypeKey  typekey.Key
		Graph    string
		Accessor string
		Source   hcl.Range
	}

	// Absent declares that the key intentionally has no value.
	Absent struct {
		TypeKey typekey.Key
		Source  hcl.Range
	}

	// Param is a named request of a provider, constructor or member.
	Param struct {
		Name    string
		Request typekey.Contextual
	}

	// Contributor is one element of a multibinding.
	Contributor struct {
		// Key is the key of the contributor binding itself.
		Key typekey.Key

		// MapKey is the rendered map key, empty for set multibindings.
		MapKey string
	}

	// Collection is the container type of a multibinding.
	Collection int
)

// Multibinding containers.
const (
	Set Collection = iota + 1
	Map
)

// String returns the collection name.
func (c Collection) String() string {
	switch c {
	case Set:
		return "set"
	case Map:
		return "map"
	}
	return fmt.Sprintf("unknown collection %d", int(c))
}

// Key returns the provided key.
func (b *Provided) Key() typekey.Key { return b.TypeKey }

// Dependencies returns the provider parameters requests.
func (b *Provided) Dependencies() []typekey.Contextual { return requests(b.Params) }

// Kind returns KindProvided.
func (b *Provided) Kind() Kind { return KindProvided }

// Name returns the provider function.
func (b *Provided) Name() string { return b.Function }

// Range returns the declaration range.
func (b *Provided) Range() hcl.Range { return b.Source }

func (b *Provided) withKey(k typekey.Key) Binding {
	c := *b
	c.TypeKey = k
	return &c
}

// Key returns the constructed key.
func (b *ConstructorInjected) Key() typekey.Key { return b.TypeKey }

// Dependencies returns the constructor parameters followed by the injected
// members.
func (b *ConstructorInjected) Dependencies() []typekey.Contextual {
	return append(requests(b.Params), requests(b.Members)...)
}

// Kind returns KindConstructorInjected.
func (b *ConstructorInjected) Kind() Kind { return KindConstructorInjected }

// Name returns the class name.
func (b *ConstructorInjected) Name() string { return b.Class }

// Range returns the declaration range.
func (b *ConstructorInjected) Range() hcl.Range { return b.Source }

func (b *ConstructorInjected) withKey(k typekey.Key) Binding {
	c := *b
	c.TypeKey = k
	return &c
}

// Key returns the aliased key.
func (b *Alias) Key() typekey.Key { return b.TypeKey }

// Dependencies returns the direct request of the target.
func (b *Alias) Dependencies() []typekey.Contextual {
	return []typekey.Contextual{typekey.Of(b.Target)}
}

// Kind returns KindAlias.
func (b *Alias) Kind() Kind { return KindAlias }

// Name returns the declaring function, or a rendering of the alias.
func (b *Alias) Name() string {
	if b.Function != "" {
		return b.Function
	}
	return "binds " + b.Target.Render(true, true)
}

// Range returns the declaration range.
func (b *Alias) Range() hcl.Range { return b.Source }

func (b *Alias) withKey(k typekey.Key) Binding {
	c := *b
	c.TypeKey = k
	return &c
}

// Key returns the collection key.
func (b *Multibinding) Key() typekey.Key { return b.TypeKey }

// Dependencies returns a direct request of each contributor key.
// Contributors own dependencies are not flattened.
func (b *Multibinding) Dependencies() []typekey.Contextual {
	deps := make([]typekey.Contextual, 0, len(b.Contributors))
	for _, c := range b.Contributors {
		deps = append(deps, typekey.Of(c.Key))
	}
	return deps
}

// Kind returns KindMultibinding.
func (b *Multibinding) Kind() Kind { return KindMultibinding }

// Name returns the rendered collection key.
func (b *Multibinding) Name() string {
	return b.TypeKey.Render(true, true)
}

// Range returns the declaration range.
func (b *Multibinding) Range() hcl.Range { return b.Source }

func (b *Multibinding) withKey(k typekey.Key) Binding {
	c := *b
	c.TypeKey = k
	c.Contributors = append([]Contributor(nil), b.Contributors...)
	return &c
}

// Key returns the instance key.
func (b *BoundInstance) Key() typekey.Key { return b.TypeKey }

// Dependencies returns nil, bound instances have no dependencies.
func (b *BoundInstance) Dependencies() []typekey.Contextual { return nil }

// Kind returns KindBoundInstance.
func (b *BoundInstance) Kind() Kind { return KindBoundInstance }

// Name returns the factory parameter name.
func (b *BoundInstance) Name() string { return b.Param }

// Range returns the declaration range.
func (b *BoundInstance) Range() hcl.Range { return b.Source }

func (b *BoundInstance) withKey(k typekey.Key) Binding {
	c := *b
	c.TypeKey = k
	return &c
}

// Key returns the exposed key.
func (b *GraphDependency) Key() typekey.Key { return b.TypeKey }

// Dependencies returns nil, the value is computed by the other graph.
func (b *GraphDependency) Dependencies() []typekey.Contextual { return nil }

// Kind returns KindGraphDependency.
func (b *GraphDependency) Kind() Kind { return KindGraphDependency }

// Name returns "Graph.accessor".
func (b *GraphDependency) Name() string {
	if b.Accessor == "" {
		return b.Graph
	}
	return b.Graph + "." + b.Accessor
}

// Range returns the declaration range.
func (b *GraphDependency) Range() hcl.Range { return b.Source }

func (b *GraphDependency) withKey(k typekey.Key) Binding {
	c := *b
	c.TypeKey = k
	return &c
}

// Key returns the absent key.
func (b *Absent) Key() typekey.Key { return b.TypeKey }

// Dependencies returns nil.
func (b *Absent) Dependencies() []typekey.Contextual { return nil }

// Kind returns KindAbsent.
func (b *Absent) Kind() Kind { return KindAbsent }

// Name returns a rendering of the absent key.
func (b *Absent) Name() string { return "absent " + b.TypeKey.Render(true, true) }

// Range returns the declaration range.
func (b *Absent) Range() hcl.Range { return b.Source }

func (b *Absent) withKey(k typekey.Key) Binding {
	c := *b
	c.TypeKey = k
	return &c
}

// WithKey returns a copy of b bound to k. The original is not modified.
func WithKey(b Binding, k typekey.Key) Binding {
	return b.withKey(k)
}

// SelfDependency returns the first dependency of b whose key is the key of b
// itself, if any. Such a binding violates the graph invariants.
func SelfDependency(b Binding) (typekey.Contextual, bool) {
	key := b.Key()
	for _, dep := range b.Dependencies() {
		if dep.Key == key {
			return dep, true
		}
	}
	return typekey.Contextual{}, false
}

// ParamName returns the name of the parameter of b that requests key, or an
// empty string.
func ParamName(b Binding, key typekey.Key) string {
	var params []Param
	switch b := b.(type) {
	case *Provided:
		params = b.Params
	case *ConstructorInjected:
		params = append(append(params, b.Params...), b.Members...)
	case *Multibinding:
		for _, c := range b.Contributors {
			if c.Key == key {
				if c.MapKey != "" {
					return c.MapKey
				}
				return c.Key.Qualifier
			}
		}
		return ""
	}
	for _, p := range params {
		if p.Request.Key == key {
			return p.Name
		}
	}
	return ""
}

// Signature renders b as a call showing only the parameter that requests
// key, e.g. "Bar(…, foo)".
func Signature(b Binding, key typekey.Key) string {
	name := b.Name()
	param := ParamName(b, key)
	switch b.(type) {
	case *Provided, *ConstructorInjected:
		var args []string
		if !isFirstParam(b, key) {
			args = append(args, "…")
		}
		if param != "" {
			args = append(args, param)
		}
		return name + "(" + strings.Join(args, ", ") + ")"
	}
	return name
}

func isFirstParam(b Binding, key typekey.Key) bool {
	deps := b.Dependencies()
	return len(deps) > 0 && deps[0].Key == key
}

func requests(params []Param) []typekey.Contextual {
	deps := make([]typekey.Contextual, 0, len(params))
	for _, p := range params {
		deps = append(deps, p.Request)
	}
	return deps
}
