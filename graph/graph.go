// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package graph implements the binding graph: the bindings of one graph
// declaration keyed by type key, their assembly from classified
// descriptors, on-demand bindings and resolution into a deterministic
// generation order.
//
// A Graph is confined to a single resolution and is not safe for concurrent
// use. Independent graphs can be resolved concurrently, each with its own
// Graph and stacks.
package graph

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/stack"
	"github.com/terramate-io/bindgraph/typekey"
)

// Errors returned when assembling or resolving a graph.
const (
	ErrMissingBinding    errors.Kind = "missing binding"
	ErrDuplicateBinding  errors.Kind = "duplicate binding"
	ErrAmbiguousRank     errors.Kind = "ambiguous rank"
	ErrHardCycle         errors.Kind = "dependency cycle"
	ErrSelfDependency    errors.Kind = "binding depends on itself"
	ErrEmptyMultibinding errors.Kind = "empty multibinding"
	ErrDuplicateMapKey   errors.Kind = "duplicate map key"
	ErrInvalidAlias      errors.Kind = "invalid alias"
)

type (
	// Graph is a mapping from type key to binding.
	Graph struct {
		name  string
		scope string

		bindings map[typekey.Key]binding.Binding
		order    []typekey.Key

		// computed memoizes GetOrCompute, unsatisfiable keys included.
		computed    map[typekey.Key]computed
		injectables map[typekey.Key]*binding.ConstructorInjected

		accessors []Accessor
	}

	// ComputeFunc computes the binding of a key that has no explicit
	// binding. It returns a nil binding if the key can't be satisfied.
	ComputeFunc func(req typekey.Contextual, s *stack.Stack) (binding.Binding, error)

	computed struct {
		binding binding.Binding
	}
)

// New creates an empty graph.
func New(name string) *Graph {
	return &Graph{
		name:        name,
		bindings:    map[typekey.Key]binding.Binding{},
		computed:    map[typekey.Key]computed{},
		injectables: map[typekey.Key]*binding.ConstructorInjected{},
	}
}

// Name of the graph.
func (g *Graph) Name() string { return g.name }

// Scope of the graph, empty if the graph takes no contributions.
func (g *Graph) Scope() string { return g.scope }

// Accessors returns the root requests of the graph.
func (g *Graph) Accessors() []Accessor { return g.accessors }

// AddAccessor adds a root request to the graph.
func (g *Graph) AddAccessor(a Accessor) {
	g.accessors = append(g.accessors, a)
}

// Put inserts a binding keyed by its own key.
// It fails if the key is already bound or if the binding depends on itself.
func (g *Graph) Put(b binding.Binding) error {
	key := b.Key()

	log.Trace().
		Str("action", "Graph.Put()").
		Str("graph", g.name).
		Stringer("key", key).
		Stringer("kind", b.Kind()).
		Msg("Put binding.")

	if err := validate(b); err != nil {
		return err
	}

	if prev, ok := g.bindings[key]; ok {
		return duplicateErr(key, prev, b)
	}
	g.put(b)
	return nil
}

// Replace inserts the binding, replacing any binding of the same key.
// It returns the replaced binding, if any.
func (g *Graph) Replace(b binding.Binding) (binding.Binding, error) {
	if err := validate(b); err != nil {
		return nil, err
	}
	prev := g.bindings[b.Key()]
	if prev != nil {
		log.Trace().
			Str("action", "Graph.Replace()").
			Str("graph", g.name).
			Stringer("key", b.Key()).
			Str("previous", prev.Name()).
			Str("binding", b.Name()).
			Msg("Replace binding.")
	}
	g.put(b)
	return prev, nil
}

// Remove removes the binding of key, if any.
func (g *Graph) Remove(key typekey.Key) {
	if _, ok := g.bindings[key]; !ok {
		return
	}
	delete(g.bindings, key)
	for i, k := range g.order {
		if k == key {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
}

// Get returns the binding of key.
func (g *Graph) Get(key typekey.Key) (binding.Binding, bool) {
	b, ok := g.bindings[key]
	return b, ok
}

// Keys returns the bound keys in the order they were inserted.
func (g *Graph) Keys() []typekey.Key {
	return append([]typekey.Key(nil), g.order...)
}

// Len returns the number of bindings.
func (g *Graph) Len() int { return len(g.bindings) }

// AddInjectable registers a constructor-injectable class. Injectables are
// not bindings until some request needs them, see GetOrCompute.
func (g *Graph) AddInjectable(b *binding.ConstructorInjected) {
	g.injectables[b.TypeKey] = b
}

// GetOrCompute returns the binding of the requested key. If the key is not
// bound, compute is called to build the binding on demand. compute must
// depend on the key only: a computed binding, or the absence of one, is
// memoized and a computed binding is added to the graph. Errors are not
// memoized.
// It returns a nil binding if the key can't be satisfied.
func (g *Graph) GetOrCompute(req typekey.Contextual, s *stack.Stack, compute ComputeFunc) (binding.Binding, error) {
	if b, ok := g.bindings[req.Key]; ok {
		return b, nil
	}
	if c, ok := g.computed[req.Key]; ok {
		return c.binding, nil
	}

	logger := log.With().
		Str("action", "Graph.GetOrCompute()").
		Str("graph", g.name).
		Stringer("key", req.Key).
		Logger()

	b, err := compute(req, s)
	if err == nil && b != nil {
		err = validate(b)
	}
	if err != nil {
		return nil, err
	}
	g.computed[req.Key] = computed{binding: b}

	if b == nil {
		logger.Trace().Msg("No binding computed.")
		return nil, nil
	}

	logger.Trace().
		Stringer("kind", b.Kind()).
		Msg("Binding computed on demand.")

	g.put(b)
	return b, nil
}

// DependenciesOf returns the declared dependencies of the binding.
// Multibinding contributors are returned as dependencies of the
// multibinding and their own dependencies are not flattened.
func (g *Graph) DependenciesOf(b binding.Binding) []typekey.Contextual {
	return b.Dependencies()
}

// ComputeInjectable is the default ComputeFunc: it binds registered
// injectable classes and returns no binding for anything else.
func (g *Graph) ComputeInjectable(req typekey.Contextual, _ *stack.Stack) (binding.Binding, error) {
	if inj, ok := g.injectables[req.Key]; ok {
		return inj, nil
	}
	return nil, nil
}

func (g *Graph) put(b binding.Binding) {
	if _, ok := g.bindings[b.Key()]; !ok {
		g.order = append(g.order, b.Key())
	}
	g.bindings[b.Key()] = b
}

func validate(b binding.Binding) error {
	if alias, ok := b.(*binding.Alias); ok && alias.Target == alias.TypeKey {
		return errors.E(ErrInvalidAlias, b.Range(),
			"%s is bound to itself", alias.TypeKey.Render(true, true))
	}
	if dep, ok := binding.SelfDependency(b); ok {
		return errors.E(ErrSelfDependency, b.Range(),
			"%s (%s) requests %s", b.Key().Render(true, true), b.Name(), dep.Render(true))
	}
	return nil
}

func duplicateErr(key typekey.Key, bindings ...binding.Binding) error {
	return errors.E(ErrDuplicateBinding, bindings[len(bindings)-1].Range(),
		"%s is bound multiple times:\n%s", key.Render(true, true), renderBindings(bindings))
}

func renderBindings(bindings []binding.Binding) string {
	lines := make([]string, 0, len(bindings))
	for _, b := range bindings {
		lines = append(lines, "    "+renderBinding(b))
	}
	return strings.Join(lines, "\n")
}

func renderBinding(b binding.Binding) string {
	s := fmt.Sprintf("%s %s", b.Kind(), b.Name())
	if r := b.Range(); !r.Empty() {
		s += " at " + r.String()
	}
	return s
}

func isCollection(t typekey.Type) bool {
	if t.IsNullable() {
		return false
	}
	name := t.SimpleName()
	return (name == "Set" || name == "Map") && strings.HasSuffix(string(t), ">")
}

// Accessor is a root request of a graph, e.g. a property of the graph
// interface.
type Accessor struct {
	Name    string
	Request typekey.Contextual
	Source  hcl.Range
}
