// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/typekey"
)

type (
	// Declaration is a graph declaration: its name, the scope it collects
	// contributions from and its root requests.
	Declaration struct {
		Name  string
		Scope string

		Accessors []Accessor

		// Excludes lists the origins of contributions removed from the
		// graph.
		Excludes []string

		// BoundInstances are the values given to the graph factory.
		BoundInstances []*binding.BoundInstance

		// Dependencies are the values exposed by the graphs this graph
		// depends on.
		Dependencies []*binding.GraphDependency

		// Multibinds declares multibindings, which may then be empty.
		Multibinds []Multibinds

		Source hcl.Range
	}

	// Multibinds declares a set or map multibinding.
	Multibinds struct {
		Key        typekey.Key
		Collection binding.Collection
		AllowEmpty bool
		Source     hcl.Range
	}
)

// Assemble builds the graph of decl from the classified descriptors.
//
// Contributions to other scopes are ignored. Contributions excluded by the
// graph or by another contribution are removed, then contributions replaced
// by another are removed. Competing contributions of the same key are
// resolved by rank: the highest rank wins and a ranked contribution beats
// any unranked one. Unranked contributions fall back to declaration order.
// Multibinding elements are bound under unique element keys and aggregated
// into the multibindings they contribute to.
//
// Constructor-injected descriptors that are neither contributed nor
// multibinding elements are registered as injectables, bound on demand.
func Assemble(decl Declaration, descs []binding.Descriptor) (*Graph, error) {
	logger := log.With().
		Str("action", "graph.Assemble()").
		Str("graph", decl.Name).
		Str("scope", decl.Scope).
		Logger()

	logger.Debug().
		Int("descriptors", len(descs)).
		Msg("Assemble graph.")

	g := New(decl.Name)
	g.scope = decl.Scope
	for _, a := range decl.Accessors {
		g.AddAccessor(a)
	}

	descs = filterScope(decl, descs)
	descs = applyExcludes(decl, descs)
	descs = applyReplaces(decl, descs)

	errs := errors.L()

	var (
		plain    []binding.Descriptor
		elements []binding.Descriptor
	)
	for _, d := range descs {
		switch {
		case d.Element != nil:
			elements = append(elements, d)
		case d.Contribution == nil && d.Binding.Kind() == binding.KindConstructorInjected:
			logger.Trace().
				Stringer("key", d.Binding.Key()).
				Msg("Register injectable.")
			g.AddInjectable(d.Binding.(*binding.ConstructorInjected))
		default:
			plain = append(plain, d)
		}
	}

	for _, b := range decl.BoundInstances {
		plain = append(plain, binding.Descriptor{Binding: b})
	}
	for _, b := range decl.Dependencies {
		plain = append(plain, binding.Descriptor{Binding: b})
	}

	for _, group := range groupByKey(plain) {
		winner, err := selectBinding(decl, group)
		if err != nil {
			errs.Append(err)
			continue
		}
		errs.Append(g.Put(winner.Binding))
	}

	errs.Append(assembleMultibindings(g, decl, elements))

	if err := errs.AsError(); err != nil {
		return nil, errors.E(err, "assembling graph %s", decl.Name)
	}

	logger.Debug().
		Int("bindings", g.Len()).
		Int("injectables", len(g.injectables)).
		Msg("Graph assembled.")

	return g, nil
}

func filterScope(decl Declaration, descs []binding.Descriptor) []binding.Descriptor {
	var out []binding.Descriptor
	for _, d := range descs {
		if c := d.Contribution; c != nil && c.Scope != decl.Scope {
			log.Trace().
				Str("action", "graph.filterScope()").
				Str("graph", decl.Name).
				Str("origin", c.Origin).
				Str("scope", c.Scope).
				Msg("Ignore contribution to other scope.")
			continue
		}
		out = append(out, d)
	}
	return out
}

func applyExcludes(decl Declaration, descs []binding.Descriptor) []binding.Descriptor {
	byGraph := map[string]bool{}
	for _, origin := range decl.Excludes {
		byGraph[origin] = true
	}
	excluded := map[string]bool{}
	for origin := range byGraph {
		excluded[origin] = true
	}
	// excludes of contributions removed by the graph don't apply.
	for _, d := range descs {
		if c := d.Contribution; c != nil && !byGraph[c.Origin] {
			for _, origin := range c.Excludes {
				excluded[origin] = true
			}
		}
	}
	return removeOrigins(decl, descs, excluded, "Exclude contribution.")
}

func applyReplaces(decl Declaration, descs []binding.Descriptor) []binding.Descriptor {
	replaced := map[string]bool{}
	for _, d := range descs {
		if c := d.Contribution; c != nil {
			for _, origin := range c.Replaces {
				replaced[origin] = true
			}
		}
	}
	return removeOrigins(decl, descs, replaced, "Replace contribution.")
}

func removeOrigins(decl Declaration, descs []binding.Descriptor, origins map[string]bool, msg string) []binding.Descriptor {
	logger := log.With().
		Str("action", "graph.removeOrigins()").
		Str("graph", decl.Name).
		Logger()

	matched := map[string]bool{}
	var out []binding.Descriptor
	for _, d := range descs {
		if c := d.Contribution; c != nil && origins[c.Origin] {
			logger.Trace().
				Str("origin", c.Origin).
				Stringer("key", d.Binding.Key()).
				Msg(msg)
			matched[c.Origin] = true
			continue
		}
		out = append(out, d)
	}

	for origin := range origins {
		if !matched[origin] {
			logger.Warn().
				Str("origin", origin).
				Msg("No contribution matches origin.")
		}
	}
	return out
}

// groupByKey groups descriptors by binding key. Groups are in the order of
// their first declaration.
func groupByKey(descs []binding.Descriptor) [][]binding.Descriptor {
	index := map[typekey.Key]int{}
	var groups [][]binding.Descriptor
	for _, d := range descs {
		key := d.Binding.Key()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], d)
	}
	return groups
}

// selectBinding selects the binding of a key among its competing
// descriptors.
func selectBinding(decl Declaration, group []binding.Descriptor) (binding.Descriptor, error) {
	if len(group) == 1 {
		return group[0], nil
	}

	key := group[0].Binding.Key()
	logger := log.With().
		Str("action", "graph.selectBinding()").
		Str("graph", decl.Name).
		Stringer("key", key).
		Logger()

	var explicit []binding.Binding
	for _, d := range group {
		if d.Contribution == nil {
			explicit = append(explicit, d.Binding)
		}
	}
	if len(explicit) > 0 {
		all := make([]binding.Binding, len(group))
		for i, d := range group {
			all[i] = d.Binding
		}
		return binding.Descriptor{}, duplicateErr(key, all...)
	}

	var (
		top    []binding.Descriptor
		ranked bool
	)
	for _, d := range group {
		c := d.Contribution
		if !c.HasRank {
			continue
		}
		switch {
		case !ranked || c.Rank > top[0].Contribution.Rank:
			top = []binding.Descriptor{d}
		case c.Rank == top[0].Contribution.Rank:
			top = append(top, d)
		}
		ranked = true
	}

	if !ranked {
		logger.Warn().
			Str("winner", group[0].ID()).
			Int("candidates", len(group)).
			Msg("Unranked contributions compete for the same key, using the first declared.")
		return group[0], nil
	}

	if len(top) > 1 {
		lines := make([]string, len(top))
		for i, d := range top {
			lines[i] = fmt.Sprintf("    %s (rank %d): %s", d.ID(), d.Contribution.Rank, renderBinding(d.Binding))
		}
		return binding.Descriptor{}, errors.E(ErrAmbiguousRank, top[len(top)-1].Binding.Range(),
			"%s is contributed to %s with the same top rank by:\n%s",
			key.Render(true, true), decl.Scope, strings.Join(lines, "\n"))
	}

	logger.Trace().
		Str("winner", top[0].ID()).
		Int("rank", top[0].Contribution.Rank).
		Msg("Select contribution with highest rank.")
	return top[0], nil
}

// assembleMultibindings binds the elements under their element keys and
// aggregates them into multibindings.
func assembleMultibindings(g *Graph, decl Declaration, elements []binding.Descriptor) error {
	logger := log.With().
		Str("action", "graph.assembleMultibindings()").
		Str("graph", decl.Name).
		Logger()

	errs := errors.L()
	multis := map[typekey.Key]*binding.Multibinding{}
	var order []typekey.Key

	multibinding := func(key typekey.Key, coll binding.Collection, r hcl.Range) *binding.Multibinding {
		if m, ok := multis[key]; ok {
			return m
		}
		m := &binding.Multibinding{TypeKey: key, Collection: coll, Source: r}
		multis[key] = m
		order = append(order, key)
		return m
	}

	for _, mb := range decl.Multibinds {
		m := multibinding(mb.Key, mb.Collection, mb.Source)
		m.AllowEmpty = m.AllowEmpty || mb.AllowEmpty
	}

	mapKeys := map[typekey.Key]map[string]binding.Descriptor{}
	for _, d := range elements {
		el := d.Element
		m := multibinding(el.Multibinding, el.Collection, d.Binding.Range())
		if m.Collection != el.Collection {
			errs.Append(errors.E(ErrDuplicateBinding, d.Binding.Range(),
				"%s contributes to %s as a %s element but it's a %s multibinding",
				d.ID(), el.Multibinding.Render(true, true), el.Collection, m.Collection))
			continue
		}

		if el.Collection == binding.Map {
			seen := mapKeys[el.Multibinding]
			if seen == nil {
				seen = map[string]binding.Descriptor{}
				mapKeys[el.Multibinding] = seen
			}
			if prev, ok := seen[el.MapKey]; ok {
				errs.Append(errors.E(ErrDuplicateMapKey, d.Binding.Range(),
					"%s has multiple values for key %s:\n%s",
					el.Multibinding.Render(true, true), el.MapKey,
					renderBindings([]binding.Binding{prev.Binding, d.Binding})))
				continue
			}
			seen[el.MapKey] = d
		}

		key := d.ElementKey()
		if err := g.Put(binding.WithKey(d.Binding, key)); err != nil {
			errs.Append(err)
			continue
		}

		logger.Trace().
			Stringer("multibinding", el.Multibinding).
			Stringer("element", key).
			Msg("Add multibinding element.")

		m.Contributors = append(m.Contributors, binding.Contributor{
			Key:    key,
			MapKey: el.MapKey,
		})
	}

	for _, key := range order {
		m := multis[key]
		if len(m.Contributors) == 0 && !m.AllowEmpty {
			errs.Append(errors.E(ErrEmptyMultibinding, m.Source,
				"%s is declared without contributions and doesn't allow empty",
				key.Render(true, true)))
			continue
		}
		errs.Append(g.Put(m))
	}
	return errs.AsError()
}
