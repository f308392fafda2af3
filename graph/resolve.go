// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/dag"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/stack"
	"github.com/terramate-io/bindgraph/typekey"
)

type (
	// Resolved is a resolved graph: the bindings reachable from the
	// accessors in generation order.
	Resolved struct {
		Graph *Graph

		// Sorted lists the reachable keys, dependencies first.
		Sorted []typekey.Key

		// Reachable is the set of keys reachable from the accessors.
		Reachable dag.Set[typekey.Key]

		// Deferred lists the keys whose deferrable dependencies break a
		// cycle. Their dependencies must be delivered lazily.
		Deferred []typekey.Key

		// Broken lists the dependency edges removed to break cycles.
		Broken []dag.Edge[typekey.Key]

		// Roots lists the keys of the satisfied accessors.
		Roots []typekey.Key

		edges map[dag.Edge[typekey.Key]]bool
		deps  map[typekey.Key][]typekey.Key
	}

	resolver struct {
		g       *Graph
		compute ComputeFunc

		done map[typekey.Key]bool

		// edges maps every resolved edge to whether all the requests
		// along it are deferrable.
		edges map[dag.Edge[typekey.Key]]bool
		deps  map[typekey.Key][]typekey.Key
	}
)

// Resolve resolves every accessor of the graph with the default on-demand
// binding computation, see ComputeInjectable.
func (g *Graph) Resolve() (*Resolved, error) {
	return g.ResolveWith(g.ComputeInjectable)
}

// ResolveWith resolves every accessor of the graph and sorts the reachable
// bindings. Keys without a binding are computed with compute.
//
// Each accessor is resolved with its own binding stack. Failures of one
// accessor don't stop the resolution of the others and all of them are
// returned as an errors.List.
func (g *Graph) ResolveWith(compute ComputeFunc) (*Resolved, error) {
	logger := log.With().
		Str("action", "Graph.Resolve()").
		Str("graph", g.name).
		Logger()

	logger.Debug().
		Int("accessors", len(g.accessors)).
		Msg("Resolve graph.")

	r := &resolver{
		g:       g,
		compute: compute,
		done:    map[typekey.Key]bool{},
		edges:   map[dag.Edge[typekey.Key]]bool{},
		deps:    map[typekey.Key][]typekey.Key{},
	}

	errs := errors.L()
	var roots []typekey.Key
	for _, a := range g.accessors {
		s := stack.New(g.name)
		bound, err := r.visit(s, a.Request, a.Name, a.Source)
		if err != nil {
			errs.Append(err)
			continue
		}
		if bound {
			roots = append(roots, a.Request.Key)
		}
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	res, err := dag.TopologicalSort(r.deps, dag.Options[typekey.Key]{
		Roots: roots,
		IsDeferrable: func(from, to typekey.Key) bool {
			return r.edges[dag.Edge[typekey.Key]{From: from, To: to}]
		},
		OnCycle: func(vertices, path []typekey.Key) error {
			return r.cycleErr(vertices, path)
		},
	})
	if err != nil {
		return nil, errors.E(err, "sorting graph %s", g.name)
	}

	logger.Debug().
		Int("sorted", len(res.Sorted)).
		Int("deferred", len(res.Deferred)).
		Msg("Graph resolved.")

	return &Resolved{
		Graph:     g,
		Sorted:    res.Sorted,
		Reachable: res.Reachable,
		Deferred:  res.Deferred,
		Broken:    res.Broken,
		Roots:     roots,
		edges:     r.edges,
		deps:      r.deps,
	}, nil
}

// visit resolves req and, recursively, its dependencies. It reports
// whether req is bound: an unbound optional request is dropped.
func (r *resolver) visit(s *stack.Stack, req typekey.Contextual, usage string, rng hcl.Range) (bool, error) {
	key := req.Key

	if s.Contains(key) {
		if s.IsDeferredCycle(key, req) {
			log.Trace().
				Str("action", "resolver.visit()").
				Str("graph", r.g.name).
				Stringer("key", key).
				Msg("Deferred cycle.")
			return true, nil
		}
		return false, r.stackCycleErr(s, req, usage, rng)
	}

	b, err := r.g.GetOrCompute(req, s, r.compute)
	if err != nil {
		return false, err
	}

	entry := stack.Entry{Request: req, Binding: b, Usage: usage, Range: rng}

	if b == nil {
		if req.IsOptional() {
			log.Trace().
				Str("action", "resolver.visit()").
				Str("graph", r.g.name).
				Stringer("key", key).
				Msg("Drop optional request with no binding.")
			return false, nil
		}
		var err error
		_ = s.With(entry, func() error {
			if isCollection(key.Type) {
				err = errors.E(ErrEmptyMultibinding, s.Err(),
					"%s has no contributions and is not declared as a multibinding",
					key.Render(true, true))
				return nil
			}
			err = r.missingErr(s, req)
			return nil
		})
		return false, err
	}

	if b.Kind() == binding.KindAbsent && !key.Type.IsNullable() && !req.IsOptional() {
		var err error
		_ = s.With(entry, func() error {
			err = errors.E(ErrMissingBinding, s.Err(), b.Range(),
				"%s is declared absent but requested as a non-nullable value",
				req.Render(true))
			return nil
		})
		return false, err
	}

	if r.done[key] {
		return true, nil
	}

	err = s.With(entry, func() error {
		deps := r.g.DependenciesOf(b)
		var errs []error
		for _, dep := range deps {
			depUsage := binding.ParamName(b, dep.Key)
			bound, err := r.visit(s, dep, depUsage, hcl.Range{})
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if bound {
				r.addEdge(key, dep)
			}
		}
		return errors.L(errs...).AsError()
	})
	if err != nil {
		return false, err
	}

	if _, ok := r.deps[key]; !ok {
		r.deps[key] = nil
	}
	r.done[key] = true
	return true, nil
}

func (r *resolver) addEdge(from typekey.Key, to typekey.Contextual) {
	e := dag.Edge[typekey.Key]{From: from, To: to.Key}
	deferrable, ok := r.edges[e]
	if !ok {
		r.deps[from] = append(r.deps[from], to.Key)
		deferrable = true
	}
	r.edges[e] = deferrable && to.IsDeferrable()
}

func (r *resolver) missingErr(s *stack.Stack, req typekey.Contextual) error {
	msg := fmt.Sprintf("cannot find a binding for %s", req.Key.Render(false, true))
	if suggestions := r.g.Similar(req.Key); len(suggestions) > 0 {
		lines := make([]string, len(suggestions))
		for i, sg := range suggestions {
			lines[i] = "    " + sg.String()
		}
		msg += "\n\nSimilar bindings:\n" + strings.Join(lines, "\n")
	}
	return errors.E(ErrMissingBinding, s.Err(), "%s", msg)
}

func (r *resolver) stackCycleErr(s *stack.Stack, req typekey.Contextual, usage string, rng hcl.Range) error {
	path := s.CyclePath(req.Key)
	var err error
	_ = s.With(stack.Entry{Request: req, Usage: usage, Range: rng}, func() error {
		err = errors.E(ErrHardCycle, s.Err(),
			"found a dependency cycle: %s", path)
		return nil
	})
	return err
}

func (r *resolver) cycleErr(vertices, path []typekey.Key) error {
	render := func(keys []typekey.Key) []string {
		out := make([]string, len(keys))
		for i, k := range keys {
			out[i] = k.Render(true, true)
		}
		return out
	}

	var trace []string
	for i := 0; i+1 < len(path); i++ {
		b := r.g.bindings[path[i]]
		trace = append(trace, fmt.Sprintf("    %s is injected at\n        [%s] %s",
			path[i+1].Render(true, true), r.g.name, binding.Signature(b, path[i+1])))
	}

	return errors.E(ErrHardCycle, errors.Stack(strings.Join(trace, "\n")),
		"found a dependency cycle: %s (involving %s)",
		strings.Join(render(path), " -> "), strings.Join(render(vertices), ", "))
}

// Binding returns the binding of a resolved key.
func (r *Resolved) Binding(key typekey.Key) (binding.Binding, bool) {
	return r.Graph.Get(key)
}

// DependenciesOf returns the resolved dependency keys of key, in request
// order. Dropped optional requests are not included.
func (r *Resolved) DependenciesOf(key typekey.Key) []typekey.Key {
	return r.deps[key]
}

// IsDeferrable tells if every request of to made by from is deferrable.
func (r *Resolved) IsDeferrable(from, to typekey.Key) bool {
	return r.edges[dag.Edge[typekey.Key]{From: from, To: to}]
}

// IsBroken tells if the edge from -> to was removed to break a cycle.
func (r *Resolved) IsBroken(from, to typekey.Key) bool {
	for _, e := range r.Broken {
		if e.From == from && e.To == to {
			return true
		}
	}
	return false
}
