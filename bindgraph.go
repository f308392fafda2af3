// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package bindgraph

import (
	"context"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/dag"
	"github.com/terramate-io/bindgraph/descriptor"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/graph"
	"github.com/terramate-io/bindgraph/scheduler"
	"github.com/terramate-io/bindgraph/scheduler/resource"
)

const (
	// ErrGraphDependency indicates a graph depends on a graph or accessor
	// that doesn't exist or failed to resolve.
	ErrGraphDependency errors.Kind = "invalid graph dependency"

	// ErrGraphCycle indicates graphs depending on each other.
	ErrGraphCycle errors.Kind = "graph dependency cycle"

	// ErrCanceled indicates the resolution was canceled before a graph
	// was resolved.
	ErrCanceled = scheduler.ErrCanceled

	// ErrGraphFilter indicates an invalid graph name pattern.
	ErrGraphFilter errors.Kind = "invalid graph filter"
)

// Options of ResolveAll.
type Options struct {
	// Parallel is the number of graphs resolved concurrently. Graphs are
	// resolved sequentially if it's less than 2.
	Parallel int

	// Graphs are glob patterns of the graph names to resolve. The graphs
	// they depend on are resolved too but not returned.
	// Every graph is resolved if empty.
	Graphs []string
}

// Load loads the given descriptor files, checks their version constraints
// and merges them in order.
func Load(fnames ...string) (*descriptor.File, error) {
	errs := errors.L()
	var files []*descriptor.File
	for _, fname := range fnames {
		f, err := descriptor.Load(fname)
		if err != nil {
			errs.Append(err)
			continue
		}
		if f.RequiredVersion != "" {
			if err := CheckVersion(f.RequiredVersion, f.AllowPrereleases); err != nil {
				errs.Append(errors.E(err, "checking %s", fname))
				continue
			}
		}
		files = append(files, f)
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}
	return descriptor.Merge(files...), nil
}

// ResolveAll assembles and resolves every graph declared in file. Each graph
// gets its own binding graph and binding stacks. Graphs are resolved after
// the graphs they depend on, concurrently if opts.Parallel allows it.
//
// The resolved graphs are returned in declaration order. A failing graph
// doesn't stop the others: every failure is reported in the returned
// errors.List, together with the graphs that did resolve. The graphs
// depending on a failed or unknown graph fail with ErrGraphDependency and
// the graphs of a dependency cycle fail with ErrGraphCycle.
func ResolveAll(ctx context.Context, file *descriptor.File, opts Options) ([]*graph.Resolved, error) {
	logger := log.With().
		Str("action", "bindgraph.ResolveAll()").
		Str("file", file.Filename).
		Logger()

	d, index, err := graphDAG(file.Graphs)
	if err != nil {
		return nil, err
	}

	selected, err := selectGraphs(file.Graphs, opts.Graphs)
	if err != nil {
		return nil, err
	}
	if len(selected) == 0 {
		if len(opts.Graphs) > 0 {
			logger.Warn().
				Strs("patterns", opts.Graphs).
				Msg("No graph matches the given patterns.")
		}
		return nil, nil
	}

	errs := errors.L()
	cyclic := graphCycles(d)
	reachable := dag.Reachable(d.Adjacency(), selected)
	for _, decl := range file.Graphs {
		id := dag.ID(decl.Name)
		if members, ok := cyclic[id]; ok && reachable.Contains(id) {
			errs.Append(errors.E(ErrGraphCycle, decl.Source,
				"graph %s is part of a dependency cycle between graphs %s",
				decl.Name, strings.Join(members, ", ")))
		}
	}

	acyclic, err := withoutCycles(d, file.Graphs, cyclic)
	if err != nil {
		return nil, err
	}
	var roots []dag.ID
	for _, id := range selected {
		if _, ok := cyclic[id]; !ok {
			roots = append(roots, id)
		}
	}

	results := make([]*graph.Resolved, len(file.Graphs))

	logger.Debug().
		Int("graphs", len(file.Graphs)).
		Int("selected", len(selected)).
		Int("cyclic", len(cyclic)).
		Int("parallel", opts.Parallel).
		Msg("Resolve graphs.")

	if len(roots) > 0 {
		schedOpts := scheduler.Options[dag.ID]{
			Roots:    roots,
			Resource: resource.NewBounded(opts.Parallel),
		}
		var sched scheduler.S[dag.ID]
		if opts.Parallel > 1 {
			sched = scheduler.NewParallel(acyclic, schedOpts)
		} else {
			sched = scheduler.NewSequential(acyclic, schedOpts)
		}

		errs.Append(sched.Run(ctx, func(_ context.Context, id dag.ID, failed []dag.ID) error {
			i := index[id]
			decl := file.Graphs[i]

			failed = slices.Clone(failed)
			for name := range cyclic {
				failed = append(failed, name)
			}
			if err := checkGraphDependencies(decl, file.Graphs, index, failed); err != nil {
				return err
			}

			res, err := resolve(decl, file)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		}))
	}
	err = errs.AsError()

	wanted := dag.Set[dag.ID]{}
	for _, id := range selected {
		wanted[id] = struct{}{}
	}

	var resolved []*graph.Resolved
	for i, r := range results {
		if r != nil && wanted.Contains(dag.ID(file.Graphs[i].Name)) {
			resolved = append(resolved, r)
		}
	}

	logger.Debug().
		Int("resolved", len(resolved)).
		Bool("failed", err != nil).
		Msg("Graphs resolved.")

	return resolved, err
}

func resolve(decl graph.Declaration, file *descriptor.File) (*graph.Resolved, error) {
	logger := log.With().
		Str("action", "bindgraph.resolve()").
		Str("graph", decl.Name).
		Logger()

	g, err := graph.Assemble(decl, file.Descriptors)
	if err != nil {
		return nil, err
	}

	res, err := g.Resolve()
	if err != nil {
		return nil, errors.E(err, "resolving graph %s", decl.Name)
	}

	logger.Trace().
		Int("sorted", len(res.Sorted)).
		Msg("Graph resolved.")

	return res, nil
}

// selectGraphs returns the names of the graphs matching any of the glob
// patterns, in declaration order. Every graph matches an empty pattern list.
func selectGraphs(decls []graph.Declaration, patterns []string) ([]dag.ID, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	errs := errors.L()
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			errs.Append(errors.E(ErrGraphFilter, err, "compiling pattern %q", p))
			continue
		}
		globs = append(globs, g)
	}
	if err := errs.AsError(); err != nil {
		return nil, err
	}

	var selected []dag.ID
	for _, decl := range decls {
		match := len(globs) == 0
		for _, g := range globs {
			if g.Match(decl.Name) {
				match = true
				break
			}
		}
		if match {
			selected = append(selected, dag.ID(decl.Name))
		}
	}
	return selected, nil
}

// graphDAG builds the DAG of graph names where each graph depends on the
// graphs it takes values from. Dependencies on undeclared graphs are left
// out and reported by checkGraphDependencies. The DAG may have cycles.
func graphDAG(decls []graph.Declaration) (*dag.DAG[dag.ID], map[dag.ID]int, error) {
	d := dag.New[dag.ID]()
	index := map[dag.ID]int{}
	declared := map[string]bool{}
	for _, decl := range decls {
		declared[decl.Name] = true
	}

	errs := errors.L()
	for i, decl := range decls {
		var deps []dag.ID
		for _, dep := range decl.Dependencies {
			if declared[dep.Graph] {
				deps = append(deps, dag.ID(dep.Graph))
			}
		}
		if err := d.AddNode(dag.ID(decl.Name), decl.Name, deps); err != nil {
			errs.Append(errors.E(ErrGraphDependency, decl.Source, err))
			continue
		}
		index[dag.ID(decl.Name)] = i
	}
	if err := errs.AsError(); err != nil {
		return nil, nil, err
	}
	return d, index, nil
}

// graphCycles maps every graph taking part in a cycle to the sorted names
// of the graphs of its cycle.
func graphCycles(d *dag.DAG[dag.ID]) map[dag.ID][]string {
	cyclic := map[dag.ID][]string{}
	adj := d.Adjacency()
	for _, comp := range dag.StronglyConnected(adj, d.IDs()) {
		if len(comp) == 1 && !slices.Contains(adj[comp[0]], comp[0]) {
			continue
		}
		names := make([]string, len(comp))
		for i, id := range comp {
			names[i] = id.String()
		}
		for _, id := range comp {
			cyclic[id] = names
		}
	}
	return cyclic
}

// withoutCycles returns a copy of d without the cyclic graphs and the edges
// leading to them.
func withoutCycles(d *dag.DAG[dag.ID], decls []graph.Declaration, cyclic map[dag.ID][]string) (*dag.DAG[dag.ID], error) {
	acyclic := dag.New[dag.ID]()
	for _, decl := range decls {
		id := dag.ID(decl.Name)
		if _, ok := cyclic[id]; ok {
			continue
		}
		var deps []dag.ID
		for _, dep := range d.DependenciesOf(id) {
			if _, ok := cyclic[dep]; !ok {
				deps = append(deps, dep)
			}
		}
		if err := acyclic.AddNode(id, decl.Name, deps); err != nil {
			return nil, errors.E(ErrGraphDependency, decl.Source, err)
		}
	}
	return acyclic, nil
}

// checkGraphDependencies checks that every dependency of decl names an
// accessor of a successfully resolved graph with the same key.
func checkGraphDependencies(decl graph.Declaration, decls []graph.Declaration, index map[dag.ID]int, failed []dag.ID) error {
	errs := errors.L()
	for _, dep := range decl.Dependencies {
		name := dag.ID(dep.Graph)
		if _, ok := index[name]; !ok {
			errs.Append(errors.E(ErrGraphDependency, dep.Source,
				"graph %s depends on unknown graph %s", decl.Name, dep.Graph))
			continue
		}
		if slices.Contains(failed, name) {
			errs.Append(errors.E(ErrGraphDependency, dep.Source,
				"graph %s depends on graph %s which failed to resolve", decl.Name, dep.Graph))
			continue
		}

		var found bool
		for _, a := range decls[index[name]].Accessors {
			if a.Name != dep.Accessor {
				continue
			}
			found = true
			if a.Request.Key != dep.TypeKey {
				errs.Append(errors.E(ErrGraphDependency, dep.Source,
					"graph %s expects %s from %s.%s but it exposes %s",
					decl.Name, dep.TypeKey.Render(true, true), dep.Graph, dep.Accessor,
					a.Request.Key.Render(true, true)))
			}
		}
		if !found {
			errs.Append(errors.E(ErrGraphDependency, dep.Source,
				"graph %s depends on %s.%s which is not an accessor",
				decl.Name, dep.Graph, dep.Accessor))
		}
	}
	return errs.AsError()
}
