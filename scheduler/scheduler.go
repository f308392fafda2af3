// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package scheduler visits the vertices of a DAG with every dependency of a
// vertex visited before the vertex itself.
package scheduler

import (
	"context"

	"github.com/terramate-io/bindgraph/dag"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/scheduler/resource"
)

// ErrCanceled indicates the context was done before a vertex was visited.
const ErrCanceled errors.Kind = "visit canceled"

// Func visits the vertex id. The failed slice holds the dependencies of id
// whose visit failed or was canceled. Func is called even if some
// dependencies failed, it's up to it to skip its work.
type Func[V any] func(ctx context.Context, id V, failed []V) error

// Options of the schedulers.
type Options[V comparable] struct {
	// Roots restricts the visit to the roots and their transitive
	// dependencies. Every vertex is visited if empty.
	Roots []V

	// Resource is held during each visit. Visits are unbounded if nil.
	Resource resource.R
}

// S is the scheduler interface.
type S[V any] interface {
	// Run visits the vertices by a specific scheduling strategy.
	// The returned errors.List holds the error of every failed visit.
	Run(ctx context.Context, f Func[V]) error
}

// selected returns the vertices to visit, in the order of ids.
func selected[V dag.Vertex](d *dag.DAG[V], ids []V, opts Options[V]) []V {
	if len(opts.Roots) == 0 {
		return ids
	}
	reachable := dag.Reachable(d.Adjacency(), opts.Roots)
	var out []V
	for _, id := range ids {
		if reachable.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// visit calls f while holding the resource of opts.
func visit[V dag.Vertex](ctx context.Context, opts Options[V], id V, failed []V, f Func[V]) error {
	if opts.Resource != nil {
		if err := opts.Resource.Acquire(ctx); err != nil {
			return errors.E(ErrCanceled, err, "visiting %s", id.String())
		}
		defer opts.Resource.Release()
	}
	if err := ctx.Err(); err != nil {
		return errors.E(ErrCanceled, err, "visiting %s", id.String())
	}
	return f(ctx, id, failed)
}
