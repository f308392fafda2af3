// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/dag"
	"github.com/terramate-io/bindgraph/errors"
)

// Sequential visits the vertices one at a time, in topological order.
type Sequential[V dag.Vertex] struct {
	d    *dag.DAG[V]
	opts Options[V]
}

// NewSequential creates a new sequential scheduler for the given DAG.
// The DAG must be acyclic.
func NewSequential[V dag.Vertex](d *dag.DAG[V], opts Options[V]) *Sequential[V] {
	return &Sequential[V]{d: d, opts: opts}
}

// Run visits the selected vertices by their topological order. Ties are
// visited in lexical order.
func (s *Sequential[V]) Run(ctx context.Context, f Func[V]) error {
	res, err := s.d.Sort(dag.Options[V]{Roots: s.opts.Roots})
	if err != nil {
		return err
	}

	logger := log.With().
		Str("action", "Sequential.Run()").
		Logger()

	failed := dag.Set[V]{}
	errs := errors.L()
	for _, id := range res.Sorted {
		var failedDeps []V
		for _, dep := range s.d.DependenciesOf(id) {
			if failed.Contains(dep) {
				failedDeps = append(failedDeps, dep)
			}
		}

		if err := visit(ctx, s.opts, id, failedDeps, f); err != nil {
			logger.Trace().
				Stringer("vertex", id).
				Err(err).
				Msg("Visit failed.")

			failed[id] = struct{}{}
			errs.Append(err)
		}
	}
	return errs.AsError()
}
