// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/dag"
	"github.com/terramate-io/bindgraph/errors"
)

// Parallel visits every vertex in its own goroutine as soon as all its
// dependencies were visited.
type Parallel[V dag.Vertex] struct {
	wg   sync.WaitGroup
	opts Options[V]

	state map[V]*parallelNodeState[V]
	ids   []V

	errsMtx sync.Mutex
	errs    map[V]error
}

type parallelNodeState[V dag.Vertex] struct {
	id           V
	dependencies []*parallelNodeState[V]
	dependents   []*parallelNodeState[V]

	// failed is written before the dependents are released, so it's
	// settled by the time a dependent reads it.
	failed atomic.Bool
	ready  atomic.Int64
}

// NewParallel creates a new parallel scheduler for the given DAG.
// The DAG must be acyclic.
func NewParallel[V dag.Vertex](d *dag.DAG[V], opts Options[V]) *Parallel[V] {
	s := &Parallel[V]{
		opts:  opts,
		state: map[V]*parallelNodeState[V]{},
		ids:   selected(d, d.IDs(), opts),
		errs:  map[V]error{},
	}

	for _, id := range s.ids {
		s.state[id] = &parallelNodeState[V]{id: id}
	}
	for _, id := range s.ids {
		st := s.state[id]
		for _, dep := range d.DependenciesOf(id) {
			dst, ok := s.state[dep]
			if !ok {
				continue
			}
			st.dependencies = append(st.dependencies, dst)
			dst.dependents = append(dst.dependents, st)
		}
	}
	return s
}

// Run visits the selected vertices concurrently. The errors of the failed
// visits are returned in lexical order of the vertices.
func (s *Parallel[V]) Run(ctx context.Context, f Func[V]) error {
	for _, id := range s.ids {
		if st := s.state[id]; len(st.dependencies) == 0 {
			s.visitNode(ctx, st, f)
		}
	}
	s.wg.Wait()

	errs := errors.L()
	for _, id := range s.ids {
		errs.Append(s.errs[id])
	}
	return errs.AsError()
}

func (s *Parallel[V]) visitNode(ctx context.Context, st *parallelNodeState[V], f Func[V]) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var failedDeps []V
		for _, dep := range st.dependencies {
			if dep.failed.Load() {
				failedDeps = append(failedDeps, dep.id)
			}
		}

		if err := visit(ctx, s.opts, st.id, failedDeps, f); err != nil {
			log.Trace().
				Str("action", "Parallel.visitNode()").
				Stringer("vertex", st.id).
				Err(err).
				Msg("Visit failed.")

			st.failed.Store(true)

			s.errsMtx.Lock()
			s.errs[st.id] = err
			s.errsMtx.Unlock()
		}

		for _, dependent := range st.dependents {
			if dependent.ready.Add(1) == int64(len(dependent.dependencies)) {
				s.visitNode(ctx, dependent, f)
			}
		}
	}()
}
