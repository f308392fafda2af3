// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package dag

import (
	"container/heap"

	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/errors"
	"golang.org/x/exp/slices"
)

type (
	// Options configures TopologicalSort.
	Options[V Vertex] struct {
		// Roots restricts the sort to the vertices reachable from them.
		// If empty, every vertex is sorted.
		Roots []V

		// IsDeferrable tells if the edge from -> to is deferrable, ie.
		// from only needs a lazy handle to to. A nil function means no edge
		// is deferrable.
		IsDeferrable func(from, to V) bool

		// OnCycle is called with the members of a cycle that can't be broken
		// by deferrable edges and a concrete path through it. The returned
		// error is returned by the sort. If nil, or if it returns nil, an
		// error of kind ErrCycleDetected is returned instead.
		OnCycle func(vertices, path []V) error
	}

	// Result of a topological sort.
	Result[V Vertex] struct {
		// Sorted lists every reachable vertex, dependencies first.
		Sorted []V

		// Reachable is the set of vertices reachable from the roots.
		Reachable Set[V]

		// Deferred lists the vertices owning at least one deferrable edge
		// that was removed to break a cycle, in the order of Sorted.
		Deferred []V

		// Broken lists the deferrable edges removed to break cycles, sorted
		// by source and then by target.
		Broken []Edge[V]
	}

	// Edge is a dependency edge: From depends on To.
	Edge[V Vertex] struct {
		From, To V
	}
)

// TopologicalSort orders the vertices of the graph described by adj so that
// every vertex comes after its dependencies. adj maps a vertex to the
// vertices it depends on.
//
// Cycles are handled per strongly connected component: deferrable edges
// inside a cyclic component are removed and their owners reported in
// Result.Deferred. If the component is still cyclic without them the sort
// fails with the offending vertices. The result is deterministic and doesn't
// depend on the iteration order of adj: ties are broken by placing deferred
// owners first and then by the String rendering of the vertices.
func TopologicalSort[V Vertex](adj map[V][]V, opts Options[V]) (Result[V], error) {
	logger := log.With().
		Str("action", "dag.TopologicalSort()").
		Logger()

	if err := checkVertices(adj, opts.Roots); err != nil {
		return Result[V]{}, err
	}

	reachable := Reachable(adj, opts.Roots)
	vertices := make([]V, 0, len(reachable))
	for v := range reachable {
		vertices = append(vertices, v)
	}
	vertices = sortedIDs(vertices)

	logger.Trace().
		Int("vertices", len(vertices)).
		Msg("Find strongly connected components.")

	isDeferrable := opts.IsDeferrable
	if isDeferrable == nil {
		isDeferrable = func(_, _ V) bool { return false }
	}

	var res Result[V]
	removed := Set[Edge[V]]{}
	deferred := Set[V]{}

	for _, comp := range StronglyConnected(adj, vertices) {
		if !isCyclic(adj, comp) {
			continue
		}

		members := make(Set[V], len(comp))
		for _, v := range comp {
			members[v] = struct{}{}
		}

		// residual holds the non-deferrable edges inside the component.
		residual := make(map[V][]V, len(comp))
		var soft []Edge[V]
		for _, from := range comp {
			for _, to := range adj[from] {
				if !members.Contains(to) {
					continue
				}
				if isDeferrable(from, to) {
					soft = append(soft, Edge[V]{from, to})
					continue
				}
				residual[from] = append(residual[from], to)
			}
		}

		for _, hard := range StronglyConnected(residual, comp) {
			if !isCyclic(residual, hard) {
				continue
			}
			path := cyclePath(residual, Set[Edge[V]]{}, hard)
			logger.Debug().
				Str("path", renderPath(path)).
				Msg("Cycle can't be broken by deferrable edges.")
			return Result[V]{}, cycleError(opts.OnCycle, hard, path)
		}

		for _, e := range soft {
			logger.Trace().
				Stringer("from", e.From).
				Stringer("to", e.To).
				Msg("Break cycle on deferrable edge.")
			if !removed.Contains(e) {
				res.Broken = append(res.Broken, e)
			}
			removed[e] = struct{}{}
			deferred[e.From] = struct{}{}
		}
	}

	sorted, err := kahn(adj, vertices, removed, deferred)
	if err != nil {
		return Result[V]{}, err
	}

	res.Sorted = sorted
	res.Reachable = reachable
	slices.SortFunc(res.Broken, func(a, b Edge[V]) int {
		if c := compare(a.From, b.From); c != 0 {
			return c
		}
		return compare(a.To, b.To)
	})
	for _, v := range sorted {
		if deferred.Contains(v) {
			res.Deferred = append(res.Deferred, v)
		}
	}
	return res, nil
}

// Reachable returns the vertices reachable from roots, roots included.
// If roots is empty every vertex of adj is returned.
func Reachable[V Vertex](adj map[V][]V, roots []V) Set[V] {
	visited := Set[V]{}
	if len(roots) == 0 {
		for v := range adj {
			visited[v] = struct{}{}
		}
		return visited
	}

	pending := append([]V(nil), roots...)
	for len(pending) > 0 {
		v := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		if visited.Contains(v) {
			continue
		}
		visited[v] = struct{}{}
		pending = append(pending, adj[v]...)
	}
	return visited
}

// checkVertices fails if an edge or a root refers to a vertex absent from
// adj. Vertices are checked in sorted order so the reported one is stable.
func checkVertices[V Vertex](adj map[V][]V, roots []V) error {
	for _, root := range sortedIDs(roots) {
		if _, ok := adj[root]; !ok {
			return errors.E(ErrNodeNotFound, "root %q is not in the graph", root.String())
		}
	}

	from := make([]V, 0, len(adj))
	for v := range adj {
		from = append(from, v)
	}
	for _, v := range sortedIDs(from) {
		for _, dep := range sortedIDs(adj[v]) {
			if _, ok := adj[dep]; !ok {
				return errors.E(ErrNodeNotFound,
					"vertex %q referenced by %q is not in the graph",
					dep.String(), v.String())
			}
		}
	}
	return nil
}

func cycleError[V Vertex](onCycle func(vertices, path []V) error, vertices, path []V) error {
	if onCycle != nil {
		if err := onCycle(vertices, path); err != nil {
			return err
		}
	}
	return errors.E(ErrCycleDetected, "%s", renderPath(path))
}

// kahn linearizes the reachable vertices, ignoring removed edges.
func kahn[V Vertex](adj map[V][]V, vertices []V, removed Set[Edge[V]], deferred Set[V]) ([]V, error) {
	pending := make(map[V]int, len(vertices))
	dependents := make(map[V][]V, len(vertices))

	for _, v := range vertices {
		var seen []V
		for _, dep := range adj[v] {
			if removed.Contains(Edge[V]{v, dep}) || slices.Contains(seen, dep) {
				continue
			}
			seen = append(seen, dep)
			dependents[dep] = append(dependents[dep], v)
		}
		pending[v] = len(seen)
	}

	ready := &readyQueue[V]{deferred: deferred}
	for _, v := range vertices {
		if pending[v] == 0 {
			heap.Push(ready, v)
		}
	}

	sorted := make([]V, 0, len(vertices))
	for ready.Len() > 0 {
		v := heap.Pop(ready).(V)
		sorted = append(sorted, v)
		for _, dependent := range dependents[v] {
			pending[dependent]--
			if pending[dependent] == 0 {
				heap.Push(ready, dependent)
			}
		}
	}

	if len(sorted) != len(vertices) {
		var left []V
		for _, v := range vertices {
			if pending[v] > 0 {
				left = append(left, v)
			}
		}
		return nil, errors.E(ErrCycleDetected,
			"internal error: %d vertices left unsorted: %v", len(left), left)
	}
	return sorted, nil
}

// readyQueue is the priority queue of vertices with no pending dependency.
type readyQueue[V Vertex] struct {
	items    []V
	deferred Set[V]
}

func (q *readyQueue[V]) Len() int { return len(q.items) }

func (q *readyQueue[V]) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	da, db := q.deferred.Contains(a), q.deferred.Contains(b)
	if da != db {
		return da
	}
	return compare(a, b) < 0
}

func (q *readyQueue[V]) Swap(i, j int) { q.items[i], q.items[j] = q.items[j], q.items[i] }

func (q *readyQueue[V]) Push(x any) { q.items = append(q.items, x.(V)) }

func (q *readyQueue[V]) Pop() any {
	old := q.items
	n := len(old)
	v := old[n-1]
	q.items = old[:n-1]
	return v
}
