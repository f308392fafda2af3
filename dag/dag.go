// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package dag provides the dependency graph primitives used to order the
// bindings of a graph.
//
// Vertices are related by dependency edges: an edge from A to B means A
// depends on B, so B must be ordered before A. Some edges may be deferrable,
// meaning A only needs a lazy handle to B. Cycles made only of deferrable
// edges can be broken; any other cycle is fatal.
package dag

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/errors"
	"golang.org/x/exp/slices"
)

type (
	// Vertex is the constraint for vertex identifiers. The String rendering
	// is the tie-breaker that keeps every ordering deterministic.
	Vertex interface {
		comparable
		fmt.Stringer
	}

	// ID is a plain string vertex.
	ID string

	// DAG is a dependency graph built node by node.
	DAG[V Vertex] struct {
		// dag is a map of vertex -> dependencies.
		dag    map[V][]V
		values map[V]interface{}
		cycles map[V]bool

		validated bool
	}

	// Set is a set of vertices.
	Set[V comparable] map[V]struct{}
)

// Errors returned by operations on the DAG.
const (
	ErrDuplicateNode errors.Kind = "duplicate node"
	ErrNodeNotFound  errors.Kind = "node not found"
	ErrCycleDetected errors.Kind = "cycle detected"
)

// String returns the ID itself.
func (id ID) String() string { return string(id) }

// Contains tells if v is in the set.
func (s Set[V]) Contains(v V) bool {
	_, ok := s[v]
	return ok
}

// New creates a new empty graph.
func New[V Vertex]() *DAG[V] {
	return &DAG[V]{
		dag:    make(map[V][]V),
		values: make(map[V]interface{}),
	}
}

// AddNode adds a new node to the graph with its list of dependencies.
// The value is anything related to the node that needs to be retrieved
// later when processing the graph.
// Dependencies may be added later but they must all exist by the time the
// graph is sorted.
func (d *DAG[V]) AddNode(id V, value interface{}, deps []V) error {
	logger := log.With().
		Str("action", "AddNode()").
		Stringer("id", id).
		Logger()

	if _, ok := d.values[id]; ok {
		return errors.E(ErrDuplicateNode, "adding node id %q", id.String())
	}

	edges := make([]V, 0, len(deps))
	for _, dep := range deps {
		if slices.Contains(edges, dep) {
			continue
		}
		logger.Trace().
			Stringer("dependency", dep).
			Msg("Add edge.")
		edges = append(edges, dep)
	}

	d.dag[id] = edges
	d.values[id] = value
	d.validated = false
	return nil
}

// Node returns the value of the node with the given id.
func (d *DAG[V]) Node(id V) (interface{}, error) {
	v, ok := d.values[id]
	if !ok {
		return nil, errors.E(ErrNodeNotFound, "node %q", id.String())
	}
	return v, nil
}

// DependenciesOf returns the dependencies of the given node.
func (d *DAG[V]) DependenciesOf(id V) []V {
	return d.dag[id]
}

// IDs returns the sorted list of node ids.
func (d *DAG[V]) IDs() []V {
	ids := make([]V, 0, len(d.dag))
	for id := range d.dag {
		ids = append(ids, id)
	}
	return sortedIDs(ids)
}

// Adjacency returns the full adjacency of the graph.
// The returned map must not be modified.
func (d *DAG[V]) Adjacency() map[V][]V {
	return d.dag
}

// Validate looks for cycles, deferrable or not, and unknown dependencies.
// The reason is a rendering of one cycle path, e.g. "A -> B -> A".
func (d *DAG[V]) Validate() (reason string, err error) {
	d.cycles = make(map[V]bool)
	d.validated = true

	if err := checkVertices(d.dag, nil); err != nil {
		return "", err
	}

	comps := StronglyConnected(d.dag, d.IDs())
	var first []V
	for _, comp := range comps {
		if !isCyclic(d.dag, comp) {
			continue
		}
		for _, id := range comp {
			d.cycles[id] = true
		}
		if first == nil {
			first = comp
		}
	}
	if first == nil {
		return "", nil
	}

	log.Trace().
		Str("action", "Validate()").
		Int("size", len(first)).
		Msg("Cycle found.")

	path := cyclePath(d.dag, Set[Edge[V]]{}, first)
	reason = renderPath(path)
	return reason, errors.E(ErrCycleDetected, "checking node id %q: %s", path[0].String(), reason)
}

// HasCycle tells if the node is part of a cycle.
func (d *DAG[V]) HasCycle(id V) bool {
	if !d.validated {
		_, err := d.Validate()
		if err == nil {
			return false
		}
	}
	return d.cycles[id]
}

// Sort sorts the graph. See TopologicalSort.
func (d *DAG[V]) Sort(opts Options[V]) (Result[V], error) {
	return TopologicalSort(d.dag, opts)
}

// StronglyConnected returns the strongly connected components of the graph
// using Tarjan's algorithm, visiting vertices in the given order.
// Components are returned in reverse topological order: a component comes
// after every component it depends on. Members of each component are
// sorted.
func StronglyConnected[V Vertex](adj map[V][]V, vertices []V) [][]V {
	t := &tarjan[V]{
		adj:     adj,
		index:   make(map[V]int, len(vertices)),
		lowlink: make(map[V]int, len(vertices)),
		onStack: make(map[V]bool, len(vertices)),
	}
	for _, v := range vertices {
		if _, ok := t.index[v]; !ok {
			t.strongConnect(v)
		}
	}
	return t.components
}

type tarjan[V Vertex] struct {
	adj        map[V][]V
	next       int
	index      map[V]int
	lowlink    map[V]int
	onStack    map[V]bool
	stack      []V
	components [][]V
}

func (t *tarjan[V]) strongConnect(v V) {
	t.index[v] = t.next
	t.lowlink[v] = t.next
	t.next++
	t.stack = append(t.stack, v)
	t.onStack[v] = true

	for _, w := range t.adj[v] {
		if _, ok := t.index[w]; !ok {
			t.strongConnect(w)
			t.lowlink[v] = min(t.lowlink[v], t.lowlink[w])
		} else if t.onStack[w] {
			t.lowlink[v] = min(t.lowlink[v], t.index[w])
		}
	}

	if t.lowlink[v] != t.index[v] {
		return
	}

	var comp []V
	for {
		w := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		t.onStack[w] = false
		comp = append(comp, w)
		if w == v {
			break
		}
	}
	t.components = append(t.components, sortedIDs(comp))
}

// isCyclic tells if a strongly connected component contains a cycle, which
// is the case for any component with more than one member or a self loop.
func isCyclic[V Vertex](adj map[V][]V, comp []V) bool {
	if len(comp) > 1 {
		return true
	}
	return slices.Contains(adj[comp[0]], comp[0])
}

// cyclePath returns a cycle path through the strongly connected component
// comp, starting and ending at its lowest member, using only edges within
// comp that are not in removed.
func cyclePath[V Vertex](adj map[V][]V, removed Set[Edge[V]], comp []V) []V {
	members := make(Set[V], len(comp))
	for _, v := range comp {
		members[v] = struct{}{}
	}
	start := comp[0]
	visited := Set[V]{}

	var walk func(v V, path []V) []V
	walk = func(v V, path []V) []V {
		visited[v] = struct{}{}
		for _, w := range sortedIDs(adj[v]) {
			if !members.Contains(w) || removed.Contains(Edge[V]{v, w}) {
				continue
			}
			if w == start {
				return append(path, w)
			}
			if visited.Contains(w) {
				continue
			}
			if found := walk(w, append(path, w)); found != nil {
				return found
			}
		}
		return nil
	}

	if path := walk(start, []V{start}); path != nil {
		return path
	}
	panic(fmt.Sprintf("internal error: no cycle path in component %v", comp))
}

func renderPath[V Vertex](path []V) string {
	parts := make([]string, len(path))
	for i, v := range path {
		parts[i] = v.String()
	}
	return strings.Join(parts, " -> ")
}

func sortedIDs[V Vertex](ids []V) []V {
	sorted := append([]V(nil), ids...)
	slices.SortFunc(sorted, compare[V])
	return sorted
}

func compare[V Vertex](a, b V) int {
	return strings.Compare(a.String(), b.String())
}
