// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package scheduler_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/madlambda/spells/assert"
	"github.com/terramate-io/bindgraph/dag"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/scheduler"
	"github.com/terramate-io/bindgraph/scheduler/resource"
)

const errFailed errors.Kind = "failed"

type newScheduler func(*dag.DAG[dag.ID], scheduler.Options[dag.ID]) scheduler.S[dag.ID]

func schedulers() map[string]newScheduler {
	return map[string]newScheduler{
		"sequential": func(d *dag.DAG[dag.ID], opts scheduler.Options[dag.ID]) scheduler.S[dag.ID] {
			return scheduler.NewSequential(d, opts)
		},
		"parallel": func(d *dag.DAG[dag.ID], opts scheduler.Options[dag.ID]) scheduler.S[dag.ID] {
			return scheduler.NewParallel(d, opts)
		},
	}
}

// recorder records the visits of a scheduler.
type recorder struct {
	mu      sync.Mutex
	visited []dag.ID
	failed  map[dag.ID][]dag.ID
}

func (r *recorder) visit(fail ...dag.ID) scheduler.Func[dag.ID] {
	return func(_ context.Context, id dag.ID, failed []dag.ID) error {
		r.mu.Lock()
		defer r.mu.Unlock()

		r.visited = append(r.visited, id)
		if len(failed) > 0 {
			if r.failed == nil {
				r.failed = map[dag.ID][]dag.ID{}
			}
			r.failed[id] = failed
		}
		for _, f := range fail {
			if f == id {
				return errors.E(errFailed, "visiting %s", id)
			}
		}
		return nil
	}
}

func TestSchedulerVisitOrder(t *testing.T) {
	t.Parallel()

	for name, newSched := range schedulers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var rec recorder
			err := newSched(makeDAG(), scheduler.Options[dag.ID]{
				Resource: resource.NewBounded(2),
			}).Run(context.Background(), rec.visit())

			assert.NoError(t, err)
			assert.EqualInts(t, 10, len(rec.visited))
			assertVisitOrder(t, makeDAG(), rec.visited)
		})
	}
}

func TestSequentialIsDeterministic(t *testing.T) {
	t.Parallel()

	var rec recorder
	err := scheduler.NewSequential(makeDAG(), scheduler.Options[dag.ID]{}).
		Run(context.Background(), rec.visit())
	assert.NoError(t, err)

	want := []dag.ID{"a", "a/1", "a/2", "a/3", "b", "b/1", "b/2", "b/3", "c", "z"}
	if diff := cmp.Diff(want, rec.visited); diff != "" {
		t.Fatalf("visit order mismatch (-want +got):\n%s", diff)
	}
}

func TestSchedulerRoots(t *testing.T) {
	t.Parallel()

	for name, newSched := range schedulers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var rec recorder
			err := newSched(makeDAG(), scheduler.Options[dag.ID]{
				Roots: []dag.ID{"a/2", "b/1"},
			}).Run(context.Background(), rec.visit())
			assert.NoError(t, err)

			got := dag.Set[dag.ID]{}
			for _, id := range rec.visited {
				got[id] = struct{}{}
			}
			want := dag.Set[dag.ID]{"a": {}, "a/1": {}, "a/2": {}, "b": {}, "b/1": {}}
			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("visited vertices mismatch (-want +got):\n%s", diff)
			}
			assertVisitOrder(t, makeDAG(), rec.visited)
		})
	}
}

func TestSchedulerReportsFailedDependencies(t *testing.T) {
	t.Parallel()

	for name, newSched := range schedulers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var rec recorder
			err := newSched(makeDAG(), scheduler.Options[dag.ID]{}).
				Run(context.Background(), rec.visit("a/1", "b"))
			errors.AssertIsKind(t, err, errFailed)

			var list *errors.List
			assert.IsTrue(t, errors.As(err, &list))
			assert.EqualInts(t, 2, list.Len())

			// every vertex is still visited
			assert.EqualInts(t, 10, len(rec.visited))

			want := map[dag.ID][]dag.ID{
				"a/2": {"a/1"},
				"b/1": {"b"},
				"b/2": {"b"},
				"b/3": {"b"},
				"z":   {"b"},
			}
			if diff := cmp.Diff(want, rec.failed); diff != "" {
				t.Fatalf("failed dependencies mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSchedulerCanceled(t *testing.T) {
	t.Parallel()

	for name, newSched := range schedulers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			var rec recorder
			err := newSched(makeDAG(), scheduler.Options[dag.ID]{
				Resource: resource.NewBounded(1),
			}).Run(ctx, rec.visit())

			errors.AssertIsKind(t, err, scheduler.ErrCanceled)
			assert.IsTrue(t, errors.Is(err, context.Canceled))
			assert.EqualInts(t, 0, len(rec.visited))
		})
	}
}

func TestSchedulerBoundedResource(t *testing.T) {
	t.Parallel()

	const limit = 2

	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	d, _ := makeGridDAG()
	err := scheduler.NewParallel(d, scheduler.Options[dag.ID]{
		Resource: resource.NewBounded(limit),
	}).Run(context.Background(), func(context.Context, dag.ID, []dag.ID) error {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()

		time.Sleep(time.Millisecond)

		mu.Lock()
		running--
		mu.Unlock()
		return nil
	})
	assert.NoError(t, err)
	assert.IsTrue(t, peak <= limit, "peak of %d concurrent visits", peak)
}

func makeDAG() *dag.DAG[dag.ID] {
	d := dag.New[dag.ID]()

	addNode := func(s string, deps []dag.ID) {
		_ = d.AddNode(dag.ID(s), s, deps)
	}

	addNode("z", []dag.ID{"a", "b", "c"})
	addNode("a", nil)
	addNode("a/1", []dag.ID{"a"})
	addNode("a/2", []dag.ID{"a", "a/1"})
	addNode("a/3", []dag.ID{"a", "a/2"})
	addNode("b", nil)
	addNode("b/1", []dag.ID{"b"})
	addNode("b/2", []dag.ID{"b"})
	addNode("b/3", []dag.ID{"b"})
	addNode("c", nil)
	return d
}

func assertVisitOrder(t *testing.T, d *dag.DAG[dag.ID], visited []dag.ID) {
	t.Helper()
	pos := map[dag.ID]int{}
	for i, id := range visited {
		pos[id] = i
	}
	for _, id := range visited {
		for _, dep := range d.DependenciesOf(id) {
			depPos, ok := pos[dep]
			if !ok || depPos > pos[id] {
				t.Fatalf("%s visited before its dependency %s: %v", id, dep, visited)
			}
		}
	}
}

// makeGridDAG builds a DAG for an NxN matrix where A[i][j] depends on
// A[i-1][j] and A[i][j-1], unless the respective indices are out of bounds
// (i.e. for first row and column).
func makeGridDAG() (*dag.DAG[dag.ID], map[dag.ID][]int) {
	d := dag.New[dag.ID]()
	cells := map[dag.ID][]int{}

	for i := 0; i < 10; i++ {
		for j := 0; j < 10; j++ {
			var deps []dag.ID
			id := dag.ID(fmt.Sprintf("%v.%v", i, j))
			cell := []int{i*10 + j, -1, -1}

			if i > 0 {
				deps = append(deps, dag.ID(fmt.Sprintf("%v.%v", i-1, j)))
				cell[1] = (i-1)*10 + j
			}

			if j > 0 {
				deps = append(deps, dag.ID(fmt.Sprintf("%v.%v", i, j-1)))
				cell[2] = i*10 + (j - 1)
			}

			_ = d.AddNode(id, nil, deps)
			cells[id] = cell
		}
	}

	return d, cells
}

func gridFunc(cells map[dag.ID][]int, ndarr []int) scheduler.Func[dag.ID] {
	return func(_ context.Context, id dag.ID, _ []dag.ID) error {
		cell := cells[id]
		v := 1

		if cell[1] != -1 {
			v += ndarr[cell[1]]
		}

		if cell[2] != -1 {
			v += ndarr[cell[2]]
		}

		ndarr[cell[0]] = v
		return nil
	}
}

func TestSchedulerGrid(t *testing.T) {
	t.Parallel()

	for name, newSched := range schedulers() {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			d, cells := makeGridDAG()
			ndarr := make([]int, 10*10)

			// Values depend on already computed dependency values. If the
			// scheduler violates the order, we end up with a wrong result.
			err := newSched(d, scheduler.Options[dag.ID]{}).
				Run(context.Background(), gridFunc(cells, ndarr))
			assert.NoError(t, err)
			assert.EqualInts(t, 184755, ndarr[99], "invalid result")
		})
	}
}
