// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package dag_test

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/madlambda/spells/assert"
	"github.com/terramate-io/bindgraph/dag"
	"github.com/terramate-io/bindgraph/errors"
)

type vertex struct {
	id    dag.ID
	after []dag.ID
}

type testcase struct {
	name     string
	vertices []vertex
	err      errors.Kind
	reason   string
	order    []dag.ID
}

var cycleTests = []testcase{
	{
		name: "empty dag",
	},
	{
		name: "simple cycle",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"A"},
			},
		},
		err:    dag.ErrCycleDetected,
		reason: "A -> A",
	},
	{
		name: "cycle: A -> B, B -> A",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"B"},
			},
			{
				id:    "B",
				after: []dag.ID{"A"},
			},
		},
		err:    dag.ErrCycleDetected,
		reason: "A -> B -> A",
	},
	{
		name: "after cycle: A -> B, B -> C, C -> A",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"B"},
			},
			{
				id:    "B",
				after: []dag.ID{"C"},
			},
			{
				id:    "C",
				after: []dag.ID{"A"},
			},
		},
		err:    dag.ErrCycleDetected,
		reason: "A -> B -> C -> A",
	},
	{
		name: "cycle: A -> B, B -> C, C -> D, D -> A, F -> A",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"B"},
			},
			{
				id:    "B",
				after: []dag.ID{"C"},
			},
			{
				id:    "C",
				after: []dag.ID{"D"},
			},
			{
				id:    "D",
				after: []dag.ID{"A"},
			},
			{
				id:    "F",
				after: []dag.ID{"A"},
			},
		},
		err:    dag.ErrCycleDetected,
		reason: "A -> B -> C -> D -> A",
	},
	{
		name: "unknown dependency",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"B"},
			},
		},
		err: dag.ErrNodeNotFound,
	},
}

var dagTests = []testcase{
	{
		name: "simple dag",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"B"},
			},
			{
				id: "B",
			},
		},
		order: []dag.ID{"B", "A"},
	},
	{
		name: "chain: A -> B -> C",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"B"},
			},
			{
				id:    "B",
				after: []dag.ID{"C"},
			},
			{
				id: "C",
			},
		},
		order: []dag.ID{"C", "B", "A"},
	},
	{
		name: "diamond: A -> (B, C), B -> D, C -> D",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"C", "B"},
			},
			{
				id:    "C",
				after: []dag.ID{"D"},
			},
			{
				id:    "B",
				after: []dag.ID{"D"},
			},
			{
				id: "D",
			},
		},
		order: []dag.ID{"D", "B", "C", "A"},
	},
	{
		name: "A -> (B, E), B -> (C, D), D -> E",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"B", "E"},
			},
			{
				id:    "B",
				after: []dag.ID{"C", "D"},
			},
			{
				id: "C",
			},
			{
				id:    "D",
				after: []dag.ID{"E"},
			},
			{
				id: "E",
			},
		},
		order: []dag.ID{"C", "E", "D", "B", "A"},
	},
	{
		name: "duplicated edges",
		vertices: []vertex{
			{
				id:    "A",
				after: []dag.ID{"B", "B"},
			},
			{
				id: "B",
			},
		},
		order: []dag.ID{"B", "A"},
	},
}

func TestDAG(t *testing.T) {
	var testcases []testcase
	testcases = append(testcases, cycleTests...)
	testcases = append(testcases, dagTests...)

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			d := dag.New[dag.ID]()
			for _, v := range tc.vertices {
				assert.NoError(t, d.AddNode(v.id, nil, v.after))
			}
			reason, err := d.Validate()
			if tc.err != "" {
				errors.AssertIsKind(t, err, tc.err)
				assert.EqualStrings(t, tc.reason, reason, "cycle reason differ")
				return
			}
			assert.NoError(t, err)

			res, err := d.Sort(dag.Options[dag.ID]{})
			assert.NoError(t, err)
			assertOrder(t, tc.order, res.Sorted)
		})
	}
}

func TestAddDuplicatedNode(t *testing.T) {
	d := dag.New[dag.ID]()
	assert.NoError(t, d.AddNode("A", "first", nil))
	errors.AssertIsKind(t, d.AddNode("A", "second", nil), dag.ErrDuplicateNode)

	v, err := d.Node("A")
	assert.NoError(t, err)
	assert.EqualStrings(t, "first", v.(string))

	_, err = d.Node("B")
	errors.AssertIsKind(t, err, dag.ErrNodeNotFound)
}

func TestHasCycle(t *testing.T) {
	d := dag.New[dag.ID]()
	assert.NoError(t, d.AddNode("A", nil, []dag.ID{"B"}))
	assert.NoError(t, d.AddNode("B", nil, []dag.ID{"A"}))
	assert.NoError(t, d.AddNode("C", nil, []dag.ID{"A"}))

	assert.IsTrue(t, d.HasCycle("A"))
	assert.IsTrue(t, d.HasCycle("B"))
	assert.IsTrue(t, !d.HasCycle("C"))
}

func TestStronglyConnected(t *testing.T) {
	adj := map[dag.ID][]dag.ID{
		"A": {"B"},
		"B": {"C"},
		"C": {"A", "D"},
		"D": {"E"},
		"E": {"D"},
		"F": nil,
	}
	comps := dag.StronglyConnected(adj, []dag.ID{"A", "B", "C", "D", "E", "F"})

	want := [][]dag.ID{
		{"D", "E"},
		{"A", "B", "C"},
		{"F"},
	}
	if diff := cmp.Diff(want, comps); diff != "" {
		t.Fatalf("components mismatch (-want +got):\n%s", diff)
	}
}

func TestSortHardCycle(t *testing.T) {
	adj := map[dag.ID][]dag.ID{
		"A": {"B"},
		"B": {"A"},
		"C": {"A"},
	}

	var gotVertices, gotPath []dag.ID
	_, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{
		OnCycle: func(vertices, path []dag.ID) error {
			gotVertices = vertices
			gotPath = path
			return errors.E(errors.Kind("custom"), "cycle")
		},
	})
	errors.AssertIsKind(t, err, errors.Kind("custom"))
	assertOrder(t, []dag.ID{"A", "B"}, gotVertices)
	assertOrder(t, []dag.ID{"A", "B", "A"}, gotPath)

	_, err = dag.TopologicalSort(adj, dag.Options[dag.ID]{})
	errors.AssertIsKind(t, err, dag.ErrCycleDetected)
	assert.IsTrue(t, strings.Contains(err.Error(), "A -> B -> A"), "got %v", err)
}

func TestSortSoftCycle(t *testing.T) {
	adj := map[dag.ID][]dag.ID{
		"A": {"B"},
		"B": {"A"},
	}
	deferrable := func(from, to dag.ID) bool {
		return from == "A" && to == "B"
	}

	res, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{
		IsDeferrable: deferrable,
		OnCycle: func(_, _ []dag.ID) error {
			t.Fatal("OnCycle called for a soft cycle")
			return nil
		},
	})
	assert.NoError(t, err)
	assertOrder(t, []dag.ID{"A", "B"}, res.Sorted)
	assertOrder(t, []dag.ID{"A"}, res.Deferred)

	want := []dag.Edge[dag.ID]{{From: "A", To: "B"}}
	if diff := cmp.Diff(want, res.Broken); diff != "" {
		t.Fatalf("broken edges mismatch (-want +got):\n%s", diff)
	}
}

func TestSortSoftCycleInsideLargerComponent(t *testing.T) {
	// B -> C is deferrable but A -> B -> A is still a hard cycle.
	adj := map[dag.ID][]dag.ID{
		"A": {"B"},
		"B": {"A", "C"},
		"C": {"B"},
	}
	var got []dag.ID
	_, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{
		IsDeferrable: func(from, to dag.ID) bool { return from == "B" && to == "C" },
		OnCycle: func(vertices, _ []dag.ID) error {
			got = vertices
			return errors.E(dag.ErrCycleDetected)
		},
	})
	errors.AssertIsKind(t, err, dag.ErrCycleDetected)
	assertOrder(t, []dag.ID{"A", "B"}, got)
}

func TestSortDeferredOwnersFirst(t *testing.T) {
	// Z lazily depends on Y, Y depends on Z. Z must come first even if Y
	// sorts before it lexically.
	adj := map[dag.ID][]dag.ID{
		"Y": {"Z"},
		"Z": {"Y"},
		"X": nil,
	}
	res, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{
		IsDeferrable: func(from, _ dag.ID) bool { return from == "Z" },
	})
	assert.NoError(t, err)
	assertOrder(t, []dag.ID{"Z", "X", "Y"}, res.Sorted)
	assertOrder(t, []dag.ID{"Z"}, res.Deferred)
}

func TestSortUnknownVertex(t *testing.T) {
	adj := map[dag.ID][]dag.ID{
		"A": {"B"},
	}
	_, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{})
	errors.AssertIsKind(t, err, dag.ErrNodeNotFound)
	assert.IsTrue(t, strings.Contains(err.Error(), `"B" referenced by "A"`), "got %v", err)

	_, err = dag.TopologicalSort(map[dag.ID][]dag.ID{"A": nil}, dag.Options[dag.ID]{
		Roots: []dag.ID{"Z"},
	})
	errors.AssertIsKind(t, err, dag.ErrNodeNotFound)
}

func TestSortReachability(t *testing.T) {
	adj := map[dag.ID][]dag.ID{
		"R1": {"A"},
		"R2": {"B"},
		"A":  {"C"},
		"B":  {"C"},
		"C":  nil,
		"U":  {"A"},
	}

	res1, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{Roots: []dag.ID{"R1"}})
	assert.NoError(t, err)
	res2, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{Roots: []dag.ID{"R2"}})
	assert.NoError(t, err)
	both, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{Roots: []dag.ID{"R2", "R1"}})
	assert.NoError(t, err)

	union := dag.Set[dag.ID]{}
	for v := range res1.Reachable {
		union[v] = struct{}{}
	}
	for v := range res2.Reachable {
		union[v] = struct{}{}
	}
	if diff := cmp.Diff(union, both.Reachable); diff != "" {
		t.Fatalf("reachable mismatch (-want +got):\n%s", diff)
	}
	assert.IsTrue(t, !both.Reachable.Contains("U"))
	assertOrder(t, []dag.ID{"C", "A", "B", "R1", "R2"}, both.Sorted)

	all, err := dag.TopologicalSort(adj, dag.Options[dag.ID]{})
	assert.NoError(t, err)
	assert.EqualInts(t, len(adj), len(all.Reachable))
	assert.EqualInts(t, len(adj), len(all.Sorted))
}

func TestSortIsDeterministic(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	const n = 60
	ids := make([]dag.ID, n)
	for i := range ids {
		ids[i] = dag.ID(strings.Repeat("v", 1+i/26) + string(rune('a'+i%26)))
	}

	// random DAG: edges only go from higher to lower index, plus a few
	// deferrable back edges making soft cycles.
	type edge struct{ from, to dag.ID }
	var edges []edge
	soft := map[edge]bool{}
	for i := 1; i < n; i++ {
		for j := 0; j < i; j++ {
			if rng.IntN(6) == 0 {
				edges = append(edges, edge{ids[i], ids[j]})
			}
		}
	}
	for k := 0; k < 5; k++ {
		e := edges[rng.IntN(len(edges))]
		back := edge{e.to, e.from}
		soft[back] = true
		edges = append(edges, back)
	}
	opts := dag.Options[dag.ID]{
		IsDeferrable: func(from, to dag.ID) bool { return soft[edge{from, to}] },
	}

	build := func(order []edge, vertices []dag.ID) map[dag.ID][]dag.ID {
		adj := map[dag.ID][]dag.ID{}
		for _, v := range vertices {
			adj[v] = nil
		}
		for _, e := range order {
			adj[e.from] = append(adj[e.from], e.to)
		}
		return adj
	}

	want, err := dag.TopologicalSort(build(edges, ids), opts)
	assert.NoError(t, err)
	assert.EqualInts(t, n, len(want.Sorted))

	pos := map[dag.ID]int{}
	for i, v := range want.Sorted {
		pos[v] = i
	}
	for _, e := range edges {
		if soft[e] {
			continue
		}
		assert.IsTrue(t, pos[e.to] < pos[e.from], "%s sorted after its dependent %s", e.to, e.from)
	}

	for round := 0; round < 20; round++ {
		shuffledEdges := append([]edge(nil), edges...)
		rng.Shuffle(len(shuffledEdges), func(i, j int) {
			shuffledEdges[i], shuffledEdges[j] = shuffledEdges[j], shuffledEdges[i]
		})
		shuffledIDs := append([]dag.ID(nil), ids...)
		rng.Shuffle(len(shuffledIDs), func(i, j int) {
			shuffledIDs[i], shuffledIDs[j] = shuffledIDs[j], shuffledIDs[i]
		})

		got, err := dag.TopologicalSort(build(shuffledEdges, shuffledIDs), opts)
		assert.NoError(t, err)
		if diff := cmp.Diff(want.Sorted, got.Sorted); diff != "" {
			t.Fatalf("round %d: sorted mismatch (-want +got):\n%s", round, diff)
		}
		if diff := cmp.Diff(want.Deferred, got.Deferred); diff != "" {
			t.Fatalf("round %d: deferred mismatch (-want +got):\n%s", round, diff)
		}
	}
}

func assertOrder(t *testing.T, want, got []dag.ID) {
	t.Helper()
	assert.EqualInts(t, len(want), len(got), "length mismatch: want %v got %v", want, got)
	for i, w := range want {
		assert.EqualStrings(t, string(w), string(got[i]), "id %d mismatch", i)
	}
}
