// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package bindgraph_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/madlambda/spells/assert"
	"github.com/terramate-io/bindgraph"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/graph"
	"github.com/terramate-io/bindgraph/test"
)

const graphsHCL = `
graph "CoreGraph" {
  scope = "CoreScope"

  accessor "clock" {
    type = "Clock"
  }
}

graph "AppGraph" {
  accessor "app" {
    type = "App"
  }

  dependency "clock" {
    graph = "CoreGraph"
    type  = "Clock"
  }
}

graph "AdminGraph" {
  accessor "admin" {
    type = "Admin"
  }

  dependency "clock" {
    graph = "CoreGraph"
    type  = "Clock"
  }
}

provides "CoreModule.provideClock" {
  type = "Clock"

  contributes {
    scope = "CoreScope"
  }
}

provides "AppModule.provideApp" {
  type = "App"

  param "clock" {
    type = "Clock"
  }
}

provides "AdminModule.provideAdmin" {
  type = "Admin"

  param "app" {
    type = "Provider<App>"
  }

  param "clock" {
    type = "Clock"
  }
}
`

func sortedByGraph(resolved []*graph.Resolved) map[string]string {
	out := map[string]string{}
	for _, r := range resolved {
		out[r.Graph.Name()] = strings.Join(test.Keys(r.Sorted), " ")
	}
	return out
}

func TestResolveAll(t *testing.T) {
	t.Parallel()

	file := test.ParseDescriptor(t, graphsHCL)
	for _, parallel := range []int{1, 4} {
		resolved, err := bindgraph.ResolveAll(context.Background(), file, bindgraph.Options{
			Parallel: parallel,
		})
		assert.NoError(t, err)
		assert.EqualInts(t, 3, len(resolved))

		// declaration order
		assert.EqualStrings(t, "CoreGraph", resolved[0].Graph.Name())
		assert.EqualStrings(t, "AppGraph", resolved[1].Graph.Name())
		assert.EqualStrings(t, "AdminGraph", resolved[2].Graph.Name())

		want := map[string]string{
			"CoreGraph":  "Clock",
			"AppGraph":   "Clock App",
			"AdminGraph": "Clock App Admin",
		}
		if diff := cmp.Diff(want, sortedByGraph(resolved)); diff != "" {
			t.Fatalf("sorted keys mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestResolveAllSelectedGraphs(t *testing.T) {
	t.Parallel()

	type testcase struct {
		name     string
		patterns []string
		want     []string
	}

	file := test.ParseDescriptor(t, graphsHCL)
	for _, tc := range []testcase{
		{
			name:     "exact name",
			patterns: []string{"AppGraph"},
			want:     []string{"AppGraph"},
		},
		{
			name:     "glob",
			patterns: []string{"A*Graph"},
			want:     []string{"AppGraph", "AdminGraph"},
		},
		{
			name:     "many patterns",
			patterns: []string{"Core*", "Admin*"},
			want:     []string{"CoreGraph", "AdminGraph"},
		},
		{
			name:     "no match",
			patterns: []string{"Unknown*"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			resolved, err := bindgraph.ResolveAll(context.Background(), file, bindgraph.Options{
				Parallel: 2,
				Graphs:   tc.patterns,
			})
			assert.NoError(t, err)

			var got []string
			for _, r := range resolved {
				got = append(got, r.Graph.Name())
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("resolved graphs mismatch (-want +got):\n%s", diff)
			}
		})
	}

	_, err := bindgraph.ResolveAll(context.Background(), file, bindgraph.Options{
		Graphs: []string{"[App"},
	})
	errors.AssertIsKind(t, err, bindgraph.ErrGraphFilter)
}

func TestResolveAllReportsEveryFailure(t *testing.T) {
	t.Parallel()

	file := test.ParseDescriptor(t, graphsHCL+`
graph "BrokenGraph" {
  accessor "repo" {
    type = "Repo"
  }
}

graph "OtherBrokenGraph" {
  accessor "db" {
    type = "Db"
  }
}
`)
	resolved, err := bindgraph.ResolveAll(context.Background(), file, bindgraph.Options{Parallel: 2})
	errors.AssertKinds(t, err, graph.ErrMissingBinding, graph.ErrMissingBinding)
	assert.EqualInts(t, 3, len(resolved))
}

func TestResolveAllGraphDependencies(t *testing.T) {
	t.Parallel()

	const healthyHCL = `
	graph "HealthyGraph" {
	  accessor "logger" {
	    type = "Logger"
	  }
	}
	provides "LogModule.provideLogger" {
	  type = "Logger"
	}`

	type testcase struct {
		name     string
		content  string
		want     []errors.Kind
		resolved []string
	}

	for _, tc := range []testcase{
		{
			name: "unknown graph",
			content: `
			graph "AppGraph" {
			  dependency "clock" {
			    graph = "CoreGraph"
			    type  = "Clock"
			  }
			}`,
			want:     []errors.Kind{bindgraph.ErrGraphDependency},
			resolved: []string{"HealthyGraph"},
		},
		{
			name: "graphs depending on each other",
			content: `
			graph "AppGraph" {
			  dependency "clock" {
			    graph = "CoreGraph"
			    type  = "Clock"
			  }
			}
			graph "CoreGraph" {
			  dependency "app" {
			    graph = "AppGraph"
			    type  = "App"
			  }
			}`,
			want:     []errors.Kind{bindgraph.ErrGraphCycle},
			resolved: []string{"HealthyGraph"},
		},
		{
			name: "graph depending on itself",
			content: `
			graph "AppGraph" {
			  accessor "clock" {
			    type = "Clock"
			  }
			  dependency "clock" {
			    graph = "AppGraph"
			    type  = "Clock"
			  }
			}`,
			want:     []errors.Kind{bindgraph.ErrGraphCycle},
			resolved: []string{"HealthyGraph"},
		},
		{
			name: "dependency on a graph cycle",
			content: `
			graph "AppGraph" {
			  accessor "app" {
			    type = "App"
			  }
			  dependency "admin" {
			    graph = "AdminGraph"
			    type  = "Admin"
			  }
			}
			graph "AdminGraph" {
			  accessor "admin" {
			    type = "Admin"
			  }
			  dependency "app" {
			    graph = "AppGraph"
			    type  = "App"
			  }
			}
			graph "ReportGraph" {
			  dependency "app" {
			    graph = "AppGraph"
			    type  = "App"
			  }
			}`,
			want:     []errors.Kind{bindgraph.ErrGraphCycle, bindgraph.ErrGraphDependency},
			resolved: []string{"HealthyGraph"},
		},
		{
			name: "unknown accessor",
			content: `
			graph "CoreGraph" {}
			graph "AppGraph" {
			  dependency "clock" {
			    graph = "CoreGraph"
			    type  = "Clock"
			  }
			}`,
			want:     []errors.Kind{bindgraph.ErrGraphDependency},
			resolved: []string{"CoreGraph", "HealthyGraph"},
		},
		{
			name: "accessor of another type",
			content: `
			graph "CoreGraph" {
			  accessor "clock" {
			    type = "Clock?"
			  }
			}
			graph "AppGraph" {
			  dependency "clock" {
			    graph = "CoreGraph"
			    type  = "Clock"
			  }
			}
			absent {
			  type = "Clock?"
			}`,
			want:     []errors.Kind{bindgraph.ErrGraphDependency},
			resolved: []string{"CoreGraph", "HealthyGraph"},
		},
		{
			name: "dependency on a failed graph",
			content: `
			graph "CoreGraph" {
			  accessor "clock" {
			    type = "Clock"
			  }
			}
			graph "AppGraph" {
			  dependency "clock" {
			    graph = "CoreGraph"
			    type  = "Clock"
			  }
			}`,
			want:     []errors.Kind{graph.ErrMissingBinding, bindgraph.ErrGraphDependency},
			resolved: []string{"HealthyGraph"},
		},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			file := test.ParseDescriptor(t, tc.content+healthyHCL)
			for _, parallel := range []int{1, 4} {
				resolved, err := bindgraph.ResolveAll(context.Background(), file, bindgraph.Options{
					Parallel: parallel,
				})
				for _, k := range tc.want {
					errors.AssertIsKind(t, err, k)
				}

				var names []string
				for _, r := range resolved {
					names = append(names, r.Graph.Name())
				}
				if diff := cmp.Diff(tc.resolved, names); diff != "" {
					t.Fatalf("resolved graphs mismatch (-want +got):\n%s", diff)
				}
			}
		})
	}
}

func TestResolveAllCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resolved, err := bindgraph.ResolveAll(ctx, test.ParseDescriptor(t, graphsHCL), bindgraph.Options{})
	errors.AssertIsKind(t, err, bindgraph.ErrCanceled)
	assert.EqualInts(t, 0, len(resolved))
}

func TestLoad(t *testing.T) {
	t.Parallel()

	dir := test.TempDir(t)
	write := func(name, content string) string {
		return test.WriteFile(t, dir, name, content)
	}

	core := write("core.hcl", `
	bindgraph {
	  required_version = ">= 0.1.0"
	}

	graph "CoreGraph" {
	  accessor "clock" {
	    type = "Clock"
	  }
	}`)
	modules := write("modules.toml", `
[[provides]]
function = "CoreModule.provideClock"
type = "Clock"
`)

	file, err := bindgraph.Load(core, modules)
	assert.NoError(t, err)
	assert.EqualInts(t, 1, len(file.Graphs))
	assert.EqualInts(t, 1, len(file.Descriptors))

	resolved, err := bindgraph.ResolveAll(context.Background(), file, bindgraph.Options{})
	assert.NoError(t, err)
	assert.EqualInts(t, 1, len(resolved))

	future := write("future.hcl", `
	bindgraph {
	  required_version = "> 99.0.0"
	}`)
	_, err = bindgraph.Load(core, future)
	errors.AssertIsKind(t, err, bindgraph.ErrVersion)
}
