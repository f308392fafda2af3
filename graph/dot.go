// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package graph

import (
	"github.com/emicklei/dot"
	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/typekey"
)

// Dot renders the resolved graph in the DOT language. Nodes are the sorted
// keys and edges point from a binding to its dependencies. Deferrable edges
// are dashed and edges removed to break a cycle are red. Accessor roots are
// drawn as boxes.
func (r *Resolved) Dot() *dot.Graph {
	logger := log.With().
		Str("action", "Resolved.Dot()").
		Str("graph", r.Graph.name).
		Logger()

	g := dot.NewGraph(dot.Directed)
	g.Label(r.Graph.name)

	roots := map[typekey.Key]bool{}
	for _, k := range r.Roots {
		roots[k] = true
	}

	nodes := make(map[typekey.Key]dot.Node, len(r.Sorted))
	for _, k := range r.Sorted {
		n := g.Node(k.String()).Label(k.Render(true, true))
		if roots[k] {
			n = n.Box()
		}
		if b, ok := r.Binding(k); ok && b.Kind() == binding.KindAbsent {
			n = n.Attr("style", "dotted")
		}
		nodes[k] = n
	}

	for _, from := range r.Sorted {
		b, _ := r.Binding(from)
		for _, to := range r.DependenciesOf(from) {
			if len(g.FindEdges(nodes[from], nodes[to])) > 0 {
				continue
			}
			e := g.Edge(nodes[from], nodes[to])
			if b != nil {
				if name := binding.ParamName(b, to); name != "" {
					e = e.Label(name)
				}
			}
			if r.IsDeferrable(from, to) {
				e = e.Dashed()
			}
			if r.IsBroken(from, to) {
				logger.Trace().
					Stringer("from", from).
					Stringer("to", to).
					Msg("Mark cycle edge.")
				e.Attr("color", "red")
			}
		}
	}
	return g
}
