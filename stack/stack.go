// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package stack implements the binding stack: the chain of requests being
// resolved from a graph accessor down to the current key. It's used to
// detect re-entrant resolution and to render the chain in diagnostics.
//
// A Stack is confined to a single resolution pass and is not safe for
// concurrent use.
package stack

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/typekey"
)

const indent = "    "

type (
	// Entry is one frame of the stack.
	Entry struct {
		// Request is the key being resolved, as seen by the requester.
		Request typekey.Contextual

		// Binding is the binding chosen for the request, nil while it's
		// still unknown (eg. a missing binding).
		Binding binding.Binding

		// Usage is the name of the accessor or parameter that requests the
		// key.
		Usage string

		// Range is the source range of the request, if known.
		Range hcl.Range
	}

	// Stack is the binding stack of one resolution root.
	Stack struct {
		graph   string
		entries []Entry
	}
)

// New creates an empty stack for the given graph.
func New(graph string) *Stack {
	return &Stack{graph: graph}
}

// Graph returns the name of the graph being resolved.
func (s *Stack) Graph() string {
	return s.graph
}

// Push records a new frame and returns it.
// Callers must Pop the frame on every exit path, see With.
func (s *Stack) Push(e Entry) Entry {
	log.Trace().
		Str("action", "Stack.Push()").
		Str("graph", s.graph).
		Int("depth", len(s.entries)).
		Str("request", e.Request.String()).
		Msg("Push frame.")

	s.entries = append(s.entries, e)
	return e
}

// Pop removes the top frame.
// It panics if the stack is empty, which means unbalanced Push/Pop calls.
func (s *Stack) Pop() Entry {
	if len(s.entries) == 0 {
		panic("internal error: pop on empty binding stack")
	}
	top := s.entries[len(s.entries)-1]
	s.entries = s.entries[:len(s.entries)-1]
	return top
}

// With pushes e, calls fn and pops e on every exit path of fn, including
// panics.
func (s *Stack) With(e Entry, fn func() error) error {
	s.Push(e)
	defer s.Pop()
	return fn()
}

// Len returns the number of frames.
func (s *Stack) Len() int {
	return len(s.entries)
}

// Top returns the top frame, if any.
func (s *Stack) Top() (Entry, bool) {
	if len(s.entries) == 0 {
		return Entry{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Entries returns a copy of the frames, root first.
func (s *Stack) Entries() []Entry {
	return append([]Entry(nil), s.entries...)
}

// IndexOf returns the index of the frame resolving key, or -1.
func (s *Stack) IndexOf(key typekey.Key) int {
	for i, e := range s.entries {
		if e.Request.Key == key {
			return i
		}
	}
	return -1
}

// Contains tells if key is being resolved.
func (s *Stack) Contains(key typekey.Key) bool {
	return s.IndexOf(key) >= 0
}

// Cycle returns the frames from the first frame resolving key up to the top
// of the stack. It returns nil if key is not on the stack.
// Entering key again from the top frame closes the cycle.
func (s *Stack) Cycle(key typekey.Key) []Entry {
	i := s.IndexOf(key)
	if i < 0 {
		return nil
	}
	return append([]Entry(nil), s.entries[i:]...)
}

// IsDeferredCycle tells if re-entering key through next is broken by a
// deferrable request: the cycle is tolerated if at least one request along
// it, including next, is deferrable.
func (s *Stack) IsDeferredCycle(key typekey.Key, next typekey.Contextual) bool {
	if next.IsDeferrable() {
		return true
	}
	cycle := s.Cycle(key)
	// the first frame's request enters the cycle from outside of it.
	for _, e := range cycle[min(1, len(cycle)):] {
		if e.Request.IsDeferrable() {
			return true
		}
	}
	return false
}

// CyclePath renders the keys of the cycle closed by re-entering key,
// e.g. "Foo -> Bar -> Foo".
func (s *Stack) CyclePath(key typekey.Key) string {
	var parts []string
	for _, e := range s.Cycle(key) {
		parts = append(parts, e.Request.Key.Render(true, true))
	}
	return strings.Join(append(parts, key.Render(true, true)), " -> ")
}

// Render renders the stack from the top frame down to the root, one
// request per frame, e.g.:
//
//	Foo is injected at
//	    [AppGraph] Bar(…, foo)
//	Bar is requested at
//	    [AppGraph] AppGraph.bar
func (s *Stack) Render() string {
	var b strings.Builder
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		b.WriteString(e.Request.Render(true))
		if i == 0 {
			b.WriteString(" is requested at\n")
			b.WriteString(indent)
			fmt.Fprintf(&b, "[%s] %s", s.graph, s.accessor(e))
		} else {
			b.WriteString(" is injected at\n")
			b.WriteString(indent)
			fmt.Fprintf(&b, "[%s] %s", s.graph, s.injectionSite(s.entries[i-1], e))
		}
		if !e.Range.Empty() {
			b.WriteString(" (" + e.Range.String() + ")")
		}
		if i > 0 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// Err returns the rendering as an errors.Stack, ready to be attached to an
// error with errors.E.
func (s *Stack) Err() errors.Stack {
	return errors.Stack(s.Render())
}

func (s *Stack) accessor(e Entry) string {
	if e.Usage == "" {
		return s.graph
	}
	return s.graph + "." + e.Usage
}

func (s *Stack) injectionSite(requester, e Entry) string {
	if requester.Binding == nil {
		return requester.Request.Render(true)
	}
	if e.Usage != "" && binding.ParamName(requester.Binding, e.Request.Key) == "" {
		return requester.Binding.Name() + "(…, " + e.Usage + ")"
	}
	return binding.Signature(requester.Binding, e.Request.Key)
}
