// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package stack_test

import (
	stderrors "errors"
	"testing"

	"github.com/madlambda/spells/assert"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/stack"
	"github.com/terramate-io/bindgraph/typekey"
)

func req(expr string) typekey.Contextual {
	return typekey.MustParse(expr, "")
}

func TestPushPop(t *testing.T) {
	s := stack.New("AppGraph")
	assert.EqualInts(t, 0, s.Len())

	s.Push(stack.Entry{Request: req("Foo"), Usage: "foo"})
	s.Push(stack.Entry{Request: req("Bar"), Usage: "bar"})
	assert.EqualInts(t, 2, s.Len())
	assert.IsTrue(t, s.Contains(typekey.New("Foo", "")))

	top, ok := s.Top()
	assert.IsTrue(t, ok)
	assert.EqualStrings(t, "Bar", top.Request.String())

	popped := s.Pop()
	assert.EqualStrings(t, "Bar", popped.Request.String())
	assert.EqualInts(t, 1, s.Len())
	assert.IsTrue(t, !s.Contains(typekey.New("Bar", "")))
}

func TestWithPopsOnEveryPath(t *testing.T) {
	s := stack.New("AppGraph")

	err := s.With(stack.Entry{Request: req("Foo")}, func() error {
		assert.EqualInts(t, 1, s.Len())
		return nil
	})
	assert.NoError(t, err)
	assert.EqualInts(t, 0, s.Len())

	want := stderrors.New("failed")
	err = s.With(stack.Entry{Request: req("Foo")}, func() error {
		return s.With(stack.Entry{Request: req("Bar")}, func() error {
			return want
		})
	})
	assert.IsError(t, err, want)
	assert.EqualInts(t, 0, s.Len())

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic not propagated")
			}
		}()
		_ = s.With(stack.Entry{Request: req("Foo")}, func() error {
			panic("boom")
		})
	}()
	assert.EqualInts(t, 0, s.Len())
}

func TestPopEmptyPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Pop() on empty stack did not panic")
		}
	}()
	stack.New("AppGraph").Pop()
}

func TestRender(t *testing.T) {
	bar := &binding.ConstructorInjected{
		TypeKey: typekey.New("com.example.Bar", ""),
		Class:   "com.example.Bar",
		Params: []binding.Param{
			{Name: "log", Request: req("Logger")},
			{Name: "foo", Request: req("com.example.Foo")},
		},
	}

	s := stack.New("AppGraph")
	s.Push(stack.Entry{Request: req("com.example.Bar"), Binding: bar, Usage: "bar"})
	s.Push(stack.Entry{Request: req("com.example.Foo"), Usage: "foo"})

	want := "Foo is injected at\n" +
		"    [AppGraph] com.example.Bar(…, foo)\n" +
		"Bar is requested at\n" +
		"    [AppGraph] AppGraph.bar"
	assert.EqualStrings(t, want, s.Render())
	assert.EqualStrings(t, want, string(s.Err()))
}

func TestCycle(t *testing.T) {
	s := stack.New("AppGraph")
	s.Push(stack.Entry{Request: req("App")})
	s.Push(stack.Entry{Request: req("Foo")})
	s.Push(stack.Entry{Request: req("Bar")})

	cycle := s.Cycle(typekey.New("Foo", ""))
	assert.EqualInts(t, 2, len(cycle))
	assert.EqualStrings(t, "Foo -> Bar -> Foo", s.CyclePath(typekey.New("Foo", "")))
	assert.IsTrue(t, s.Cycle(typekey.New("Baz", "")) == nil)

	assert.IsTrue(t, !s.IsDeferredCycle(typekey.New("Foo", ""), req("Foo")))
	assert.IsTrue(t, s.IsDeferredCycle(typekey.New("Foo", ""), req("Provider<Foo>")))
}

func TestDeferredCycleAlongTheStack(t *testing.T) {
	s := stack.New("AppGraph")
	s.Push(stack.Entry{Request: req("Lazy<App>")})
	s.Push(stack.Entry{Request: req("Foo")})
	s.Push(stack.Entry{Request: req("Provider<Bar>")})

	// the request entering the cycle is not part of it.
	assert.IsTrue(t, s.IsDeferredCycle(typekey.New("App", ""), req("App")))
	assert.IsTrue(t, s.IsDeferredCycle(typekey.New("Foo", ""), req("Foo")))

	s2 := stack.New("AppGraph")
	s2.Push(stack.Entry{Request: req("Lazy<Foo>")})
	s2.Push(stack.Entry{Request: req("Bar")})
	assert.IsTrue(t, !s2.IsDeferredCycle(typekey.New("Foo", ""), req("Foo")))
}
