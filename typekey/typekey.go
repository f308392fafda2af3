// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package typekey implements the identity of requested and provided types.
//
// A Key is the pair (type, qualifier). Keys are plain comparable values:
// two keys built independently for the same qualifier and type are equal
// and can be used interchangeably as map keys. Keys are totally ordered by
// their rendering so graph algorithms can break ties deterministically.
package typekey

import (
	"strings"

	"golang.org/x/exp/slices"
)

// Type is the canonical rendering of a type, e.g. "com.example.Foo",
// "kotlin.collections.Set<com.example.Plugin>" or "kotlin.Int?".
// Types built with ParseType are normalized, so textual equality is type
// equality.
type Type string

// Key identifies what is requested or provided.
type Key struct {
	Type      Type
	Qualifier string
}

// New creates a key for the given type and qualifier.
// An empty qualifier means the key is unqualified.
func New(typ Type, qualifier string) Key {
	return Key{Type: typ, Qualifier: qualifier}
}

// WithType returns a copy of the key with the type replaced.
func (k Key) WithType(typ Type) Key {
	k.Type = typ
	return k
}

// WithQualifier returns a copy of the key with the qualifier replaced.
func (k Key) WithQualifier(qualifier string) Key {
	k.Qualifier = qualifier
	return k
}

// Render renders the key. If short is true, package prefixes are stripped
// from every type name. If includeQualifier is true and the key is
// qualified the rendering is "qualifier:type".
func (k Key) Render(short, includeQualifier bool) string {
	typ := string(k.Type)
	if short {
		typ = k.Type.Short()
	}
	if includeQualifier && k.Qualifier != "" {
		return k.Qualifier + ":" + typ
	}
	return typ
}

// String renders the full key. It's the identity used for ordering.
func (k Key) String() string {
	return k.Render(false, true)
}

// IsZero tells if the key is the zero value.
func (k Key) IsZero() bool {
	return k.Type == "" && k.Qualifier == ""
}

// Compare orders keys by their rendering. Distinct keys with the same
// rendering are ordered by qualifier, then type.
// It returns -1 if a < b, 0 if a == b and +1 if a > b.
func Compare(a, b Key) int {
	if c := strings.Compare(a.String(), b.String()); c != 0 {
		return c
	}
	if c := strings.Compare(a.Qualifier, b.Qualifier); c != 0 {
		return c
	}
	return strings.Compare(string(a.Type), string(b.Type))
}

// IsNullable tells if the type admits the absence of a value.
func (t Type) IsNullable() bool {
	return strings.HasSuffix(string(t), "?")
}

// NonNull returns the non-nullable counterpart of the type.
func (t Type) NonNull() Type {
	return Type(strings.TrimSuffix(string(t), "?"))
}

// Nullable returns the nullable counterpart of the type.
func (t Type) Nullable() Type {
	if t.IsNullable() {
		return t
	}
	return t + "?"
}

// SimpleName returns the name of the outermost type without its package
// and without type arguments, e.g. "Set" for "kotlin.collections.Set<Foo>".
func (t Type) SimpleName() string {
	s := string(t.NonNull())
	if i := strings.IndexByte(s, '<'); i >= 0 {
		s = s[:i]
	}
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		s = s[i+1:]
	}
	return s
}

// Short returns the type rendering with package prefixes stripped from
// every name, e.g. "Map<String, Foo>" for
// "kotlin.collections.Map<kotlin.String, com.example.Foo>".
func (t Type) Short() string {
	var (
		out  strings.Builder
		name strings.Builder
	)
	flush := func() {
		n := name.String()
		if i := strings.LastIndexByte(n, '.'); i >= 0 {
			n = n[i+1:]
		}
		out.WriteString(n)
		name.Reset()
	}
	for _, r := range string(t) {
		switch r {
		case '<', '>', ',', ' ', '?':
			flush()
			out.WriteRune(r)
		default:
			name.WriteRune(r)
		}
	}
	flush()
	return out.String()
}

// Sort sorts the keys in place using Compare.
func Sort(keys []Key) {
	slices.SortFunc(keys, Compare)
}
