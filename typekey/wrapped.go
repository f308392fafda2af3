// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package typekey

type (
	// Wrapped describes how a value of a key is delivered to a consumer.
	// The set of implementations is closed: Canonical, Provider, Lazy and
	// Map.
	Wrapped interface {
		// Canonical returns the type of the binding that satisfies the
		// request once all wrappers are removed.
		Canonical() Type

		// String renders the wrapped type as written at the request site.
		String() string

		isWrapped()
	}

	// Canonical is a direct value.
	Canonical struct {
		Type Type
	}

	// Provider is a supplier invoked by the consumer each time it needs a
	// value.
	Provider struct {
		Inner Wrapped
	}

	// Lazy is a supplier that computes its value once on first use.
	Lazy struct {
		Inner Wrapped
	}

	// Map is a multibinding map whose values are delivered as Value.
	// KeyType is the static type of the map keys.
	Map struct {
		KeyType Type
		Value   Wrapped
	}
)

// Names of the recognized wrapper types.
const (
	ProviderName = "Provider"
	LazyName     = "Lazy"
	MapName      = "Map"
)

func (Canonical) isWrapped() {}
func (Provider) isWrapped()  {}
func (Lazy) isWrapped()      {}
func (Map) isWrapped()       {}

// Canonical returns the wrapped type itself.
func (w Canonical) Canonical() Type { return w.Type }

// Canonical returns the canonical type of the supplied value.
func (w Provider) Canonical() Type { return w.Inner.Canonical() }

// Canonical returns the canonical type of the memoized value.
func (w Lazy) Canonical() Type { return w.Inner.Canonical() }

// Canonical returns the type of the map multibinding, with every value
// wrapper removed.
func (w Map) Canonical() Type {
	return Type(MapName + "<" + string(w.KeyType) + ", " + string(w.Value.Canonical()) + ">")
}

func (w Canonical) String() string { return string(w.Type) }
func (w Provider) String() string  { return ProviderName + "<" + w.Inner.String() + ">" }
func (w Lazy) String() string      { return LazyName + "<" + w.Inner.String() + ">" }
func (w Map) String() string {
	return MapName + "<" + string(w.KeyType) + ", " + w.Value.String() + ">"
}

// IsDeferrable tells if a dependency delivered as w can be satisfied after
// its consumer is constructed. Provider and Lazy are deferrable and so is a
// map whose values are deferrable.
func IsDeferrable(w Wrapped) bool {
	switch w := w.(type) {
	case Provider, Lazy:
		return true
	case Map:
		return IsDeferrable(w.Value)
	case Canonical:
		return false
	}
	panic("internal error: unknown wrapped type")
}

// Contextual is a key as seen from one request site: the key, how its
// value is delivered and whether the site can fall back to a default.
type Contextual struct {
	Key     Key
	Wrapped Wrapped

	// HasDefault is true if the request site has a usable default value,
	// making the binding optional.
	HasDefault bool

	// RawType overrides the rendering of the wrapper, if not empty.
	RawType Type
}

// Of returns the contextual key of a direct request of k.
func Of(k Key) Contextual {
	return Contextual{Key: k, Wrapped: Canonical{Type: k.Type}}
}

// IsDeferrable tells if the request can be satisfied lazily.
func (c Contextual) IsDeferrable() bool {
	return c.Wrapped != nil && IsDeferrable(c.Wrapped)
}

// IsOptional tells if an unsatisfied request is acceptable, which is the
// case for defaulted request sites.
func (c Contextual) IsOptional() bool {
	return c.HasDefault
}

// Render renders the request. The qualifier, if any, prefixes the wrapped
// type as in Key.Render.
func (c Contextual) Render(short bool) string {
	var typ string
	switch {
	case c.RawType != "":
		typ = string(c.RawType)
	case c.Wrapped != nil:
		typ = c.Wrapped.String()
	default:
		typ = string(c.Key.Type)
	}
	if short {
		typ = Type(typ).Short()
	}
	if c.Key.Qualifier != "" {
		return c.Key.Qualifier + ":" + typ
	}
	return typ
}

// String renders the full request.
func (c Contextual) String() string {
	return c.Render(false)
}
