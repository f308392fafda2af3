// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package di realizes a resolved binding graph at runtime: it instantiates
// every binding in generation order from a set of factories, delivering
// deferrable dependencies as Provider and Lazy handles.
package di

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/graph"
	"github.com/terramate-io/bindgraph/typekey"
)

// Errors returned when realizing a graph.
const (
	ErrUnbound          errors.Kind = "no factory for binding"
	ErrAlreadyBound     errors.Kind = "factory already bound"
	ErrUnknownKey       errors.Kind = "key is not part of the graph"
	ErrCircularInit     errors.Kind = "circular initialization"
	ErrMismatchedType   errors.Kind = "mismatched instance type"
	ErrMissingBindings  errors.Kind = "context contains no instance bindings"
	ErrFactoryFailed    errors.Kind = "factory failed"
	ErrUnsupportedValue errors.Kind = "unsupported wrapped value"
)

type bindingsKey struct{}

type (
	// Factory builds the value of a binding from the values of its
	// dependencies.
	Factory func(ctx context.Context, args Args) (any, error)

	// Provider returns the value of a key each time it's called.
	Provider func() (any, error)

	// Lazy computes the value of a key on first use.
	Lazy struct {
		once     sync.Once
		provider Provider
		value    any
		err      error
	}

	// Args are the values of the dependencies of a binding, by parameter
	// name.
	Args struct {
		names  []string
		values []any
		bound  []bool
	}

	// Bindings map the keys of a resolved graph to factories and hold the
	// instances built from them.
	Bindings struct {
		ctx          context.Context
		resolved     *graph.Resolved
		factories    map[typekey.Key]Factory
		instances    map[typekey.Key]any
		cycleChecker []typekey.Key
	}
)

// NewBindings creates the bindings of a resolved graph and adds them to the
// given context.
func NewBindings(ctx context.Context, resolved *graph.Resolved) *Bindings {
	b := &Bindings{
		resolved:     resolved,
		factories:    map[typekey.Key]Factory{},
		instances:    map[typekey.Key]any{},
		cycleChecker: []typekey.Key{},
	}
	b.ctx = context.WithValue(ctx, bindingsKey{}, b)
	return b
}

// WithBindings returns a copy of the given context with bindings.
func WithBindings(ctx context.Context, b *Bindings) context.Context {
	return context.WithValue(ctx, bindingsKey{}, b)
}

// Bind binds the key to the given factory, which will be used to build its
// value. The value exists once within the scope of the bindings.
func Bind(b *Bindings, key typekey.Key, factory Factory) error {
	if _, ok := b.resolved.Binding(key); !ok || !b.resolved.Reachable.Contains(key) {
		return errors.E(ErrUnknownKey, "binding %s", key)
	}
	if b.factories[key] != nil {
		return errors.E(ErrAlreadyBound, "binding %s", key)
	}
	b.factories[key] = factory
	return nil
}

// BindInstance binds the key to an already built value, as done for bound
// instances and values of graph dependencies.
func BindInstance(b *Bindings, key typekey.Key, value any) error {
	return Bind(b, key, func(context.Context, Args) (any, error) {
		return value, nil
	})
}

// Override overrides the factory of an already bound key. The new factory
// receives the value built by the previous one.
func Override(b *Bindings, key typekey.Key, factory func(ctx context.Context, args Args, parent any) (any, error)) error {
	parent := b.factories[key]
	if parent == nil {
		return errors.E(ErrUnbound, "binding %s is not yet bound", key)
	}
	b.factories[key] = func(ctx context.Context, args Args) (any, error) {
		inst, err := parent(ctx, args)
		if err != nil {
			return nil, err
		}
		return factory(ctx, args, inst)
	}
	return nil
}

// Validate checks that every resolved binding that needs a factory is
// bound. Aliases, multibindings and absent bindings need none.
func Validate(b *Bindings) error {
	errs := errors.L()
	for _, key := range b.resolved.Sorted {
		bd, _ := b.resolved.Binding(key)
		if needsFactory(bd) && b.factories[key] == nil {
			errs.Append(errors.E(ErrUnbound, bd.Range(), "binding %s (%s)", key, bd.Name()))
		}
	}
	return errs.AsError()
}

// Get returns the value of the given key from the bindings of the context.
// If the value has not been built yet, it will be built lazily.
func Get[T any](ctx context.Context, key typekey.Key) (T, error) {
	var zero T

	b, err := bindingsFromContext(ctx)
	if err != nil {
		return zero, err
	}

	inst, err := getOrInit(b, key)
	if err != nil {
		return zero, err
	}
	if inst == nil {
		return zero, nil
	}

	v, ok := inst.(T)
	if !ok {
		return zero, errors.E(ErrMismatchedType, "binding %s: %T", key, inst)
	}
	return v, nil
}

// InitAll builds every value of the graph in generation order.
func InitAll(b *Bindings) error {
	logger := log.With().
		Str("action", "di.InitAll()").
		Str("graph", b.resolved.Graph.Name()).
		Logger()

	for _, key := range b.resolved.Sorted {
		logger.Trace().
			Stringer("key", key).
			Msg("Initialize binding.")

		if _, err := getOrInit(b, key); err != nil {
			return err
		}
	}
	return nil
}

// Has tells if the dependency named name is bound. Unbound optional
// dependencies should fall back to their default value.
func (a Args) Has(name string) bool {
	i := slices.Index(a.names, name)
	return i >= 0 && a.bound[i]
}

// Get returns the value of the dependency named name, nil if absent.
func (a Args) Get(name string) any {
	if i := slices.Index(a.names, name); i >= 0 {
		return a.values[i]
	}
	return nil
}

// Len returns the number of dependencies.
func (a Args) Len() int { return len(a.values) }

// At returns the value of the i-th dependency.
func (a Args) At(i int) any { return a.values[i] }

// NewLazy creates a Lazy handle computed by p.
func NewLazy(p Provider) *Lazy {
	return &Lazy{provider: p}
}

// Get returns the value, computing it on the first call.
func (l *Lazy) Get() (any, error) {
	l.once.Do(func() {
		l.value, l.err = l.provider()
	})
	return l.value, l.err
}

func bindingsFromContext(ctx context.Context) (*Bindings, error) {
	if v := ctx.Value(bindingsKey{}); v != nil {
		if u, ok := v.(*Bindings); ok {
			return u, nil
		}
		return nil, errors.E(ErrMissingBindings, "invalid bindings type %T", v)
	}
	return nil, errors.E(ErrMissingBindings)
}

func getOrInit(b *Bindings, key typekey.Key) (any, error) {
	if inst, found := b.instances[key]; found {
		return inst, nil
	}

	bd, ok := b.resolved.Binding(key)
	if !ok || !b.resolved.Reachable.Contains(key) {
		return nil, errors.E(ErrUnknownKey, "binding %s", key)
	}

	if slices.Contains(b.cycleChecker, key) {
		path := make([]string, 0, len(b.cycleChecker)+1)
		for _, k := range b.cycleChecker {
			path = append(path, k.Render(true, true))
		}
		path = append(path, key.Render(true, true))
		return nil, errors.E(ErrCircularInit, "%s", strings.Join(path, " -> "))
	}

	b.cycleChecker = append(b.cycleChecker, key)
	inst, err := build(b, bd)
	b.cycleChecker = b.cycleChecker[:len(b.cycleChecker)-1]

	if err != nil {
		return nil, err
	}

	b.instances[key] = inst
	return inst, nil
}

func build(b *Bindings, bd binding.Binding) (any, error) {
	switch bd := bd.(type) {
	case *binding.Alias:
		return getOrInit(b, bd.Target)
	case *binding.Absent:
		return nil, nil
	case *binding.Multibinding:
		return deliver(b, typekey.Of(bd.TypeKey))
	}

	factory := b.factories[bd.Key()]
	if factory == nil {
		return nil, errors.E(ErrUnbound, bd.Range(), "binding %s (%s)", bd.Key(), bd.Name())
	}

	args, err := argsOf(b, bd)
	if err != nil {
		return nil, err
	}

	inst, err := factory(b.ctx, args)
	if err != nil {
		return nil, errors.E(ErrFactoryFailed, err, "building %s (%s)", bd.Key(), bd.Name())
	}
	return inst, nil
}

func argsOf(b *Bindings, bd binding.Binding) (Args, error) {
	var params []binding.Param
	switch bd := bd.(type) {
	case *binding.Provided:
		params = bd.Params
	case *binding.ConstructorInjected:
		params = append(append(params, bd.Params...), bd.Members...)
	}

	args := Args{
		names:  make([]string, len(params)),
		values: make([]any, len(params)),
		bound:  make([]bool, len(params)),
	}
	for i, p := range params {
		args.names[i] = p.Name
		if !slices.Contains(b.resolved.DependenciesOf(bd.Key()), p.Request.Key) {
			// dropped optional request.
			continue
		}
		v, err := deliver(b, p.Request)
		if err != nil {
			return Args{}, err
		}
		args.values[i] = v
		args.bound[i] = true
	}
	return args, nil
}

// deliver returns the value of req as its request site expects it.
func deliver(b *Bindings, req typekey.Contextual) (any, error) {
	w := req.Wrapped
	if w == nil {
		w = typekey.Canonical{Type: req.Key.Type}
	}
	return deliverWrapped(b, req.Key, w)
}

func deliverWrapped(b *Bindings, key typekey.Key, w typekey.Wrapped) (any, error) {
	switch w := w.(type) {
	case typekey.Canonical:
		bd, ok := b.resolved.Binding(key)
		if ok {
			if m, isMulti := bd.(*binding.Multibinding); isMulti {
				return collect(b, m, nil)
			}
		}
		return getOrInit(b, key)
	case typekey.Provider:
		return Provider(func() (any, error) {
			return deliverWrapped(b, key, w.Inner)
		}), nil
	case typekey.Lazy:
		return NewLazy(func() (any, error) {
			return deliverWrapped(b, key, w.Inner)
		}), nil
	case typekey.Map:
		bd, ok := b.resolved.Binding(key)
		m, isMulti := bd.(*binding.Multibinding)
		if !ok || !isMulti {
			return nil, errors.E(ErrUnsupportedValue, "%s is not a map multibinding", key)
		}
		return collect(b, m, w.Value)
	}
	return nil, errors.E(ErrUnsupportedValue, "%s", w)
}

// collect builds the value of a multibinding: a slice for sets and a map
// for maps. If value is not nil, elements are delivered as value wraps
// them.
func collect(b *Bindings, m *binding.Multibinding, value typekey.Wrapped) (any, error) {
	elem := func(c binding.Contributor) (any, error) {
		if value == nil {
			return getOrInit(b, c.Key)
		}
		return deliverWrapped(b, c.Key, value)
	}

	if m.Collection == binding.Map {
		out := make(map[string]any, len(m.Contributors))
		for _, c := range m.Contributors {
			v, err := elem(c)
			if err != nil {
				return nil, err
			}
			out[c.MapKey] = v
		}
		return out, nil
	}

	out := make([]any, 0, len(m.Contributors))
	for _, c := range m.Contributors {
		v, err := elem(c)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func needsFactory(bd binding.Binding) bool {
	switch bd.Kind() {
	case binding.KindAlias, binding.KindMultibinding, binding.KindAbsent:
		return false
	}
	return true
}
