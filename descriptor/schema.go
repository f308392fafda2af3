// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"github.com/hashicorp/hcl/v2"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/graph"
	"github.com/terramate-io/bindgraph/typekey"
)

// The schema types are shared by both file formats. The HCL loader fills
// them from blocks and the TOML loader decodes them directly.
type (
	schema struct {
		Bindgraph *bindgraphSchema `toml:"bindgraph"`
		Graphs    []graphSchema    `toml:"graph"`
		Provides  []providesSchema `toml:"provides"`
		Injects   []injectSchema   `toml:"inject"`
		Aliases   []aliasSchema    `toml:"alias"`
		Absents   []absentSchema   `toml:"absent"`
	}

	bindgraphSchema struct {
		RequiredVersion  string `toml:"required_version"`
		AllowPrereleases bool   `toml:"allow_prereleases"`
	}

	graphSchema struct {
		Name           string             `toml:"name"`
		Scope          string             `toml:"scope"`
		Excludes       []string           `toml:"excludes"`
		Accessors      []accessorSchema   `toml:"accessor"`
		BoundInstances []instanceSchema   `toml:"bound_instance"`
		Dependencies   []dependencySchema `toml:"dependency"`
		Multibinds     []multibindsSchema `toml:"multibinds"`

		rng hcl.Range
	}

	accessorSchema struct {
		Name      string `toml:"name"`
		Type      string `toml:"type"`
		Qualifier string `toml:"qualifier"`

		rng hcl.Range
	}

	instanceSchema struct {
		Name      string `toml:"name"`
		Type      string `toml:"type"`
		Qualifier string `toml:"qualifier"`

		rng hcl.Range
	}

	dependencySchema struct {
		Name      string `toml:"name"`
		Graph     string `toml:"graph"`
		Type      string `toml:"type"`
		Qualifier string `toml:"qualifier"`

		rng hcl.Range
	}

	multibindsSchema struct {
		Type       string `toml:"type"`
		Qualifier  string `toml:"qualifier"`
		AllowEmpty bool   `toml:"allow_empty"`

		rng hcl.Range
	}

	paramSchema struct {
		Name      string `toml:"name"`
		Type      string `toml:"type"`
		Qualifier string `toml:"qualifier"`
		Default   bool   `toml:"default"`

		rng hcl.Range
	}

	contributesSchema struct {
		Scope    string   `toml:"scope"`
		Origin   string   `toml:"origin"`
		Rank     *int     `toml:"rank"`
		Replaces []string `toml:"replaces"`
		Excludes []string `toml:"excludes"`
	}

	intoSchema struct {
		Type      string `toml:"type"`
		Qualifier string `toml:"qualifier"`
		Key       string `toml:"key"`

		rng hcl.Range
	}

	providesSchema struct {
		Function    string             `toml:"function"`
		Type        string             `toml:"type"`
		Qualifier   string             `toml:"qualifier"`
		Params      []paramSchema      `toml:"param"`
		Contributes *contributesSchema `toml:"contributes"`
		IntoSet     *intoSchema        `toml:"into_set"`
		IntoMap     *intoSchema        `toml:"into_map"`

		rng hcl.Range
	}

	injectSchema struct {
		Class       string             `toml:"class"`
		Type        string             `toml:"type"`
		Qualifier   string             `toml:"qualifier"`
		Params      []paramSchema      `toml:"param"`
		Members     []paramSchema      `toml:"member"`
		Contributes *contributesSchema `toml:"contributes"`
		IntoSet     *intoSchema        `toml:"into_set"`
		IntoMap     *intoSchema        `toml:"into_map"`

		rng hcl.Range
	}

	aliasSchema struct {
		Function        string             `toml:"function"`
		Type            string             `toml:"type"`
		Qualifier       string             `toml:"qualifier"`
		Target          string             `toml:"target"`
		TargetQualifier string             `toml:"target_qualifier"`
		Contributes     *contributesSchema `toml:"contributes"`

		rng hcl.Range
	}

	absentSchema struct {
		Type      string `toml:"type"`
		Qualifier string `toml:"qualifier"`

		rng hcl.Range
	}
)

// build validates the decoded schema and converts it to a File. Every
// schema error is reported.
func (s *schema) build(fname string) (*File, error) {
	errs := errors.L()
	file := &File{Filename: fname}

	if s.Bindgraph != nil {
		file.RequiredVersion = s.Bindgraph.RequiredVersion
		file.AllowPrereleases = s.Bindgraph.AllowPrereleases
	}

	names := map[string]hcl.Range{}
	for _, gs := range s.Graphs {
		if prev, ok := names[gs.Name]; ok {
			errs.Append(errors.E(ErrSchema, gs.rng,
				"graph %q already declared at %s", gs.Name, prev))
			continue
		}
		names[gs.Name] = gs.rng

		decl, err := gs.build()
		if err != nil {
			errs.Append(err)
			continue
		}
		file.Graphs = append(file.Graphs, decl)
	}

	for _, ps := range s.Provides {
		d, err := ps.build()
		errs.Append(err)
		if err == nil {
			file.Descriptors = append(file.Descriptors, d)
		}
	}
	for _, is := range s.Injects {
		d, err := is.build()
		errs.Append(err)
		if err == nil {
			file.Descriptors = append(file.Descriptors, d)
		}
	}
	for _, as := range s.Aliases {
		d, err := as.build()
		errs.Append(err)
		if err == nil {
			file.Descriptors = append(file.Descriptors, d)
		}
	}
	for _, as := range s.Absents {
		k, err := parseKey(as.Type, as.Qualifier, as.rng)
		if err != nil {
			errs.Append(err)
			continue
		}
		file.Descriptors = append(file.Descriptors, binding.Descriptor{
			Binding: &binding.Absent{TypeKey: k, Source: as.rng},
		})
	}

	if err := errs.AsError(); err != nil {
		return nil, err
	}
	return file, nil
}

func (gs graphSchema) build() (graph.Declaration, error) {
	errs := errors.L()
	if gs.Name == "" {
		errs.Append(errors.E(ErrSchema, gs.rng, "graph must have a name"))
	}

	decl := graph.Declaration{
		Name:     gs.Name,
		Scope:    gs.Scope,
		Excludes: gs.Excludes,
		Source:   gs.rng,
	}

	for _, a := range gs.Accessors {
		if a.Name == "" {
			errs.Append(errors.E(ErrSchema, a.rng, "graph %q: accessor must have a name", gs.Name))
			continue
		}
		req, err := parseRequest(a.Type, a.Qualifier, a.rng)
		if err != nil {
			errs.Append(err)
			continue
		}
		decl.Accessors = append(decl.Accessors, graph.Accessor{
			Name:    a.Name,
			Request: req,
			Source:  a.rng,
		})
	}

	for _, bi := range gs.BoundInstances {
		k, err := parseKey(bi.Type, bi.Qualifier, bi.rng)
		if err != nil {
			errs.Append(err)
			continue
		}
		decl.BoundInstances = append(decl.BoundInstances, &binding.BoundInstance{
			TypeKey: k,
			Param:   bi.Name,
			Source:  bi.rng,
		})
	}

	for _, dep := range gs.Dependencies {
		if dep.Graph == "" {
			errs.Append(errors.E(ErrSchema, dep.rng, "graph %q: dependency %q must name its graph", gs.Name, dep.Name))
			continue
		}
		k, err := parseKey(dep.Type, dep.Qualifier, dep.rng)
		if err != nil {
			errs.Append(err)
			continue
		}
		decl.Dependencies = append(decl.Dependencies, &binding.GraphDependency{
			TypeKey:  k,
			Graph:    dep.Graph,
			Accessor: dep.Name,
			Source:   dep.rng,
		})
	}

	for _, mb := range gs.Multibinds {
		req, err := parseRequest(mb.Type, mb.Qualifier, mb.rng)
		if err != nil {
			errs.Append(err)
			continue
		}
		coll, err := collectionOf(req, mb.rng)
		if err != nil {
			errs.Append(err)
			continue
		}
		decl.Multibinds = append(decl.Multibinds, graph.Multibinds{
			Key:        req.Key,
			Collection: coll,
			AllowEmpty: mb.AllowEmpty,
			Source:     mb.rng,
		})
	}

	return decl, errs.AsError()
}

func (ps providesSchema) build() (binding.Descriptor, error) {
	if ps.Function == "" {
		return binding.Descriptor{}, errors.E(ErrSchema, ps.rng, "provides must name its function")
	}
	k, err := parseKey(ps.Type, ps.Qualifier, ps.rng)
	if err != nil {
		return binding.Descriptor{}, err
	}
	params, err := buildParams(ps.Params)
	if err != nil {
		return binding.Descriptor{}, err
	}
	b := &binding.Provided{
		TypeKey:  k,
		Function: ps.Function,
		Params:   params,
		Source:   ps.rng,
	}
	return classify(b, ps.Function, ps.Contributes, ps.IntoSet, ps.IntoMap)
}

func (is injectSchema) build() (binding.Descriptor, error) {
	if is.Class == "" {
		return binding.Descriptor{}, errors.E(ErrSchema, is.rng, "inject must name its class")
	}
	typ := is.Type
	if typ == "" {
		typ = is.Class
	}
	k, err := parseKey(typ, is.Qualifier, is.rng)
	if err != nil {
		return binding.Descriptor{}, err
	}
	params, err := buildParams(is.Params)
	if err != nil {
		return binding.Descriptor{}, err
	}
	members, err := buildParams(is.Members)
	if err != nil {
		return binding.Descriptor{}, err
	}
	b := &binding.ConstructorInjected{
		TypeKey: k,
		Class:   is.Class,
		Params:  params,
		Members: members,
		Source:  is.rng,
	}
	return classify(b, is.Class, is.Contributes, is.IntoSet, is.IntoMap)
}

func (as aliasSchema) build() (binding.Descriptor, error) {
	k, err := parseKey(as.Type, as.Qualifier, as.rng)
	if err != nil {
		return binding.Descriptor{}, err
	}
	target, err := parseKey(as.Target, as.TargetQualifier, as.rng)
	if err != nil {
		return binding.Descriptor{}, err
	}
	b := &binding.Alias{
		TypeKey:  k,
		Target:   target,
		Function: as.Function,
		Source:   as.rng,
	}
	return classify(b, as.Function, as.Contributes, nil, nil)
}

func classify(b binding.Binding, name string, cs *contributesSchema, intoSet, intoMap *intoSchema) (binding.Descriptor, error) {
	d := binding.Descriptor{Binding: b}
	if cs != nil {
		origin := cs.Origin
		if origin == "" {
			origin = name
		}
		d.Contribution = &binding.Contribution{
			Scope:    cs.Scope,
			Origin:   origin,
			Replaces: cs.Replaces,
			Excludes: cs.Excludes,
		}
		if cs.Rank != nil {
			d.Contribution.Rank = *cs.Rank
			d.Contribution.HasRank = true
		}
	}

	if intoSet != nil && intoMap != nil {
		return binding.Descriptor{}, errors.E(ErrSchema, b.Range(),
			"%s contributes both into a set and into a map", name)
	}

	into, want := intoSet, binding.Set
	if intoMap != nil {
		into, want = intoMap, binding.Map
	}
	if into == nil {
		return d, nil
	}

	req, err := parseRequest(into.Type, into.Qualifier, into.rng)
	if err != nil {
		return binding.Descriptor{}, err
	}
	coll, err := collectionOf(req, into.rng)
	if err != nil {
		return binding.Descriptor{}, err
	}
	if coll != want {
		return binding.Descriptor{}, errors.E(ErrSchema, into.rng,
			"%s contributes into %s which is not a %s", name, req.Key.Render(true, true), want)
	}
	if want == binding.Map && into.Key == "" {
		return binding.Descriptor{}, errors.E(ErrSchema, into.rng,
			"%s contributes into %s without a map key", name, req.Key.Render(true, true))
	}
	d.Element = &binding.Element{
		Multibinding: req.Key,
		Collection:   coll,
		MapKey:       into.Key,
	}
	return d, nil
}

func buildParams(ps []paramSchema) ([]binding.Param, error) {
	var params []binding.Param
	for _, p := range ps {
		if p.Name == "" {
			return nil, errors.E(ErrSchema, p.rng, "parameter must have a name")
		}
		req, err := parseRequest(p.Type, p.Qualifier, p.rng)
		if err != nil {
			return nil, err
		}
		req.HasDefault = p.Default
		params = append(params, binding.Param{Name: p.Name, Request: req})
	}
	return params, nil
}

func parseRequest(expr, qualifier string, rng hcl.Range) (typekey.Contextual, error) {
	if expr == "" {
		return typekey.Contextual{}, errors.E(ErrSchema, rng, "missing type")
	}
	req, err := typekey.Parse(expr, qualifier)
	if err != nil {
		return typekey.Contextual{}, errors.E(ErrSchema, rng, err)
	}
	return req, nil
}

func parseKey(expr, qualifier string, rng hcl.Range) (typekey.Key, error) {
	req, err := parseRequest(expr, qualifier, rng)
	if err != nil {
		return typekey.Key{}, err
	}
	return req.Key, nil
}

func collectionOf(req typekey.Contextual, rng hcl.Range) (binding.Collection, error) {
	if _, ok := req.Wrapped.(typekey.Map); ok {
		return binding.Map, nil
	}
	if req.Key.Type.SimpleName() == "Set" {
		return binding.Set, nil
	}
	return 0, errors.E(ErrSchema, rng, "%s is not a set or map type", req.Key.Render(true, true))
}
