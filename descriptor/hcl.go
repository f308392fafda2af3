// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"maps"
	"slices"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/zclconf/go-cty/cty"
)

func parseHCL(content []byte, fname string) (*schema, error) {
	parser := hclparse.NewParser()
	hclfile, diags := parser.ParseHCL(content, fname)
	if diags.HasErrors() {
		return nil, errors.E(ErrParsing, diags, "failed to parse %s", fname)
	}

	body := hclfile.Body.(*hclsyntax.Body)
	errs := errors.L()
	s := &schema{}

	for _, name := range sortedAttrs(body) {
		attr := body.Attributes[name]
		errs.Append(errors.E(ErrSchema, attr.SrcRange, "unrecognized attribute %q", name))
	}

	for _, block := range body.Blocks {
		rng := block.DefRange()
		switch block.Type {
		case "bindgraph":
			if s.Bindgraph != nil {
				errs.Append(errors.E(ErrSchema, rng, "multiple bindgraph blocks"))
				continue
			}
			s.Bindgraph = &bindgraphSchema{}
			errs.Append(decodeBlock(block, 0, attrs{
				"required_version":  strAttr(&s.Bindgraph.RequiredVersion),
				"allow_prereleases": boolAttr(&s.Bindgraph.AllowPrereleases),
			}, nil))
		case "graph":
			gs := graphSchema{rng: rng}
			errs.Append(decodeGraph(block, &gs))
			s.Graphs = append(s.Graphs, gs)
		case "provides":
			ps := providesSchema{rng: rng}
			errs.Append(decodeProvides(block, &ps))
			s.Provides = append(s.Provides, ps)
		case "inject":
			is := injectSchema{rng: rng}
			errs.Append(decodeInject(block, &is))
			s.Injects = append(s.Injects, is)
		case "alias":
			as := aliasSchema{rng: rng}
			errs.Append(decodeAlias(block, &as))
			s.Aliases = append(s.Aliases, as)
		case "absent":
			as := absentSchema{rng: rng}
			errs.Append(decodeBlock(block, 0, attrs{
				"type":      strAttr(&as.Type),
				"qualifier": strAttr(&as.Qualifier),
			}, nil))
			s.Absents = append(s.Absents, as)
		default:
			errs.Append(errors.E(ErrSchema, rng, "unrecognized block %q", block.Type))
		}
	}

	if err := errs.AsError(); err != nil {
		return nil, err
	}
	return s, nil
}

type (
	attrs  map[string]func(attr *hclsyntax.Attribute, val cty.Value) error
	blocks map[string]func(block *hclsyntax.Block) error
)

// decodeBlock checks the number of labels of block and dispatches its
// attributes and sub blocks. Unknown attributes and blocks are errors.
func decodeBlock(block *hclsyntax.Block, nlabels int, as attrs, bs blocks) error {
	errs := errors.L()
	if len(block.Labels) != nlabels {
		errs.Append(errors.E(ErrSchema, block.DefRange(),
			"%s block expects %d label(s) but %d were given", block.Type, nlabels, len(block.Labels)))
	}

	for _, name := range sortedAttrs(block.Body) {
		attr := block.Body.Attributes[name]
		decode, ok := as[name]
		if !ok {
			errs.Append(errors.E(ErrSchema, attr.SrcRange,
				"unrecognized attribute %q in %s block", name, block.Type))
			continue
		}
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			errs.Append(errors.E(ErrEval, diags, `failed to evaluate the "%s" attribute`, name))
			continue
		}
		errs.Append(decode(attr, val))
	}

	for _, sub := range block.Body.Blocks {
		decode, ok := bs[sub.Type]
		if !ok {
			errs.Append(errors.E(ErrSchema, sub.DefRange(),
				"unrecognized block %q in %s block", sub.Type, block.Type))
			continue
		}
		errs.Append(decode(sub))
	}
	return errs.AsError()
}

func decodeGraph(block *hclsyntax.Block, gs *graphSchema) error {
	if len(block.Labels) == 1 {
		gs.Name = block.Labels[0]
	}
	return decodeBlock(block, 1, attrs{
		"scope":    strAttr(&gs.Scope),
		"excludes": strListAttr(&gs.Excludes),
	}, blocks{
		"accessor": func(sub *hclsyntax.Block) error {
			a := accessorSchema{rng: sub.DefRange(), Name: label(sub)}
			err := decodeBlock(sub, 1, typeAttrs(&a.Type, &a.Qualifier), nil)
			gs.Accessors = append(gs.Accessors, a)
			return err
		},
		"bound_instance": func(sub *hclsyntax.Block) error {
			bi := instanceSchema{rng: sub.DefRange(), Name: label(sub)}
			err := decodeBlock(sub, 1, typeAttrs(&bi.Type, &bi.Qualifier), nil)
			gs.BoundInstances = append(gs.BoundInstances, bi)
			return err
		},
		"dependency": func(sub *hclsyntax.Block) error {
			dep := dependencySchema{rng: sub.DefRange(), Name: label(sub)}
			as := typeAttrs(&dep.Type, &dep.Qualifier)
			as["graph"] = strAttr(&dep.Graph)
			err := decodeBlock(sub, 1, as, nil)
			gs.Dependencies = append(gs.Dependencies, dep)
			return err
		},
		"multibinds": func(sub *hclsyntax.Block) error {
			mb := multibindsSchema{rng: sub.DefRange()}
			as := typeAttrs(&mb.Type, &mb.Qualifier)
			as["allow_empty"] = boolAttr(&mb.AllowEmpty)
			err := decodeBlock(sub, 0, as, nil)
			gs.Multibinds = append(gs.Multibinds, mb)
			return err
		},
	})
}

func decodeProvides(block *hclsyntax.Block, ps *providesSchema) error {
	ps.Function = label(block)
	return decodeBlock(block, 1, typeAttrs(&ps.Type, &ps.Qualifier), blocks{
		"param":       paramBlock(&ps.Params),
		"contributes": contributesBlock(&ps.Contributes),
		"into_set":    intoBlock(&ps.IntoSet, false),
		"into_map":    intoBlock(&ps.IntoMap, true),
	})
}

func decodeInject(block *hclsyntax.Block, is *injectSchema) error {
	is.Class = label(block)
	return decodeBlock(block, 1, typeAttrs(&is.Type, &is.Qualifier), blocks{
		"param":       paramBlock(&is.Params),
		"member":      paramBlock(&is.Members),
		"contributes": contributesBlock(&is.Contributes),
		"into_set":    intoBlock(&is.IntoSet, false),
		"into_map":    intoBlock(&is.IntoMap, true),
	})
}

func decodeAlias(block *hclsyntax.Block, as *aliasSchema) error {
	as.Function = label(block)
	fields := typeAttrs(&as.Type, &as.Qualifier)
	fields["target"] = strAttr(&as.Target)
	fields["target_qualifier"] = strAttr(&as.TargetQualifier)
	return decodeBlock(block, 1, fields, blocks{
		"contributes": contributesBlock(&as.Contributes),
	})
}

func paramBlock(params *[]paramSchema) func(*hclsyntax.Block) error {
	return func(sub *hclsyntax.Block) error {
		p := paramSchema{rng: sub.DefRange(), Name: label(sub)}
		as := typeAttrs(&p.Type, &p.Qualifier)
		as["default"] = boolAttr(&p.Default)
		err := decodeBlock(sub, 1, as, nil)
		*params = append(*params, p)
		return err
	}
}

func contributesBlock(cs **contributesSchema) func(*hclsyntax.Block) error {
	return func(sub *hclsyntax.Block) error {
		if *cs != nil {
			return errors.E(ErrSchema, sub.DefRange(), "multiple contributes blocks")
		}
		c := &contributesSchema{}
		*cs = c
		return decodeBlock(sub, 0, attrs{
			"scope":    strAttr(&c.Scope),
			"origin":   strAttr(&c.Origin),
			"rank":     intAttr(&c.Rank),
			"replaces": strListAttr(&c.Replaces),
			"excludes": strListAttr(&c.Excludes),
		}, nil)
	}
}

func intoBlock(into **intoSchema, isMap bool) func(*hclsyntax.Block) error {
	return func(sub *hclsyntax.Block) error {
		if *into != nil {
			return errors.E(ErrSchema, sub.DefRange(), "multiple %s blocks", sub.Type)
		}
		s := &intoSchema{rng: sub.DefRange()}
		*into = s
		as := typeAttrs(&s.Type, &s.Qualifier)
		if isMap {
			as["key"] = strAttr(&s.Key)
		}
		return decodeBlock(sub, 0, as, nil)
	}
}

func typeAttrs(typ, qualifier *string) attrs {
	return attrs{
		"type":      strAttr(typ),
		"qualifier": strAttr(qualifier),
	}
}

func strAttr(dst *string) func(*hclsyntax.Attribute, cty.Value) error {
	return func(attr *hclsyntax.Attribute, val cty.Value) error {
		if !val.Type().Equals(cty.String) || val.IsNull() {
			return typeErr(attr, val, "a string")
		}
		*dst = val.AsString()
		return nil
	}
}

func boolAttr(dst *bool) func(*hclsyntax.Attribute, cty.Value) error {
	return func(attr *hclsyntax.Attribute, val cty.Value) error {
		if !val.Type().Equals(cty.Bool) || val.IsNull() {
			return typeErr(attr, val, "a boolean")
		}
		*dst = val.True()
		return nil
	}
}

func intAttr(dst **int) func(*hclsyntax.Attribute, cty.Value) error {
	return func(attr *hclsyntax.Attribute, val cty.Value) error {
		if !val.Type().Equals(cty.Number) || val.IsNull() {
			return typeErr(attr, val, "an integer")
		}
		bf := val.AsBigFloat()
		if !bf.IsInt() {
			return typeErr(attr, val, "an integer")
		}
		i, _ := bf.Int64()
		n := int(i)
		*dst = &n
		return nil
	}
}

func strListAttr(dst *[]string) func(*hclsyntax.Attribute, cty.Value) error {
	return func(attr *hclsyntax.Attribute, val cty.Value) error {
		typ := val.Type()
		if val.IsNull() || !(typ.IsListType() || typ.IsTupleType() || typ.IsSetType()) {
			return typeErr(attr, val, "a list of strings")
		}
		var out []string
		for it := val.ElementIterator(); it.Next(); {
			_, elem := it.Element()
			if !elem.Type().Equals(cty.String) || elem.IsNull() {
				return typeErr(attr, val, "a list of strings")
			}
			out = append(out, elem.AsString())
		}
		*dst = out
		return nil
	}
}

func typeErr(attr *hclsyntax.Attribute, val cty.Value, want string) error {
	return errors.E(ErrSchema, attr.SrcRange,
		`%q attribute expects %s but a value of type %s was given (value %s)`,
		attr.Name, want, val.Type().FriendlyName(), hclwrite.TokensForValue(val).Bytes())
}

func label(block *hclsyntax.Block) string {
	if len(block.Labels) == 0 {
		return ""
	}
	return block.Labels[0]
}

func sortedAttrs(body *hclsyntax.Body) []string {
	return slices.Sorted(maps.Keys(body.Attributes))
}
