// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package descriptor

import (
	"bytes"

	"github.com/hashicorp/hcl/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/terramate-io/bindgraph/errors"
)

func decodeTOML(content []byte, fname string) (*schema, error) {
	s := &schema{}
	dec := toml.NewDecoder(bytes.NewReader(content)).DisallowUnknownFields()
	if err := dec.Decode(s); err != nil {
		return nil, tomlErr(err, fname)
	}

	// TOML values carry no position after decoding, so ranges point to the
	// file.
	rng := hcl.Range{Filename: fname}
	for i := range s.Graphs {
		g := &s.Graphs[i]
		g.rng = rng
		for j := range g.Accessors {
			g.Accessors[j].rng = rng
		}
		for j := range g.BoundInstances {
			g.BoundInstances[j].rng = rng
		}
		for j := range g.Dependencies {
			g.Dependencies[j].rng = rng
		}
		for j := range g.Multibinds {
			g.Multibinds[j].rng = rng
		}
	}
	for i := range s.Provides {
		p := &s.Provides[i]
		p.rng = rng
		setParamRanges(p.Params, rng)
		setIntoRange(p.IntoSet, rng)
		setIntoRange(p.IntoMap, rng)
	}
	for i := range s.Injects {
		in := &s.Injects[i]
		in.rng = rng
		setParamRanges(in.Params, rng)
		setParamRanges(in.Members, rng)
		setIntoRange(in.IntoSet, rng)
		setIntoRange(in.IntoMap, rng)
	}
	for i := range s.Aliases {
		s.Aliases[i].rng = rng
	}
	for i := range s.Absents {
		s.Absents[i].rng = rng
	}
	return s, nil
}

func setParamRanges(params []paramSchema, rng hcl.Range) {
	for i := range params {
		params[i].rng = rng
	}
}

func setIntoRange(into *intoSchema, rng hcl.Range) {
	if into != nil {
		into.rng = rng
	}
}

func tomlErr(err error, fname string) error {
	var strict *toml.StrictMissingError
	if errors.As(err, &strict) {
		errs := errors.L()
		for _, de := range strict.Errors {
			errs.Append(errors.E(ErrSchema, decodeRange(&de, fname),
				"unrecognized key %q", joinKey(de.Key())))
		}
		return errs.AsError()
	}

	var de *toml.DecodeError
	if errors.As(err, &de) {
		return errors.E(ErrParsing, decodeRange(de, fname), "failed to parse %s: %s", fname, de.Error())
	}
	return errors.E(ErrParsing, err, "failed to parse %s", fname)
}

func decodeRange(de *toml.DecodeError, fname string) hcl.Range {
	row, col := de.Position()
	pos := hcl.Pos{Line: row, Column: col}
	return hcl.Range{Filename: fname, Start: pos, End: pos}
}

func joinKey(k toml.Key) string {
	var b bytes.Buffer
	for i, part := range k {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(part)
	}
	return b.String()
}
