// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package descriptor loads graph declarations and classified binding
// descriptors from HCL and TOML descriptor files.
package descriptor

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/binding"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/graph"
)

const (
	// ErrParsing indicates a descriptor file could not be read or parsed.
	ErrParsing errors.Kind = "parsing descriptor"

	// ErrEval indicates an attribute value could not be evaluated.
	ErrEval errors.Kind = "evaluating descriptor attribute"

	// ErrSchema indicates a descriptor file is well formed but doesn't
	// follow the descriptor schema.
	ErrSchema errors.Kind = "invalid descriptor"
)

// File is a loaded descriptor file.
type File struct {
	Filename string

	// RequiredVersion is the version constraint of the bindgraph block,
	// if any.
	RequiredVersion  string
	AllowPrereleases bool

	Graphs      []graph.Declaration
	Descriptors []binding.Descriptor
}

// Load loads the descriptor file fname. The format is chosen by the file
// extension: ".toml" files are TOML and anything else is HCL.
func Load(fname string) (*File, error) {
	content, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.E(ErrParsing, err, "reading %s", fname)
	}
	return Parse(content, fname)
}

// Parse parses a descriptor file content. The fname is used to pick the
// format and for error ranges.
func Parse(content []byte, fname string) (*File, error) {
	logger := log.With().
		Str("action", "descriptor.Parse()").
		Str("file", fname).
		Logger()

	var (
		s   *schema
		err error
	)
	if filepath.Ext(fname) == ".toml" {
		logger.Trace().Msg("Decode TOML descriptor.")
		s, err = decodeTOML(content, fname)
	} else {
		logger.Trace().Msg("Parse HCL descriptor.")
		s, err = parseHCL(content, fname)
	}
	if err != nil {
		return nil, err
	}

	file, err := s.build(fname)
	if err != nil {
		return nil, err
	}

	logger.Debug().
		Int("graphs", len(file.Graphs)).
		Int("descriptors", len(file.Descriptors)).
		Msg("Descriptor loaded.")

	return file, nil
}

// Merge merges the given files into one, in order. Version constraints are
// not merged and should be checked per file.
func Merge(files ...*File) *File {
	out := &File{}
	for _, f := range files {
		out.Graphs = append(out.Graphs, f.Graphs...)
		out.Descriptors = append(out.Descriptors, f.Descriptors...)
	}
	if len(files) == 1 {
		out.Filename = files[0].Filename
		out.RequiredVersion = files[0].RequiredVersion
		out.AllowPrereleases = files[0].AllowPrereleases
	}
	return out
}
