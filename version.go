// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package bindgraph

import (
	_ "embed"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/versions"
)

//go:embed VERSION
var version string

// ErrVersion indicates failure when checking bindgraph version.
const ErrVersion errors.Kind = "version check error"

// Version of bindgraph.
func Version() string {
	return strings.TrimSpace(version)
}

// CheckVersion checks bindgraph version against the given constraint.
func CheckVersion(vconstraint string, allowPrereleases bool) error {
	return CheckVersionFor(Version(), vconstraint, allowPrereleases)
}

// CheckVersionFor checks the given version against the constraint.
func CheckVersionFor(version, vconstraint string, allowPrereleases bool) error {
	log.Trace().
		Str("action", "bindgraph.CheckVersionFor()").
		Str("version", version).
		Str("constraint", vconstraint).
		Bool("prereleases", allowPrereleases).
		Msg("Checking version constraint.")

	if err := versions.Check(version, vconstraint, allowPrereleases); err != nil {
		return errors.E(ErrVersion, err)
	}
	return nil
}
