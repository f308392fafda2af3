// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Bindgraph resolves the dependency injection graphs declared in descriptor
// files, reporting missing bindings and cycles, and prints the generation
// order of the bindings.
// For details on how to use it just run:
//
//	bindgraph --help
package main

import (
	"os"

	"github.com/terramate-io/bindgraph/cmd/bindgraph/cli"
)

func main() {
	status := cli.Exec(os.Args[1:], os.Stdout, os.Stderr)
	os.Exit(int(status))
}
