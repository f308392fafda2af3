// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package printer prints bindgraph results and failures to an io.Writer with
// a consistent style for errors, warnings and resolved graphs.
package printer
