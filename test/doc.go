// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package test provides helpers for the bindgraph tests: temporary descriptor
// files, parsed descriptors and resolved graphs.
package test
