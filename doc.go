// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package bindgraph resolves dependency injection binding graphs.
// Every graph of a compilation unit is assembled from its classified
// binding descriptors, resolved from its accessors and sorted into a
// deterministic generation order, with deferrable dependencies breaking
// dependency cycles.
package bindgraph
