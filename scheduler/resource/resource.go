// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package resource limits the concurrent use of a resource by scheduled
// visits.
package resource

import "context"

// R is the resource interface.
// Every successful Acquire must be followed by a Release.
type R interface {
	Acquire(ctx context.Context) error
	Release()
}
