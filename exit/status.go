// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package exit provides the exit codes of bindgraph.
package exit

// Status represents the exit status of a command.
type Status int

// Exit codes of bindgraph.
const (
	// OK means every graph resolved.
	OK Status = iota
	// Failed means at least one graph failed to resolve or the descriptors
	// are invalid.
	Failed
	// Usage means the command line is invalid.
	Usage
)
