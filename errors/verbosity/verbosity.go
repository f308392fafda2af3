// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

// Package verbosity defines the verbosity levels of printed errors.
package verbosity

const (
	// V0 prints only the error messages.
	V0 int = iota
	// V1 adds binding stacks and hints.
	V1
	// V2 adds every detail, including the causes of detailed errors.
	V2
)
