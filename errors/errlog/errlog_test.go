// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package errlog_test

import (
	"bytes"
	stderrors "errors"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/hashicorp/hcl/v2"
	"github.com/madlambda/spells/assert"
	"github.com/rs/zerolog"
	"github.com/terramate-io/bindgraph/errors"
	"github.com/terramate-io/bindgraph/errors/errlog"
)

type entry struct {
	Level   string   `json:"level"`
	Message string   `json:"message"`
	Kind    string   `json:"kind"`
	File    string   `json:"file"`
	Stack   string   `json:"stack"`
	Details []string `json:"details"`
	Errors  int      `json:"errors"`
}

func entries(t *testing.T, buf *bytes.Buffer) []entry {
	t.Helper()
	var got []entry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var e entry
		assert.NoError(t, json.Unmarshal([]byte(line), &e))
		got = append(got, e)
	}
	return got
}

func TestErrlogList(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	rng := hcl.Range{
		Filename: "app.hcl",
		Start:    hcl.Pos{Line: 3, Column: 1, Byte: 20},
		End:      hcl.Pos{Line: 3, Column: 8, Byte: 27},
	}
	err := errors.L(
		errors.E(errors.Kind("missing binding"), rng, "Repo cannot be provided"),
		errors.E(errors.Kind("binding cycle"), errors.Stack("Foo -> Bar -> Foo"), "Foo"),
		stderrors.New("graph AdminGraph was canceled"),
	)
	errlog.Error(logger, "resolving graphs", err)

	want := []entry{
		{
			Level:   "error",
			Message: "Repo cannot be provided",
			Kind:    "missing binding",
			File:    rng.String(),
		},
		{
			Level:   "error",
			Message: "Foo",
			Kind:    "binding cycle",
			Stack:   "Foo -> Bar -> Foo",
		},
		{
			Level:   "error",
			Message: "graph AdminGraph was canceled",
		},
		{
			Level:   "error",
			Message: "resolving graphs",
			Errors:  3,
		},
	}
	if diff := cmp.Diff(want, entries(t, &buf)); diff != "" {
		t.Fatalf("log entries mismatch (-want +got):\n%s", diff)
	}
}

func TestErrlogWarn(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	errlog.Warn(logger, "loading", nil)
	assert.EqualInts(t, 0, buf.Len())

	errlog.Warn(logger, "loading", errors.E(errors.Kind("invalid descriptor"), "unrecognized block"))
	want := []entry{
		{
			Level:   "warn",
			Message: "loading: unrecognized block",
			Kind:    "invalid descriptor",
		},
	}
	if diff := cmp.Diff(want, entries(t, &buf)); diff != "" {
		t.Fatalf("log entries mismatch (-want +got):\n%s", diff)
	}
}

func TestErrlogDetailedError(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	err := errors.D("descriptors require another bindgraph version").
		WithCode(errors.Kind("version check error")).
		WithCause(stderrors.New("version 0.1.0 does not satisfy > 99.0.0")).
		WithDetailf(0, "running bindgraph %s", "0.1.0")
	errlog.Error(logger, "loading descriptors", err)

	want := []entry{
		{
			Level:   "error",
			Message: "loading descriptors: descriptors require another bindgraph version: version 0.1.0 does not satisfy > 99.0.0",
			Kind:    "version check error",
			Details: []string{"running bindgraph 0.1.0"},
		},
	}
	if diff := cmp.Diff(want, entries(t, &buf)); diff != "" {
		t.Fatalf("log entries mismatch (-want +got):\n%s", diff)
	}
}
