// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package test_test

import (
	"testing"

	"github.com/madlambda/spells/assert"
	"github.com/terramate-io/bindgraph/test"
)

func TestResolveGraph(t *testing.T) {
	t.Parallel()

	file := test.ParseDescriptor(t, `
	graph "AppGraph" {
	  accessor "app" {
	    type = "App"
	  }
	}

	provides "AppModule.provideApp" {
	  type = "App"

	  param "repo" {
	    type = "Repo"
	  }
	}

	provides "AppModule.provideRepo" {
	  type = "Repo"
	}`)

	res := test.ResolveGraph(t, file, "AppGraph")
	test.AssertKeys(t, res.Sorted, []string{"Repo", "App"})
	test.AssertEqualSets(t, test.Keys(res.Roots), []string{"App"})
}

func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := test.TempDir(t)
	test.DoesNotExist(t, dir, "app.hcl")

	test.WriteFile(t, dir, "graphs/app.hcl", `graph "AppGraph" {}`)
	assert.EqualStrings(t, `graph "AppGraph" {}`, string(test.ReadFile(t, dir, "graphs/app.hcl")))
	test.DoesNotExist(t, test.NonExistingFile(t), "")
}
