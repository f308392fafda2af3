// Copyright 2025 Terramate GmbH
// SPDX-License-Identifier: MPL-2.0

package test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/madlambda/spells/assert"
)

var testRootTempdir string

func init() {
	testRootTempdir = os.Getenv("BINDGRAPH_TEST_ROOT_TEMPDIR")
}

// TempDir creates a temporary directory.
func TempDir(t testing.TB) string {
	t.Helper()
	if testRootTempdir == "" {
		return t.TempDir()
	}
	dir, err := os.MkdirTemp(testRootTempdir, "bindgraph-test")
	assert.NoError(t, err, "creating temp directory")
	t.Cleanup(func() {
		_ = os.RemoveAll(dir)
	})
	return dir
}

// WriteFile writes content to a filename inside dir directory.
// If dir is empty string then the file is created inside a temporary directory.
func WriteFile(t testing.TB, dir string, filename string, content string) string {
	t.Helper()

	if dir == "" {
		dir = TempDir(t)
	}

	path := filepath.Join(dir, filename)
	assert.NoError(t, os.MkdirAll(filepath.Dir(path), 0700), "creating dir of %s", path)
	assert.NoError(t, os.WriteFile(path, []byte(content), 0600), "writing test file %s", path)
	return path
}

// ReadFile reads the content of fname from dir directory.
func ReadFile(t testing.TB, dir, fname string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, fname))
	assert.NoError(t, err, "reading file")
	return data
}

// DoesNotExist calls os.Stat and asserts that the entry does not exist
func DoesNotExist(t testing.TB, dir, fname string) {
	t.Helper()
	_, err := os.Stat(filepath.Join(dir, fname))
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	assert.NoError(t, err, "stat error")

	t.Fatalf("should not exist: %s", fname)
}

// NonExistingFile returns the path of a file that doesn't exist.
func NonExistingFile(t testing.TB) string {
	t.Helper()
	return filepath.Join(TempDir(t), "non-existing-file")
}
