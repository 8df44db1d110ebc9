// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package testutils provides utilities for managing test files and making
// assertions in tests.
package testutils

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Ptr returns a pointer to the given value.
func Ptr[T any](value T) *T {
	return &value
}

// CreateMockFile creates a temporary file with the given name pattern and
// contents, returning the file path.
func CreateMockFile(t *testing.T, namePattern string, contents []byte) string {
	fp, err := os.CreateTemp(t.TempDir(), namePattern)
	if err != nil {
		t.Fatalf("failed to create test file: %v\n", err)
	}
	defer fp.Close()

	if _, err := fp.Write(contents); err != nil {
		t.Fatalf("failed to write test file: %v\n", err)
	}

	return fp.Name()
}

// AssertContainsAll verifies that the given contents string contains all specified elements.
func AssertContainsAll(t *testing.T, contents string, elements []string) {
	for i := range elements {
		assert.Contains(t, contents, elements[i])
	}
}

// ReadFile reads the entire file at the given path and returns its contents.
func ReadFile(t *testing.T, filePath string) []byte {
	contents, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("failed to read test file: %v\n", err)
	}
	return contents
}
