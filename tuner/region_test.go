// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var testRegionKey = RegionKey{Model: "text-ada-001", Prompt: "prompt:0", Stop: ""}

func TestRegionIndexDefaults(t *testing.T) {
	index := NewRegionIndex()
	assert.Equal(t, 1, index.MaxValidN(testRegionKey, 100))
	_, found := index.MinInvalidN(testRegionKey, 100)
	assert.False(t, found)
}

func TestRegionIndexMaxValidN(t *testing.T) {
	index := NewRegionIndex()
	index.MarkValid(testRegionKey, 100, 4)
	index.MarkValid(testRegionKey, 200, 8)
	index.MarkValid(testRegionKey, 100, 2) // smaller n never shrinks the frontier

	tests := []struct {
		name      string
		maxTokens int
		want      int
	}{
		{name: "validity at larger max_tokens applies", maxTokens: 50, want: 8},
		{name: "exact key", maxTokens: 200, want: 8},
		{name: "between keys", maxTokens: 150, want: 8},
		{name: "beyond all keys falls back to default", maxTokens: 300, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, index.MaxValidN(testRegionKey, tt.maxTokens))
		})
	}
}

func TestRegionIndexMinInvalidN(t *testing.T) {
	index := NewRegionIndex()
	index.MarkInvalid(testRegionKey, 100, 16)
	index.MarkInvalid(testRegionKey, 50, 32)
	index.MarkInvalid(testRegionKey, 100, 64) // larger n never grows the frontier

	tests := []struct {
		name      string
		maxTokens int
		want      int
		found     bool
	}{
		{name: "invalidity at smaller max_tokens applies", maxTokens: 200, want: 16, found: true},
		{name: "exact key", maxTokens: 100, want: 16, found: true},
		{name: "only the smaller key qualifies", maxTokens: 60, want: 32, found: true},
		{name: "below all keys", maxTokens: 10, found: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, found := index.MinInvalidN(testRegionKey, tt.maxTokens)
			assert.Equal(t, tt.found, found)
			if tt.found {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestRegionIndexKeysAreIndependent(t *testing.T) {
	index := NewRegionIndex()
	other := RegionKey{Model: "gpt-4", Prompt: "prompt:0", Stop: ""}
	index.MarkValid(testRegionKey, 100, 8)
	index.MarkInvalid(testRegionKey, 100, 16)

	assert.Equal(t, 1, index.MaxValidN(other, 100))
	_, found := index.MinInvalidN(other, 100)
	assert.False(t, found)
}

func TestRegionIndexFrontierOrdering(t *testing.T) {
	// after arbitrary updates the valid frontier stays below the invalid one
	index := NewRegionIndex()
	index.MarkValid(testRegionKey, 100, 4)
	index.MarkInvalid(testRegionKey, 100, 8)
	index.MarkValid(testRegionKey, 100, 6)
	index.MarkInvalid(testRegionKey, 100, 7)

	maxValid := index.MaxValidN(testRegionKey, 100)
	minInvalid, found := index.MinInvalidN(testRegionKey, 100)
	assert.True(t, found)
	assert.Less(t, maxValid, minInvalid)
}
