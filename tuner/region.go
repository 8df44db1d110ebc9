// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"math"
)

// UnboundedMaxTokens marks a trial without an output-length bound, the
// endpoint default for chat models.
const UnboundedMaxTokens = math.MaxInt

// RegionKey scopes the validity frontiers: configurations sharing a model,
// prompt (or messages) template, and stop template probe the same region.
type RegionKey struct {
	Model  string
	Prompt string
	Stop   string
}

// RegionIndex maintains, per region key, the max-valid and min-invalid
// completion-count frontiers over max_tokens. It is a heuristic index: the
// frontiers are best-effort and queries never fail.
type RegionIndex struct {
	maxValidN   map[RegionKey]map[int]int
	minInvalidN map[RegionKey]map[int]int
}

// NewRegionIndex creates an empty region index.
func NewRegionIndex() *RegionIndex {
	return &RegionIndex{
		maxValidN:   make(map[RegionKey]map[int]int),
		minInvalidN: make(map[RegionKey]map[int]int),
	}
}

// MaxValidN returns the largest n known to satisfy the inference budget at
// the given max_tokens, defaulting to 1. Validity at a larger max_tokens
// implies validity at smaller, so entries at keys >= maxTokens qualify.
func (x *RegionIndex) MaxValidN(key RegionKey, maxTokens int) int {
	result := 1
	for k, n := range x.maxValidN[key] {
		if k >= maxTokens && n > result {
			result = n
		}
	}
	return result
}

// MinInvalidN returns the smallest n known to violate the inference budget at
// the given max_tokens, if any. Invalidity at a smaller max_tokens implies
// invalidity at larger, so entries at keys <= maxTokens qualify.
func (x *RegionIndex) MinInvalidN(key RegionKey, maxTokens int) (int, bool) {
	result, found := 0, false
	for k, n := range x.minInvalidN[key] {
		if k <= maxTokens && (!found || n < result) {
			result, found = n, true
		}
	}
	return result, found
}

// MarkValid records that n completions satisfied the inference budget at the
// given max_tokens.
func (x *RegionIndex) MarkValid(key RegionKey, maxTokens int, n int) {
	frontier := x.maxValidN[key]
	if frontier == nil {
		frontier = make(map[int]int)
		x.maxValidN[key] = frontier
	}
	if existing, ok := frontier[maxTokens]; !ok || n > existing {
		frontier[maxTokens] = n
	}
}

// MarkInvalid records that n completions violated the inference budget at the
// given max_tokens.
func (x *RegionIndex) MarkInvalid(key RegionKey, maxTokens int, n int) {
	frontier := x.minInvalidN[key]
	if frontier == nil {
		frontier = make(map[int]int)
		x.minInvalidN[key] = frontier
	}
	if existing, ok := frontier[maxTokens]; !ok || n < existing {
		frontier[maxTokens] = n
	}
}
