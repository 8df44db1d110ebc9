// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"testing"

	"github.com/petmal/apitune/pkg/testutils"
	"github.com/petmal/apitune/providers"
	"github.com/stretchr/testify/assert"
)

func TestFingerprintStability(t *testing.T) {
	base := providers.RequestParams{
		Model:     "text-davinci-003",
		Prompt:    "say hi",
		Stop:      []string{"\n", "###"},
		MaxTokens: 50,
		N:         2,
	}

	tests := []struct {
		name  string
		other providers.RequestParams
		equal bool
	}{
		{
			name:  "identical bundle",
			other: base.Clone(),
			equal: true,
		},
		{
			name: "different model",
			other: func() providers.RequestParams {
				p := base.Clone()
				p.Model = "text-ada-001"
				return p
			}(),
			equal: false,
		},
		{
			name: "different prompt",
			other: func() providers.RequestParams {
				p := base.Clone()
				p.Prompt = "say bye"
				return p
			}(),
			equal: false,
		},
		{
			name: "reordered stop sequences",
			other: func() providers.RequestParams {
				p := base.Clone()
				p.Stop = []string{"###", "\n"}
				return p
			}(),
			equal: false,
		},
		{
			name: "different completion count",
			other: func() providers.RequestParams {
				p := base.Clone()
				p.N = 3
				return p
			}(),
			equal: false,
		},
		{
			name: "added sampling control",
			other: func() providers.RequestParams {
				p := base.Clone()
				p.Temperature = testutils.Ptr(0.5)
				return p
			}(),
			equal: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.equal {
				assert.Equal(t, Fingerprint(base), Fingerprint(tt.other))
			} else {
				assert.NotEqual(t, Fingerprint(base), Fingerprint(tt.other))
			}
		})
	}
}

func TestFingerprintIgnoresMappingInsertionOrder(t *testing.T) {
	first := providers.RequestParams{
		Model:  "gpt-4",
		Prompt: "test",
		Extra:  map[string]any{},
	}
	first.Extra["logprobs"] = 1
	first.Extra["user"] = "tester"

	second := providers.RequestParams{
		Model:  "gpt-4",
		Prompt: "test",
		Extra:  map[string]any{},
	}
	second.Extra["user"] = "tester"
	second.Extra["logprobs"] = 1

	assert.Equal(t, Fingerprint(first), Fingerprint(second))
}

func TestFingerprintMessageOrderMatters(t *testing.T) {
	first := providers.RequestParams{
		Model: "gpt-4",
		Messages: []providers.Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hi"},
		},
	}
	second := providers.RequestParams{
		Model: "gpt-4",
		Messages: []providers.Message{
			{Role: "user", Content: "hi"},
			{Role: "system", Content: "be brief"},
		},
	}
	assert.NotEqual(t, Fingerprint(first), Fingerprint(second))
}

func TestFingerprintOmitsUnsetFields(t *testing.T) {
	// a zero optional field is indistinguishable from an absent one
	first := providers.RequestParams{Model: "gpt-4", Prompt: "x"}
	second := providers.RequestParams{Model: "gpt-4", Prompt: "x", Extra: nil, Stop: nil}
	assert.Equal(t, Fingerprint(first), Fingerprint(second))
}
