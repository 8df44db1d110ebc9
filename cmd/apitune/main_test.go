// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package main

import (
	"testing"

	"github.com/petmal/apitune/tuner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinMetric(t *testing.T) {
	instance := tuner.DataInstance{"answer": "4"}
	tests := []struct {
		name             string
		metricFn         string
		responses        []string
		wantSuccess      float64
		wantSuccessCount float64
	}{
		{
			name:             "exact match counts trimmed equality",
			metricFn:         "exact_match",
			responses:        []string{"4", " 4 ", "five"},
			wantSuccess:      1,
			wantSuccessCount: 2,
		},
		{
			name:             "exact match with no hits",
			metricFn:         "exact_match",
			responses:        []string{"5", "six"},
			wantSuccess:      0,
			wantSuccessCount: 0,
		},
		{
			name:             "contains matches substrings",
			metricFn:         "contains",
			responses:        []string{"the answer is 4", "no idea"},
			wantSuccess:      1,
			wantSuccessCount: 1,
		},
		{
			name:             "success count reports raw matches",
			metricFn:         "success_count",
			responses:        []string{"4", "4", "no"},
			wantSuccess:      1,
			wantSuccessCount: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evalFunc, err := builtinMetric(tt.metricFn, "answer")
			require.NoError(t, err)

			metrics := evalFunc(tt.responses, instance)
			assert.Equal(t, tt.wantSuccess, metrics["success"])
			assert.Equal(t, tt.wantSuccessCount, metrics["success_count"])
			expectedSuccess, ok := metrics["expected_success"].(float64)
			require.True(t, ok)
			assert.GreaterOrEqual(t, expectedSuccess, 0.0)
			assert.LessOrEqual(t, expectedSuccess, 1.0)
		})
	}
}

func TestBuiltinMetricRejectsUnknownName(t *testing.T) {
	_, err := builtinMetric("bleu", "answer")
	assert.Error(t, err)
}

func TestBuiltinMetricHandlesEmptyResponses(t *testing.T) {
	evalFunc, err := builtinMetric("success_count", "answer")
	require.NoError(t, err)

	metrics := evalFunc(nil, tuner.DataInstance{"answer": "4"})
	assert.Equal(t, 0.0, metrics["success"])
	assert.Equal(t, 0.0, metrics["success_count"])
	assert.Equal(t, 0.0, metrics["expected_success"])
}