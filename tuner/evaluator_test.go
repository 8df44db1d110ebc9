// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/petmal/apitune/cache"
	"github.com/petmal/apitune/config"
	"github.com/petmal/apitune/pkg/logging"
	"github.com/petmal/apitune/pkg/testutils"
	"github.com/petmal/apitune/providers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	adaPriceInput  = 0.0004
	adaPriceOutput = 0.0004
)

// scoreByCount scores an instance by the number of aggregated responses.
func scoreByCount(responses []string, instance DataInstance) map[string]any {
	return map[string]any{"score": float64(len(responses))}
}

func makeData(n int) []DataInstance {
	data := make([]DataInstance, 0, n)
	for i := 0; i < n; i++ {
		data = append(data, DataInstance{"prompt": fmt.Sprintf("instance-%d", i)})
	}
	return data
}

// newEvalTuner creates a tuner with an open run so eval can be driven directly.
func newEvalTuner(t *testing.T, endpoint providers.Endpoint, req TuneRequest) *Tuner {
	t.Helper()
	cfg := config.Config{
		Cache: config.CacheConfig{Root: t.TempDir(), Seed: config.DefaultSeed},
		Retry: config.RetryConfig{RetryTime: time.Millisecond, RetryTimeout: 2 * time.Millisecond},
	}
	tn := NewTuner(endpoint, cfg, logging.NewNopLogger())
	if req.Metric == "" {
		req.Metric = "score"
	}
	if req.Mode == "" {
		req.Mode = ModeMax
	}
	if req.EvalFunc == nil {
		req.EvalFunc = scoreByCount
	}
	if req.Algorithm == nil {
		req.Algorithm = func(cfg AlgorithmConfig) (Algorithm, error) { return nil, nil }
	}
	require.NoError(t, tn.prepareRun(req))
	store, err := cache.OpenDiskStore(tn.cacheRoot, tn.seed, false)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	tn.caller = tn.newCaller(store)
	return tn
}

func TestEvalPrunesByInvalidRegionWithoutCalls(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("x", 4, 10)}
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data:            makeData(20),
		InferenceBudget: testutils.Ptr(0.001),
	})
	regionKey := RegionKey{Model: "text-ada-001", Prompt: "prompt:0"}
	tn.region.MarkInvalid(regionKey, 50, 5)

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "max_tokens": 50, "n": 8, "prompt": 0}, true, false)
	require.NoError(t, err)

	inferenceCost, _ := result.Float("inference_cost")
	assert.True(t, math.IsInf(inferenceCost, 1))
	score, _ := result.Float("score")
	assert.True(t, math.IsInf(score, -1)) // worst case for max mode
	cost, _ := result.Float("cost")
	assert.Zero(t, cost)
	assert.Zero(t, endpoint.calls())
}

func TestEvalPrunedMetricInMinMode(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("x", 4, 10)}
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data:            makeData(4),
		Metric:          "error",
		Mode:            ModeMin,
		InferenceBudget: testutils.Ptr(0.001),
	})
	regionKey := RegionKey{Model: "text-ada-001", Prompt: "prompt:0"}
	tn.region.MarkInvalid(regionKey, 50, 2)

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "max_tokens": 50, "n": 4, "prompt": 0}, true, false)
	require.NoError(t, err)
	errorValue, _ := result.Float("error")
	assert.True(t, math.IsInf(errorValue, 1))
}

func TestEvalOverBudgetEarlyPrune(t *testing.T) {
	ctx := context.Background()
	// the endpoint spends far more output tokens than the budget affords
	endpoint := &fakeEndpoint{handler: respondWith("long answer", 10, 100)}
	inferenceBudget := (15*adaPriceOutput + 10*adaPriceInput) / 1000 // 15 target output tokens
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data:            makeData(4),
		InferenceBudget: &inferenceBudget,
	})
	tn.avgInputTokens = 10

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "max_tokens": 20, "n": 1, "prompt": 0}, true, false)
	require.NoError(t, err)

	assert.Equal(t, 1, endpoint.calls()) // one probe at n=1, first instance
	score, _ := result.Float("score")
	assert.Zero(t, score)
	minInvalid, found := tn.region.MinInvalidN(RegionKey{Model: "text-ada-001", Prompt: "prompt:0"}, 20)
	require.True(t, found)
	assert.Equal(t, 1, minInvalid)
}

func TestEvalStagedGrowthOfCompletionsAndData(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("x", 4, 10)}
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data:            makeData(4),
		InferenceBudget: testutils.Ptr(0.001),
	})
	regionKey := RegionKey{Model: "text-ada-001", Prompt: "prompt:0"}
	tn.region.MarkValid(regionKey, 20, 2)

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "max_tokens": 20, "n": 4, "prompt": 0}, true, false)
	require.NoError(t, err)

	// the average input-token count is unknown, so no early stop fires: the
	// trial grows n from just past the known-valid frontier up to the target
	require.Len(t, endpoint.completeCalls, 8)
	for _, call := range endpoint.completeCalls[:4] {
		assert.Equal(t, 3, call.N)
	}
	for _, call := range endpoint.completeCalls[4:] {
		assert.Equal(t, 1, call.N)
	}

	// every instance aggregated the full completion count
	score, _ := result.Float("score")
	assert.Equal(t, 4.0, score)

	// cost covers all issued calls at the configured prices
	expectedCost := 4 * ((adaPriceInput*4+adaPriceOutput*30)/1000 + (adaPriceInput*4+adaPriceOutput*10)/1000)
	cost, _ := result.Float("cost")
	assert.InDelta(t, expectedCost, cost, 1e-12)
	totalCost, _ := result.Float("total_cost")
	assert.InDelta(t, expectedCost, totalCost, 1e-12)
	assert.InDelta(t, expectedCost, tn.totalCost, 1e-12)

	// the trial measured the average input-token count for later trials
	assert.Equal(t, 4.0, tn.avgInputTokens)
	inferenceCost, _ := result.Float("inference_cost")
	assert.InDelta(t, (40*adaPriceOutput+4*adaPriceInput)/1000, inferenceCost, 1e-12)
}

func TestEvalValidatesRegionUnderBudget(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("x", 4, 10)}
	inferenceBudget := (2496*adaPriceOutput + 4*adaPriceInput) / 1000 // generous target
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data:            makeData(4),
		InferenceBudget: &inferenceBudget,
	})
	tn.avgInputTokens = 4

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "max_tokens": 20, "n": 4, "prompt": 0}, true, false)
	require.NoError(t, err)

	// the budget-derived frontier admits n=4 outright
	require.Len(t, endpoint.completeCalls, 4)
	for _, call := range endpoint.completeCalls {
		assert.Equal(t, 4, call.N)
	}
	regionKey := RegionKey{Model: "text-ada-001", Prompt: "prompt:0"}
	assert.Equal(t, 4, tn.region.MaxValidN(regionKey, 20))
	inferenceCost, _ := result.Float("inference_cost")
	assert.False(t, math.IsInf(inferenceCost, 1))
	assert.Greater(t, inferenceCost, 0.0)
}

func TestEvalDataEarlyStopThenInvalidation(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("x", 4, 10)}
	inferenceBudget := (30*adaPriceOutput + 4*adaPriceInput) / 1000 // 30 target output tokens
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data:            makeData(4),
		InferenceBudget: &inferenceBudget,
	})
	tn.avgInputTokens = 4

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "max_tokens": 20, "n": 4, "prompt": 0}, true, false)
	require.NoError(t, err)

	// n=2 probes one instance, proves valid and skips the rest of the data;
	// n=4 immediately overshoots the target and invalidates
	require.Len(t, endpoint.completeCalls, 2)
	assert.Equal(t, 2, endpoint.completeCalls[0].N)
	assert.Equal(t, 4, endpoint.completeCalls[1].N)

	regionKey := RegionKey{Model: "text-ada-001", Prompt: "prompt:0"}
	assert.Equal(t, 2, tn.region.MaxValidN(regionKey, 20))
	minInvalid, found := tn.region.MinInvalidN(regionKey, 20)
	require.True(t, found)
	assert.Equal(t, 4, minInvalid)

	score, _ := result.Float("score")
	assert.Zero(t, score)
}

func TestEvalStopsOnOptimizationBudget(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("x", 4, 10)}
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data:               makeData(4),
		OptimizationBudget: testutils.Ptr(0.0),
	})

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "n": 1, "prompt": 0}, true, false)
	require.NoError(t, err)

	assert.Equal(t, 1, endpoint.calls())
	score, _ := result.Float("score")
	assert.Zero(t, score)
	totalCost, _ := result.Float("total_cost")
	assert.Greater(t, totalCost, 0.0)
	cost, _ := result.Float("cost")
	assert.Greater(t, cost, 0.0)

	// the budget overshoot is bounded by a single call
	assert.InDelta(t, (adaPriceInput*4+adaPriceOutput*10)/1000, tn.totalCost, 1e-12)
}

func TestEvalChatShapeAndRstrip(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("answer \n", 4, 2)}
	var seen [][]string
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data: makeData(2),
		EvalFunc: func(responses []string, instance DataInstance) map[string]any {
			seen = append(seen, responses)
			return map[string]any{"score": 1.0}
		},
	})

	_, err := tn.eval(ctx, Config{"model": "gpt-4", "prompt": 0, "n": 1}, true, false)
	require.NoError(t, err)

	// chat models carry messages and no prompt
	assert.Empty(t, endpoint.completeCalls)
	require.Len(t, endpoint.chatCalls, 2)
	for _, call := range endpoint.chatCalls {
		assert.Empty(t, call.Prompt)
		assert.NotEmpty(t, call.Messages)
	}

	// responses forwarded to the metric carry no trailing whitespace
	require.NotEmpty(t, seen)
	for _, responses := range seen {
		for _, response := range responses {
			assert.Equal(t, "answer", response)
		}
	}
}

func TestEvalAggregatesNumericMetricsOnly(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("x", 4, 2)}
	labels := []string{"first", "second"}
	index := 0
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data: makeData(2),
		EvalFunc: func(responses []string, instance DataInstance) map[string]any {
			score := float64(index)
			label := labels[index]
			index++
			return map[string]any{"score": score, "hits": 1, "label": label}
		},
	})

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "prompt": 0, "n": 1}, true, false)
	require.NoError(t, err)

	score, _ := result.Float("score")
	assert.Equal(t, 0.5, score) // (0 + 1) / 2
	hits, _ := result.Float("hits")
	assert.Equal(t, 1.0, hits)
	assert.Equal(t, "second", result["label"]) // non-numeric keeps the last value seen
}

func TestEvalPoisonedFailureMarksInvalid(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: func(params providers.RequestParams, chat bool) (*providers.Response, error) {
		return nil, providers.WrapErrRateLimited(errors.New("429"))
	}}
	tn := newEvalTuner(t, endpoint, TuneRequest{
		Data:            makeData(4),
		InferenceBudget: testutils.Ptr(0.001),
	})

	result, err := tn.eval(ctx, Config{"model": "text-ada-001", "prompt": 0, "n": 2}, true, false)
	require.NoError(t, err)

	score, _ := result.Float("score")
	assert.Zero(t, score)
	cost, _ := result.Float("cost")
	assert.Zero(t, cost)
	_, found := tn.region.MinInvalidN(RegionKey{Model: "text-ada-001", Prompt: "prompt:0"}, 16)
	assert.True(t, found)
}

func TestEvalRejectsUnknownModel(t *testing.T) {
	ctx := context.Background()
	endpoint := &fakeEndpoint{handler: respondWith("x", 4, 2)}
	tn := newEvalTuner(t, endpoint, TuneRequest{Data: makeData(1)})

	_, err := tn.eval(ctx, Config{"model": "unknown-model", "prompt": 0}, true, false)
	assert.ErrorIs(t, err, ErrUnknownModel)
}
