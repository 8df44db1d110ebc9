// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package search provides search-algorithm implementations for the tuner
// driver. The driver accepts any tuner.Algorithm; Random is the built-in
// default so tuning works without an external optimizer.
package search

import (
	"fmt"
	"maps"
	"math"
	"math/rand"
	"slices"

	"github.com/petmal/apitune/tuner"
)

// NewRandom constructs a seeded random-sampling search algorithm. Queued
// points are proposed first, then configurations are drawn independently
// from the space.
func NewRandom(cfg tuner.AlgorithmConfig) (tuner.Algorithm, error) {
	return &Random{
		space:  cfg.Space,
		points: cfg.PointsToEvaluate,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Random samples trial configurations uniformly from the search space.
type Random struct {
	space  tuner.Space
	points []tuner.Config
	next   int
	rng    *rand.Rand
}

func (r *Random) Suggest(trialID string) (tuner.Config, error) {
	if r.next < len(r.points) {
		point := r.points[r.next].Clone()
		r.next++
		return point, nil
	}
	out := make(tuner.Config, len(r.space))
	// visit names in sorted order so a seed always yields the same draws
	for _, name := range slices.Sorted(maps.Keys(r.space)) {
		sampled, err := r.sample(r.space[name])
		if err != nil {
			return nil, fmt.Errorf("cannot sample %q: %w", name, err)
		}
		out[name] = sampled
	}
	return out, nil
}

func (r *Random) Record(trialID string, result tuner.Result) {
	// independent sampling ignores trial outcomes
}

// sample resolves a space value into a concrete one. Choice options and map
// values may themselves be samplers.
func (r *Random) sample(value any) (any, error) {
	switch v := value.(type) {
	case tuner.Choice:
		if len(v.Options) == 0 {
			return nil, fmt.Errorf("empty choice")
		}
		return r.sample(v.Options[r.rng.Intn(len(v.Options))])
	case tuner.Uniform:
		return v.Low + r.rng.Float64()*(v.High-v.Low), nil
	case tuner.RandInt:
		if v.High <= v.Low {
			return v.Low, nil
		}
		return v.Low + r.rng.Intn(v.High-v.Low), nil
	case tuner.LogRandInt:
		if v.Low <= 0 || v.High <= v.Low {
			return nil, fmt.Errorf("log-uniform bounds must satisfy 0 < low < high")
		}
		exponent := math.Log(float64(v.Low)) + r.rng.Float64()*(math.Log(float64(v.High))-math.Log(float64(v.Low)))
		sampled := int(math.Floor(math.Exp(exponent)))
		return min(max(sampled, v.Low), v.High-1), nil
	case map[string]any:
		out := make(map[string]any, len(v))
		for _, name := range slices.Sorted(maps.Keys(v)) {
			sampled, err := r.sample(v[name])
			if err != nil {
				return nil, err
			}
			out[name] = sampled
		}
		return out, nil
	default:
		return value, nil
	}
}
