// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"github.com/petmal/apitune/config"
)

// Space is a search space over generation parameters. Values are either
// concrete (used as-is in every trial) or samplers (Choice, Uniform, RandInt,
// LogRandInt) resolved by the search algorithm.
type Space map[string]any

// Config is one proposed trial: a mapping from hyperparameter name to the
// concrete value chosen for this trial.
type Config map[string]any

// Clone returns a shallow copy of the configuration.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// Choice selects one of a fixed set of options.
type Choice struct {
	Options []any
}

// ChoiceOf creates a Choice over the given options.
func ChoiceOf(options ...any) Choice {
	return Choice{Options: options}
}

// Uniform samples a float uniformly from [Low, High).
type Uniform struct {
	Low  float64
	High float64
}

// RandInt samples an integer uniformly from [Low, High).
type RandInt struct {
	Low  int
	High int
}

// LogRandInt samples an integer log-uniformly from [Low, High).
type LogRandInt struct {
	Low  int
	High int
}

// DefaultSearchSpace returns the built-in search space over completion and
// chat models.
func DefaultSearchSpace() Space {
	return defaultSpaceFor(config.DefaultModels())
}

// DefaultChatSearchSpace returns the built-in search space restricted to chat
// models.
func DefaultChatSearchSpace() Space {
	return defaultSpaceFor(config.DefaultChatOnlyModels())
}

func defaultSpaceFor(models []string) Space {
	modelOptions := make([]any, 0, len(models))
	for _, model := range models {
		modelOptions = append(modelOptions, model)
	}
	return Space{
		"model": Choice{Options: modelOptions},
		"temperature_or_top_p": ChoiceOf(
			map[string]any{"temperature": Uniform{Low: 0, High: 1}},
			map[string]any{"top_p": Uniform{Low: 0, High: 1}},
		),
		"max_tokens": LogRandInt{Low: 50, High: 1000},
		"n":          RandInt{Low: 1, High: 100},
		"prompt":     "{prompt}",
	}
}
