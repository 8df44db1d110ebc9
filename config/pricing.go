// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PricePair holds the price per 1k input and output tokens of a model.
type PricePair struct {
	Input  float64 `yaml:"input" validate:"gte=0"`
	Output float64 `yaml:"output" validate:"gte=0"`
}

// UnmarshalYAML accepts either a scalar price, applied to both input and
// output tokens, or an explicit {input, output} pair.
func (p *PricePair) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var scalar float64
		if err := value.Decode(&scalar); err != nil {
			return fmt.Errorf("invalid price value: %w", err)
		}
		p.Input, p.Output = scalar, scalar
		return nil
	}
	type rawPricePair PricePair // avoid recursive unmarshaling
	var pair rawPricePair
	if err := value.Decode(&pair); err != nil {
		return fmt.Errorf("invalid price pair: %w", err)
	}
	*p = PricePair(pair)
	return nil
}

// SamePrice returns a pair charging the given price for both input and output tokens.
func SamePrice(price float64) PricePair {
	return PricePair{Input: price, Output: price}
}

// DefaultPriceTable returns the built-in price table, in USD per 1k tokens.
func DefaultPriceTable() map[string]PricePair {
	return map[string]PricePair{
		"text-ada-001":       SamePrice(0.0004),
		"text-babbage-001":   SamePrice(0.0005),
		"text-curie-001":     SamePrice(0.002),
		"code-cushman-001":   SamePrice(0.024),
		"code-davinci-002":   SamePrice(0.1),
		"text-davinci-002":   SamePrice(0.02),
		"text-davinci-003":   SamePrice(0.02),
		"gpt-3.5-turbo":      SamePrice(0.002),
		"gpt-3.5-turbo-0301": SamePrice(0.002),
		"gpt-4":              {Input: 0.03, Output: 0.06},
		"gpt-4-0314":         {Input: 0.03, Output: 0.06},
		"gpt-4-32k":          {Input: 0.06, Output: 0.12},
		"gpt-4-32k-0314":     {Input: 0.06, Output: 0.12},
	}
}

// DefaultChatModels returns the built-in set of models whose request shape
// uses messages rather than a plain prompt.
func DefaultChatModels() map[string]bool {
	return map[string]bool{
		"gpt-3.5-turbo":      true,
		"gpt-3.5-turbo-0301": true,
		"gpt-4":              true,
		"gpt-4-32k":          true,
		"gpt-4-32k-0314":     true,
		"gpt-4-0314":         true,
	}
}

// DefaultModels returns the candidate models of the default search space.
func DefaultModels() []string {
	return []string{
		"text-ada-001",
		"text-babbage-001",
		"text-davinci-003",
		"gpt-3.5-turbo",
		"gpt-4",
	}
}

// DefaultChatOnlyModels returns the candidate models of the chat-only default
// search space.
func DefaultChatOnlyModels() []string {
	return []string{"gpt-3.5-turbo", "gpt-4"}
}
