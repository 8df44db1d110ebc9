// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"context"
	"fmt"

	"github.com/petmal/apitune/pkg/logging"
)

// normalizeSpace merges the user overrides onto the default search space and
// folds the prompt, messages and stop entries into integer-index choice
// variables backed by side tables. It also collapses temperature_or_top_p
// when the user pinned one of the two sampling controls.
func (t *Tuner) normalizeSpace(overrides map[string]any) error {
	space := DefaultSearchSpace()
	if _, hasPrompt := overrides["prompt"]; hasPrompt {
		if _, hasMessages := overrides["messages"]; hasMessages {
			return fmt.Errorf("%w: messages and prompt cannot be provided at the same time", ErrInvalidArgument)
		}
	}
	for name, value := range overrides {
		space[name] = value
	}
	if _, ok := space["messages"]; ok {
		delete(space, "prompt")
	}

	temperature, hasTemperature := space["temperature"]
	topP, hasTopP := space["top_p"]
	delete(space, "temperature")
	delete(space, "top_p")
	switch {
	case hasTemperature && hasTopP:
		delete(space, "temperature_or_top_p")
		space["temperature"] = temperature
		space["top_p"] = topP
		t.logger.Message(context.Background(), logging.LevelWarn, "temperature and top_p are not recommended to vary together")
	case hasTemperature:
		space["temperature_or_top_p"] = map[string]any{"temperature": temperature}
	case hasTopP:
		space["temperature_or_top_p"] = map[string]any{"top_p": topP}
	}

	// best_of replaces n as the pruned hyperparameter when it varies or is pinned to a value other than 1
	t.pruneHP = "n"
	if bestOf, ok := space["best_of"]; ok {
		if pinned, isInt := toFloat(bestOf); !isInt || pinned != 1 {
			t.pruneHP = "best_of"
		}
	}

	if rawMessages, ok := space["messages"]; ok {
		messages, err := normalizeMessages(rawMessages)
		if err != nil {
			return err
		}
		t.messages = messages
		t.prompts = nil
		space["messages"] = indexChoice(len(messages))
	} else {
		prompts, err := normalizePrompts(space["prompt"])
		if err != nil {
			return err
		}
		t.prompts = prompts
		t.messages = nil
		space["prompt"] = indexChoice(len(prompts))
	}

	if rawStops, ok := space["stop"]; ok && rawStops != nil {
		stops, err := normalizeStops(rawStops)
		if err != nil {
			return err
		}
		t.stops = stops
		space["stop"] = indexChoice(len(stops))
	} else {
		t.stops = nil
	}

	t.normalizedSpace = space
	return nil
}

func indexChoice(length int) Choice {
	options := make([]any, length)
	for i := range options {
		options[i] = i
	}
	return Choice{Options: options}
}

// normalizePrompts accepts a single prompt template or a list of templates.
func normalizePrompts(raw any) ([]Template, error) {
	switch v := raw.(type) {
	case string:
		return []Template{FormatTemplate(v)}, nil
	case Template:
		return []Template{v}, nil
	case func(DataInstance) string:
		return []Template{FuncTemplate(v)}, nil
	case []string:
		out := make([]Template, 0, len(v))
		for _, s := range v {
			out = append(out, FormatTemplate(s))
		}
		return out, nil
	case []Template:
		return v, nil
	case []any:
		out := make([]Template, 0, len(v))
		for _, item := range v {
			templates, err := normalizePrompts(item)
			if err != nil {
				return nil, err
			}
			out = append(out, templates...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: prompt must be a template or a list of templates", ErrInvalidArgument)
	}
}

// normalizeMessages accepts a single chat prefix or a list of chat prefixes
// to choose from.
func normalizeMessages(raw any) ([][]PromptMessage, error) {
	switch v := raw.(type) {
	case []PromptMessage:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: messages must not be empty", ErrInvalidArgument)
		}
		return [][]PromptMessage{v}, nil
	case [][]PromptMessage:
		if len(v) == 0 {
			return nil, fmt.Errorf("%w: messages must not be empty", ErrInvalidArgument)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: messages must be a list of messages or a list of message lists", ErrInvalidArgument)
	}
}

// normalizeStops accepts a string, a list of strings forming one stop
// template, or a list of such templates.
func normalizeStops(raw any) ([][]string, error) {
	switch v := raw.(type) {
	case string:
		return [][]string{{v}}, nil
	case []string:
		return [][]string{v}, nil
	case [][]string:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: stop must be a string, a list of strings, or a list of string lists", ErrInvalidArgument)
	}
}
