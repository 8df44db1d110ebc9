// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"context"
	"fmt"

	"github.com/petmal/apitune/cache"
	"github.com/petmal/apitune/providers"
)

// CreateRequest holds the parameters of one serving call.
type CreateRequest struct {
	// Context supplies the fields substituted into the configured templates.
	Context DataInstance
	// UseCache serves repeated calls from the persistent call cache. The
	// cache scope is opened and released per call.
	UseCache bool
	// Config is a concrete configuration, typically the result of Tune:
	// templates are actual values, not indices.
	Config Config
}

// Create makes one completion for the given context using a concrete
// configuration. With UseCache set, a call with parameters seen before is
// served from the cache without touching the endpoint.
func (t *Tuner) Create(ctx context.Context, req CreateRequest) (*providers.Response, error) {
	params, chat, err := t.materializeRequest(req.Config, req.Context)
	if err != nil {
		return nil, err
	}
	if req.UseCache {
		store, err := cache.OpenDiskStore(t.cacheRoot, t.seed, t.strictPerms)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		return t.newCaller(store).getResponse(ctx, params, false)
	}
	if chat {
		return t.endpoint.Chat(ctx, params)
	}
	return t.endpoint.Complete(ctx, params)
}

// materializeRequest resolves a concrete configuration and a context mapping
// into request parameters.
func (t *Tuner) materializeRequest(cfg Config, instance DataInstance) (providers.RequestParams, bool, error) {
	model, ok := configString(cfg, "model")
	if !ok {
		return providers.RequestParams{}, false, fmt.Errorf("%w: configuration has no model", ErrInvalidArgument)
	}
	chat := t.chatModels[model]

	stop, err := concreteStop(cfg["stop"])
	if err != nil {
		return providers.RequestParams{}, false, err
	}
	maxTokens, hasMaxTokens := configInt(cfg, "max_tokens")
	params := t.baseParams(cfg, model, stop, hasMaxTokens, maxTokens)
	if n, ok := configInt(cfg, "n"); ok {
		params.N = n
	}
	if bestOf, ok := configInt(cfg, "best_of"); ok {
		params.BestOf = bestOf
	}

	rawMessages, hasMessages := cfg["messages"]
	rawPrompt, hasPrompt := cfg["prompt"]
	switch {
	case hasMessages:
		messages, err := normalizeMessages(rawMessages)
		if err != nil {
			return providers.RequestParams{}, false, err
		}
		return bindRequest(params, instance, nil, messages[0], chat), chat, nil
	case hasPrompt:
		prompts, err := normalizePrompts(rawPrompt)
		if err != nil {
			return providers.RequestParams{}, false, err
		}
		return bindRequest(params, instance, &prompts[0], nil, chat), chat, nil
	default:
		return providers.RequestParams{}, false, fmt.Errorf("%w: configuration needs a prompt or messages template", ErrInvalidArgument)
	}
}

// concreteStop accepts a concrete stop value: a string or a list of strings.
func concreteStop(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: stop must be a string or a list of strings", ErrInvalidArgument)
	}
}
