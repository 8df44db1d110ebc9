// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/petmal/apitune/cache"
	"github.com/petmal/apitune/pkg/logging"
	"github.com/petmal/apitune/providers"
	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

// ErrPoisoned is returned when a call previously exhausted its rate-limit
// retry window and the failure was recorded in the cache.
var ErrPoisoned = errors.New("call poisoned by earlier unrecoverable failure")

// remoteCaller memoises completion calls and applies the retry policy:
// transient errors retry indefinitely on a fixed interval; rate-limited calls
// retry within a wall-clock window during tuning and indefinitely during
// serving; invalid requests get a one-shot model-to-engine rewrite on
// Azure-flavoured deployments before failing hard.
type remoteCaller struct {
	endpoint     providers.Endpoint
	store        cache.Store
	chatModels   map[string]bool
	azure        bool
	retryTime    time.Duration
	retryTimeout time.Duration
	maxAttempts  int
	limiter      *rate.Limiter
	logger       logging.Logger
}

// backoff builds the retry schedule: a fixed interval, optionally bounded by
// the configured attempt count.
func (c *remoteCaller) backoff() retry.Backoff {
	backoff := retry.NewConstant(c.retryTime)
	if c.maxAttempts > 0 {
		backoff = retry.WithMaxRetries(uint64(c.maxAttempts), backoff)
	}
	return backoff
}

// getResponse returns the response for the given request parameters, from the
// cache when possible. A cached poison entry is returned as ErrPoisoned when
// evalOnly is set and treated as absent otherwise, so tuning attempts the
// call again.
func (c *remoteCaller) getResponse(ctx context.Context, params providers.RequestParams, evalOnly bool) (*providers.Response, error) {
	key := Fingerprint(params)
	if raw, ok, err := c.store.Get(ctx, key); err == nil && ok {
		if cache.IsPoisoned(raw) {
			if evalOnly {
				return nil, ErrPoisoned
			}
			// keep tuning: attempt the call again
		} else {
			var response providers.Response
			if err := json.Unmarshal(raw, &response); err == nil {
				return &response, nil
			}
			c.logger.Message(ctx, logging.LevelWarn, "discarding undecodable cache entry %s", key)
		}
	}

	chat := c.chatModels[params.Model]
	start := time.Now()
	engineSwapped := false
	exhausted := false

	response, err := retry.DoValue(ctx, c.backoff(), func(ctx context.Context) (*providers.Response, error) {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		call := params
		if engineSwapped {
			call = params.Clone()
			call.Engine = call.Model
			call.Model = ""
		}
		var response *providers.Response
		var err error
		if chat {
			response, err = c.endpoint.Chat(ctx, call)
		} else {
			response, err = c.endpoint.Complete(ctx, call)
		}
		if err == nil {
			return response, nil
		}
		switch {
		case errors.Is(err, providers.ErrTransient):
			c.logger.Error(ctx, logging.LevelWarn, err, "retrying in %s...", c.retryTime)
			return nil, retry.RetryableError(err)
		case errors.Is(err, providers.ErrRateLimited):
			if evalOnly || time.Since(start)+c.retryTime < c.retryTimeout {
				c.logger.Error(ctx, logging.LevelInfo, err, "retrying in %s...", c.retryTime)
				return nil, retry.RetryableError(err)
			}
			exhausted = true
			return nil, err
		case errors.Is(err, providers.ErrInvalidRequest):
			if c.azure && !engineSwapped && params.Model != "" {
				// Azure deployments address the model by the engine field.
				engineSwapped = true
				return nil, retry.RetryableError(err)
			}
			return nil, err
		default:
			return nil, err
		}
	})
	if err != nil {
		if exhausted {
			c.logger.Error(ctx, logging.LevelWarn, err,
				"failed to get response within %s of rate-limit retries", c.retryTimeout)
			if cacheErr := c.store.Set(ctx, key, cache.PoisonMarker); cacheErr != nil {
				c.logger.Error(ctx, logging.LevelWarn, cacheErr, "failed to poison cache entry %s", key)
			}
			return nil, ErrPoisoned
		}
		return nil, err
	}

	encoded, err := json.Marshal(response)
	if err != nil {
		return nil, err
	}
	if err := c.store.Set(ctx, key, encoded); err != nil {
		c.logger.Error(ctx, logging.LevelWarn, err, "failed to cache response %s", key)
	}
	return response, nil
}
