// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package config defines the apitune configuration model: endpoint client
// settings, cache location, retry policy, pricing, and tuning parameters.
package config

import (
	"time"
)

// Supported endpoint provider names.
const (
	OPENAI    = "openai"
	ANTHROPIC = "anthropic"
	DEEPSEEK  = "deepseek"
	GOOGLE    = "google"
)

// OpenAI API flavours.
const (
	APITypeOpenAI = "openai"
	APITypeAzure  = "azure"
)

// Default tuning parameters.
const (
	// DefaultSeed selects the cache scope when none is configured.
	DefaultSeed = 41
	// DefaultRetryTime is the fixed interval between retry attempts.
	DefaultRetryTime = 10 * time.Second
	// DefaultRetryTimeout is the wall-clock limit for retrying rate-limited calls.
	DefaultRetryTimeout = 60 * time.Second
	// DefaultCacheRoot is the root directory of the call cache.
	DefaultCacheRoot = ".cache"
)

// Config is the top-level apitune configuration.
type Config struct {
	// Cache configures the persistent call cache.
	Cache CacheConfig `yaml:"cache"`
	// Retry configures the remote-call retry policy.
	Retry RetryConfig `yaml:"retry"`
	// MaxRequestsPerMinute rate-limits outgoing calls. Zero disables the limiter.
	MaxRequestsPerMinute int `yaml:"max-requests-per-minute" validate:"gte=0"`
	// Providers configures endpoint client credentials.
	Providers ProviderConfig `yaml:"providers"`
	// Pricing overrides or extends the built-in per-model price table.
	Pricing map[string]PricePair `yaml:"pricing,omitempty"`
	// Tune holds the tuning-run parameters.
	Tune TuneConfig `yaml:"tune"`
}

// CacheConfig locates the persistent call cache. The complete cache path is
// {root}/{seed} so that runs under different seeds never share entries.
type CacheConfig struct {
	Root string `yaml:"root,omitempty"`
	Seed int    `yaml:"seed,omitempty" validate:"gte=0"`
	// StrictPerms restricts cache directories to 0700 and files to 0600.
	StrictPerms bool `yaml:"strict-perms,omitempty"`
}

// RetryConfig controls the remote-call retry policy.
type RetryConfig struct {
	// RetryTime is the fixed interval between attempts.
	RetryTime time.Duration `yaml:"retry-time,omitempty"`
	// RetryTimeout is the wall-clock limit for retrying rate-limited calls
	// during tuning. Serving calls retry past it.
	RetryTimeout time.Duration `yaml:"retry-timeout,omitempty"`
	// MaxAttempts bounds the retries of transient errors. Zero retries
	// indefinitely.
	MaxAttempts int `yaml:"max-attempts,omitempty" validate:"gte=0"`
}

// ProviderConfig holds per-provider endpoint client settings.
type ProviderConfig struct {
	OpenAI    *OpenAIClientConfig    `yaml:"openai,omitempty"`
	Anthropic *AnthropicClientConfig `yaml:"anthropic,omitempty"`
	Deepseek  *DeepseekClientConfig  `yaml:"deepseek,omitempty"`
	Google    *GoogleAIClientConfig  `yaml:"google,omitempty"`
}

// OpenAIClientConfig configures the OpenAI (or Azure OpenAI) endpoint client.
type OpenAIClientConfig struct {
	APIKey string `yaml:"api-key" validate:"required"`
	// BaseURL overrides the API base URL, e.g. for proxies or local stacks.
	BaseURL string `yaml:"base-url,omitempty"`
	// APIType selects the deployment flavour, "openai" or "azure".
	APIType string `yaml:"api-type,omitempty" validate:"omitempty,oneof=openai azure"`
	// APIVersion is required by Azure deployments.
	APIVersion     string         `yaml:"api-version,omitempty"`
	RequestTimeout *time.Duration `yaml:"request-timeout,omitempty"`
}

// IsAzure reports whether the client targets an Azure-flavoured deployment.
func (c OpenAIClientConfig) IsAzure() bool {
	return c.APIType == APITypeAzure
}

// AnthropicClientConfig configures the Anthropic endpoint client.
type AnthropicClientConfig struct {
	APIKey         string         `yaml:"api-key" validate:"required"`
	RequestTimeout *time.Duration `yaml:"request-timeout,omitempty"`
}

// DeepseekClientConfig configures the DeepSeek endpoint client.
type DeepseekClientConfig struct {
	APIKey         string         `yaml:"api-key" validate:"required"`
	RequestTimeout *time.Duration `yaml:"request-timeout,omitempty"`
}

// GoogleAIClientConfig configures the Google AI endpoint client.
type GoogleAIClientConfig struct {
	APIKey string `yaml:"api-key" validate:"required"`
}

// TuneConfig holds the tuning-run parameters exposed through the CLI.
type TuneConfig struct {
	// Metric names the optimized field of the user metric results.
	Metric string `yaml:"metric" validate:"required"`
	// Mode is the optimization direction.
	Mode string `yaml:"mode" validate:"required,oneof=min max"`
	// InferenceBudget caps the average serving cost per data instance.
	InferenceBudget float64 `yaml:"inference-budget,omitempty" validate:"gte=0"`
	// OptimizationBudget caps the total spend during tuning.
	OptimizationBudget float64 `yaml:"optimization-budget,omitempty" validate:"gte=0"`
	// NumSamples is the number of trials. -1 means bounded only by the
	// optimization budget.
	NumSamples int `yaml:"num-samples,omitempty" validate:"gte=-1"`
}

// WithDefaults returns a copy of the configuration with unset fields replaced
// by their defaults.
func (c Config) WithDefaults() Config {
	if c.Cache.Root == "" {
		c.Cache.Root = DefaultCacheRoot
	}
	if c.Cache.Seed == 0 {
		c.Cache.Seed = DefaultSeed
	}
	if c.Retry.RetryTime == 0 {
		c.Retry.RetryTime = DefaultRetryTime
	}
	if c.Retry.RetryTimeout == 0 {
		c.Retry.RetryTimeout = DefaultRetryTimeout
	}
	if c.Tune.NumSamples == 0 {
		c.Tune.NumSamples = 1
	}
	return c
}
