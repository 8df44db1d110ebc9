// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package providers implements text-completion endpoint connectors used by the
// apitune evaluation engine. Every connector exposes the same narrow Endpoint
// interface so the tuner can treat a remote completion API as a pure function
// from request parameters to a response with token-usage accounting.
package providers

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

var (
	// ErrCreateClient is returned when endpoint client initialization fails.
	ErrCreateClient = errors.New("failed to create client")
	// ErrTransient is returned for errors that warrant an unconditional retry,
	// such as service unavailability or connection failures.
	ErrTransient = errors.New("transient endpoint error")
	// ErrRateLimited is returned when the endpoint rejects or times out a call
	// due to rate limiting. Retrying is bounded by a wall-clock timeout.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidRequest is returned when the endpoint rejects the request shape.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrFeatureNotSupported is returned when a requested capability is not
	// supported by the endpoint.
	ErrFeatureNotSupported = errors.New("feature not supported by endpoint")
	// ErrCompletionNotSupported is returned by chat-only endpoints when a plain
	// completion request is issued.
	ErrCompletionNotSupported = fmt.Errorf("%w: plain completion", ErrFeatureNotSupported)
)

// WrapErrTransient wraps an error as transient, preserving the original error chain.
func WrapErrTransient(err error) error {
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// WrapErrRateLimited wraps an error as rate-limited, preserving the original error chain.
func WrapErrRateLimited(err error) error {
	return fmt.Errorf("%w: %w", ErrRateLimited, err)
}

// WrapErrInvalidRequest wraps an error as an invalid request, preserving the original error chain.
func WrapErrInvalidRequest(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

// Message is a single chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// RequestParams is the materialised completion-API input for one call.
// Exactly one of Prompt and Messages is set on an outgoing request.
type RequestParams struct {
	// Model identifies the target model.
	Model string `json:"model,omitempty"`
	// Engine replaces Model on Azure-flavoured deployments.
	Engine string `json:"engine,omitempty"`
	// Prompt is the plain-completion input.
	Prompt string `json:"prompt,omitempty"`
	// Messages is the chat-completion input.
	Messages []Message `json:"messages,omitempty"`
	// Stop lists sequences at which generation stops.
	Stop []string `json:"stop,omitempty"`
	// MaxTokens bounds the generated output length. Zero means endpoint default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// N is the number of completions to generate per prompt.
	N int `json:"n,omitempty"`
	// BestOf generates best_of completions server-side and returns the best N.
	BestOf int `json:"best_of,omitempty"`
	// Temperature and TopP are mutually exclusive sampling controls.
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	// Extra carries passthrough fields not interpreted by the tuner.
	Extra map[string]any `json:"extra,omitempty"`
}

// TargetModel returns the model identifier the endpoint should address,
// preferring Engine when set.
func (p RequestParams) TargetModel() string {
	if p.Engine != "" {
		return p.Engine
	}
	return p.Model
}

// Clone returns a deep copy of the request parameters.
func (p RequestParams) Clone() RequestParams {
	out := p
	if p.Messages != nil {
		out.Messages = append([]Message(nil), p.Messages...)
	}
	if p.Stop != nil {
		out.Stop = append([]string(nil), p.Stop...)
	}
	if p.Temperature != nil {
		v := *p.Temperature
		out.Temperature = &v
	}
	if p.TopP != nil {
		v := *p.TopP
		out.TopP = &v
	}
	if p.Extra != nil {
		out.Extra = make(map[string]any, len(p.Extra))
		for k, v := range p.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Usage holds the token-usage accounting of a response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Choice is one generated alternative. Plain completions carry Text,
// chat completions carry Message.
type Choice struct {
	Text    string   `json:"text,omitempty"`
	Message *Message `json:"message,omitempty"`
}

// Response is the uniform completion-API response shape.
type Response struct {
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Endpoint interacts with a remote text-completion service.
type Endpoint interface {
	// Name returns the endpoint's unique identifier.
	Name() string
	// Complete issues a plain completion request.
	Complete(ctx context.Context, params RequestParams) (*Response, error)
	// Chat issues a chat completion request.
	Chat(ctx context.Context, params RequestParams) (*Response, error)
	// Close releases resources when the endpoint is no longer needed.
	Close(ctx context.Context) error
}

// recordUsage accumulates token counts reported by an endpoint SDK into out.
// SDKs disagree on the integer width of token counts.
func recordUsage[S constraints.Signed](inputTokens S, outputTokens S, out *Usage) {
	out.PromptTokens += int(inputTokens)
	out.CompletionTokens += int(outputTokens)
}
