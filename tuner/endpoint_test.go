// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"context"

	"github.com/petmal/apitune/providers"
)

// fakeEndpoint is a scripted endpoint recording every issued request.
type fakeEndpoint struct {
	handler       func(params providers.RequestParams, chat bool) (*providers.Response, error)
	completeCalls []providers.RequestParams
	chatCalls     []providers.RequestParams
}

func (f *fakeEndpoint) Name() string {
	return "fake"
}

func (f *fakeEndpoint) Complete(ctx context.Context, params providers.RequestParams) (*providers.Response, error) {
	f.completeCalls = append(f.completeCalls, params.Clone())
	return f.handler(params, false)
}

func (f *fakeEndpoint) Chat(ctx context.Context, params providers.RequestParams) (*providers.Response, error) {
	f.chatCalls = append(f.chatCalls, params.Clone())
	return f.handler(params, true)
}

func (f *fakeEndpoint) Close(ctx context.Context) error {
	return nil
}

func (f *fakeEndpoint) calls() int {
	return len(f.completeCalls) + len(f.chatCalls)
}

// respondWith builds a handler returning n choices of the given text with
// fixed token usage per call. The choice count follows the requested n.
func respondWith(text string, inputTokens int, outputTokensPerChoice int) func(params providers.RequestParams, chat bool) (*providers.Response, error) {
	return func(params providers.RequestParams, chat bool) (*providers.Response, error) {
		n := max(params.N, 1)
		if params.BestOf > 0 {
			n = params.BestOf
		}
		response := &providers.Response{
			Usage: providers.Usage{
				PromptTokens:     inputTokens,
				CompletionTokens: outputTokensPerChoice * n,
			},
		}
		for i := 0; i < n; i++ {
			if chat {
				response.Choices = append(response.Choices, providers.Choice{
					Message: &providers.Message{Role: "assistant", Content: text},
				})
			} else {
				response.Choices = append(response.Choices, providers.Choice{Text: text})
			}
		}
		return response, nil
	}
}
