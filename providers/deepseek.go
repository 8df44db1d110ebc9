// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"errors"
	"fmt"

	deepseek "github.com/cohesion-org/deepseek-go"
	"github.com/petmal/apitune/config"
)

// NewDeepseek creates a new DeepSeek endpoint instance with the given configuration.
func NewDeepseek(cfg config.DeepseekClientConfig) (*Deepseek, error) {
	opts := make([]deepseek.Option, 0)
	if cfg.RequestTimeout != nil {
		opts = append(opts, deepseek.WithTimeout(*cfg.RequestTimeout))
	}
	client, err := deepseek.NewClientWithOptions(cfg.APIKey, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateClient, err)
	}
	return &Deepseek{client: client}, nil
}

// Deepseek implements the Endpoint interface for DeepSeek generative models.
// The service is chat-only and returns a single candidate per call; requests
// with n > 1 are expanded into n sequential calls whose choices and usage are
// combined.
type Deepseek struct {
	client *deepseek.Client
}

func (o Deepseek) Name() string {
	return config.DEEPSEEK
}

func (o *Deepseek) Complete(ctx context.Context, params RequestParams) (*Response, error) {
	return nil, ErrCompletionNotSupported
}

func (o *Deepseek) Chat(ctx context.Context, params RequestParams) (*Response, error) {
	if params.BestOf > 1 {
		return nil, fmt.Errorf("%w: best_of", ErrFeatureNotSupported)
	}

	request := &deepseek.ChatCompletionRequest{
		Model:    params.TargetModel(),
		Messages: make([]deepseek.ChatCompletionMessage, 0, len(params.Messages)),
	}
	for _, message := range params.Messages {
		request.Messages = append(request.Messages, deepseek.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	if params.MaxTokens > 0 {
		request.MaxTokens = params.MaxTokens
	}
	if len(params.Stop) > 0 {
		request.Stop = params.Stop
	}
	if params.Temperature != nil {
		request.Temperature = float32(*params.Temperature)
	}
	if params.TopP != nil {
		request.TopP = float32(*params.TopP)
	}

	n := max(params.N, 1)
	out := &Response{Choices: make([]Choice, 0, n)}
	for i := 0; i < n; i++ {
		resp, err := o.client.CreateChatCompletion(ctx, request)
		if err != nil {
			return nil, o.classify(err)
		}
		for _, candidate := range resp.Choices {
			out.Choices = append(out.Choices, Choice{Message: &Message{
				Role:    candidate.Message.Role,
				Content: candidate.Message.Content,
			}})
		}
		recordUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, &out.Usage)
	}
	return out, nil
}

func (o *Deepseek) classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapErrRateLimited(err)
	}
	return err
}

func (o *Deepseek) Close(ctx context.Context) error {
	return nil
}
