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

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/petmal/apitune/config"
)

const anthropicDefaultMaxTokens = 2048

// NewAnthropic creates a new Anthropic endpoint instance with the given configuration.
func NewAnthropic(cfg config.AnthropicClientConfig) *Anthropic {
	opts := []anthropicoption.RequestOption{anthropicoption.WithAPIKey(cfg.APIKey)}
	if cfg.RequestTimeout != nil {
		opts = append(opts, anthropicoption.WithRequestTimeout(*cfg.RequestTimeout))
	}
	return &Anthropic{client: anthropic.NewClient(opts...)}
}

// Anthropic implements the Endpoint interface for Anthropic generative models.
// The service is chat-only and returns a single message per call; requests
// with n > 1 are expanded into n sequential calls whose choices and usage are
// combined.
type Anthropic struct {
	client anthropic.Client
}

func (o Anthropic) Name() string {
	return config.ANTHROPIC
}

func (o *Anthropic) Complete(ctx context.Context, params RequestParams) (*Response, error) {
	return nil, ErrCompletionNotSupported
}

func (o *Anthropic) Chat(ctx context.Context, params RequestParams) (*Response, error) {
	if params.BestOf > 1 {
		return nil, fmt.Errorf("%w: best_of", ErrFeatureNotSupported)
	}

	request := anthropic.MessageNewParams{
		Model:     anthropic.Model(params.TargetModel()),
		MaxTokens: anthropicDefaultMaxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(params.Messages)),
	}
	if params.MaxTokens > 0 {
		request.MaxTokens = int64(params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		request.StopSequences = params.Stop
	}
	if params.Temperature != nil {
		request.Temperature = anthropic.Float(*params.Temperature)
	}
	if params.TopP != nil {
		request.TopP = anthropic.Float(*params.TopP)
	}
	for _, message := range params.Messages {
		block := anthropic.NewTextBlock(message.Content)
		if message.Role == "assistant" {
			request.Messages = append(request.Messages, anthropic.NewAssistantMessage(block))
		} else {
			request.Messages = append(request.Messages, anthropic.NewUserMessage(block))
		}
	}

	n := max(params.N, 1)
	out := &Response{Choices: make([]Choice, 0, n)}
	for i := 0; i < n; i++ {
		resp, err := o.client.Messages.New(ctx, request)
		if err != nil {
			return nil, o.classify(err)
		}
		var content string
		for _, block := range resp.Content {
			if text, ok := block.AsAny().(anthropic.TextBlock); ok {
				content += text.Text
			}
		}
		out.Choices = append(out.Choices, Choice{Message: &Message{
			Role:    "assistant",
			Content: content,
		}})
		recordUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens, &out.Usage)
	}
	return out, nil
}

func (o *Anthropic) classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapErrRateLimited(err)
	}
	return err
}

func (o *Anthropic) Close(ctx context.Context) error {
	return nil
}
