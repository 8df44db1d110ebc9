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

	"github.com/petmal/apitune/config"
	"google.golang.org/genai"
)

// NewGoogleAI creates a new Google AI endpoint instance with the given configuration.
func NewGoogleAI(ctx context.Context, cfg config.GoogleAIClientConfig) (*GoogleAI, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCreateClient, err)
	}
	return &GoogleAI{client: client}, nil
}

// GoogleAI implements the Endpoint interface for Google generative models.
// The service is chat-only; candidate count maps onto n.
type GoogleAI struct {
	client *genai.Client
}

func (o GoogleAI) Name() string {
	return config.GOOGLE
}

func (o *GoogleAI) Complete(ctx context.Context, params RequestParams) (*Response, error) {
	return nil, ErrCompletionNotSupported
}

func (o *GoogleAI) Chat(ctx context.Context, params RequestParams) (*Response, error) {
	if params.BestOf > 1 {
		return nil, fmt.Errorf("%w: best_of", ErrFeatureNotSupported)
	}

	generateConfig := &genai.GenerateContentConfig{
		CandidateCount: int32(max(params.N, 1)),
	}
	if params.MaxTokens > 0 {
		generateConfig.MaxOutputTokens = int32(params.MaxTokens)
	}
	if len(params.Stop) > 0 {
		generateConfig.StopSequences = params.Stop
	}
	if params.Temperature != nil {
		generateConfig.Temperature = genai.Ptr(float32(*params.Temperature))
	}
	if params.TopP != nil {
		generateConfig.TopP = genai.Ptr(float32(*params.TopP))
	}

	contents := make([]*genai.Content, 0, len(params.Messages))
	for _, message := range params.Messages {
		role := genai.RoleUser
		if message.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(message.Content, role))
	}

	resp, err := o.client.Models.GenerateContent(ctx, params.TargetModel(), contents, generateConfig)
	if err != nil {
		return nil, o.classify(err)
	}

	out := &Response{Choices: make([]Choice, 0, len(resp.Candidates))}
	for _, candidate := range resp.Candidates {
		var content string
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				content += part.Text
			}
		}
		out.Choices = append(out.Choices, Choice{Message: &Message{
			Role:    "assistant",
			Content: content,
		}})
	}
	if resp.UsageMetadata != nil {
		recordUsage(resp.UsageMetadata.PromptTokenCount, resp.UsageMetadata.CandidatesTokenCount, &out.Usage)
	}
	return out, nil
}

func (o *GoogleAI) classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.Code, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapErrRateLimited(err)
	}
	return err
}

func (o *GoogleAI) Close(ctx context.Context) error {
	return nil
}
