// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"

	"github.com/petmal/apitune/config"
	openai "github.com/sashabaranov/go-openai"
)

// NewOpenAI creates a new OpenAI endpoint instance with the given configuration.
// It also supports Azure OpenAI deployments.
func NewOpenAI(cfg config.OpenAIClientConfig) *OpenAI {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.IsAzure() {
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.APIVersion != "" {
			clientConfig.APIVersion = cfg.APIVersion
		}
	} else if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.RequestTimeout != nil {
		clientConfig.HTTPClient = &http.Client{Timeout: *cfg.RequestTimeout}
	}
	return &OpenAI{client: openai.NewClientWithConfig(clientConfig)}
}

// OpenAI implements the Endpoint interface for OpenAI completion and chat
// completion models.
type OpenAI struct {
	client *openai.Client
}

func (o OpenAI) Name() string {
	return config.OPENAI
}

func (o *OpenAI) Complete(ctx context.Context, params RequestParams) (*Response, error) {
	request := openai.CompletionRequest{
		Model:     params.TargetModel(),
		Prompt:    params.Prompt,
		MaxTokens: params.MaxTokens,
		N:         params.N,
		BestOf:    params.BestOf,
		Stop:      params.Stop,
	}
	if params.Temperature != nil {
		request.Temperature = float32(*params.Temperature)
	}
	if params.TopP != nil {
		request.TopP = float32(*params.TopP)
	}

	resp, err := o.client.CreateCompletion(ctx, request)
	if err != nil {
		return nil, o.classify(err)
	}

	out := &Response{Choices: make([]Choice, 0, len(resp.Choices))}
	for _, candidate := range resp.Choices {
		out.Choices = append(out.Choices, Choice{Text: candidate.Text})
	}
	recordUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, &out.Usage)
	return out, nil
}

func (o *OpenAI) Chat(ctx context.Context, params RequestParams) (*Response, error) {
	request := openai.ChatCompletionRequest{
		Model:     params.TargetModel(),
		Messages:  make([]openai.ChatCompletionMessage, 0, len(params.Messages)),
		MaxTokens: params.MaxTokens,
		N:         params.N,
		Stop:      params.Stop,
	}
	for _, message := range params.Messages {
		request.Messages = append(request.Messages, openai.ChatCompletionMessage{
			Role:    message.Role,
			Content: message.Content,
		})
	}
	if params.Temperature != nil {
		request.Temperature = float32(*params.Temperature)
	}
	if params.TopP != nil {
		request.TopP = float32(*params.TopP)
	}

	resp, err := o.client.CreateChatCompletion(ctx, request)
	if err != nil {
		return nil, o.classify(err)
	}

	out := &Response{Choices: make([]Choice, 0, len(resp.Choices))}
	for _, candidate := range resp.Choices {
		out.Choices = append(out.Choices, Choice{Message: &Message{
			Role:    candidate.Message.Role,
			Content: candidate.Message.Content,
		}})
	}
	recordUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, &out.Usage)
	return out, nil
}

// classify maps an API error onto the retry classes used by the remote caller.
// Errors outside the known classes are returned unchanged and surface to the caller.
func (o *OpenAI) classify(err error) error {
	if status, ok := apiErrorStatus(err); ok {
		return classifyStatus(status, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return WrapErrRateLimited(err) // per-call timeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapErrRateLimited(err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return WrapErrTransient(err) // connection error
	}
	return err
}

func apiErrorStatus(err error) (int, bool) {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode, true
	}
	return 0, false
}

func classifyStatus(status int, err error) error {
	switch status {
	case http.StatusTooManyRequests, http.StatusRequestTimeout:
		return WrapErrRateLimited(err)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return WrapErrInvalidRequest(err)
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return WrapErrTransient(err)
	default:
		return err
	}
}

func (o *OpenAI) Close(ctx context.Context) error {
	return nil
}
