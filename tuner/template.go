// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"fmt"
	"strings"

	"github.com/petmal/apitune/providers"
)

// DataInstance is one evaluation data point: named fields substituted into
// prompt templates and passed to the user metric function.
type DataInstance map[string]any

// Template produces a prompt string for a data instance. It is either a
// format string with named {field} placeholders or a function of the
// instance.
type Template struct {
	format string
	fn     func(DataInstance) string
}

// FormatTemplate creates a Template from a format string. Placeholders of the
// form {field} are replaced by the matching instance field; placeholders
// without a matching field are left intact.
func FormatTemplate(format string) Template {
	return Template{format: format}
}

// FuncTemplate creates a Template from a function of the data instance.
func FuncTemplate(fn func(DataInstance) string) Template {
	return Template{fn: fn}
}

// String describes the template for logs and CLI output.
func (t Template) String() string {
	if t.fn != nil {
		return "<template function>"
	}
	return t.format
}

// Render materialises the template for the given data instance.
func (t Template) Render(instance DataInstance) string {
	if t.fn != nil {
		return t.fn(instance)
	}
	if len(instance) == 0 {
		return t.format
	}
	pairs := make([]string, 0, 2*len(instance))
	for field, value := range instance {
		pairs = append(pairs, "{"+field+"}", fmt.Sprint(value))
	}
	return strings.NewReplacer(pairs...).Replace(t.format)
}

// PromptMessage is one chat-message template.
type PromptMessage struct {
	Role    string
	Content Template
}

// bindRequest resolves the trial's templates into concrete request inputs for
// one data instance. For chat models a bare prompt template is lifted into a
// single user-role message. Exactly one of prompt and messages is set on the
// returned request.
func bindRequest(base providers.RequestParams, instance DataInstance, prompt *Template, messages []PromptMessage, chat bool) providers.RequestParams {
	params := base
	switch {
	case messages != nil:
		params.Prompt = ""
		params.Messages = make([]providers.Message, 0, len(messages))
		for _, message := range messages {
			params.Messages = append(params.Messages, providers.Message{
				Role:    message.Role,
				Content: message.Content.Render(instance),
			})
		}
	case chat:
		params.Prompt = ""
		params.Messages = []providers.Message{{
			Role:    "user",
			Content: prompt.Render(instance),
		}}
	default:
		params.Messages = nil
		params.Prompt = prompt.Render(instance)
	}
	return params
}
