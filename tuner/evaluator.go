// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/petmal/apitune/pkg/logging"
	"github.com/petmal/apitune/providers"
)

// ErrUnknownModel is returned when a trial proposes a model missing from the price table.
var ErrUnknownModel = errors.New("no price configured for model")

// MetricFunc evaluates the quality of the generated responses for one data
// instance. It returns a mapping of metric names to values; only numeric
// values are aggregated across instances.
type MetricFunc func(responses []string, instance DataInstance) map[string]any

// Result is the outcome mapping of one trial: the aggregated user metrics
// plus the bookkeeping fields cost, total_cost and inference_cost.
type Result map[string]any

// Float returns the named result field as a float64, if present and numeric.
func (r Result) Float(name string) (float64, bool) {
	value, ok := r[name]
	if !ok {
		return 0, false
	}
	return toFloat(value)
}

// eval evaluates one proposed configuration: staged growth of the completion
// count and the data prefix, early pruning against the inference budget, and
// aggregation of the user metrics. The returned Result always carries the
// trial cost; errors are reserved for failures that must abort the run, such
// as endpoint rejections that survive the retry policy.
func (t *Tuner) eval(ctx context.Context, cfg Config, prune bool, evalOnly bool) (Result, error) {
	cost := 0.0
	dataLength := len(t.data)
	model, ok := configString(cfg, "model")
	if !ok {
		return nil, fmt.Errorf("%w: configuration has no model", ErrInvalidArgument)
	}
	price, ok := t.priceTable[model]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownModel, model)
	}
	chat := t.chatModels[model]
	configN, hasConfigN := configInt(cfg, t.pruneHP)
	if !hasConfigN {
		configN = 1 // endpoint default
	}
	maxTokens, hasMaxTokens := configInt(cfg, "max_tokens")
	if !hasMaxTokens {
		if chat {
			maxTokens = UnboundedMaxTokens
		} else {
			maxTokens = 16 // endpoint default
		}
	}

	prompt, messages, regionPrompt, err := t.resolveTemplates(cfg, chat)
	if err != nil {
		return nil, err
	}
	stop, regionStop := t.resolveStop(cfg)

	var inputTokens []int
	if t.avgInputTokens == 0 {
		inputTokens = make([]int, dataLength)
	}

	targetOutputTokens, targetSet := 0.0, false
	regionKey := RegionKey{Model: model, Prompt: regionPrompt, Stop: regionStop}
	prune = prune && t.inferenceBudget != nil && !evalOnly
	var startN int
	if prune {
		maxValidN := t.region.MaxValidN(regionKey, maxTokens)
		if t.avgInputTokens > 0 {
			targetOutputTokens = (*t.inferenceBudget*1000 - t.avgInputTokens*price.Input) / price.Output
			targetSet = true
			// max_tokens bounds the output length, so the average input-token
			// count yields a completion count known to fit the budget.
			if lifted := int(math.Floor(targetOutputTokens / float64(maxTokens))); lifted > maxValidN {
				maxValidN = lifted
			}
		}
		if configN <= maxValidN {
			startN = configN
		} else if minInvalidN, found := t.region.MinInvalidN(regionKey, maxTokens); found && configN >= minInvalidN {
			return t.prunedResult(), nil
		} else {
			startN = maxValidN + 1
		}
	} else {
		startN = configN
	}

	params := t.baseParams(cfg, model, stop, hasMaxTokens, maxTokens)

	numCompletions, previousNumCompletions := startN, 0
	var nTokensList []int
	var responsesList [][]string
	var avgTokens float64
	for { // n <= configN
		perCallN := numCompletions - previousNumCompletions
		if t.pruneHP == "best_of" {
			params.BestOf = perCallN
		} else {
			params.N = perCallN
		}
		dataLimit := dataLength
		if prune {
			dataLimit = 1
		}
		prevDataLimit := 0
		dataEarlyStop := false // whether data early stop happens for this n
		for { // dataLimit <= dataLength
			// limit the number of data points to avoid rate limit
			for i := prevDataLimit; i < dataLimit; i++ {
				t.logger.Message(ctx, logging.LevelDebug, "num_completions=%d, data instance=%d", numCompletions, i)
				instance := t.data[i]
				response, err := t.caller.getResponse(ctx, bindRequest(params, instance, prompt, messages, chat), evalOnly)
				if errors.Is(err, ErrPoisoned) { // rate limit error, treat as invalid
					if prune {
						t.region.MarkInvalid(regionKey, maxTokens, numCompletions)
					}
					return Result{t.metric: 0.0, "cost": cost}, nil
				} else if err != nil {
					return nil, err
				}
				responses := extractResponses(response, chat)
				nInputTokens := response.Usage.PromptTokens
				nOutputTokens := response.Usage.CompletionTokens
				if t.avgInputTokens == 0 && inputTokens[i] == 0 {
					inputTokens[i] = nInputTokens
				}
				queryCost := (price.Input*float64(nInputTokens) + price.Output*float64(nOutputTokens)) / 1000
				t.totalCost += queryCost
				cost += queryCost
				if t.optimizationBudget != nil && t.totalCost >= *t.optimizationBudget && !evalOnly {
					// limit the total tuning cost
					return Result{t.metric: 0.0, "total_cost": t.totalCost, "cost": cost}, nil
				}
				if previousNumCompletions > 0 {
					// requesting n1 then n2 completions and combining them is
					// assumed equivalent to requesting n1+n2 at once
					nTokensList[i] += nOutputTokens
					responsesList[i] = append(responsesList[i], responses...)
				} else {
					nTokensList = append(nTokensList, nOutputTokens)
					responsesList = append(responsesList, responses)
				}
			}
			avgTokens = meanInts(nTokensList[:dataLimit])
			sampled, total := float64(dataLimit), float64(dataLength)
			var rho float64
			if 2*dataLimit > dataLength {
				rho = (1 - sampled/total) * (1 + 1/sampled)
			} else {
				rho = 1 - (sampled-1)/total
			}
			ratio := t.hsFactor * math.Sqrt(rho/sampled) // Hoeffding-Serfling bound
			if targetSet && avgTokens > targetOutputTokens*(1+ratio) && !evalOnly {
				if prune {
					t.region.MarkInvalid(regionKey, maxTokens, numCompletions)
				}
				return Result{t.metric: 0.0, "total_cost": t.totalCost, "cost": cost}, nil
			}
			if prune && targetSet && avgTokens <= targetOutputTokens*(1-ratio) &&
				(numCompletions < configN || (numCompletions == configN && dataLimit == dataLength)) {
				t.region.MarkValid(regionKey, maxTokens, numCompletions)
				if numCompletions < configN {
					// valid already, skip the rest of the data
					dataLimit = dataLength
					dataEarlyStop = true
					break
				}
			}
			prevDataLimit = dataLimit
			if dataLimit < dataLength {
				dataLimit = min(dataLimit<<1, dataLength)
			} else {
				break
			}
		}
		// use exponential search to increase n
		if numCompletions == configN {
			result := make(Result)
			for i := 0; i < dataLimit; i++ {
				metrics := t.evalFunc(responsesList[i], t.data[i])
				for name, value := range metrics {
					if numeric, ok := toFloat(value); ok {
						if accumulated, ok := result[name].(float64); ok {
							result[name] = accumulated + numeric
						} else {
							result[name] = numeric
						}
					} else {
						result[name] = value // keep the last value seen
					}
				}
			}
			for name, value := range result {
				if numeric, ok := value.(float64); ok {
					result[name] = numeric / float64(dataLimit)
				}
			}
			result["total_cost"] = t.totalCost
			result["cost"] = cost
			if t.avgInputTokens == 0 {
				t.avgInputTokens = meanInts(inputTokens)
				if prune {
					targetOutputTokens = (*t.inferenceBudget*1000 - t.avgInputTokens*price.Input) / price.Output
				}
			}
			result["inference_cost"] = (avgTokens*price.Output + t.avgInputTokens*price.Input) / 1000
			return result, nil
		}
		if dataEarlyStop {
			// the partial tallies decided validity only; re-issue from scratch
			// at full data (cache hits make this cheap)
			previousNumCompletions = 0
			nTokensList = nil
			responsesList = nil
		} else {
			previousNumCompletions = numCompletions
		}
		numCompletions = min(numCompletions<<1, configN)
	}
}

// prunedResult is the synthetic worst-case outcome of a trial rejected
// without any API calls.
func (t *Tuner) prunedResult() Result {
	metricValue := math.Inf(-1)
	if t.mode == ModeMin {
		metricValue = math.Inf(1)
	}
	return Result{
		"inference_cost": math.Inf(1),
		t.metric:         metricValue,
		"cost":           0.0,
	}
}

// resolveTemplates resolves the trial's prompt or messages index into the
// corresponding template and the region identity of the choice.
func (t *Tuner) resolveTemplates(cfg Config, chat bool) (prompt *Template, messages []PromptMessage, identity string, err error) {
	promptIndex, hasPrompt := configInt(cfg, "prompt")
	messagesIndex, hasMessages := configInt(cfg, "messages")
	if chat {
		// chat models accept either a prompt template (shared with non-chat
		// candidates) or a messages template
		if hasPrompt == hasMessages {
			return nil, nil, "", fmt.Errorf("%w: chat models need either a prompt or a messages template", ErrInvalidArgument)
		}
	} else if !hasPrompt {
		return nil, nil, "", fmt.Errorf("%w: completion models need a prompt template", ErrInvalidArgument)
	}
	if hasMessages && chat {
		if messagesIndex < 0 || messagesIndex >= len(t.messages) {
			return nil, nil, "", fmt.Errorf("%w: messages index %d out of range", ErrInvalidArgument, messagesIndex)
		}
		return nil, t.messages[messagesIndex], fmt.Sprintf("messages:%d", messagesIndex), nil
	}
	if promptIndex < 0 || promptIndex >= len(t.prompts) {
		return nil, nil, "", fmt.Errorf("%w: prompt index %d out of range", ErrInvalidArgument, promptIndex)
	}
	return &t.prompts[promptIndex], nil, fmt.Sprintf("prompt:%d", promptIndex), nil
}

// resolveStop resolves the trial's stop index into concrete stop sequences
// and the region identity of the choice.
func (t *Tuner) resolveStop(cfg Config) ([]string, string) {
	if len(t.stops) == 0 {
		return nil, ""
	}
	index, ok := configInt(cfg, "stop")
	if !ok || index < 0 || index >= len(t.stops) {
		return nil, ""
	}
	return t.stops[index], fmt.Sprintf("stop:%d", index)
}

// baseParams materialises the instance-independent request fields of a trial.
func (t *Tuner) baseParams(cfg Config, model string, stop []string, hasMaxTokens bool, maxTokens int) providers.RequestParams {
	params := providers.RequestParams{Model: model, Stop: stop}
	if hasMaxTokens {
		params.MaxTokens = maxTokens
	}
	if sampling, ok := cfg["temperature_or_top_p"].(map[string]any); ok {
		if value, ok := toFloat(sampling["temperature"]); ok {
			params.Temperature = &value
		}
		if value, ok := toFloat(sampling["top_p"]); ok {
			params.TopP = &value
		}
	}
	if value, ok := toFloat(cfg["temperature"]); ok {
		params.Temperature = &value
	}
	if value, ok := toFloat(cfg["top_p"]); ok {
		params.TopP = &value
	}
	for name, value := range cfg {
		switch name {
		case "model", "prompt", "messages", "stop", "max_tokens", "n", "best_of",
			"temperature_or_top_p", "temperature", "top_p":
			// interpreted above
		default:
			if params.Extra == nil {
				params.Extra = make(map[string]any)
			}
			params.Extra[name] = value
		}
	}
	return params
}

// extractResponses pulls the generated strings out of a response, stripping
// trailing whitespace.
func extractResponses(response *providers.Response, chat bool) []string {
	out := make([]string, 0, len(response.Choices))
	for _, choice := range response.Choices {
		text := choice.Text
		if chat && choice.Message != nil {
			text = choice.Message.Content
		}
		out = append(out, strings.TrimRightFunc(text, unicode.IsSpace))
	}
	return out
}

func meanInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// toFloat reports whether the value is numeric, converting it to float64.
func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	default:
		return 0, false
	}
}

func configInt(cfg Config, name string) (int, bool) {
	value, ok := cfg[name]
	if !ok {
		return 0, false
	}
	if numeric, ok := toFloat(value); ok {
		return int(numeric), true
	}
	return 0, false
}

func configString(cfg Config, name string) (string, bool) {
	value, ok := cfg[name].(string)
	return value, ok
}
