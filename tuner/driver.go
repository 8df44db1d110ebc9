// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package tuner implements the cost-aware hyperparameter search core: a
// staged, pruning trial evaluator over a remote text-completion endpoint, a
// region index rejecting configurations without API calls, a memoising
// remote caller, and the driver gluing them to a search algorithm.
package tuner

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/petmal/apitune/cache"
	"github.com/petmal/apitune/config"
	"github.com/petmal/apitune/pkg/logging"
	"github.com/petmal/apitune/providers"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Optimization modes.
const (
	ModeMin = "min"
	ModeMax = "max"
)

// CostAttr is the per-trial cost attribute reported to the search algorithm.
const CostAttr = "cost"

// DefaultHoeffdingFactor scales the Hoeffding-Serfling slack around the
// average-output-token estimate.
const DefaultHoeffdingFactor = 0.1

// ErrInvalidArgument is returned for invalid tune or create arguments.
var ErrInvalidArgument = errors.New("invalid argument")

// Tuner searches a space of generation parameters for the configuration that
// optimizes a user metric within an inference budget and an optimization
// budget. All trial state lives on the Tuner value; nothing is ambient.
type Tuner struct {
	endpoint     providers.Endpoint
	logger       logging.Logger
	chatModels   map[string]bool
	priceTable   map[string]config.PricePair
	retryTime    time.Duration
	retryTimeout time.Duration
	maxAttempts  int
	limiter      *rate.Limiter
	azure        bool
	cacheRoot    string
	seed         int
	strictPerms  bool

	// run-scoped trial state, initialised by Tune and discarded at its end
	data               []DataInstance
	metric             string
	mode               string
	evalFunc           MetricFunc
	inferenceBudget    *float64
	optimizationBudget *float64
	hsFactor           float64
	pruneHP            string
	normalizedSpace    Space
	prompts            []Template
	messages           [][]PromptMessage
	stops              [][]string
	region             *RegionIndex
	totalCost          float64
	avgInputTokens     float64
	caller             *remoteCaller
}

// NewTuner creates a tuner over the given endpoint. The configuration
// supplies cache location, retry policy, rate limits and price overrides.
func NewTuner(endpoint providers.Endpoint, cfg config.Config, logger logging.Logger) *Tuner {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	priceTable := config.DefaultPriceTable()
	for model, price := range cfg.Pricing {
		priceTable[model] = price
	}
	var limiter *rate.Limiter
	if cfg.MaxRequestsPerMinute > 0 {
		ratePerSecond := rate.Limit(cfg.MaxRequestsPerMinute) / 60
		limiter = rate.NewLimiter(ratePerSecond, cfg.MaxRequestsPerMinute) // allow a burst up to the per-minute limit
	}
	return &Tuner{
		endpoint:     endpoint,
		logger:       logger,
		chatModels:   config.DefaultChatModels(),
		priceTable:   priceTable,
		retryTime:    cfg.Retry.RetryTime,
		retryTimeout: cfg.Retry.RetryTimeout,
		maxAttempts:  cfg.Retry.MaxAttempts,
		limiter:      limiter,
		azure:        cfg.Providers.OpenAI != nil && cfg.Providers.OpenAI.IsAzure(),
		cacheRoot:    cfg.Cache.Root,
		seed:         cfg.Cache.Seed,
		strictPerms:  cfg.Cache.StrictPerms,
	}
}

// SetChatModels replaces the set of models whose request shape uses messages.
func (t *Tuner) SetChatModels(models map[string]bool) {
	t.chatModels = models
}

// TotalCost returns the cumulative spend across all trials of the current run.
func (t *Tuner) TotalCost() float64 {
	return t.totalCost
}

// TuneRequest holds the parameters of one tuning run.
type TuneRequest struct {
	// Data is the evaluation dataset.
	Data []DataInstance
	// Metric names the optimized field of the metric results; Mode is ModeMin
	// or ModeMax.
	Metric string
	Mode   string
	// EvalFunc scores the generated responses for one data instance.
	EvalFunc MetricFunc
	// InferenceBudget caps the average serving cost per instance. Nil disables
	// budget pruning.
	InferenceBudget *float64
	// OptimizationBudget caps the total spend during tuning. Nil means
	// unbounded.
	OptimizationBudget *float64
	// NumSamples is the number of trials; 0 defaults to 1 and -1 means
	// bounded only by the optimization budget.
	NumSamples int
	// HoeffdingFactor overrides the early-stop slack factor. Zero selects
	// DefaultHoeffdingFactor.
	HoeffdingFactor float64
	// LogFileName, when set, receives one JSON record per trial.
	LogFileName string
	// Space overrides entries of the default search space. Prompt, messages
	// and stop entries accept template values and are folded into
	// integer-index choices before the search starts.
	Space map[string]any
	// Algorithm constructs the search algorithm driving the run.
	Algorithm AlgorithmFactory
}

// TrialRecord is the outcome of one trial.
type TrialRecord struct {
	ID     string `json:"id"`
	Config Config `json:"config"`
	Result Result `json:"result"`
}

// Analysis summarises a tuning run.
type Analysis struct {
	// RunID uniquely identifies the run.
	RunID string
	// Trials lists the evaluated trials in order.
	Trials []TrialRecord
	// BestConfig is the best trial configuration in normalised (index) form.
	BestConfig Config
	// BestResult is the best trial's result mapping.
	BestResult Result
}

// Tune searches the space for the configuration optimizing the metric within
// the budgets. It returns the best configuration materialised back into
// concrete templates, together with the run analysis.
func (t *Tuner) Tune(ctx context.Context, req TuneRequest) (Config, *Analysis, error) {
	if err := t.prepareRun(req); err != nil {
		return nil, nil, err
	}
	defer t.endRun()

	store, err := cache.OpenDiskStore(t.cacheRoot, t.seed, t.strictPerms)
	if err != nil {
		return nil, nil, err
	}
	defer store.Close()
	t.caller = t.newCaller(store)

	space := t.normalizedSpace
	algorithmConfig := AlgorithmConfig{
		Space:    space,
		Metric:   t.metric,
		Mode:     t.mode,
		CostAttr: CostAttr,
		Seed:     int64(t.seed),
	}
	if t.optimizationBudget != nil {
		algorithmConfig.CostBudget = *t.optimizationBudget
	}
	algorithm, err := req.Algorithm(algorithmConfig)
	if err != nil {
		return nil, nil, err
	}

	// start all candidate models from a common hyperparameter configuration
	if modelChoice, ok := space["model"].(Choice); ok && len(modelChoice.Options) > 1 {
		seedConfig, err := algorithm.Suggest("t0")
		if err != nil {
			return nil, nil, err
		}
		points := []Config{seedConfig}
		for _, option := range modelChoice.Options {
			if model, ok := option.(string); ok && model != seedConfig["model"] {
				point := seedConfig.Clone()
				point["model"] = model
				points = append(points, point)
			}
		}
		algorithmConfig.PointsToEvaluate = points
		if algorithm, err = req.Algorithm(algorithmConfig); err != nil {
			return nil, nil, err
		}
	}

	var trialLog *zerolog.Logger
	if req.LogFileName != "" {
		fp, err := os.Create(req.LogFileName)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create trial log file: %w", err)
		}
		defer fp.Close()
		logger := zerolog.New(fp).With().Timestamp().Logger()
		trialLog = &logger
	}

	analysis := &Analysis{RunID: ulid.Make().String()}
	numSamples := req.NumSamples
	if numSamples == 0 {
		numSamples = 1
	}
	for i := 0; numSamples == -1 || i < numSamples; i++ {
		trialID := uuid.NewString()
		trialConfig, err := algorithm.Suggest(trialID)
		if errors.Is(err, ErrSearchExhausted) {
			break
		} else if err != nil {
			return nil, nil, err
		}
		result, err := t.eval(ctx, trialConfig, true, false)
		if err != nil {
			return nil, nil, err
		}
		algorithm.Record(trialID, result)
		record := TrialRecord{ID: trialID, Config: trialConfig, Result: result}
		analysis.Trials = append(analysis.Trials, record)
		if trialLog != nil {
			trialLog.Info().Interface("trial", record).Msg("trial finished")
		}
		t.updateBest(analysis, record)
		if t.optimizationBudget != nil && t.totalCost >= *t.optimizationBudget {
			t.logger.Message(ctx, logging.LevelInfo, "optimization budget exhausted after %d trial(s)", i+1)
			break
		}
	}
	if analysis.BestConfig == nil {
		return nil, analysis, fmt.Errorf("no trial produced the metric %q", t.metric)
	}
	return t.materialize(analysis.BestConfig), analysis, nil
}

// updateBest tracks the best trial by the optimized metric.
func (t *Tuner) updateBest(analysis *Analysis, record TrialRecord) {
	value, ok := record.Result.Float(t.metric)
	if !ok || math.IsNaN(value) {
		return
	}
	if analysis.BestConfig == nil {
		analysis.BestConfig = record.Config
		analysis.BestResult = record.Result
		return
	}
	best, _ := analysis.BestResult.Float(t.metric)
	if (t.mode == ModeMin && value < best) || (t.mode == ModeMax && value > best) {
		analysis.BestConfig = record.Config
		analysis.BestResult = record.Result
	}
}

// materialize folds the normalised best configuration back into concrete
// templates and sampling fields.
func (t *Tuner) materialize(best Config) Config {
	params := best.Clone()
	if index, ok := configInt(params, "messages"); ok && len(t.messages) > 0 {
		params["messages"] = t.messages[index]
		delete(params, "prompt")
	} else if index, ok := configInt(params, "prompt"); ok && len(t.prompts) > 0 {
		params["prompt"] = t.prompts[index]
	}
	if index, ok := configInt(params, "stop"); ok && len(t.stops) > 0 {
		params["stop"] = t.stops[index]
	}
	if sampling, ok := params["temperature_or_top_p"].(map[string]any); ok {
		delete(params, "temperature_or_top_p")
		for name, value := range sampling {
			params[name] = value
		}
	}
	return params
}

// prepareRun validates the request and initialises the run-scoped state.
func (t *Tuner) prepareRun(req TuneRequest) error {
	if len(req.Data) == 0 {
		return fmt.Errorf("%w: no evaluation data", ErrInvalidArgument)
	}
	if req.Metric == "" {
		return fmt.Errorf("%w: metric name is required", ErrInvalidArgument)
	}
	if req.Mode != ModeMin && req.Mode != ModeMax {
		return fmt.Errorf("%w: mode must be %q or %q", ErrInvalidArgument, ModeMin, ModeMax)
	}
	if req.EvalFunc == nil {
		return fmt.Errorf("%w: metric function is required", ErrInvalidArgument)
	}
	if req.Algorithm == nil {
		return fmt.Errorf("%w: search algorithm is required", ErrInvalidArgument)
	}
	if req.NumSamples == -1 && req.OptimizationBudget == nil {
		return fmt.Errorf("%w: unbounded num samples need an optimization budget", ErrInvalidArgument)
	}
	if err := t.normalizeSpace(req.Space); err != nil {
		return err
	}
	t.data = req.Data
	t.metric = req.Metric
	t.mode = req.Mode
	t.evalFunc = req.EvalFunc
	t.inferenceBudget = req.InferenceBudget
	t.optimizationBudget = req.OptimizationBudget
	t.hsFactor = req.HoeffdingFactor
	if t.hsFactor == 0 {
		t.hsFactor = DefaultHoeffdingFactor
	}
	t.region = NewRegionIndex()
	t.totalCost = 0
	t.avgInputTokens = 0
	return nil
}

// endRun discards the run-scoped state.
func (t *Tuner) endRun() {
	t.data = nil
	t.evalFunc = nil
	t.prompts = nil
	t.messages = nil
	t.stops = nil
	t.normalizedSpace = nil
	t.region = nil
	t.caller = nil
	t.inferenceBudget = nil
	t.optimizationBudget = nil
}

func (t *Tuner) newCaller(store cache.Store) *remoteCaller {
	return &remoteCaller{
		endpoint:     t.endpoint,
		store:        store,
		chatModels:   t.chatModels,
		azure:        t.azure,
		retryTime:    t.retryTime,
		retryTimeout: t.retryTimeout,
		maxAttempts:  t.maxAttempts,
		limiter:      t.limiter,
		logger:       t.logger,
	}
}
