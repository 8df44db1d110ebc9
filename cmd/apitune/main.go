// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

// Package main provides the command-line interface and the main entry point for apitune.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/petmal/apitune/config"
	"github.com/petmal/apitune/pkg/logging"
	"github.com/petmal/apitune/providers"
	"github.com/petmal/apitune/search"
	"github.com/petmal/apitune/tuner"
	"github.com/petmal/apitune/version"
	"github.com/rs/zerolog"
)

const (
	tuneCommandName    = "tune"
	helpCommandName    = "help"
	versionCommandName = "version"
	exitCodeBadCommand = 2
	defaultConfigFile  = "config.yaml"
)

var commandDoc = map[string]string{
	tuneCommandName:    "search for the best generation parameters",
	helpCommandName:    "show help",
	versionCommandName: "show version",
}

var (
	configFilePath = flag.String("config", defaultConfigFile, "configuration file path")
	dataFilePath   = flag.String("data", "", "evaluation dataset file path (YAML list of instances)")
	metricFn       = flag.String("metric-fn", "exact_match", "built-in metric function: exact_match, contains, or success_count")
	answerField    = flag.String("answer-field", "answer", "data instance field holding the expected answer")
	promptOverride = flag.String("prompt", "", "prompt template override, e.g. \"{prompt}\"")
	trialLogPath   = flag.String("trial-log", "", "trial log file path; blank = disabled")
	verbose        = flag.Bool("verbose", false, "enable debug logging")
)

func init() {
	flag.Usage = func() {
		w := flag.CommandLine.Output()
		fmt.Fprintf(w, "Usage: %s [options] [command]\n", os.Args[0])
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Commands:")
		printCommandHelp(w, tuneCommandName, helpCommandName, versionCommandName)
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		flag.PrintDefaults()
	}
}

func printCommandHelp(out io.Writer, commands ...string) {
	for _, cmdName := range commands {
		fmt.Fprintf(out, "  %s\n        %s\n", cmdName, commandDoc[cmdName])
	}
}

func main() {
	if len(os.Args) > 1 {
		for _, arg := range os.Args[1:] {
			switch arg {
			case helpCommandName:
				flag.Usage()
				return
			case versionCommandName:
				fmt.Printf("%s %s (%s)\n", version.Name, version.GetVersion(), version.GetSource())
				return
			case tuneCommandName:
				if err := tune(); err != nil {
					fmt.Fprintf(os.Stderr, "%s: %v\n", version.Name, err)
					os.Exit(1)
				}
				return
			}
		}
	}
	flag.CommandLine.SetOutput(os.Stderr)
	flag.Usage()
	os.Exit(exitCodeBadCommand)
}

func tune() error {
	ctx := context.Background()
	flag.Parse()

	level := zerolog.InfoLevel
	if *verbose {
		level = zerolog.DebugLevel
	}
	console := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	logger := logging.NewLogger(console)

	cfg, err := config.LoadConfigFromFile(ctx, filepath.Clean(*configFilePath))
	if err != nil {
		return err
	}
	if *dataFilePath == "" {
		return fmt.Errorf("the -data flag is required")
	}
	rawData, err := config.LoadDataFromFile(ctx, filepath.Clean(*dataFilePath))
	if err != nil {
		return err
	}
	data := make([]tuner.DataInstance, 0, len(rawData))
	for _, instance := range rawData {
		data = append(data, tuner.DataInstance(instance))
	}

	endpoint, err := newEndpoint(ctx, cfg.Providers)
	if err != nil {
		return err
	}
	defer endpoint.Close(ctx)

	evalFunc, err := builtinMetric(*metricFn, *answerField)
	if err != nil {
		return err
	}

	request := tuner.TuneRequest{
		Data:        data,
		Metric:      cfg.Tune.Metric,
		Mode:        cfg.Tune.Mode,
		EvalFunc:    evalFunc,
		NumSamples:  cfg.Tune.NumSamples,
		LogFileName: *trialLogPath,
		Algorithm:   search.NewRandom,
	}
	if cfg.Tune.InferenceBudget > 0 {
		budget := cfg.Tune.InferenceBudget
		request.InferenceBudget = &budget
	}
	if cfg.Tune.OptimizationBudget > 0 {
		budget := cfg.Tune.OptimizationBudget
		request.OptimizationBudget = &budget
	}
	if *promptOverride != "" {
		request.Space = map[string]any{"prompt": *promptOverride}
	}

	driver := tuner.NewTuner(endpoint, *cfg, logger)
	best, analysis, err := driver.Tune(ctx, request)
	if err != nil {
		return err
	}

	logger.Message(ctx, logging.LevelInfo, "run %s finished: %d trial(s), total cost %.6f",
		analysis.RunID, len(analysis.Trials), driver.TotalCost())
	fmt.Printf("best configuration: %v\n", best)
	fmt.Printf("best result: %v\n", analysis.BestResult)
	return nil
}

// newEndpoint builds the endpoint connector for the first configured provider.
func newEndpoint(ctx context.Context, cfg config.ProviderConfig) (providers.Endpoint, error) {
	switch {
	case cfg.OpenAI != nil:
		return providers.NewOpenAI(*cfg.OpenAI), nil
	case cfg.Anthropic != nil:
		return providers.NewAnthropic(*cfg.Anthropic), nil
	case cfg.Deepseek != nil:
		return providers.NewDeepseek(*cfg.Deepseek)
	case cfg.Google != nil:
		return providers.NewGoogleAI(ctx, *cfg.Google)
	default:
		return nil, fmt.Errorf("no endpoint provider configured")
	}
}

// builtinMetric returns one of the built-in metric functions. Each scores the
// responses against the expected answer held by the named instance field and
// reports expected_success over the completion count, plain success, and the
// raw number of matching completions.
func builtinMetric(name string, field string) (tuner.MetricFunc, error) {
	exact := func(response string, answer string) bool {
		return strings.TrimSpace(response) == strings.TrimSpace(answer)
	}
	var match func(response string, answer string) bool
	switch name {
	case "exact_match", "success_count":
		match = exact
	case "contains":
		match = strings.Contains
	default:
		return nil, fmt.Errorf("unknown metric function %q", name)
	}
	return func(responses []string, instance tuner.DataInstance) map[string]any {
		answer := fmt.Sprint(instance[field])
		succeeded := 0
		for _, response := range responses {
			if match(response, answer) {
				succeeded++
			}
		}
		n := float64(len(responses))
		expectedSuccess := 0.0
		success := 0.0
		if n > 0 {
			expectedSuccess = 1 - math.Pow(1-float64(succeeded)/n, n)
		}
		if succeeded > 0 {
			success = 1
		}
		return map[string]any{
			"expected_success": expectedSuccess,
			"success":          success,
			"success_count":    float64(succeeded),
		}
	}, nil
}
