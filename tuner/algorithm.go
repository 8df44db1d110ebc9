// Copyright (C) 2026 Petr Malik
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at <https://mozilla.org/MPL/2.0/>.

package tuner

import (
	"errors"
)

// ErrSearchExhausted is returned by Algorithm.Suggest when the algorithm has
// no further configurations to propose. The driver ends the run cleanly.
var ErrSearchExhausted = errors.New("search algorithm exhausted")

// AlgorithmConfig parameterises the construction of a search algorithm.
type AlgorithmConfig struct {
	// Space is the normalised search space: template variables are folded
	// into integer-index choices.
	Space Space
	// Metric names the optimized result field; Mode is ModeMin or ModeMax.
	Metric string
	Mode   string
	// CostAttr names the per-trial cost attribute of reported results.
	CostAttr string
	// CostBudget caps the total spend the algorithm should plan for.
	// Zero means unbounded.
	CostBudget float64
	// PointsToEvaluate are configurations to propose before searching.
	PointsToEvaluate []Config
	// Seed makes sampling reproducible.
	Seed int64
}

// Algorithm proposes trial configurations and consumes their results. The
// blackbox search strategy is an external collaborator; the driver only
// requires this narrow contract.
type Algorithm interface {
	// Suggest proposes the configuration for the given trial.
	Suggest(trialID string) (Config, error)
	// Record reports the trial's outcome back to the algorithm.
	Record(trialID string, result Result)
}

// AlgorithmFactory constructs a search algorithm. The driver may construct
// the algorithm twice: once to obtain a common starting point and once more
// with the per-model seed points.
type AlgorithmFactory func(cfg AlgorithmConfig) (Algorithm, error)
