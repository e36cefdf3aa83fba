// Package search explores estimator hyperparameters against a
// caller-supplied scoring callback. It is a thin orchestration layer:
// the caller decides what a score means and how it is computed.
package search

import (
	"context"

	"echostate/internal/estimator"
)

// Scorer evaluates one candidate parameter set. Higher is better;
// callers scoring by error should negate.
type Scorer func(ctx context.Context, p estimator.Params) (float64, error)

// Result reports the best candidate a search found.
type Result struct {
	Params      estimator.Params `json:"params"`
	Score       float64          `json:"score"`
	Evaluations int              `json:"evaluations"`
}

type Searcher interface {
	Name() string
	Search(ctx context.Context, base estimator.Params, budget int, score Scorer) (Result, error)
}
