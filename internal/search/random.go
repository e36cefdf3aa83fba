package search

import (
	"context"
	"errors"
	"math/rand"

	"echostate/internal/estimator"
)

// Space bounds the hyperparameters RandomSearch is allowed to vary.
// Zero-valued fields leave the corresponding base parameter untouched,
// so a search can vary a single knob.
type Space struct {
	HiddenSizes    []int      `json:"hidden_sizes,omitempty"`
	SpectralRadius [2]float64 `json:"spectral_radius,omitempty"`
	Leakage        [2]float64 `json:"leakage,omitempty"`
	InputScaling   [2]float64 `json:"input_scaling,omitempty"`
	Alphas         []float64  `json:"alphas,omitempty"`
	Seeds          []int64    `json:"seeds,omitempty"`
}

func (s Space) empty() bool {
	return len(s.HiddenSizes) == 0 &&
		s.SpectralRadius == [2]float64{} &&
		s.Leakage == [2]float64{} &&
		s.InputScaling == [2]float64{} &&
		len(s.Alphas) == 0 &&
		len(s.Seeds) == 0
}

// RandomSearch samples candidates uniformly from a Space and keeps the
// best score. The base parameter set is always evaluated first, so the
// result can never be worse than the starting point.
type RandomSearch struct {
	Rand      *rand.Rand
	Space     Space
	GoalScore float64
}

func (s *RandomSearch) Name() string {
	return "random_search"
}

func (s *RandomSearch) Search(ctx context.Context, base estimator.Params, budget int, score Scorer) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	if s == nil || s.Rand == nil {
		return Result{}, errors.New("random source is required")
	}
	if score == nil {
		return Result{}, errors.New("scorer is required")
	}
	if budget <= 0 {
		return Result{}, errors.New("budget must be > 0")
	}
	if s.Space.empty() {
		return Result{}, errors.New("search space is empty")
	}
	if err := base.Validate(); err != nil {
		return Result{}, err
	}

	best := base.Clone()
	bestScore, err := score(ctx, best)
	if err != nil {
		return Result{}, err
	}
	evaluations := 1

	for evaluations < budget {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if s.GoalScore > 0 && bestScore >= s.GoalScore {
			break
		}

		candidate := s.sample(base)
		if err := candidate.Validate(); err != nil {
			return Result{}, err
		}
		candidateScore, err := score(ctx, candidate)
		if err != nil {
			return Result{}, err
		}
		evaluations++

		if candidateScore > bestScore {
			best = candidate
			bestScore = candidateScore
		}
	}

	return Result{Params: best, Score: bestScore, Evaluations: evaluations}, nil
}

// sample draws one candidate from the space over the base parameters.
// Draw order is fixed so a seeded search is reproducible.
func (s *RandomSearch) sample(base estimator.Params) estimator.Params {
	p := base.Clone()
	if len(s.Space.HiddenSizes) > 0 {
		p.Reservoir.HiddenSize = s.Space.HiddenSizes[s.Rand.Intn(len(s.Space.HiddenSizes))]
	}
	if lo, hi := s.Space.SpectralRadius[0], s.Space.SpectralRadius[1]; hi > lo {
		p.Reservoir.SpectralRadius = lo + s.Rand.Float64()*(hi-lo)
	}
	if lo, hi := s.Space.Leakage[0], s.Space.Leakage[1]; hi > lo {
		p.Reservoir.Leakage = lo + s.Rand.Float64()*(hi-lo)
	}
	if lo, hi := s.Space.InputScaling[0], s.Space.InputScaling[1]; hi > lo {
		p.Reservoir.InputScaling = lo + s.Rand.Float64()*(hi-lo)
	}
	if len(s.Space.Alphas) > 0 {
		p.Alpha = s.Space.Alphas[s.Rand.Intn(len(s.Space.Alphas))]
	}
	if len(s.Space.Seeds) > 0 {
		p.Reservoir.Seed = s.Space.Seeds[s.Rand.Intn(len(s.Space.Seeds))]
	}
	return p
}
