// Package estimator composes the reservoir and readout layers into
// fit/predict estimators over batches of input sequences.
package estimator

import (
	"fmt"
	"runtime"

	"echostate/internal/model"
)

// Decision strategies for reducing per-step classifier scores to one
// label per sequence.
const (
	DecisionMajority = "majority"
	DecisionMean     = "mean"
	DecisionLast     = "last"
)

const defaultChunkSize = 256

// Params carries every knob of an estimator. The zero value of the
// optional fields selects the documented defaults.
type Params struct {
	Reservoir    model.ReservoirConfig `json:"reservoir"`
	Alpha        float64               `json:"alpha"`
	FitIntercept bool                  `json:"fit_intercept"`
	Incremental  bool                  `json:"incremental"`
	ChunkSize    int                   `json:"chunk_size,omitempty"`
	Continuation bool                  `json:"continuation"`
	Decision     string                `json:"decision,omitempty"`
	Workers      int                   `json:"workers,omitempty"`
}

// Validate checks the parameter set without touching any data.
func (p Params) Validate() error {
	if err := p.Reservoir.Validate(); err != nil {
		return err
	}
	if p.Alpha < 0 {
		return fmt.Errorf("%w: alpha must be non-negative, got %v", model.ErrConfig, p.Alpha)
	}
	if p.ChunkSize < 0 {
		return fmt.Errorf("%w: chunk size must be non-negative, got %d", model.ErrConfig, p.ChunkSize)
	}
	switch p.Decision {
	case "", DecisionMajority, DecisionMean, DecisionLast:
	default:
		return fmt.Errorf("%w: unknown decision strategy %q", model.ErrConfig, p.Decision)
	}
	return nil
}

// Clone returns an independent copy. Params holds no reference types,
// but search code mutates candidates and must never share backing
// state with a fitted estimator.
func (p Params) Clone() Params {
	return p
}

func (p Params) decision() string {
	if p.Decision == "" {
		return DecisionMean
	}
	return p.Decision
}

func (p Params) chunkSize() int {
	if p.ChunkSize <= 0 {
		return defaultChunkSize
	}
	return p.ChunkSize
}

func (p Params) workerCount() int {
	if p.Workers > 0 {
		return p.Workers
	}
	return runtime.GOMAXPROCS(0)
}
