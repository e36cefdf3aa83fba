package estimator

import (
	"context"
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
	"echostate/internal/readout"
	"echostate/internal/reservoir"
)

// Regressor maps input sequences to real-valued output sequences with
// per-time-step targets. The zero value is unusable; construct with
// NewRegressor.
type Regressor struct {
	params    Params
	weights   *reservoir.WeightSet
	readout   *readout.Model
	inputDim  int
	outputDim int
}

func NewRegressor(p Params) (*Regressor, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Regressor{params: p}, nil
}

// Params returns a copy of the estimator parameters.
func (r *Regressor) Params() Params {
	return r.params.Clone()
}

// WithParams returns a fresh unfitted regressor sharing nothing with
// the receiver.
func (r *Regressor) WithParams(p Params) (*Regressor, error) {
	return NewRegressor(p)
}

// Fitted reports whether a successful Fit has completed.
func (r *Regressor) Fitted() bool {
	return r.readout != nil
}

// Fit rebuilds the reservoir weights from the configured seed, runs
// every sequence through it and trains the ridge readout on the state
// features. On any error the previously fitted state is untouched.
func (r *Regressor) Fit(ctx context.Context, inputs, targets []*mat.Dense) error {
	inputDim, outputDim, err := validateSequences(inputs, targets)
	if err != nil {
		return err
	}

	init, err := reservoir.NewInitializer(r.params.Reservoir)
	if err != nil {
		return err
	}
	weights, err := init.Build(inputDim)
	if err != nil {
		return err
	}

	features, err := transformAll(ctx, r.params, weights, inputs)
	if err != nil {
		return err
	}
	fitted, err := fitReadout(ctx, r.params, features, targets)
	if err != nil {
		return err
	}

	r.weights = weights
	r.readout = fitted
	r.inputDim = inputDim
	r.outputDim = outputDim
	return nil
}

// Predict returns one output sequence per input sequence.
func (r *Regressor) Predict(ctx context.Context, inputs []*mat.Dense) ([]*mat.Dense, error) {
	if r.readout == nil {
		return nil, fmt.Errorf("%w: regressor", model.ErrNotFitted)
	}
	if err := validateInputs(inputs, r.inputDim); err != nil {
		return nil, err
	}

	features, err := transformAll(ctx, r.params, r.weights, inputs)
	if err != nil {
		return nil, err
	}
	out := make([]*mat.Dense, len(features))
	for i := range features {
		pred, err := r.readout.Predict(features[i])
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}

// SizeBytes reports the memory held by the fitted weight matrices.
func (r *Regressor) SizeBytes() int64 {
	if r.weights == nil {
		return 0
	}
	total := r.weights.SizeBytes()
	if r.readout != nil {
		total += r.readout.SizeBytes()
	}
	return total
}

// Record captures the fitted regressor for persistence.
func (r *Regressor) Record(id string) (model.EstimatorRecord, error) {
	if r.readout == nil {
		return model.EstimatorRecord{}, fmt.Errorf("%w: regressor", model.ErrNotFitted)
	}
	return model.EstimatorRecord{
		ID:           id,
		Kind:         model.EstimatorRegressor,
		Config:       r.params.Reservoir,
		InputDim:     r.inputDim,
		OutputDim:    r.outputDim,
		FitIntercept: r.params.FitIntercept,
		Weights:      r.weights.Record(),
		Readout:      r.readout.Record(),
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// RegressorFromRecord rebuilds a fitted regressor from its persistent
// form.
func RegressorFromRecord(rec model.EstimatorRecord) (*Regressor, error) {
	if rec.Kind != model.EstimatorRegressor {
		return nil, fmt.Errorf("%w: record kind %q is not a regressor", model.ErrConfig, rec.Kind)
	}
	weights, fitted, err := restoreParts(rec)
	if err != nil {
		return nil, err
	}
	p := Params{
		Reservoir:    rec.Config,
		Alpha:        rec.Readout.Alpha,
		FitIntercept: rec.FitIntercept,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Regressor{
		params:    p,
		weights:   weights,
		readout:   fitted,
		inputDim:  rec.InputDim,
		outputDim: rec.OutputDim,
	}, nil
}

// restoreParts rebuilds the weight set and readout from a record and
// cross-checks their dimensions against the recorded config.
func restoreParts(rec model.EstimatorRecord) (*reservoir.WeightSet, *readout.Model, error) {
	weights, err := reservoir.WeightsFromRecord(rec.Weights)
	if err != nil {
		return nil, nil, err
	}
	fitted, err := readout.FromRecord(rec.Readout)
	if err != nil {
		return nil, nil, err
	}

	featureWidth := weights.HiddenSize()
	if rec.Config.Bidirectional {
		featureWidth *= 2
	}
	fr, fc := fitted.Dims()
	if fr != featureWidth || fc != rec.OutputDim {
		return nil, nil, fmt.Errorf("%w: readout is %dx%d, record implies %dx%d",
			model.ErrDimension, fr, fc, featureWidth, rec.OutputDim)
	}
	if weights.InputDim() != rec.InputDim {
		return nil, nil, fmt.Errorf("%w: weight set expects input width %d, record says %d",
			model.ErrDimension, weights.InputDim(), rec.InputDim)
	}
	return weights, fitted, nil
}
