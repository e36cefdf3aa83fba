// Package confmap converts loosely typed configuration maps, as
// decoded from JSON config files, into the typed structures the rest
// of the system consumes. Unknown keys are ignored and missing keys
// fall back to defaults, so old config files keep working as fields
// are added.
package confmap

import (
	"errors"

	"echostate/internal/estimator"
	"echostate/internal/model"
	"echostate/internal/search"
)

var ErrUnsupportedKind = errors.New("unsupported confmap kind")

// TrainSpec mirrors a training request as written in a config file.
type TrainSpec struct {
	Kind         string
	Dataset      string
	Steps        int
	SeqLen       int
	AsList       bool
	PerClass     int
	TestFraction float64
	Seed         int64
	ModelID      string
	Params       estimator.Params
}

// SearchSpec mirrors a hyperparameter search request as written in a
// config file.
type SearchSpec struct {
	Kind         string
	Dataset      string
	Steps        int
	SeqLen       int
	PerClass     int
	TestFraction float64
	Seed         int64
	Budget       int
	Rounds       int
	Policy       string
	PolicyParam  float64
	Space        search.Space
	Base         estimator.Params
}

func defaultReservoirConfig() model.ReservoirConfig {
	return model.ReservoirConfig{
		HiddenSize:        50,
		InputScaling:      0.5,
		BiasScaling:       0.1,
		SpectralRadius:    0.9,
		Leakage:           1.0,
		SparsityRecurrent: 0.5,
		Activation:        "tanh",
	}
}

func defaultParams() estimator.Params {
	return estimator.Params{
		Reservoir: defaultReservoirConfig(),
		Alpha:     1e-6,
	}
}

func defaultTrainSpec() TrainSpec {
	return TrainSpec{
		Kind:   model.EstimatorRegressor,
		Params: defaultParams(),
	}
}

func defaultSearchSpec() SearchSpec {
	return SearchSpec{
		Kind:   model.EstimatorRegressor,
		Budget: 20,
		Rounds: 1,
		Policy: "fixed",
		Base:   defaultParams(),
	}
}
