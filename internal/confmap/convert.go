package confmap

import (
	"echostate/internal/estimator"
	"echostate/internal/model"
	"echostate/internal/search"
)

func Convert(kind string, in map[string]any) (any, error) {
	switch kind {
	case "train":
		return ConvertTrain(in), nil
	case "search":
		return ConvertSearch(in), nil
	case "params":
		return ConvertParams(in), nil
	case "reservoir":
		return ConvertReservoir(in), nil
	case "space":
		return ConvertSpace(in), nil
	default:
		return nil, ErrUnsupportedKind
	}
}

func ConvertTrain(in map[string]any) TrainSpec {
	out := defaultTrainSpec()
	for key, val := range in {
		switch key {
		case "kind":
			if s, ok := asString(val); ok {
				out.Kind = s
			}
		case "dataset":
			if s, ok := asString(val); ok {
				out.Dataset = s
			}
		case "steps":
			if n, ok := asInt(val); ok {
				out.Steps = n
			}
		case "seq_len":
			if n, ok := asInt(val); ok {
				out.SeqLen = n
			}
		case "as_list":
			if b, ok := asBool(val); ok {
				out.AsList = b
			}
		case "per_class":
			if n, ok := asInt(val); ok {
				out.PerClass = n
			}
		case "test_fraction":
			if f, ok := asFloat64(val); ok {
				out.TestFraction = f
			}
		case "seed":
			if n, ok := asInt64(val); ok {
				out.Seed = n
			}
		case "model_id":
			if s, ok := asString(val); ok {
				out.ModelID = s
			}
		case "params":
			if m, ok := asMap(val); ok {
				out.Params = ConvertParams(m)
			}
		}
	}
	return out
}

func ConvertSearch(in map[string]any) SearchSpec {
	out := defaultSearchSpec()
	for key, val := range in {
		switch key {
		case "kind":
			if s, ok := asString(val); ok {
				out.Kind = s
			}
		case "dataset":
			if s, ok := asString(val); ok {
				out.Dataset = s
			}
		case "steps":
			if n, ok := asInt(val); ok {
				out.Steps = n
			}
		case "seq_len":
			if n, ok := asInt(val); ok {
				out.SeqLen = n
			}
		case "per_class":
			if n, ok := asInt(val); ok {
				out.PerClass = n
			}
		case "test_fraction":
			if f, ok := asFloat64(val); ok {
				out.TestFraction = f
			}
		case "seed":
			if n, ok := asInt64(val); ok {
				out.Seed = n
			}
		case "budget":
			if n, ok := asInt(val); ok {
				out.Budget = n
			}
		case "rounds":
			if n, ok := asInt(val); ok {
				out.Rounds = n
			}
		case "policy":
			if s, ok := asString(val); ok {
				out.Policy = s
			}
		case "policy_param":
			if f, ok := asFloat64(val); ok {
				out.PolicyParam = f
			}
		case "space":
			if m, ok := asMap(val); ok {
				out.Space = ConvertSpace(m)
			}
		case "base":
			if m, ok := asMap(val); ok {
				out.Base = ConvertParams(m)
			}
		}
	}
	return out
}

func ConvertParams(in map[string]any) estimator.Params {
	out := defaultParams()
	for key, val := range in {
		switch key {
		case "reservoir":
			if m, ok := asMap(val); ok {
				out.Reservoir = ConvertReservoir(m)
			}
		case "alpha":
			if f, ok := asFloat64(val); ok {
				out.Alpha = f
			}
		case "fit_intercept":
			if b, ok := asBool(val); ok {
				out.FitIntercept = b
			}
		case "incremental":
			if b, ok := asBool(val); ok {
				out.Incremental = b
			}
		case "chunk_size":
			if n, ok := asInt(val); ok {
				out.ChunkSize = n
			}
		case "continuation":
			if b, ok := asBool(val); ok {
				out.Continuation = b
			}
		case "decision":
			if s, ok := asString(val); ok {
				out.Decision = s
			}
		case "workers":
			if n, ok := asInt(val); ok {
				out.Workers = n
			}
		}
	}
	return out
}

func ConvertReservoir(in map[string]any) model.ReservoirConfig {
	out := defaultReservoirConfig()
	for key, val := range in {
		switch key {
		case "hidden_size":
			if n, ok := asInt(val); ok {
				out.HiddenSize = n
			}
		case "input_scaling":
			if f, ok := asFloat64(val); ok {
				out.InputScaling = f
			}
		case "input_shift":
			if f, ok := asFloat64(val); ok {
				out.InputShift = f
			}
		case "bias_scaling":
			if f, ok := asFloat64(val); ok {
				out.BiasScaling = f
			}
		case "bias_shift":
			if f, ok := asFloat64(val); ok {
				out.BiasShift = f
			}
		case "spectral_radius":
			if f, ok := asFloat64(val); ok {
				out.SpectralRadius = f
			}
		case "leakage":
			if f, ok := asFloat64(val); ok {
				out.Leakage = f
			}
		case "sparsity_input":
			if f, ok := asFloat64(val); ok {
				out.SparsityInput = f
			}
		case "sparsity_recurrent":
			if f, ok := asFloat64(val); ok {
				out.SparsityRecurrent = f
			}
		case "bidirectional":
			if b, ok := asBool(val); ok {
				out.Bidirectional = b
			}
		case "activation":
			if s, ok := asString(val); ok {
				out.Activation = s
			}
		case "seed":
			if n, ok := asInt64(val); ok {
				out.Seed = n
			}
		}
	}
	return out
}

func ConvertSpace(in map[string]any) search.Space {
	var out search.Space
	for key, val := range in {
		switch key {
		case "hidden_sizes":
			if xs, ok := asInts(val); ok {
				out.HiddenSizes = xs
			}
		case "spectral_radius":
			if r, ok := asRange(val); ok {
				out.SpectralRadius = r
			}
		case "leakage":
			if r, ok := asRange(val); ok {
				out.Leakage = r
			}
		case "input_scaling":
			if r, ok := asRange(val); ok {
				out.InputScaling = r
			}
		case "alphas":
			if xs, ok := asFloat64s(val); ok {
				out.Alphas = xs
			}
		case "seeds":
			if xs, ok := asInt64s(val); ok {
				out.Seeds = xs
			}
		}
	}
	return out
}
