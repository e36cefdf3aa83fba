package main

import (
	"encoding/json"
	"fmt"
	"os"

	"echostate/internal/confmap"
	esapi "echostate/pkg/echostate"
)

// loadTrainRequestFromConfig reads a JSON config file and converts it
// into a train request. Missing fields keep their defaults.
func loadTrainRequestFromConfig(path string) (esapi.TrainRequest, error) {
	in, err := loadConfigMap(path)
	if err != nil {
		return esapi.TrainRequest{}, err
	}
	spec := confmap.ConvertTrain(in)
	return esapi.TrainRequest{
		Kind:         spec.Kind,
		Dataset:      spec.Dataset,
		Steps:        spec.Steps,
		SeqLen:       spec.SeqLen,
		AsList:       spec.AsList,
		PerClass:     spec.PerClass,
		TestFraction: spec.TestFraction,
		Seed:         spec.Seed,
		ModelID:      spec.ModelID,
		Params:       spec.Params,
	}, nil
}

func loadSearchRequestFromConfig(path string) (esapi.SearchRequest, error) {
	in, err := loadConfigMap(path)
	if err != nil {
		return esapi.SearchRequest{}, err
	}
	spec := confmap.ConvertSearch(in)
	return esapi.SearchRequest{
		Kind:         spec.Kind,
		Dataset:      spec.Dataset,
		Steps:        spec.Steps,
		SeqLen:       spec.SeqLen,
		PerClass:     spec.PerClass,
		TestFraction: spec.TestFraction,
		Seed:         spec.Seed,
		Budget:       spec.Budget,
		Rounds:       spec.Rounds,
		Policy:       spec.Policy,
		PolicyParam:  spec.PolicyParam,
		Space:        spec.Space,
		Base:         spec.Base,
	}, nil
}

func loadConfigMap(path string) (map[string]any, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var in map[string]any
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return in, nil
}
