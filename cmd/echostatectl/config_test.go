package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTrainRequestFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "train_config.json")
	payload := map[string]any{
		"kind":          "classifier",
		"dataset":       "freq_bands",
		"steps":         600,
		"per_class":     12,
		"test_fraction": 0.3,
		"seed":          9,
		"model_id":      "bands-v1",
		"params": map[string]any{
			"alpha":    0.001,
			"decision": "majority",
			"reservoir": map[string]any{
				"hidden_size": 80,
				"leakage":     0.7,
			},
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadTrainRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load train request: %v", err)
	}
	if req.Kind != "classifier" || req.Dataset != "freq_bands" || req.ModelID != "bands-v1" {
		t.Fatalf("unexpected base fields: %+v", req)
	}
	if req.Steps != 600 || req.PerClass != 12 || req.Seed != 9 || req.TestFraction != 0.3 {
		t.Fatalf("unexpected numeric fields: %+v", req)
	}
	if req.Params.Alpha != 0.001 || req.Params.Decision != "majority" {
		t.Fatalf("unexpected readout params: %+v", req.Params)
	}
	if req.Params.Reservoir.HiddenSize != 80 || req.Params.Reservoir.Leakage != 0.7 {
		t.Fatalf("unexpected reservoir overrides: %+v", req.Params.Reservoir)
	}
	if req.Params.Reservoir.Activation != "tanh" {
		t.Fatalf("expected default activation preserved, got %q", req.Params.Reservoir.Activation)
	}
}

func TestLoadSearchRequestFromConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "search_config.json")
	payload := map[string]any{
		"dataset":      "narma",
		"steps":        500,
		"budget":       15,
		"rounds":       3,
		"policy":       "linear_decay",
		"policy_param": 2,
		"seed":         2,
		"space": map[string]any{
			"hidden_sizes":    []any{30, 60},
			"spectral_radius": []any{0.6, 1.1},
			"alphas":          []any{1e-6, 1e-3},
		},
		"base": map[string]any{
			"alpha": 0.0001,
		},
	}
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	req, err := loadSearchRequestFromConfig(path)
	if err != nil {
		t.Fatalf("load search request: %v", err)
	}
	if req.Dataset != "narma" || req.Steps != 500 || req.Budget != 15 || req.Seed != 2 {
		t.Fatalf("unexpected base fields: %+v", req)
	}
	if req.Rounds != 3 || req.Policy != "linear_decay" || req.PolicyParam != 2 {
		t.Fatalf("unexpected round policy fields: %+v", req)
	}
	if len(req.Space.HiddenSizes) != 2 || req.Space.HiddenSizes[0] != 30 {
		t.Fatalf("unexpected hidden sizes: %#v", req.Space.HiddenSizes)
	}
	if req.Space.SpectralRadius != [2]float64{0.6, 1.1} {
		t.Fatalf("unexpected radius range: %#v", req.Space.SpectralRadius)
	}
	if req.Base.Alpha != 0.0001 {
		t.Fatalf("unexpected base alpha: %v", req.Base.Alpha)
	}
}

func TestLoadTrainRequestFromConfigMissingFile(t *testing.T) {
	if _, err := loadTrainRequestFromConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoadTrainRequestFromConfigBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{nope"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadTrainRequestFromConfig(path); err == nil {
		t.Fatal("expected error for malformed config file")
	}
}

func TestParseSpace(t *testing.T) {
	space, err := parseSpace("0.5:1.2", "0.2:1.0", "1e-6,1e-3")
	if err != nil {
		t.Fatalf("parse space: %v", err)
	}
	if space.SpectralRadius != [2]float64{0.5, 1.2} {
		t.Fatalf("unexpected radius range: %#v", space.SpectralRadius)
	}
	if space.Leakage != [2]float64{0.2, 1.0} {
		t.Fatalf("unexpected leak range: %#v", space.Leakage)
	}
	if len(space.Alphas) != 2 || space.Alphas[1] != 1e-3 {
		t.Fatalf("unexpected alphas: %#v", space.Alphas)
	}

	if _, err := parseSpace("1.2:0.5", "", ""); err == nil {
		t.Fatal("expected error for inverted range")
	}
	if _, err := parseSpace("abc", "", ""); err == nil {
		t.Fatal("expected error for malformed range")
	}
	if _, err := parseSpace("", "", "x,y"); err == nil {
		t.Fatal("expected error for malformed alphas")
	}
}
