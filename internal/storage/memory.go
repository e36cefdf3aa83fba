package storage

import (
	"context"
	"sort"
	"sync"

	"echostate/internal/model"
)

type MemoryStore struct {
	mu     sync.RWMutex
	models map[string]model.EstimatorRecord
	runs   map[string]model.RunRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.models = make(map[string]model.EstimatorRecord)
	s.runs = make(map[string]model.RunRecord)
	return nil
}

func (s *MemoryStore) SaveModel(_ context.Context, rec model.EstimatorRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.models[rec.ID] = copyEstimatorRecord(rec)
	return nil
}

func (s *MemoryStore) GetModel(_ context.Context, id string) (model.EstimatorRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.models[id]
	if !ok {
		return model.EstimatorRecord{}, false, nil
	}
	return copyEstimatorRecord(rec), true, nil
}

func (s *MemoryStore) ListModels(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.models))
	for id := range s.models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.RunID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, runID string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAtUTC != runs[j].CreatedAtUTC {
			return runs[i].CreatedAtUTC < runs[j].CreatedAtUTC
		}
		return runs[i].RunID < runs[j].RunID
	})
	return runs, nil
}

// copyEstimatorRecord deep-copies the slice-backed fields so callers
// cannot mutate stored state through a returned record.
func copyEstimatorRecord(rec model.EstimatorRecord) model.EstimatorRecord {
	out := rec
	out.Classes = append([]int(nil), rec.Classes...)
	out.Weights.Input.Data = append([]float64(nil), rec.Weights.Input.Data...)
	out.Weights.Recurrent.Data = append([]float64(nil), rec.Weights.Recurrent.Data...)
	out.Weights.Bias = append([]float64(nil), rec.Weights.Bias...)
	out.Readout.Weights.Data = append([]float64(nil), rec.Readout.Weights.Data...)
	out.Readout.Intercept = append([]float64(nil), rec.Readout.Intercept...)
	return out
}
