package storage

import (
	"context"

	"echostate/internal/model"
)

// Store persists fitted estimators and the run registry.
type Store interface {
	Init(ctx context.Context) error
	SaveModel(ctx context.Context, rec model.EstimatorRecord) error
	GetModel(ctx context.Context, id string) (model.EstimatorRecord, bool, error)
	ListModels(ctx context.Context) ([]string, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, runID string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
}
