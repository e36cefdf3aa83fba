package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"echostate/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp sets the current schema and codec versions on a record before
// it is persisted.
func Stamp(v *model.VersionedRecord) {
	v.SchemaVersion = CurrentSchemaVersion
	v.CodecVersion = CurrentCodecVersion
}

func EncodeEstimator(rec model.EstimatorRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func DecodeEstimator(data []byte) (model.EstimatorRecord, error) {
	var rec model.EstimatorRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.EstimatorRecord{}, err
	}
	if err := checkVersion(rec.VersionedRecord); err != nil {
		return model.EstimatorRecord{}, err
	}
	if err := checkEstimatorShape(rec); err != nil {
		return model.EstimatorRecord{}, err
	}
	return rec, nil
}

func EncodeRun(run model.RunRecord) ([]byte, error) {
	return json.Marshal(run)
}

func DecodeRun(data []byte) (model.RunRecord, error) {
	var run model.RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return model.RunRecord{}, err
	}
	if err := checkVersion(run.VersionedRecord); err != nil {
		return model.RunRecord{}, err
	}
	return run, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}

// checkEstimatorShape rejects payloads whose matrix dimensions do not
// match their data lengths, so a truncated or hand-edited record fails
// on load rather than at predict time.
func checkEstimatorShape(rec model.EstimatorRecord) error {
	for _, m := range []struct {
		name string
		mtx  model.Matrix
	}{
		{"input weights", rec.Weights.Input},
		{"recurrent weights", rec.Weights.Recurrent},
		{"readout weights", rec.Readout.Weights},
	} {
		if len(m.mtx.Data) != m.mtx.NumElements() {
			return fmt.Errorf("%w: %s carry %d values for a %dx%d matrix",
				model.ErrDimension, m.name, len(m.mtx.Data), m.mtx.Rows, m.mtx.Cols)
		}
	}
	return nil
}
