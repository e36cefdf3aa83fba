// Package readout fits linear maps from reservoir states to targets,
// either in closed form or through chunked accumulation of the normal
// equations.
package readout

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// Model is a fitted linear readout. Weights are feature-major
// (featureDim x outputDim); Intercept is non-nil only when the fit
// included one. Read-only after fitting.
type Model struct {
	Weights   *mat.Dense
	Intercept []float64
	Alpha     float64
}

// Dims returns (featureDim, outputDim).
func (m *Model) Dims() (int, int) {
	return m.Weights.Dims()
}

// SizeBytes accounts for the owned weight matrix and intercept.
func (m *Model) SizeBytes() int64 {
	if m == nil || m.Weights == nil {
		return 0
	}
	r, c := m.Weights.Dims()
	return int64(r*c+len(m.Intercept)) * 8
}

// Predict applies the readout to features (samples x featureDim).
func (m *Model) Predict(features mat.Matrix) (*mat.Dense, error) {
	if m == nil || m.Weights == nil {
		return nil, model.ErrNotFitted
	}
	samples, width := features.Dims()
	featureDim, outputDim := m.Weights.Dims()
	if width != featureDim {
		return nil, fmt.Errorf("%w: feature width %d, readout expects %d", model.ErrDimension, width, featureDim)
	}

	out := mat.NewDense(samples, outputDim, nil)
	out.Mul(features, m.Weights)
	if m.Intercept != nil {
		for i := 0; i < samples; i++ {
			for j := 0; j < outputDim; j++ {
				out.Set(i, j, out.At(i, j)+m.Intercept[j])
			}
		}
	}
	return out, nil
}

// Record converts the model to its persistent form.
func (m *Model) Record() model.ReadoutRecord {
	r, c := m.Weights.Dims()
	rec := model.ReadoutRecord{
		Weights: model.Matrix{Rows: r, Cols: c, Data: append([]float64(nil), m.Weights.RawMatrix().Data...)},
		Alpha:   m.Alpha,
	}
	if m.Intercept != nil {
		rec.Intercept = append([]float64(nil), m.Intercept...)
	}
	return rec
}

// FromRecord rebuilds a model from its persistent form.
func FromRecord(rec model.ReadoutRecord) (*Model, error) {
	if len(rec.Weights.Data) != rec.Weights.NumElements() {
		return nil, fmt.Errorf("%w: readout payload has %d values, want %d", model.ErrDimension, len(rec.Weights.Data), rec.Weights.NumElements())
	}
	if rec.Intercept != nil && len(rec.Intercept) != rec.Weights.Cols {
		return nil, fmt.Errorf("%w: intercept has %d entries, want %d", model.ErrDimension, len(rec.Intercept), rec.Weights.Cols)
	}
	m := &Model{
		Weights: mat.NewDense(rec.Weights.Rows, rec.Weights.Cols, append([]float64(nil), rec.Weights.Data...)),
		Alpha:   rec.Alpha,
	}
	if rec.Intercept != nil {
		m.Intercept = append([]float64(nil), rec.Intercept...)
	}
	return m, nil
}

func allFinite(d *mat.Dense) bool {
	raw := d.RawMatrix()
	for i := 0; i < raw.Rows; i++ {
		row := raw.Data[i*raw.Stride : i*raw.Stride+raw.Cols]
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
