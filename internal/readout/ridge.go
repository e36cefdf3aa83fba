package readout

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// Ridge fits the closed-form regularized least squares readout,
// solving (XtX + alpha*I) W = XtY over the full feature matrix.
type Ridge struct {
	Alpha        float64
	FitIntercept bool
}

// Fit solves for the readout over features (samples x featureDim) and
// targets (samples x outputDim).
func (r Ridge) Fit(features, targets mat.Matrix) (*Model, error) {
	if err := validateFitInputs(features, targets); err != nil {
		return nil, err
	}

	x := features
	if r.FitIntercept {
		x = augmentOnes(features)
	}

	xtx, xty := normalProducts(x, targets)
	solved, err := solveRegularized(xtx, xty, r.Alpha)
	if err != nil {
		return nil, err
	}

	coef, intercept := splitIntercept(solved, r.FitIntercept)
	return &Model{Weights: coef, Intercept: intercept, Alpha: r.Alpha}, nil
}

// normalProducts computes XtX (symmetric) and XtY in one pass.
func normalProducts(x, y mat.Matrix) (*mat.SymDense, *mat.Dense) {
	_, features := x.Dims()
	_, outputs := y.Dims()

	var xtxDense mat.Dense
	xtxDense.Mul(x.T(), x)
	xtx := mat.NewSymDense(features, nil)
	for i := 0; i < features; i++ {
		for j := i; j < features; j++ {
			xtx.SetSym(i, j, xtxDense.At(i, j))
		}
	}

	xty := mat.NewDense(features, outputs, nil)
	xty.Mul(x.T(), y)
	return xtx, xty
}

func validateFitInputs(features, targets mat.Matrix) error {
	samples, width := features.Dims()
	targetRows, outputs := targets.Dims()
	if samples == 0 || width == 0 {
		return fmt.Errorf("%w: empty feature matrix", model.ErrDimension)
	}
	if outputs == 0 {
		return fmt.Errorf("%w: empty target matrix", model.ErrDimension)
	}
	if targetRows != samples {
		return fmt.Errorf("%w: %d feature rows but %d target rows", model.ErrDimension, samples, targetRows)
	}
	if !finiteMatrix(features) || !finiteMatrix(targets) {
		return fmt.Errorf("%w: fit input contains non-finite values", model.ErrNumerical)
	}
	return nil
}

func finiteMatrix(m mat.Matrix) bool {
	if d, ok := m.(*mat.Dense); ok {
		return allFinite(d)
	}
	rows, cols := m.Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
