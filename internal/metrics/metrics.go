// Package metrics provides the scoring functions used to evaluate
// trained estimators: squared-error metrics for regression and
// accuracy for classification.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// MSE returns the mean squared error between predictions and targets,
// averaged over all rows and output columns.
func MSE(pred, target mat.Matrix) (float64, error) {
	pr, pc := pred.Dims()
	tr, tc := target.Dims()
	if pr != tr || pc != tc {
		return 0, fmt.Errorf("%w: predictions %dx%d vs targets %dx%d", model.ErrDimension, pr, pc, tr, tc)
	}
	if pr == 0 {
		return 0, fmt.Errorf("%w: no samples to score", model.ErrDimension)
	}
	acc := 0.0
	for i := 0; i < pr; i++ {
		for j := 0; j < pc; j++ {
			d := pred.At(i, j) - target.At(i, j)
			acc += d * d
		}
	}
	return acc / float64(pr*pc), nil
}

// RMSE returns the root of MSE.
func RMSE(pred, target mat.Matrix) (float64, error) {
	mse, err := MSE(pred, target)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}

// R2 returns the coefficient of determination, averaged uniformly over
// output columns. A column with zero target variance scores 1 when
// predicted exactly and 0 otherwise.
func R2(pred, target mat.Matrix) (float64, error) {
	pr, pc := pred.Dims()
	tr, tc := target.Dims()
	if pr != tr || pc != tc {
		return 0, fmt.Errorf("%w: predictions %dx%d vs targets %dx%d", model.ErrDimension, pr, pc, tr, tc)
	}
	if pr == 0 {
		return 0, fmt.Errorf("%w: no samples to score", model.ErrDimension)
	}
	total := 0.0
	for j := 0; j < pc; j++ {
		mean := 0.0
		for i := 0; i < pr; i++ {
			mean += target.At(i, j)
		}
		mean /= float64(pr)

		var ssRes, ssTot float64
		for i := 0; i < pr; i++ {
			d := pred.At(i, j) - target.At(i, j)
			ssRes += d * d
			dt := target.At(i, j) - mean
			ssTot += dt * dt
		}
		switch {
		case ssTot > 0:
			total += 1 - ssRes/ssTot
		case ssRes == 0:
			total += 1
		}
	}
	return total / float64(pc), nil
}

// Accuracy returns the fraction of matching labels.
func Accuracy(pred, target []int) (float64, error) {
	if len(pred) != len(target) {
		return 0, fmt.Errorf("%w: %d predictions vs %d targets", model.ErrDimension, len(pred), len(target))
	}
	if len(pred) == 0 {
		return 0, fmt.Errorf("%w: no samples to score", model.ErrDimension)
	}
	hits := 0
	for i := range pred {
		if pred[i] == target[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(pred)), nil
}
