package readout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// solveRegularized solves (XtX + alpha*I) W = XtY. Cholesky first; if
// the regularized matrix is singular within tolerance the solve falls
// back to a minimum-norm pseudo-inverse solution. That fallback is
// deliberate, documented behavior: a rank-deficient system yields the
// smallest-norm readout instead of an error.
func solveRegularized(xtx *mat.SymDense, xty *mat.Dense, alpha float64) (*mat.Dense, error) {
	if alpha < 0 {
		return nil, fmt.Errorf("%w: regularization must be >= 0, got %v", model.ErrConfig, alpha)
	}
	n := xtx.SymmetricDim()
	reg := mat.NewSymDense(n, nil)
	reg.CopySym(xtx)
	for i := 0; i < n; i++ {
		reg.SetSym(i, i, reg.At(i, i)+alpha)
	}

	_, outputs := xty.Dims()
	weights := mat.NewDense(n, outputs, nil)

	var chol mat.Cholesky
	if chol.Factorize(reg) {
		if err := chol.SolveTo(weights, xty); err == nil && allFinite(weights) {
			return weights, nil
		}
	}
	return pseudoInverseSolve(reg, xty)
}

// pseudoInverseSolve computes W = V Σ⁺ Uᵗ B, truncating singular values
// below tolerance.
func pseudoInverseSolve(a *mat.SymDense, b *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDThin) {
		return nil, fmt.Errorf("%w: SVD factorization failed", model.ErrNumerical)
	}

	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	maxSV := 0.0
	for _, s := range values {
		if s > maxSV {
			maxSV = s
		}
	}
	tol := 1e-12 * maxSV * float64(len(values))

	// utb = Uᵗ B, then scale rows by 1/σ where σ is above tolerance.
	var utb mat.Dense
	utb.Mul(u.T(), b)
	rows, cols := utb.Dims()
	for i := 0; i < rows; i++ {
		inv := 0.0
		if values[i] > tol {
			inv = 1 / values[i]
		}
		for j := 0; j < cols; j++ {
			utb.Set(i, j, utb.At(i, j)*inv)
		}
	}

	n, _ := a.Dims()
	_, outputs := b.Dims()
	weights := mat.NewDense(n, outputs, nil)
	weights.Mul(&v, &utb)
	if !allFinite(weights) {
		return nil, fmt.Errorf("%w: pseudo-inverse solve produced non-finite weights", model.ErrNumerical)
	}
	return weights, nil
}

// splitIntercept pulls the trailing intercept row off an augmented
// weight solution.
func splitIntercept(weights *mat.Dense, fitIntercept bool) (*mat.Dense, []float64) {
	if !fitIntercept {
		return weights, nil
	}
	rows, cols := weights.Dims()
	coef := mat.DenseCopyOf(weights.Slice(0, rows-1, 0, cols))
	intercept := make([]float64, cols)
	for j := 0; j < cols; j++ {
		intercept[j] = weights.At(rows-1, j)
	}
	return coef, intercept
}

// augmentOnes returns X with a trailing all-ones column, giving the
// intercept a plain feature slot in the normal equations.
func augmentOnes(x mat.Matrix) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols+1, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			out.Set(i, j, x.At(i, j))
		}
		out.Set(i, cols, 1)
	}
	return out
}
