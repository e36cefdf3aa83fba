package readout

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// Incremental accumulates the normal equations chunk by chunk without
// ever materializing the full design matrix:
//
//	XtX += Xcᵗ·Xc    XtY += Xcᵗ·Yc
//
// Finalize performs the same regularized solve as Ridge over the
// accumulated sums, so the result matches a single-shot fit over the
// concatenation of all chunks up to floating-point summation order,
// for any chunk sizing.
//
// A chunk that fails validation leaves the accumulator untouched, so a
// retry with corrected input cannot diverge from a fresh run. Updates
// are serialized under an internal lock; concurrent producers may call
// PartialFit directly.
type Incremental struct {
	Alpha        float64
	FitIntercept bool

	mu       sync.Mutex
	xtx      *mat.SymDense
	xty      *mat.Dense
	features int
	outputs  int
	samples  int
}

// PartialFit folds one chunk into the accumulator. The first chunk
// pins the feature and output widths; later chunks must agree.
func (t *Incremental) PartialFit(features, targets mat.Matrix) error {
	if err := validateFitInputs(features, targets); err != nil {
		return err
	}

	x := features
	if t.FitIntercept {
		x = augmentOnes(features)
	}
	rows, width := x.Dims()
	_, outputs := targets.Dims()

	// Chunk products land in scratch first so a dimension error above,
	// or any future validation, can never half-apply a chunk.
	chunkXtX, chunkXtY := normalProducts(x, targets)

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.xtx == nil {
		t.xtx = mat.NewSymDense(width, nil)
		t.xty = mat.NewDense(width, outputs, nil)
		t.features = width
		t.outputs = outputs
	}
	if width != t.features || outputs != t.outputs {
		return fmt.Errorf("%w: chunk is %dx%d targets %d, accumulator holds %dx%d",
			model.ErrDimension, rows, width, outputs, t.features, t.outputs)
	}

	t.xtx.AddSym(t.xtx, chunkXtX)
	t.xty.Add(t.xty, chunkXtY)
	t.samples += rows
	return nil
}

// Finalize solves the accumulated normal equations and discards the
// accumulator state.
func (t *Incremental) Finalize() (*Model, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.xtx == nil || t.samples == 0 {
		return nil, fmt.Errorf("%w: no chunks accumulated", model.ErrNotFitted)
	}

	solved, err := solveRegularized(t.xtx, t.xty, t.Alpha)
	if err != nil {
		return nil, err
	}
	coef, intercept := splitIntercept(solved, t.FitIntercept)

	t.xtx = nil
	t.xty = nil
	t.features = 0
	t.outputs = 0
	t.samples = 0
	return &Model{Weights: coef, Intercept: intercept, Alpha: t.Alpha}, nil
}

// Reset drops all accumulated state.
func (t *Incremental) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.xtx = nil
	t.xty = nil
	t.features = 0
	t.outputs = 0
	t.samples = 0
}

// SamplesSeen reports the number of accumulated sample rows.
func (t *Incremental) SamplesSeen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.samples
}
