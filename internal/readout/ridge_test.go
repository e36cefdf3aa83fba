package readout

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// randomRegression builds targets from a known linear map plus
// intercept so fits can be checked against ground truth.
func randomRegression(seed int64, samples, features, outputs int, intercept bool) (*mat.Dense, *mat.Dense, *mat.Dense, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x := mat.NewDense(samples, features, nil)
	for i := 0; i < samples; i++ {
		for j := 0; j < features; j++ {
			x.Set(i, j, rng.NormFloat64())
		}
	}
	trueW := mat.NewDense(features, outputs, nil)
	for i := 0; i < features; i++ {
		for j := 0; j < outputs; j++ {
			trueW.Set(i, j, rng.NormFloat64())
		}
	}
	shift := make([]float64, outputs)
	if intercept {
		for j := range shift {
			shift[j] = rng.NormFloat64()
		}
	}
	y := mat.NewDense(samples, outputs, nil)
	y.Mul(x, trueW)
	for i := 0; i < samples; i++ {
		for j := 0; j < outputs; j++ {
			y.Set(i, j, y.At(i, j)+shift[j])
		}
	}
	return x, y, trueW, shift
}

func TestRidgeRecoversLinearMap(t *testing.T) {
	x, y, trueW, _ := randomRegression(1, 200, 5, 2, false)

	m, err := Ridge{Alpha: 1e-10}.Fit(x, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	for i := 0; i < 5; i++ {
		for j := 0; j < 2; j++ {
			if diff := math.Abs(m.Weights.At(i, j) - trueW.At(i, j)); diff > 1e-6 {
				t.Fatalf("weight (%d,%d) off by %v", i, j, diff)
			}
		}
	}
	if m.Intercept != nil {
		t.Fatal("intercept fitted without FitIntercept")
	}
}

func TestRidgeFitsIntercept(t *testing.T) {
	x, y, trueW, shift := randomRegression(2, 300, 4, 1, true)

	m, err := Ridge{Alpha: 1e-10, FitIntercept: true}.Fit(x, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if m.Intercept == nil {
		t.Fatal("expected fitted intercept")
	}
	if diff := math.Abs(m.Intercept[0] - shift[0]); diff > 1e-6 {
		t.Fatalf("intercept off by %v", diff)
	}
	for i := 0; i < 4; i++ {
		if diff := math.Abs(m.Weights.At(i, 0) - trueW.At(i, 0)); diff > 1e-6 {
			t.Fatalf("weight %d off by %v", i, diff)
		}
	}
}

func TestRidgeSingularFallsBackToMinimumNorm(t *testing.T) {
	// Two identical columns with alpha=0 make XtX singular; the solve
	// must fall back to the minimum-norm solution, not fail.
	x := mat.NewDense(4, 2, []float64{
		1, 1,
		2, 2,
		3, 3,
		4, 4,
	})
	y := mat.NewDense(4, 1, []float64{2, 4, 6, 8})

	m, err := Ridge{Alpha: 0}.Fit(x, y)
	if err != nil {
		t.Fatalf("fit on singular system: %v", err)
	}
	// Minimum-norm splits the weight evenly across identical columns.
	if diff := math.Abs(m.Weights.At(0, 0) - m.Weights.At(1, 0)); diff > 1e-9 {
		t.Fatalf("minimum-norm solution should split evenly, got %v vs %v", m.Weights.At(0, 0), m.Weights.At(1, 0))
	}
	pred, err := m.Predict(x)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	for i := 0; i < 4; i++ {
		if diff := math.Abs(pred.At(i, 0) - y.At(i, 0)); diff > 1e-8 {
			t.Fatalf("prediction %d off by %v", i, diff)
		}
	}
}

func TestRidgeRejectsBadInputs(t *testing.T) {
	x := mat.NewDense(3, 2, nil)
	y := mat.NewDense(4, 1, nil)
	if _, err := (Ridge{}).Fit(x, y); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension, got: %v", err)
	}

	x = mat.NewDense(2, 2, []float64{1, math.NaN(), 0, 1})
	y = mat.NewDense(2, 1, []float64{1, 2})
	if _, err := (Ridge{}).Fit(x, y); !errors.Is(err, model.ErrNumerical) {
		t.Fatalf("expected ErrNumerical, got: %v", err)
	}

	if _, err := (Ridge{Alpha: -1}).Fit(mat.NewDense(2, 2, []float64{1, 0, 0, 1}), y); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig for negative alpha, got: %v", err)
	}
}

func TestModelPredictValidation(t *testing.T) {
	var unfitted *Model
	if _, err := unfitted.Predict(mat.NewDense(1, 1, nil)); !errors.Is(err, model.ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got: %v", err)
	}

	x, y, _, _ := randomRegression(3, 50, 3, 1, false)
	m, err := Ridge{Alpha: 1e-6}.Fit(x, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}
	if _, err := m.Predict(mat.NewDense(5, 2, nil)); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension, got: %v", err)
	}
}

func TestReadoutRecordRoundTrip(t *testing.T) {
	x, y, _, _ := randomRegression(4, 60, 3, 2, true)
	m, err := Ridge{Alpha: 1e-3, FitIntercept: true}.Fit(x, y)
	if err != nil {
		t.Fatalf("fit: %v", err)
	}

	back, err := FromRecord(m.Record())
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if !mat.Equal(m.Weights, back.Weights) {
		t.Fatal("record round trip altered weights")
	}
	for i := range m.Intercept {
		if m.Intercept[i] != back.Intercept[i] {
			t.Fatal("record round trip altered intercept")
		}
	}
	if back.Alpha != m.Alpha {
		t.Fatal("record round trip altered alpha")
	}

	rec := m.Record()
	rec.Intercept = rec.Intercept[:1]
	if _, err := FromRecord(rec); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension for truncated intercept, got: %v", err)
	}
}
