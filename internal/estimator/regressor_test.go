package estimator

import (
	"context"
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/metrics"
	"echostate/internal/model"
)

func testParams() Params {
	return Params{
		Reservoir: model.ReservoirConfig{
			HiddenSize:        50,
			InputScaling:      0.5,
			BiasScaling:       0.1,
			SpectralRadius:    0.9,
			Leakage:           1.0,
			SparsityInput:     0.0,
			SparsityRecurrent: 0.5,
			Activation:        "tanh",
			Seed:              42,
		},
		Alpha: 1e-6,
	}
}

// sineTask builds a next-step prediction problem over a sine wave.
func sineTask(steps int) (*mat.Dense, *mat.Dense) {
	in := mat.NewDense(steps, 1, nil)
	out := mat.NewDense(steps, 1, nil)
	for t := 0; t < steps; t++ {
		in.Set(t, 0, math.Sin(0.2*float64(t)))
		out.Set(t, 0, math.Sin(0.2*float64(t+1)))
	}
	return in, out
}

func TestRegressorLearnsSineNextStep(t *testing.T) {
	in, out := sineTask(400)

	r, err := NewRegressor(testParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if r.Fitted() {
		t.Fatal("unfitted regressor reports fitted")
	}
	if err := r.Fit(context.Background(), []*mat.Dense{in}, []*mat.Dense{out}); err != nil {
		t.Fatalf("fit: %v", err)
	}
	if !r.Fitted() {
		t.Fatal("fit did not mark regressor fitted")
	}

	preds, err := r.Predict(context.Background(), []*mat.Dense{in})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	mse, err := metrics.MSE(preds[0], out)
	if err != nil {
		t.Fatalf("mse: %v", err)
	}
	if mse > 0.05 {
		t.Fatalf("training MSE %v, want below 0.05", mse)
	}
}

func TestRegressorDeterministicAcrossFits(t *testing.T) {
	in, out := sineTask(120)

	run := func() *mat.Dense {
		r, err := NewRegressor(testParams())
		if err != nil {
			t.Fatalf("new: %v", err)
		}
		if err := r.Fit(context.Background(), []*mat.Dense{in}, []*mat.Dense{out}); err != nil {
			t.Fatalf("fit: %v", err)
		}
		preds, err := r.Predict(context.Background(), []*mat.Dense{in})
		if err != nil {
			t.Fatalf("predict: %v", err)
		}
		return preds[0]
	}

	if !mat.Equal(run(), run()) {
		t.Fatal("same seed produced different predictions")
	}
}

func TestRegressorIncrementalMatchesSingleShot(t *testing.T) {
	in, out := sineTask(150)
	ctx := context.Background()

	single, err := NewRegressor(testParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := single.Fit(ctx, []*mat.Dense{in}, []*mat.Dense{out}); err != nil {
		t.Fatalf("single-shot fit: %v", err)
	}

	p := testParams()
	p.Incremental = true
	p.ChunkSize = 13
	chunked, err := NewRegressor(p)
	if err != nil {
		t.Fatalf("new incremental: %v", err)
	}
	if err := chunked.Fit(ctx, []*mat.Dense{in}, []*mat.Dense{out}); err != nil {
		t.Fatalf("incremental fit: %v", err)
	}

	a, err := single.Predict(ctx, []*mat.Dense{in})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	b, err := chunked.Predict(ctx, []*mat.Dense{in})
	if err != nil {
		t.Fatalf("predict incremental: %v", err)
	}
	rows, cols := a[0].Dims()
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			if diff := math.Abs(a[0].At(i, j) - b[0].At(i, j)); diff > 1e-8 {
				t.Fatalf("prediction (%d,%d) differs by %v between incremental and single-shot", i, j, diff)
			}
		}
	}
}

func TestRegressorMultipleSequencesParallel(t *testing.T) {
	ctx := context.Background()
	var inputs, targets []*mat.Dense
	for s := 0; s < 8; s++ {
		in, out := sineTask(60 + 5*s)
		inputs = append(inputs, in)
		targets = append(targets, out)
	}

	p := testParams()
	p.Workers = 4
	r, err := NewRegressor(p)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := r.Fit(ctx, inputs, targets); err != nil {
		t.Fatalf("fit: %v", err)
	}

	preds, err := r.Predict(ctx, inputs)
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	if len(preds) != len(inputs) {
		t.Fatalf("got %d prediction sequences, want %d", len(preds), len(inputs))
	}
	for i := range preds {
		ir, _ := inputs[i].Dims()
		pr, pc := preds[i].Dims()
		if pr != ir || pc != 1 {
			t.Fatalf("prediction %d is %dx%d, want %dx1", i, pr, pc, ir)
		}
	}

	// Worker count must not influence results.
	p2 := testParams()
	p2.Workers = 1
	serial, err := NewRegressor(p2)
	if err != nil {
		t.Fatalf("new serial: %v", err)
	}
	if err := serial.Fit(ctx, inputs, targets); err != nil {
		t.Fatalf("serial fit: %v", err)
	}
	serialPreds, err := serial.Predict(ctx, inputs)
	if err != nil {
		t.Fatalf("serial predict: %v", err)
	}
	for i := range preds {
		if !mat.Equal(preds[i], serialPreds[i]) {
			t.Fatalf("sequence %d differs between 4 workers and 1 worker", i)
		}
	}
}

func TestRegressorFailedFitKeepsPriorModel(t *testing.T) {
	ctx := context.Background()
	in, out := sineTask(100)

	r, err := NewRegressor(testParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := r.Fit(ctx, []*mat.Dense{in}, []*mat.Dense{out}); err != nil {
		t.Fatalf("fit: %v", err)
	}
	want, err := r.Predict(ctx, []*mat.Dense{in})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}

	bad := mat.DenseCopyOf(in)
	bad.Set(10, 0, math.NaN())
	if err := r.Fit(ctx, []*mat.Dense{bad}, []*mat.Dense{out}); err == nil {
		t.Fatal("expected error fitting on NaN input")
	}

	got, err := r.Predict(ctx, []*mat.Dense{in})
	if err != nil {
		t.Fatalf("predict after failed fit: %v", err)
	}
	if !mat.Equal(want[0], got[0]) {
		t.Fatal("failed fit changed the fitted model")
	}
}

func TestRegressorValidation(t *testing.T) {
	ctx := context.Background()
	in, out := sineTask(30)

	r, err := NewRegressor(testParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := r.Predict(ctx, []*mat.Dense{in}); !errors.Is(err, model.ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted, got: %v", err)
	}
	if err := r.Fit(ctx, nil, nil); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension on empty batch, got: %v", err)
	}
	if err := r.Fit(ctx, []*mat.Dense{in}, []*mat.Dense{out, out}); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension on count mismatch, got: %v", err)
	}
	short := mat.NewDense(10, 1, nil)
	if err := r.Fit(ctx, []*mat.Dense{in}, []*mat.Dense{short}); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension on step mismatch, got: %v", err)
	}

	if err := r.Fit(ctx, []*mat.Dense{in}, []*mat.Dense{out}); err != nil {
		t.Fatalf("fit: %v", err)
	}
	wide := mat.NewDense(30, 2, nil)
	if _, err := r.Predict(ctx, []*mat.Dense{wide}); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension on width change, got: %v", err)
	}
}

func TestRegressorCancelledContext(t *testing.T) {
	in, out := sineTask(50)
	r, err := NewRegressor(testParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Fit(ctx, []*mat.Dense{in, in}, []*mat.Dense{out, out}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if r.Fitted() {
		t.Fatal("cancelled fit left regressor fitted")
	}
}

func TestRegressorRecordRoundTrip(t *testing.T) {
	ctx := context.Background()
	in, out := sineTask(80)

	r, err := NewRegressor(testParams())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := r.Record("m1"); !errors.Is(err, model.ErrNotFitted) {
		t.Fatalf("expected ErrNotFitted from unfitted record, got: %v", err)
	}
	if err := r.Fit(ctx, []*mat.Dense{in}, []*mat.Dense{out}); err != nil {
		t.Fatalf("fit: %v", err)
	}

	rec, err := r.Record("m1")
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Kind != model.EstimatorRegressor || rec.ID != "m1" {
		t.Fatalf("unexpected record header: kind=%q id=%q", rec.Kind, rec.ID)
	}

	back, err := RegressorFromRecord(rec)
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	want, err := r.Predict(ctx, []*mat.Dense{in})
	if err != nil {
		t.Fatalf("predict: %v", err)
	}
	got, err := back.Predict(ctx, []*mat.Dense{in})
	if err != nil {
		t.Fatalf("restored predict: %v", err)
	}
	if !mat.Equal(want[0], got[0]) {
		t.Fatal("restored regressor predicts differently")
	}

	rec.Kind = model.EstimatorClassifier
	if _, err := RegressorFromRecord(rec); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig on kind mismatch, got: %v", err)
	}
}

func TestParamsValidate(t *testing.T) {
	p := testParams()
	if err := p.Validate(); err != nil {
		t.Fatalf("valid params rejected: %v", err)
	}

	bad := testParams()
	bad.Alpha = -1
	if err := bad.Validate(); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig for negative alpha, got: %v", err)
	}

	bad = testParams()
	bad.Decision = "plurality"
	if err := bad.Validate(); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig for unknown decision, got: %v", err)
	}

	bad = testParams()
	bad.Reservoir.HiddenSize = 0
	if err := bad.Validate(); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig for zero hidden size, got: %v", err)
	}
}
