package reservoir

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

func testConfig() model.ReservoirConfig {
	return model.ReservoirConfig{
		HiddenSize:        20,
		InputScaling:      0.8,
		BiasScaling:       0.2,
		SpectralRadius:    0.9,
		Leakage:           1.0,
		SparsityInput:     0.5,
		SparsityRecurrent: 0.75,
		Activation:        "tanh",
		Seed:              7,
	}
}

func mustBuild(t *testing.T, cfg model.ReservoirConfig, inputDim int) *WeightSet {
	t.Helper()
	init, err := NewInitializer(cfg)
	if err != nil {
		t.Fatalf("new initializer: %v", err)
	}
	w, err := init.Build(inputDim)
	if err != nil {
		t.Fatalf("build weights: %v", err)
	}
	return w
}

func denseSpectralRadius(t *testing.T, w *mat.Dense) float64 {
	t.Helper()
	var eig mat.Eigen
	if !eig.Factorize(w, mat.EigenNone) {
		t.Fatal("eigendecomposition failed")
	}
	rho := 0.0
	for _, v := range eig.Values(nil) {
		if a := cmplx.Abs(v); a > rho {
			rho = a
		}
	}
	return rho
}

func TestBuildRealizesSpectralRadius(t *testing.T) {
	cfg := testConfig()
	w := mustBuild(t, cfg, 3)

	rho := denseSpectralRadius(t, w.Recurrent)
	if rel := math.Abs(rho-cfg.SpectralRadius) / cfg.SpectralRadius; rel > 1e-6 {
		t.Fatalf("realized spectral radius %v, want %v (rel err %v)", rho, cfg.SpectralRadius, rel)
	}
}

func TestBuildIsDeterministicPerSeed(t *testing.T) {
	cfg := testConfig()
	a := mustBuild(t, cfg, 4)
	b := mustBuild(t, cfg, 4)

	if !mat.Equal(a.Input, b.Input) || !mat.Equal(a.Recurrent, b.Recurrent) || !mat.Equal(a.Bias, b.Bias) {
		t.Fatal("same config and seed must produce bit-identical weights")
	}

	cfg.Seed = 8
	c := mustBuild(t, cfg, 4)
	if mat.Equal(a.Recurrent, c.Recurrent) {
		t.Fatal("different seeds produced identical recurrent weights")
	}
}

func TestBuildExactRowDensity(t *testing.T) {
	cfg := testConfig()
	cfg.SparsityInput = 0.5
	cfg.SparsityRecurrent = 0.9
	inputDim := 10
	w := mustBuild(t, cfg, inputDim)

	wantIn := int(math.Round((1 - cfg.SparsityInput) * float64(inputDim)))
	for i := 0; i < cfg.HiddenSize; i++ {
		if got := countNonzero(w.Input.RawRowView(i)); got != wantIn {
			t.Fatalf("input row %d: %d nonzeros, want exactly %d", i, got, wantIn)
		}
	}

	wantRec := int(math.Round((1 - cfg.SparsityRecurrent) * float64(cfg.HiddenSize)))
	for i := 0; i < cfg.HiddenSize; i++ {
		if got := countNonzero(w.Recurrent.RawRowView(i)); got != wantRec {
			t.Fatalf("recurrent row %d: %d nonzeros, want exactly %d", i, got, wantRec)
		}
	}
}

func TestBuildZeroSpectralRadiusSkipsRescaling(t *testing.T) {
	cfg := testConfig()
	cfg.SpectralRadius = 0

	w := mustBuild(t, cfg, 3)

	// Regenerate the raw recurrent draw with the same stream to verify
	// no scaling was applied.
	rng := rand.New(rand.NewSource(cfg.Seed))
	_ = drawSparseUniform(rng, cfg.HiddenSize, 3, 1-cfg.SparsityInput, cfg.InputScaling, cfg.InputShift)
	raw := drawSparseUniform(rng, cfg.HiddenSize, cfg.HiddenSize, 1-cfg.SparsityRecurrent, 1, 0)
	if !mat.Equal(w.Recurrent, raw) {
		t.Fatal("spectral radius 0 must leave the raw recurrent matrix unscaled")
	}
}

func TestBuildFullSparsityDoesNotFail(t *testing.T) {
	cfg := testConfig()
	cfg.SparsityInput = 1.0
	cfg.SparsityRecurrent = 1.0

	w := mustBuild(t, cfg, 3)
	for i := 0; i < cfg.HiddenSize; i++ {
		if countNonzero(w.Recurrent.RawRowView(i)) != 0 || countNonzero(w.Input.RawRowView(i)) != 0 {
			t.Fatal("full sparsity must produce all-zero rows")
		}
	}
}

func TestBuildWithPredefinedMatrices(t *testing.T) {
	cfg := testConfig()
	cfg.HiddenSize = 4
	init, err := NewInitializer(cfg)
	if err != nil {
		t.Fatalf("new initializer: %v", err)
	}

	rec := mat.NewDense(4, 4, []float64{
		0.5, 0, 0, 0,
		0, 0.5, 0, 0,
		0, 0, 0.5, 0,
		0, 0, 0, 0.5,
	})
	w, err := init.BuildWith(2, Predefined{Recurrent: mat.DenseCopyOf(rec)})
	if err != nil {
		t.Fatalf("build with predefined: %v", err)
	}
	if !mat.Equal(w.Recurrent, rec) {
		t.Fatal("predefined recurrent weights must not be rescaled by default")
	}

	w, err = init.BuildWith(2, Predefined{Recurrent: mat.DenseCopyOf(rec), Rescale: true})
	if err != nil {
		t.Fatalf("build with rescale: %v", err)
	}
	rho := denseSpectralRadius(t, w.Recurrent)
	if math.Abs(rho-cfg.SpectralRadius) > 1e-9 {
		t.Fatalf("rescale requested: spectral radius %v, want %v", rho, cfg.SpectralRadius)
	}
}

func TestBuildWithPredefinedShapeMismatch(t *testing.T) {
	cfg := testConfig()
	init, err := NewInitializer(cfg)
	if err != nil {
		t.Fatalf("new initializer: %v", err)
	}

	bad := mat.NewDense(3, 3, nil)
	if _, err := init.BuildWith(3, Predefined{Recurrent: bad}); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension, got: %v", err)
	}
	if _, err := init.BuildWith(3, Predefined{Input: mat.NewDense(2, 3, nil)}); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension for input weights, got: %v", err)
	}
	if _, err := init.BuildWith(3, Predefined{Bias: mat.NewVecDense(2, nil)}); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension for bias, got: %v", err)
	}
}

func TestNewInitializerRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Leakage = 0
	if _, err := NewInitializer(cfg); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig, got: %v", err)
	}

	cfg = testConfig()
	cfg.HiddenSize = 0
	if _, err := NewInitializer(cfg); !errors.Is(err, model.ErrConfig) {
		t.Fatalf("expected ErrConfig, got: %v", err)
	}
}

func TestPowerIterationMatchesDense(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	w := drawSparseUniform(rng, 50, 50, 0.4, 1, 0)

	want := denseSpectralRadius(t, w)
	got, err := powerIterationRadius(w, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("power iteration: %v", err)
	}
	if math.Abs(got-want)/want > 1e-4 {
		t.Fatalf("power iteration radius %v, dense radius %v", got, want)
	}
}

func TestWeightRecordRoundTrip(t *testing.T) {
	w := mustBuild(t, testConfig(), 3)
	rec := w.Record()
	back, err := WeightsFromRecord(rec)
	if err != nil {
		t.Fatalf("from record: %v", err)
	}
	if !mat.Equal(w.Input, back.Input) || !mat.Equal(w.Recurrent, back.Recurrent) || !mat.Equal(w.Bias, back.Bias) {
		t.Fatal("weight record round trip altered values")
	}

	rec.Bias = rec.Bias[:1]
	if _, err := WeightsFromRecord(rec); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("expected ErrDimension for truncated bias, got: %v", err)
	}
}

func TestSizeBytesCountsOwnedMatrices(t *testing.T) {
	cfg := testConfig()
	w := mustBuild(t, cfg, 3)
	want := int64(cfg.HiddenSize*3+cfg.HiddenSize*cfg.HiddenSize+cfg.HiddenSize) * 8
	if got := w.SizeBytes(); got != want {
		t.Fatalf("size bytes: got=%d want=%d", got, want)
	}
}

func countNonzero(row []float64) int {
	n := 0
	for _, v := range row {
		if v != 0 {
			n++
		}
	}
	return n
}
