package reservoir

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// Above this hidden size the spectral radius is estimated by power
// iteration instead of a full eigendecomposition.
const spectralDenseLimit = 1024

const powerIterationSteps = 300

// WeightSet owns the three weight matrices of one reservoir. It is
// immutable after Build; the state machine only ever reads it.
type WeightSet struct {
	Input     *mat.Dense    // hidden x inputDim
	Recurrent *mat.Dense    // hidden x hidden
	Bias      *mat.VecDense // hidden
}

// HiddenSize returns the reservoir unit count.
func (w *WeightSet) HiddenSize() int {
	r, _ := w.Input.Dims()
	return r
}

// InputDim returns the expected input feature width.
func (w *WeightSet) InputDim() int {
	_, c := w.Input.Dims()
	return c
}

// SizeBytes accounts for the owned matrices only.
func (w *WeightSet) SizeBytes() int64 {
	if w == nil {
		return 0
	}
	h, in := w.Input.Dims()
	return int64(h*in+h*h+h) * 8
}

// Predefined supplies caller-owned matrices that bypass random
// generation. Nil fields fall back to generation. Rescale requests
// spectral-radius rescaling of a predefined recurrent matrix; injected
// values are otherwise used as-is.
type Predefined struct {
	Input     *mat.Dense
	Recurrent *mat.Dense
	Bias      *mat.VecDense
	Rescale   bool
}

// Initializer builds weight sets under the sparsity and scaling
// constraints of one config. All randomness flows from the config seed.
type Initializer struct {
	cfg model.ReservoirConfig
}

func NewInitializer(cfg model.ReservoirConfig) (*Initializer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Initializer{cfg: cfg}, nil
}

// Build generates a weight set for inputs of width inputDim.
func (init *Initializer) Build(inputDim int) (*WeightSet, error) {
	return init.BuildWith(inputDim, Predefined{})
}

// BuildWith generates a weight set, honoring any predefined matrices.
func (init *Initializer) BuildWith(inputDim int, pre Predefined) (*WeightSet, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("%w: input dim must be > 0, got %d", model.ErrDimension, inputDim)
	}
	if err := validatePredefined(pre, init.cfg.HiddenSize, inputDim); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(init.cfg.Seed))
	hidden := init.cfg.HiddenSize

	input := pre.Input
	if input == nil {
		input = drawSparseUniform(rng, hidden, inputDim, 1-init.cfg.SparsityInput, init.cfg.InputScaling, init.cfg.InputShift)
	}

	recurrent := pre.Recurrent
	generated := recurrent == nil
	if generated {
		recurrent = drawSparseUniform(rng, hidden, hidden, 1-init.cfg.SparsityRecurrent, 1, 0)
	}
	if init.cfg.SpectralRadius > 0 && (generated || pre.Rescale) {
		if err := rescaleToSpectralRadius(recurrent, init.cfg.SpectralRadius, rng); err != nil {
			return nil, err
		}
	}

	bias := pre.Bias
	if bias == nil {
		bias = drawBias(rng, hidden, init.cfg.BiasScaling, init.cfg.BiasShift)
	}

	return &WeightSet{Input: input, Recurrent: recurrent, Bias: bias}, nil
}

func validatePredefined(pre Predefined, hidden, inputDim int) error {
	if pre.Input != nil {
		r, c := pre.Input.Dims()
		if r != hidden || c != inputDim {
			return fmt.Errorf("%w: predefined input weights are %dx%d, want %dx%d", model.ErrDimension, r, c, hidden, inputDim)
		}
	}
	if pre.Recurrent != nil {
		r, c := pre.Recurrent.Dims()
		if r != hidden || c != hidden {
			return fmt.Errorf("%w: predefined recurrent weights are %dx%d, want %dx%d", model.ErrDimension, r, c, hidden, hidden)
		}
	}
	if pre.Bias != nil {
		if n := pre.Bias.Len(); n != hidden {
			return fmt.Errorf("%w: predefined bias has %d entries, want %d", model.ErrDimension, n, hidden)
		}
	}
	return nil
}

// drawSparseUniform fills each row with exactly round(density*cols)
// nonzero entries, uniform in [-1, 1) times scale plus shift. The fixed
// per-row in-degree gives exact density rather than expected density.
func drawSparseUniform(rng *rand.Rand, rows, cols int, density, scale, shift float64) *mat.Dense {
	out := mat.NewDense(rows, cols, nil)
	fanIn := int(math.Round(density * float64(cols)))
	if fanIn < 0 {
		fanIn = 0
	}
	if fanIn > cols {
		fanIn = cols
	}
	for i := 0; i < rows; i++ {
		for _, j := range rng.Perm(cols)[:fanIn] {
			out.Set(i, j, (rng.Float64()*2-1)*scale+shift)
		}
	}
	return out
}

func drawBias(rng *rand.Rand, n int, scale, shift float64) *mat.VecDense {
	out := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		out.SetVec(i, (rng.Float64()*2-1)*scale+shift)
	}
	return out
}

// rescaleToSpectralRadius scales w in place so its spectral radius
// equals target. A zero matrix (for example under full sparsity) has
// spectral radius zero and is left untouched.
func rescaleToSpectralRadius(w *mat.Dense, target float64, rng *rand.Rand) error {
	rho, err := spectralRadius(w, rng)
	if err != nil {
		return err
	}
	if rho == 0 {
		return nil
	}
	w.Scale(target/rho, w)
	return nil
}

// spectralRadius returns the largest eigenvalue magnitude, via a full
// eigendecomposition for small matrices and power iteration above
// spectralDenseLimit.
func spectralRadius(w *mat.Dense, rng *rand.Rand) (float64, error) {
	n, _ := w.Dims()
	if n <= spectralDenseLimit {
		var eig mat.Eigen
		if !eig.Factorize(w, mat.EigenNone) {
			return 0, fmt.Errorf("%w: eigendecomposition failed", model.ErrNumerical)
		}
		rho := 0.0
		for _, v := range eig.Values(nil) {
			if a := cmplx.Abs(v); a > rho {
				rho = a
			}
		}
		return rho, nil
	}
	return powerIterationRadius(w, rng)
}

func powerIterationRadius(w *mat.Dense, rng *rand.Rand) (float64, error) {
	n, _ := w.Dims()
	v := mat.NewVecDense(n, nil)
	for i := 0; i < n; i++ {
		v.SetVec(i, rng.NormFloat64())
	}
	normalize(v)

	next := mat.NewVecDense(n, nil)
	rho := 0.0
	for iter := 0; iter < powerIterationSteps; iter++ {
		next.MulVec(w, v)
		norm := mat.Norm(next, 2)
		if norm == 0 {
			return 0, nil
		}
		if math.IsNaN(norm) || math.IsInf(norm, 0) {
			return 0, fmt.Errorf("%w: power iteration diverged", model.ErrNumerical)
		}
		next.ScaleVec(1/norm, next)
		if math.Abs(norm-rho) <= 1e-12*math.Max(1, norm) {
			return norm, nil
		}
		rho = norm
		v.CopyVec(next)
	}
	return rho, nil
}

func normalize(v *mat.VecDense) {
	norm := mat.Norm(v, 2)
	if norm != 0 {
		v.ScaleVec(1/norm, v)
	}
}

// Record converts the weight set to its persistent form.
func (w *WeightSet) Record() model.WeightRecord {
	h, in := w.Input.Dims()
	return model.WeightRecord{
		Input:     model.Matrix{Rows: h, Cols: in, Data: append([]float64(nil), w.Input.RawMatrix().Data...)},
		Recurrent: model.Matrix{Rows: h, Cols: h, Data: append([]float64(nil), w.Recurrent.RawMatrix().Data...)},
		Bias:      append([]float64(nil), w.Bias.RawVector().Data...),
	}
}

// WeightsFromRecord rebuilds a weight set from its persistent form.
func WeightsFromRecord(rec model.WeightRecord) (*WeightSet, error) {
	if len(rec.Input.Data) != rec.Input.NumElements() {
		return nil, fmt.Errorf("%w: input weight payload has %d values, want %d", model.ErrDimension, len(rec.Input.Data), rec.Input.NumElements())
	}
	if len(rec.Recurrent.Data) != rec.Recurrent.NumElements() || rec.Recurrent.Rows != rec.Recurrent.Cols {
		return nil, fmt.Errorf("%w: recurrent weight payload is not square", model.ErrDimension)
	}
	if rec.Input.Rows != rec.Recurrent.Rows || len(rec.Bias) != rec.Input.Rows {
		return nil, fmt.Errorf("%w: weight record dimensions disagree", model.ErrDimension)
	}
	return &WeightSet{
		Input:     mat.NewDense(rec.Input.Rows, rec.Input.Cols, append([]float64(nil), rec.Input.Data...)),
		Recurrent: mat.NewDense(rec.Recurrent.Rows, rec.Recurrent.Cols, append([]float64(nil), rec.Recurrent.Data...)),
		Bias:      mat.NewVecDense(len(rec.Bias), append([]float64(nil), rec.Bias...)),
	}, nil
}
