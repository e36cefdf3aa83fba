// Package dataset builds the synthetic sequence tasks used for
// training, benchmarks and the CLI demos.
package dataset

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// Regression pairs input sequences with per-step targets.
type Regression struct {
	Name    string
	Inputs  []*mat.Dense
	Targets []*mat.Dense
}

// Classification pairs input sequences with label slices: one label
// per sequence, or one per step.
type Classification struct {
	Name   string
	Inputs []*mat.Dense
	Labels [][]int
}

const (
	NameSine           = "sine"
	NameNARMA          = "narma"
	NameMackeyGlass    = "mackey_glass"
	NameFrequencyBands = "freq_bands"
)

// Names lists the generator names accepted by GenerateRegression and
// GenerateClassification, sorted.
func Names() []string {
	names := []string{NameSine, NameNARMA, NameMackeyGlass, NameFrequencyBands}
	sort.Strings(names)
	return names
}

// GenerateRegression builds a named regression task as one whole
// signal. Use SplitSignal to chop it into sequences.
func GenerateRegression(name string, seed int64, steps int) (Regression, error) {
	if steps < 2 {
		return Regression{}, fmt.Errorf("%w: need at least 2 steps, got %d", model.ErrConfig, steps)
	}
	switch name {
	case NameSine:
		return SineSweep(steps), nil
	case NameNARMA:
		return NARMA(seed, steps, 10), nil
	case NameMackeyGlass:
		return MackeyGlass(steps, 17), nil
	default:
		return Regression{}, fmt.Errorf("%w: unknown regression dataset %q", model.ErrConfig, name)
	}
}

// GenerateClassification builds a named classification task.
func GenerateClassification(name string, seed int64, perClass, steps int) (Classification, error) {
	if perClass < 1 || steps < 2 {
		return Classification{}, fmt.Errorf("%w: need at least 1 sequence per class and 2 steps", model.ErrConfig)
	}
	switch name {
	case NameFrequencyBands:
		return FrequencyBands(seed, perClass, steps), nil
	default:
		return Classification{}, fmt.Errorf("%w: unknown classification dataset %q", model.ErrConfig, name)
	}
}

// SineSweep is a next-step prediction task over a sine whose frequency
// drifts slowly across the signal.
func SineSweep(steps int) Regression {
	value := func(t int) float64 {
		ft := float64(t)
		freq := 0.05 + 0.15*ft/float64(steps)
		return math.Sin(freq * ft)
	}
	in := mat.NewDense(steps, 1, nil)
	out := mat.NewDense(steps, 1, nil)
	for t := 0; t < steps; t++ {
		in.Set(t, 0, value(t))
		out.Set(t, 0, value(t+1))
	}
	return Regression{Name: NameSine, Inputs: []*mat.Dense{in}, Targets: []*mat.Dense{out}}
}

// NARMA builds the nonlinear autoregressive moving-average benchmark
// of the given order: random input u in [0, 0.5), target
//
//	y_t = 0.3·y_{t-1} + 0.05·y_{t-1}·Σ y_{t-1..t-order} + 1.5·u_{t-order}·u_{t-1} + 0.1
func NARMA(seed int64, steps, order int) Regression {
	rng := rand.New(rand.NewSource(seed))
	u := make([]float64, steps)
	for t := range u {
		u[t] = rng.Float64() * 0.5
	}
	y := make([]float64, steps)
	for t := 1; t < steps; t++ {
		sum := 0.0
		for i := 1; i <= order && t-i >= 0; i++ {
			sum += y[t-i]
		}
		uLag := 0.0
		if t-order >= 0 {
			uLag = u[t-order]
		}
		y[t] = 0.3*y[t-1] + 0.05*y[t-1]*sum + 1.5*uLag*u[t-1] + 0.1
	}

	in := mat.NewDense(steps, 1, u)
	out := mat.NewDense(steps, 1, y)
	return Regression{Name: NameNARMA, Inputs: []*mat.Dense{in}, Targets: []*mat.Dense{out}}
}

// MackeyGlass integrates the delay differential equation
//
//	dx/dt = 0.2·x(t-tau) / (1 + x(t-tau)^10) - 0.1·x(t)
//
// with unit Euler steps and poses next-step prediction over the
// resulting chaotic signal. A burn-in of 10·tau steps is discarded.
func MackeyGlass(steps, tau int) Regression {
	burn := 10 * tau
	total := steps + burn + 1
	x := make([]float64, total)
	x[0] = 1.2
	for t := 1; t < total; t++ {
		delayed := 0.0
		if t-1-tau >= 0 {
			delayed = x[t-1-tau]
		}
		x[t] = x[t-1] + 0.2*delayed/(1+math.Pow(delayed, 10)) - 0.1*x[t-1]
	}

	in := mat.NewDense(steps, 1, nil)
	out := mat.NewDense(steps, 1, nil)
	for t := 0; t < steps; t++ {
		in.Set(t, 0, x[burn+t])
		out.Set(t, 0, x[burn+t+1])
	}
	return Regression{Name: NameMackeyGlass, Inputs: []*mat.Dense{in}, Targets: []*mat.Dense{out}}
}

// FrequencyBands builds a two-class task: noisy sines from a low
// frequency band (label 0) and a high band (label 1), one label per
// sequence.
func FrequencyBands(seed int64, perClass, steps int) Classification {
	rng := rand.New(rand.NewSource(seed))
	sequence := func(freq float64) *mat.Dense {
		phase := rng.Float64() * 2 * math.Pi
		in := mat.NewDense(steps, 1, nil)
		for t := 0; t < steps; t++ {
			in.Set(t, 0, math.Sin(freq*float64(t)+phase)+0.05*rng.NormFloat64())
		}
		return in
	}

	inputs := make([]*mat.Dense, 0, 2*perClass)
	labels := make([][]int, 0, 2*perClass)
	for s := 0; s < perClass; s++ {
		low := 0.05 + 0.05*rng.Float64()
		high := 0.5 + 0.3*rng.Float64()
		inputs = append(inputs, sequence(low), sequence(high))
		labels = append(labels, []int{0}, []int{1})
	}
	return Classification{Name: NameFrequencyBands, Inputs: inputs, Labels: labels}
}
