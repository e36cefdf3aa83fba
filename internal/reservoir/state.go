package reservoir

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
	"echostate/internal/nn"
)

// Phase tracks a state machine through one traversal.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseDone:
		return "done"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// StateMachine applies the leaky-integration recurrence
//
//	h_t = (1-leakage)*h_{t-1} + leakage*act(W_in·u_t + W_rec·h_{t-1} + W_bias)
//
// to an input sequence. The weight set is shared read-only; everything
// mutable is private to the machine, so independent sequences may run
// on separate machines concurrently.
type StateMachine struct {
	weights       *WeightSet
	activate      nn.ActivationFunc
	leakage       float64
	bidirectional bool
	continuation  bool

	phase Phase
	carry []float64
	final []float64
}

// MachineOption configures optional state machine behavior.
type MachineOption func(*StateMachine)

// WithBidirectional enables the forward plus time-reversed double pass.
func WithBidirectional() MachineOption {
	return func(m *StateMachine) { m.bidirectional = true }
}

// WithContinuation carries the final state of each call into the next
// call on this machine. Unrelated signals need an explicit ResetState;
// the machine never resets implicitly.
func WithContinuation() MachineOption {
	return func(m *StateMachine) { m.continuation = true }
}

func NewStateMachine(weights *WeightSet, activation string, leakage float64, opts ...MachineOption) (*StateMachine, error) {
	if weights == nil {
		return nil, fmt.Errorf("%w: weight set is required", model.ErrConfig)
	}
	if leakage <= 0 || leakage > 1 {
		return nil, fmt.Errorf("%w: leakage must be in (0, 1], got %v", model.ErrConfig, leakage)
	}
	fn, err := nn.GetActivation(activation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrConfig, err)
	}
	m := &StateMachine{
		weights:  weights,
		activate: fn,
		leakage:  leakage,
		phase:    PhaseIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// FeatureWidth is the per-step output width: H, or 2H bidirectional.
func (m *StateMachine) FeatureWidth() int {
	if m.bidirectional {
		return 2 * m.weights.HiddenSize()
	}
	return m.weights.HiddenSize()
}

// Phase reports the traversal phase of the last Run.
func (m *StateMachine) Phase() Phase {
	return m.phase
}

// FinalState returns a copy of the forward-pass final state of the
// last Run, or nil before any run.
func (m *StateMachine) FinalState() []float64 {
	if m.final == nil {
		return nil
	}
	return append([]float64(nil), m.final...)
}

// ResetState drops carried continuation state and returns to Idle.
func (m *StateMachine) ResetState() {
	m.carry = nil
	m.final = nil
	m.phase = PhaseIdle
}

// Run drives the recurrence over inputs (time x features) and returns
// the state sequence (time x FeatureWidth). initial overrides the
// starting state; when nil, the carried continuation state or the zero
// vector is used. Bidirectional runs share weights across both passes
// and seed the reverse pass with the same starting state.
func (m *StateMachine) Run(inputs *mat.Dense, initial []float64) (*mat.Dense, error) {
	steps, width := inputs.Dims()
	if width != m.weights.InputDim() {
		return nil, fmt.Errorf("%w: input width %d, reservoir expects %d", model.ErrDimension, width, m.weights.InputDim())
	}
	hidden := m.weights.HiddenSize()

	start := make([]float64, hidden)
	switch {
	case initial != nil:
		if len(initial) != hidden {
			return nil, fmt.Errorf("%w: initial state has %d entries, want %d", model.ErrDimension, len(initial), hidden)
		}
		copy(start, initial)
	case m.continuation && m.carry != nil:
		copy(start, m.carry)
	}

	m.phase = PhaseRunning
	states := mat.NewDense(steps, m.FeatureWidth(), nil)

	final, err := m.runPass(inputs, append([]float64(nil), start...), states, 0, false)
	if err != nil {
		m.phase = PhaseIdle
		return nil, err
	}
	if m.bidirectional {
		if _, err := m.runPass(inputs, append([]float64(nil), start...), states, hidden, true); err != nil {
			m.phase = PhaseIdle
			return nil, err
		}
	}

	m.final = final
	if m.continuation {
		m.carry = append([]float64(nil), final...)
	}
	m.phase = PhaseDone
	return states, nil
}

// runPass walks the sequence forward or time-reversed, writing each
// step's state into states at column offset col. It returns the final
// hidden state of the pass.
func (m *StateMachine) runPass(inputs *mat.Dense, h []float64, states *mat.Dense, col int, reversed bool) ([]float64, error) {
	steps, width := inputs.Dims()
	hidden := m.weights.HiddenSize()
	in := m.weights.Input.RawMatrix()
	rec := m.weights.Recurrent.RawMatrix()
	bias := m.weights.Bias.RawVector().Data

	next := make([]float64, hidden)
	for step := 0; step < steps; step++ {
		t := step
		if reversed {
			t = steps - 1 - step
		}
		row := inputs.RawRowView(t)

		for i := 0; i < hidden; i++ {
			z := bias[i]
			inRow := in.Data[i*in.Stride : i*in.Stride+width]
			for j, u := range row {
				z += inRow[j] * u
			}
			recRow := rec.Data[i*rec.Stride : i*rec.Stride+hidden]
			for j, hv := range h {
				z += recRow[j] * hv
			}
			next[i] = (1-m.leakage)*h[i] + m.leakage*m.activate(z)
		}
		h, next = next, h

		for i, v := range h {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: state diverged at step %d, unit %d", model.ErrNumerical, t, i)
			}
			states.Set(t, col+i, v)
		}
	}
	return h, nil
}
