package estimator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
	"echostate/internal/readout"
	"echostate/internal/reservoir"
)

// Classifier assigns one label per sequence. Labels may be given per
// time step, or as a single label that is broadcast over the whole
// sequence. Training one-hot encodes the labels and fits the same
// ridge readout as the regressor; prediction reduces the per-step
// class scores with the configured decision strategy.
type Classifier struct {
	params   Params
	weights  *reservoir.WeightSet
	readout  *readout.Model
	classes  []int
	inputDim int
}

func NewClassifier(p Params) (*Classifier, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{params: p}, nil
}

// Params returns a copy of the estimator parameters.
func (c *Classifier) Params() Params {
	return c.params.Clone()
}

// WithParams returns a fresh unfitted classifier sharing nothing with
// the receiver.
func (c *Classifier) WithParams(p Params) (*Classifier, error) {
	return NewClassifier(p)
}

// Fitted reports whether a successful Fit has completed.
func (c *Classifier) Fitted() bool {
	return c.readout != nil
}

// Classes returns the sorted label set seen during Fit.
func (c *Classifier) Classes() []int {
	return append([]int(nil), c.classes...)
}

// Fit trains on one label slice per sequence: either one label per
// time step, or a single label broadcast over the sequence. On any
// error the previously fitted state is untouched.
func (c *Classifier) Fit(ctx context.Context, inputs []*mat.Dense, labels [][]int) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no input sequences", model.ErrDimension)
	}
	if len(inputs) != len(labels) {
		return fmt.Errorf("%w: %d input sequences vs %d label slices", model.ErrDimension, len(inputs), len(labels))
	}

	classes, err := collectClasses(labels)
	if err != nil {
		return err
	}
	targets, err := oneHotTargets(inputs, labels, classes)
	if err != nil {
		return err
	}
	inputDim, _, err := validateSequences(inputs, targets)
	if err != nil {
		return err
	}

	init, err := reservoir.NewInitializer(c.params.Reservoir)
	if err != nil {
		return err
	}
	weights, err := init.Build(inputDim)
	if err != nil {
		return err
	}

	features, err := transformAll(ctx, c.params, weights, inputs)
	if err != nil {
		return err
	}
	fitted, err := fitReadout(ctx, c.params, features, targets)
	if err != nil {
		return err
	}

	c.weights = weights
	c.readout = fitted
	c.classes = classes
	c.inputDim = inputDim
	return nil
}

// Predict returns one label per sequence.
func (c *Classifier) Predict(ctx context.Context, inputs []*mat.Dense) ([]int, error) {
	scores, err := c.scores(ctx, inputs)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(scores))
	for i, s := range scores {
		out[i] = c.classes[c.decide(s)]
	}
	return out, nil
}

// PredictProba returns, per sequence, a (steps x classes) matrix of
// class probabilities: the softmax of the readout scores at each step.
// Column order follows Classes.
func (c *Classifier) PredictProba(ctx context.Context, inputs []*mat.Dense) ([]*mat.Dense, error) {
	scores, err := c.scores(ctx, inputs)
	if err != nil {
		return nil, err
	}
	for _, s := range scores {
		rows, cols := s.Dims()
		for i := 0; i < rows; i++ {
			softmaxInPlace(s.RawRowView(i), cols)
		}
	}
	return scores, nil
}

func (c *Classifier) scores(ctx context.Context, inputs []*mat.Dense) ([]*mat.Dense, error) {
	if c.readout == nil {
		return nil, fmt.Errorf("%w: classifier", model.ErrNotFitted)
	}
	if err := validateInputs(inputs, c.inputDim); err != nil {
		return nil, err
	}
	features, err := transformAll(ctx, c.params, c.weights, inputs)
	if err != nil {
		return nil, err
	}
	out := make([]*mat.Dense, len(features))
	for i := range features {
		pred, err := c.readout.Predict(features[i])
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		out[i] = pred
	}
	return out, nil
}

// decide reduces one sequence's per-step scores to a class index.
// Ties break toward the lower class index so results are stable.
func (c *Classifier) decide(scores *mat.Dense) int {
	rows, cols := scores.Dims()
	switch c.params.decision() {
	case DecisionMajority:
		votes := make([]int, cols)
		for i := 0; i < rows; i++ {
			votes[argmax(scores.RawRowView(i))]++
		}
		best := 0
		for j := 1; j < cols; j++ {
			if votes[j] > votes[best] {
				best = j
			}
		}
		return best
	case DecisionLast:
		return argmax(scores.RawRowView(rows - 1))
	default: // DecisionMean
		mean := make([]float64, cols)
		for i := 0; i < rows; i++ {
			row := scores.RawRowView(i)
			for j, v := range row {
				mean[j] += v
			}
		}
		return argmax(mean)
	}
}

// SizeBytes reports the memory held by the fitted weight matrices.
func (c *Classifier) SizeBytes() int64 {
	if c.weights == nil {
		return 0
	}
	total := c.weights.SizeBytes()
	if c.readout != nil {
		total += c.readout.SizeBytes()
	}
	return total
}

// Record captures the fitted classifier for persistence.
func (c *Classifier) Record(id string) (model.EstimatorRecord, error) {
	if c.readout == nil {
		return model.EstimatorRecord{}, fmt.Errorf("%w: classifier", model.ErrNotFitted)
	}
	return model.EstimatorRecord{
		ID:           id,
		Kind:         model.EstimatorClassifier,
		Config:       c.params.Reservoir,
		InputDim:     c.inputDim,
		OutputDim:    len(c.classes),
		FitIntercept: c.params.FitIntercept,
		Decision:     c.params.decision(),
		Classes:      append([]int(nil), c.classes...),
		Weights:      c.weights.Record(),
		Readout:      c.readout.Record(),
		CreatedAtUTC: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// ClassifierFromRecord rebuilds a fitted classifier from its
// persistent form.
func ClassifierFromRecord(rec model.EstimatorRecord) (*Classifier, error) {
	if rec.Kind != model.EstimatorClassifier {
		return nil, fmt.Errorf("%w: record kind %q is not a classifier", model.ErrConfig, rec.Kind)
	}
	if len(rec.Classes) != rec.OutputDim {
		return nil, fmt.Errorf("%w: %d classes with output width %d", model.ErrDimension, len(rec.Classes), rec.OutputDim)
	}
	weights, fitted, err := restoreParts(rec)
	if err != nil {
		return nil, err
	}
	p := Params{
		Reservoir:    rec.Config,
		Alpha:        rec.Readout.Alpha,
		FitIntercept: rec.FitIntercept,
		Decision:     rec.Decision,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{
		params:   p,
		weights:  weights,
		readout:  fitted,
		classes:  append([]int(nil), rec.Classes...),
		inputDim: rec.InputDim,
	}, nil
}

// collectClasses returns the sorted distinct label set.
func collectClasses(labels [][]int) ([]int, error) {
	seen := make(map[int]struct{})
	for _, ls := range labels {
		for _, l := range ls {
			seen[l] = struct{}{}
		}
	}
	if len(seen) < 2 {
		return nil, fmt.Errorf("%w: need at least two distinct classes, got %d", model.ErrConfig, len(seen))
	}
	classes := make([]int, 0, len(seen))
	for l := range seen {
		classes = append(classes, l)
	}
	sort.Ints(classes)
	return classes, nil
}

// oneHotTargets expands label slices into (steps x classes) indicator
// matrices, broadcasting single-label slices over the sequence.
func oneHotTargets(inputs []*mat.Dense, labels [][]int, classes []int) ([]*mat.Dense, error) {
	index := make(map[int]int, len(classes))
	for i, l := range classes {
		index[l] = i
	}

	targets := make([]*mat.Dense, len(inputs))
	for i := range inputs {
		if inputs[i] == nil {
			return nil, fmt.Errorf("%w: sequence %d is nil", model.ErrDimension, i)
		}
		steps, _ := inputs[i].Dims()
		ls := labels[i]
		if len(ls) != 1 && len(ls) != steps {
			return nil, fmt.Errorf("%w: sequence %d has %d steps but %d labels", model.ErrDimension, i, steps, len(ls))
		}
		t := mat.NewDense(steps, len(classes), nil)
		for s := 0; s < steps; s++ {
			l := ls[0]
			if len(ls) > 1 {
				l = ls[s]
			}
			t.Set(s, index[l], 1)
		}
		targets[i] = t
	}
	return targets, nil
}

func argmax(row []float64) int {
	best := 0
	for j := 1; j < len(row); j++ {
		if row[j] > row[best] {
			best = j
		}
	}
	return best
}

// softmaxInPlace rewrites a score row as a probability distribution,
// shifting by the row maximum first to avoid overflow.
func softmaxInPlace(row []float64, cols int) {
	max := row[0]
	for j := 1; j < cols; j++ {
		if row[j] > max {
			max = row[j]
		}
	}
	sum := 0.0
	for j := 0; j < cols; j++ {
		row[j] = math.Exp(row[j] - max)
		sum += row[j]
	}
	for j := 0; j < cols; j++ {
		row[j] /= sum
	}
}
