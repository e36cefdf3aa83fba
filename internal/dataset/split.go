package dataset

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
)

// SplitSignal turns one whole signal into training sequences. With
// asList false the signal stays a single sequence; with asList true it
// is chopped into consecutive windows of seqLen steps, dropping an
// incomplete tail window.
func SplitSignal(inputs, targets *mat.Dense, seqLen int, asList bool) ([]*mat.Dense, []*mat.Dense, error) {
	ir, ic := inputs.Dims()
	tr, tc := targets.Dims()
	if ir != tr {
		return nil, nil, fmt.Errorf("%w: %d input steps vs %d target steps", model.ErrDimension, ir, tr)
	}
	if !asList {
		return []*mat.Dense{inputs}, []*mat.Dense{targets}, nil
	}
	if seqLen < 1 {
		return nil, nil, fmt.Errorf("%w: sequence length must be positive, got %d", model.ErrConfig, seqLen)
	}
	if seqLen > ir {
		return nil, nil, fmt.Errorf("%w: sequence length %d exceeds signal length %d", model.ErrConfig, seqLen, ir)
	}

	count := ir / seqLen
	ins := make([]*mat.Dense, 0, count)
	outs := make([]*mat.Dense, 0, count)
	for w := 0; w < count; w++ {
		start := w * seqLen
		ins = append(ins, inputs.Slice(start, start+seqLen, 0, ic).(*mat.Dense))
		outs = append(outs, targets.Slice(start, start+seqLen, 0, tc).(*mat.Dense))
	}
	return ins, outs, nil
}

// TrainTestSplit shuffles sequences with the given seed and holds out
// roughly testFraction of them. Every sequence lands in exactly one of
// the two partitions and both are non-empty.
func TrainTestSplit(inputs, targets []*mat.Dense, testFraction float64, seed int64) (trainIn, trainOut, testIn, testOut []*mat.Dense, err error) {
	if len(inputs) != len(targets) {
		return nil, nil, nil, nil, fmt.Errorf("%w: %d input sequences vs %d target sequences", model.ErrDimension, len(inputs), len(targets))
	}
	if len(inputs) < 2 {
		return nil, nil, nil, nil, fmt.Errorf("%w: need at least 2 sequences to split, got %d", model.ErrConfig, len(inputs))
	}
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, nil, nil, fmt.Errorf("%w: test fraction must be in (0,1), got %v", model.ErrConfig, testFraction)
	}

	perm := rand.New(rand.NewSource(seed)).Perm(len(inputs))
	testCount := int(float64(len(inputs)) * testFraction)
	if testCount < 1 {
		testCount = 1
	}
	if testCount >= len(inputs) {
		testCount = len(inputs) - 1
	}

	for i, idx := range perm {
		if i < testCount {
			testIn = append(testIn, inputs[idx])
			testOut = append(testOut, targets[idx])
		} else {
			trainIn = append(trainIn, inputs[idx])
			trainOut = append(trainOut, targets[idx])
		}
	}
	return trainIn, trainOut, testIn, testOut, nil
}
