package estimator

import (
	"context"
	"fmt"
	"sync"

	"gonum.org/v1/gonum/mat"

	"echostate/internal/model"
	"echostate/internal/readout"
	"echostate/internal/reservoir"
)

func buildMachine(p Params, weights *reservoir.WeightSet) (*reservoir.StateMachine, error) {
	var opts []reservoir.MachineOption
	if p.Reservoir.Bidirectional {
		opts = append(opts, reservoir.WithBidirectional())
	}
	if p.Continuation {
		opts = append(opts, reservoir.WithContinuation())
	}
	return reservoir.NewStateMachine(weights, p.Reservoir.Activation, p.Reservoir.Leakage, opts...)
}

// transformAll runs every input sequence through the reservoir and
// returns the state sequences in input order.
//
// Independent sequences go through a worker pool; each worker owns a
// private state machine over the shared read-only weight set. With
// continuation enabled, sequence order is part of the semantics, so a
// single machine processes the batch sequentially and carries its
// final state from one sequence into the next.
func transformAll(ctx context.Context, p Params, weights *reservoir.WeightSet, inputs []*mat.Dense) ([]*mat.Dense, error) {
	if p.Continuation {
		machine, err := buildMachine(p, weights)
		if err != nil {
			return nil, err
		}
		out := make([]*mat.Dense, len(inputs))
		for i, in := range inputs {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			states, err := machine.Run(in, nil)
			if err != nil {
				return nil, fmt.Errorf("sequence %d: %w", i, err)
			}
			out[i] = states
		}
		return out, nil
	}

	type job struct {
		idx int
		in  *mat.Dense
	}
	type result struct {
		idx    int
		states *mat.Dense
		err    error
	}

	jobs := make(chan job)
	results := make(chan result, len(inputs))

	workerCount := p.workerCount()
	if workerCount > len(inputs) {
		workerCount = len(inputs)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			machine, err := buildMachine(p, weights)
			if err != nil {
				for j := range jobs {
					results <- result{idx: j.idx, err: err}
				}
				return
			}
			for j := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: j.idx, err: err}
					continue
				}
				machine.ResetState()
				states, err := machine.Run(j.in, nil)
				if err != nil {
					results <- result{idx: j.idx, err: fmt.Errorf("sequence %d: %w", j.idx, err)}
					continue
				}
				results <- result{idx: j.idx, states: states}
			}
		}()
	}

	for i := range inputs {
		jobs <- job{idx: i, in: inputs[i]}
	}
	close(jobs)

	wg.Wait()
	close(results)

	out := make([]*mat.Dense, len(inputs))
	for res := range results {
		if res.err != nil {
			return nil, res.err
		}
		out[res.idx] = res.states
	}
	return out, nil
}

// fitReadout trains the linear readout over per-sequence features and
// targets, either single-shot over the stacked rows or chunk by chunk
// through the incremental accumulator.
func fitReadout(ctx context.Context, p Params, features, targets []*mat.Dense) (*readout.Model, error) {
	if !p.Incremental {
		return readout.Ridge{Alpha: p.Alpha, FitIntercept: p.FitIntercept}.Fit(stackRows(features), stackRows(targets))
	}

	inc := &readout.Incremental{Alpha: p.Alpha, FitIntercept: p.FitIntercept}
	chunk := p.chunkSize()
	for i := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, fcols := features[i].Dims()
		_, tcols := targets[i].Dims()
		for start := 0; start < rows; start += chunk {
			end := start + chunk
			if end > rows {
				end = rows
			}
			err := inc.PartialFit(
				features[i].Slice(start, end, 0, fcols),
				targets[i].Slice(start, end, 0, tcols),
			)
			if err != nil {
				return nil, fmt.Errorf("sequence %d: %w", i, err)
			}
		}
	}
	return inc.Finalize()
}

// stackRows concatenates the sequences vertically. Callers have
// already validated that every block shares a column count.
func stackRows(blocks []*mat.Dense) *mat.Dense {
	total := 0
	_, cols := blocks[0].Dims()
	for _, b := range blocks {
		r, _ := b.Dims()
		total += r
	}
	out := mat.NewDense(total, cols, nil)
	row := 0
	for _, b := range blocks {
		r, _ := b.Dims()
		out.Slice(row, row+r, 0, cols).(*mat.Dense).Copy(b)
		row += r
	}
	return out
}

// validateSequences checks a training batch for shape consistency and
// reports the shared input and output widths.
func validateSequences(inputs, targets []*mat.Dense) (inputDim, outputDim int, err error) {
	if len(inputs) == 0 {
		return 0, 0, fmt.Errorf("%w: no input sequences", model.ErrDimension)
	}
	if len(inputs) != len(targets) {
		return 0, 0, fmt.Errorf("%w: %d input sequences vs %d target sequences", model.ErrDimension, len(inputs), len(targets))
	}
	for i := range inputs {
		if inputs[i] == nil || targets[i] == nil {
			return 0, 0, fmt.Errorf("%w: sequence %d is nil", model.ErrDimension, i)
		}
		ir, ic := inputs[i].Dims()
		tr, tc := targets[i].Dims()
		if i == 0 {
			inputDim, outputDim = ic, tc
		}
		if ic != inputDim || tc != outputDim {
			return 0, 0, fmt.Errorf("%w: sequence %d is %dx%d/%dx%d, batch uses input width %d and output width %d",
				model.ErrDimension, i, ir, ic, tr, tc, inputDim, outputDim)
		}
		if ir != tr {
			return 0, 0, fmt.Errorf("%w: sequence %d has %d input steps but %d target steps", model.ErrDimension, i, ir, tr)
		}
	}
	return inputDim, outputDim, nil
}

func validateInputs(inputs []*mat.Dense, inputDim int) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: no input sequences", model.ErrDimension)
	}
	for i := range inputs {
		if inputs[i] == nil {
			return fmt.Errorf("%w: sequence %d is nil", model.ErrDimension, i)
		}
		if _, c := inputs[i].Dims(); c != inputDim {
			return fmt.Errorf("%w: sequence %d has width %d, estimator was fitted on width %d", model.ErrDimension, i, c, inputDim)
		}
	}
	return nil
}
