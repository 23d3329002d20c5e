package engine

import (
	"context"
	"fmt"

	"github.com/signalworks/gridsweep/internal/grid"
)

// DropOutcome is the result of one trial. A failed trial has Err set and no
// samples; a successful trial carries one sample vector per evaluator, in
// evaluator order.
type DropOutcome struct {
	Samples [][]float64
	Err     error
}

// Failed reports whether the trial produced no samples.
func (o DropOutcome) Failed() bool { return o.Err != nil }

// DropExecutor runs single trials: it invokes the pipeline exactly once per
// drop with that drop's random sub-stream and routes the artifact through
// every evaluator. Pipeline errors and panics become failed-trial outcomes
// rather than propagating.
type DropExecutor struct {
	Pipeline   Pipeline
	Evaluators []Evaluator
	Seed       int64
}

// RunDrop executes one trial for the given section coordinate and drop
// index. The artifact is discarded before returning; evaluators extract
// their samples synchronously.
func (x *DropExecutor) RunDrop(ctx context.Context, section grid.Section, drop int) (out DropOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = DropOutcome{Err: &TrialError{Section: section.Index, Drop: drop, Err: fmt.Errorf("pipeline panic: %v", r)}}
		}
	}()

	rng := DropRand(x.Seed, section.Index, drop)

	artifact, err := x.Pipeline.RunTrial(ctx, section.Overrides(), rng)
	if err != nil {
		return DropOutcome{Err: &TrialError{Section: section.Index, Drop: drop, Err: err}}
	}

	samples := make([][]float64, len(x.Evaluators))
	for i, ev := range x.Evaluators {
		vals, err := ev.Evaluate(artifact)
		if err != nil {
			return DropOutcome{Err: &TrialError{Section: section.Index, Drop: drop,
				Err: fmt.Errorf("evaluator %s: %w", ev.Name(), err)}}
		}
		if len(vals) == 0 {
			return DropOutcome{Err: &TrialError{Section: section.Index, Drop: drop,
				Err: fmt.Errorf("evaluator %s returned no values", ev.Name())}}
		}
		samples[i] = vals
	}

	return DropOutcome{Samples: samples}
}
