package engine

import (
	"context"
	"errors"
	"math/rand"

	"github.com/signalworks/gridsweep/internal/confidence"
	"github.com/signalworks/gridsweep/internal/grid"
)

// passthroughEvaluator reads a float64 artifact as the metric itself.
type passthroughEvaluator struct {
	name  string
	scale confidence.Scale
}

func (e passthroughEvaluator) Name() string            { return e.name }
func (e passthroughEvaluator) Scale() confidence.Scale { return e.scale }

func (e passthroughEvaluator) Evaluate(a Artifact) ([]float64, error) {
	v, ok := a.(float64)
	if !ok {
		return nil, errors.New("artifact is not a float64")
	}
	return []float64{v}, nil
}

// constantPipeline yields the same artifact every drop.
func constantPipeline(v float64) Pipeline {
	return PipelineFunc(func(context.Context, map[string]interface{}, *rand.Rand) (Artifact, error) {
		return v, nil
	})
}

// noisyPipeline yields uniform values in [0,1) from the drop's sub-stream.
func noisyPipeline() Pipeline {
	return PipelineFunc(func(_ context.Context, _ map[string]interface{}, rng *rand.Rand) (Artifact, error) {
		return rng.Float64(), nil
	})
}

// singleDim is a convenience one-dimensional grid.
func singleDim(name string, values ...interface{}) []grid.Dimension {
	return []grid.Dimension{{Name: name, Type: "float64", Values: values}}
}

func testCriteria() confidence.Criteria {
	return confidence.Criteria{MinTrials: 5, MaxTrials: 50, Level: 0.9, Tolerance: 0.1}
}

func sectionZero() grid.Section {
	return grid.Section{Index: 0}
}
