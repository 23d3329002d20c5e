package engine

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/signalworks/gridsweep/internal/confidence"
)

// recordingEvaluator remembers every artifact it was handed.
type recordingEvaluator struct {
	name string
	seen []Artifact
}

func (e *recordingEvaluator) Name() string            { return e.name }
func (e *recordingEvaluator) Scale() confidence.Scale { return confidence.ScaleLinear }

func (e *recordingEvaluator) Evaluate(a Artifact) ([]float64, error) {
	e.seen = append(e.seen, a)
	return []float64{0}, nil
}

func TestRunDropRoutesArtifactToEveryEvaluator(t *testing.T) {
	first := &recordingEvaluator{name: "first"}
	second := &recordingEvaluator{name: "second"}
	exec := &DropExecutor{
		Pipeline:   constantPipeline(3.5),
		Evaluators: []Evaluator{first, second},
		Seed:       1,
	}

	out := exec.RunDrop(context.Background(), sectionZero(), 0)
	if out.Failed() {
		t.Fatalf("drop failed: %v", out.Err)
	}
	if len(out.Samples) != 2 {
		t.Fatalf("want one sample vector per evaluator, got %d", len(out.Samples))
	}
	for _, ev := range []*recordingEvaluator{first, second} {
		if len(ev.seen) != 1 {
			t.Fatalf("evaluator %s saw %d artifacts, want 1", ev.name, len(ev.seen))
		}
		if ev.seen[0] != Artifact(3.5) {
			t.Errorf("evaluator %s saw %v, want the pipeline's artifact", ev.name, ev.seen[0])
		}
	}
}

func TestRunDropWrapsPipelineError(t *testing.T) {
	cause := errors.New("antenna unplugged")
	exec := &DropExecutor{
		Pipeline: PipelineFunc(func(context.Context, map[string]interface{}, *rand.Rand) (Artifact, error) {
			return nil, cause
		}),
		Evaluators: []Evaluator{passthroughEvaluator{name: "m"}},
	}

	out := exec.RunDrop(context.Background(), sectionZero(), 7)
	if !out.Failed() {
		t.Fatal("want failed outcome")
	}
	var te *TrialError
	if !errors.As(out.Err, &te) {
		t.Fatalf("want TrialError, got %T", out.Err)
	}
	if te.Section != 0 || te.Drop != 7 {
		t.Errorf("error located at section %d drop %d, want 0/7", te.Section, te.Drop)
	}
	if !errors.Is(out.Err, cause) {
		t.Error("cause not reachable through the wrapped error")
	}
}

func TestRunDropRecoversPanic(t *testing.T) {
	exec := &DropExecutor{
		Pipeline: PipelineFunc(func(context.Context, map[string]interface{}, *rand.Rand) (Artifact, error) {
			panic("index out of range")
		}),
		Evaluators: []Evaluator{passthroughEvaluator{name: "m"}},
	}

	out := exec.RunDrop(context.Background(), sectionZero(), 0)
	if !out.Failed() {
		t.Fatal("panicking pipeline must yield a failed outcome")
	}
}

func TestRunDropRejectsEmptyEvaluatorOutput(t *testing.T) {
	empty := evaluatorFunc{"empty", func(Artifact) ([]float64, error) { return nil, nil }}
	exec := &DropExecutor{
		Pipeline:   constantPipeline(1),
		Evaluators: []Evaluator{empty},
	}
	if out := exec.RunDrop(context.Background(), sectionZero(), 0); !out.Failed() {
		t.Error("empty metric vector accepted")
	}
}

func TestRunDropFailsWholeTrialOnEvaluatorError(t *testing.T) {
	ok := &recordingEvaluator{name: "ok"}
	bad := evaluatorFunc{"bad", func(Artifact) ([]float64, error) { return nil, errors.New("no bits") }}
	exec := &DropExecutor{
		Pipeline:   constantPipeline(1),
		Evaluators: []Evaluator{ok, bad},
	}
	out := exec.RunDrop(context.Background(), sectionZero(), 0)
	if !out.Failed() {
		t.Fatal("want failed outcome")
	}
	if out.Samples != nil {
		t.Error("failed trial must not keep partial samples")
	}
}

// evaluatorFunc adapts a bare function for single-test evaluators.
type evaluatorFunc struct {
	name string
	fn   func(Artifact) ([]float64, error)
}

func (e evaluatorFunc) Name() string                          { return e.name }
func (e evaluatorFunc) Scale() confidence.Scale               { return confidence.ScaleLinear }
func (e evaluatorFunc) Evaluate(a Artifact) ([]float64, error) { return e.fn(a) }
