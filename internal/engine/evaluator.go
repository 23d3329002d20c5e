// Package engine drives Monte Carlo sweeps: it executes independent trials
// ("drops") for every section of a parameter grid, accumulates per-metric
// statistics, applies the confidence stopping policy, and merges section
// results into a single sweep result.
package engine

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"github.com/signalworks/gridsweep/internal/confidence"
)

// Artifact is the opaque per-drop output of the trial pipeline. The engine
// never inspects it; it is handed to every evaluator of the drop and then
// discarded. Evaluators must not retain it across drops.
type Artifact interface{}

// Pipeline produces one Artifact per trial. RunTrial must be deterministic
// given identical overrides and random stream state, and must report failures
// through the error return rather than corrupting the artifact.
type Pipeline interface {
	RunTrial(ctx context.Context, overrides map[string]interface{}, rng *rand.Rand) (Artifact, error)
}

// PipelineFunc adapts a function to the Pipeline interface.
type PipelineFunc func(ctx context.Context, overrides map[string]interface{}, rng *rand.Rand) (Artifact, error)

// RunTrial implements Pipeline.
func (f PipelineFunc) RunTrial(ctx context.Context, overrides map[string]interface{}, rng *rand.Rand) (Artifact, error) {
	return f(ctx, overrides, rng)
}

// Evaluator computes one performance metric from one drop's artifact.
// Implementations must be pure functions of the artifact: no hidden state
// across calls, since multiple sections invoke the same evaluator
// concurrently.
type Evaluator interface {
	// Name is the human-readable metric name, used in results and reports.
	Name() string
	// Scale declares how the confidence interval for this metric is
	// computed and compared against the tolerance.
	Scale() confidence.Scale
	// Evaluate extracts the metric from the artifact. Scalar metrics return
	// a single element; array metrics one element per bin. The length must
	// be the same for every drop.
	Evaluate(artifact Artifact) ([]float64, error)
}

// EvaluatorInfo is a summary of a registered evaluator.
type EvaluatorInfo struct {
	Name  string           `json:"name"`
	Scale confidence.Scale `json:"scale"`
}

// EvaluatorRegistry holds named evaluator implementations. It is populated
// once at startup and shared read-only across all sections afterwards.
type EvaluatorRegistry struct {
	mu         sync.RWMutex
	evaluators map[string]Evaluator
}

// NewEvaluatorRegistry creates an empty registry.
func NewEvaluatorRegistry() *EvaluatorRegistry {
	return &EvaluatorRegistry{evaluators: make(map[string]Evaluator)}
}

// Register adds an evaluator. An existing evaluator with the same name is
// replaced.
func (r *EvaluatorRegistry) Register(e Evaluator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evaluators[e.Name()] = e
}

// Get retrieves an evaluator by name.
func (r *EvaluatorRegistry) Get(name string) (Evaluator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.evaluators[name]
	return e, ok
}

// List returns summaries of all registered evaluators, sorted by name for
// deterministic output.
func (r *EvaluatorRegistry) List() []EvaluatorInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]EvaluatorInfo, 0, len(r.evaluators))
	for _, e := range r.evaluators {
		infos = append(infos, EvaluatorInfo{Name: e.Name(), Scale: e.Scale()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos
}

// All returns the registered evaluators sorted by name.
func (r *EvaluatorRegistry) All() []Evaluator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Evaluator, 0, len(r.evaluators))
	for _, e := range r.evaluators {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}
