package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/signalworks/gridsweep/internal/confidence"
)

// SectionStatus is the terminal state of one grid section.
type SectionStatus string

const (
	// SectionConverged: every evaluator's interval reached the tolerance.
	SectionConverged SectionStatus = "converged"
	// SectionExhausted: the maximum trial count was reached first.
	SectionExhausted SectionStatus = "exhausted"
	// SectionPartial: the sweep was cancelled; accumulated samples were kept.
	SectionPartial SectionStatus = "partial"
	// SectionFailed: consecutive trial failures exceeded the threshold.
	SectionFailed SectionStatus = "failed"
)

// EvaluatorResult is the final confidence state of one metric for one
// section. Estimates has one entry per metric element (one for scalar
// metrics). Per-evaluator convergence is reported even when a sibling
// metric kept the section running.
type EvaluatorResult struct {
	Name      string                `json:"name"`
	Scale     confidence.Scale      `json:"scale"`
	Estimates []confidence.Snapshot `json:"estimates"`
	Converged bool                  `json:"converged"`
}

// SectionResult is the read-only outcome of one grid section.
type SectionResult struct {
	Index      int                    `json:"index"`
	Params     map[string]interface{} `json:"params"`
	Status     SectionStatus          `json:"status"`
	Drops      int                    `json:"drops"`
	Failures   int                    `json:"failures"`
	Evaluators []EvaluatorResult      `json:"evaluators"`
	Error      string                 `json:"error,omitempty"`
}

// GridResult is the final aggregate of a sweep: one SectionResult per grid
// section, ordered by section index.
type GridResult struct {
	RunID       string          `json:"run_id,omitempty"`
	Seed        int64           `json:"seed"`
	Cancelled   bool            `json:"cancelled"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
	Sections    []SectionResult `json:"sections"`
}

// Finished counts sections that ran to a natural stop (converged or
// exhausted).
func (g *GridResult) Finished() int {
	n := 0
	for _, s := range g.Sections {
		if s.Status == SectionConverged || s.Status == SectionExhausted {
			n++
		}
	}
	return n
}

// Merge unions two partial results computed by independent workers over
// disjoint section sets. Overlapping section indices are rejected: one
// section is never split across workers, so an overlap means the inputs do
// not belong to the same sweep.
func Merge(a, b GridResult) (GridResult, error) {
	if a.Seed != b.Seed {
		return GridResult{}, fmt.Errorf("cannot merge results with different seeds (%d vs %d)", a.Seed, b.Seed)
	}

	seen := make(map[int]bool, len(a.Sections))
	for _, s := range a.Sections {
		seen[s.Index] = true
	}

	merged := GridResult{
		RunID:       a.RunID,
		Seed:        a.Seed,
		Cancelled:   a.Cancelled || b.Cancelled,
		StartedAt:   a.StartedAt,
		CompletedAt: a.CompletedAt,
	}
	merged.Sections = append(merged.Sections, a.Sections...)
	for _, s := range b.Sections {
		if seen[s.Index] {
			return GridResult{}, fmt.Errorf("section %d present in both results", s.Index)
		}
		merged.Sections = append(merged.Sections, s)
	}

	if b.StartedAt.Before(merged.StartedAt) {
		merged.StartedAt = b.StartedAt
	}
	if b.CompletedAt.After(merged.CompletedAt) {
		merged.CompletedAt = b.CompletedAt
	}

	sort.Slice(merged.Sections, func(i, j int) bool {
		return merged.Sections[i].Index < merged.Sections[j].Index
	})
	return merged, nil
}
