package engine

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/signalworks/gridsweep/internal/confidence"
	"github.com/signalworks/gridsweep/internal/grid"
)

// DefaultMaxConsecutiveFailures converts repeated trial failures into a
// fatal section error when no threshold is configured.
const DefaultMaxConsecutiveFailures = 5

// Config holds the global execution parameters of a sweep.
type Config struct {
	Seed     int64               `json:"seed"`
	Workers  int                 `json:"workers"` // 0 means GOMAXPROCS
	Criteria confidence.Criteria `json:"criteria"`
	// MaxConsecutiveFailures marks a section failed after this many failed
	// drops in a row. 0 selects the default.
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`
}

// Scheduler distributes grid sections across a fixed worker pool. Sections
// are fully independent: each one is driven by exactly one SectionRunner and
// owns disjoint state, so the only shared state is the immutable grid
// description and the atomic progress counter.
type Scheduler struct {
	cfg        Config
	pipeline   Pipeline
	evaluators []Evaluator

	total    atomic.Int64
	finished atomic.Int64
}

// NewScheduler validates the configuration and builds a scheduler.
// Configuration errors abort before any trial runs.
func NewScheduler(cfg Config, pipeline Pipeline, evaluators []Evaluator) (*Scheduler, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("%w: pipeline is nil", ErrConfig)
	}
	if len(evaluators) == 0 {
		return nil, fmt.Errorf("%w: no evaluators registered", ErrConfig)
	}
	if err := cfg.Criteria.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("%w: workers must not be negative", ErrConfig)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.MaxConsecutiveFailures < 0 {
		return nil, fmt.Errorf("%w: max_consecutive_failures must not be negative", ErrConfig)
	}
	if cfg.MaxConsecutiveFailures == 0 {
		cfg.MaxConsecutiveFailures = DefaultMaxConsecutiveFailures
	}

	return &Scheduler{cfg: cfg, pipeline: pipeline, evaluators: evaluators}, nil
}

// Progress returns the number of finished sections and the grid total. Safe
// to call concurrently with Run.
func (s *Scheduler) Progress() (done, total int) {
	return int(s.finished.Load()), int(s.total.Load())
}

// Run enumerates the grid and drives every section to a terminal state.
// Cancelling the context stops cleanly at drop boundaries; in-flight
// sections finalize with whatever samples they accumulated and the partial
// result is returned, not discarded. A section-level crash marks that
// section failed and the rest of the grid proceeds.
func (s *Scheduler) Run(ctx context.Context, dims []grid.Dimension) (*GridResult, error) {
	sections, err := grid.Enumerate(dims)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	s.total.Store(int64(len(sections)))
	s.finished.Store(0)
	started := time.Now()

	Logf("[sweep] starting: %d sections, %d workers, seed %d",
		len(sections), s.cfg.Workers, s.cfg.Seed)

	// One result slot per section; slots are written by exactly one worker.
	results := make([]SectionResult, len(sections))

	jobs := make(chan grid.Section)
	var wg sync.WaitGroup
	for w := 0; w < s.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sec := range jobs {
				results[sec.Index] = s.runSection(ctx, sec)
				s.finished.Add(1)
			}
		}()
	}

	for _, sec := range sections {
		jobs <- sec
	}
	close(jobs)
	wg.Wait()

	res := &GridResult{
		Seed:        s.cfg.Seed,
		Cancelled:   ctx.Err() != nil,
		StartedAt:   started,
		CompletedAt: time.Now(),
		Sections:    results,
	}
	Logf("[sweep] complete: %d/%d sections finished in %s",
		res.Finished(), len(sections), res.CompletedAt.Sub(started).Round(time.Millisecond))
	return res, nil
}

// runSection isolates one section's execution: a panic anywhere inside the
// runner or pipeline marks this section failed without taking down the
// sweep.
func (s *Scheduler) runSection(ctx context.Context, sec grid.Section) (res SectionResult) {
	defer func() {
		if r := recover(); r != nil {
			Logf("[sweep] section %d crashed: %v", sec.Index, r)
			res = SectionResult{
				Index:  sec.Index,
				Params: sec.Overrides(),
				Status: SectionFailed,
				Error:  fmt.Sprintf("worker crash: %v", r),
			}
		}
	}()

	exec := &DropExecutor{Pipeline: s.pipeline, Evaluators: s.evaluators, Seed: s.cfg.Seed}
	runner := NewSectionRunner(exec, sec, s.cfg.Criteria, s.cfg.MaxConsecutiveFailures)
	return runner.Run(ctx)
}
