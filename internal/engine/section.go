package engine

import (
	"context"
	"fmt"

	"github.com/signalworks/gridsweep/internal/confidence"
	"github.com/signalworks/gridsweep/internal/grid"
)

// SectionRunner drives one grid section to completion: a strictly sequential
// drop loop that feeds every sample to the per-evaluator estimators and
// re-evaluates the stop condition after every drop. A runner is the single
// writer of its section's state; no locking is needed inside.
type SectionRunner struct {
	exec        *DropExecutor
	section     grid.Section
	criteria    confidence.Criteria
	maxFailures int // consecutive failures that turn the section fatal

	// banks[i] holds one estimator per element of evaluator i's metric.
	// Element count is fixed by the first successful drop.
	banks [][]*confidence.Estimator

	drops       int
	failures    int
	consecutive int
}

// NewSectionRunner creates a runner for one section. Criteria must already
// be validated; maxFailures must be positive.
func NewSectionRunner(exec *DropExecutor, section grid.Section, criteria confidence.Criteria, maxFailures int) *SectionRunner {
	return &SectionRunner{
		exec:        exec,
		section:     section,
		criteria:    criteria,
		maxFailures: maxFailures,
		banks:       make([][]*confidence.Estimator, len(exec.Evaluators)),
	}
}

// finished reports whether every evaluator reached a terminal estimator
// state. Sections with no successful drop yet are never finished.
func (r *SectionRunner) finished() bool {
	for _, bank := range r.banks {
		if bank == nil {
			return false
		}
		for _, est := range bank {
			if !est.Done() {
				return false
			}
		}
	}
	return true
}

// observe routes one drop's samples into the estimator banks, creating them
// on the first successful drop.
func (r *SectionRunner) observe(samples [][]float64) error {
	for i, vals := range samples {
		if r.banks[i] == nil {
			bank := make([]*confidence.Estimator, len(vals))
			for j := range bank {
				bank[j] = confidence.NewEstimator(r.exec.Evaluators[i].Scale(), r.criteria)
			}
			r.banks[i] = bank
		}
		if len(vals) != len(r.banks[i]) {
			return fmt.Errorf("evaluator %s changed width from %d to %d",
				r.exec.Evaluators[i].Name(), len(r.banks[i]), len(vals))
		}
		for j, v := range vals {
			r.banks[i][j].Observe(v)
		}
	}
	return nil
}

// Run executes the drop loop until the section converges, exhausts its trial
// budget, trips the failure threshold, or the context is cancelled.
// Cancellation is honoured between drops only, never mid-trial, and the
// accumulated samples are kept in the result.
func (r *SectionRunner) Run(ctx context.Context) SectionResult {
	var fatal error

	for r.drops < r.criteria.MaxTrials {
		if ctx.Err() != nil {
			break
		}
		if r.finished() {
			break
		}

		out := r.exec.RunDrop(ctx, r.section, r.drops)
		r.drops++

		if out.Failed() {
			r.failures++
			r.consecutive++
			Logf("[sweep] section %d drop %d failed (%d consecutive): %v",
				r.section.Index, r.drops-1, r.consecutive, out.Err)
			if r.consecutive >= r.maxFailures {
				fatal = fmt.Errorf("%w after %d consecutive failures: %v",
					ErrSectionFailed, r.consecutive, out.Err)
				break
			}
			continue
		}

		r.consecutive = 0
		if err := r.observe(out.Samples); err != nil {
			fatal = err
			break
		}
	}

	return r.result(ctx, fatal)
}

// result snapshots the section state into its read-only outcome.
func (r *SectionRunner) result(ctx context.Context, fatal error) SectionResult {
	res := SectionResult{
		Index:    r.section.Index,
		Params:   r.section.Overrides(),
		Drops:    r.drops,
		Failures: r.failures,
	}

	allConverged := true
	for i, ev := range r.exec.Evaluators {
		er := EvaluatorResult{Name: ev.Name(), Scale: ev.Scale()}
		if bank := r.banks[i]; bank != nil {
			er.Converged = true
			for _, est := range bank {
				er.Estimates = append(er.Estimates, est.Snapshot())
				if est.State() != confidence.StateConverged {
					er.Converged = false
				}
			}
		}
		if !er.Converged {
			allConverged = false
		}
		res.Evaluators = append(res.Evaluators, er)
	}

	switch {
	case fatal != nil:
		res.Status = SectionFailed
		res.Error = fatal.Error()
	case r.finished():
		if allConverged {
			res.Status = SectionConverged
		} else {
			res.Status = SectionExhausted
		}
	case ctx.Err() != nil:
		res.Status = SectionPartial
	default:
		// Trial budget spent on failures before the estimators could finish.
		res.Status = SectionExhausted
	}
	return res
}
