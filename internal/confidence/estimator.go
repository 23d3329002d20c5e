// Package confidence implements the running statistics and stopping policy
// for Monte Carlo sampling: an online mean/variance estimator per metric and
// the state machine that decides when enough trials have been collected.
package confidence

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// Scale selects how a metric's interval half-width is computed and compared
// against the tolerance.
type Scale string

const (
	// ScaleLinear computes the interval directly from the raw samples.
	ScaleLinear Scale = "linear"
	// ScaleLog computes the interval from log10-transformed samples, for
	// metrics spanning orders of magnitude (error rates, spectral power).
	ScaleLog Scale = "log"
)

// State is the lifecycle of one (section, evaluator) estimator.
type State string

const (
	// StateAccumulating means the stopping criterion has not been met.
	StateAccumulating State = "accumulating"
	// StateConverged means the interval half-width reached the tolerance
	// with at least the minimum number of trials.
	StateConverged State = "converged"
	// StateExhausted means the maximum trial count was reached without
	// convergence.
	StateExhausted State = "exhausted"
)

// Criteria holds the global stopping parameters of a sweep.
type Criteria struct {
	MinTrials int     `json:"min_trials"`
	MaxTrials int     `json:"max_trials"`
	Level     float64 `json:"confidence_level"` // e.g. 0.95
	Tolerance float64 `json:"tolerance"`        // same units as the metric (decades on the log scale)
}

// Validate rejects malformed criteria before any trial runs.
func (c Criteria) Validate() error {
	if c.MinTrials <= 0 {
		return fmt.Errorf("min_trials must be positive, got %d", c.MinTrials)
	}
	if c.MaxTrials < c.MinTrials {
		return fmt.Errorf("max_trials (%d) must be >= min_trials (%d)", c.MaxTrials, c.MinTrials)
	}
	if c.Level <= 0 || c.Level >= 1 {
		return fmt.Errorf("confidence_level must be in (0, 1), got %g", c.Level)
	}
	if c.Tolerance <= 0 {
		return fmt.Errorf("tolerance must be positive, got %g", c.Tolerance)
	}
	return nil
}

// logFloor substitutes for non-positive samples on the log scale. Error-rate
// metrics legitimately produce exact zeros; the floor keeps the transform
// defined while ranking such samples below every observable value.
const logFloor = 1e-12

// Estimator tracks the running mean and variance of one metric using
// Welford's online update, so per-sample cost stays O(1) regardless of
// history length. On the log scale a second accumulator tracks the
// transformed samples; the point estimate always reflects the raw samples.
//
// An Estimator has exactly one writer and is not safe for concurrent use.
type Estimator struct {
	scale    Scale
	criteria Criteria
	z        float64 // Gaussian quantile for the configured level

	n     int
	mean  float64
	m2    float64
	tMean float64 // log-transformed accumulators, used when scale == ScaleLog
	tM2   float64

	state State
}

// NewEstimator creates an estimator for one metric. Criteria must already be
// validated.
func NewEstimator(scale Scale, criteria Criteria) *Estimator {
	half := (1 + criteria.Level) / 2
	return &Estimator{
		scale:    scale,
		criteria: criteria,
		z:        distuv.Normal{Mu: 0, Sigma: 1}.Quantile(half),
		state:    StateAccumulating,
	}
}

// Observe feeds one sample and re-evaluates the stopping criterion. Calls
// after the estimator left StateAccumulating are ignored.
func (e *Estimator) Observe(x float64) {
	if e.state != StateAccumulating {
		return
	}

	e.n++
	d := x - e.mean
	e.mean += d / float64(e.n)
	e.m2 += d * (x - e.mean)

	if e.scale == ScaleLog {
		t := math.Log10(math.Max(x, logFloor))
		td := t - e.tMean
		e.tMean += td / float64(e.n)
		e.tM2 += td * (t - e.tMean)
	}

	if e.n >= e.criteria.MinTrials && e.HalfWidth() <= e.criteria.Tolerance {
		e.state = StateConverged
	} else if e.n >= e.criteria.MaxTrials {
		e.state = StateExhausted
	}
}

// Count returns the number of samples observed.
func (e *Estimator) Count() int { return e.n }

// Mean returns the running point estimate on the raw (linear) scale.
func (e *Estimator) Mean() float64 {
	if e.n == 0 {
		return math.NaN()
	}
	return e.mean
}

// Variance returns the unbiased sample variance on the scale the interval is
// computed on. Undefined below two samples.
func (e *Estimator) Variance() float64 {
	if e.n < 2 {
		return math.NaN()
	}
	if e.scale == ScaleLog {
		return e.tM2 / float64(e.n-1)
	}
	return e.m2 / float64(e.n-1)
}

// HalfWidth returns the confidence interval half-width at the configured
// level: z * s / sqrt(n) on the declared scale. Below two samples the
// half-width is undefined and reported as +Inf so a lucky zero-variance
// start can never trigger convergence.
func (e *Estimator) HalfWidth() float64 {
	if e.n < 2 {
		return math.Inf(1)
	}
	return e.z * math.Sqrt(e.Variance()/float64(e.n))
}

// State returns the estimator's stopping state.
func (e *Estimator) State() State { return e.state }

// Done reports whether the estimator has left StateAccumulating.
func (e *Estimator) Done() bool { return e.state != StateAccumulating }

// Snapshot is a read-only copy of an estimator's final statistics, embedded
// in sweep results.
type Snapshot struct {
	Mean      float64 `json:"mean"`
	HalfWidth float64 `json:"half_width"`
	Count     int     `json:"count"`
	State     State   `json:"state"`
}

// Snapshot captures the current statistics. Undefined values (no samples,
// or a half-width below two samples) are reported as zero so snapshots stay
// JSON-encodable; Count and State carry the distinction.
func (e *Estimator) Snapshot() Snapshot {
	s := Snapshot{Count: e.n, State: e.state}
	if m := e.Mean(); !math.IsNaN(m) {
		s.Mean = m
	}
	if hw := e.HalfWidth(); !math.IsInf(hw, 1) && !math.IsNaN(hw) {
		s.HalfWidth = hw
	}
	return s
}
