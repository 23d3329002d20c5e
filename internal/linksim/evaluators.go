package linksim

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/signalworks/gridsweep/internal/confidence"
	"github.com/signalworks/gridsweep/internal/engine"
)

// artifactOf narrows the opaque engine artifact to this package's type.
func artifactOf(a engine.Artifact) (*Artifact, error) {
	la, ok := a.(*Artifact)
	if !ok {
		return nil, fmt.Errorf("unexpected artifact type %T", a)
	}
	return la, nil
}

// BitErrorRate counts the fraction of bit decisions that differ from the
// transmitted bits. Error rates span orders of magnitude across an SNR
// sweep, so the confidence interval runs on the log scale.
type BitErrorRate struct{}

func (BitErrorRate) Name() string            { return "bit_error_rate" }
func (BitErrorRate) Scale() confidence.Scale { return confidence.ScaleLog }

func (BitErrorRate) Evaluate(a engine.Artifact) ([]float64, error) {
	la, err := artifactOf(a)
	if err != nil {
		return nil, err
	}
	if len(la.TxBits) == 0 || len(la.TxBits) != len(la.RxBits) {
		return nil, fmt.Errorf("bit streams have lengths %d and %d", len(la.TxBits), len(la.RxBits))
	}
	errs := 0
	for i := range la.TxBits {
		if la.TxBits[i] != la.RxBits[i] {
			errs++
		}
	}
	return []float64{float64(errs) / float64(len(la.TxBits))}, nil
}

// SymbolErrorRate counts symbols where any constituent bit decision failed.
type SymbolErrorRate struct{}

func (SymbolErrorRate) Name() string            { return "symbol_error_rate" }
func (SymbolErrorRate) Scale() confidence.Scale { return confidence.ScaleLog }

func (SymbolErrorRate) Evaluate(a engine.Artifact) ([]float64, error) {
	la, err := artifactOf(a)
	if err != nil {
		return nil, err
	}
	n := len(la.TxSymbols)
	if n == 0 || len(la.TxBits)%n != 0 {
		return nil, fmt.Errorf("cannot partition %d bits into %d symbols", len(la.TxBits), n)
	}
	bps := len(la.TxBits) / n
	errs := 0
	for s := 0; s < n; s++ {
		for b := s * bps; b < (s+1)*bps; b++ {
			if la.TxBits[b] != la.RxBits[b] {
				errs++
				break
			}
		}
	}
	return []float64{float64(errs) / float64(n)}, nil
}

// ErrorVectorMagnitude is the RMS distance between received and transmitted
// symbols, normalised by the RMS reference amplitude. A linear-scale metric.
type ErrorVectorMagnitude struct{}

func (ErrorVectorMagnitude) Name() string            { return "error_vector_magnitude" }
func (ErrorVectorMagnitude) Scale() confidence.Scale { return confidence.ScaleLinear }

func (ErrorVectorMagnitude) Evaluate(a engine.Artifact) ([]float64, error) {
	la, err := artifactOf(a)
	if err != nil {
		return nil, err
	}
	if len(la.TxSymbols) == 0 || len(la.TxSymbols) != len(la.RxSymbols) {
		return nil, fmt.Errorf("symbol streams have lengths %d and %d", len(la.TxSymbols), len(la.RxSymbols))
	}
	var errPow, refPow float64
	for i := range la.TxSymbols {
		d := la.RxSymbols[i] - la.TxSymbols[i]
		errPow += real(d)*real(d) + imag(d)*imag(d)
		m := cmplx.Abs(la.TxSymbols[i])
		refPow += m * m
	}
	if refPow == 0 {
		return nil, fmt.Errorf("zero reference power")
	}
	return []float64{math.Sqrt(errPow / refPow)}, nil
}

// Evaluators returns the full evaluator set for this pipeline in a fresh
// registry.
func Evaluators() *engine.EvaluatorRegistry {
	reg := engine.NewEvaluatorRegistry()
	reg.Register(BitErrorRate{})
	reg.Register(SymbolErrorRate{})
	reg.Register(ErrorVectorMagnitude{})
	return reg
}
