// Package linksim is a small reference communication link used to exercise
// the sweep engine end to end: BPSK/QPSK symbols over an AWGN channel with
// hard-decision demodulation. It is deliberately minimal; the engine treats
// it like any other pipeline behind the engine.Pipeline interface.
package linksim

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/signalworks/gridsweep/internal/engine"
	"github.com/signalworks/gridsweep/internal/grid"
)

const invSqrt2 = 0.7071067811865476

// Artifact is one drop's transmission record, consumed by the evaluators in
// this package.
type Artifact struct {
	SNRdB     float64
	TxBits    []byte
	RxBits    []byte
	TxSymbols []complex128
	RxSymbols []complex128
}

// Pipeline simulates one link trial per drop. Overrides recognised:
//
//	snr_db     float64  symbol energy to noise density ratio in dB
//	modulation string   "bpsk" or "qpsk"
//	symbols    int      symbols per drop
type Pipeline struct {
	Modulation string // default when not overridden
	Symbols    int
}

// NewPipeline returns a pipeline with QPSK and 1000 symbols per drop as
// defaults.
func NewPipeline() *Pipeline {
	return &Pipeline{Modulation: "qpsk", Symbols: 1000}
}

// Params returns the settable-parameter table for this pipeline, built once
// at startup and used to validate sweep dimensions.
func (p *Pipeline) Params() *grid.ParamTable {
	t := grid.NewParamTable()
	t.Register("snr_db", "float64")
	t.Register("modulation", "string")
	t.Register("symbols", "int")
	return t
}

// RunTrial implements engine.Pipeline. It is deterministic given identical
// overrides and random stream state.
func (p *Pipeline) RunTrial(_ context.Context, overrides map[string]interface{}, rng *rand.Rand) (engine.Artifact, error) {
	snrDB := 10.0
	if v, ok := overrides["snr_db"]; ok {
		f, ok := v.(float64)
		if !ok {
			return nil, fmt.Errorf("snr_db override must be float64, got %T", v)
		}
		snrDB = f
	}

	modulation := p.Modulation
	if v, ok := overrides["modulation"]; ok {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("modulation override must be string, got %T", v)
		}
		modulation = s
	}

	symbols := p.Symbols
	if v, ok := overrides["symbols"]; ok {
		n, ok := v.(int)
		if !ok {
			return nil, fmt.Errorf("symbols override must be int, got %T", v)
		}
		symbols = n
	}
	if symbols <= 0 {
		return nil, fmt.Errorf("symbols must be positive, got %d", symbols)
	}

	var bitsPerSymbol int
	switch modulation {
	case "bpsk":
		bitsPerSymbol = 1
	case "qpsk":
		bitsPerSymbol = 2
	default:
		return nil, fmt.Errorf("unknown modulation %q", modulation)
	}

	// Unit symbol energy; noise variance per real dimension is N0/2.
	esN0 := math.Pow(10, snrDB/10)
	sigma := math.Sqrt(1 / (2 * esN0))
	noise := distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}

	a := &Artifact{
		SNRdB:     snrDB,
		TxBits:    make([]byte, symbols*bitsPerSymbol),
		RxBits:    make([]byte, 0, symbols*bitsPerSymbol),
		TxSymbols: make([]complex128, symbols),
		RxSymbols: make([]complex128, symbols),
	}
	for i := range a.TxBits {
		a.TxBits[i] = byte(rng.Intn(2))
	}

	for i := 0; i < symbols; i++ {
		var sym complex128
		if bitsPerSymbol == 1 {
			sym = complex(bpskLevel(a.TxBits[i]), 0)
		} else {
			sym = complex(bpskLevel(a.TxBits[2*i])*invSqrt2, bpskLevel(a.TxBits[2*i+1])*invSqrt2)
		}
		a.TxSymbols[i] = sym
		a.RxSymbols[i] = sym + complex(noise.Rand(), noise.Rand())
	}

	for _, r := range a.RxSymbols {
		if bitsPerSymbol == 1 {
			a.RxBits = append(a.RxBits, hardBit(real(r)))
		} else {
			a.RxBits = append(a.RxBits, hardBit(real(r)), hardBit(imag(r)))
		}
	}

	return a, nil
}

// bpskLevel maps a bit to an antipodal level.
func bpskLevel(b byte) float64 {
	if b == 0 {
		return 1
	}
	return -1
}

// hardBit slices one real dimension back to a bit.
func hardBit(v float64) byte {
	if v >= 0 {
		return 0
	}
	return 1
}
