// Command gridsweep runs a Monte Carlo parameter sweep of the reference
// link simulation: it enumerates the requested grid, drives every section
// to its confidence-based stop, and writes CSV summaries, plots, and an
// optional sqlite record of the run.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/signalworks/gridsweep/internal/confidence"
	"github.com/signalworks/gridsweep/internal/engine"
	"github.com/signalworks/gridsweep/internal/grid"
	"github.com/signalworks/gridsweep/internal/linksim"
	"github.com/signalworks/gridsweep/internal/report"
	"github.com/signalworks/gridsweep/internal/store"
	"github.com/signalworks/gridsweep/internal/version"
)

// dimFlags collects repeated -dim flags.
type dimFlags []string

func (d *dimFlags) String() string { return strings.Join(*d, "; ") }

func (d *dimFlags) Set(v string) error {
	*d = append(*d, v)
	return nil
}

// sweepRequest is the persisted description of what was asked for.
type sweepRequest struct {
	Dimensions []grid.Dimension `json:"dimensions"`
	Config     engine.Config    `json:"config"`
	Evaluators []string         `json:"evaluators"`
	Modulation string           `json:"modulation"`
	Symbols    int              `json:"symbols"`
}

func main() {
	var dims dimFlags
	flag.Var(&dims, "dim", "dimension spec name=min:max:step or name=v1,v2,... (repeatable)")

	minTrials := flag.Int("min-trials", 10, "minimum drops per section before convergence may trigger")
	maxTrials := flag.Int("max-trials", 1000, "maximum drops per section")
	level := flag.Float64("confidence", 0.95, "confidence level in (0,1)")
	tolerance := flag.Float64("tolerance", 0.1, "interval half-width tolerance (decades for log-scale metrics)")
	workers := flag.Int("workers", 0, "parallel section workers (0 = GOMAXPROCS)")
	seed := flag.Int64("seed", 42, "base random seed for the whole sweep")
	maxFailures := flag.Int("max-failures", engine.DefaultMaxConsecutiveFailures,
		"consecutive trial failures before a section is marked failed")

	modulation := flag.String("modulation", "qpsk", "default modulation when not swept (bpsk, qpsk)")
	symbols := flag.Int("symbols", 1000, "symbols per drop when not swept")
	evalNames := flag.String("evaluators", "", "comma-separated evaluator subset (default: all)")

	dbPath := flag.String("db", "", "sqlite database for run persistence (optional)")
	outDir := flag.String("out", "", "output directory (default: results/<date>_<nnn>)")
	plots := flag.Bool("plots", true, "render metric-vs-dimension plots")
	plotDim := flag.String("plot-dim", "", "dimension for the plot x-axis (default: first numeric dimension)")
	quiet := flag.Bool("quiet", false, "suppress engine progress logging")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("gridsweep %s (%s, built %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return
	}

	if *quiet {
		engine.SetLogger(nil)
	}

	if len(dims) == 0 {
		log.Fatalf("at least one -dim is required, e.g. -dim snr_db=0:20:5")
	}

	gridDims := make([]grid.Dimension, 0, len(dims))
	for _, spec := range dims {
		d, err := grid.ParseDimensionSpec(spec)
		if err != nil {
			log.Fatalf("bad -dim %q: %v", spec, err)
		}
		gridDims = append(gridDims, d)
	}

	pipeline := linksim.NewPipeline()
	pipeline.Modulation = *modulation
	pipeline.Symbols = *symbols

	if err := pipeline.Params().Check(gridDims); err != nil {
		log.Fatalf("invalid sweep: %v", err)
	}

	registry := linksim.Evaluators()
	evaluators := registry.All()
	if *evalNames != "" {
		evaluators = evaluators[:0]
		for _, name := range strings.Split(*evalNames, ",") {
			name = strings.TrimSpace(name)
			ev, ok := registry.Get(name)
			if !ok {
				log.Fatalf("unknown evaluator %q (have: %s)", name, evaluatorList(registry))
			}
			evaluators = append(evaluators, ev)
		}
	}

	cfg := engine.Config{
		Seed:    *seed,
		Workers: *workers,
		Criteria: confidence.Criteria{
			MinTrials: *minTrials,
			MaxTrials: *maxTrials,
			Level:     *level,
			Tolerance: *tolerance,
		},
		MaxConsecutiveFailures: *maxFailures,
	}

	sched, err := engine.NewScheduler(cfg, pipeline, evaluators)
	if err != nil {
		log.Fatalf("configuration: %v", err)
	}

	dir := *outDir
	if dir == "" {
		dir, err = report.DefaultResultsDir(".")
		if err != nil {
			log.Fatalf("creating results directory: %v", err)
		}
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("creating output directory: %v", err)
	}
	log.Printf("[gridsweep] writing results to %s", dir)

	var db *store.Store
	var runID string
	if *dbPath != "" {
		db, err = store.Open(*dbPath)
		if err != nil {
			log.Fatalf("opening db: %v", err)
		}
		defer db.Close()

		req := sweepRequest{
			Dimensions: gridDims,
			Config:     cfg,
			Modulation: *modulation,
			Symbols:    *symbols,
		}
		for _, ev := range evaluators {
			req.Evaluators = append(req.Evaluators, ev.Name())
		}
		runID, err = db.CreateRun(cfg.Seed, req)
		if err != nil {
			log.Fatalf("recording run: %v", err)
		}
		log.Printf("[gridsweep] run %s", runID)
	}

	// Ctrl-C requests premature termination; in-flight sections finalize
	// with the samples they have.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	progressDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				done, total := sched.Progress()
				log.Printf("[gridsweep] progress: %d/%d sections", done, total)
			case <-progressDone:
				return
			}
		}
	}()

	result, err := sched.Run(ctx, gridDims)
	close(progressDone)
	if err != nil {
		if db != nil {
			if derr := db.MarkRunError(runID); derr != nil {
				log.Printf("[gridsweep] WARNING: recording run error: %v", derr)
			}
		}
		log.Fatalf("sweep: %v", err)
	}
	result.RunID = runID

	if result.Cancelled {
		log.Printf("[gridsweep] cancelled: result is partial")
	}

	dimNames := make([]string, len(gridDims))
	for i, d := range gridDims {
		dimNames[i] = d.Name
	}

	csvPath := filepath.Join(dir, "sweep_summary.csv")
	f, err := os.Create(csvPath)
	if err != nil {
		log.Fatalf("creating %s: %v", csvPath, err)
	}
	if err := report.NewCSVWriter(f, dimNames).WriteResult(result); err != nil {
		f.Close()
		log.Fatalf("writing %s: %v", csvPath, err)
	}
	f.Close()
	log.Printf("[gridsweep] wrote %s", csvPath)

	if db != nil {
		if err := db.SaveResult(runID, result); err != nil {
			log.Printf("[gridsweep] WARNING: persisting result: %v", err)
		}
	}

	if *plots {
		x := *plotDim
		if x == "" {
			x = firstNumericDim(gridDims)
		}
		if x == "" {
			log.Printf("[gridsweep] no numeric dimension to plot against, skipping plots")
		} else {
			for _, ev := range evaluators {
				file, err := report.PlotMetric(result, x, ev.Name(), dir)
				if err != nil {
					log.Printf("[gridsweep] WARNING: plot %s: %v", ev.Name(), err)
					continue
				}
				log.Printf("[gridsweep] wrote %s", file)
			}
		}
	}

	printSummary(result)
}

// firstNumericDim returns the first dimension that can serve as a plot
// x-axis.
func firstNumericDim(dims []grid.Dimension) string {
	for _, d := range dims {
		if d.Type == "float64" || d.Type == "int" {
			return d.Name
		}
	}
	return ""
}

func evaluatorList(reg *engine.EvaluatorRegistry) string {
	var names []string
	for _, info := range reg.List() {
		names = append(names, info.Name)
	}
	return strings.Join(names, ", ")
}

// printSummary writes a human-readable table of the final estimates.
func printSummary(res *engine.GridResult) {
	fmt.Printf("\n%d sections, %d finished%s\n", len(res.Sections), res.Finished(),
		map[bool]string{true: " (cancelled)", false: ""}[res.Cancelled])
	for _, s := range res.Sections {
		coord := make([]string, 0, len(s.Params))
		for k, v := range s.Params {
			coord = append(coord, fmt.Sprintf("%s=%v", k, v))
		}
		sort.Strings(coord)
		fmt.Printf("  [%d] %-30s %-10s drops=%d failures=%d\n",
			s.Index, strings.Join(coord, " "), s.Status, s.Drops, s.Failures)
		for _, ev := range s.Evaluators {
			for el, est := range ev.Estimates {
				label := ev.Name
				if len(ev.Estimates) > 1 {
					label = fmt.Sprintf("%s[%d]", ev.Name, el)
				}
				fmt.Printf("      %-28s %.6g ± %.3g (n=%d, %s)\n",
					label, est.Mean, est.HalfWidth, est.Count, est.State)
			}
		}
	}
}
