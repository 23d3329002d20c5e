package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/signalworks/gridsweep/internal/confidence"
	"github.com/signalworks/gridsweep/internal/engine"
)

func sampleResult() *engine.GridResult {
	return &engine.GridResult{
		Seed: 42,
		Sections: []engine.SectionResult{
			{
				Index:  0,
				Params: map[string]interface{}{"snr_db": 0.0},
				Status: engine.SectionConverged,
				Drops:  20,
				Evaluators: []engine.EvaluatorResult{
					{
						Name:  "bit_error_rate",
						Scale: confidence.ScaleLog,
						Estimates: []confidence.Snapshot{
							{Mean: 0.08, HalfWidth: 0.05, Count: 20, State: confidence.StateConverged},
						},
						Converged: true,
					},
				},
			},
			{
				Index:  1,
				Params: map[string]interface{}{"snr_db": 6.0},
				Status: engine.SectionExhausted,
				Drops:  50,
				Evaluators: []engine.EvaluatorResult{
					{
						Name:  "bit_error_rate",
						Scale: confidence.ScaleLog,
						Estimates: []confidence.Snapshot{
							{Mean: 0.001, HalfWidth: 0.3, Count: 50, State: confidence.StateExhausted},
						},
					},
				},
			},
			{
				Index:    2,
				Params:   map[string]interface{}{"snr_db": 12.0},
				Status:   engine.SectionFailed,
				Drops:    5,
				Failures: 5,
				Error:    "hardware fault",
				Evaluators: []engine.EvaluatorResult{
					{Name: "bit_error_rate", Scale: confidence.ScaleLog},
				},
			},
		},
	}
}

func TestCSVLayout(t *testing.T) {
	var buf bytes.Buffer
	w := NewCSVWriter(&buf, []string{"snr_db"})
	if err := w.WriteResult(sampleResult()); err != nil {
		t.Fatal(err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	// header + one row per (section, evaluator, element)
	if len(rows) != 4 {
		t.Fatalf("want 4 rows, got %d", len(rows))
	}

	header := strings.Join(rows[0], ",")
	want := "section,snr_db,status,drops,failures,evaluator,element,mean,half_width,count,state"
	if header != want {
		t.Errorf("header = %s\nwant %s", header, want)
	}

	first := rows[1]
	if first[0] != "0" || first[1] != "0" || first[2] != "converged" {
		t.Errorf("first data row = %v", first)
	}
	if first[5] != "bit_error_rate" || first[7] != "0.08" || first[9] != "20" {
		t.Errorf("first metric columns = %v", first)
	}

	// The failed section has no estimates but still appears.
	failed := rows[3]
	if failed[0] != "2" || failed[2] != "failed" || failed[7] != "" {
		t.Errorf("failed section row = %v", failed)
	}
}

func TestCSVArrayMetricRows(t *testing.T) {
	res := &engine.GridResult{
		Sections: []engine.SectionResult{{
			Index:  0,
			Params: map[string]interface{}{},
			Status: engine.SectionConverged,
			Evaluators: []engine.EvaluatorResult{{
				Name: "per_bin_power",
				Estimates: []confidence.Snapshot{
					{Mean: 1, Count: 10, State: confidence.StateConverged},
					{Mean: 2, Count: 10, State: confidence.StateConverged},
					{Mean: 3, Count: 10, State: confidence.StateConverged},
				},
			}},
		}},
	}
	var buf bytes.Buffer
	if err := NewCSVWriter(&buf, nil).WriteResult(res); err != nil {
		t.Fatal(err)
	}
	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("want header + 3 element rows, got %d rows", len(rows))
	}
	for i, want := range []string{"0", "1", "2"} {
		if rows[i+1][6] != want {
			t.Errorf("row %d element = %s, want %s", i+1, rows[i+1][6], want)
		}
	}
}

func TestPlotMetricWritesPNG(t *testing.T) {
	dir := t.TempDir()
	file, err := PlotMetric(sampleResult(), "snr_db", "bit_error_rate", dir)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(file) != "bit_error_rate_vs_snr_db.png" {
		t.Errorf("plot file name %s", file)
	}
	info, err := os.Stat(file)
	if err != nil {
		t.Fatal(err)
	}
	if info.Size() == 0 {
		t.Error("plot file is empty")
	}
}

func TestPlotMetricNoData(t *testing.T) {
	res := &engine.GridResult{Sections: []engine.SectionResult{{
		Index:  0,
		Params: map[string]interface{}{"mod": "qpsk"}, // not numeric
		Status: engine.SectionConverged,
	}}}
	if _, err := PlotMetric(res, "mod", "bit_error_rate", t.TempDir()); err == nil {
		t.Error("want error for unplottable dimension")
	}
}

func TestErrorBoundsLogScale(t *testing.T) {
	// Half a decade around 1e-3: bounds must be multiplicative and keep the
	// lower edge positive.
	low, high := errorBounds(metricPoint{y: 1e-3, hw: 0.5}, confidence.ScaleLog)
	if low <= 0 || low >= 1e-3 {
		t.Errorf("low offset %v out of range", low)
	}
	if high <= low {
		t.Errorf("upper offset %v not larger than lower %v", high, low)
	}

	low, high = errorBounds(metricPoint{y: 0.2, hw: 0.05}, confidence.ScaleLinear)
	if low != 0.05 || high != 0.05 {
		t.Errorf("linear bounds = %v/%v, want symmetric half-width", low, high)
	}
}

func TestDefaultResultsDirIncrements(t *testing.T) {
	base := t.TempDir()
	first, err := DefaultResultsDir(base)
	if err != nil {
		t.Fatal(err)
	}
	second, err := DefaultResultsDir(base)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Fatalf("both calls returned %s", first)
	}
	for _, dir := range []string{first, second} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatal(err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}
	}
	if !strings.HasSuffix(first, "_000") || !strings.HasSuffix(second, "_001") {
		t.Errorf("unexpected suffixes: %s, %s", first, second)
	}
}
