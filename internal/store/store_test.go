package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/signalworks/gridsweep/internal/confidence"
	"github.com/signalworks/gridsweep/internal/engine"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sweep.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func storedResult() *engine.GridResult {
	return &engine.GridResult{
		Seed:        7,
		Cancelled:   false,
		StartedAt:   time.Now().UTC().Truncate(time.Second),
		CompletedAt: time.Now().UTC().Truncate(time.Second),
		Sections: []engine.SectionResult{
			{
				Index:  0,
				Params: map[string]interface{}{"snr_db": 0.0},
				Status: engine.SectionConverged,
				Drops:  12,
				Evaluators: []engine.EvaluatorResult{{
					Name:  "bit_error_rate",
					Scale: confidence.ScaleLog,
					Estimates: []confidence.Snapshot{
						{Mean: 0.079, HalfWidth: 0.04, Count: 12, State: confidence.StateConverged},
					},
					Converged: true,
				}},
			},
			{
				Index:    1,
				Params:   map[string]interface{}{"snr_db": 6.0},
				Status:   engine.SectionFailed,
				Drops:    5,
				Failures: 5,
				Error:    "hardware fault",
				Evaluators: []engine.EvaluatorResult{{
					Name:  "bit_error_rate",
					Scale: confidence.ScaleLog,
				}},
			},
		},
	}
}

func TestCreateRunAndGetRun(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.CreateRun(99, map[string]interface{}{"workers": 4})
	if err != nil {
		t.Fatal(err)
	}
	if runID == "" {
		t.Fatal("empty run ID")
	}

	rec, err := s.GetRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != RunStatusRunning {
		t.Errorf("status = %s, want running", rec.Status)
	}
	if rec.Seed != 99 {
		t.Errorf("seed = %d", rec.Seed)
	}
	if len(rec.Request) == 0 {
		t.Error("request JSON not persisted")
	}
	if rec.CompletedAt != nil {
		t.Error("fresh run already has a completion time")
	}
}

func TestSaveAndLoadResultRoundTrip(t *testing.T) {
	s := openTestStore(t)

	want := storedResult()
	runID, err := s.CreateRun(want.Seed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveResult(runID, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadResult(runID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RunID != runID {
		t.Errorf("run ID = %s", got.RunID)
	}
	if got.Seed != want.Seed {
		t.Errorf("seed = %d, want %d", got.Seed, want.Seed)
	}
	if diff := cmp.Diff(want.Sections, got.Sections); diff != "" {
		t.Errorf("sections changed through storage (-want +got):\n%s", diff)
	}

	rec, err := s.GetRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != RunStatusComplete {
		t.Errorf("status = %s, want complete", rec.Status)
	}
	if rec.CompletedAt == nil {
		t.Error("completion time not recorded")
	}
}

func TestSaveResultIsIdempotent(t *testing.T) {
	s := openTestStore(t)

	res := storedResult()
	runID, err := s.CreateRun(res.Seed, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SaveResult(runID, res); err != nil {
		t.Fatal(err)
	}
	// Saving again, e.g. after a merge with a resumed run, replaces rows
	// instead of duplicating them.
	if err := s.SaveResult(runID, res); err != nil {
		t.Fatal(err)
	}

	got, err := s.LoadResult(runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Sections) != len(res.Sections) {
		t.Errorf("%d sections after resave, want %d", len(got.Sections), len(res.Sections))
	}
}

func TestMarkRunError(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.CreateRun(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.MarkRunError(runID); err != nil {
		t.Fatal(err)
	}
	rec, err := s.GetRun(runID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != RunStatusError {
		t.Errorf("status = %s, want error", rec.Status)
	}
}

func TestListRuns(t *testing.T) {
	s := openTestStore(t)

	first, err := s.CreateRun(1, nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.CreateRun(2, nil)
	if err != nil {
		t.Fatal(err)
	}

	recs, err := s.ListRuns()
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 {
		t.Fatalf("want 2 runs, got %d", len(recs))
	}
	found := map[string]bool{}
	for _, r := range recs {
		found[r.RunID] = true
	}
	if !found[first] || !found[second] {
		t.Errorf("missing runs in listing: %v", found)
	}
}

func TestGetRunUnknownID(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetRun("no-such-run"); err == nil {
		t.Error("want error for unknown run")
	}
}
