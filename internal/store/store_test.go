package store

import (
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
	"github.com/Metanome/eeg-preprocppl/internal/sweep"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "runs.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	runID, err := s.CreateRun("batch", pipeline.DefaultConfig())
	if err != nil {
		t.Fatalf("create run: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}
	if err := s.FinishRun(runID, 10, 2, 90*time.Second); err != nil {
		t.Fatalf("finish run: %v", err)
	}

	runs, err := s.ListRuns(5)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	r := runs[0]
	if r.RunID != runID || r.Mode != "batch" || r.FilesTotal != 10 || r.FilesFailed != 2 {
		t.Errorf("unexpected row: %+v", r)
	}
	if r.ElapsedMS != 90000 {
		t.Errorf("expected 90000 ms elapsed, got %d", r.ElapsedMS)
	}

	// The stored config round-trips as JSON.
	var cfgJSON string
	if err := s.QueryRow("SELECT config FROM runs WHERE run_id = ?", runID).Scan(&cfgJSON); err != nil {
		t.Fatal(err)
	}
	if cfgJSON == "" || cfgJSON[0] != '{' {
		t.Errorf("config not stored as JSON: %q", cfgJSON)
	}
}

func TestListRunsOrderAndLimit(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.CreateRun("process", pipeline.DefaultConfig()); err != nil {
			t.Fatal(err)
		}
	}
	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 {
		t.Errorf("limit not applied: got %d runs", len(runs))
	}
	// Unfinished runs list with zeroed counters.
	if runs[0].FilesTotal != 0 || runs[0].ElapsedMS != 0 {
		t.Errorf("expected zero counters for unfinished run: %+v", runs[0])
	}
}

func TestRecordFileReport(t *testing.T) {
	s := openTestStore(t)
	runID, err := s.CreateRun("process", pipeline.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}

	report := &pipeline.FileReport{
		Path:       "/data/rec1.csv",
		OutputPath: "/out/rec1_cleaned.csv",
		Retention:  0.85,
		Elapsed:    1500 * time.Millisecond,
		Stages: []pipeline.StageResult{
			{Stage: pipeline.StageImport, Outcome: pipeline.OutcomeSuccess, Elapsed: 20 * time.Millisecond},
			{Stage: pipeline.StageRejectArtifacts, Outcome: pipeline.OutcomeSuccess},
			{Stage: pipeline.StageRemoveComponents, Outcome: pipeline.OutcomeSkipped, Note: "sensor locations unavailable"},
		},
	}
	if err := s.RecordFileReport(runID, report); err != nil {
		t.Fatalf("record: %v", err)
	}

	var retention float64
	var snr interface{}
	err = s.QueryRow("SELECT retention, snr_improvement FROM file_reports WHERE run_id = ?", runID).Scan(&retention, &snr)
	if err != nil {
		t.Fatal(err)
	}
	if retention != 0.85 {
		t.Errorf("retention = %g", retention)
	}
	if snr != nil {
		t.Errorf("missing comparison must store NULL snr, got %v", snr)
	}

	var stages int
	if err := s.QueryRow("SELECT COUNT(*) FROM stage_results WHERE run_id = ?", runID).Scan(&stages); err != nil {
		t.Fatal(err)
	}
	if stages != 3 {
		t.Errorf("expected 3 stage rows, got %d", stages)
	}

	var note string
	err = s.QueryRow("SELECT note FROM stage_results WHERE run_id = ? AND stage = ?", runID, pipeline.StageRemoveComponents).Scan(&note)
	if err != nil {
		t.Fatal(err)
	}
	if note != "sensor locations unavailable" {
		t.Errorf("note = %q", note)
	}
}

func TestRecordFileReportNaNRetention(t *testing.T) {
	s := openTestStore(t)
	runID, err := s.CreateRun("process", pipeline.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	report := &pipeline.FileReport{
		Path:       "/data/bad.csv",
		Retention:  math.NaN(),
		Failed:     true,
		FatalStage: pipeline.StageImport,
	}
	if err := s.RecordFileReport(runID, report); err != nil {
		t.Fatal(err)
	}

	var retention interface{}
	if err := s.QueryRow("SELECT retention FROM file_reports WHERE run_id = ?", runID).Scan(&retention); err != nil {
		t.Fatal(err)
	}
	if retention != nil {
		t.Errorf("NaN retention must store as NULL, got %v", retention)
	}
}

func TestRecordSweepCell(t *testing.T) {
	s := openTestStore(t)
	runID, err := s.CreateRun("sweep", pipeline.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cell := sweep.CellResult{
		Combination:   sweep.Combination{Burst: 20, Window: sweep.WindowDisabled},
		MeanRetention: 0.9,
		MeanSNR:       6.5,
		MeanKurtosis:  math.NaN(),
		FilesPassing:  3,
		QualityScore:  7.1,
		Admissible:    true,
	}
	if err := s.RecordSweepCell(runID, cell); err != nil {
		t.Fatalf("record cell: %v", err)
	}

	var burst, window float64
	var kurt interface{}
	var admissible bool
	err = s.QueryRow(
		"SELECT burst_criterion, window_criterion, mean_kurtosis, admissible FROM sweep_cells WHERE run_id = ?",
		runID).Scan(&burst, &window, &kurt, &admissible)
	if err != nil {
		t.Fatal(err)
	}
	if burst != 20 || window != sweep.WindowDisabled || !admissible {
		t.Errorf("unexpected cell row: burst=%g window=%g admissible=%t", burst, window, admissible)
	}
	if kurt != nil {
		t.Errorf("NaN kurtosis must store as NULL, got %v", kurt)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s1.CreateRun("batch", pipeline.DefaultConfig()); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	// Reopening an existing database keeps the data.
	s2, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s2.Close()
	runs, err := s2.ListRuns(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 {
		t.Errorf("expected run to survive reopen, got %d", len(runs))
	}
}
