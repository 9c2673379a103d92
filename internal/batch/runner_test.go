package batch

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
)

type noopSignal struct{}

func (noopSignal) Resample(*eeg.Dataset, float64) error { return nil }
func (noopSignal) Bandpass(*eeg.Dataset, float64, float64) error { return nil }
func (noopSignal) RejectArtifacts(ds *eeg.Dataset, _, _ float64, _ [2]float64) error {
	keep := ds.Samples() * 9 / 10
	for c := range ds.Data {
		ds.Data[c] = ds.Data[c][:keep]
	}
	return nil
}
func (noopSignal) Rereference(*eeg.Dataset) error { return nil }

func testDataset() *eeg.Dataset {
	ds := &eeg.Dataset{
		Labels:     []string{"Fp1", "Fp2", "Cz", "Pz"},
		SampleRate: 256,
		Data:       make([][]float64, 4),
	}
	for c := range ds.Data {
		ds.Data[c] = make([]float64, 1024)
		for s := range ds.Data[c] {
			ds.Data[c][s] = math.Sin(float64(s)/17) + float64(c)
		}
	}
	return ds
}

// testRunner builds a runner whose orchestrator uses injected import/persist
// hooks so no real signal files are needed.
func testRunner(t *testing.T, workers int, persisted *atomic.Int64, failFor string) *Runner {
	t.Helper()
	cfg := pipeline.DefaultConfig()
	tk := pipeline.Toolkit{
		Signal: noopSignal{},
		Import: func(path string) (*eeg.Dataset, error) {
			if failFor != "" && strings.Contains(path, failFor) {
				return nil, fmt.Errorf("%w: corrupt recording", eeg.ErrIO)
			}
			return testDataset(), nil
		},
		Persist: func(ds *eeg.Dataset, path, format string) error {
			if persisted != nil {
				persisted.Add(1)
			}
			return os.WriteFile(path, []byte("ok"), 0o644)
		},
	}
	orc := pipeline.New(cfg, tk, nil)
	return NewRunner(orc, filepath.Join(t.TempDir(), "out"), workers, nil)
}

// touch creates a non-empty placeholder file for preflight to accept.
func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunProcessesAllFiles(t *testing.T) {
	dir := t.TempDir()
	var inputs []string
	for i := 0; i < 5; i++ {
		inputs = append(inputs, touch(t, dir, fmt.Sprintf("rec%d.csv", i)))
	}

	var persisted atomic.Int64
	r := testRunner(t, 3, &persisted, "")
	sum, err := r.Run(context.Background(), inputs)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if sum.Total != 5 || sum.Succeeded != 5 || sum.Failed != 0 {
		t.Errorf("unexpected summary: total=%d succeeded=%d failed=%d", sum.Total, sum.Succeeded, sum.Failed)
	}
	if persisted.Load() != 5 {
		t.Errorf("expected 5 persisted outputs, got %d", persisted.Load())
	}
	if math.Abs(sum.MeanRetention-0.9) > 0.01 {
		t.Errorf("expected mean retention near 0.9, got %g", sum.MeanRetention)
	}
	// Reports come back sorted by path regardless of worker completion order.
	for i := 1; i < len(sum.Reports); i++ {
		if sum.Reports[i-1].Path > sum.Reports[i].Path {
			t.Errorf("reports not sorted: %s > %s", sum.Reports[i-1].Path, sum.Reports[i].Path)
		}
	}
	// Each output lands under OutputDir with the cleaned suffix.
	out := sum.Reports[0].OutputPath
	if filepath.Dir(out) != r.OutputDir || !strings.HasSuffix(out, "_cleaned.csv") {
		t.Errorf("unexpected output path %q", out)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	dir := t.TempDir()
	good := touch(t, dir, "good.csv")
	bad := touch(t, dir, "bad.csv")

	r := testRunner(t, 2, nil, "bad")
	sum, err := r.Run(context.Background(), []string{good, bad})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Succeeded != 1 || sum.Failed != 1 {
		t.Errorf("expected 1 success and 1 failure, got %d/%d", sum.Succeeded, sum.Failed)
	}
	if sum.FatalByStage[pipeline.StageImport] != 1 {
		t.Errorf("expected import counted fatal, got %v", sum.FatalByStage)
	}
	// The failed file still has a report with NaN retention.
	var failed *pipeline.FileReport
	for _, rep := range sum.Reports {
		if rep.Failed {
			failed = rep
		}
	}
	if failed == nil || !math.IsNaN(failed.Retention) {
		t.Fatalf("failed report missing or has retention: %+v", failed)
	}
}

func TestRunPreflightSkipsUnreadable(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	missing := filepath.Join(dir, "missing.csv")

	var persisted atomic.Int64
	r := testRunner(t, 1, &persisted, "")
	sum, err := r.Run(context.Background(), []string{empty, missing, dir})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sum.Failed != 3 || persisted.Load() != 0 {
		t.Errorf("expected all 3 rejected in preflight, got failed=%d persisted=%d", sum.Failed, persisted.Load())
	}
	for _, rep := range sum.Reports {
		if rep.FatalStage != pipeline.StageImport {
			t.Errorf("%s: expected import stage, got %q", rep.Path, rep.FatalStage)
		}
		if len(rep.Stages) != 1 || !strings.Contains(rep.Stages[0].Error, eeg.ErrIO.Error()) {
			t.Errorf("%s: unexpected stage results %+v", rep.Path, rep.Stages)
		}
	}
}

func TestRunEmptyInputList(t *testing.T) {
	r := testRunner(t, 1, nil, "")
	if _, err := r.Run(context.Background(), nil); err == nil {
		t.Error("expected error for empty input list")
	}
}

func TestOutputPathUsesConfiguredFormat(t *testing.T) {
	cfg := pipeline.DefaultConfig()
	cfg.OutputFormat = "raw"
	orc := pipeline.New(cfg, pipeline.Toolkit{Signal: noopSignal{}}, nil)
	r := NewRunner(orc, "/tmp/out", 1, nil)
	got := r.outputPath("/data/subject01.csv")
	if got != filepath.Join("/tmp/out", "subject01_cleaned.raw") {
		t.Errorf("unexpected output path %q", got)
	}
}

func TestDiscoverInputs(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.csv")
	touch(t, dir, "a.raw")
	touch(t, dir, "notes.txt")
	touch(t, dir, "c.CSV")
	if err := os.Mkdir(filepath.Join(dir, "sub.csv"), 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := DiscoverInputs(dir)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		filepath.Join(dir, "a.raw"),
		filepath.Join(dir, "b.csv"),
		filepath.Join(dir, "c.CSV"),
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("input %d: expected %s, got %s", i, want[i], got[i])
		}
	}

	if _, err := DiscoverInputs(filepath.Join(dir, "nope")); err == nil {
		t.Error("expected error for missing directory")
	}
}
