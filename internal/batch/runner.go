// Package batch runs the preprocessing pipeline over a set of recordings
// with per-file failure isolation: one bad file never takes down the run.
package batch

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
	"github.com/Metanome/eeg-preprocppl/internal/runlog"
)

// cleanedSuffix is appended to the input base name for the output file.
const cleanedSuffix = "_cleaned"

// Runner fans a file list out over a worker pool. All mutable run state is
// owned by Run's local accumulator; a Runner can be reused across runs.
type Runner struct {
	orc     *pipeline.Orchestrator
	log     *runlog.Log
	workers int

	// OutputDir receives the processed files. Created on demand.
	OutputDir string
}

// NewRunner builds a batch runner. workers < 1 falls back to 1; a nil log
// defaults to the discard sink.
func NewRunner(orc *pipeline.Orchestrator, outputDir string, workers int, log *runlog.Log) *Runner {
	if workers < 1 {
		workers = 1
	}
	if log == nil {
		log = runlog.Discard()
	}
	return &Runner{orc: orc, log: log, workers: workers, OutputDir: outputDir}
}

// Summary aggregates a finished batch. Every input file is accounted for in
// Reports exactly once, pass or fail.
type Summary struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`

	// MeanRetention averages per-file retention over files where artifact
	// rejection produced a value; NaN when no file did.
	MeanRetention float64 `json:"mean_retention"`

	// MeanSNRImprovementDB averages the overall SNR improvement over files
	// with a finite value; NaN when no file has one.
	MeanSNRImprovementDB float64 `json:"mean_snr_improvement_db"`

	// FatalByStage counts fatal failures keyed by the stage that caused them.
	FatalByStage map[string]int `json:"fatal_by_stage,omitempty"`

	Reports []*pipeline.FileReport `json:"reports"`
}

// accumulator collects results behind a mutex as workers finish.
type accumulator struct {
	mu       sync.Mutex
	reports  []*pipeline.FileReport
	done     int
	procTime time.Duration
}

func (a *accumulator) add(r *pipeline.FileReport) (done int, meanElapsed time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reports = append(a.reports, r)
	a.done++
	a.procTime += r.Elapsed
	return a.done, a.procTime / time.Duration(a.done)
}

// Run processes every input file and always returns a summary covering all
// of them. The error is non-nil only for setup problems (empty file list,
// unwritable output directory); per-file failures live in the summary.
func (r *Runner) Run(ctx context.Context, inputs []string) (*Summary, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files")
	}
	if r.OutputDir != "" {
		if err := os.MkdirAll(r.OutputDir, 0o755); err != nil {
			return nil, fmt.Errorf("create output directory: %w", err)
		}
	}

	start := time.Now()
	total := len(inputs)
	acc := &accumulator{}
	jobs := make(chan string)

	var wg sync.WaitGroup
	for w := 0; w < r.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				report := r.processOne(ctx, path)
				done, meanElapsed := acc.add(report)
				remaining := time.Duration(total-done) * meanElapsed
				r.log.Printf("[batch] %d/%d %s (est %s remaining)", done, total, filepath.Base(path), remaining.Round(time.Second))
			}
		}()
	}

	for _, path := range inputs {
		jobs <- path
	}
	close(jobs)
	wg.Wait()

	return r.summarize(acc.reports, time.Since(start)), nil
}

// processOne isolates a single file: pre-flight validation, orchestrator
// invocation, and panic recovery all resolve to a FileReport.
func (r *Runner) processOne(ctx context.Context, path string) (report *pipeline.FileReport) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Printf("[batch] panic processing %s: %v", path, p)
			report = failedReport(path, pipeline.StageImport, fmt.Errorf("panic: %v", p))
		}
	}()

	if err := preflight(path); err != nil {
		r.log.Printf("[batch] skipping %s: %v", path, err)
		return failedReport(path, pipeline.StageImport, err)
	}

	// Fatal stage errors are already recorded in the report.
	report, _ = r.orc.ProcessFile(ctx, path, r.outputPath(path))
	return report
}

// preflight rejects files the importer is guaranteed to fail on, without
// paying for an orchestrator run.
func preflight(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %v", eeg.ErrIO, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", eeg.ErrIO, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s is empty", eeg.ErrIO, path)
	}
	return nil
}

func failedReport(path, stage string, err error) *pipeline.FileReport {
	return &pipeline.FileReport{
		Path:       path,
		Retention:  math.NaN(),
		Failed:     true,
		FatalStage: stage,
		Stages: []pipeline.StageResult{{
			Stage:   stage,
			Outcome: pipeline.OutcomeFailed,
			Error:   err.Error(),
		}},
	}
}

// outputPath derives <OutputDir>/<base>_cleaned.<ext> from the run config's
// output format.
func (r *Runner) outputPath(input string) string {
	base := filepath.Base(input)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	ext := "." + r.orc.Config().OutputFormat
	if ext == "." {
		ext = ".csv"
	}
	return filepath.Join(r.OutputDir, base+cleanedSuffix+ext)
}

func (r *Runner) summarize(reports []*pipeline.FileReport, elapsed time.Duration) *Summary {
	sort.Slice(reports, func(i, j int) bool { return reports[i].Path < reports[j].Path })

	s := &Summary{
		Total:        len(reports),
		Elapsed:      elapsed,
		FatalByStage: make(map[string]int),
		Reports:      reports,
	}
	var retSum, snrSum float64
	var retN, snrN int
	for _, rep := range reports {
		if rep.Failed {
			s.Failed++
			s.FatalByStage[rep.FatalStage]++
		} else {
			s.Succeeded++
		}
		if !math.IsNaN(rep.Retention) {
			retSum += rep.Retention
			retN++
		}
		if rep.Overall != nil && !math.IsNaN(rep.Overall.SNRImprovementDB) && !math.IsInf(rep.Overall.SNRImprovementDB, 0) {
			snrSum += rep.Overall.SNRImprovementDB
			snrN++
		}
	}
	s.MeanRetention = math.NaN()
	if retN > 0 {
		s.MeanRetention = retSum / float64(retN)
	}
	s.MeanSNRImprovementDB = math.NaN()
	if snrN > 0 {
		s.MeanSNRImprovementDB = snrSum / float64(snrN)
	}
	if len(s.FatalByStage) == 0 {
		s.FatalByStage = nil
	}
	return s
}

// DiscoverInputs lists the importable recordings directly under dir, sorted
// by name. Subdirectories are not walked.
func DiscoverInputs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read input directory: %w", err)
	}
	var inputs []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv", ".raw":
			inputs = append(inputs, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(inputs)
	return inputs, nil
}
