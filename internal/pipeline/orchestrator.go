package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
	"github.com/Metanome/eeg-preprocppl/internal/quality"
	"github.com/Metanome/eeg-preprocppl/internal/runlog"
)

// Outcome is the result state of one pipeline stage.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Stage names, in execution order.
const (
	StageImport           = "import"
	StageNormalizeLabels  = "normalize_labels"
	StageFilterChannels   = "filter_channels"
	StageResample         = "resample"
	StageBandpass         = "bandpass"
	StageRejectArtifacts  = "reject_artifacts"
	StageMontageLookup    = "montage_lookup"
	StageDecompose        = "decompose"
	StageRemoveComponents = "remove_components"
	StageRereference      = "rereference"
	StagePersist          = "persist"
)

// StageResult records one stage's execution. Results are appended in order
// and never mutated after creation.
type StageResult struct {
	Stage   string             `json:"stage"`
	Elapsed time.Duration      `json:"elapsed"`
	Outcome Outcome            `json:"outcome"`
	Metrics map[string]float64 `json:"metrics,omitempty"`
	// Note carries the skip reason or informational detail.
	Note string `json:"note,omitempty"`
	// Error holds the failure message when Outcome is OutcomeFailed.
	Error string `json:"error,omitempty"`
}

// Checkpoint identifies where a quality snapshot was taken.
type Checkpoint string

const (
	CheckpointPostFilter Checkpoint = "post_filter"
	CheckpointPostClean  Checkpoint = "post_clean"
	CheckpointFinal      Checkpoint = "final"
)

// FileReport is the complete record of one file's trip through the pipeline.
type FileReport struct {
	Path       string `json:"path"`
	OutputPath string `json:"output_path,omitempty"`

	Stages    []StageResult                   `json:"stages"`
	Snapshots map[Checkpoint]quality.Snapshot `json:"snapshots"`

	// Cleaning compares post_filter against post_clean; Overall compares
	// post_filter against final.
	Cleaning *quality.Comparison `json:"cleaning,omitempty"`
	Overall  *quality.Comparison `json:"overall,omitempty"`

	Retention              float64      `json:"retention"`
	LocationsAvailable     bool         `json:"locations_available"`
	DecompositionAvailable bool         `json:"decomposition_available"`
	MontageUsed            string       `json:"montage_used,omitempty"`
	Removal                *RemovalPlan `json:"component_removal,omitempty"`

	Failed     bool          `json:"failed"`
	FatalStage string        `json:"fatal_stage,omitempty"`
	Elapsed    time.Duration `json:"elapsed"`
}

// StageByName returns the recorded result for a stage, or nil.
func (r *FileReport) StageByName(name string) *StageResult {
	for i := range r.Stages {
		if r.Stages[i].Stage == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// Orchestrator runs the fixed stage sequence over one recording at a time.
// It is safe for concurrent use by multiple goroutines: all per-file state
// lives in the FileReport and the Dataset.
type Orchestrator struct {
	cfg Config
	tk  Toolkit
	log *runlog.Log
}

// New builds an orchestrator. The config must already be validated; a nil
// log defaults to the discard sink.
func New(cfg Config, tk Toolkit, log *runlog.Log) *Orchestrator {
	if log == nil {
		log = runlog.Discard()
	}
	return &Orchestrator{cfg: cfg, tk: tk, log: log}
}

// Config returns the run configuration the orchestrator was built with.
func (o *Orchestrator) Config() Config { return o.cfg }

// ProcessFile runs the stage sequence over one file. The returned error is
// non-nil only for fatal file-level failures (import, re-reference, persist,
// or cancellation); artifact-path failures are recorded in the report and
// the pipeline continues with whatever data it has. The report is always
// returned, even on failure.
func (o *Orchestrator) ProcessFile(ctx context.Context, path, outputPath string) (*FileReport, error) {
	start := time.Now()
	report := &FileReport{
		Path:      path,
		Snapshots: make(map[Checkpoint]quality.Snapshot),
		Retention: math.NaN(),
	}
	defer func() { report.Elapsed = time.Since(start) }()

	var ds *eeg.Dataset

	// Stage 1: import (fatal).
	err := o.runFatal(ctx, report, StageImport, func() (map[string]float64, string, error) {
		var err error
		ds, err = o.tk.importFn()(path)
		if err != nil {
			return nil, "", err
		}
		if o.cfg.CropStart > 0 || o.cfg.CropEnd > 0 {
			if err := o.cropDataset(ds); err != nil {
				return nil, "", err
			}
		}
		return map[string]float64{
			"channels":    float64(ds.Channels()),
			"samples":     float64(ds.Samples()),
			"sample_rate": ds.SampleRate,
		}, "", nil
	})
	if err != nil {
		return report, err
	}

	// Stage 2: label normalization. Pure string transform; cannot fail.
	o.runStage(ctx, report, StageNormalizeLabels, func() (map[string]float64, string, error) {
		before := strings.Join(ds.Labels, ",")
		ds.Labels = eeg.NormalizeLabels(ds.Labels, o.cfg.LabelSuffixes)
		changed := 0.0
		if before != strings.Join(ds.Labels, ",") {
			changed = 1
		}
		return map[string]float64{"labels_changed": changed}, "", nil
	})

	// Stage 3: channel filter policy.
	o.runStage(ctx, report, StageFilterChannels, func() (map[string]float64, string, error) {
		plan := PlanChannelRemoval(ds.Labels, o.cfg)
		ds.RemoveChannels(plan.Remove)
		note := ""
		if len(plan.ProtectedOverrides) > 0 {
			note = "protected override kept: " + strings.Join(plan.ProtectedOverrides, ", ")
			o.log.Printf("[pipeline] %s: %s", path, note)
		}
		return map[string]float64{
			"channels_removed":    float64(len(plan.Remove)),
			"channels_retained":   float64(plan.Retained),
			"protected_overrides": float64(len(plan.ProtectedOverrides)),
		}, note, nil
	})

	// Stage 4: resample (fatal — a partially resampled buffer is unusable).
	err = o.runFatal(ctx, report, StageResample, func() (map[string]float64, string, error) {
		if o.cfg.TargetRate <= 0 || o.cfg.TargetRate == ds.SampleRate {
			return map[string]float64{"sample_rate": ds.SampleRate}, "already at target rate", nil
		}
		if err := o.tk.Signal.Resample(ds, o.cfg.TargetRate); err != nil {
			return nil, "", err
		}
		return map[string]float64{"sample_rate": ds.SampleRate, "samples": float64(ds.Samples())}, "", nil
	})
	if err != nil {
		return report, err
	}

	// Stage 5: bandpass (fatal for the same reason as resample).
	err = o.runFatal(ctx, report, StageBandpass, func() (map[string]float64, string, error) {
		if err := o.tk.Signal.Bandpass(ds, o.cfg.FilterLow, o.cfg.FilterHigh); err != nil {
			return nil, "", err
		}
		return map[string]float64{"low_hz": o.cfg.FilterLow, "high_hz": o.cfg.FilterHigh}, "", nil
	})
	if err != nil {
		return report, err
	}

	report.Snapshots[CheckpointPostFilter] = quality.Compute(ds.Data, ds.SampleRate)
	// Reference copy of the post-filter buffer; the channel correlation
	// metrics compare later checkpoints against it.
	pfData := cloneChannels(ds.Data)

	// Stage 6: artifact rejection. Failure is recorded, never fatal: a
	// dirtier signal is still analyzable.
	o.runStage(ctx, report, StageRejectArtifacts, func() (map[string]float64, string, error) {
		outcome, err := rejectArtifacts(o.tk.Signal, ds, o.cfg)
		report.Retention = outcome.Retention
		if err != nil {
			return outcome.Metrics(), "", err
		}
		return outcome.Metrics(), "", nil
	})

	if o.cfg.SignalOnly {
		report.Snapshots[CheckpointPostClean] = quality.Compute(ds.Data, ds.SampleRate)
		o.finishComparisons(report, pfData, ds.Data, nil)
		return report, nil
	}

	// Stage 7: montage lookup. Failure sets locations_available=false and
	// the pipeline continues; only component classification needs positions.
	var montage *eeg.Montage
	o.runStage(ctx, report, StageMontageLookup, func() (map[string]float64, string, error) {
		m, used, err := eeg.ResolveMontage(o.tk.Montage, ds, o.cfg.MontageCandidates)
		if err != nil {
			return nil, "", err
		}
		montage = m
		report.LocationsAvailable = true
		report.MontageUsed = used
		return map[string]float64{"positions": float64(len(m.Positions))}, "montage " + used, nil
	})

	// Stage 8: component decomposition.
	var dec Decomposition
	o.runStage(ctx, report, StageDecompose, func() (map[string]float64, string, error) {
		if o.tk.Decomposer == nil {
			return nil, "", fmt.Errorf("no decomposer configured")
		}
		d, err := o.tk.Decomposer.Decompose(ds)
		if err != nil {
			return nil, "", err
		}
		dec = d
		report.DecompositionAvailable = true
		return map[string]float64{"components": float64(d.Components())}, "", nil
	})

	// Stage 9: classification-driven component removal. Runs only when both
	// montage and decomposition are available.
	o.runStage(ctx, report, StageRemoveComponents, func() (map[string]float64, string, error) {
		if !report.LocationsAvailable || !report.DecompositionAvailable {
			reason := "decomposition unavailable"
			if !report.LocationsAvailable {
				reason = "channel locations unavailable"
			}
			return nil, reason, errSkip
		}
		if o.tk.Classifier == nil {
			return nil, "", fmt.Errorf("%w: no classifier configured", ErrClassificationUnavailable)
		}
		cls, err := o.tk.Classifier.Classify(ds, dec, montage)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %v", ErrClassificationUnavailable, err)
		}
		plan, err := PlanComponentRemoval(cls, o.cfg.BrainThreshold)
		if err != nil {
			return nil, "", err
		}
		report.Removal = &plan
		if indices := plan.Indices(); len(indices) > 0 {
			if err := dec.Remove(indices); err != nil {
				return plan.Metrics(), "", err
			}
		}
		return plan.Metrics(), "", nil
	})

	report.Snapshots[CheckpointPostClean] = quality.Compute(ds.Data, ds.SampleRate)
	pcData := cloneChannels(ds.Data)

	// Stage 10: average re-reference (fatal).
	err = o.runFatal(ctx, report, StageRereference, func() (map[string]float64, string, error) {
		if err := o.tk.Signal.Rereference(ds); err != nil {
			return nil, "", err
		}
		return nil, "", nil
	})
	if err != nil {
		return report, err
	}

	report.Snapshots[CheckpointFinal] = quality.Compute(ds.Data, ds.SampleRate)
	o.finishComparisons(report, pfData, pcData, ds.Data)

	// Stage 11: persist (fatal).
	err = o.runFatal(ctx, report, StagePersist, func() (map[string]float64, string, error) {
		format := o.cfg.OutputFormat
		if format == "" {
			format = eeg.FormatCSV
		}
		if err := o.tk.persistFn()(ds, outputPath, format); err != nil {
			return nil, "", err
		}
		report.OutputPath = outputPath
		return map[string]float64{"samples": float64(ds.Samples())}, "", nil
	})
	if err != nil {
		return report, err
	}

	return report, nil
}

// errSkip is an internal marker a stage function returns to record a skipped
// outcome. Never surfaces to callers.
var errSkip = fmt.Errorf("stage skipped")

// runStage executes one non-fatal stage, timing it regardless of outcome.
func (o *Orchestrator) runStage(ctx context.Context, report *FileReport, name string, fn func() (map[string]float64, string, error)) {
	res := StageResult{Stage: name, Outcome: OutcomeSuccess}
	start := time.Now()
	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeSkipped
		res.Note = "cancelled"
		res.Elapsed = time.Since(start)
		report.Stages = append(report.Stages, res)
		return
	}
	metrics, note, err := fn()
	res.Elapsed = time.Since(start)
	res.Metrics = metrics
	res.Note = note
	switch {
	case err == errSkip:
		res.Outcome = OutcomeSkipped
		o.log.Printf("[pipeline] %s: stage %s skipped: %s", report.Path, name, note)
	case err != nil:
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		o.log.Printf("[pipeline] %s: stage %s failed: %v", report.Path, name, err)
	}
	report.Stages = append(report.Stages, res)
}

// runFatal executes a stage whose failure aborts the file. Cancellation is
// treated the same way: the file fails, the batch continues.
func (o *Orchestrator) runFatal(ctx context.Context, report *FileReport, name string, fn func() (map[string]float64, string, error)) error {
	res := StageResult{Stage: name, Outcome: OutcomeSuccess}
	start := time.Now()
	err := ctx.Err()
	var metrics map[string]float64
	var note string
	if err == nil {
		metrics, note, err = fn()
	}
	res.Elapsed = time.Since(start)
	res.Metrics = metrics
	res.Note = note
	if err != nil {
		res.Outcome = OutcomeFailed
		res.Error = err.Error()
		report.Stages = append(report.Stages, res)
		report.Failed = true
		report.FatalStage = name
		o.log.Printf("[pipeline] %s: fatal failure in stage %s: %v", report.Path, name, err)
		return fmt.Errorf("stage %s: %w", name, err)
	}
	report.Stages = append(report.Stages, res)
	return nil
}

func (o *Orchestrator) cropDataset(ds *eeg.Dataset) error {
	start := int(o.cfg.CropStart * ds.SampleRate)
	end := ds.Samples()
	if o.cfg.CropEnd > 0 {
		end = int(o.cfg.CropEnd * ds.SampleRate)
		if end > ds.Samples() {
			end = ds.Samples()
		}
	}
	return ds.Crop(start, end)
}

// finishComparisons derives the checkpoint comparisons. The buffer arguments
// carry the sample data captured at each checkpoint so the channel
// correlation metrics can be computed alongside the snapshot diffs;
// finalData is nil in signal-only mode.
func (o *Orchestrator) finishComparisons(report *FileReport, pfData, pcData, finalData [][]float64) {
	pf, ok := report.Snapshots[CheckpointPostFilter]
	if !ok {
		return
	}
	if pc, ok := report.Snapshots[CheckpointPostClean]; ok {
		cmp := quality.Compare(pf, pc)
		cmp.SetChannelCorrelation(pfData, pcData)
		report.Cleaning = &cmp
		if cmp.OverProcessed {
			o.log.Printf("[pipeline] %s: over-processing warning: cleaned signal has degenerate variance", report.Path)
		}
	}
	if fin, ok := report.Snapshots[CheckpointFinal]; ok {
		cmp := quality.Compare(pf, fin)
		cmp.SetChannelCorrelation(pfData, finalData)
		report.Overall = &cmp
	}
}

func cloneChannels(data [][]float64) [][]float64 {
	out := make([][]float64, len(data))
	for c := range data {
		out[c] = append([]float64(nil), data[c]...)
	}
	return out
}
