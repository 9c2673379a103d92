package sweep

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/Metanome/eeg-preprocppl/internal/pipeline"
	"github.com/Metanome/eeg-preprocppl/internal/quality"
	"github.com/Metanome/eeg-preprocppl/internal/runlog"
	"gonum.org/v1/gonum/stat"
)

// Grid is the parameter space: every burst value crossed with every window
// value.
type Grid struct {
	BurstValues  []float64
	WindowValues []float64
}

// Combination is one cell of the grid.
type Combination struct {
	Burst  float64
	Window float64
}

// WindowLabel renders the window criterion, spelling the sentinel out.
func (c Combination) WindowLabel() string {
	if c.Window < 0 {
		return "disabled"
	}
	return fmt.Sprintf("%g", c.Window)
}

// Label is the combination's identity in reports and CSV output.
func (c Combination) Label() string {
	return fmt.Sprintf("burst=%g_window=%s", c.Burst, c.WindowLabel())
}

// Combinations expands the grid in burst-major order.
func (g Grid) Combinations() []Combination {
	out := make([]Combination, 0, len(g.BurstValues)*len(g.WindowValues))
	for _, b := range g.BurstValues {
		for _, w := range g.WindowValues {
			out = append(out, Combination{Burst: b, Window: w})
		}
	}
	return out
}

// Criteria gates which cells may be recommended.
type Criteria struct {
	// RetentionTarget is the per-file retention a file must meet to count
	// as passing.
	RetentionTarget float64

	// MinSNR is the minimum mean SNR improvement (dB) for admissibility.
	MinSNR float64

	// MaxKurtosis excludes cells whose mean excess kurtosis is at or above
	// this value; heavy residual tails mean the cleaning did not work.
	MaxKurtosis float64
}

// DefaultCriteria mirrors the defaults of the original tuning tool.
func DefaultCriteria() Criteria {
	return Criteria{RetentionTarget: 0.7, MinSNR: 0, MaxKurtosis: 8}
}

// FileMetrics is one file's contribution to a cell.
type FileMetrics struct {
	Path             string  `json:"path"`
	Retention        float64 `json:"retention"`
	SNRImprovementDB float64 `json:"snr_improvement_db"`
	Kurtosis         float64 `json:"kurtosis"`
	AlphaRelPower    float64 `json:"alpha_rel_power"`
	Failed           bool    `json:"failed"`
}

// CellResult aggregates one combination over the whole file set.
type CellResult struct {
	Combination

	Files []FileMetrics `json:"files"`

	MeanRetention float64 `json:"mean_retention"`
	StdRetention  float64 `json:"std_retention"`
	MinRetention  float64 `json:"min_retention"`
	MaxRetention  float64 `json:"max_retention"`
	MeanSNR       float64 `json:"mean_snr_db"`
	MeanKurtosis  float64 `json:"mean_kurtosis"`
	FilesPassing  int     `json:"files_passing"`

	// QualityScore = snr + alpha relative power - max(0, kurtosis-5)*0.5,
	// computed from the cell means.
	QualityScore float64 `json:"quality_score"`

	Admissible bool `json:"admissible"`
}

// SelectionScore ranks admissible cells: passing files dominate, then
// quality, then retention.
func (c CellResult) SelectionScore() float64 {
	return float64(c.FilesPassing)*50 + c.QualityScore*10 + c.MeanRetention*5
}

// Result is a finished sweep. Cells are sorted best-first by selection
// score; Best is nil when no cell met the admissibility criteria.
type Result struct {
	Cells []CellResult `json:"cells"`
	Best  *CellResult  `json:"best,omitempty"`
}

// Optimizer evaluates the grid by running the signal-only pipeline (through
// artifact rejection) over the file set for every combination.
type Optimizer struct {
	base     pipeline.Config
	tk       pipeline.Toolkit
	criteria Criteria
	log      *runlog.Log
}

// NewOptimizer builds an optimizer around a validated base config. The
// burst and window fields of the base config are overwritten per cell.
func NewOptimizer(base pipeline.Config, tk pipeline.Toolkit, criteria Criteria, log *runlog.Log) *Optimizer {
	if log == nil {
		log = runlog.Discard()
	}
	return &Optimizer{base: base, tk: tk, criteria: criteria, log: log}
}

// Run evaluates every grid cell and returns the ranked result. Individual
// file failures reduce a cell's aggregates; they never abort the sweep.
func (o *Optimizer) Run(ctx context.Context, grid Grid, inputs []string) (*Result, error) {
	combos := grid.Combinations()
	if len(combos) == 0 {
		return nil, fmt.Errorf("empty parameter grid")
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no input files")
	}

	cells := make([]CellResult, 0, len(combos))
	for i, combo := range combos {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.log.Printf("[sweep] cell %d/%d %s", i+1, len(combos), combo.Label())
		cells = append(cells, o.evaluate(ctx, combo, inputs))
	}

	sort.SliceStable(cells, func(i, j int) bool {
		return cells[i].SelectionScore() > cells[j].SelectionScore()
	})

	res := &Result{Cells: cells}
	for i := range cells {
		if cells[i].Admissible {
			res.Best = &cells[i]
			break
		}
	}
	if res.Best == nil {
		o.log.Printf("[sweep] no admissible combination: all %d cells failed the criteria (min snr %g dB, kurtosis < %g)",
			len(cells), o.criteria.MinSNR, o.criteria.MaxKurtosis)
	} else {
		o.log.Printf("[sweep] recommended %s (score %.1f)", res.Best.Label(), res.Best.SelectionScore())
	}
	return res, nil
}

func (o *Optimizer) evaluate(ctx context.Context, combo Combination, inputs []string) CellResult {
	cfg := o.base
	cfg.BurstCriterion = combo.Burst
	cfg.WindowCriterion = combo.Window
	cfg.SignalOnly = true
	orc := pipeline.New(cfg, o.tk, o.log)

	cell := CellResult{Combination: combo}
	for _, path := range inputs {
		m := FileMetrics{
			Path:             path,
			Retention:        math.NaN(),
			SNRImprovementDB: math.NaN(),
			Kurtosis:         math.NaN(),
			AlphaRelPower:    math.NaN(),
		}
		report, err := orc.ProcessFile(ctx, path, "")
		if err != nil || report.Failed {
			m.Failed = true
			cell.Files = append(cell.Files, m)
			continue
		}
		m.Retention = report.Retention
		if report.Cleaning != nil {
			m.SNRImprovementDB = report.Cleaning.SNRImprovementDB
		}
		if snap, ok := report.Snapshots[pipeline.CheckpointPostClean]; ok {
			m.Kurtosis = snap.Kurtosis
			m.AlphaRelPower = snap.RelativeBandPower(quality.BandAlpha)
		}
		cell.Files = append(cell.Files, m)
	}

	o.aggregate(&cell)
	return cell
}

func (o *Optimizer) aggregate(cell *CellResult) {
	var retention, snr, kurtosis, alpha []float64
	cell.MinRetention = math.NaN()
	cell.MaxRetention = math.NaN()
	for _, f := range cell.Files {
		if !math.IsNaN(f.Retention) {
			retention = append(retention, f.Retention)
			if f.Retention >= o.criteria.RetentionTarget {
				cell.FilesPassing++
			}
		}
		if isFinite(f.SNRImprovementDB) {
			snr = append(snr, f.SNRImprovementDB)
		}
		if isFinite(f.Kurtosis) {
			kurtosis = append(kurtosis, f.Kurtosis)
		}
		if isFinite(f.AlphaRelPower) {
			alpha = append(alpha, f.AlphaRelPower)
		}
	}

	cell.MeanRetention, cell.StdRetention = stat.MeanStdDev(retention, nil)
	if len(retention) == 1 {
		cell.StdRetention = 0
	}
	if len(retention) > 0 {
		cell.MinRetention = retention[0]
		cell.MaxRetention = retention[0]
		for _, v := range retention[1:] {
			cell.MinRetention = math.Min(cell.MinRetention, v)
			cell.MaxRetention = math.Max(cell.MaxRetention, v)
		}
	}
	cell.MeanSNR = stat.Mean(snr, nil)
	cell.MeanKurtosis = stat.Mean(kurtosis, nil)
	meanAlpha := stat.Mean(alpha, nil)

	cell.QualityScore = cell.MeanSNR + meanAlpha - math.Max(0, cell.MeanKurtosis-5)*0.5
	cell.Admissible = isFinite(cell.MeanSNR) && isFinite(cell.MeanKurtosis) &&
		cell.MeanSNR >= o.criteria.MinSNR && cell.MeanKurtosis < o.criteria.MaxKurtosis
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
