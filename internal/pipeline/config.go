// Package pipeline runs the preprocessing stage sequence over one recording
// and records a StageResult per stage. It owns the stage ordering, the
// channel filter policy, artifact-rejection retention accounting, and the
// component removal decision; the DSP primitives themselves are supplied
// through the Toolkit interfaces.
package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrConfig indicates an invalid run-level configuration. Config errors
// abort the whole invocation before any file is processed.
var ErrConfig = errors.New("invalid configuration")

// Config holds the immutable per-run pipeline settings. Pointer fields in
// fileConfig distinguish "absent" from zero when loading partial JSON; the
// resolved Config carries plain values.
type Config struct {
	// Import crop window in seconds; CropEnd <= 0 means "to end of file".
	CropStart float64
	CropEnd   float64

	// Target sample rate in Hz; 0 disables resampling.
	TargetRate float64

	// Bandpass passband in Hz.
	FilterLow  float64
	FilterHigh float64

	// Channel removal policy.
	RemoveReference bool
	RemoveEOG       bool
	RemoveEMG       bool
	RemoveECG       bool
	RemoveChannels  []string // explicit manual removals
	Protected       []string // never removed, wins over everything

	// Label suffix patterns stripped during normalization.
	LabelSuffixes []string

	// Artifact rejection thresholds.
	BurstCriterion   float64
	WindowCriterion  float64 // fraction of bad channels per window; <0 disables window rejection
	WindowTolerances [2]float64

	// Component removal: remove a component when P(brain) <= BrainThreshold.
	BrainThreshold float64

	// Montage lookup candidates, tried in order.
	MontageCandidates []string

	// Output container format (eeg.FormatCSV or eeg.FormatRaw).
	OutputFormat string

	// SignalOnly stops the pipeline after artifact rejection. The sweep
	// optimizer uses this to evaluate thresholds without paying for
	// decomposition and persistence.
	SignalOnly bool
}

// DefaultConfig mirrors the defaults of the original tool: 1–40 Hz passband,
// no resampling, reference+EOG removal, ASR burst criterion 20.
func DefaultConfig() Config {
	return Config{
		FilterLow:         1.0,
		FilterHigh:        40.0,
		RemoveReference:   true,
		RemoveEOG:         true,
		LabelSuffixes:     []string{"-REF", "-LE", "-AVG"},
		BurstCriterion:    20,
		WindowCriterion:   0.25,
		WindowTolerances:  [2]float64{-3.5, 5.5},
		BrainThreshold:    0.7,
		MontageCandidates: []string{"standard_1020"},
		OutputFormat:      "csv",
	}
}

// fileConfig is the JSON shape of a config file. Omitted fields keep their
// defaults, so partial configs are safe.
type fileConfig struct {
	CropStart         *float64    `json:"crop_start_secs,omitempty"`
	CropEnd           *float64    `json:"crop_end_secs,omitempty"`
	TargetRate        *float64    `json:"target_rate_hz,omitempty"`
	FilterLow         *float64    `json:"filter_low_hz,omitempty"`
	FilterHigh        *float64    `json:"filter_high_hz,omitempty"`
	RemoveReference   *bool       `json:"remove_reference,omitempty"`
	RemoveEOG         *bool       `json:"remove_eog,omitempty"`
	RemoveEMG         *bool       `json:"remove_emg,omitempty"`
	RemoveECG         *bool       `json:"remove_ecg,omitempty"`
	RemoveChannels    []string    `json:"remove_channels,omitempty"`
	Protected         []string    `json:"protected_channels,omitempty"`
	LabelSuffixes     []string    `json:"label_suffixes,omitempty"`
	BurstCriterion    *float64    `json:"burst_criterion,omitempty"`
	WindowCriterion   *float64    `json:"window_criterion,omitempty"`
	WindowTolerances  *[2]float64 `json:"window_tolerances,omitempty"`
	BrainThreshold    *float64    `json:"brain_threshold,omitempty"`
	MontageCandidates []string    `json:"montage_candidates,omitempty"`
	OutputFormat      *string     `json:"output_format,omitempty"`
}

// LoadConfig reads a JSON config file over the defaults and validates the
// result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, fmt.Errorf("%w: config file must have .json extension, got %q", ErrConfig, ext)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return cfg, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	if fc.CropStart != nil {
		cfg.CropStart = *fc.CropStart
	}
	if fc.CropEnd != nil {
		cfg.CropEnd = *fc.CropEnd
	}
	if fc.TargetRate != nil {
		cfg.TargetRate = *fc.TargetRate
	}
	if fc.FilterLow != nil {
		cfg.FilterLow = *fc.FilterLow
	}
	if fc.FilterHigh != nil {
		cfg.FilterHigh = *fc.FilterHigh
	}
	if fc.RemoveReference != nil {
		cfg.RemoveReference = *fc.RemoveReference
	}
	if fc.RemoveEOG != nil {
		cfg.RemoveEOG = *fc.RemoveEOG
	}
	if fc.RemoveEMG != nil {
		cfg.RemoveEMG = *fc.RemoveEMG
	}
	if fc.RemoveECG != nil {
		cfg.RemoveECG = *fc.RemoveECG
	}
	if fc.RemoveChannels != nil {
		cfg.RemoveChannels = fc.RemoveChannels
	}
	if fc.Protected != nil {
		cfg.Protected = fc.Protected
	}
	if fc.LabelSuffixes != nil {
		cfg.LabelSuffixes = fc.LabelSuffixes
	}
	if fc.BurstCriterion != nil {
		cfg.BurstCriterion = *fc.BurstCriterion
	}
	if fc.WindowCriterion != nil {
		cfg.WindowCriterion = *fc.WindowCriterion
	}
	if fc.WindowTolerances != nil {
		cfg.WindowTolerances = *fc.WindowTolerances
	}
	if fc.BrainThreshold != nil {
		cfg.BrainThreshold = *fc.BrainThreshold
	}
	if fc.MontageCandidates != nil {
		cfg.MontageCandidates = fc.MontageCandidates
	}
	if fc.OutputFormat != nil {
		cfg.OutputFormat = *fc.OutputFormat
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.FilterLow <= 0 || c.FilterHigh <= c.FilterLow {
		return fmt.Errorf("%w: passband [%g, %g] Hz is not a valid range", ErrConfig, c.FilterLow, c.FilterHigh)
	}
	if c.TargetRate < 0 {
		return fmt.Errorf("%w: target rate %g Hz", ErrConfig, c.TargetRate)
	}
	if c.TargetRate > 0 && c.FilterHigh*2 > c.TargetRate {
		return fmt.Errorf("%w: passband upper edge %g Hz exceeds Nyquist at %g Hz", ErrConfig, c.FilterHigh, c.TargetRate)
	}
	if c.BurstCriterion <= 0 {
		return fmt.Errorf("%w: burst criterion must be positive, got %g", ErrConfig, c.BurstCriterion)
	}
	if c.WindowCriterion >= 0 && c.WindowCriterion > 1 {
		return fmt.Errorf("%w: window criterion %g outside [0, 1]", ErrConfig, c.WindowCriterion)
	}
	if c.WindowTolerances[0] >= c.WindowTolerances[1] {
		return fmt.Errorf("%w: window tolerances [%g, %g] are not an interval", ErrConfig, c.WindowTolerances[0], c.WindowTolerances[1])
	}
	if c.BrainThreshold <= 0 || c.BrainThreshold > 1 {
		return fmt.Errorf("%w: brain threshold %g outside (0, 1]", ErrConfig, c.BrainThreshold)
	}
	if c.CropEnd > 0 && c.CropEnd <= c.CropStart {
		return fmt.Errorf("%w: crop window [%g, %g] is empty", ErrConfig, c.CropStart, c.CropEnd)
	}
	switch c.OutputFormat {
	case "csv", "raw", "":
	default:
		return fmt.Errorf("%w: unknown output format %q", ErrConfig, c.OutputFormat)
	}
	return nil
}
