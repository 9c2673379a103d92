package pipeline

import (
	"fmt"
	"math"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
)

// ArtifactOutcome reports what the artifact-rejection stage did to the
// recording. Retention is after/before sample count, in (0, 1] on success
// with 1.0 meaning nothing was rejected, and NaN when the primitive failed.
type ArtifactOutcome struct {
	SamplesBefore int
	SamplesAfter  int
	Retention     float64
}

// rejectArtifacts wraps the external burst/window rejection primitive with
// retention accounting. The primitive mutating the dataset and the retention
// computation are inseparable: retention is always computed when the
// primitive succeeds.
func rejectArtifacts(ops SignalOps, ds *eeg.Dataset, cfg Config) (ArtifactOutcome, error) {
	out := ArtifactOutcome{
		SamplesBefore: ds.Samples(),
		Retention:     math.NaN(),
	}
	err := ops.RejectArtifacts(ds, cfg.BurstCriterion, cfg.WindowCriterion, cfg.WindowTolerances)
	if err != nil {
		return out, fmt.Errorf("artifact rejection: %w", err)
	}
	out.SamplesAfter = ds.Samples()
	if out.SamplesBefore > 0 {
		out.Retention = float64(out.SamplesAfter) / float64(out.SamplesBefore)
	}
	return out, nil
}

// Metrics renders the outcome as a StageResult metric map.
func (a ArtifactOutcome) Metrics() map[string]float64 {
	return map[string]float64{
		"samples_before": float64(a.SamplesBefore),
		"samples_after":  float64(a.SamplesAfter),
		"retention":      a.Retention,
	}
}
