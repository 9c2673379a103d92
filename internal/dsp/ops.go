// Package dsp provides native reference implementations of the pipeline's
// external signal collaborators: resampling, bandpass filtering, burst-based
// artifact rejection, average re-referencing, SVD decomposition, and a
// rule-based component classifier. They exist so the tool runs end to end
// without an external DSP backend; any of them can be swapped out through
// the pipeline Toolkit.
package dsp

import (
	"fmt"
	"math"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
)

// Ops implements pipeline.SignalOps.
type Ops struct{}

// Resample converts the recording to targetHz by linear interpolation.
// No-op when the recording is already at the target rate.
func (Ops) Resample(ds *eeg.Dataset, targetHz float64) error {
	if targetHz <= 0 {
		return fmt.Errorf("target rate must be positive, got %g", targetHz)
	}
	if ds.SampleRate == targetHz {
		return nil
	}
	ratio := ds.SampleRate / targetHz
	n := ds.Samples()
	outN := int(math.Floor(float64(n-1)/ratio)) + 1
	if outN < 2 {
		return fmt.Errorf("resampling %d samples from %g Hz to %g Hz leaves too little data", n, ds.SampleRate, targetHz)
	}
	for c := range ds.Data {
		src := ds.Data[c]
		dst := make([]float64, outN)
		for i := range dst {
			pos := float64(i) * ratio
			lo := int(pos)
			if lo >= n-1 {
				dst[i] = src[n-1]
				continue
			}
			frac := pos - float64(lo)
			dst[i] = src[lo]*(1-frac) + src[lo+1]*frac
		}
		ds.Data[c] = dst
	}
	for i := range ds.Events {
		ds.Events[i].Sample = int(float64(ds.Events[i].Sample) / ratio)
		if ds.Events[i].Sample >= outN {
			ds.Events[i].Sample = outN - 1
		}
	}
	ds.SampleRate = targetHz
	return nil
}

// Rereference subtracts the instantaneous across-channel mean from every
// channel. No-op when the recording is already average-referenced (the
// across-channel mean is ~0 everywhere).
func (Ops) Rereference(ds *eeg.Dataset) error {
	nChan := ds.Channels()
	if nChan == 0 {
		return nil
	}
	const tol = 1e-9
	already := true
	for s := 0; s < ds.Samples(); s++ {
		var sum float64
		for c := range ds.Data {
			sum += ds.Data[c][s]
		}
		if math.Abs(sum/float64(nChan)) > tol {
			already = false
			break
		}
	}
	if already {
		return nil
	}
	for s := 0; s < ds.Samples(); s++ {
		var sum float64
		for c := range ds.Data {
			sum += ds.Data[c][s]
		}
		mean := sum / float64(nChan)
		for c := range ds.Data {
			ds.Data[c][s] -= mean
		}
	}
	return nil
}
