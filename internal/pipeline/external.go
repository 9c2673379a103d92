package pipeline

import (
	"errors"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
)

// ErrClassificationUnavailable is reported when the component classifier
// cannot run (no montage or no decomposition). It triggers a skip of the
// removal stage, not a file failure.
var ErrClassificationUnavailable = errors.New("component classification unavailable")

// SignalOps bundles the sample-domain DSP primitives the pipeline invokes.
// All operations mutate the dataset in place and must be no-ops when the
// input is already in the requested state.
type SignalOps interface {
	// Resample converts the recording to the target rate.
	Resample(ds *eeg.Dataset, targetHz float64) error

	// Bandpass applies a [lowHz, highHz] passband filter.
	Bandpass(ds *eeg.Dataset, lowHz, highHz float64) error

	// RejectArtifacts removes burst-contaminated samples. The sample count
	// may shrink; it never grows.
	RejectArtifacts(ds *eeg.Dataset, burstCriterion, windowCriterion float64, tolerances [2]float64) error

	// Rereference re-references all channels to the common average.
	Rereference(ds *eeg.Dataset) error
}

// Decomposition is the result of blind-source separation on a recording.
// Remove applies the inverse transform with the given component indices
// zeroed, writing the reconstruction back into the originating dataset.
type Decomposition interface {
	Components() int
	// Source returns component i's activation time series.
	Source(i int) []float64
	// ChannelWeights returns component i's per-channel mixing weights.
	ChannelWeights(i int) []float64
	// Remove reconstructs the signal without the listed components.
	Remove(indices []int) error
}

// Decomposer splits a recording into statistically independent components.
type Decomposer interface {
	Decompose(ds *eeg.Dataset) (Decomposition, error)
}

// Classifier assigns each component a probability vector over the component
// classes. The montage may be nil only if the implementation does not need
// sensor positions; the orchestrator never calls Classify without one.
type Classifier interface {
	Classify(ds *eeg.Dataset, dec Decomposition, m *eeg.Montage) (ComponentClassification, error)
}

// Toolkit wires the external collaborators into the orchestrator. Fields
// left nil degrade per the stage skip rules: a nil Decomposer or Classifier
// skips component removal, a nil Montage provider marks locations
// unavailable.
type Toolkit struct {
	Signal     SignalOps
	Montage    eeg.MontageProvider
	Decomposer Decomposer
	Classifier Classifier

	// Import and Persist default to the eeg codec when nil; tests inject
	// fakes here.
	Import  func(path string) (*eeg.Dataset, error)
	Persist func(ds *eeg.Dataset, path, format string) error
}

func (t Toolkit) importFn() func(string) (*eeg.Dataset, error) {
	if t.Import != nil {
		return t.Import
	}
	return eeg.Import
}

func (t Toolkit) persistFn() func(*eeg.Dataset, string, string) error {
	if t.Persist != nil {
		return t.Persist
	}
	return eeg.Persist
}
