package dsp

import (
	"math"
	"testing"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
)

func rampDataset(rate float64, n int) *eeg.Dataset {
	ds := &eeg.Dataset{
		Labels:     []string{"Fp1", "Fp2"},
		SampleRate: rate,
		Data:       make([][]float64, 2),
	}
	for c := range ds.Data {
		ds.Data[c] = make([]float64, n)
		for s := range ds.Data[c] {
			ds.Data[c][s] = float64(s + c)
		}
	}
	return ds
}

func TestResampleHalvesRate(t *testing.T) {
	ds := rampDataset(200, 400)
	ds.Events = []eeg.Event{{Label: "stim", Sample: 100}}

	if err := (Ops{}).Resample(ds, 100); err != nil {
		t.Fatalf("resample: %v", err)
	}
	if ds.SampleRate != 100 {
		t.Errorf("expected rate 100, got %g", ds.SampleRate)
	}
	if got := ds.Samples(); got != 200 {
		t.Errorf("expected 200 samples, got %d", got)
	}
	// A ramp resamples onto the same line: sample i sits at 2i.
	if math.Abs(ds.Data[0][50]-100) > 1e-9 {
		t.Errorf("expected 100 at index 50, got %g", ds.Data[0][50])
	}
	if ds.Events[0].Sample != 50 {
		t.Errorf("expected event remapped to 50, got %d", ds.Events[0].Sample)
	}
}

func TestResampleNoOp(t *testing.T) {
	ds := rampDataset(100, 100)
	before := ds.Data[0][42]
	if err := (Ops{}).Resample(ds, 100); err != nil {
		t.Fatal(err)
	}
	if ds.Samples() != 100 || ds.Data[0][42] != before {
		t.Error("resample to the same rate must be a no-op")
	}
}

func TestResampleInvalidTarget(t *testing.T) {
	ds := rampDataset(100, 100)
	if err := (Ops{}).Resample(ds, 0); err == nil {
		t.Error("expected error for zero target rate")
	}
	if err := (Ops{}).Resample(ds, -5); err == nil {
		t.Error("expected error for negative target rate")
	}
}

func TestRereferenceZeroesMean(t *testing.T) {
	ds := &eeg.Dataset{
		Labels:     []string{"Fp1", "Fp2", "Cz"},
		SampleRate: 100,
		Data: [][]float64{
			{1, 2, 3},
			{3, 4, 5},
			{5, 6, 7},
		},
	}
	if err := (Ops{}).Rereference(ds); err != nil {
		t.Fatalf("rereference: %v", err)
	}
	for s := 0; s < ds.Samples(); s++ {
		var sum float64
		for c := range ds.Data {
			sum += ds.Data[c][s]
		}
		if math.Abs(sum) > 1e-12 {
			t.Errorf("sample %d: across-channel sum %g after re-reference", s, sum)
		}
	}
	// Relative structure preserved: channel 2 stays 2 above channel 1.
	if math.Abs(ds.Data[1][0]-ds.Data[0][0]-2) > 1e-12 {
		t.Error("channel offsets not preserved")
	}
}

func TestRereferenceNoOpWhenAlreadyAveraged(t *testing.T) {
	ds := &eeg.Dataset{
		Labels:     []string{"Fp1", "Fp2"},
		SampleRate: 100,
		Data: [][]float64{
			{1, -2, 3},
			{-1, 2, -3},
		},
	}
	orig := ds.Data[0][1]
	if err := (Ops{}).Rereference(ds); err != nil {
		t.Fatal(err)
	}
	if ds.Data[0][1] != orig {
		t.Error("already-averaged data must not change")
	}
}
