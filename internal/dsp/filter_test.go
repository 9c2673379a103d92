package dsp

import (
	"math"
	"testing"

	"github.com/Metanome/eeg-preprocppl/internal/eeg"
)

func toneDataset(rate float64, n int, freqs ...float64) *eeg.Dataset {
	data := make([]float64, n)
	for s := range data {
		t := float64(s) / rate
		for _, f := range freqs {
			data[s] += math.Sin(2 * math.Pi * f * t)
		}
	}
	return &eeg.Dataset{
		Labels:     []string{"Cz"},
		SampleRate: rate,
		Data:       [][]float64{data},
	}
}

func rmsOf(xs []float64) float64 {
	var sq float64
	for _, v := range xs {
		sq += v * v
	}
	return math.Sqrt(sq / float64(len(xs)))
}

func TestBandpassKeepsInBandTone(t *testing.T) {
	ds := toneDataset(256, 1024, 10)
	before := rmsOf(ds.Data[0])

	if err := (Ops{}).Bandpass(ds, 1, 40); err != nil {
		t.Fatalf("bandpass: %v", err)
	}
	after := rmsOf(ds.Data[0])
	if math.Abs(after-before)/before > 0.05 {
		t.Errorf("in-band 10 Hz tone attenuated: rms %g -> %g", before, after)
	}
}

func TestBandpassRemovesOutOfBandTone(t *testing.T) {
	// 10 Hz in band, 60 Hz mains out of band. The mains component must
	// all but vanish while the alpha tone survives.
	ds := toneDataset(256, 1024, 10, 60)
	if err := (Ops{}).Bandpass(ds, 1, 40); err != nil {
		t.Fatalf("bandpass: %v", err)
	}

	want := toneDataset(256, 1024, 10)
	var residual float64
	for s := range ds.Data[0] {
		d := ds.Data[0][s] - want.Data[0][s]
		residual += d * d
	}
	residual = math.Sqrt(residual / float64(len(ds.Data[0])))
	if residual > 0.05 {
		t.Errorf("60 Hz residual rms %g after filtering", residual)
	}
}

func TestBandpassRemovesDrift(t *testing.T) {
	ds := toneDataset(256, 1024, 10)
	for s := range ds.Data[0] {
		ds.Data[0][s] += 5 // DC offset sits below the 1 Hz edge
	}
	if err := (Ops{}).Bandpass(ds, 1, 40); err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, v := range ds.Data[0] {
		sum += v
	}
	if mean := sum / float64(len(ds.Data[0])); math.Abs(mean) > 0.01 {
		t.Errorf("DC offset survived: mean %g", mean)
	}
}

func TestBandpassInvalidEdges(t *testing.T) {
	testCases := []struct {
		name      string
		low, high float64
	}{
		{"zero_low", 0, 40},
		{"inverted", 40, 1},
		{"above_nyquist", 1, 200},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			ds := toneDataset(256, 512, 10)
			if err := (Ops{}).Bandpass(ds, tc.low, tc.high); err == nil {
				t.Error("expected error")
			}
		})
	}
}
